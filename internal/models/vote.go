// internal/models/vote.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// Vote records one player's active vote against a target. The store keeps at
// most one Vote per voter; casting again replaces the earlier entry.
type Vote struct {
	VoterID   uuid.UUID `json:"voter_id"`
	TargetID  uuid.UUID `json:"target_id"`
	Timestamp time.Time `json:"timestamp"`
}

// NewVote stamps a vote with the current time.
func NewVote(voterID, targetID uuid.UUID) Vote {
	return Vote{
		VoterID:   voterID,
		TargetID:  targetID,
		Timestamp: time.Now(),
	}
}
