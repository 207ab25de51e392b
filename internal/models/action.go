// internal/models/action.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// ActionKind enumerates the locally-initiated actions the engine tracks
// optimistically.
type ActionKind string

const (
	ActionCastVote       ActionKind = "cast-vote"
	ActionSendChat       ActionKind = "send-chat-message"
	ActionUpdateSettings ActionKind = "update-room-settings"
)

// ActionState is the lifecycle of a pending action.
type ActionState string

const (
	ActionPending    ActionState = "pending"
	ActionConfirmed  ActionState = "confirmed"
	ActionRolledBack ActionState = "rolled_back"
)

// PendingAction is a locally-applied action awaiting server confirmation.
// CorrelationID ties the optimistic apply, the outbound emit, and the
// eventual server echo together.
type PendingAction struct {
	CorrelationID uuid.UUID              `json:"correlation_id"`
	Kind          ActionKind             `json:"kind"`
	Payload       map[string]interface{} `json:"payload"`
	SubmittedAt   time.Time              `json:"submitted_at"`
	State         ActionState            `json:"state"`
}

// NewPendingAction stamps a fresh pending entry.
func NewPendingAction(kind ActionKind, payload map[string]interface{}) *PendingAction {
	return &PendingAction{
		CorrelationID: uuid.New(),
		Kind:          kind,
		Payload:       payload,
		SubmittedAt:   time.Now(),
		State:         ActionPending,
	}
}
