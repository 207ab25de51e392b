// internal/models/chat.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// ChatMessageType distinguishes ordinary player chat from server-injected
// system notices.
type ChatMessageType string

const (
	ChatPlayer ChatMessageType = "player"
	ChatSystem ChatMessageType = "system"
)

// ChatMessage is append-only: once stored it is never mutated.
type ChatMessage struct {
	ID         uuid.UUID       `json:"id"`
	PlayerID   uuid.UUID       `json:"player_id"`
	PlayerName string          `json:"player_name"`
	Content    string          `json:"content"`
	Type       ChatMessageType `json:"type"`
	Timestamp  time.Time       `json:"timestamp"`
}

// GameLogEntry is one entry in the append-only game event history, ordered by
// arrival.
type GameLogEntry struct {
	Type      string    `json:"type"`
	Detail    string    `json:"detail,omitempty"`
	PlayerID  uuid.UUID `json:"player_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
