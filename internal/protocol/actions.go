// internal/protocol/actions.go
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Outbound action names. These are the only messages the engine emits.
const (
	ActionCastVote      = "cast-vote"
	ActionSendChat      = "send-chat-message"
	ActionUpdateSetting = "update-room-settings"
	ActionRequestSync   = "request-sync"
)

// CastVotePayload is the wire form of a vote action.
type CastVotePayload struct {
	CorrelationID uuid.UUID `json:"correlation_id"`
	PlayerID      uuid.UUID `json:"player_id"`
	TargetID      uuid.UUID `json:"target_id"`
	Timestamp     time.Time `json:"timestamp"`
}

// SendChatPayload is the wire form of a chat action.
type SendChatPayload struct {
	CorrelationID uuid.UUID `json:"correlation_id"`
	PlayerID      uuid.UUID `json:"player_id"`
	PlayerName    string    `json:"player_name"`
	Content       string    `json:"content"`
	Kind          string    `json:"kind"`
	Timestamp     time.Time `json:"timestamp"`
}

// RequestSyncPayload asks the server for a snapshot newer than LastSyncTime.
type RequestSyncPayload struct {
	LastSyncTime time.Time `json:"last_sync_time"`
}

// EncodeAction wraps an outbound payload in the wire envelope.
func EncodeAction(name string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", name, err)
	}
	frame := struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}{Type: name, Payload: raw}
	return json.Marshal(frame)
}
