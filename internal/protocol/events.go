// internal/protocol/events.go
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mafia-live/syncengine/internal/models"
)

// EventType names an inbound server event.
type EventType string

const (
	EventGameStateUpdate  EventType = "game-state-update"
	EventPhaseChanged     EventType = "phase-changed"
	EventVotesUpdated     EventType = "votes-updated"
	EventPlayerEliminated EventType = "player-eliminated"
	EventGameEnded        EventType = "game-ended"
	EventChatMessage      EventType = "chat-message"
	EventSystemMessage    EventType = "system-message"
	EventSyncResponse     EventType = "sync-response"
	EventSyncConflict     EventType = "sync-conflict"
)

// Envelope is the wire frame every server event arrives in.
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ServerEvent is implemented by every decoded inbound event variant.
type ServerEvent interface {
	EventType() EventType
}

// GameSnapshot is the server's authoritative view of a game, carried by
// game-state-update, sync-response and sync-conflict events.
type GameSnapshot struct {
	GameID        uuid.UUID        `json:"game_id"`
	RoomID        uuid.UUID        `json:"room_id"`
	Phase         string           `json:"phase"`
	DayNumber     int              `json:"day_number"`
	Players       []*models.Player `json:"players"`
	Eliminated    []uuid.UUID      `json:"eliminated"`
	Votes         []models.Vote    `json:"votes"`
	TimeRemaining int              `json:"time_remaining"`
	SyncTime      time.Time        `json:"sync_time"`
}

// GameStateUpdate replaces the canonical game state wholesale.
type GameStateUpdate struct {
	State GameSnapshot `json:"state"`
}

func (GameStateUpdate) EventType() EventType { return EventGameStateUpdate }

// PhaseChanged announces a server-driven phase transition.
type PhaseChanged struct {
	Phase         string `json:"phase"`
	TimeRemaining int    `json:"time_remaining"`
}

func (PhaseChanged) EventType() EventType { return EventPhaseChanged }

// VotesUpdated carries the full authoritative vote set.
type VotesUpdated struct {
	Votes []models.Vote `json:"votes"`
}

func (VotesUpdated) EventType() EventType { return EventVotesUpdated }

// PlayerEliminated announces an elimination decided by the server.
type PlayerEliminated struct {
	PlayerID uuid.UUID `json:"player_id"`
	Reason   string    `json:"reason"`
}

func (PlayerEliminated) EventType() EventType { return EventPlayerEliminated }

// GameEnded announces the win condition. Results maps player id to the role
// revealed at game end.
type GameEnded struct {
	Winner  string            `json:"winner"`
	Results map[string]string `json:"results"`
}

func (GameEnded) EventType() EventType { return EventGameEnded }

// ChatMessageEvent delivers one chat message, possibly an echo of our own.
type ChatMessageEvent struct {
	Message models.ChatMessage `json:"message"`
}

func (ChatMessageEvent) EventType() EventType { return EventChatMessage }

// SystemMessage is a server-injected notice rendered in the chat stream.
type SystemMessage struct {
	Message string `json:"message"`
	Kind    string `json:"kind"`
}

func (SystemMessage) EventType() EventType { return EventSystemMessage }

// SyncResponse answers a request-sync after reconnect.
type SyncResponse struct {
	State GameSnapshot `json:"state"`
}

func (SyncResponse) EventType() EventType { return EventSyncResponse }

// SyncConflict is the server's explicit divergence signal. ClientState is the
// state hash/summary the server saw from us; kept opaque, only logged.
type SyncConflict struct {
	ServerState GameSnapshot    `json:"server_state"`
	ClientState json.RawMessage `json:"client_state,omitempty"`
}

func (SyncConflict) EventType() EventType { return EventSyncConflict }

// Decode parses a wire frame into its typed variant. Payload shapes are
// validated here so nothing loosely typed crosses into the store.
func Decode(data []byte) (ServerEvent, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("malformed event frame: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("event frame missing type")
	}

	switch env.Type {
	case EventGameStateUpdate:
		var ev GameStateUpdate
		if err := unmarshalPayload(env, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case EventPhaseChanged:
		var ev PhaseChanged
		if err := unmarshalPayload(env, &ev); err != nil {
			return nil, err
		}
		if ev.Phase == "" {
			return nil, fmt.Errorf("phase-changed missing phase")
		}
		return ev, nil
	case EventVotesUpdated:
		var ev VotesUpdated
		if err := unmarshalPayload(env, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case EventPlayerEliminated:
		var ev PlayerEliminated
		if err := unmarshalPayload(env, &ev); err != nil {
			return nil, err
		}
		if ev.PlayerID == uuid.Nil {
			return nil, fmt.Errorf("player-eliminated missing player_id")
		}
		return ev, nil
	case EventGameEnded:
		var ev GameEnded
		if err := unmarshalPayload(env, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case EventChatMessage:
		var ev ChatMessageEvent
		if err := unmarshalPayload(env, &ev); err != nil {
			return nil, err
		}
		if ev.Message.Content == "" {
			return nil, fmt.Errorf("chat-message missing content")
		}
		return ev, nil
	case EventSystemMessage:
		var ev SystemMessage
		if err := unmarshalPayload(env, &ev); err != nil {
			return nil, err
		}
		if ev.Message == "" {
			return nil, fmt.Errorf("system-message missing message")
		}
		return ev, nil
	case EventSyncResponse:
		var ev SyncResponse
		if err := unmarshalPayload(env, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case EventSyncConflict:
		var ev SyncConflict
		if err := unmarshalPayload(env, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", env.Type)
	}
}

func unmarshalPayload(env Envelope, dst interface{}) error {
	if len(env.Payload) == 0 {
		return fmt.Errorf("%s event missing payload", env.Type)
	}
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		return fmt.Errorf("invalid %s payload: %w", env.Type, err)
	}
	return nil
}
