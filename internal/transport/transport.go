// internal/transport/transport.go
package transport

import (
	"context"
	"errors"

	"github.com/mafia-live/syncengine/internal/protocol"
)

// ErrNotConnected is returned by Emit when no transport is available at all.
// Callers use it to divert the action into the offline queue; emit failures
// on a live connection are a different condition and do not queue.
var ErrNotConnected = errors.New("transport not connected")

// Handler consumes one decoded server event.
type Handler func(ev protocol.ServerEvent)

// ConnectionState is the transport-level status snapshot handed to the UI.
type ConnectionState struct {
	Connected         bool `json:"connected"`
	ReconnectAttempts int  `json:"reconnect_attempts"`
	PendingActions    int  `json:"pending_actions"`
	IsResyncing       bool `json:"is_resyncing"`
}

// Transport is the adapter contract the engine speaks. The retry/backoff
// schedule is the transport's own business; the engine only learns about
// connects and disconnects through the registered callbacks.
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Emit(event string, payload interface{}) error
	On(event protocol.EventType, h Handler)
	Off(event protocol.EventType)
	IsConnected() bool
	ConnectionState() ConnectionState
}
