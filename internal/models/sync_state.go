// internal/models/sync_state.go
package models

import "time"

// SyncState is the engine's connection/reconciliation status as the UI sees
// it. All transport failures surface here as fields rather than errors thrown
// across the store boundary.
type SyncState struct {
	LastSyncTime      time.Time `json:"last_sync_time"`
	IsResyncing       bool      `json:"is_resyncing"`
	Conflicts         int       `json:"conflicts"`
	PendingActions    int       `json:"pending_actions"`
	Connected         bool      `json:"connected"`
	ReconnectAttempts int       `json:"reconnect_attempts"`

	// ConnectionError is the last transport-level failure, empty when none.
	// Cleared only after a successful sync response is applied, not on bare
	// transport reconnect.
	ConnectionError string `json:"connection_error,omitempty"`
}
