// internal/store/connection.go
package store

import "time"

// Transport failures never cross the store boundary as errors; they become
// fields on SyncState that the UI reads like any other state.

// SetConnectionError records a transport failure and flips the connection
// flag off. The reconnecting banner keys off these two fields.
func (s *GameStateStore) SetConnectionError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncState.Connected = false
	s.syncState.ConnectionError = msg
}

// ClearConnectionError wipes the recorded error. It does not touch the
// connection flag: that only turns true once a successful sync response has
// been applied.
func (s *GameStateStore) ClearConnectionError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncState.ConnectionError = ""
}

// SetConnected flips the connection flag.
func (s *GameStateStore) SetConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncState.Connected = connected
}

// SetResyncing toggles the UI-facing resync indicator.
func (s *GameStateStore) SetResyncing(resyncing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncState.IsResyncing = resyncing
}

// SetReconnectAttempts mirrors the transport's attempt counter for the UI.
func (s *GameStateStore) SetReconnectAttempts(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncState.ReconnectAttempts = n
}

// SetPendingActionCount mirrors the ledger's pending counter for the UI.
func (s *GameStateStore) SetPendingActionCount(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncState.PendingActions = n
}

// RecordConflict bumps the conflict counter. Resolved conflicts are logged,
// not surfaced; the counter is the only observable trace.
func (s *GameStateStore) RecordConflict() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncState.Conflicts++
}

// SetLastSyncTime records the timestamp of the newest applied snapshot.
func (s *GameStateStore) SetLastSyncTime(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncState.LastSyncTime = t
}

// LastSyncTime returns the timestamp of the newest applied snapshot; the
// stale-response guard compares candidate snapshots against it.
func (s *GameStateStore) LastSyncTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncState.LastSyncTime
}
