// internal/store/selectors.go
package store

import (
	"github.com/google/uuid"

	"github.com/mafia-live/syncengine/internal/models"
)

// Read-side accessors for the UI layer. Slices are copied so callers can
// never alias the canonical state.

// CurrentRoom returns the room the session belongs to, or nil.
func (s *GameStateStore) CurrentRoom() *models.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// RoomCode returns the join code of the current room.
func (s *GameStateStore) RoomCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room == nil {
		return ""
	}
	return s.room.Code
}

// IsHost reports whether the local player owns the current room.
func (s *GameStateStore) IsHost() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room != nil && s.room.HostID == s.localPlayerID
}

// IsCreatingRoom reports whether a create-room call is in flight.
func (s *GameStateStore) IsCreatingRoom() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isCreatingRoom
}

// IsJoiningRoom reports whether a join-room call is in flight.
func (s *GameStateStore) IsJoiningRoom() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isJoiningRoom
}

// RoomError returns the last room-lifecycle error, empty when none.
func (s *GameStateStore) RoomError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomError
}

// IsInGame reports whether a game is in progress for this session.
func (s *GameStateStore) IsInGame() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inGame
}

// CurrentPhase returns the phase exactly as the server last named it.
func (s *GameStateStore) CurrentPhase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// DayNumber returns the current in-game day.
func (s *GameStateStore) DayNumber() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dayNumber
}

// TimeRemaining returns the seconds left in the current phase per the last
// server announcement.
func (s *GameStateStore) TimeRemaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeRemaining
}

// Players returns a copy of the in-game roster.
func (s *GameStateStore) Players() []*models.Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.Player(nil), s.players...)
}

// EliminatedPlayers returns a copy of the eliminated-player ids in order of
// elimination.
func (s *GameStateStore) EliminatedPlayers() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uuid.UUID(nil), s.eliminated...)
}

// Votes returns a copy of the active vote set.
func (s *GameStateStore) Votes() []models.Vote {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Vote(nil), s.votes...)
}

// HasVoted reports whether the local player has voted in the current phase.
func (s *GameStateStore) HasVoted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasVoted
}

// VotingTarget returns who the local player is currently voting for, or
// uuid.Nil.
func (s *GameStateStore) VotingTarget() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.votingTarget
}

// ChatMessages returns a copy of the chat stream in arrival order.
func (s *GameStateStore) ChatMessages() []models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ChatMessage(nil), s.chat...)
}

// History returns a copy of the append-only game event history.
func (s *GameStateStore) History() []models.GameLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.GameLogEntry(nil), s.history...)
}

// Winner returns the winning faction once the game has ended.
func (s *GameStateStore) Winner() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.winner
}

// IsConnected reports the transport connection flag.
func (s *GameStateStore) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncState.Connected
}

// ConnectionError returns the last transport failure, empty when none.
func (s *GameStateStore) ConnectionError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncState.ConnectionError
}

// GameError returns the current fatal game error, empty when none.
func (s *GameStateStore) GameError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gameError
}

// SyncStatus returns a copy of the engine's sync/connection state.
func (s *GameStateStore) SyncStatus() models.SyncState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncState
}
