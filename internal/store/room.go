// internal/store/room.go
package store

import (
	"github.com/google/uuid"

	"github.com/mafia-live/syncengine/internal/models"
)

// Room lifecycle. The HTTP round trips live in httpapi; the store only records
// their outcomes so the UI flags behave the same whether the call succeeds,
// fails, or is still in flight.

// BeginCreateRoom marks a room creation in flight and clears any stale error.
func (s *GameStateStore) BeginCreateRoom() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isCreatingRoom = true
	s.roomError = ""
}

// FinishCreateRoom records the result of a create-room call. On failure the
// current room is cleared and a fixed user-facing error is set.
func (s *GameStateStore) FinishCreateRoom(room *models.Room, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isCreatingRoom = false
	if err != nil {
		s.log.WithError(err).Warn("create room failed")
		s.room = nil
		s.roomError = "Failed to create room"
		return
	}
	s.room = room
	s.roomError = ""
}

// BeginJoinRoom marks a room join in flight.
func (s *GameStateStore) BeginJoinRoom() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isJoiningRoom = true
	s.roomError = ""
}

// FinishJoinRoom records the result of a join-room call.
func (s *GameStateStore) FinishJoinRoom(room *models.Room, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isJoiningRoom = false
	if err != nil {
		s.log.WithError(err).Warn("join room failed")
		s.room = nil
		s.roomError = "Failed to join room"
		return
	}
	s.room = room
	s.roomError = ""
}

// LeaveRoom drops the room and all game state derived from it.
func (s *GameStateStore) LeaveRoom() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room = nil
	s.roomError = ""
	s.inGame = false
	s.gameID = uuid.Nil
	s.phase = PhaseLobby
	s.dayNumber = 0
	s.players = nil
	s.eliminated = nil
	s.votes = nil
	s.chat = nil
	s.history = nil
	s.winner = ""
	s.hasVoted = false
	s.votingTarget = uuid.Nil
	s.timeRemaining = 0
	s.gameError = ""
}

// SetRoom replaces the current room, e.g. from a room snapshot broadcast.
func (s *GameStateStore) SetRoom(room *models.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room = room
}

// SetRoomStatus updates only the lifecycle status of the current room.
func (s *GameStateStore) SetRoomStatus(status models.RoomStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room != nil {
		s.room.Status = status
	}
}

// ApplySettingsUpdate merges a settings patch into the current room. The
// merge is explicit per field: scalars replace only when the patch carries
// them, and the role-config map replaces wholesale only when non-nil, so a
// partial patch can never silently drop nested fields.
func (s *GameStateStore) ApplySettingsUpdate(patch models.RoomSettingsPatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applySettingsLocked(patch)
}

func (s *GameStateStore) applySettingsLocked(patch models.RoomSettingsPatch) {
	if s.room == nil {
		return
	}
	set := &s.room.Settings
	if patch.Public != nil {
		set.Public = *patch.Public
	}
	if patch.MaxPlayers != nil {
		set.MaxPlayers = *patch.MaxPlayers
	}
	if patch.DayDurationSec != nil {
		set.DayDurationSec = *patch.DayDurationSec
	}
	if patch.NightDurationSec != nil {
		set.NightDurationSec = *patch.NightDurationSec
	}
	if patch.VotingDurationSec != nil {
		set.VotingDurationSec = *patch.VotingDurationSec
	}
	if patch.RoleConfig != nil {
		cfg := make(map[string]int, len(patch.RoleConfig))
		for k, v := range patch.RoleConfig {
			cfg[k] = v
		}
		set.RoleConfig = cfg
	}
}

// UpsertRoomPlayer adds a player to the roster or refreshes an existing
// entry, mirroring how the server reports joins and rejoins.
func (s *GameStateStore) UpsertRoomPlayer(p *models.Player) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room == nil {
		return
	}
	for i, existing := range s.room.Players {
		if existing.ID == p.ID {
			s.room.Players[i] = p
			return
		}
	}
	s.room.Players = append(s.room.Players, p)
}

// RemoveRoomPlayer drops a player from the roster.
func (s *GameStateStore) RemoveRoomPlayer(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room == nil {
		return
	}
	for i, p := range s.room.Players {
		if p.ID == id {
			s.room.Players = append(s.room.Players[:i], s.room.Players[i+1:]...)
			return
		}
	}
}
