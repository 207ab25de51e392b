// internal/models/room.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// RoomStatus is the lifecycle state of a room as reported by the server.
type RoomStatus string

const (
	RoomWaiting    RoomStatus = "waiting"
	RoomInProgress RoomStatus = "in_progress"
	RoomFinished   RoomStatus = "finished"
)

// Room is the pre-game container players gather in. The server owns it; the
// client holds the latest reported copy.
type Room struct {
	ID        uuid.UUID    `json:"id"`
	Code      string       `json:"code"`
	HostID    uuid.UUID    `json:"host_id"`
	Status    RoomStatus   `json:"status"`
	Players   []*Player    `json:"players"`
	Settings  RoomSettings `json:"settings"`
	CreatedAt time.Time    `json:"created_at"`
}

// RoomSettings is the host-editable game configuration. RoleConfig maps role
// name to the number of players dealt that role.
type RoomSettings struct {
	Public            bool           `json:"public"`
	MaxPlayers        int            `json:"max_players"`
	DayDurationSec    int            `json:"day_duration_sec"`
	NightDurationSec  int            `json:"night_duration_sec"`
	VotingDurationSec int            `json:"voting_duration_sec"`
	RoleConfig        map[string]int `json:"role_config"`
}

// RoomSettingsPatch is a partial settings update. Nil fields are untouched;
// a non-nil RoleConfig replaces the whole map rather than merging into it.
type RoomSettingsPatch struct {
	Public            *bool          `json:"public,omitempty"`
	MaxPlayers        *int           `json:"max_players,omitempty"`
	DayDurationSec    *int           `json:"day_duration_sec,omitempty"`
	NightDurationSec  *int           `json:"night_duration_sec,omitempty"`
	VotingDurationSec *int           `json:"voting_duration_sec,omitempty"`
	RoleConfig        map[string]int `json:"role_config,omitempty"`
}
