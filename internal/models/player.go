// internal/models/player.go
package models

import "github.com/google/uuid"

// Player is one member of a room's roster. Role stays empty until the server
// assigns or reveals it; the engine never guesses roles locally.
type Player struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Role     string    `json:"role,omitempty"`
	Alive    bool      `json:"alive"`
	IsHost   bool      `json:"is_host"`
}

// NewPlayer builds a living, role-less player.
func NewPlayer(id uuid.UUID, username string) *Player {
	return &Player{
		ID:       id,
		Username: username,
		Alive:    true,
	}
}
