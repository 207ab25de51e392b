// internal/httpapi/client.go
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mafia-live/syncengine/internal/models"
)

// Client speaks the room-lifecycle REST endpoints. Game traffic goes over the
// websocket transport; only create/join/leave round-trip over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	log     *logrus.Logger
}

// NewClient builds a client for the given API base URL.
func NewClient(baseURL string, log *logrus.Logger) *Client {
	if log == nil {
		log = logrus.New()
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

type createRoomRequest struct {
	HostID   uuid.UUID           `json:"host_id"`
	Username string              `json:"username"`
	Settings models.RoomSettings `json:"settings"`
}

type joinRoomRequest struct {
	Code     string    `json:"code"`
	PlayerID uuid.UUID `json:"player_id"`
	Username string    `json:"username"`
}

type leaveRoomRequest struct {
	RoomID   uuid.UUID `json:"room_id"`
	PlayerID uuid.UUID `json:"player_id"`
}

// CreateRoom asks the server to open a new room hosted by the local player.
func (c *Client) CreateRoom(ctx context.Context, hostID uuid.UUID, username string, settings models.RoomSettings) (*models.Room, error) {
	var room models.Room
	err := c.post(ctx, "/rooms/create", createRoomRequest{
		HostID:   hostID,
		Username: username,
		Settings: settings,
	}, &room)
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// JoinRoom joins an existing room by its short code.
func (c *Client) JoinRoom(ctx context.Context, code string, playerID uuid.UUID, username string) (*models.Room, error) {
	var room models.Room
	err := c.post(ctx, "/rooms/join", joinRoomRequest{
		Code:     code,
		PlayerID: playerID,
		Username: username,
	}, &room)
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// LeaveRoom tells the server the local player left. Best effort; local state
// is cleared regardless.
func (c *Client) LeaveRoom(ctx context.Context, roomID, playerID uuid.UUID) error {
	return c.post(ctx, "/rooms/leave", leaveRoomRequest{RoomID: roomID, PlayerID: playerID}, nil)
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s returned status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
