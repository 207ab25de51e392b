// internal/store/store.go
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mafia-live/syncengine/internal/models"
	"github.com/mafia-live/syncengine/internal/protocol"
)

// Local-action rejection errors. These are GameErrors in the taxonomy: the
// action is refused before any mutation and the canonical state is untouched.
var (
	ErrNotInGame     = errors.New("no game in progress")
	ErrNotAlive      = errors.New("actor is not alive")
	ErrUnknownActor  = errors.New("actor is not in the roster")
	ErrPhaseClosed   = errors.New("action not valid in current phase")
	ErrTargetInvalid = errors.New("vote target is not an eligible player")
	ErrNotHost       = errors.New("only the host may change settings")
	ErrEmptyMessage  = errors.New("chat message is empty")
)

// GameStateStore holds the single canonical in-memory representation of room,
// game, players, votes, chat and phase. It is the only writer of that state;
// the ledger, resolver and offline queue go through its methods, never through
// its fields. Each instance is owned by one room/game session.
type GameStateStore struct {
	mu  sync.Mutex
	log *logrus.Logger

	localPlayerID uuid.UUID

	// Room lifecycle.
	room           *models.Room
	isCreatingRoom bool
	isJoiningRoom  bool
	roomError      string

	// Game state, populated at game start.
	gameID        uuid.UUID
	inGame        bool
	phase         Phase
	dayNumber     int
	players       []*models.Player
	eliminated    []uuid.UUID
	votes         []models.Vote
	timeRemaining int
	chat          []models.ChatMessage
	history       []models.GameLogEntry
	winner        string

	// Local-player voting flags, reset on every phase change.
	hasVoted     bool
	votingTarget uuid.UUID

	syncState models.SyncState
	gameError string
}

// New builds a store for one session. The local player id scopes the
// has-voted/voting-target flags and optimistic-action validation.
func New(localPlayerID uuid.UUID, log *logrus.Logger) *GameStateStore {
	if log == nil {
		log = logrus.New()
	}
	return &GameStateStore{
		localPlayerID: localPlayerID,
		log:           log,
		phase:         PhaseLobby,
	}
}

// LocalPlayerID returns the id this store validates local actions against.
func (s *GameStateStore) LocalPlayerID() uuid.UUID {
	return s.localPlayerID
}

// ApplyLocalAction validates a locally-initiated action against the current
// phase and roster, then applies it optimistically. The action is rejected
// before any mutation when the actor is not alive or the kind is closed in
// the current phase. Recording the action in the ledger and transmitting it
// is the caller's job.
func (s *GameStateStore) ApplyLocalAction(a *models.PendingAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch a.Kind {
	case models.ActionCastVote:
		if !s.inGame {
			return ErrNotInGame
		}
		actor := s.findPlayer(s.localPlayerID)
		if actor == nil {
			return ErrUnknownActor
		}
		if !actor.Alive {
			return ErrNotAlive
		}
		if !s.phase.AllowsVoting() {
			return ErrPhaseClosed
		}
		targetID, err := payloadUUID(a.Payload, "target_id")
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTargetInvalid, err)
		}
		target := s.findPlayer(targetID)
		if target == nil || !target.Alive {
			return ErrTargetInvalid
		}
		s.castVoteLocked(s.localPlayerID, targetID)
		return nil

	case models.ActionSendChat:
		actor := s.findPlayer(s.localPlayerID)
		if s.inGame && actor != nil && !actor.Alive {
			return ErrNotAlive
		}
		content, _ := a.Payload["content"].(string)
		if content == "" {
			return ErrEmptyMessage
		}
		// Replays (offline flush, conflict resolution) re-apply the same
		// action; the correlation id keeps the chat stream free of doubles.
		for _, m := range s.chat {
			if m.ID == a.CorrelationID {
				return nil
			}
		}
		name, _ := a.Payload["player_name"].(string)
		s.chat = append(s.chat, models.ChatMessage{
			ID:         a.CorrelationID,
			PlayerID:   s.localPlayerID,
			PlayerName: name,
			Content:    content,
			Type:       models.ChatPlayer,
			Timestamp:  a.SubmittedAt,
		})
		return nil

	case models.ActionUpdateSettings:
		if s.room == nil {
			return ErrNotInGame
		}
		if s.room.HostID != s.localPlayerID {
			return ErrNotHost
		}
		patch, err := payloadPatch(a.Payload)
		if err != nil {
			return err
		}
		s.applySettingsLocked(patch)
		return nil

	default:
		return fmt.Errorf("unsupported local action kind %q", a.Kind)
	}
}

// SetGameState replaces the canonical game state with an authoritative server
// snapshot. The local has-voted flags are recomputed from the snapshot's vote
// set so they can never disagree with it.
func (s *GameStateStore) SetGameState(snap protocol.GameSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gameID = snap.GameID
	s.inGame = true
	s.phase = Phase(snap.Phase)
	if !s.phase.Known() {
		s.log.WithField("phase", snap.Phase).Warn("server sent unrecognized phase, rendering as-is")
	}
	s.dayNumber = snap.DayNumber
	s.players = snap.Players
	s.eliminated = append([]uuid.UUID(nil), snap.Eliminated...)
	s.votes = append([]models.Vote(nil), snap.Votes...)
	s.timeRemaining = snap.TimeRemaining
	s.recomputeVotingFlagsLocked()
}

// CastVote replaces any existing vote from voterID with a vote for targetID.
// When the voter is the local player the has-voted flag and voting target are
// set as well.
func (s *GameStateStore) CastVote(voterID, targetID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.castVoteLocked(voterID, targetID)
}

func (s *GameStateStore) castVoteLocked(voterID, targetID uuid.UUID) {
	v := models.NewVote(voterID, targetID)
	replaced := false
	for i := range s.votes {
		if s.votes[i].VoterID == voterID {
			s.votes[i] = v
			replaced = true
			break
		}
	}
	if !replaced {
		s.votes = append(s.votes, v)
	}
	if voterID == s.localPlayerID {
		s.hasVoted = true
		s.votingTarget = targetID
	}
}

// SetVotes replaces the vote set with the server's authoritative copy and
// recomputes the local voting flags from it.
func (s *GameStateStore) SetVotes(votes []models.Vote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.votes = append([]models.Vote(nil), votes...)
	s.recomputeVotingFlagsLocked()
}

func (s *GameStateStore) recomputeVotingFlagsLocked() {
	s.hasVoted = false
	s.votingTarget = uuid.Nil
	for _, v := range s.votes {
		if v.VoterID == s.localPlayerID {
			s.hasVoted = true
			s.votingTarget = v.TargetID
			break
		}
	}
}

// UpdateGamePhase moves to the phase the server named. The has-voted flag and
// voting target always reset; the votes collection is left alone, clearing it
// takes an explicit ClearVotes call. Phases the client does not recognize are
// accepted verbatim.
func (s *GameStateStore) UpdateGamePhase(phase string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := Phase(phase)
	if !p.Known() {
		s.log.WithField("phase", phase).Warn("server sent unrecognized phase, rendering as-is")
	}
	s.phase = p
	s.hasVoted = false
	s.votingTarget = uuid.Nil
	s.history = append(s.history, models.GameLogEntry{
		Type:      "phase-changed",
		Detail:    phase,
		Timestamp: time.Now(),
	})
}

// SetTimeRemaining updates the countdown the server announced for the current
// phase. The client only counts this down for display; the server timeout
// stays authoritative.
func (s *GameStateStore) SetTimeRemaining(seconds int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeRemaining = seconds
}

// EliminatePlayer marks the player dead and records them in the eliminated
// list. Idempotent: a second call for the same id changes nothing.
func (s *GameStateStore) EliminatePlayer(playerID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.eliminated {
		if id == playerID {
			return
		}
	}
	p := s.findPlayer(playerID)
	if p == nil {
		s.log.WithField("player_id", playerID).Warn("elimination for player not in roster")
		return
	}
	p.Alive = false
	s.eliminated = append(s.eliminated, playerID)
	s.history = append(s.history, models.GameLogEntry{
		Type:      "player-eliminated",
		PlayerID:  playerID,
		Timestamp: time.Now(),
	})
}

// IncrementDay advances the day counter by exactly one. This is deliberately
// distinct from the day number a game-start snapshot sets directly.
func (s *GameStateStore) IncrementDay() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dayNumber++
}

// ClearVotes empties the vote collection. Separate from UpdateGamePhase on
// purpose: the server decides when a phase change also discards votes.
func (s *GameStateStore) ClearVotes() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.votes = nil
}

// EndGame records the winner and flips to the results phase. Roles from the
// server's reveal map are written back onto the roster.
func (s *GameStateStore) EndGame(winner string, results map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.winner = winner
	s.phase = PhaseResults
	s.hasVoted = false
	s.votingTarget = uuid.Nil
	if s.room != nil {
		s.room.Status = models.RoomFinished
	}
	for idStr, role := range results {
		id, err := uuid.Parse(idStr)
		if err != nil {
			continue
		}
		if p := s.findPlayer(id); p != nil {
			p.Role = role
		}
	}
	s.history = append(s.history, models.GameLogEntry{
		Type:      "game-ended",
		Detail:    winner,
		Timestamp: time.Now(),
	})
}

// ResetGame clears every round-scoped field while keeping the roster's
// identity: same player ids, roles wiped, everyone alive again.
func (s *GameStateStore) ResetGame() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.votes = nil
	s.chat = nil
	s.eliminated = nil
	s.history = nil
	s.phase = PhaseLobby
	s.dayNumber = 0
	s.hasVoted = false
	s.votingTarget = uuid.Nil
	s.winner = ""
	s.inGame = false
	s.timeRemaining = 0
	s.gameError = ""
	for _, p := range s.players {
		p.Role = ""
		p.Alive = true
	}
	if s.room != nil {
		s.room.Status = models.RoomWaiting
	}
}

// AppendChat appends a chat message as delivered; messages are never mutated
// afterwards. A message id already in the stream means a duplicate delivery
// and is skipped.
func (s *GameStateStore) AppendChat(msg models.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.chat {
		if m.ID == msg.ID {
			return
		}
	}
	s.chat = append(s.chat, msg)
}

// AppendSystemMessage injects a server notice into the chat stream.
func (s *GameStateStore) AppendSystemMessage(text, kind string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chat = append(s.chat, models.ChatMessage{
		ID:        uuid.New(),
		Content:   text,
		Type:      models.ChatSystem,
		Timestamp: time.Now(),
	})
	s.history = append(s.history, models.GameLogEntry{
		Type:      "system-message",
		Detail:    kind,
		Timestamp: time.Now(),
	})
}

// SetGameError surfaces a fatal in-game error to the UI.
func (s *GameStateStore) SetGameError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gameError = msg
}

// ClearGameError dismisses the current game error.
func (s *GameStateStore) ClearGameError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gameError = ""
}

func (s *GameStateStore) findPlayer(id uuid.UUID) *models.Player {
	for _, p := range s.players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// payloadPatch accepts the typed patch a live session carries, or the map
// form it becomes after a JSON round-trip through the offline queue.
func payloadPatch(payload map[string]interface{}) (models.RoomSettingsPatch, error) {
	switch v := payload["patch"].(type) {
	case models.RoomSettingsPatch:
		return v, nil
	case nil:
		return models.RoomSettingsPatch{}, fmt.Errorf("settings action carries no patch")
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return models.RoomSettingsPatch{}, fmt.Errorf("settings patch does not round-trip: %w", err)
		}
		var patch models.RoomSettingsPatch
		if err := json.Unmarshal(raw, &patch); err != nil {
			return models.RoomSettingsPatch{}, fmt.Errorf("settings patch does not round-trip: %w", err)
		}
		return patch, nil
	}
}

func payloadUUID(payload map[string]interface{}, key string) (uuid.UUID, error) {
	raw, ok := payload[key]
	if !ok {
		return uuid.Nil, fmt.Errorf("payload missing %s", key)
	}
	switch v := raw.(type) {
	case string:
		return uuid.Parse(v)
	case uuid.UUID:
		return v, nil
	default:
		return uuid.Nil, fmt.Errorf("payload %s has unexpected type %T", key, raw)
	}
}
