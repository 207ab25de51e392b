// internal/engine/engine.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mafia-live/syncengine/internal/httpapi"
	"github.com/mafia-live/syncengine/internal/models"
	"github.com/mafia-live/syncengine/internal/offline"
	"github.com/mafia-live/syncengine/internal/pending"
	"github.com/mafia-live/syncengine/internal/protocol"
	"github.com/mafia-live/syncengine/internal/store"
	"github.com/mafia-live/syncengine/internal/transport"
)

const (
	minFlushRetry = 2 * time.Second
	maxFlushRetry = time.Minute

	// chatEchoWindow bounds how far apart a pending chat message and its
	// server echo may be timestamped and still count as the same message.
	chatEchoWindow = 5 * time.Second
)

// Options wires an Engine to its collaborators.
type Options struct {
	LocalPlayerID uuid.UUID
	Username      string
	Transport     transport.Transport
	API           *httpapi.Client

	// QueueStore backs the offline queue; nil selects in-memory.
	QueueStore offline.Store

	// PendingActionMaxAge bounds how long a ledger entry may sit unconfirmed
	// before OverduePendingActions reports it.
	PendingActionMaxAge time.Duration

	Log *logrus.Logger
}

// Engine is the client-side synchronization engine: it owns the canonical
// store, applies local actions optimistically, reconciles authoritative
// server events against the pending ledger, and queues actions taken while
// fully offline.
//
// Exactly one local action or one server event is processed at a time; the
// engine mutex is what makes the replay and conflict resolution
// deterministic.
type Engine struct {
	mu  sync.Mutex
	log *logrus.Logger

	username string

	store    *store.GameStateStore
	ledger   *pending.Ledger
	resolver *pending.Resolver
	queue    *offline.Queue
	tr       transport.Transport
	api      *httpapi.Client

	flushTimer *time.Timer
	flushDelay time.Duration
}

// New builds an engine for one room/game session and registers its handlers
// on the transport.
func New(opts Options) *Engine {
	log := opts.Log
	if log == nil {
		log = logrus.New()
	}

	s := store.New(opts.LocalPlayerID, log)
	l := pending.NewLedger(opts.PendingActionMaxAge, log)
	e := &Engine{
		log:        log,
		username:   opts.Username,
		store:      s,
		ledger:     l,
		resolver:   pending.NewResolver(s, l, log),
		queue:      offline.NewQueue(opts.QueueStore, "offline-queue:"+opts.LocalPlayerID.String(), log),
		tr:         opts.Transport,
		api:        opts.API,
		flushDelay: minFlushRetry,
	}
	e.registerHandlers()
	return e
}

// Store exposes the canonical state for the UI's selectors.
func (e *Engine) Store() *store.GameStateStore {
	return e.store
}

func (e *Engine) registerHandlers() {
	if e.tr == nil {
		return
	}
	e.tr.On(protocol.EventGameStateUpdate, func(ev protocol.ServerEvent) {
		e.handleSnapshot(ev.(protocol.GameStateUpdate).State, false)
	})
	e.tr.On(protocol.EventSyncResponse, func(ev protocol.ServerEvent) {
		e.handleSyncResponse(ev.(protocol.SyncResponse).State)
	})
	e.tr.On(protocol.EventSyncConflict, func(ev protocol.ServerEvent) {
		e.handleSyncConflict(ev.(protocol.SyncConflict))
	})
	e.tr.On(protocol.EventPhaseChanged, func(ev protocol.ServerEvent) {
		e.handlePhaseChanged(ev.(protocol.PhaseChanged))
	})
	e.tr.On(protocol.EventVotesUpdated, func(ev protocol.ServerEvent) {
		e.handleVotesUpdated(ev.(protocol.VotesUpdated))
	})
	e.tr.On(protocol.EventPlayerEliminated, func(ev protocol.ServerEvent) {
		e.handlePlayerEliminated(ev.(protocol.PlayerEliminated))
	})
	e.tr.On(protocol.EventGameEnded, func(ev protocol.ServerEvent) {
		e.handleGameEnded(ev.(protocol.GameEnded))
	})
	e.tr.On(protocol.EventChatMessage, func(ev protocol.ServerEvent) {
		e.handleChatMessage(ev.(protocol.ChatMessageEvent).Message)
	})
	e.tr.On(protocol.EventSystemMessage, func(ev protocol.ServerEvent) {
		e.handleSystemMessage(ev.(protocol.SystemMessage))
	})

	if sock, ok := e.tr.(*transport.Socket); ok {
		sock.OnConnected = e.onTransportConnected
		sock.OnDisconnected = e.onTransportDisconnected
		sock.Gauges = func() (int, bool) {
			return e.ledger.Len(), e.store.SyncStatus().IsResyncing
		}
	}
}

// Connect dials the game server.
func (e *Engine) Connect(ctx context.Context) error {
	if e.tr == nil {
		return transport.ErrNotConnected
	}
	return e.tr.Connect(ctx)
}

// Disconnect tears the transport down deliberately.
func (e *Engine) Disconnect() error {
	if e.tr == nil {
		return nil
	}
	return e.tr.Disconnect()
}

// Reconnect is the manual retry trigger: it redials immediately, superseding
// any scheduled backoff attempt.
func (e *Engine) Reconnect() error {
	if e.tr == nil {
		return transport.ErrNotConnected
	}
	return e.tr.Connect(context.Background())
}

// GetConnectionState returns the transport view the UI binds its banner to.
func (e *Engine) GetConnectionState() transport.ConnectionState {
	if e.tr == nil {
		return transport.ConnectionState{PendingActions: e.ledger.Len()}
	}
	return e.tr.ConnectionState()
}

// OverduePendingActions reports ledger entries past the confirmation age
// bound. They stay pending; surfacing them is the only policy here.
func (e *Engine) OverduePendingActions() []*models.PendingAction {
	return e.ledger.Overdue(time.Now())
}

// --- Local actions -------------------------------------------------------

// CastVote optimistically votes for targetID as the local player. The action
// is rejected before any mutation when the local player is dead, the phase
// does not accept votes, or the target is ineligible.
func (e *Engine) CastVote(targetID uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	a := models.NewPendingAction(models.ActionCastVote, map[string]interface{}{
		"target_id": targetID.String(),
	})
	if err := e.store.ApplyLocalAction(a); err != nil {
		return err
	}
	e.record(a)
	e.emitOrQueue(a)
	return nil
}

// SendChat optimistically appends a chat message from the local player.
func (e *Engine) SendChat(content string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	a := models.NewPendingAction(models.ActionSendChat, map[string]interface{}{
		"content":     content,
		"player_name": e.username,
	})
	if err := e.store.ApplyLocalAction(a); err != nil {
		return err
	}
	e.record(a)
	e.emitOrQueue(a)
	return nil
}

// UpdateRoomSettings optimistically merges a settings patch. Host only.
func (e *Engine) UpdateRoomSettings(patch models.RoomSettingsPatch) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	a := models.NewPendingAction(models.ActionUpdateSettings, map[string]interface{}{
		"patch": patch,
	})
	if err := e.store.ApplyLocalAction(a); err != nil {
		return err
	}
	e.record(a)
	e.emitOrQueue(a)
	return nil
}

func (e *Engine) record(a *models.PendingAction) {
	e.ledger.Record(a)
	e.store.SetPendingActionCount(e.ledger.Len())
}

// emitOrQueue transmits the action, or appends it to the offline queue when
// no transport is available at all. An emit failure on a live connection is
// neither dropped nor retried here; the entry stays pending and awaits
// resolution on the next sync.
func (e *Engine) emitOrQueue(a *models.PendingAction) {
	if e.tr == nil {
		e.queue.Enqueue(a)
		return
	}
	name, payload, err := wirePayload(a, e.store.LocalPlayerID(), e.username)
	if err != nil {
		e.log.WithError(err).Error("cannot encode local action")
		return
	}
	if err := e.tr.Emit(name, payload); err != nil {
		if errors.Is(err, transport.ErrNotConnected) {
			e.queue.Enqueue(a)
			return
		}
		e.log.WithError(err).WithField("kind", a.Kind).Warn("emit failed, action awaits resolution on reconnect")
	}
}

// --- Room lifecycle ------------------------------------------------------

// CreateRoom round-trips a create-room call and records the outcome.
func (e *Engine) CreateRoom(ctx context.Context, settings models.RoomSettings) error {
	if e.api == nil {
		return fmt.Errorf("no API client configured")
	}
	e.store.BeginCreateRoom()
	room, err := e.api.CreateRoom(ctx, e.store.LocalPlayerID(), e.username, settings)
	e.store.FinishCreateRoom(room, err)
	return err
}

// JoinRoom round-trips a join-room call and records the outcome.
func (e *Engine) JoinRoom(ctx context.Context, code string) error {
	if e.api == nil {
		return fmt.Errorf("no API client configured")
	}
	e.store.BeginJoinRoom()
	room, err := e.api.JoinRoom(ctx, code, e.store.LocalPlayerID(), e.username)
	e.store.FinishJoinRoom(room, err)
	return err
}

// LeaveRoom notifies the server and clears all room/game state locally.
func (e *Engine) LeaveRoom(ctx context.Context) error {
	var err error
	if room := e.store.CurrentRoom(); room != nil && e.api != nil {
		err = e.api.LeaveRoom(ctx, room.ID, e.store.LocalPlayerID())
		if err != nil {
			e.log.WithError(err).Warn("leave room call failed, clearing local state anyway")
		}
	}
	e.store.LeaveRoom()
	return err
}

// --- Transport hooks -----------------------------------------------------

// onTransportConnected fires on every (re)dial. The connection flag stays
// false until the sync response is applied; only the sync request goes out
// here.
func (e *Engine) onTransportConnected() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.store.SetResyncing(true)
	payload := protocol.RequestSyncPayload{LastSyncTime: e.store.LastSyncTime()}
	if err := e.tr.Emit(protocol.ActionRequestSync, payload); err != nil {
		e.log.WithError(err).Warn("sync request failed to send")
	}
}

func (e *Engine) onTransportDisconnected(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	msg := "Connection lost"
	if err != nil {
		msg = err.Error()
	}
	e.store.SetConnectionError(msg)
	e.store.SetReconnectAttempts(e.tr.ConnectionState().ReconnectAttempts)
}

// --- Server event handlers -----------------------------------------------

// handleSnapshot runs any authoritative snapshot through the resolver.
// retransmit controls whether replayed ledger entries are emitted again:
// true after a reconnect sync, false for routine updates whose pending
// entries are still in flight.
func (e *Engine) handleSnapshot(snap protocol.GameSnapshot, retransmit bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.applySnapshotLocked(snap, retransmit)
}

func (e *Engine) applySnapshotLocked(snap protocol.GameSnapshot, retransmit bool) bool {
	replay, err := e.resolver.Resolve(snap)
	if err != nil {
		if errors.Is(err, pending.ErrStaleSnapshot) {
			return false
		}
		e.log.WithError(err).Error("snapshot resolution failed")
		return false
	}
	if retransmit {
		for _, a := range replay {
			e.emitOrQueue(a)
		}
	}
	return true
}

func (e *Engine) handleSyncResponse(snap protocol.GameSnapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.applySnapshotLocked(snap, true) {
		return
	}
	// Only a successfully applied sync response completes a reconnect.
	e.store.SetConnected(true)
	e.store.ClearConnectionError()
	e.store.SetResyncing(false)
	if snap.SyncTime.IsZero() {
		e.store.SetLastSyncTime(time.Now())
	}
	e.store.SetReconnectAttempts(0)
	e.flushOfflineLocked()
}

func (e *Engine) handleSyncConflict(ev protocol.SyncConflict) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.log.WithField("client_state", string(ev.ClientState)).Warn("server reported sync conflict")
	e.store.RecordConflict()
	e.applySnapshotLocked(ev.ServerState, true)
}

func (e *Engine) handlePhaseChanged(ev protocol.PhaseChanged) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.store.UpdateGamePhase(ev.Phase)
	e.store.SetTimeRemaining(ev.TimeRemaining)
}

func (e *Engine) handleVotesUpdated(ev protocol.VotesUpdated) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// A snapshot containing the local voter's own vote confirms the matching
	// pending entry.
	localID := e.store.LocalPlayerID()
	for _, v := range ev.Votes {
		if v.VoterID != localID {
			continue
		}
		target := v.TargetID
		e.ledger.ConfirmMatch(func(a *models.PendingAction) bool {
			if a.Kind != models.ActionCastVote {
				return false
			}
			raw, _ := a.Payload["target_id"].(string)
			return raw == target.String()
		})
	}
	e.store.SetVotes(ev.Votes)
	e.store.SetPendingActionCount(e.ledger.Len())
}

func (e *Engine) handlePlayerEliminated(ev protocol.PlayerEliminated) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.store.EliminatePlayer(ev.PlayerID)
}

func (e *Engine) handleGameEnded(ev protocol.GameEnded) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.store.EndGame(ev.Winner, ev.Results)
}

func (e *Engine) handleChatMessage(msg models.ChatMessage) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// Our own message coming back confirms the pending entry; the optimistic
	// copy is already displayed, so the echo is not appended a second time.
	if msg.PlayerID == e.store.LocalPlayerID() {
		confirmed := e.ledger.ConfirmMatch(func(a *models.PendingAction) bool {
			if a.Kind != models.ActionSendChat {
				return false
			}
			content, _ := a.Payload["content"].(string)
			if content != msg.Content {
				return false
			}
			gap := msg.Timestamp.Sub(a.SubmittedAt)
			if gap < 0 {
				gap = -gap
			}
			return gap <= chatEchoWindow
		})
		if confirmed != nil {
			e.store.SetPendingActionCount(e.ledger.Len())
			return
		}
		// No ledger match: either a repeat echo of a message already
		// confirmed, or one sent from another session. Only the latter is new.
		for _, m := range e.store.ChatMessages() {
			if m.PlayerID != msg.PlayerID || m.Content != msg.Content {
				continue
			}
			gap := msg.Timestamp.Sub(m.Timestamp)
			if gap < 0 {
				gap = -gap
			}
			if gap <= chatEchoWindow {
				return
			}
		}
	}
	e.store.AppendChat(msg)
}

func (e *Engine) handleSystemMessage(ev protocol.SystemMessage) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.store.AppendSystemMessage(ev.Message, ev.Kind)
}

// --- Offline flush -------------------------------------------------------

// FlushOffline drains the offline queue through the normal
// optimistic-apply-then-transmit path.
func (e *Engine) FlushOffline() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.flushOfflineLocked()
}

func (e *Engine) flushOfflineLocked() {
	if e.flushTimer != nil {
		e.flushTimer.Stop()
		e.flushTimer = nil
	}
	if e.queue.Len() == 0 || e.tr == nil {
		return
	}

	sent, err := e.queue.Flush(func(entry offline.Entry) error {
		a := entry.Action
		if err := e.store.ApplyLocalAction(a); err != nil {
			// Invalid in the current game context, e.g. voting for a target
			// eliminated while we were offline. Dropped, not retried.
			return fmt.Errorf("%w: %v", offline.ErrInvalidEntry, err)
		}
		e.ledger.Record(a)
		name, payload, perr := wirePayload(a, e.store.LocalPlayerID(), e.username)
		if perr != nil {
			return fmt.Errorf("%w: %v", offline.ErrInvalidEntry, perr)
		}
		if err := e.tr.Emit(name, payload); err != nil {
			// Not acknowledged; roll the optimistic record back so the retry
			// goes through the same path cleanly.
			e.ledger.Rollback(a.CorrelationID)
			return err
		}
		return nil
	})
	e.store.SetPendingActionCount(e.ledger.Len())

	if err != nil {
		e.log.WithError(err).WithField("sent", sent).Warn("offline flush stalled, retrying with backoff")
		delay := e.flushDelay
		e.flushDelay *= 2
		if e.flushDelay > maxFlushRetry {
			e.flushDelay = maxFlushRetry
		}
		e.flushTimer = time.AfterFunc(delay, e.FlushOffline)
		return
	}
	e.flushDelay = minFlushRetry
	if sent > 0 {
		e.log.WithField("sent", sent).Info("offline queue flushed")
	}
}

// wirePayload rebuilds the outbound wire form of a pending action.
func wirePayload(a *models.PendingAction, playerID uuid.UUID, username string) (string, interface{}, error) {
	switch a.Kind {
	case models.ActionCastVote:
		raw, _ := a.Payload["target_id"].(string)
		targetID, err := uuid.Parse(raw)
		if err != nil {
			return "", nil, fmt.Errorf("vote payload has no valid target_id")
		}
		return protocol.ActionCastVote, protocol.CastVotePayload{
			CorrelationID: a.CorrelationID,
			PlayerID:      playerID,
			TargetID:      targetID,
			Timestamp:     a.SubmittedAt,
		}, nil
	case models.ActionSendChat:
		content, _ := a.Payload["content"].(string)
		return protocol.ActionSendChat, protocol.SendChatPayload{
			CorrelationID: a.CorrelationID,
			PlayerID:      playerID,
			PlayerName:    username,
			Content:       content,
			Kind:          string(models.ChatPlayer),
			Timestamp:     a.SubmittedAt,
		}, nil
	case models.ActionUpdateSettings:
		return protocol.ActionUpdateSetting, map[string]interface{}{
			"correlation_id": a.CorrelationID,
			"patch":          a.Payload["patch"],
		}, nil
	}
	return "", nil, fmt.Errorf("unsupported action kind %q", a.Kind)
}
