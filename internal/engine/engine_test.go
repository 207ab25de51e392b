// internal/engine/engine_test.go
package engine

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mafia-live/syncengine/internal/models"
	"github.com/mafia-live/syncengine/internal/offline"
	"github.com/mafia-live/syncengine/internal/protocol"
	"github.com/mafia-live/syncengine/internal/store"
	"github.com/mafia-live/syncengine/internal/transport"
)

type emittedFrame struct {
	name    string
	payload interface{}
}

// fakeTransport records emits and lets tests inject decoded server events
// through the handlers the engine registered.
type fakeTransport struct {
	connected bool
	handlers  map[protocol.EventType]transport.Handler
	emitted   []emittedFrame
	emitErr   error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		connected: true,
		handlers:  make(map[protocol.EventType]transport.Handler),
	}
}

func (f *fakeTransport) Connect(ctx context.Context) error { f.connected = true; return nil }

func (f *fakeTransport) Disconnect() error { f.connected = false; return nil }

func (f *fakeTransport) Emit(name string, payload interface{}) error {
	if f.emitErr != nil {
		return f.emitErr
	}
	f.emitted = append(f.emitted, emittedFrame{name: name, payload: payload})
	return nil
}

func (f *fakeTransport) On(ev protocol.EventType, h transport.Handler) { f.handlers[ev] = h }
func (f *fakeTransport) Off(ev protocol.EventType)                    { delete(f.handlers, ev) }
func (f *fakeTransport) IsConnected() bool                            { return f.connected }

func (f *fakeTransport) ConnectionState() transport.ConnectionState {
	return transport.ConnectionState{Connected: f.connected}
}

func (f *fakeTransport) deliver(t *testing.T, ev protocol.ServerEvent) {
	t.Helper()
	h, ok := f.handlers[ev.EventType()]
	require.True(t, ok, "no handler registered for %s", ev.EventType())
	h(ev)
}

func (f *fakeTransport) framesNamed(name string) []emittedFrame {
	var out []emittedFrame
	for _, fr := range f.emitted {
		if fr.name == name {
			out = append(out, fr)
		}
	}
	return out
}

func setupEngine(t *testing.T) (*Engine, *fakeTransport, *models.Player, *models.Player) {
	t.Helper()

	local := models.NewPlayer(uuid.New(), "alice")
	other := models.NewPlayer(uuid.New(), "bob")

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	tr := newFakeTransport()
	e := New(Options{
		LocalPlayerID: local.ID,
		Username:      local.Username,
		Transport:     tr,
		QueueStore:    offline.NewMemoryStore(),
		Log:           log,
	})

	e.Store().SetGameState(protocol.GameSnapshot{
		GameID:    uuid.New(),
		Phase:     "day",
		DayNumber: 1,
		Players:   []*models.Player{local, other},
	})
	return e, tr, local, other
}

func inGameSnapshot(local, other *models.Player, mutate func(*protocol.GameSnapshot)) protocol.GameSnapshot {
	snap := protocol.GameSnapshot{
		GameID:    uuid.New(),
		Phase:     "day",
		DayNumber: 1,
		Players: []*models.Player{
			models.NewPlayer(local.ID, local.Username),
			models.NewPlayer(other.ID, other.Username),
		},
		SyncTime: time.Now(),
	}
	if mutate != nil {
		mutate(&snap)
	}
	return snap
}

func TestCastVoteEmitsAndTracksPending(t *testing.T) {
	e, tr, _, other := setupEngine(t)

	require.NoError(t, e.CastVote(other.ID))

	frames := tr.framesNamed(protocol.ActionCastVote)
	require.Len(t, frames, 1)
	p, ok := frames[0].payload.(protocol.CastVotePayload)
	require.True(t, ok)
	assert.Equal(t, other.ID, p.TargetID)

	votes := e.Store().Votes()
	require.Len(t, votes, 1, "vote applied optimistically")
	assert.Equal(t, other.ID, votes[0].TargetID)

	status := e.Store().SyncStatus()
	assert.Equal(t, 1, status.PendingActions)
}

func TestCastVoteRejectedWithoutMutation(t *testing.T) {
	e, tr, _, other := setupEngine(t)
	e.Store().EliminatePlayer(other.ID)

	err := e.CastVote(other.ID)
	require.ErrorIs(t, err, store.ErrTargetInvalid)

	assert.Empty(t, tr.emitted, "rejected action never reaches the wire")
	assert.Empty(t, e.Store().Votes())
	assert.Equal(t, 0, e.Store().SyncStatus().PendingActions)
}

func TestActionsQueueWhileDisconnected(t *testing.T) {
	e, tr, _, _ := setupEngine(t)
	tr.emitErr = transport.ErrNotConnected

	require.NoError(t, e.SendChat("anyone there?"))

	assert.Empty(t, tr.emitted)
	assert.Len(t, e.Store().ChatMessages(), 1, "optimistic apply happens even offline")
	assert.Equal(t, 1, e.queue.Len(), "action diverted into the offline queue")
}

func TestFlushOfflineSendsWithoutDuplicating(t *testing.T) {
	e, tr, _, _ := setupEngine(t)

	tr.emitErr = transport.ErrNotConnected
	require.NoError(t, e.SendChat("queued while offline"))
	require.Equal(t, 1, e.queue.Len())

	tr.emitErr = nil
	e.FlushOffline()

	assert.Equal(t, 0, e.queue.Len())
	frames := tr.framesNamed(protocol.ActionSendChat)
	require.Len(t, frames, 1)
	assert.Len(t, e.Store().ChatMessages(), 1, "flush must not re-append the optimistic message")
	assert.Equal(t, 1, e.ledger.Len(), "flushed entry stays pending until the server echoes it")
}

func TestVotesUpdatedConfirmsPendingVote(t *testing.T) {
	e, tr, local, other := setupEngine(t)

	require.NoError(t, e.CastVote(other.ID))
	require.Equal(t, 1, e.ledger.Len())

	tr.deliver(t, protocol.VotesUpdated{
		Votes: []models.Vote{models.NewVote(local.ID, other.ID)},
	})

	assert.Equal(t, 0, e.ledger.Len(), "echoed vote confirms the pending entry")
	assert.Equal(t, 0, e.Store().SyncStatus().PendingActions)
	require.Len(t, e.Store().Votes(), 1)
}

func TestChatEchoConfirmsWithoutDuplicate(t *testing.T) {
	e, tr, local, _ := setupEngine(t)

	require.NoError(t, e.SendChat("hello"))
	require.Len(t, e.Store().ChatMessages(), 1)
	require.Equal(t, 1, e.ledger.Len())

	tr.deliver(t, protocol.ChatMessageEvent{Message: models.ChatMessage{
		ID:         uuid.New(),
		PlayerID:   local.ID,
		PlayerName: local.Username,
		Content:    "hello",
		Type:       models.ChatPlayer,
		Timestamp:  time.Now(),
	}})

	assert.Equal(t, 0, e.ledger.Len(), "own echo confirms the pending chat")
	assert.Len(t, e.Store().ChatMessages(), 1, "echo is not appended a second time")
}

func TestChatFromOthersIsAppended(t *testing.T) {
	e, tr, _, other := setupEngine(t)

	tr.deliver(t, protocol.ChatMessageEvent{Message: models.ChatMessage{
		ID:         uuid.New(),
		PlayerID:   other.ID,
		PlayerName: other.Username,
		Content:    "who do we vote for?",
		Type:       models.ChatPlayer,
		Timestamp:  time.Now(),
	}})

	msgs := e.Store().ChatMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, other.ID, msgs[0].PlayerID)
}

func TestReconnectCompletesOnlyAfterSyncResponse(t *testing.T) {
	e, tr, local, other := setupEngine(t)

	e.onTransportDisconnected(nil)
	status := e.Store().SyncStatus()
	assert.False(t, status.Connected)
	assert.Equal(t, "Connection lost", status.ConnectionError)

	e.onTransportConnected()
	require.Len(t, tr.framesNamed(protocol.ActionRequestSync), 1)
	status = e.Store().SyncStatus()
	assert.True(t, status.IsResyncing)
	assert.False(t, status.Connected, "transport-level dial alone does not mark us connected")

	tr.deliver(t, protocol.SyncResponse{State: inGameSnapshot(local, other, nil)})
	status = e.Store().SyncStatus()
	assert.True(t, status.Connected)
	assert.False(t, status.IsResyncing)
	assert.Empty(t, status.ConnectionError)
	assert.Equal(t, 0, status.ReconnectAttempts)
}

func TestSyncResponseFlushesOfflineQueue(t *testing.T) {
	e, tr, local, other := setupEngine(t)

	tr.emitErr = transport.ErrNotConnected
	require.NoError(t, e.SendChat("sent while offline"))
	require.Equal(t, 1, e.queue.Len())

	tr.emitErr = nil
	tr.deliver(t, protocol.SyncResponse{State: inGameSnapshot(local, other, nil)})

	assert.Equal(t, 0, e.queue.Len(), "sync completion drains the offline queue")
	assert.Len(t, tr.framesNamed(protocol.ActionSendChat), 1)
}

func TestSyncConflictBumpsCounterAndAppliesServerState(t *testing.T) {
	e, tr, local, other := setupEngine(t)

	tr.deliver(t, protocol.SyncConflict{
		ServerState: inGameSnapshot(local, other, func(sn *protocol.GameSnapshot) {
			sn.Phase = "night"
			sn.DayNumber = 4
		}),
	})

	status := e.Store().SyncStatus()
	assert.Equal(t, 1, status.Conflicts)
	assert.Equal(t, store.PhaseNight, e.Store().CurrentPhase())
	assert.Equal(t, 4, e.Store().DayNumber())
}

func TestStaleSnapshotLeavesStateUntouched(t *testing.T) {
	e, tr, local, other := setupEngine(t)

	current := inGameSnapshot(local, other, func(sn *protocol.GameSnapshot) {
		sn.DayNumber = 3
	})
	tr.deliver(t, protocol.GameStateUpdate{State: current})
	require.Equal(t, 3, e.Store().DayNumber())

	tr.deliver(t, protocol.GameStateUpdate{State: inGameSnapshot(local, other, func(sn *protocol.GameSnapshot) {
		sn.DayNumber = 99
		sn.SyncTime = current.SyncTime.Add(-time.Minute)
	})})
	assert.Equal(t, 3, e.Store().DayNumber(), "older snapshot must be discarded")
}

func TestServerEventHandlersMutateStore(t *testing.T) {
	e, tr, _, other := setupEngine(t)

	tr.deliver(t, protocol.PhaseChanged{Phase: "voting", TimeRemaining: 60})
	assert.Equal(t, store.PhaseVoting, e.Store().CurrentPhase())
	assert.Equal(t, 60, e.Store().TimeRemaining())

	tr.deliver(t, protocol.PlayerEliminated{PlayerID: other.ID, Reason: "voted out"})
	require.Len(t, e.Store().EliminatedPlayers(), 1)

	tr.deliver(t, protocol.SystemMessage{Message: "Night falls", Kind: "info"})
	msgs := e.Store().ChatMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, models.ChatSystem, msgs[0].Type)

	tr.deliver(t, protocol.GameEnded{
		Winner:  "mafia",
		Results: map[string]string{other.ID.String(): "mafia"},
	})
	assert.Equal(t, "mafia", e.Store().Winner())
}

func TestReplayedVoteRetransmitsAfterSync(t *testing.T) {
	e, tr, local, other := setupEngine(t)

	require.NoError(t, e.CastVote(other.ID))
	require.Len(t, tr.framesNamed(protocol.ActionCastVote), 1)

	// The sync snapshot never saw our vote; the engine re-applies it and
	// transmits it again.
	tr.deliver(t, protocol.SyncResponse{State: inGameSnapshot(local, other, nil)})

	assert.Len(t, tr.framesNamed(protocol.ActionCastVote), 2)
	assert.Equal(t, 1, e.ledger.Len(), "replayed vote remains pending")
	require.Len(t, e.Store().Votes(), 1)
}

func TestQueuedSettingsActionSurvivesRestart(t *testing.T) {
	local := models.NewPlayer(uuid.New(), "alice")
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	persisted := offline.NewMemoryStore()

	tr := newFakeTransport()
	tr.emitErr = transport.ErrNotConnected
	e := New(Options{
		LocalPlayerID: local.ID,
		Username:      local.Username,
		Transport:     tr,
		QueueStore:    persisted,
		Log:           log,
	})
	e.Store().SetRoom(&models.Room{ID: uuid.New(), HostID: local.ID})

	maxPlayers := 12
	require.NoError(t, e.UpdateRoomSettings(models.RoomSettingsPatch{MaxPlayers: &maxPlayers}))
	require.Equal(t, 1, e.queue.Len())

	tr2 := newFakeTransport()
	e2 := New(Options{
		LocalPlayerID: local.ID,
		Username:      local.Username,
		Transport:     tr2,
		QueueStore:    persisted,
		Log:           log,
	})
	e2.Store().SetRoom(&models.Room{ID: uuid.New(), HostID: local.ID})
	require.Equal(t, 1, e2.queue.Len(), "queued entry reloads after restart")

	e2.FlushOffline()

	assert.Equal(t, 0, e2.queue.Len(), "reloaded settings action flushes, not drops")
	require.Len(t, tr2.framesNamed(protocol.ActionUpdateSetting), 1)
	assert.Equal(t, 12, e2.Store().CurrentRoom().Settings.MaxPlayers)
}

func TestRepeatedChatEchoDoesNotDuplicate(t *testing.T) {
	e, tr, local, _ := setupEngine(t)

	require.NoError(t, e.SendChat("hello"))
	echo := protocol.ChatMessageEvent{Message: models.ChatMessage{
		ID:         uuid.New(),
		PlayerID:   local.ID,
		PlayerName: local.Username,
		Content:    "hello",
		Type:       models.ChatPlayer,
		Timestamp:  time.Now(),
	}}

	tr.deliver(t, echo)
	require.Equal(t, 0, e.ledger.Len(), "first echo confirms the pending entry")

	tr.deliver(t, echo)
	assert.Len(t, e.Store().ChatMessages(), 1, "a repeated echo adds nothing")
}

func TestGetConnectionStateReflectsTransport(t *testing.T) {
	e, tr, _, _ := setupEngine(t)

	assert.True(t, e.GetConnectionState().Connected)
	tr.connected = false
	assert.False(t, e.GetConnectionState().Connected)
}
