// internal/pending/resolver.go
package pending

import (
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mafia-live/syncengine/internal/models"
	"github.com/mafia-live/syncengine/internal/protocol"
	"github.com/mafia-live/syncengine/internal/store"
)

// ErrStaleSnapshot marks a snapshot older than the last one applied. It
// covers two reconnect attempts racing: the late response to the superseded
// request is discarded outright.
var ErrStaleSnapshot = errors.New("snapshot is older than last applied sync")

// Resolver merges an authoritative server snapshot with the outstanding
// pending actions. The snapshot always wins for canonical fields; pending
// entries it does not reflect are replayed on top unless the new context has
// invalidated them, in which case they are dropped with a log line and a
// bump of the conflict counter.
type Resolver struct {
	log    *logrus.Logger
	store  *store.GameStateStore
	ledger *Ledger
}

// NewResolver wires a resolver to the session's store and ledger.
func NewResolver(s *store.GameStateStore, l *Ledger, log *logrus.Logger) *Resolver {
	if log == nil {
		log = logrus.New()
	}
	return &Resolver{log: log, store: s, ledger: l}
}

// Resolve applies the snapshot and reconciles the ledger against it. The
// returned entries were re-applied optimistically and must be re-transmitted
// by the caller.
func (r *Resolver) Resolve(snap protocol.GameSnapshot) ([]*models.PendingAction, error) {
	last := r.store.LastSyncTime()
	if !snap.SyncTime.IsZero() && !last.IsZero() && snap.SyncTime.Before(last) {
		r.log.WithFields(logrus.Fields{
			"snapshot_time": snap.SyncTime,
			"last_sync":     last,
		}).Warn("discarding stale snapshot")
		return nil, ErrStaleSnapshot
	}

	r.store.SetGameState(snap)
	if !snap.SyncTime.IsZero() {
		r.store.SetLastSyncTime(snap.SyncTime)
	}

	var replay []*models.PendingAction
	for _, a := range r.ledger.Pending() {
		switch a.Kind {
		case models.ActionCastVote:
			replay = r.resolveVote(snap, a, replay)
		case models.ActionSendChat:
			// Snapshots carry no chat; the optimistic message is still in the
			// store, so the entry only needs re-transmission.
			replay = append(replay, a)
		case models.ActionUpdateSettings:
			replay = append(replay, a)
		default:
			r.discard(a, "unknown pending kind")
		}
	}

	r.store.SetPendingActionCount(r.ledger.Len())
	return replay, nil
}

func (r *Resolver) resolveVote(snap protocol.GameSnapshot, a *models.PendingAction, replay []*models.PendingAction) []*models.PendingAction {
	targetID, err := payloadTarget(a)
	if err != nil {
		r.discard(a, "malformed vote payload")
		return replay
	}
	voterID := r.store.LocalPlayerID()

	// Already reflected in the snapshot: the server saw it, confirm and done.
	for _, v := range snap.Votes {
		if v.VoterID == voterID && v.TargetID == targetID {
			r.ledger.Confirm(a.CorrelationID)
			return replay
		}
	}

	// Invalidated by the new context: phase moved past voting, or the voter
	// or target died while we were away.
	if !store.Phase(snap.Phase).AllowsVoting() {
		r.discard(a, "phase no longer accepts votes")
		return replay
	}
	for _, id := range snap.Eliminated {
		if id == targetID {
			r.discard(a, "vote target eliminated")
			return replay
		}
		if id == voterID {
			r.discard(a, "voter eliminated")
			return replay
		}
	}

	// Still valid and unseen: re-apply on top of the snapshot and queue for
	// re-transmission.
	if err := r.store.ApplyLocalAction(a); err != nil {
		r.discard(a, err.Error())
		return replay
	}
	return append(replay, a)
}

// discard drops an invalidated entry. Logged, not surfaced to the user; the
// conflict counter is the only visible trace.
func (r *Resolver) discard(a *models.PendingAction, reason string) {
	r.ledger.Rollback(a.CorrelationID)
	r.store.RecordConflict()
	r.log.WithFields(logrus.Fields{
		"correlation_id": a.CorrelationID,
		"kind":           a.Kind,
		"reason":         reason,
	}).Info("discarded pending action during conflict resolution")
}

func payloadTarget(a *models.PendingAction) (uuid.UUID, error) {
	raw, ok := a.Payload["target_id"]
	if !ok {
		return uuid.Nil, errors.New("missing target_id")
	}
	switch v := raw.(type) {
	case string:
		return uuid.Parse(v)
	case uuid.UUID:
		return v, nil
	}
	return uuid.Nil, errors.New("target_id has unexpected type")
}
