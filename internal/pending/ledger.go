// internal/pending/ledger.go
package pending

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mafia-live/syncengine/internal/models"
)

// Ledger tracks locally-initiated actions between optimistic apply and server
// confirmation. Entries move pending -> confirmed (removed) when an
// authoritative event echoes them, or pending -> rolled back (removed) when
// the resolver discards them. Entries past MaxAge stay pending; they are only
// reported, never auto-rolled-back.
type Ledger struct {
	mu  sync.Mutex
	log *logrus.Logger

	entries []*models.PendingAction
	maxAge  time.Duration
}

// NewLedger builds an empty ledger. maxAge bounds how long an entry may sit
// unconfirmed before Overdue reports it; zero means 30 seconds.
func NewLedger(maxAge time.Duration, log *logrus.Logger) *Ledger {
	if log == nil {
		log = logrus.New()
	}
	if maxAge <= 0 {
		maxAge = 30 * time.Second
	}
	return &Ledger{log: log, maxAge: maxAge}
}

// Record registers an action before it is transmitted. Recording the same
// correlation id twice is a no-op, so replays cannot double-count.
func (l *Ledger) Record(a *models.PendingAction) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, existing := range l.entries {
		if existing.CorrelationID == a.CorrelationID {
			return
		}
	}
	a.State = models.ActionPending
	l.entries = append(l.entries, a)
	l.log.WithFields(logrus.Fields{
		"correlation_id": a.CorrelationID,
		"kind":           a.Kind,
	}).Debug("pending action recorded")
}

// Confirm removes the entry with the given correlation id, returning it, or
// nil when no such entry is pending.
func (l *Ledger) Confirm(id uuid.UUID) *models.PendingAction {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, a := range l.entries {
		if a.CorrelationID == id {
			a.State = models.ActionConfirmed
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			return a
		}
	}
	return nil
}

// ConfirmMatch removes and returns the first pending entry the predicate
// accepts. Used for echoes that carry no correlation id, e.g. a votes-updated
// snapshot containing the local voter's own vote.
func (l *Ledger) ConfirmMatch(match func(*models.PendingAction) bool) *models.PendingAction {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, a := range l.entries {
		if match(a) {
			a.State = models.ActionConfirmed
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			return a
		}
	}
	return nil
}

// Rollback removes the entry with the given correlation id, marking it rolled
// back.
func (l *Ledger) Rollback(id uuid.UUID) *models.PendingAction {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, a := range l.entries {
		if a.CorrelationID == id {
			a.State = models.ActionRolledBack
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			l.log.WithFields(logrus.Fields{
				"correlation_id": a.CorrelationID,
				"kind":           a.Kind,
			}).Info("pending action rolled back")
			return a
		}
	}
	return nil
}

// Pending returns the outstanding entries in submission order.
func (l *Ledger) Pending() []*models.PendingAction {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*models.PendingAction(nil), l.entries...)
}

// Len returns the number of outstanding entries, feeding the pending-action
// counter in SyncState.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Overdue returns entries that have sat unconfirmed longer than the ledger's
// age bound. They remain in the ledger.
func (l *Ledger) Overdue(now time.Time) []*models.PendingAction {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*models.PendingAction
	for _, a := range l.entries {
		if now.Sub(a.SubmittedAt) > l.maxAge {
			out = append(out, a)
		}
	}
	return out
}
