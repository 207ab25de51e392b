// internal/offline/queue.go
package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mafia-live/syncengine/internal/models"
)

// Entry is one queued action, keyed by sequence number and queue timestamp so
// replay order survives a restart.
type Entry struct {
	Seq      uint64                `json:"seq"`
	QueuedAt time.Time             `json:"queued_at"`
	Action   *models.PendingAction `json:"action"`
}

// SendFunc transmits one entry. A nil return acknowledges it; only then is
// the entry removed from the queue.
type SendFunc func(Entry) error

// ErrInvalidEntry from a SendFunc marks the entry permanently invalid in the
// current game context; it is dropped with a logged reason and never retried.
var ErrInvalidEntry = errors.New("entry invalid in current game context")

// Queue is the durable, ordered log of actions attempted while fully
// disconnected. Entries flush strictly FIFO once connectivity returns; a
// failed flush leaves the remaining entries in place for a retry.
//
// Persistence is best-effort: if the backing store fails, the queue logs the
// error once and continues in memory for the rest of the session.
type Queue struct {
	mu  sync.Mutex
	log *logrus.Logger

	store Store
	key   string

	entries  []Entry
	nextSeq  uint64
	degraded bool
}

// NewQueue builds a queue persisted under the given key, loading any entries
// left over from a previous session.
func NewQueue(store Store, key string, log *logrus.Logger) *Queue {
	if log == nil {
		log = logrus.New()
	}
	if store == nil {
		store = NewMemoryStore()
	}
	q := &Queue{store: store, key: key, log: log, nextSeq: 1}
	q.load()
	return q
}

func (q *Queue) load() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	raw, err := q.store.Get(ctx, q.key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			q.log.WithError(err).Warn("offline queue load failed, starting empty")
			q.degraded = true
		}
		return
	}
	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		q.log.WithError(err).Warn("offline queue payload corrupt, starting empty")
		return
	}
	q.entries = entries
	for _, e := range entries {
		if e.Seq >= q.nextSeq {
			q.nextSeq = e.Seq + 1
		}
	}
	if len(entries) > 0 {
		q.log.WithField("count", len(entries)).Info("restored offline queue from storage")
	}
}

// persist writes the whole queue back under its key. Callers hold q.mu.
func (q *Queue) persist() {
	if q.degraded {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var err error
	if len(q.entries) == 0 {
		err = q.store.Remove(ctx, q.key)
	} else {
		var raw []byte
		raw, err = json.Marshal(q.entries)
		if err == nil {
			err = q.store.Set(ctx, q.key, raw)
		}
	}
	if err != nil {
		q.log.WithError(err).Warn("offline queue persistence failed, continuing in memory only")
		q.degraded = true
	}
}

// Enqueue appends an action to the log instead of transmitting it.
func (q *Queue) Enqueue(a *models.PendingAction) Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	e := Entry{Seq: q.nextSeq, QueuedAt: time.Now(), Action: a}
	q.nextSeq++
	q.entries = append(q.entries, e)
	q.persist()
	q.log.WithFields(logrus.Fields{
		"seq":  e.Seq,
		"kind": a.Kind,
	}).Info("action queued offline")
	return e
}

// Len returns the number of queued entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Flush sends queued entries strictly in FIFO order. An entry is removed only
// once send acknowledges it. ErrInvalidEntry drops the entry and continues;
// any other error stops the flush so the caller can retry with backoff.
// Returns the number of entries acknowledged.
func (q *Queue) Flush(send SendFunc) (int, error) {
	sent := 0
	for {
		q.mu.Lock()
		if len(q.entries) == 0 {
			q.mu.Unlock()
			return sent, nil
		}
		head := q.entries[0]
		q.mu.Unlock()

		err := send(head)
		switch {
		case err == nil:
			sent++
		case errors.Is(err, ErrInvalidEntry):
			q.log.WithFields(logrus.Fields{
				"seq":    head.Seq,
				"kind":   head.Action.Kind,
				"reason": err.Error(),
			}).Info("dropping permanently invalid offline entry")
		default:
			return sent, fmt.Errorf("flush stalled at seq %d: %w", head.Seq, err)
		}

		q.mu.Lock()
		if len(q.entries) > 0 && q.entries[0].Seq == head.Seq {
			q.entries = q.entries[1:]
			q.persist()
		}
		q.mu.Unlock()
	}
}
