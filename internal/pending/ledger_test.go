// internal/pending/ledger_test.go
package pending

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mafia-live/syncengine/internal/models"
)

func TestLedgerRecordAndConfirm(t *testing.T) {
	l := NewLedger(0, nil)
	a := models.NewPendingAction(models.ActionCastVote, map[string]interface{}{"target_id": uuid.New().String()})

	l.Record(a)
	require.Equal(t, 1, l.Len())

	got := l.Confirm(a.CorrelationID)
	require.NotNil(t, got)
	assert.Equal(t, models.ActionConfirmed, got.State)
	assert.Equal(t, 0, l.Len())

	assert.Nil(t, l.Confirm(a.CorrelationID), "double confirm finds nothing")
}

func TestLedgerConfirmMatch(t *testing.T) {
	l := NewLedger(0, nil)
	chat := models.NewPendingAction(models.ActionSendChat, map[string]interface{}{"content": "hello"})
	vote := models.NewPendingAction(models.ActionCastVote, map[string]interface{}{"target_id": uuid.New().String()})
	l.Record(chat)
	l.Record(vote)

	got := l.ConfirmMatch(func(a *models.PendingAction) bool {
		return a.Kind == models.ActionSendChat
	})
	require.NotNil(t, got)
	assert.Equal(t, chat.CorrelationID, got.CorrelationID)
	assert.Equal(t, 1, l.Len())
}

func TestLedgerRollback(t *testing.T) {
	l := NewLedger(0, nil)
	a := models.NewPendingAction(models.ActionCastVote, map[string]interface{}{"target_id": uuid.New().String()})
	l.Record(a)

	got := l.Rollback(a.CorrelationID)
	require.NotNil(t, got)
	assert.Equal(t, models.ActionRolledBack, got.State)
	assert.Equal(t, 0, l.Len())
}

func TestLedgerPendingPreservesSubmissionOrder(t *testing.T) {
	l := NewLedger(0, nil)
	first := models.NewPendingAction(models.ActionSendChat, map[string]interface{}{"content": "1"})
	second := models.NewPendingAction(models.ActionSendChat, map[string]interface{}{"content": "2"})
	l.Record(first)
	l.Record(second)

	got := l.Pending()
	require.Len(t, got, 2)
	assert.Equal(t, first.CorrelationID, got[0].CorrelationID)
	assert.Equal(t, second.CorrelationID, got[1].CorrelationID)
}

func TestLedgerOverdueReportsButKeepsEntries(t *testing.T) {
	l := NewLedger(10*time.Millisecond, nil)
	a := models.NewPendingAction(models.ActionCastVote, map[string]interface{}{"target_id": uuid.New().String()})
	a.SubmittedAt = time.Now().Add(-time.Second)
	l.Record(a)

	overdue := l.Overdue(time.Now())
	require.Len(t, overdue, 1)
	assert.Equal(t, a.CorrelationID, overdue[0].CorrelationID)
	assert.Equal(t, 1, l.Len(), "overdue entries stay pending, no auto-rollback")
}
