// internal/protocol/events_test.go
package protocol

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frame(t *testing.T, typ string, payload interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	data, err := json.Marshal(map[string]json.RawMessage{
		"type":    json.RawMessage(fmt.Sprintf("%q", typ)),
		"payload": raw,
	})
	require.NoError(t, err)
	return data
}

func TestDecodePhaseChanged(t *testing.T) {
	data := frame(t, "phase-changed", map[string]interface{}{
		"phase":          "night",
		"time_remaining": 90,
	})
	ev, err := Decode(data)
	require.NoError(t, err)

	pc, ok := ev.(PhaseChanged)
	require.True(t, ok)
	assert.Equal(t, "night", pc.Phase)
	assert.Equal(t, 90, pc.TimeRemaining)
	assert.Equal(t, EventPhaseChanged, pc.EventType())
}

func TestDecodePhaseChangedRequiresPhase(t *testing.T) {
	data := frame(t, "phase-changed", map[string]interface{}{"time_remaining": 90})
	_, err := Decode(data)
	require.Error(t, err)
}

func TestDecodePlayerEliminated(t *testing.T) {
	id := uuid.New()
	data := frame(t, "player-eliminated", map[string]interface{}{
		"player_id": id.String(),
		"reason":    "voted out",
	})
	ev, err := Decode(data)
	require.NoError(t, err)

	pe := ev.(PlayerEliminated)
	assert.Equal(t, id, pe.PlayerID)
	assert.Equal(t, "voted out", pe.Reason)
}

func TestDecodePlayerEliminatedRequiresID(t *testing.T) {
	data := frame(t, "player-eliminated", map[string]interface{}{"reason": "voted out"})
	_, err := Decode(data)
	require.Error(t, err)
}

func TestDecodeVotesUpdated(t *testing.T) {
	voter, target := uuid.New(), uuid.New()
	data := frame(t, "votes-updated", map[string]interface{}{
		"votes": []map[string]interface{}{
			{"voter_id": voter.String(), "target_id": target.String(), "timestamp": time.Now()},
		},
	})
	ev, err := Decode(data)
	require.NoError(t, err)

	vu := ev.(VotesUpdated)
	require.Len(t, vu.Votes, 1)
	assert.Equal(t, voter, vu.Votes[0].VoterID)
	assert.Equal(t, target, vu.Votes[0].TargetID)
}

func TestDecodeSyncResponseCarriesSnapshot(t *testing.T) {
	gameID := uuid.New()
	now := time.Now().UTC()
	data := frame(t, "sync-response", map[string]interface{}{
		"state": map[string]interface{}{
			"game_id":    gameID.String(),
			"phase":      "voting",
			"day_number": 2,
			"sync_time":  now,
		},
	})
	ev, err := Decode(data)
	require.NoError(t, err)

	sr := ev.(SyncResponse)
	assert.Equal(t, gameID, sr.State.GameID)
	assert.Equal(t, "voting", sr.State.Phase)
	assert.Equal(t, 2, sr.State.DayNumber)
	assert.WithinDuration(t, now, sr.State.SyncTime, time.Second)
}

func TestDecodeSystemMessageRequiresMessage(t *testing.T) {
	data := frame(t, "system-message", map[string]interface{}{"kind": "info"})
	_, err := Decode(data)
	require.Error(t, err)
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	data := frame(t, "server-gossip", map[string]interface{}{})
	_, err := Decode(data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server-gossip")
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("not json"))
	require.Error(t, err)

	_, err = Decode([]byte(`{"payload":{}}`))
	require.Error(t, err, "missing type must be rejected")

	_, err = Decode([]byte(`{"type":"chat-message"}`))
	require.Error(t, err, "missing payload must be rejected")
}

func TestEncodeActionRoundTrip(t *testing.T) {
	p := CastVotePayload{
		CorrelationID: uuid.New(),
		PlayerID:      uuid.New(),
		TargetID:      uuid.New(),
		Timestamp:     time.Now(),
	}
	data, err := EncodeAction(ActionCastVote, p)
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, EventType(ActionCastVote), env.Type)

	var got CastVotePayload
	require.NoError(t, json.Unmarshal(env.Payload, &got))
	assert.Equal(t, p.CorrelationID, got.CorrelationID)
	assert.Equal(t, p.TargetID, got.TargetID)
}
