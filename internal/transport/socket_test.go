// internal/transport/socket_test.go
package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialFailureReportsDisconnect(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	s := NewSocket("ws://127.0.0.1:1/game/ws", log)

	var mu sync.Mutex
	var reported error
	s.OnDisconnected = func(err error) {
		mu.Lock()
		reported = err
		mu.Unlock()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.Error(t, s.Connect(ctx))

	mu.Lock()
	assert.Error(t, reported, "failed dial must reach the disconnect callback")
	mu.Unlock()

	st := s.ConnectionState()
	assert.False(t, st.Connected)
	assert.Equal(t, 1, st.ReconnectAttempts)

	require.NoError(t, s.Disconnect(), "disconnect cancels the scheduled redial")
}

func TestEmitWithoutConnectionReturnsSentinel(t *testing.T) {
	s := NewSocket("ws://127.0.0.1:1/game/ws", nil)
	err := s.Emit("cast-vote", map[string]string{})
	require.ErrorIs(t, err, ErrNotConnected)
}
