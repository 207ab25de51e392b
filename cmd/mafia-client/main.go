// cmd/mafia-client/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/mafia-live/syncengine/internal/config"
	"github.com/mafia-live/syncengine/internal/engine"
	"github.com/mafia-live/syncengine/internal/httpapi"
	"github.com/mafia-live/syncengine/internal/offline"
	"github.com/mafia-live/syncengine/internal/transport"
)

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	cfg := config.FromEnv()

	queueStore := buildQueueStore(cfg, logger)
	playerID := uuid.New()
	username := os.Getenv("PLAYER_NAME")
	if username == "" {
		username = "guest-" + playerID.String()[:8]
	}

	sock := transport.NewSocket(cfg.ServerWSURL, logger)
	eng := engine.New(engine.Options{
		LocalPlayerID:       playerID,
		Username:            username,
		Transport:           sock,
		API:                 httpapi.NewClient(cfg.ServerAPIURL, logger),
		QueueStore:          queueStore,
		PendingActionMaxAge: cfg.PendingActionMaxAge,
		Log:                 logger,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	if err := eng.Connect(ctx); err != nil {
		logger.WithError(err).Warn("initial connect failed, transport will keep retrying")
	}
	cancel()

	// Periodic status line until interrupted.
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			st := eng.GetConnectionState()
			s := eng.Store()
			logger.WithFields(logrus.Fields{
				"connected":       st.Connected,
				"attempts":        st.ReconnectAttempts,
				"pending_actions": st.PendingActions,
				"resyncing":       st.IsResyncing,
				"phase":           s.CurrentPhase(),
				"day":             s.DayNumber(),
			}).Info("engine status")
			if overdue := eng.OverduePendingActions(); len(overdue) > 0 {
				logger.WithField("count", len(overdue)).Warn("pending actions overdue for confirmation")
			}
		case <-sig:
			logger.Info("shutting down")
			if err := eng.Disconnect(); err != nil {
				logger.WithError(err).Warn("disconnect failed")
			}
			return
		}
	}
}

// buildQueueStore picks the offline-queue backing: redis when configured,
// else sqlite, else memory. Persistence failures fall back to memory so a
// broken disk never blocks play.
func buildQueueStore(cfg config.Config, logger *logrus.Logger) offline.Store {
	if cfg.RedisAddr != "" {
		rs, err := offline.NewRedisStore(cfg.RedisAddr, cfg.RedisDB)
		if err == nil {
			logger.WithField("addr", cfg.RedisAddr).Info("offline queue backed by redis")
			return rs
		}
		logger.WithError(err).Warn("redis unavailable, trying sqlite")
	}
	if cfg.OfflineDBPath != "" {
		ss, err := offline.NewSqliteStore(cfg.OfflineDBPath)
		if err == nil {
			logger.WithField("path", cfg.OfflineDBPath).Info("offline queue backed by sqlite")
			return ss
		}
		logger.WithError(err).Warn("sqlite unavailable, falling back to memory")
	}
	return offline.NewMemoryStore()
}
