package web

import (
	"context"
	"time"

	"crispr-agent/config"
	"crispr-agent/database"

	"go.uber.org/zap"
)

// StartSessionCleanup periodically deactivates sessions idle past the
// retention age. Runs until the context is cancelled.
func StartSessionCleanup(ctx context.Context, cfg *config.Config, store *database.PostgresStore, logger *zap.Logger) {
	if !cfg.CleanupEnabled {
		logger.Info("Session cleanup disabled by configuration")
		return
	}

	ticker := time.NewTicker(cfg.CleanupInterval)
	defer ticker.Stop()

	logger.Info("Session cleanup started",
		zap.Duration("interval", cfg.CleanupInterval),
		zap.Duration("retention_age", cfg.SessionRetentionAge))

	for {
		select {
		case <-ctx.Done():
			logger.Info("Session cleanup stopped")
			return
		case <-ticker.C:
			deactivated, err := store.DeactivateStaleSessions(ctx, cfg.SessionRetentionAge)
			if err != nil {
				logger.Error("Session cleanup pass failed", zap.Error(err))
				continue
			}
			if deactivated > 0 {
				logger.Info("Deactivated stale sessions", zap.Int64("count", deactivated))
			}
		}
	}
}
