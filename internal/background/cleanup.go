package background

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/staffgate/internal/metrics"
)

// ThrottlePurger removes throttle records idle past the inactivity window
type ThrottlePurger interface {
	PurgeInactive(ctx context.Context) (int64, error)
}

// CleanupManager periodically sweeps inactive login throttle records
type CleanupManager struct {
	purger   ThrottlePurger
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(purger ThrottlePurger, logger *slog.Logger, interval time.Duration) *CleanupManager {
	return &CleanupManager{
		purger:   purger,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic sweep and blocks until Stop or ctx is done
func (cm *CleanupManager) Start(ctx context.Context) {
	if cm.interval <= 0 {
		cm.logger.Error("cleanup manager not started: sweep interval must be positive",
			slog.Duration("interval", cm.interval))
		return
	}

	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	deleted, err := cm.purger.PurgeInactive(cleanupCtx)
	if err != nil {
		cm.logger.Error("failed to purge inactive throttle records", slog.Any("error", err))
		return
	}

	if deleted > 0 {
		metrics.ThrottleSweepDeleted.Add(float64(deleted))
		cm.logger.Info("inactive throttle records purged", slog.Int64("rows_deleted", deleted))
	}
}

// Stop signals the cleanup manager to stop. Safe to call more than once.
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() { close(cm.stopCh) })
}
