package jobs

import (
	"context"
	"log/slog"
	"time"

	"keywordhub/internal/store"
)

// StaleDataDeleter removes logs and statistics older than a cutoff.
type StaleDataDeleter interface {
	DeleteStaleData(ctx context.Context, before time.Time) (store.CleanupResult, error)
}

// Cleanup enforces the retention window on trigger logs, execution logs
// and daily statistics.
type Cleanup struct {
	store     StaleDataDeleter
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
}

// NewCleanup creates a cleanup job keeping retentionDays of history.
func NewCleanup(st StaleDataDeleter, interval time.Duration, retentionDays int) *Cleanup {
	return &Cleanup{
		store:     st,
		interval:  interval,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		now:       time.Now,
	}
}

// Start runs immediately and then on every tick until ctx is cancelled.
func (c *Cleanup) Start(ctx context.Context) {
	slog.Info("cleanup started", "interval", c.interval, "retention", c.retention)

	c.Run(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("cleanup stopped")
			return
		case <-ticker.C:
			c.Run(ctx)
		}
	}
}

// Run deletes everything older than the retention window once.
func (c *Cleanup) Run(ctx context.Context) (store.CleanupResult, error) {
	before := c.now().Add(-c.retention)
	res, err := c.store.DeleteStaleData(ctx, before)
	if err != nil {
		slog.Error("cleanup failed", "before", before, "error", err)
		return res, err
	}
	if res.TriggerLogs+res.ExecutionLogs+res.DailyStats > 0 {
		slog.Info("cleanup removed stale data",
			"trigger_logs", res.TriggerLogs,
			"execution_logs", res.ExecutionLogs,
			"daily_stats", res.DailyStats,
		)
	}
	return res, nil
}
