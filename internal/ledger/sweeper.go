package ledger

import (
	"context"
	"log/slog"
	"time"
)

// Expirer expires overdue reservations and reports how many it changed.
type Expirer interface {
	ExpireOverdue() int
}

// RunSweeper calls ExpireOverdue on every target each interval until ctx is
// done. Expiry stays lazy without it; the sweep only returns seats of
// abandoned reservations sooner.
func RunSweeper(ctx context.Context, interval time.Duration, logger *slog.Logger, targets ...Expirer) {
	if interval <= 0 {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	logger.Info("expiry sweeper started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			logger.Info("expiry sweeper stopped")
			return
		case <-t.C:
			total := 0
			for _, e := range targets {
				total += e.ExpireOverdue()
			}
			if total > 0 {
				logger.Debug("expiry sweep", "expired", total)
			}
		}
	}
}
