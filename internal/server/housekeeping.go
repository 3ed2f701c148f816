// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"log/slog"
	"time"
)

// Purger deletes expired records and reports how many were removed.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Housekeeper periodically removes expired codes and reset tokens.
type Housekeeper struct {
	interval time.Duration
	logger   *slog.Logger
	purgers  []Purger
}

// NewHousekeeper creates a Housekeeper. A non-positive interval disables
// the periodic run.
func NewHousekeeper(interval time.Duration, logger *slog.Logger, purgers ...Purger) *Housekeeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Housekeeper{interval: interval, logger: logger, purgers: purgers}
}

// Run purges once per interval until ctx is canceled.
func (h *Housekeeper) Run(ctx context.Context) {
	if h.interval <= 0 {
		return
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.RunOnce(ctx)
		}
	}
}

// RunOnce runs every purger a single time. Failures are logged and do not
// stop the remaining purgers.
func (h *Housekeeper) RunOnce(ctx context.Context) int64 {
	var total int64
	for _, p := range h.purgers {
		n, err := p.PurgeExpired(ctx)
		if err != nil {
			h.logger.ErrorContext(ctx, "purge_failed", "error", err)
			continue
		}
		total += n
	}
	if total > 0 {
		h.logger.InfoContext(ctx, "purged_expired", "count", total)
	}
	return total
}
