package app

import (
	"context"
	"errors"
	"time"

	"github.com/evvec/ps-tracker/internal/platform/logging"
	"github.com/evvec/ps-tracker/internal/usecase"
)

// Scheduler fires the full baseline refresh once a day at a fixed local
// hour. A failed or panicking cycle is logged and the timer keeps going.
type Scheduler struct {
	refresher *usecase.RefreshService
	hour      int
	logger    *logging.Logger
	now       func() time.Time
}

func NewScheduler(refresher *usecase.RefreshService, hour int, logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Default()
	}

	return &Scheduler{
		refresher: refresher,
		hour:      hour,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *Scheduler) Run(ctx context.Context) error {
	for {
		next := s.nextRun(s.now())
		s.logger.InfoContext(ctx, "baseline refresh scheduled", "at", next)

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		s.runOnce(ctx)
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "baseline refresh panicked", "panic", r)
		}
	}()

	result, err := s.refresher.RefreshAll(ctx)
	switch {
	case err == nil:
	case errors.Is(err, usecase.ErrPartialFailure):
		s.logger.WarnContext(ctx, "scheduled refresh committed with failures",
			"players", result.PlayerCount,
			"failed", result.FailedCount,
			"error", err,
		)
	default:
		s.logger.ErrorContext(ctx, "scheduled refresh failed", "error", err)
	}
}

// nextRun is the next occurrence of the configured hour strictly after
// now, so a refresh finishing within the same hour never double-fires.
func (s *Scheduler) nextRun(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), s.hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next
}
