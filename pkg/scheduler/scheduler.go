// Package scheduler fires recurring syncs from the durable schedule
// table. Schedules live in the warehouse, so they survive process
// restarts, and cancellation is a cancelled_at marker consulted before
// every firing rather than an in-memory flag.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/warebase/ferry/pkg/state"
)

// Store is the schedule persistence the scheduler polls.
type Store interface {
	ListSchedules(ctx context.Context) ([]state.Schedule, error)
	MarkScheduleFired(ctx context.Context, id string, at time.Time) error
}

// SyncFunc runs one sync for a schedule's target. The scheduler does not
// interpret failures; the sync records its own outcome.
type SyncFunc func(ctx context.Context, server, database string)

// Scheduler polls the schedule table and fires due schedules.
type Scheduler struct {
	store        Store
	run          SyncFunc
	pollInterval time.Duration
	logger       *slog.Logger
}

// New returns a scheduler polling at the given interval.
func New(store Store, run SyncFunc, pollInterval time.Duration, logger *slog.Logger) *Scheduler {
	if pollInterval <= 0 {
		pollInterval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:        store,
		run:          run,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// Run polls until the context is cancelled. Each tick fires every due
// schedule; schedules for different servers run concurrently, isolated
// from each other the same way independent processes would be.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			s.tick(ctx, now)
		}
	}
}

// tick fires every schedule that is due at now. The firing is recorded
// before the sync starts so a long run is not refired on the next tick.
func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	schedules, err := s.store.ListSchedules(ctx)
	if err != nil {
		s.logger.Error("could not list schedules", "error", err)
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, sch := range schedules {
		sch := sch
		if !sch.Due(now) {
			continue
		}
		if err := s.store.MarkScheduleFired(ctx, sch.ID, now); err != nil {
			s.logger.Error("could not mark schedule fired", "schedule", sch.ID, "error", err)
			continue
		}
		s.logger.Info("firing schedule",
			"schedule", sch.ID,
			"server", sch.ServerName,
			"database", sch.DatabaseName,
		)
		g.Go(func() error {
			s.run(gctx, sch.ServerName, sch.DatabaseName)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Error("schedule run failed", "error", err)
	}
}
