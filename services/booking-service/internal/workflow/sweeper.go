package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/detailbook/detailbook/services/booking-service/internal/model"
)

type StaleRunLister interface {
	ListStaleRuns(ctx context.Context, before time.Time, limit int) ([]model.Run, error)
}

type SweeperConfig struct {
	// Schedule is a standard five-field cron spec or a descriptor like "@every 1m".
	Schedule   string
	StaleAfter time.Duration
	BatchSize  int
}

// Sweeper re-dispatches runs that stopped making progress, such as runs
// interrupted by a restart.
type Sweeper struct {
	store      StaleRunLister
	dispatcher Dispatcher
	logger     *slog.Logger
	staleAfter time.Duration
	batchSize  int
	now        func() time.Time
	cron       *cron.Cron
}

func NewSweeper(store StaleRunLister, dispatcher Dispatcher, logger *slog.Logger, cfg SweeperConfig) (*Sweeper, error) {
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 1m"
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 2 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	s := &Sweeper{
		store:      store,
		dispatcher: dispatcher,
		logger:     logger,
		staleAfter: cfg.StaleAfter,
		batchSize:  cfg.BatchSize,
		now:        time.Now,
		cron:       cron.New(),
	}
	if _, err := s.cron.AddFunc(cfg.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s.Sweep(ctx)
	}); err != nil {
		return nil, fmt.Errorf("sweeper schedule %q: %w", cfg.Schedule, err)
	}
	return s, nil
}

func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop waits for a running sweep to finish or for ctx to end.
func (s *Sweeper) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// Sweep dispatches stale runs and returns how many were dispatched.
func (s *Sweeper) Sweep(ctx context.Context) int {
	runs, err := s.store.ListStaleRuns(ctx, s.now().Add(-s.staleAfter), s.batchSize)
	if err != nil {
		s.logger.Error("list stale runs failed", "err", err)
		return 0
	}
	dispatched := 0
	for _, r := range runs {
		if err := s.dispatcher.Dispatch(ctx, r.ID); err != nil {
			s.logger.Warn("stale run dispatch failed", "run_id", r.ID, "err", err)
			continue
		}
		dispatched++
	}
	if dispatched > 0 {
		s.logger.Info("stale runs dispatched", "count", dispatched)
	}
	return dispatched
}
