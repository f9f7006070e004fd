package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

// Sweeper periodically drops expired sessions from a store.
type Sweeper struct {
	scheduler *gocron.Scheduler
	store     Store
	interval  time.Duration
	logger    *slog.Logger
}

// NewSweeper creates a sweeper; call Start to schedule it.
func NewSweeper(store Store, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		scheduler: gocron.NewScheduler(time.UTC),
		store:     store,
		interval:  interval,
		logger:    logger,
	}
}

// Start schedules the sweep job and runs it once immediately.
func (s *Sweeper) Start() error {
	_, err := s.scheduler.Every(s.interval).SingletonMode().Do(s.sweep)
	if err != nil {
		return fmt.Errorf("schedule session sweep: %w", err)
	}
	s.scheduler.StartAsync()
	return nil
}

// Stop cancels future sweeps.
func (s *Sweeper) Stop() {
	s.scheduler.Stop()
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	n, err := s.store.Sweep(ctx)
	if err != nil {
		s.logger.Error("session sweep failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("expired sessions removed", "count", n)
	}
}
