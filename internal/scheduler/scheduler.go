package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cctracker/internal/breaker"
	"cctracker/internal/domain"
)

var ErrHalted = errors.New("poll loop halted")

// Sweeper runs one pass over all mailboxes.
type Sweeper interface {
	Sweep(ctx context.Context) (*domain.SweepStats, error)
}

type Notifier interface {
	NotifyOperators(ctx context.Context, subject, body string)
}

// Scheduler runs sweeps back to back, sleeping interval after each one.
type Scheduler struct {
	sweeper  Sweeper
	interval time.Duration
	breaker  *breaker.Breaker
	notifier Notifier
	sleep    func(ctx context.Context, d time.Duration) error
	logger   *slog.Logger
}

func NewScheduler(sweeper Sweeper, interval time.Duration, brk *breaker.Breaker, notifier Notifier, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		sweeper:  sweeper,
		interval: interval,
		breaker:  brk,
		notifier: notifier,
		sleep:    sleep,
		logger:   logger.With("component", "scheduler"),
	}
}

// Start loops until ctx is cancelled or the breaker trips. A trip returns an
// error wrapping ErrHalted.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval)

	for {
		if err := s.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				s.logger.Info("scheduler stopped")
			}
			return err
		}

		if err := s.sleep(ctx, s.interval); err != nil {
			s.logger.Info("scheduler stopped")
			return err
		}
	}
}

// RunOnce performs a single sweep. Sweep-level failures are reported and
// counted by the breaker; only a trip or cancellation is returned.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	_, err := s.sweeper.Sweep(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, breaker.ErrTripped):
		s.logger.Error("circuit breaker tripped", "error", err)
		return fmt.Errorf("%w: %w", ErrHalted, err)
	case ctx.Err() != nil:
		return ctx.Err()
	}

	s.logger.Error("sweep failed", "error", err)
	s.notifier.NotifyOperators(ctx, "CCTracker Exception: "+err.Error(), err.Error())
	if s.breaker.RecordError() {
		s.logger.Error("circuit breaker tripped", "count", s.breaker.Count())
		return fmt.Errorf("%w: %w", ErrHalted, breaker.ErrTripped)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
