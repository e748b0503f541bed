package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"fxwatcher/internal/fetcher"
	"fxwatcher/internal/metrics"
)

// TickFunc runs one poll cycle.
type TickFunc func(ctx context.Context) error

// Options tune scheduler behaviour.
type Options struct {
	Interval      time.Duration
	ErrorCooldown time.Duration
	StartupDelay  time.Duration
}

// Scheduler runs a cycle immediately, then sleeps the interval after a
// clean cycle or the error cooldown after a failed one.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
	wait   fetcher.SleepFunc
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	if opts.ErrorCooldown <= 0 {
		opts.ErrorCooldown = 5 * time.Minute
	}
	return &Scheduler{
		opts:   opts,
		logger: logger.With().Str("component", "scheduler").Logger(),
		wait:   fetcher.Sleep,
	}
}

// Run blocks until ctx is cancelled. Errors and panics from tick are logged
// and never end the loop.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		if err := s.wait(ctx, s.opts.StartupDelay); err != nil {
			return err
		}
	}

	s.logger.Info().
		Dur("interval", s.opts.Interval).
		Dur("error_cooldown", s.opts.ErrorCooldown).
		Msg("scheduler started")

	for cycle := 1; ; cycle++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		startedAt := time.Now()
		s.logger.Info().Int("cycle", cycle).Msg("starting monitoring cycle")
		err := s.runOnce(ctx, tick)
		metrics.ObserveCycle(startedAt, err)

		delay := s.opts.Interval
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error().Err(err).Int("cycle", cycle).Dur("cooldown", s.opts.ErrorCooldown).Msg("cycle failed; cooling down")
			delay = s.opts.ErrorCooldown
		} else {
			s.logger.Debug().Int("cycle", cycle).Dur("next_in", delay).Msg("cycle complete")
		}

		if err := s.wait(ctx, delay); err != nil {
			s.logger.Info().Msg("scheduler stopped")
			return err
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, tick TickFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panic: %v", r)
		}
	}()
	return tick(ctx)
}
