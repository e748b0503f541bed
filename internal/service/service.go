package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fxwatcher/internal/alerting"
	"fxwatcher/internal/config"
	"fxwatcher/internal/metrics"
	"fxwatcher/internal/scheduler"
	"fxwatcher/internal/storage"
)

// RateSource yields the current rate after its own retries.
type RateSource interface {
	FetchWithRetry(ctx context.Context, maxAttempts int) (decimal.Decimal, bool)
}

// Service runs poll cycles: fetch, decide, notify, audit.
type Service struct {
	scheduler *scheduler.Scheduler
	source    RateSource
	engine    *alerting.Engine
	store     storage.NotificationStore
	logger    zerolog.Logger

	pair        string
	threshold   decimal.Decimal
	maxAttempts int
	recipients  []string
	locker      storage.AdvisoryLocker
	lockKey     int64
}

// New constructs the monitoring service. store may be nil.
func New(cfg *config.Config, sched *scheduler.Scheduler, source RateSource, engine *alerting.Engine, store storage.NotificationStore, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		scheduler:   sched,
		source:      source,
		engine:      engine,
		store:       store,
		logger:      logger.With().Str("component", "service").Logger(),
		pair:        cfg.Monitor.Pair,
		threshold:   decimal.NewFromFloat(cfg.Monitor.Threshold),
		maxAttempts: cfg.Monitor.MaxAttempts,
		recipients:  cfg.Alerting.Email.RecipientList(),
		locker:      locker,
		lockKey:     cfg.Scheduler.AdvisoryLockKey,
	}
}

// Run begins the polling loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	s.logger.Info().
		Str("pair", s.pair).
		Str("threshold", s.threshold.String()).
		Strs("recipients", s.recipients).
		Msg("monitoring started")
	return s.scheduler.Run(ctx, s.RunCycle)
}

// RunCycle executes one poll cycle. A failed fetch is logged and skipped,
// not returned; errors come only from locking or cancellation.
func (s *Service) RunCycle(ctx context.Context) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Msg("skip cycle because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	return s.executeCycle(ctx)
}

func (s *Service) executeCycle(ctx context.Context) error {
	s.engine.ResetDailyFlags(s.engine.Today())

	sample, ok := s.sample(ctx)
	if !ok {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.logger.Warn().Str("pair", s.pair).Msg("no rate this cycle; skipping notification check")
		return nil
	}

	decision, sent := s.engine.Evaluate(ctx, sample)
	if sent && decision != alerting.NoOp {
		s.audit(ctx, decision, sample)
	}
	return nil
}

func (s *Service) sample(ctx context.Context) (alerting.RateSample, bool) {
	rate, ok := s.source.FetchWithRetry(ctx, s.maxAttempts)
	if !ok {
		return alerting.RateSample{}, false
	}

	metrics.CurrentRate.WithLabelValues(s.pair).Set(rate.InexactFloat64())
	metrics.Threshold.WithLabelValues(s.pair).Set(s.threshold.InexactFloat64())

	s.logger.Info().
		Str("pair", s.pair).
		Str("rate", rate.StringFixed(4)).
		Str("threshold", s.threshold.StringFixed(4)).
		Bool("below_threshold", rate.LessThan(s.threshold)).
		Msg("rate observed")

	return alerting.RateSample{
		CurrentRate:  rate,
		Threshold:    s.threshold,
		Timestamp:    s.engine.Now(),
		CurrencyPair: s.pair,
	}, true
}

func (s *Service) audit(ctx context.Context, decision alerting.Decision, sample alerting.RateSample) {
	if s.store == nil {
		return
	}
	rec := storage.NotificationRecord{
		Kind:         decision.Kind().String(),
		CurrencyPair: sample.CurrencyPair,
		Rate:         sample.CurrentRate,
		Threshold:    sample.Threshold,
		SampleTS:     sample.Timestamp,
		Recipients:   s.recipients,
	}
	if _, err := s.store.InsertNotification(ctx, rec); err != nil {
		s.logger.Error().Err(err).Str("kind", rec.Kind).Msg("failed to persist notification record")
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
