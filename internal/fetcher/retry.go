package fetcher

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// SleepFunc blocks for d or until ctx is done, returning ctx.Err() in the
// latter case.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc backed by a timer.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Backoff returns the wait after the zero-based failed attempt: 2^attempt
// seconds, uncapped, saturating at the largest time.Duration.
func Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= 62 {
		return time.Duration(math.MaxInt64)
	}
	secs := int64(1) << attempt
	if secs > math.MaxInt64/int64(time.Second) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(secs) * time.Second
}

// Retrier wraps a RateFetcher with bounded retries and exponential backoff.
type Retrier struct {
	fetcher     RateFetcher
	maxAttempts int
	sleep       SleepFunc
	logger      zerolog.Logger
}

// NewRetrier builds a Retrier. A nil sleep uses Sleep.
func NewRetrier(f RateFetcher, maxAttempts int, sleep SleepFunc, logger zerolog.Logger) *Retrier {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if sleep == nil {
		sleep = Sleep
	}
	return &Retrier{
		fetcher:     f,
		maxAttempts: maxAttempts,
		sleep:       sleep,
		logger:      logger.With().Str("component", "retrier").Logger(),
	}
}

// FetchWithRetry calls the fetcher up to maxAttempts times (the configured
// default when maxAttempts <= 0). It never returns an error: exhaustion or
// cancellation yields ok=false.
func (r *Retrier) FetchWithRetry(ctx context.Context, maxAttempts int) (decimal.Decimal, bool) {
	if maxAttempts <= 0 {
		maxAttempts = r.maxAttempts
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		rate, err := r.fetcher.FetchRate(ctx)
		if err == nil {
			return rate, true
		}

		if attempt == maxAttempts-1 {
			break
		}

		wait := Backoff(attempt)
		r.logger.Warn().Err(err).
			Int("attempt", attempt+1).
			Int("max_attempts", maxAttempts).
			Bool("transient", IsTransient(err)).
			Dur("retry_in", wait).
			Msg("rate fetch attempt failed, retrying")

		if err := r.sleep(ctx, wait); err != nil {
			r.logger.Info().Err(err).Int("attempt", attempt+1).Msg("retry aborted")
			return decimal.Decimal{}, false
		}
	}

	r.logger.Error().Int("max_attempts", maxAttempts).Msg("failed to get exchange rate after all attempts")
	return decimal.Decimal{}, false
}
