package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	FetchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fxwatcher_fetch_attempts_total",
			Help: "Rate API requests by pair and outcome (ok, network, status, parse)",
		},
		[]string{"pair", "result"},
	)

	CurrentRate = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fxwatcher_current_rate",
			Help: "Most recently observed rate per pair",
		},
		[]string{"pair"},
	)

	Threshold = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fxwatcher_threshold",
			Help: "Configured alert threshold per pair",
		},
		[]string{"pair"},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fxwatcher_notifications_total",
			Help: "Notification send attempts by kind and outcome",
		},
		[]string{"kind", "result"},
	)

	CycleLastRun = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fxwatcher_cycle_last_run_timestamp",
			Help: "Unix timestamp of the last completed poll cycle",
		},
	)

	CycleDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fxwatcher_cycle_duration_seconds",
			Help:    "Poll cycle duration including retries",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)

	CycleFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fxwatcher_cycle_failures_total",
			Help: "Poll cycles that ended in an error or panic",
		},
	)
)

// ObserveCycle records the outcome of one poll cycle.
func ObserveCycle(startedAt time.Time, err error) {
	CycleDurationSeconds.Observe(time.Since(startedAt).Seconds())
	CycleLastRun.Set(float64(time.Now().Unix()))
	if err != nil {
		CycleFailuresTotal.Inc()
	}
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("metrics listener started")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
