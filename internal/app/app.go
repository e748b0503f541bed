package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"fxwatcher/internal/alerting"
	"fxwatcher/internal/config"
	"fxwatcher/internal/fetcher"
	"fxwatcher/internal/metrics"
	"fxwatcher/internal/pair"
	"fxwatcher/internal/scheduler"
	"fxwatcher/internal/service"
	"fxwatcher/internal/storage"
	"fxwatcher/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Out    io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout}
}

func (a *App) newFetcher() (*fetcher.ExchangeRate, error) {
	p, err := pair.Lookup(a.Config.Monitor.Pair)
	if err != nil {
		return nil, err
	}
	return fetcher.NewExchangeRate(fetcher.ExchangeRateOptions{
		URL:       a.Config.Monitor.APIURL,
		APIKey:    a.Config.Monitor.APIKey,
		Timeout:   a.Config.Monitor.Timeout(),
		UserAgent: a.Config.Monitor.UserAgent,
		Pair:      p,
	}, a.Logger), nil
}

func (a *App) newNotifier() (alerting.Notifier, error) {
	email := a.Config.Alerting.Email
	recipients := email.RecipientList()

	switch strings.ToLower(email.Provider) {
	case "", "smtp", "gmail":
		return alerting.NewSMTPNotifier(alerting.SMTPOptions{
			Host:       email.SMTPHost,
			Port:       email.SMTPPort,
			Password:   email.AppPassword,
			From:       email.Sender,
			FromName:   email.SenderName,
			Recipients: recipients,
			Timeout:    a.Config.Monitor.Timeout(),
		}, a.Logger), nil
	case "sendgrid":
		return alerting.NewSendgridNotifier(alerting.SendgridOptions{
			APIKey:     email.SendgridAPIKey,
			From:       email.Sender,
			FromName:   email.SenderName,
			Recipients: recipients,
		}, a.Logger), nil
	default:
		return nil, fmt.Errorf("unsupported email provider %q", email.Provider)
	}
}

func (a *App) newEngine(notifier alerting.Notifier) (*alerting.Engine, error) {
	loc, err := a.Config.Alerting.Location()
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}
	return alerting.NewEngine(notifier, alerting.EngineOptions{Location: loc}, a.Logger), nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	store, err := storage.Open(ctx, a.Config.Database)
	if err != nil || store == nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

// newService wires fetcher, retrier, engine and the optional store.
func (a *App) newService(sched *scheduler.Scheduler, store *storage.Store) (*service.Service, *alerting.Engine, error) {
	rates, err := a.newFetcher()
	if err != nil {
		return nil, nil, err
	}
	notifier, err := a.newNotifier()
	if err != nil {
		return nil, nil, err
	}
	engine, err := a.newEngine(notifier)
	if err != nil {
		return nil, nil, err
	}

	retrier := fetcher.NewRetrier(rates, a.Config.Monitor.MaxAttempts, nil, a.Logger)

	var audit storage.NotificationStore
	if store != nil {
		audit = store
	}

	return service.New(a.Config, sched, retrier, engine, audit, a.Logger), engine, nil
}

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if addr := a.Config.Metrics.ListenAddr; addr != "" {
		go func() {
			if err := metrics.Serve(ctx, addr, a.Logger); err != nil {
				a.Logger.Error().Err(err).Str("addr", addr).Msg("metrics listener failed")
			}
		}()
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; notification audit log disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	sched := scheduler.New(scheduler.Options{
		Interval:      a.Config.Monitor.Interval(),
		ErrorCooldown: a.Config.Scheduler.ErrorCooldown,
		StartupDelay:  a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	svc, _, err := a.newService(sched, store)
	if err != nil {
		return err
	}

	a.Logger.Info().
		Str("version", version.Version).
		Str("pair", a.Config.Monitor.Pair).
		Int("interval_minutes", a.Config.Monitor.IntervalMinutes).
		Msg("starting monitoring service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}

// CheckOptions configure the check command.
type CheckOptions struct {
	Notify bool
}

// HistoryOptions configure the history command.
type HistoryOptions struct {
	Limit int
	// PruneBefore, when non-zero, deletes older records before listing.
	PruneBefore time.Time
}
