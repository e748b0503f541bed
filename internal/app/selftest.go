package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fxwatcher/internal/alerting"
	"fxwatcher/internal/storage"
)

type selfCheck struct {
	name string
	run  func(ctx context.Context) (string, error)
}

// SelfTest verifies configuration, the live rate API, message rendering and,
// when configured, the database. It returns an error if any check fails.
func (a *App) SelfTest(ctx context.Context) error {
	return a.runChecks(ctx, []selfCheck{
		{name: "configuration", run: a.checkConfig},
		{name: "rate api", run: a.checkRateAPI},
		{name: "render", run: a.checkRender},
		{name: "database", run: a.checkDatabase},
	})
}

func (a *App) runChecks(ctx context.Context, checks []selfCheck) error {
	failed := 0
	for _, c := range checks {
		detail, err := c.run(ctx)
		if err != nil {
			failed++
			fmt.Fprintf(a.Out, "[FAIL] %s: %v\n", c.name, err)
			a.Logger.Error().Err(err).Str("check", c.name).Msg("self-test check failed")
			continue
		}
		fmt.Fprintf(a.Out, "[PASS] %s: %s\n", c.name, detail)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d self-test checks failed", failed, len(checks))
	}
	fmt.Fprintf(a.Out, "all %d checks passed\n", len(checks))
	return nil
}

func (a *App) checkConfig(context.Context) (string, error) {
	if err := a.Config.Validate(); err != nil {
		return "", err
	}
	email := a.Config.Alerting.Email
	return fmt.Sprintf("pair=%s threshold=%.4f interval=%dm provider=%s recipients=%s",
		a.Config.Monitor.Pair,
		a.Config.Monitor.Threshold,
		a.Config.Monitor.IntervalMinutes,
		email.Provider,
		strings.Join(email.RecipientList(), ","),
	), nil
}

func (a *App) checkRateAPI(ctx context.Context) (string, error) {
	rates, err := a.newFetcher()
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, a.Config.Monitor.Timeout())
	defer cancel()

	quote, err := rates.FetchQuote(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s rate %s (date %s)", a.Config.Monitor.Pair, quote.TargetRate.StringFixed(4), quote.Date), nil
}

func (a *App) checkRender(context.Context) (string, error) {
	sample := TestSample(a.Config.Monitor.Pair)
	for _, kind := range []alerting.Kind{alerting.KindAlert, alerting.KindSummary} {
		body, err := alerting.RenderMessage(sample, kind, time.Now())
		if err != nil {
			return "", err
		}
		if !strings.Contains(body, "5.0200") {
			return "", fmt.Errorf("%s body is missing the rate", kind)
		}
	}
	return "alert and summary templates render", nil
}

func (a *App) checkDatabase(ctx context.Context) (string, error) {
	if a.Config.Database.DSN == "" {
		return "skipped (database.dsn not set)", nil
	}
	store, err := storage.Open(ctx, a.Config.Database)
	if err != nil {
		return "", err
	}
	defer store.Close()

	count, err := store.CountNotifications(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("connected; %d notifications recorded", count), nil
}
