package app

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"fxwatcher/internal/alerting"
)

// TestSample is the fixed sample used by send-test: below the default
// threshold, so a fresh engine decides to alert.
func TestSample(currencyPair string) alerting.RateSample {
	return alerting.RateSample{
		CurrentRate:  decimal.RequireFromString("5.02"),
		Threshold:    decimal.RequireFromString("5.05"),
		Timestamp:    time.Date(2025, 1, 27, 10, 0, 0, 0, time.UTC),
		CurrencyPair: currencyPair,
	}
}

// SendTest pushes the fixed test sample through a fresh engine and the
// configured mail transport.
func (a *App) SendTest(ctx context.Context) error {
	notifier, err := a.newNotifier()
	if err != nil {
		return err
	}
	return a.sendTest(ctx, notifier)
}

func (a *App) sendTest(ctx context.Context, notifier alerting.Notifier) error {
	engine, err := a.newEngine(notifier)
	if err != nil {
		return err
	}

	sample := TestSample(a.Config.Monitor.Pair)
	decision, ok := engine.Evaluate(ctx, sample)
	if !ok {
		return fmt.Errorf("test %s notification failed", decision)
	}

	fmt.Fprintf(a.Out, "test notification sent: %s to %v\n", decision, a.Config.Alerting.Email.RecipientList())
	return nil
}
