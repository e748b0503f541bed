package app

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"fxwatcher/internal/alerting"
)

// Check performs a single rate lookup and prints it. With Notify set the
// sample is routed through a fresh decision engine.
func (a *App) Check(ctx context.Context, opts CheckOptions) error {
	rates, err := a.newFetcher()
	if err != nil {
		return err
	}

	quote, err := rates.FetchQuote(ctx)
	if err != nil {
		return fmt.Errorf("check rate: %w", err)
	}

	threshold := decimal.NewFromFloat(a.Config.Monitor.Threshold)
	sample := alerting.RateSample{
		CurrentRate:  quote.TargetRate,
		Threshold:    threshold,
		CurrencyPair: a.Config.Monitor.Pair,
	}

	var notifier alerting.Notifier
	if opts.Notify {
		if notifier, err = a.newNotifier(); err != nil {
			return err
		}
	}
	engine, err := a.newEngine(notifier)
	if err != nil {
		return err
	}
	sample.Timestamp = engine.Now()

	fig := alerting.ComputeFigures(sample.CurrentRate, sample.Threshold)
	decision := alerting.Decide(sample, engine.State(), engine.Now())

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Pair\t%s\n", sample.CurrencyPair)
	fmt.Fprintf(writer, "Base\t%s\n", quote.Base)
	fmt.Fprintf(writer, "Date\t%s\n", quote.Date)
	fmt.Fprintf(writer, "Rate\t%s\n", fig.Rate)
	fmt.Fprintf(writer, "Threshold\t%s\n", fig.Threshold)
	fmt.Fprintf(writer, "Difference\t%s (%s)\n", fig.Difference, fig.Percentage)
	fmt.Fprintf(writer, "Decision\t%s\n", decision)
	if err := writer.Flush(); err != nil {
		return err
	}

	if !opts.Notify {
		return nil
	}

	engine.ResetDailyFlags(engine.Today())
	decision, ok := engine.Evaluate(ctx, sample)
	if !ok {
		return fmt.Errorf("%s notification failed", decision)
	}
	fmt.Fprintf(a.Out, "notification result: %s\n", decision)
	return nil
}
