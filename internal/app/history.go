package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"fxwatcher/internal/storage"
)

// History prints recent entries of the notification audit log.
func (a *App) History(ctx context.Context, opts HistoryOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show notification history")
	}
	if closeStore != nil {
		defer closeStore()
	}

	if !opts.PruneBefore.IsZero() {
		removed, err := store.DeleteNotificationsBefore(ctx, opts.PruneBefore)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "pruned %d notifications before %s\n", removed, opts.PruneBefore.UTC().Format(time.RFC3339))
	}

	return a.printHistory(ctx, store, opts)
}

func (a *App) printHistory(ctx context.Context, store storage.NotificationStore, opts HistoryOptions) error {
	records, err := store.ListRecentNotifications(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(a.Out, "no notifications found")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Sent (UTC)\tKind\tPair\tRate\tThreshold\tSample (UTC)\tRecipients")

	for _, rec := range records {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.CreatedAt.UTC().Format(time.RFC3339),
			rec.Kind,
			rec.CurrencyPair,
			rec.Rate.StringFixed(4),
			rec.Threshold.StringFixed(4),
			rec.SampleTS.UTC().Format(time.RFC3339),
			sanitizeInline(strings.Join(rec.Recipients, ", ")),
		)
	}

	return writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
