package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"fxwatcher/internal/app"
)

var (
	historyLimit     int
	historyPruneDays int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Display recently sent notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		if historyLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.HistoryOptions{
			Limit: historyLimit,
		}
		if historyPruneDays > 0 {
			opts.PruneBefore = time.Now().AddDate(0, 0, -historyPruneDays)
		}

		return getApp().History(cmd.Context(), opts)
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of notifications to display")
	historyCmd.Flags().IntVar(&historyPruneDays, "prune-days", 0, "Delete notifications older than this many days first")
}
