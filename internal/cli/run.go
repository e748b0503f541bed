package cli

import (
	"github.com/spf13/cobra"

	"fxwatcher/internal/app"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the monitoring loop until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Run(cmd.Context())
	},
}

var checkNotify bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Fetch the rate once and print it",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Check(cmd.Context(), app.CheckOptions{Notify: checkNotify})
	},
}

var selfTestCmd = &cobra.Command{
	Use:   "selftest",
	Short: "Verify configuration, the rate API and message rendering",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SelfTest(cmd.Context())
	},
}

func init() {
	checkCmd.Flags().BoolVar(&checkNotify, "notify", false, "Send an alert or summary if the decision calls for one")
}
