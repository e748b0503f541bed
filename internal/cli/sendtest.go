package cli

import (
	"github.com/spf13/cobra"
)

var sendTestCmd = &cobra.Command{
	Use:   "send-test",
	Short: "Send a test alert email using a fixed sample",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SendTest(cmd.Context())
	},
}
