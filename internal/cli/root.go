// Package cli implements the bankd command tree.
package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "bankd",
	Short: "Event-sourced bank account service",
	Long: `bankd manages bank accounts whose state is derived from append-only
event streams. Deposits, withdrawals, and two-account transfers run as
asynchronous commands coordinated by saga process managers; a transfer
either fully completes or is compensated.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}
