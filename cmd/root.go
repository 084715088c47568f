// Package cmd defines and implements the CLI commands for the leadscan executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leadscan",
		Short: "A scanner that finds local businesses without websites.",
		Long: `leadscan runs city-by-city, category-by-category searches against a
place-search provider, records every business it finds, and flags the
ones with no website. Scans are submitted over HTTP and executed one at
a time by a background worker.`,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: environment only)")

	cmd.AddCommand(newServeCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
