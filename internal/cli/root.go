// Package cli defines the punchd command tree.
package cli

import (
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "punchd",
	Short: "Attendance punch ingestion service",
	Long: `punchd receives attendance punches pushed by biometric terminals
over the iclock/ADMS push protocol, captures every raw request, and
journals normalized events into a durable append-only store.

Run the service with 'punchd serve'; 'replay', 'export', and 'seed'
are operator utilities against the data directory or a running
instance.`,
	Version: "0.1.0",
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml, /etc/punchd/config.yaml)")
}
