// Package cli wires the tickos demo commands.
package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCmd builds the tickos command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tickos",
		Short:         "Simulated preemptible round-robin scheduler",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", "config.yml", "path to the YAML configuration")
	root.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")

	root.AddCommand(newRunCmd())
	return root
}
