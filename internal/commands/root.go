// Package commands implements the cellbridge command line.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ctagard/cellbridge/internal/logging"
)

// NewRootCmd builds the cellbridge command tree around log
func NewRootCmd(log *logging.Logger) (*cobra.Command, error) {
	rootCmd := &cobra.Command{
		Use:   "cellbridge",
		Short: "Debug bridge between a notebook frontend and lldb-dap",
		Long: `cellbridge connects a notebook frontend speaking the Debug Adapter Protocol
to an lldb-dap subprocess attached to the process executing the notebook cells.

Cell sources are written to content addressed files so breakpoints and stack
frames refer to stable paths instead of the compiler's input_line_<N> units.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return log.ApplyLevelFlag(cmd.Flags())
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			log.Flush()
		},
	}

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	log.AddLevelFlag(rootCmd.PersistentFlags())

	var err error
	var cmd *cobra.Command

	if cmd, err = NewServeCommand(log.Logger); cmd != nil {
		rootCmd.AddCommand(cmd)
	} else {
		return nil, fmt.Errorf("could not set up 'serve' command: %w", err)
	}

	if cmd, err = NewVersionCommand(); cmd != nil {
		rootCmd.AddCommand(cmd)
	} else {
		return nil, fmt.Errorf("could not set up 'version' command: %w", err)
	}

	return rootCmd, nil
}
