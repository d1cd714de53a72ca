package main

import (
	"github.com/spf13/cobra"

	"github.com/copyleftdev/powell/internal/logging"
)

// rootOptions are the flags shared by every subcommand.
type rootOptions struct {
	logLevel  string
	logFormat string
	logger    *logging.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "powell",
		Short: "Derivative-free minimization with Powell's direction-set method",
		Long: `powell minimizes the registered test objectives from a starting point
using Powell's conjugate direction method, or gonum's Nelder-Mead for comparison.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.NewLogger(&logging.Config{
				Level:  opts.logLevel,
				Format: opts.logFormat,
				Output: "stderr",
			})
			if err != nil {
				return err
			}
			opts.logger = logger
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "text", "Log format (json, text)")

	cmd.AddCommand(newRunCmd(opts), newObjectivesCmd(), newVersionCmd())
	return cmd
}
