// Package cli implements the cwkeyer command line.
package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format   string // "text" | "json" | "yaml"
	LogLevel string
	LogFile  string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "yaml"}

// NewRootCommand creates the root command for the cwkeyer CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "cwkeyer",
		Short: "cwkeyer - CW keyer real-time core",
		Long:  "Run, simulate and inspect an iambic CW keyer built on a lock-free keying stream.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level, overrides the config file (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.LogFile, "log-file", "", "write logs to a rotating file instead of stderr")

	cmd.AddCommand(NewTimingCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))
	cmd.AddCommand(NewSimulateCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewTimelineCommand(opts))
	cmd.AddCommand(NewPresetCommand(opts))

	return cmd
}
