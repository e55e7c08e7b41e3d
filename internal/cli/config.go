package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/arloliu/cwkeyer/config"
)

// ValidateResult is the outcome of validating one config file.
type ValidateResult struct {
	File  string `json:"file" yaml:"file"`
	Valid bool   `json:"valid" yaml:"valid"`
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
	WPM   uint32 `json:"wpm,omitempty" yaml:"wpm,omitempty"`
	Mode  string `json:"mode,omitempty" yaml:"mode,omitempty"`
}

// ValidateResults is the output of config validate.
type ValidateResults struct {
	Files []ValidateResult `json:"files" yaml:"files"`
}

// WriteText implements textWriter.
func (r ValidateResults) WriteText(w io.Writer) error {
	for _, f := range r.Files {
		if f.Valid {
			fmt.Fprintf(w, "✓ %s: %d WPM, mode %s\n", f.File, f.WPM, f.Mode)
		} else {
			fmt.Fprintf(w, "✗ %s: %s\n", f.File, f.Error)
		}
	}

	return nil
}

type rawText []byte

func (r rawText) WriteText(w io.Writer) error {
	_, err := w.Write(r)
	return err
}

// NewConfigCommand creates the config command group.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Validate and print keyer configuration",
	}
	cmd.AddCommand(newConfigValidateCommand(rootOpts))
	cmd.AddCommand(newConfigShowCommand())

	return cmd
}

func newConfigValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>...",
		Short: "Validate YAML or TOML config files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out ValidateResults
			failed := 0
			for _, path := range args {
				res := ValidateResult{File: path}
				k, err := config.Load(path)
				if err != nil {
					res.Error = err.Error()
					failed++
				} else {
					res.Valid = true
					res.WPM = k.Iambic.WPM
					res.Mode = k.Iambic.Mode.String()
				}
				out.Files = append(out.Files, res)
			}

			if err := newFormatter(rootOpts, cmd).Print(out); err != nil {
				return err
			}
			if failed > 0 {
				return &ExitError{Code: ExitFailure, Message: fmt.Sprintf("%d of %d config files invalid", failed, len(args))}
			}

			return nil
		},
	}
}

func newConfigShowCommand() *cobra.Command {
	var (
		path string
		as   string
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := loadConfig(path)
			if err != nil {
				return WrapExitError(ExitCommandError, "load config", err)
			}

			data, err := config.Marshal(k, config.Format(as))
			if err != nil {
				return WrapExitError(ExitCommandError, "encode config", err)
			}

			return rawText(data).WriteText(cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&path, "config", "", "config file (defaults when empty)")
	cmd.Flags().StringVar(&as, "as", string(config.FormatYAML), "syntax to print (yaml|toml)")

	return cmd
}
