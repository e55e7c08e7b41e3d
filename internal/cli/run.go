package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/arloliu/cwkeyer"
	"github.com/arloliu/cwkeyer/engine"
	"github.com/arloliu/cwkeyer/sim"
)

// RunOptions configures a real-time run.
type RunOptions struct {
	Text       string
	ConfigPath string
	Watch      bool
}

// RunResult summarizes a real-time run.
type RunResult struct {
	Text        string `json:"text" yaml:"text"`
	Decoded     string `json:"decoded" yaml:"decoded"`
	Match       bool   `json:"match" yaml:"match"`
	WPM         uint32 `json:"wpm" yaml:"wpm"`
	Elapsed     string `json:"elapsed" yaml:"elapsed"`
	Steps       uint64 `json:"steps" yaml:"steps"`
	MissedTicks uint64 `json:"missed_ticks" yaml:"missed_ticks"`
	Faults      uint32 `json:"faults" yaml:"faults"`
	Recoveries  uint64 `json:"recoveries" yaml:"recoveries"`
	Generation  uint64 `json:"generation" yaml:"generation"`
}

// WriteText implements textWriter.
func (r RunResult) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "text\t%s\n", r.Text)
	fmt.Fprintf(tw, "decoded\t%s\n", r.Decoded)
	fmt.Fprintf(tw, "match\t%t\n", r.Match)
	fmt.Fprintf(tw, "elapsed\t%s (%d steps, %d missed ticks)\n", r.Elapsed, r.Steps, r.MissedTicks)
	fmt.Fprintf(tw, "faults\t%d, %d recovered\n", r.Faults, r.Recoveries)
	fmt.Fprintf(tw, "config\tgeneration %d, %d WPM\n", r.Generation, r.WPM)

	return tw.Flush()
}

// Run keys opts.Text through the keyer on the wall clock, with the RT, supervisor
// and background loops running as they would against hardware.
func Run(ctx context.Context, opts RunOptions, logger *slog.Logger) (RunResult, error) {
	kc, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return RunResult{}, err
	}

	script, err := sim.Paddles(opts.Text, kc.Iambic.WPM, leadInUs)
	if err != nil {
		return RunResult{}, err
	}

	h, err := cwkeyer.Open(opts.ConfigPath, script, &sim.KeyRecorder{},
		cwkeyer.WithLogger(logger),
		cwkeyer.WithWatch(opts.Watch),
		cwkeyer.WithEngineOptions(engine.WithSidetone(&sim.KeyRecorder{})),
	)
	if err != nil {
		return RunResult{}, err
	}
	defer h.Close()

	span := time.Duration(script.EndUs()+tailDits*kc.Iambic.DitDurationUs()) * time.Microsecond
	rctx, cancel := context.WithTimeout(ctx, span)
	defer cancel()

	start := time.Now()
	if err := h.Run(rctx); err != nil {
		return RunResult{}, err
	}

	k := h.Keyer()
	k.PollBackground(ctx, k.NowUs())
	tel := k.Telemetry()

	res := RunResult{
		Text:        sim.Normalize(opts.Text),
		Decoded:     k.DecodedText(),
		WPM:         h.Store().Load().Keyer.Iambic.WPM,
		Elapsed:     time.Since(start).Round(time.Millisecond).String(),
		Steps:       tel.Steps,
		MissedTicks: tel.MissedTicks,
		Faults:      tel.Fault.Count,
		Recoveries:  tel.Recoveries,
		Generation:  tel.Generation,
	}
	res.Match = res.Decoded == res.Text

	return res, nil
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := RunOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Key text through the keyer in real time",
		Long: `Run starts the keyer's real-time loops on the wall clock and feeds them scripted
paddle presses. With --watch, edits to the config file are applied while it runs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kc, err := loadConfig(opts.ConfigPath)
			if err != nil {
				return WrapExitError(ExitCommandError, "load config", err)
			}
			logger, closer, err := newLogger(rootOpts, kc.Log, cmd.ErrOrStderr())
			if err != nil {
				return WrapExitError(ExitCommandError, "logger", err)
			}
			defer closer.Close()

			res, err := Run(cmd.Context(), opts, logger)
			if err != nil {
				return WrapExitError(ExitCommandError, "run", err)
			}

			return newFormatter(rootOpts, cmd).Print(res)
		},
	}
	cmd.Flags().StringVar(&opts.Text, "text", "PARIS", "text to send")
	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "config file (defaults when empty)")
	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "reload the config file when it changes")

	return cmd
}
