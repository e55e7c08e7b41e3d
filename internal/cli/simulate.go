package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/arloliu/cwkeyer/config"
	"github.com/arloliu/cwkeyer/engine"
	"github.com/arloliu/cwkeyer/format"
	"github.com/arloliu/cwkeyer/sim"
	"github.com/arloliu/cwkeyer/timeline"
)

// leadInUs is the idle time before the first paddle press.
const leadInUs = 10_000

// tailDits is the idle time after the last press, long enough for the decoder's
// inactivity timeout to finish the last character.
const tailDits = 12

// SimulateOptions configures one simulated run.
type SimulateOptions struct {
	Text        string
	ConfigPath  string
	WPM         uint32
	Straight    bool
	RecordPath  string
	Compression string
	Encoding    string
}

// RecordInfo describes a written timeline archive.
type RecordInfo struct {
	Path    string `json:"path" yaml:"path"`
	Records int    `json:"records" yaml:"records"`
	Bytes   int    `json:"bytes" yaml:"bytes"`
}

// SimulateResult is the outcome of a simulated run.
type SimulateResult struct {
	Text            string      `json:"text" yaml:"text"`
	Decoded         string      `json:"decoded" yaml:"decoded"`
	Match           bool        `json:"match" yaml:"match"`
	Input           string      `json:"input" yaml:"input"`
	WPM             uint32      `json:"wpm" yaml:"wpm"`
	Mode            string      `json:"mode" yaml:"mode"`
	DecoderWPM      uint32      `json:"decoder_wpm" yaml:"decoder_wpm"`
	Elements        int         `json:"elements" yaml:"elements"`
	KeyDownUs       int64       `json:"key_down_us" yaml:"key_down_us"`
	DurationUs      int64       `json:"duration_us" yaml:"duration_us"`
	Ticks           uint64      `json:"ticks" yaml:"ticks"`
	Slots           uint64      `json:"slots" yaml:"slots"`
	Markers         uint64      `json:"markers" yaml:"markers"`
	CompressedTicks uint64      `json:"compressed_ticks" yaml:"compressed_ticks"`
	Faults          uint32      `json:"faults" yaml:"faults"`
	Record          *RecordInfo `json:"record,omitempty" yaml:"record,omitempty"`
}

// WriteText implements textWriter.
func (r SimulateResult) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "text\t%s\n", r.Text)
	fmt.Fprintf(tw, "decoded\t%s\n", r.Decoded)
	fmt.Fprintf(tw, "match\t%t\n", r.Match)
	fmt.Fprintf(tw, "input\t%s\n", r.Input)
	fmt.Fprintf(tw, "speed\t%d WPM, mode %s (decoder estimate %d WPM)\n", r.WPM, r.Mode, r.DecoderWPM)
	fmt.Fprintf(tw, "elements\t%d, key down %s\n", r.Elements, usString(r.KeyDownUs))
	fmt.Fprintf(tw, "duration\t%s (%d ticks)\n", usString(r.DurationUs), r.Ticks)
	fmt.Fprintf(tw, "stream\t%d slots, %d silence markers, %d idle ticks compressed\n", r.Slots, r.Markers, r.CompressedTicks)
	fmt.Fprintf(tw, "faults\t%d\n", r.Faults)
	if r.Record != nil {
		fmt.Fprintf(tw, "recorded\t%d records, %d bytes to %s\n", r.Record.Records, r.Record.Bytes, r.Record.Path)
	}

	return tw.Flush()
}

// Simulate keys opts.Text through a complete keyer in virtual time.
func Simulate(ctx context.Context, opts SimulateOptions, logger *slog.Logger) (SimulateResult, error) {
	kc, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return SimulateResult{}, err
	}
	if opts.WPM != 0 {
		kc.Iambic.WPM = opts.WPM
	}
	if opts.Straight {
		kc.Engine.StraightKey = true
	}
	kc.Engine.Decoder = true

	store, err := config.NewStore(kc)
	if err != nil {
		return SimulateResult{}, err
	}

	input := "paddles"
	build := sim.Paddles
	if opts.Straight {
		input = "straight key"
		build = sim.StraightKey
	}
	script, err := build(opts.Text, kc.Iambic.WPM, leadInUs)
	if err != nil {
		return SimulateResult{}, err
	}

	tx := &sim.KeyRecorder{}
	eopts := []engine.Option{engine.WithLogger(logger)}
	if opts.RecordPath != "" {
		c, ok := format.ParseCompression(opts.Compression)
		if !ok {
			return SimulateResult{}, fmt.Errorf("unknown compression %q", opts.Compression)
		}
		enc, ok := format.ParseEncoding(opts.Encoding)
		if !ok {
			return SimulateResult{}, fmt.Errorf("unknown encoding %q", opts.Encoding)
		}
		eopts = append(eopts,
			engine.WithRecorder(0, timeline.WithCompression(c), timeline.WithEncoding(enc)),
			engine.WithRecordStart(time.Now()))
	}

	k, err := engine.New(store, script, tx, eopts...)
	if err != nil {
		return SimulateResult{}, err
	}
	defer k.Close()

	end := script.EndUs() + tailDits*kc.Iambic.DitDurationUs()
	next := k.Simulate(ctx, 0, end)
	k.Flush()
	k.PollBackground(ctx, next)

	tel := k.Telemetry()
	intervals := tx.Intervals()
	res := SimulateResult{
		Text:            sim.Normalize(opts.Text),
		Decoded:         k.DecodedText(),
		Input:           input,
		WPM:             kc.Iambic.WPM,
		Mode:            kc.Iambic.Mode.String(),
		DecoderWPM:      tel.DecoderWPM,
		Elements:        len(intervals),
		DurationUs:      next,
		Ticks:           tel.Steps,
		Slots:           tel.Stream.Written,
		Markers:         tel.Stream.Markers,
		CompressedTicks: tel.Stream.CompressedTicks,
		Faults:          tel.Fault.Count,
	}
	res.Match = res.Decoded == res.Text
	for _, iv := range intervals {
		res.KeyDownUs += iv.Duration()
	}

	if opts.RecordPath != "" {
		data, _, err := k.FinishRecording()
		if err != nil {
			return SimulateResult{}, fmt.Errorf("finish recording: %w", err)
		}
		if err := os.WriteFile(opts.RecordPath, data, 0o644); err != nil {
			return SimulateResult{}, fmt.Errorf("write recording: %w", err)
		}
		res.Record = &RecordInfo{Path: opts.RecordPath, Records: tel.Recorded, Bytes: len(data)}
	}

	return res, nil
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := SimulateOptions{}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Key text through the keyer in virtual time and decode it",
		Long: `Simulate builds the full keyer (stream, iambic processor, hard-RT consumer,
decoder and optional timeline recorder), keys the text with scripted paddle presses
in virtual time and prints what the decoder heard.`,
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

			res, err := Simulate(cmd.Context(), opts, logger)
			if err != nil {
				return WrapExitError(ExitCommandError, "simulate", err)
			}
			if err := newFormatter(rootOpts, cmd).Print(res); err != nil {
				return err
			}
			if !res.Match {
				return &ExitError{Code: ExitFailure, Message: fmt.Sprintf("decoded %q, sent %q", res.Decoded, res.Text)}
			}

			return nil
		},
	}
	cmd.Flags().StringVar(&opts.Text, "text", "PARIS", "text to send")
	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "config file (defaults when empty)")
	cmd.Flags().Uint32Var(&opts.WPM, "wpm", 0, "override the configured speed")
	cmd.Flags().BoolVar(&opts.Straight, "straight", false, "send on the straight-key line instead of the paddles")
	cmd.Flags().StringVar(&opts.RecordPath, "record", "", "write a timeline archive to this file")
	cmd.Flags().StringVar(&opts.Compression, "compression", "zstd", "archive compression (none|zstd|s2|lz4)")
	cmd.Flags().StringVar(&opts.Encoding, "encoding", "varint", "archive encoding (raw|varint)")

	return cmd
}
