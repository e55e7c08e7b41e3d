package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/arloliu/cwkeyer/iambic"
)

// TimingResult holds PARIS element timings for one speed.
type TimingResult struct {
	WPM       uint32 `json:"wpm" yaml:"wpm"`
	DitUs     int64  `json:"dit_us" yaml:"dit_us"`
	DahUs     int64  `json:"dah_us" yaml:"dah_us"`
	GapUs     int64  `json:"gap_us" yaml:"gap_us"`
	CharGapUs int64  `json:"char_gap_us" yaml:"char_gap_us"`
	WordGapUs int64  `json:"word_gap_us" yaml:"word_gap_us"`
	// ParisUs is one "PARIS " word including its trailing word gap, 50 dit units.
	ParisUs int64 `json:"paris_us" yaml:"paris_us"`
}

func usString(us int64) string {
	return (time.Duration(us) * time.Microsecond).String()
}

// WriteText implements textWriter.
func (r TimingResult) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "wpm\t%d\n", r.WPM)
	fmt.Fprintf(tw, "dit\t%s\n", usString(r.DitUs))
	fmt.Fprintf(tw, "dah\t%s\n", usString(r.DahUs))
	fmt.Fprintf(tw, "element gap\t%s\n", usString(r.GapUs))
	fmt.Fprintf(tw, "char gap\t%s\n", usString(r.CharGapUs))
	fmt.Fprintf(tw, "word gap\t%s\n", usString(r.WordGapUs))
	fmt.Fprintf(tw, "PARIS\t%s\n", usString(r.ParisUs))

	return tw.Flush()
}

// Timing computes the PARIS timings at wpm.
func Timing(wpm uint32) (TimingResult, error) {
	cfg := iambic.DefaultConfig()
	cfg.WPM = wpm
	if err := cfg.Validate(); err != nil {
		return TimingResult{}, err
	}

	dit := cfg.DitDurationUs()

	return TimingResult{
		WPM:       wpm,
		DitUs:     dit,
		DahUs:     cfg.DahDurationUs(),
		GapUs:     cfg.GapDurationUs(),
		CharGapUs: 3 * dit,
		WordGapUs: 7 * dit,
		ParisUs:   50 * dit,
	}, nil
}

// NewTimingCommand creates the timing command.
func NewTimingCommand(rootOpts *RootOptions) *cobra.Command {
	var wpm uint32

	cmd := &cobra.Command{
		Use:   "timing",
		Short: "Print PARIS element timings for a speed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := Timing(wpm)
			if err != nil {
				return WrapExitError(ExitCommandError, "timing", err)
			}

			return newFormatter(rootOpts, cmd).Print(r)
		},
	}
	cmd.Flags().Uint32Var(&wpm, "wpm", iambic.DefaultConfig().WPM, "speed in words per minute")

	return cmd
}
