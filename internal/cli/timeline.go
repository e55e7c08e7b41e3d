package cli

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/arloliu/cwkeyer/timeline"
)

// InspectResult describes a timeline archive.
type InspectResult struct {
	File         string   `json:"file" yaml:"file"`
	Session      string   `json:"session" yaml:"session"`
	StartTime    string   `json:"start_time" yaml:"start_time"`
	TickPeriod   string   `json:"tick_period" yaml:"tick_period"`
	Encoding     string   `json:"encoding" yaml:"encoding"`
	Compression  string   `json:"compression" yaml:"compression"`
	BigEndian    bool     `json:"big_endian" yaml:"big_endian"`
	StartIndex   uint64   `json:"start_index" yaml:"start_index"`
	Records      int      `json:"records" yaml:"records"`
	Dropped      uint32   `json:"dropped" yaml:"dropped"`
	PayloadBytes uint32   `json:"payload_bytes" yaml:"payload_bytes"`
	TotalTicks   uint64   `json:"total_ticks" yaml:"total_ticks"`
	KeyDownTicks uint64   `json:"key_down_ticks" yaml:"key_down_ticks"`
	Samples      []string `json:"samples,omitempty" yaml:"samples,omitempty"`
}

// WriteText implements textWriter.
func (r InspectResult) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "file\t%s\n", r.File)
	fmt.Fprintf(tw, "session\t%s\n", r.Session)
	fmt.Fprintf(tw, "start\t%s\n", r.StartTime)
	fmt.Fprintf(tw, "tick\t%s\n", r.TickPeriod)
	fmt.Fprintf(tw, "payload\t%s, %s, %d bytes, big endian %t\n", r.Encoding, r.Compression, r.PayloadBytes, r.BigEndian)
	fmt.Fprintf(tw, "records\t%d from index %d, %d dropped\n", r.Records, r.StartIndex, r.Dropped)
	fmt.Fprintf(tw, "ticks\t%d, key down %d\n", r.TotalTicks, r.KeyDownTicks)
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, s := range r.Samples {
		fmt.Fprintln(w, s)
	}

	return nil
}

// Inspect decodes an archive. limit caps the listed samples; 0 lists none and a
// negative limit lists all.
func Inspect(path string, data []byte, limit int) (InspectResult, error) {
	b, err := timeline.Decode(data)
	if err != nil {
		return InspectResult{}, err
	}

	h := b.Header()
	res := InspectResult{
		File:         path,
		Session:      h.SessionID.String(),
		StartTime:    h.StartTimeAsTime().UTC().Format(time.RFC3339Nano),
		TickPeriod:   h.TickPeriod().String(),
		Encoding:     h.Encoding.String(),
		Compression:  h.Compression.String(),
		BigEndian:    h.IsBigEndian(),
		StartIndex:   h.StartIndex,
		Records:      b.Len(),
		Dropped:      h.Dropped,
		PayloadBytes: h.PayloadSize,
		TotalTicks:   b.TotalTicks(),
		KeyDownTicks: b.KeyDownTicks(),
	}

	for idx, smp := range b.All() {
		if limit >= 0 && len(res.Samples) >= limit {
			break
		}
		res.Samples = append(res.Samples, fmt.Sprintf("%8d  %s", idx, smp))
	}

	return res, nil
}

// NewTimelineCommand creates the timeline command group.
func NewTimelineCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "timeline",
		Short: "Work with recorded timeline archives",
	}
	cmd.AddCommand(newTimelineInspectCommand(rootOpts))

	return cmd
}

func newTimelineInspectCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "inspect <file>",
		Short: "Verify and describe a timeline archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "read archive", err)
			}

			res, err := Inspect(args[0], data, limit)
			if err != nil {
				return WrapExitError(ExitFailure, "decode archive", err)
			}

			return newFormatter(rootOpts, cmd).Print(res)
		},
	}
	cmd.Flags().IntVar(&limit, "samples", 0, "list up to this many samples (-1 for all)")

	return cmd
}
