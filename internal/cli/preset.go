package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/arloliu/cwkeyer/iambic"
	"github.com/arloliu/cwkeyer/preset"
)

// PresetRow is one slot of the preset bank.
type PresetRow struct {
	Slot    int    `json:"slot" yaml:"slot"`
	Active  bool   `json:"active" yaml:"active"`
	Name    string `json:"name" yaml:"name"`
	WPM     uint32 `json:"wpm" yaml:"wpm"`
	Mode    string `json:"mode" yaml:"mode"`
	Memory  string `json:"memory" yaml:"memory"`
	Squeeze string `json:"squeeze" yaml:"squeeze"`
	Window  string `json:"window" yaml:"window"`
}

// PresetList is the output of the preset commands.
type PresetList struct {
	Presets []PresetRow `json:"presets" yaml:"presets"`
}

// WriteText implements textWriter.
func (l PresetList) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tSLOT\tNAME\tWPM\tMODE\tMEMORY\tSQUEEZE\tWINDOW")
	for _, p := range l.Presets {
		mark := ""
		if p.Active {
			mark = "*"
		}
		name := p.Name
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%d\t%s\t%s\t%s\t%s\n",
			mark, p.Slot, name, p.WPM, p.Mode, p.Memory, p.Squeeze, p.Window)
	}

	return tw.Flush()
}

func listBank(b *preset.Bank) PresetList {
	active := b.ActiveIndex()
	var out PresetList
	for i, p := range b.All() {
		c := p.Config
		out.Presets = append(out.Presets, PresetRow{
			Slot:    i,
			Active:  i == active,
			Name:    p.Name,
			WPM:     c.WPM,
			Mode:    c.Mode.String(),
			Memory:  preset.MemoryModeOf(c).String(),
			Squeeze: c.Squeeze.String(),
			Window:  fmt.Sprintf("%d-%d%%", c.Window.StartPct, c.Window.EndPct),
		})
	}

	return out
}

// openBank opens the parameter database and restores the bank from it. A new
// database yields the built-in presets.
func openBank(ctx context.Context, path string) (*preset.Bank, *preset.SQLiteStore, error) {
	store, err := preset.OpenSQLite(path)
	if err != nil {
		return nil, nil, err
	}

	b := preset.NewBank()
	if err := b.Restore(ctx, store); err != nil {
		store.Close()
		return nil, nil, err
	}

	return b, store, nil
}

// NewPresetCommand creates the preset command group.
func NewPresetCommand(rootOpts *RootOptions) *cobra.Command {
	var db string

	cmd := &cobra.Command{
		Use:   "preset",
		Short: "Manage keyer presets in a SQLite parameter database",
	}
	cmd.PersistentFlags().StringVar(&db, "db", "cwkeyer.db", "parameter database file")

	cmd.AddCommand(newPresetListCommand(rootOpts, &db))
	cmd.AddCommand(newPresetSaveCommand(rootOpts, &db))
	cmd.AddCommand(newPresetResetCommand(rootOpts, &db))

	return cmd
}

func newPresetListCommand(rootOpts *RootOptions, db *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, store, err := openBank(cmd.Context(), *db)
			if err != nil {
				return WrapExitError(ExitCommandError, "open presets", err)
			}
			defer store.Close()

			return newFormatter(rootOpts, cmd).Print(listBank(b))
		},
	}
}

type presetEdit struct {
	slot     int
	name     string
	wpm      uint32
	mode     string
	memory   string
	squeeze  string
	start    uint8
	end      uint8
	activate bool
}

// apply changes only the flags the user set.
func (e *presetEdit) apply(cmd *cobra.Command, p *preset.Preset) error {
	flags := cmd.Flags()
	if flags.Changed("name") {
		p.Name = e.name
	}
	if flags.Changed("wpm") {
		p.Config.WPM = e.wpm
	}
	if flags.Changed("mode") {
		m, err := iambic.ParseMode(e.mode)
		if err != nil {
			return err
		}
		p.Config.Mode = m
	}
	if flags.Changed("memory") {
		m, err := preset.ParseMemoryMode(e.memory)
		if err != nil {
			return err
		}
		m.Apply(&p.Config)
	}
	if flags.Changed("squeeze") {
		m, err := iambic.ParseSqueezeMode(e.squeeze)
		if err != nil {
			return err
		}
		p.Config.Squeeze = m
	}
	if flags.Changed("window-start") {
		p.Config.Window.StartPct = e.start
	}
	if flags.Changed("window-end") {
		p.Config.Window.EndPct = e.end
	}

	return nil
}

func newPresetSaveCommand(rootOpts *RootOptions, db *string) *cobra.Command {
	e := &presetEdit{}

	cmd := &cobra.Command{
		Use:   "save",
		Short: "Edit a preset slot and save the bank",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, store, err := openBank(ctx, *db)
			if err != nil {
				return WrapExitError(ExitCommandError, "open presets", err)
			}
			defer store.Close()

			p, err := b.Get(e.slot)
			if err != nil {
				return WrapExitError(ExitCommandError, "preset", err)
			}
			if err := e.apply(cmd, &p); err != nil {
				return WrapExitError(ExitCommandError, "preset", err)
			}
			if err := b.Set(e.slot, p); err != nil {
				return WrapExitError(ExitCommandError, "preset", err)
			}
			if e.activate {
				if err := b.Activate(e.slot); err != nil {
					return WrapExitError(ExitCommandError, "preset", err)
				}
			}
			if err := b.Save(ctx, store); err != nil {
				return WrapExitError(ExitCommandError, "save presets", err)
			}

			return newFormatter(rootOpts, cmd).Print(listBank(b))
		},
	}

	f := cmd.Flags()
	f.IntVar(&e.slot, "slot", 0, "preset slot (0-9)")
	f.StringVar(&e.name, "name", "", "preset name")
	f.Uint32Var(&e.wpm, "wpm", 0, "speed in words per minute")
	f.StringVar(&e.mode, "mode", "", "iambic mode (A|B)")
	f.StringVar(&e.memory, "memory", "", "paddle memory (none|dit|dah|both)")
	f.StringVar(&e.squeeze, "squeeze", "", "squeeze sampling (latch-off|latch-on)")
	f.Uint8Var(&e.start, "window-start", 0, "memory window start, percent of the element")
	f.Uint8Var(&e.end, "window-end", 100, "memory window end, percent of the element")
	f.BoolVar(&e.activate, "activate", false, "make the slot active")

	return cmd
}

func newPresetResetCommand(rootOpts *RootOptions, db *string) *cobra.Command {
	var slot int

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Restore a slot to its built-in preset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, store, err := openBank(ctx, *db)
			if err != nil {
				return WrapExitError(ExitCommandError, "open presets", err)
			}
			defer store.Close()

			if err := b.Reset(slot); err != nil {
				return WrapExitError(ExitCommandError, "preset", err)
			}
			if err := b.Save(ctx, store); err != nil {
				return WrapExitError(ExitCommandError, "save presets", err)
			}

			return newFormatter(rootOpts, cmd).Print(listBank(b))
		},
	}
	cmd.Flags().IntVar(&slot, "slot", 0, "preset slot (0-9)")

	return cmd
}
