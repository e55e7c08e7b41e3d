package iambic

import (
	"fmt"

	"github.com/arloliu/cwkeyer/errs"
)

// Speed limits accepted by Config.Validate.
const (
	MinWPM = 5
	MaxWPM = 100
)

// parisUnitUs is the duration of one dit at 1 WPM in microseconds ("PARIS" is 50 units).
const parisUnitUs = 1_200_000

// Mode selects the squeeze-release behavior.
type Mode uint8

const (
	// ModeA stops after the element in progress when both paddles are released.
	ModeA Mode = iota
	// ModeB sends one extra element, opposite to the last, when a squeeze is released.
	ModeB
)

func (m Mode) String() string {
	switch m {
	case ModeA:
		return "A"
	case ModeB:
		return "B"
	default:
		return "unknown"
	}
}

// ParseMode accepts "A", "B", "a" or "b".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "A", "a":
		return ModeA, nil
	case "B", "b":
		return ModeB, nil
	default:
		return 0, fmt.Errorf("%w: %q", errs.ErrInvalidMode, s)
	}
}

// SqueezeMode selects when the squeeze state used for the Mode B extra element is sampled.
type SqueezeMode uint8

const (
	// LatchOff tracks squeezes that start at any point during an element.
	LatchOff SqueezeMode = iota
	// LatchOn only counts a squeeze that is already held when an element starts.
	LatchOn
)

func (m SqueezeMode) String() string {
	switch m {
	case LatchOff:
		return "latch-off"
	case LatchOn:
		return "latch-on"
	default:
		return "unknown"
	}
}

// MemoryWindow bounds, as a percentage of element duration, when a paddle press during
// an element arms its memory. The zero value is replaced by the full window.
type MemoryWindow struct {
	StartPct uint8 `yaml:"start_pct" toml:"start_pct"`
	EndPct   uint8 `yaml:"end_pct" toml:"end_pct"`
}

// FullWindow accepts presses at any point of an element.
var FullWindow = MemoryWindow{StartPct: 0, EndPct: 100}

func (w MemoryWindow) isFull() bool {
	return w.StartPct == 0 && (w.EndPct == 100 || w.EndPct == 0)
}

// Config is the keyer configuration consumed by Processor.
type Config struct {
	WPM       uint32       `yaml:"wpm" toml:"wpm"`
	Mode      Mode         `yaml:"mode" toml:"mode"`
	DitMemory bool         `yaml:"dit_memory" toml:"dit_memory"`
	DahMemory bool         `yaml:"dah_memory" toml:"dah_memory"`
	Squeeze   SqueezeMode  `yaml:"squeeze" toml:"squeeze"`
	Window    MemoryWindow `yaml:"memory_window" toml:"memory_window"`
}

// DefaultConfig returns 20 WPM, Mode B, both memories, full window.
func DefaultConfig() Config {
	return Config{
		WPM:       20,
		Mode:      ModeB,
		DitMemory: true,
		DahMemory: true,
		Squeeze:   LatchOff,
		Window:    FullWindow,
	}
}

// Validate checks the configuration before it may reach a Processor.
func (c Config) Validate() error {
	if c.WPM < MinWPM || c.WPM > MaxWPM {
		return fmt.Errorf("%w: %d (allowed %d-%d)", errs.ErrInvalidWPM, c.WPM, MinWPM, MaxWPM)
	}
	if c.Mode > ModeB {
		return fmt.Errorf("%w: %d", errs.ErrInvalidMode, c.Mode)
	}
	if c.Squeeze > LatchOn {
		return fmt.Errorf("%w: %d", errs.ErrInvalidSqueezeMode, c.Squeeze)
	}
	if !c.Window.isFull() && (c.Window.EndPct > 100 || c.Window.StartPct >= c.Window.EndPct) {
		return fmt.Errorf("%w: %d%%-%d%%", errs.ErrInvalidMemoryWindow, c.Window.StartPct, c.Window.EndPct)
	}

	return nil
}

// DitDurationUs returns the dit length in microseconds, 1_200_000 / WPM.
// It returns 0 for WPM 0, which Validate rejects.
func (c Config) DitDurationUs() int64 {
	if c.WPM == 0 {
		return 0
	}

	return parisUnitUs / int64(c.WPM)
}

// DahDurationUs returns three dit lengths.
func (c Config) DahDurationUs() int64 {
	return 3 * c.DitDurationUs()
}

// GapDurationUs returns the inter-element space, one dit length.
func (c Config) GapDurationUs() int64 {
	return c.DitDurationUs()
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	if m > ModeB {
		return nil, fmt.Errorf("%w: %d", errs.ErrInvalidMode, m)
	}

	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	v, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = v

	return nil
}

// ParseSqueezeMode accepts "latch-off" or "latch-on".
func ParseSqueezeMode(s string) (SqueezeMode, error) {
	switch s {
	case "latch-off", "off", "":
		return LatchOff, nil
	case "latch-on", "on":
		return LatchOn, nil
	default:
		return 0, fmt.Errorf("%w: %q", errs.ErrInvalidSqueezeMode, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m SqueezeMode) MarshalText() ([]byte, error) {
	if m > LatchOn {
		return nil, fmt.Errorf("%w: %d", errs.ErrInvalidSqueezeMode, m)
	}

	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *SqueezeMode) UnmarshalText(text []byte) error {
	v, err := ParseSqueezeMode(string(text))
	if err != nil {
		return err
	}
	*m = v

	return nil
}
