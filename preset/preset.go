// Package preset keeps a bank of named keyer configurations and persists it as
// named scalar parameters.
//
// A Bank has Count slots and one active index. Persistence goes through the narrow
// ParamStore interface: every preset field is a uint32 or string under a key such as
// "preset.3.wpm". MemoryStore and SQLiteStore implement it.
package preset

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/arloliu/cwkeyer/errs"
	"github.com/arloliu/cwkeyer/iambic"
)

const (
	// Count is the number of preset slots.
	Count = 10
	// MaxNameLen is the longest preset name in bytes.
	MaxNameLen = 31
)

// MemoryMode is the persisted form of the dit/dah memory switches.
type MemoryMode uint8

const (
	MemoryNone MemoryMode = iota
	MemoryDit
	MemoryDah
	MemoryBoth
)

// MemoryModeOf returns the memory mode of cfg.
func MemoryModeOf(cfg iambic.Config) MemoryMode {
	var m MemoryMode
	if cfg.DitMemory {
		m |= MemoryDit
	}
	if cfg.DahMemory {
		m |= MemoryDah
	}

	return m
}

// Apply sets the memory switches of cfg.
func (m MemoryMode) Apply(cfg *iambic.Config) {
	cfg.DitMemory = m&MemoryDit != 0
	cfg.DahMemory = m&MemoryDah != 0
}

// ParseMemoryMode accepts "none", "dit", "dah" or "both".
func ParseMemoryMode(s string) (MemoryMode, error) {
	for m := MemoryNone; m <= MemoryBoth; m++ {
		if m.String() == s {
			return m, nil
		}
	}

	return 0, fmt.Errorf("unknown memory mode %q", s)
}

func (m MemoryMode) String() string {
	switch m {
	case MemoryNone:
		return "none"
	case MemoryDit:
		return "dit"
	case MemoryDah:
		return "dah"
	case MemoryBoth:
		return "both"
	default:
		return "unknown"
	}
}

// Preset is one named configuration. An empty name marks an unused slot.
type Preset struct {
	Name   string
	Config iambic.Config
}

var builtin = [Count]struct {
	name string
	wpm  uint32
}{
	{"Default", 25},
	{"Contest", 35},
	{"Slow", 15},
	{"QRS", 10},
	{"", 25}, {"", 25}, {"", 25}, {"", 25}, {"", 25}, {"", 25},
}

// Builtin returns the factory preset for slot i.
func Builtin(i int) (Preset, error) {
	if i < 0 || i >= Count {
		return Preset{}, fmt.Errorf("%w: %d", errs.ErrInvalidPresetIndex, i)
	}

	cfg := iambic.DefaultConfig()
	cfg.WPM = builtin[i].wpm

	return Preset{Name: builtin[i].name, Config: cfg}, nil
}

func validateName(name string) error {
	if len(name) > MaxNameLen || !utf8.ValidString(name) {
		return fmt.Errorf("%w: %q", errs.ErrInvalidPresetName, name)
	}

	return nil
}

// Bank holds Count presets and the active index. It is safe for concurrent use.
type Bank struct {
	mu      sync.RWMutex
	presets [Count]Preset
	active  atomic.Uint32
}

// NewBank returns a bank of factory presets with slot 0 active.
func NewBank() *Bank {
	b := &Bank{}
	for i := range b.presets {
		b.presets[i], _ = Builtin(i)
	}

	return b
}

func checkIndex(i int) error {
	if i < 0 || i >= Count {
		return fmt.Errorf("%w: %d", errs.ErrInvalidPresetIndex, i)
	}

	return nil
}

// Get returns preset i.
func (b *Bank) Get(i int) (Preset, error) {
	if err := checkIndex(i); err != nil {
		return Preset{}, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.presets[i], nil
}

// All returns a copy of every slot.
func (b *Bank) All() [Count]Preset {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.presets
}

// Set validates p and stores it in slot i.
func (b *Bank) Set(i int, p Preset) error {
	if err := checkIndex(i); err != nil {
		return err
	}
	if err := validateName(p.Name); err != nil {
		return err
	}
	if err := p.Config.Validate(); err != nil {
		return err
	}

	b.mu.Lock()
	b.presets[i] = p
	b.mu.Unlock()

	return nil
}

// SetName renames slot i.
func (b *Bank) SetName(i int, name string) error {
	if err := checkIndex(i); err != nil {
		return err
	}
	if err := validateName(name); err != nil {
		return err
	}

	b.mu.Lock()
	b.presets[i].Name = name
	b.mu.Unlock()

	return nil
}

// Copy copies slot src over slot dst.
func (b *Bank) Copy(src, dst int) error {
	if err := checkIndex(src); err != nil {
		return err
	}
	if err := checkIndex(dst); err != nil {
		return err
	}

	b.mu.Lock()
	b.presets[dst] = b.presets[src]
	b.mu.Unlock()

	return nil
}

// Reset restores slot i to its factory preset.
func (b *Bank) Reset(i int) error {
	p, err := Builtin(i)
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.presets[i] = p
	b.mu.Unlock()

	return nil
}

// Activate selects slot i.
func (b *Bank) Activate(i int) error {
	if err := checkIndex(i); err != nil {
		return err
	}
	b.active.Store(uint32(i))

	return nil
}

// ActiveIndex returns the selected slot.
func (b *Bank) ActiveIndex() int {
	return int(b.active.Load())
}

// Active returns the selected preset.
func (b *Bank) Active() Preset {
	p, _ := b.Get(b.ActiveIndex())
	return p
}
