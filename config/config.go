// Package config loads, validates and publishes keyer configuration.
//
// A Keyer is read from YAML or TOML, chosen by file extension. Published
// configuration lives in a Store as immutable, versioned snapshots: the RT loop
// compares the generation once per tick and applies a new snapshot between ticks.
// A Watcher reloads the file on change and publishes only configurations that
// validate.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/bits"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/arloliu/cwkeyer/errs"
	"github.com/arloliu/cwkeyer/iambic"
)

// Format is a configuration file syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("%w: %q", errs.ErrUnsupportedConfigFormat, filepath.Ext(path))
	}
}

// MinMaxLag is the smallest usable hard-RT lag budget: one tick may publish a
// silence marker and a sample before the consumer runs.
const MinMaxLag = 2

// Stream sizes the keying stream and its consumers.
type Stream struct {
	// Capacity is the slot count, a power of two.
	Capacity uint64 `yaml:"capacity" toml:"capacity"`
	// MaxLag is the hard-RT consumer's lag budget in slots.
	MaxLag uint64 `yaml:"max_lag" toml:"max_lag"`
	// Headroom is where best-effort consumers land behind the producer after an
	// overrun. Zero means half the capacity.
	Headroom uint64 `yaml:"headroom" toml:"headroom"`
}

// Engine tunes the RT and supervisor loops.
type Engine struct {
	TickPeriod time.Duration `yaml:"tick_period" toml:"tick_period"`
	// RTCPU pins the RT goroutine's OS thread to a CPU. Negative disables pinning.
	RTCPU int `yaml:"rt_cpu" toml:"rt_cpu"`
	// FaultHoldoff is how long a fault stays active before the supervisor recovers.
	FaultHoldoff time.Duration `yaml:"fault_holdoff" toml:"fault_holdoff"`
	// BackgroundInterval is the polling period of best-effort consumers.
	BackgroundInterval time.Duration `yaml:"background_interval" toml:"background_interval"`
	StraightKey        bool          `yaml:"straight_key" toml:"straight_key"`
	Decoder            bool          `yaml:"decoder" toml:"decoder"`
}

// Log configures the process logger.
type Log struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
	// File, when set, receives logs through a rotating writer instead of stderr.
	File       string `yaml:"file" toml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" toml:"max_age_days"`
}

// Keyer is the complete keyer configuration.
type Keyer struct {
	Iambic iambic.Config `yaml:"iambic" toml:"iambic"`
	Stream Stream        `yaml:"stream" toml:"stream"`
	Engine Engine        `yaml:"engine" toml:"engine"`
	Log    Log           `yaml:"log" toml:"log"`
}

// Default returns the configuration used when no file is given.
func Default() Keyer {
	return Keyer{
		Iambic: iambic.DefaultConfig(),
		Stream: Stream{
			Capacity: 4096,
			MaxLag:   32,
		},
		Engine: Engine{
			TickPeriod:         time.Millisecond,
			RTCPU:              -1,
			FaultHoldoff:       100 * time.Millisecond,
			BackgroundInterval: 10 * time.Millisecond,
			StraightKey:        true,
			Decoder:            true,
		},
		Log: Log{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Validate checks every section.
func (k Keyer) Validate() error {
	if err := k.Iambic.Validate(); err != nil {
		return fmt.Errorf("iambic: %w", err)
	}

	s := k.Stream
	if s.Capacity == 0 || bits.OnesCount64(s.Capacity) != 1 {
		return fmt.Errorf("stream: %w: %d", errs.ErrInvalidCapacity, s.Capacity)
	}
	if s.MaxLag < MinMaxLag || s.MaxLag > s.Capacity {
		return fmt.Errorf("stream: %w: %d (capacity %d)", errs.ErrInvalidMaxLag, s.MaxLag, s.Capacity)
	}
	if s.Headroom >= s.Capacity {
		return fmt.Errorf("stream: %w: %d >= %d", errs.ErrInvalidHeadroom, s.Headroom, s.Capacity)
	}

	if k.Engine.TickPeriod < time.Microsecond {
		return fmt.Errorf("engine: %w: %s", errs.ErrInvalidTickPeriod, k.Engine.TickPeriod)
	}
	if k.Engine.FaultHoldoff < 0 || k.Engine.BackgroundInterval <= 0 {
		return fmt.Errorf("engine: %w: holdoff %s, background %s",
			errs.ErrInvalidTickPeriod, k.Engine.FaultHoldoff, k.Engine.BackgroundInterval)
	}

	if _, err := k.Log.SlogLevel(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if k.Log.Format != "text" && k.Log.Format != "json" {
		return fmt.Errorf("log: unknown format %q", k.Log.Format)
	}

	return nil
}

// SlogLevel parses Level ("debug", "info", "warn", "error").
func (l Log) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, err
	}

	return lvl, nil
}

// Parse decodes data over the defaults and validates the result.
func Parse(data []byte, format Format) (Keyer, error) {
	k := Default()

	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&k); err != nil && !errors.Is(err, io.EOF) {
			return Keyer{}, fmt.Errorf("decode YAML: %w", err)
		}
	case FormatTOML:
		md, err := toml.Decode(string(data), &k)
		if err != nil {
			return Keyer{}, fmt.Errorf("decode TOML: %w", err)
		}
		if undec := md.Undecoded(); len(undec) > 0 {
			return Keyer{}, fmt.Errorf("decode TOML: unknown key %q", undec[0].String())
		}
	default:
		return Keyer{}, fmt.Errorf("%w: %q", errs.ErrUnsupportedConfigFormat, format)
	}

	if err := k.Validate(); err != nil {
		return Keyer{}, err
	}

	return k, nil
}

// Load reads and parses a config file.
func Load(path string) (Keyer, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return Keyer{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Keyer{}, fmt.Errorf("read config: %w", err)
	}

	k, err := Parse(data, format)
	if err != nil {
		return Keyer{}, fmt.Errorf("%s: %w", path, err)
	}

	return k, nil
}

// Marshal encodes k in the given format.
func Marshal(k Keyer, format Format) ([]byte, error) {
	var buf bytes.Buffer

	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(k); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
	case FormatTOML:
		if err := toml.NewEncoder(&buf).Encode(k); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", errs.ErrUnsupportedConfigFormat, format)
	}

	return buf.Bytes(), nil
}
