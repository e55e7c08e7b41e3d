// Package sample defines the unit record of the keying stream.
//
// A Sample is one of two shapes:
//
//   - a concrete sample: GPIO snapshot, local key level, remote key level and edge flags
//     relative to the previous concrete sample
//   - a silence marker: a run-length of idle ticks during which nothing changed
//
// Both shapes share a fixed 4-byte wire form (see Word). The shape is carried by an
// explicit Kind, so a marker can never be read as a concrete sample by mistake.
package sample

import (
	"fmt"

	"github.com/arloliu/cwkeyer/errs"
)

// MaxSilenceTicks is the longest idle run a single silence marker can describe.
const MaxSilenceTicks = 1<<23 - 1

// Kind tags the payload shape of a Sample.
type Kind uint8

const (
	KindConcrete Kind = iota // KindConcrete is a GPIO/key snapshot.
	KindSilence              // KindSilence is a run of unchanged ticks.
)

func (k Kind) String() string {
	switch k {
	case KindConcrete:
		return "concrete"
	case KindSilence:
		return "silence"
	default:
		return "unknown"
	}
}

// Edges records which fields of a concrete sample differ from the preceding concrete sample.
type Edges uint8

const (
	EdgeGpio   Edges = 0x01 // EdgeGpio marks a GPIO change.
	EdgeLocal  Edges = 0x02 // EdgeLocal marks a local key change.
	EdgeRemote Edges = 0x04 // EdgeRemote marks a remote key change.
	EdgeConfig Edges = 0x08 // EdgeConfig marks the first sample produced under a new configuration.

	edgeMask = EdgeGpio | EdgeLocal | EdgeRemote | EdgeConfig
)

// Has reports whether all bits of e2 are set in e.
func (e Edges) Has(e2 Edges) bool { return e&e2 == e2 }

// Sample is an immutable stream record. The zero value is an idle concrete sample
// with both keys up.
type Sample struct {
	ticks  uint32
	kind   Kind
	gpio   GpioState
	local  bool
	remote bool
	edges  Edges
}

// Concrete creates a concrete sample with no edge flags.
//
// Edge flags are assigned by the stream when the sample is pushed, relative to the
// previous concrete sample it wrote.
//
// Parameters:
//   - gpio: Input line snapshot (undefined bits are dropped)
//   - local: Local key level (true = key down)
//   - remote: Remote key level (true = key down)
//
// Returns:
//   - Sample: Concrete sample
func Concrete(gpio GpioState, local, remote bool) Sample {
	return Sample{
		kind:   KindConcrete,
		gpio:   gpio & gpioMask,
		local:  local,
		remote: remote,
	}
}

// Silence creates a silence marker covering ticks idle ticks.
//
// Returns:
//   - Sample: Silence marker
//   - error: errs.ErrInvalidSample if ticks is zero or exceeds MaxSilenceTicks
func Silence(ticks uint32) (Sample, error) {
	if ticks == 0 || ticks > MaxSilenceTicks {
		return Sample{}, fmt.Errorf("%w: silence run of %d ticks", errs.ErrInvalidSample, ticks)
	}

	return Sample{kind: KindSilence, ticks: ticks}, nil
}

// MustSilence is like Silence but panics on an out-of-range tick count.
func MustSilence(ticks uint32) Sample {
	s, err := Silence(ticks)
	if err != nil {
		panic(err)
	}

	return s
}

// Kind returns the payload shape.
func (s Sample) Kind() Kind { return s.kind }

// IsSilence reports whether s is a silence marker.
func (s Sample) IsSilence() bool { return s.kind == KindSilence }

// SilenceTicks returns the idle run length of a marker, or 0 for a concrete sample.
func (s Sample) SilenceTicks() uint32 {
	if s.kind != KindSilence {
		return 0
	}

	return s.ticks
}

// Ticks returns how many real-time ticks s covers: the run length for a marker and
// 1 for a concrete sample.
func (s Sample) Ticks() uint32 {
	if s.kind == KindSilence {
		return s.ticks
	}

	return 1
}

// Gpio returns the GPIO snapshot. It is zero for a silence marker.
func (s Sample) Gpio() GpioState { return s.gpio }

// LocalKey returns the local key level. It is false for a silence marker.
func (s Sample) LocalKey() bool { return s.local }

// RemoteKey returns the remote key level. It is false for a silence marker.
func (s Sample) RemoteKey() bool { return s.remote }

// Edges returns the edge flags of a concrete sample.
func (s Sample) Edges() Edges { return s.edges }

// HasChangeFrom reports whether s and prev differ in GPIO, local key or remote key.
// Edge flags and kind are not compared.
func (s Sample) HasChangeFrom(prev Sample) bool {
	return s.gpio != prev.gpio || s.local != prev.local || s.remote != prev.remote
}

// WithEdgesFrom returns a copy of s whose change flags are computed against prev.
// The config flag of s is preserved.
func (s Sample) WithEdgesFrom(prev Sample) Sample {
	e := s.edges & EdgeConfig
	if s.gpio != prev.gpio {
		e |= EdgeGpio
	}
	if s.local != prev.local {
		e |= EdgeLocal
	}
	if s.remote != prev.remote {
		e |= EdgeRemote
	}
	s.edges = e

	return s
}

// WithConfigChanged returns a copy of s flagged as the first sample under a new configuration.
func (s Sample) WithConfigChanged() Sample {
	if s.kind == KindConcrete {
		s.edges |= EdgeConfig
	}

	return s
}

// WithRemoteKey returns a copy of s with the remote key level replaced.
func (s Sample) WithRemoteKey(remote bool) Sample {
	if s.kind == KindConcrete {
		s.remote = remote
	}

	return s
}

func (s Sample) String() string {
	if s.kind == KindSilence {
		return fmt.Sprintf("silence(%d)", s.ticks)
	}

	return fmt.Sprintf("gpio=%s local=%t remote=%t edges=%#02x", s.gpio, s.local, s.remote, uint8(s.edges))
}
