// Package consumer implements the two read disciplines over a keying stream.
//
// HardRT feeds safety-relevant actuators such as the transmitter line and sidetone.
// Falling behind is a fault: it records the fault in a shared fault.State and returns
// it, and the caller must silence its actuator and wait for a supervisor to resync.
//
// BestEffort feeds decoders, recorders and telemetry. Falling behind is tolerated: an
// overrun cursor jumps forward, leaving some headroom behind the producer, and the
// skipped samples are counted as dropped.
//
// Each consumer owns a private cursor and must be ticked from one goroutine. Position,
// Lag and the counters are safe to read from other goroutines.
package consumer

import (
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"

	"github.com/arloliu/cwkeyer/errs"
	"github.com/arloliu/cwkeyer/fault"
	"github.com/arloliu/cwkeyer/internal/options"
	"github.com/arloliu/cwkeyer/sample"
	"github.com/arloliu/cwkeyer/stream"
)

// Stats is a telemetry view of one consumer.
type Stats struct {
	Name     string
	Position uint64
	Lag      uint64
	Consumed uint64
	Dropped  uint64
}

// LogValue implements slog.LogValuer.
func (s Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("name", s.Name),
		slog.Uint64("position", s.Position),
		slog.Uint64("lag", s.Lag),
		slog.Uint64("consumed", s.Consumed),
		slog.Uint64("dropped", s.Dropped),
	)
}

func newSettings(s *stream.Stream, opts []Option) (*settings, error) {
	st := &settings{headroom: s.Capacity() / 2}
	if err := options.Apply(st, opts...); err != nil {
		return nil, err
	}
	if !st.hasStartAt {
		st.startAt = s.WritePosition()
	}

	return st, nil
}

func saturate32(v uint64) uint32 {
	if v > math.MaxUint32 {
		return math.MaxUint32
	}

	return uint32(v)
}

// HardRT is a consumer whose lag budget is part of the timing contract.
type HardRT struct {
	stream   *stream.Stream
	fault    *fault.State
	maxLag   uint64
	name     string
	cursor   atomic.Uint64
	consumed atomic.Uint64
}

// NewHardRT creates a hard real-time consumer attached at the stream's write position.
//
// Parameters:
//   - s: Stream to read
//   - f: Shared fault record written on lag violations
//   - maxLag: Largest tolerated lag in slots, at least 1
//   - opts: WithStartAt, WithName
//
// Returns:
//   - *HardRT: The consumer
//   - error: errs.ErrInvalidMaxLag if maxLag is zero
func NewHardRT(s *stream.Stream, f *fault.State, maxLag uint64, opts ...Option) (*HardRT, error) {
	if maxLag == 0 {
		return nil, fmt.Errorf("%w: %d", errs.ErrInvalidMaxLag, maxLag)
	}

	st, err := newSettings(s, opts)
	if err != nil {
		return nil, err
	}

	c := &HardRT{
		stream: s,
		fault:  f,
		maxLag: maxLag,
		name:   st.name,
	}
	c.cursor.Store(st.startAt)

	return c, nil
}

// Tick reads the next sample.
//
// Returns:
//   - sample.Sample: The sample when ok is true
//   - bool: true if a sample was consumed, false if caught up or faulted
//   - error: fault.Overrun or fault.LatencyExceeded, already recorded in the fault state
//
// A faulted consumer keeps faulting on every Tick until Resync.
func (c *HardRT) Tick() (sample.Sample, bool, error) {
	idx := c.cursor.Load()
	lag := c.stream.Lag(idx)

	if lag > c.stream.Capacity() {
		c.fault.Set(fault.Overrun, saturate32(lag))
		return sample.Sample{}, false, fault.Overrun
	}
	if lag > c.maxLag {
		c.fault.Set(fault.LatencyExceeded, saturate32(lag))
		return sample.Sample{}, false, fault.LatencyExceeded
	}

	smp, status := c.stream.Read(idx)
	switch status {
	case stream.Available:
		c.cursor.Store(idx + 1)
		c.consumed.Add(1)

		return smp, true, nil
	case stream.Overwritten:
		lag = c.stream.Lag(idx)
		c.fault.Set(fault.Overrun, saturate32(lag))

		return sample.Sample{}, false, fault.Overrun
	default:
		return sample.Sample{}, false, nil
	}
}

// Resync jumps the cursor to the current write position.
func (c *HardRT) Resync() {
	c.cursor.Store(c.stream.WritePosition())
}

// Seek moves the cursor to a logical index.
func (c *HardRT) Seek(pos uint64) {
	c.cursor.Store(pos)
}

// Position returns the next logical index to read.
func (c *HardRT) Position() uint64 { return c.cursor.Load() }

// Lag returns how far the cursor is behind the producer.
func (c *HardRT) Lag() uint64 { return c.stream.Lag(c.cursor.Load()) }

// MaxLag returns the lag budget.
func (c *HardRT) MaxLag() uint64 { return c.maxLag }

// Stats returns telemetry counters.
func (c *HardRT) Stats() Stats {
	pos := c.cursor.Load()

	return Stats{
		Name:     c.name,
		Position: pos,
		Lag:      c.stream.Lag(pos),
		Consumed: c.consumed.Load(),
	}
}
