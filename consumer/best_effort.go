package consumer

import (
	"fmt"
	"iter"
	"sync/atomic"

	"github.com/arloliu/cwkeyer/errs"
	"github.com/arloliu/cwkeyer/sample"
	"github.com/arloliu/cwkeyer/stream"
)

// maxReadAttempts bounds the catch-up loop when the producer laps the cursor mid-read.
const maxReadAttempts = 3

// BestEffort is a consumer that drops samples instead of faulting.
type BestEffort struct {
	stream   *stream.Stream
	headroom uint64
	name     string
	cursor   atomic.Uint64
	consumed atomic.Uint64
	dropped  atomic.Uint64
}

// NewBestEffort creates a best-effort consumer attached at the stream's write position.
//
// Parameters:
//   - s: Stream to read
//   - opts: WithHeadroom, WithStartAt, WithName
//
// Returns:
//   - *BestEffort: The consumer
//   - error: errs.ErrInvalidHeadroom if the headroom is not below the capacity
func NewBestEffort(s *stream.Stream, opts ...Option) (*BestEffort, error) {
	st, err := newSettings(s, opts)
	if err != nil {
		return nil, err
	}
	if st.headroom >= s.Capacity() {
		return nil, fmt.Errorf("%w: %d >= %d", errs.ErrInvalidHeadroom, st.headroom, s.Capacity())
	}

	c := &BestEffort{
		stream:   s,
		headroom: st.headroom,
		name:     st.name,
	}
	c.cursor.Store(st.startAt)

	return c, nil
}

// Tick reads the next sample, skipping ahead if the cursor was overrun.
// It never fails; false means no sample is available yet.
func (c *BestEffort) Tick() (sample.Sample, bool) {
	for range maxReadAttempts {
		idx := c.cursor.Load()
		if c.stream.IsOverrun(idx) {
			target := c.stream.WritePosition() - c.headroom
			c.dropped.Add(target - idx)
			c.cursor.Store(target)
			idx = target
		}

		smp, status := c.stream.Read(idx)
		switch status {
		case stream.Available:
			c.cursor.Store(idx + 1)
			c.consumed.Add(1)

			return smp, true
		case stream.NotYetWritten:
			return sample.Sample{}, false
		case stream.Overwritten:
			// lapped between the overrun check and the read
		}
	}

	return sample.Sample{}, false
}

// Drain yields every sample currently available.
func (c *BestEffort) Drain() iter.Seq[sample.Sample] {
	return func(yield func(sample.Sample) bool) {
		for {
			smp, ok := c.Tick()
			if !ok || !yield(smp) {
				return
			}
		}
	}
}

// Dropped returns the number of samples skipped after overruns.
func (c *BestEffort) Dropped() uint64 { return c.dropped.Load() }

// ResetDropped zeroes the dropped counter and returns its previous value.
func (c *BestEffort) ResetDropped() uint64 { return c.dropped.Swap(0) }

// Resync jumps the cursor to the current write position without counting drops.
func (c *BestEffort) Resync() {
	c.cursor.Store(c.stream.WritePosition())
}

// Seek moves the cursor to a logical index.
func (c *BestEffort) Seek(pos uint64) {
	c.cursor.Store(pos)
}

// Position returns the next logical index to read.
func (c *BestEffort) Position() uint64 { return c.cursor.Load() }

// Lag returns how far the cursor is behind the producer.
func (c *BestEffort) Lag() uint64 { return c.stream.Lag(c.cursor.Load()) }

// Headroom returns the distance behind the write position used after an overrun.
func (c *BestEffort) Headroom() uint64 { return c.headroom }

// Stats returns telemetry counters.
func (c *BestEffort) Stats() Stats {
	pos := c.cursor.Load()

	return Stats{
		Name:     c.name,
		Position: pos,
		Lag:      c.stream.Lag(pos),
		Consumed: c.consumed.Load(),
		Dropped:  c.dropped.Load(),
	}
}
