// Package stream implements the keying timeline: a fixed-capacity, lock-free,
// single-producer/multi-consumer ring of samples with silence-run compression.
//
// # Model
//
// The producer appends samples at a monotonically increasing logical write index.
// Index i lives in slot i & (capacity-1) until it is overwritten by index i+capacity.
// Readers never mutate the stream. Each keeps its own cursor and asks for a logical
// index with Read, which reports whether the index is available, not yet written,
// or already overwritten.
//
// Writes are never blocked by readers. A reader that falls more than one capacity
// behind loses data; Lag and IsOverrun let it notice.
//
// # Producer
//
// Exactly one goroutine may write. Stream.Producer hands out the single *Producer
// handle; a second claim fails with errs.ErrProducerClaimed until the handle is
// released. Concurrent calls on the same handle panic.
//
// # Memory ordering
//
// Slots are atomic 32-bit words holding sample.Word values, and the write index is an
// atomic counter stored after the slot. A reader that observes write index w therefore
// sees every slot written below w. Read re-checks the index after loading a slot so a
// slot recycled during the read is reported as overwritten, never returned stale.
package stream

import (
	"fmt"
	"math/bits"
	"sync/atomic"

	"golang.org/x/sys/cpu"

	"github.com/arloliu/cwkeyer/errs"
	"github.com/arloliu/cwkeyer/sample"
)

// ReadStatus is the outcome of reading a logical index.
type ReadStatus uint8

const (
	Available     ReadStatus = iota // Available means the sample was returned.
	NotYetWritten                   // NotYetWritten means the index is at or ahead of the write position.
	Overwritten                     // Overwritten means the slot has been reused by a newer index.
)

func (r ReadStatus) String() string {
	switch r {
	case Available:
		return "available"
	case NotYetWritten:
		return "not-yet-written"
	case Overwritten:
		return "overwritten"
	default:
		return "unknown"
	}
}

// Stats is a point-in-time view of producer activity.
type Stats struct {
	// Written is the number of slots written, equal to the write position.
	Written uint64
	// Markers is the number of silence markers written.
	Markers uint64
	// CompressedTicks is the number of idle ticks folded into silence markers.
	CompressedTicks uint64
	// Pushes is the number of Push and PushRaw calls.
	Pushes uint64
}

// Stream is the SPMC keying ring. Create it with New.
type Stream struct {
	write atomic.Uint64
	_     cpu.CacheLinePad

	slots []atomic.Uint32
	mask  uint64

	claimed atomic.Bool

	markers         atomic.Uint64
	compressedTicks atomic.Uint64
	pushes          atomic.Uint64

	// producer-owned state, touched only by the holder of the Producer handle
	last    sample.Sample
	pending uint64
}

// New creates a stream with the given number of slots.
//
// Parameters:
//   - capacity: Slot count, a non-zero power of two
//
// Returns:
//   - *Stream: Empty stream with write position 0
//   - error: errs.ErrInvalidCapacity if capacity is not a power of two
func New(capacity uint64) (*Stream, error) {
	if capacity == 0 || bits.OnesCount64(capacity) != 1 {
		return nil, fmt.Errorf("%w: %d", errs.ErrInvalidCapacity, capacity)
	}

	return &Stream{
		slots: make([]atomic.Uint32, capacity),
		mask:  capacity - 1,
	}, nil
}

// MustNew is like New but panics on an invalid capacity.
func MustNew(capacity uint64) *Stream {
	s, err := New(capacity)
	if err != nil {
		panic(err)
	}

	return s
}

// Capacity returns the number of slots.
func (s *Stream) Capacity() uint64 {
	return s.mask + 1
}

// WritePosition returns the logical index the next slot write will use.
func (s *Stream) WritePosition() uint64 {
	return s.write.Load()
}

// Lag returns how many slots a cursor at idx is behind the producer.
// A cursor at or ahead of the write position has zero lag.
func (s *Stream) Lag(idx uint64) uint64 {
	w := s.write.Load()
	if w <= idx {
		return 0
	}

	return w - idx
}

// IsOverrun reports whether the slot a cursor at idx wants has already been overwritten.
func (s *Stream) IsOverrun(idx uint64) bool {
	return s.Lag(idx) > s.Capacity()
}

// Read returns the sample at logical index idx.
//
// The sample is returned only when 0 < WritePosition()-idx <= Capacity(). Read is safe
// to call from any number of goroutines concurrently with the producer.
//
// Returns:
//   - sample.Sample: The stored sample, zero unless status is Available
//   - ReadStatus: Available, NotYetWritten or Overwritten
func (s *Stream) Read(idx uint64) (sample.Sample, ReadStatus) {
	w, status := s.ReadWord(idx)
	if status != Available {
		return sample.Sample{}, status
	}

	return sample.FromWord(w), Available
}

// ReadWord is like Read but returns the packed slot word.
func (s *Stream) ReadWord(idx uint64) (sample.Word, ReadStatus) {
	w := s.write.Load()
	if w <= idx {
		return 0, NotYetWritten
	}
	if w-idx > s.Capacity() {
		return 0, Overwritten
	}

	v := s.slots[idx&s.mask].Load()

	// the producer may have recycled the slot between the two loads
	if s.write.Load()-idx > s.Capacity() {
		return 0, Overwritten
	}

	return sample.Word(v), Available
}

// Stats returns producer counters.
func (s *Stream) Stats() Stats {
	return Stats{
		Written:         s.write.Load(),
		Markers:         s.markers.Load(),
		CompressedTicks: s.compressedTicks.Load(),
		Pushes:          s.pushes.Load(),
	}
}

// store writes one slot and publishes it. Producer only.
func (s *Stream) store(w sample.Word) {
	idx := s.write.Load()
	s.slots[idx&s.mask].Store(uint32(w))
	s.write.Store(idx + 1)
}
