// Package rtlog is a log path for code that must not block or allocate.
//
// RT code records fixed-shape entries into a Ring: a level, its own microsecond
// clock, a message (a string constant, never formatted) and up to MaxFields integer
// fields. A background goroutine drains the ring into a *slog.Logger. When the ring is
// full the entry is dropped and counted; logging never waits for the drain.
//
// The ring is a bounded multi-producer/single-consumer queue with a sequence number
// per slot, so any goroutine may log while one goroutine drains.
package rtlog

import (
	"context"
	"fmt"
	"log/slog"
	"math/bits"
	"sync/atomic"
	"time"

	"golang.org/x/sys/cpu"

	"github.com/arloliu/cwkeyer/errs"
)

// MaxFields is the number of integer fields an entry carries.
const MaxFields = 3

// DefaultCapacity is the ring size used by the engine.
const DefaultCapacity = 256

// Field is an integer key/value pair.
type Field struct {
	Key   string
	Value int64
}

// F builds a Field.
func F(key string, v int64) Field {
	return Field{Key: key, Value: v}
}

// Entry is one recorded log line.
type Entry struct {
	TimeUs  int64
	Level   slog.Level
	Msg     string
	Fields  [MaxFields]Field
	NFields uint8
}

// Attrs returns the entry fields as slog attributes.
func (e *Entry) Attrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, e.NFields+1)
	attrs = append(attrs, slog.Int64("rt_us", e.TimeUs))
	for _, f := range e.Fields[:e.NFields] {
		attrs = append(attrs, slog.Int64(f.Key, f.Value))
	}

	return attrs
}

type slot struct {
	seq   atomic.Uint64
	entry Entry
}

// Ring is a bounded MPSC queue of entries.
type Ring struct {
	tail atomic.Uint64
	_    cpu.CacheLinePad
	head atomic.Uint64
	_    cpu.CacheLinePad

	dropped atomic.Uint64
	slots   []slot
	mask    uint64
}

// New creates a ring with capacity slots.
//
// Parameters:
//   - capacity: Slot count, a non-zero power of two
//
// Returns:
//   - *Ring: Empty ring
//   - error: errs.ErrInvalidCapacity if capacity is not a power of two
func New(capacity uint64) (*Ring, error) {
	if capacity == 0 || bits.OnesCount64(capacity) != 1 {
		return nil, fmt.Errorf("%w: %d", errs.ErrInvalidCapacity, capacity)
	}

	r := &Ring{
		slots: make([]slot, capacity),
		mask:  capacity - 1,
	}
	for i := range r.slots {
		r.slots[i].seq.Store(uint64(i))
	}

	return r, nil
}

// MustNew is like New but panics on an invalid capacity.
func MustNew(capacity uint64) *Ring {
	r, err := New(capacity)
	if err != nil {
		panic(err)
	}

	return r
}

// Capacity returns the number of slots.
func (r *Ring) Capacity() uint64 {
	return r.mask + 1
}

// Log records an entry. Fields past MaxFields are ignored.
// It returns false if the ring was full and the entry was dropped.
func (r *Ring) Log(level slog.Level, nowUs int64, msg string, fields ...Field) bool {
	for {
		pos := r.tail.Load()
		s := &r.slots[pos&r.mask]
		seq := s.seq.Load()

		switch {
		case seq == pos:
			if !r.tail.CompareAndSwap(pos, pos+1) {
				continue
			}
			s.entry.TimeUs = nowUs
			s.entry.Level = level
			s.entry.Msg = msg
			s.entry.NFields = uint8(copy(s.entry.Fields[:], fields))
			s.seq.Store(pos + 1)

			return true
		case seq < pos:
			// slot still holds an entry from the previous lap
			r.dropped.Add(1)
			return false
		}
		// another producer claimed pos; reload
	}
}

// Error records an error-level entry.
func (r *Ring) Error(nowUs int64, msg string, fields ...Field) bool {
	return r.Log(slog.LevelError, nowUs, msg, fields...)
}

// Warn records a warn-level entry.
func (r *Ring) Warn(nowUs int64, msg string, fields ...Field) bool {
	return r.Log(slog.LevelWarn, nowUs, msg, fields...)
}

// Info records an info-level entry.
func (r *Ring) Info(nowUs int64, msg string, fields ...Field) bool {
	return r.Log(slog.LevelInfo, nowUs, msg, fields...)
}

// Debug records a debug-level entry.
func (r *Ring) Debug(nowUs int64, msg string, fields ...Field) bool {
	return r.Log(slog.LevelDebug, nowUs, msg, fields...)
}

// Next removes the oldest entry. Only one goroutine may call Next or Drain.
func (r *Ring) Next() (Entry, bool) {
	pos := r.head.Load()
	s := &r.slots[pos&r.mask]
	if s.seq.Load() != pos+1 {
		return Entry{}, false
	}

	e := s.entry
	s.entry = Entry{}
	s.seq.Store(pos + r.mask + 1)
	r.head.Store(pos + 1)

	return e, true
}

// Drain passes every queued entry to fn and returns how many there were.
func (r *Ring) Drain(fn func(Entry)) int {
	n := 0
	for {
		e, ok := r.Next()
		if !ok {
			return n
		}
		fn(e)
		n++
	}
}

// Len returns the number of queued entries.
func (r *Ring) Len() uint64 {
	t, h := r.tail.Load(), r.head.Load()
	if t < h {
		return 0
	}

	return t - h
}

// Dropped returns the number of entries lost to a full ring.
func (r *Ring) Dropped() uint64 {
	return r.dropped.Load()
}

// ResetDropped zeroes the drop counter and returns its previous value.
func (r *Ring) ResetDropped() uint64 {
	return r.dropped.Swap(0)
}

// Flush drains the ring into logger and reports new drops as a warning.
func (r *Ring) Flush(ctx context.Context, logger *slog.Logger) int {
	n := r.Drain(func(e Entry) {
		logger.LogAttrs(ctx, e.Level, e.Msg, e.Attrs()...)
	})
	if d := r.ResetDropped(); d > 0 {
		logger.LogAttrs(ctx, slog.LevelWarn, "rt log entries dropped", slog.Uint64("count", d))
	}

	return n
}

// Run flushes the ring into logger every interval until ctx is done, then flushes
// once more.
func (r *Ring) Run(ctx context.Context, logger *slog.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.Flush(context.WithoutCancel(ctx), logger)
			return
		case <-ticker.C:
			r.Flush(ctx, logger)
		}
	}
}
