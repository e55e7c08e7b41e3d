// Package fault holds the process-wide fault record shared by consumers and the supervisor.
//
// All fields are independent atomics with last-writer-wins semantics. Two consumers
// setting different faults at once is fine: the later write is the visible fault and
// the cumulative count reflects both.
package fault

import (
	"log/slog"
	"sync/atomic"
)

// Code classifies a fault. The set is closed.
//
// Code implements error so the real-time path can return it without allocating.
type Code uint8

const (
	None            Code = 0 // None means no fault.
	Overrun         Code = 1 // Overrun means a consumer's data was overwritten before it was read.
	LatencyExceeded Code = 2 // LatencyExceeded means a consumer fell behind its lag budget.
	ProducerOverrun Code = 3 // ProducerOverrun means the producer missed its real-time schedule.
	HardwareFault   Code = 4 // HardwareFault reports a peripheral-level error.
)

// FromUint8 converts a raw value into a Code.
//
// Returns:
//   - Code: The matching code, or None
//   - bool: false if v is not a defined code
func FromUint8(v uint8) (Code, bool) {
	if v > uint8(HardwareFault) {
		return None, false
	}

	return Code(v), true
}

func (c Code) String() string {
	switch c {
	case None:
		return "none"
	case Overrun:
		return "overrun"
	case LatencyExceeded:
		return "latency-exceeded"
	case ProducerOverrun:
		return "producer-overrun"
	case HardwareFault:
		return "hardware-fault"
	default:
		return "unknown"
	}
}

// Error implements error.
func (c Code) Error() string {
	return "fault: " + c.String()
}

// State is the shared fault record. The zero value is inactive and ready to use.
type State struct {
	active atomic.Bool
	code   atomic.Uint32
	data   atomic.Uint32
	count  atomic.Uint32
}

// NewState returns an inactive fault record.
func NewState() *State {
	return &State{}
}

// Set activates the fault, overwrites code and data, and increments the cumulative count.
func (s *State) Set(code Code, data uint32) {
	s.code.Store(uint32(code))
	s.data.Store(data)
	s.count.Add(1)
	s.active.Store(true)
}

// Clear deactivates the fault. Code, data and count stay readable.
func (s *State) Clear() {
	s.active.Store(false)
}

// IsActive reports whether a fault is currently raised.
func (s *State) IsActive() bool {
	return s.active.Load()
}

// Code returns the last fault code. It is stale once the fault is cleared.
func (s *State) Code() Code {
	return Code(s.code.Load())
}

// Data returns the diagnostic payload of the last fault.
func (s *State) Data() uint32 {
	return s.data.Load()
}

// Count returns how many times Set has been called. Clear never resets it.
func (s *State) Count() uint32 {
	return s.count.Load()
}

// Snapshot is a copy of the fault record for diagnostics.
type Snapshot struct {
	Active bool
	Code   Code
	Data   uint32
	Count  uint32
}

// Snapshot reads all fields. The fields are loaded one at a time, so a concurrent Set
// may be observed partially.
func (s *State) Snapshot() Snapshot {
	return Snapshot{
		Active: s.active.Load(),
		Code:   Code(s.code.Load()),
		Data:   s.data.Load(),
		Count:  s.count.Load(),
	}
}

// LogValue implements slog.LogValuer.
func (s Snapshot) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Bool("active", s.Active),
		slog.String("code", s.Code.String()),
		slog.Uint64("data", uint64(s.Data)),
		slog.Uint64("count", uint64(s.Count)),
	)
}
