package stream

import (
	"sync/atomic"

	"github.com/arloliu/cwkeyer/errs"
	"github.com/arloliu/cwkeyer/sample"
)

// Producer is the only handle allowed to write into a Stream.
//
// A Producer must be used from one goroutine at a time. Overlapping calls panic
// instead of corrupting the write index.
type Producer struct {
	s        *Stream
	busy     atomic.Bool
	released atomic.Bool
}

// Producer claims the stream's write handle.
//
// Returns:
//   - *Producer: The write handle
//   - error: errs.ErrProducerClaimed if another handle is live
func (s *Stream) Producer() (*Producer, error) {
	if !s.claimed.CompareAndSwap(false, true) {
		return nil, errs.ErrProducerClaimed
	}

	return &Producer{s: s}, nil
}

// MustProducer is like Producer but panics if the handle is already claimed.
func (s *Stream) MustProducer() *Producer {
	p, err := s.Producer()
	if err != nil {
		panic(err)
	}

	return p
}

// Release gives the write handle back to the stream. Pending idle ticks stay pending
// and are flushed by the next producer. Using p after Release panics.
func (p *Producer) Release() {
	if p.released.CompareAndSwap(false, true) {
		p.s.claimed.Store(false)
	}
}

// Stream returns the stream p writes to.
func (p *Producer) Stream() *Stream {
	return p.s
}

func (p *Producer) enter() {
	if p.released.Load() {
		panic("stream: use of released Producer")
	}
	if !p.busy.CompareAndSwap(false, true) {
		panic("stream: concurrent use of Producer")
	}
}

func (p *Producer) leave() {
	p.busy.Store(false)
}

// Push appends smp with silence compression.
//
// A concrete sample equal to the last written one in GPIO, local key and remote key
// only extends the pending idle run. Any other sample first flushes the idle run as
// silence markers, then is written with edge flags relative to the last concrete
// sample. A sample carrying sample.EdgeConfig is always written.
//
// Silence markers passed to Push are written as-is after the pending run.
func (p *Producer) Push(smp sample.Sample) {
	p.enter()
	defer p.leave()

	s := p.s
	s.pushes.Add(1)

	if smp.IsSilence() {
		p.flushPending()
		s.store(smp.Word())
		s.markers.Add(1)

		return
	}

	if !smp.HasChangeFrom(s.last) && !smp.Edges().Has(sample.EdgeConfig) {
		s.pending++
		return
	}

	p.flushPending()
	smp = smp.WithEdgesFrom(s.last)
	s.store(smp.Word())
	s.last = smp
}

// PushRaw appends smp without compression. A concrete sample still gets edge flags
// relative to the last concrete sample so readers can rely on them. Pending idle
// ticks are flushed first to keep the timeline ordered.
func (p *Producer) PushRaw(smp sample.Sample) {
	p.enter()
	defer p.leave()

	s := p.s
	s.pushes.Add(1)
	p.flushPending()

	if smp.IsSilence() {
		s.store(smp.Word())
		s.markers.Add(1)

		return
	}

	smp = smp.WithEdgesFrom(s.last)
	s.store(smp.Word())
	s.last = smp
}

// Flush writes any pending idle run as silence markers. Runs longer than
// sample.MaxSilenceTicks are split across several markers.
func (p *Producer) Flush() {
	p.enter()
	defer p.leave()

	p.flushPending()
}

// PendingIdle returns the number of idle ticks not yet written.
func (p *Producer) PendingIdle() uint64 {
	return p.s.pending
}

// Last returns the last concrete sample written.
func (p *Producer) Last() sample.Sample {
	return p.s.last
}

func (p *Producer) flushPending() {
	s := p.s
	for s.pending > 0 {
		n := min(s.pending, sample.MaxSilenceTicks)
		s.store(sample.MustSilence(uint32(n)).Word())
		s.markers.Add(1)
		s.compressedTicks.Add(n)
		s.pending -= n
	}
}
