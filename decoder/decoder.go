// Package decoder turns the local key line of a keying stream back into text.
//
// A Decoder reads through a best-effort consumer, so it can never stall the RT
// producer; when it falls behind it skips ahead and counts the dropped samples.
// Key-down and key-up durations are measured in stream time (one concrete sample is
// one tick, a silence marker is its run length) and classified by an adaptive
// Classifier. Completed patterns are looked up in the ITU Morse table and appended
// to a fixed ring of decoded characters.
//
// A Decoder is driven by a single goroutine. Only SetEnabled and Enabled may be
// called concurrently with Process.
package decoder

import (
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/arloliu/cwkeyer/consumer"
	"github.com/arloliu/cwkeyer/errs"
	"github.com/arloliu/cwkeyer/internal/options"
	"github.com/arloliu/cwkeyer/sample"
)

const (
	// RingSize is the number of decoded characters retained.
	RingSize = 128

	// inactivityDits is the silence, in dit units, after which a pending pattern is
	// finalized even though no closing space was seen yet.
	inactivityDits = 7
)

// State reports whether a character is being received.
type State uint8

const (
	StateIdle State = iota
	StateReceiving
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReceiving:
		return "receiving"
	default:
		return "unknown"
	}
}

// Char is a decoded character with the stream time at which it completed.
type Char struct {
	Char        byte
	TimestampUs int64
}

// Stats are decoder counters since the last Reset.
type Stats struct {
	SamplesProcessed uint64
	SamplesDropped   uint64
	Chars            uint64
	Words            uint64
	Errors           uint64
}

// LogValue implements slog.LogValuer.
func (s Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("processed", s.SamplesProcessed),
		slog.Uint64("dropped", s.SamplesDropped),
		slog.Uint64("chars", s.Chars),
		slog.Uint64("words", s.Words),
		slog.Uint64("errors", s.Errors),
	)
}

type settings struct {
	initialWPM uint32
	tickUs     int64
	logger     *slog.Logger
}

// Option configures a Decoder.
type Option = options.Option[*settings]

// WithInitialWPM seeds the classifier. The default is DefaultInitialWPM.
func WithInitialWPM(wpm uint32) Option {
	return options.New(func(s *settings) error {
		if wpm == 0 {
			return fmt.Errorf("%w: 0", errs.ErrInvalidWPM)
		}
		s.initialWPM = wpm

		return nil
	})
}

// WithTickPeriod sets the duration of one stream tick. The default is 1ms.
func WithTickPeriod(d time.Duration) Option {
	return options.New(func(s *settings) error {
		if d < time.Microsecond {
			return fmt.Errorf("%w: %s", errs.ErrInvalidTickPeriod, d)
		}
		s.tickUs = d.Microseconds()

		return nil
	})
}

// WithLogger logs decoded characters and unknown patterns at debug level.
func WithLogger(l *slog.Logger) Option {
	return options.NoError(func(s *settings) {
		s.logger = l
	})
}

// Decoder is a best-effort Morse decoder.
type Decoder struct {
	src        *consumer.BestEffort
	cls        *Classifier
	initialWPM uint32
	tickUs     int64
	logger     *slog.Logger
	enabled    atomic.Bool

	ring   [RingSize]Char
	head   int
	count  int
	unread int

	pattern    [MaxPatternLen]byte
	patternLen int
	state      State

	streamUs    int64
	lastEdgeUs  int64
	haveEdge    bool
	lastMark    bool
	lastEventAt int64
	eventSeen   bool

	stats Stats
}

// New creates an enabled decoder reading from src. src may be nil when samples are
// fed directly with Feed.
func New(src *consumer.BestEffort, opts ...Option) (*Decoder, error) {
	st := &settings{
		initialWPM: DefaultInitialWPM,
		tickUs:     1000,
	}
	if err := options.Apply(st, opts...); err != nil {
		return nil, err
	}

	d := &Decoder{
		src:        src,
		cls:        NewClassifier(st.initialWPM),
		initialWPM: st.initialWPM,
		tickUs:     st.tickUs,
		logger:     st.logger,
	}
	d.enabled.Store(true)

	return d, nil
}

// SetEnabled turns decoding on or off. A disabled decoder leaves its consumer untouched.
func (d *Decoder) SetEnabled(on bool) {
	d.enabled.Store(on)
}

// Enabled reports whether Process decodes.
func (d *Decoder) Enabled() bool {
	return d.enabled.Load()
}

// Process drains every available sample from the consumer, then finalizes a pending
// pattern that has been idle for seven dit units.
//
// Parameters:
//   - nowUs: Caller clock in microseconds, used only for the inactivity timeout
//
// Returns:
//   - int: Number of samples consumed
func (d *Decoder) Process(nowUs int64) int {
	if !d.enabled.Load() || d.src == nil {
		return 0
	}

	n := 0
	for smp := range d.src.Drain() {
		d.Feed(smp, nowUs)
		n++
	}
	d.stats.SamplesDropped = d.src.Dropped()
	d.CheckInactivity(nowUs)

	return n
}

// Feed decodes one sample.
func (d *Decoder) Feed(smp sample.Sample, nowUs int64) {
	d.stats.SamplesProcessed++
	d.streamUs += int64(smp.Ticks()) * d.tickUs
	if smp.IsSilence() {
		return
	}

	mark := smp.LocalKey()
	if mark == d.lastMark {
		return
	}

	if d.haveEdge {
		ev := d.cls.Classify(d.streamUs-d.lastEdgeUs, d.lastMark)
		d.HandleEvent(ev, d.streamUs)
		d.lastEventAt = nowUs
		d.eventSeen = true
	}
	d.lastEdgeUs = d.streamUs
	d.haveEdge = true
	d.lastMark = mark
}

// HandleEvent applies one classified event at stream time tsUs.
func (d *Decoder) HandleEvent(ev Event, tsUs int64) {
	switch ev {
	case EventDit, EventDah:
		if d.patternLen < MaxPatternLen {
			sym := byte('.')
			if ev == EventDah {
				sym = '-'
			}
			d.pattern[d.patternLen] = sym
			d.patternLen++
		}
		d.state = StateReceiving
	case EventCharGap:
		d.finalize(tsUs)
	case EventWordGap:
		d.finalize(tsUs)
		d.push(' ', tsUs)
		d.stats.Words++
	case EventIntraGap, EventUnknown:
	}
}

// CheckInactivity finalizes the pending pattern when more than seven dit units have
// passed on the caller clock since the last event.
func (d *Decoder) CheckInactivity(nowUs int64) {
	if d.state != StateReceiving || !d.eventSeen {
		return
	}
	if nowUs-d.lastEventAt > d.cls.DitAvgUs()*inactivityDits {
		d.finalize(d.streamUs)
	}
}

func (d *Decoder) finalize(tsUs int64) {
	if d.patternLen == 0 {
		return
	}

	pat := string(d.pattern[:d.patternLen])
	if c, ok := Lookup(pat); ok {
		d.push(c, tsUs)
		d.stats.Chars++
		if d.logger != nil {
			d.logger.Debug("decoded", slog.String("pattern", pat), slog.String("char", string(c)))
		}
	} else {
		d.stats.Errors++
		if d.logger != nil {
			d.logger.Debug("unknown pattern", slog.String("pattern", pat))
		}
	}

	d.patternLen = 0
	d.state = StateIdle
}

func (d *Decoder) push(c byte, tsUs int64) {
	d.ring[d.head] = Char{Char: c, TimestampUs: tsUs}
	d.head = (d.head + 1) % RingSize
	d.count = min(d.count+1, RingSize)
	d.unread = min(d.unread+1, RingSize)
}

// Text returns the retained decoded text, oldest first.
func (d *Decoder) Text() string {
	var b strings.Builder
	b.Grow(d.count)
	for c := range d.count {
		b.WriteByte(d.ring[(d.head-d.count+c+RingSize)%RingSize].Char)
	}

	return b.String()
}

// Chars returns the retained decoded characters with timestamps, oldest first.
func (d *Decoder) Chars() []Char {
	out := make([]Char, d.count)
	for i := range out {
		out[i] = d.ring[(d.head-d.count+i+RingSize)%RingSize]
	}

	return out
}

// Pop returns the oldest character not yet popped. Characters overwritten in the
// ring before being popped are lost.
func (d *Decoder) Pop() (Char, bool) {
	if d.unread == 0 {
		return Char{}, false
	}
	c := d.ring[(d.head-d.unread+RingSize)%RingSize]
	d.unread--

	return c, true
}

// Last returns the most recently decoded character.
func (d *Decoder) Last() (Char, bool) {
	if d.count == 0 {
		return Char{}, false
	}

	return d.ring[(d.head-1+RingSize)%RingSize], true
}

// Pattern returns the dit/dah pattern received so far for the current character.
func (d *Decoder) Pattern() string {
	return string(d.pattern[:d.patternLen])
}

// State returns whether a character is in progress.
func (d *Decoder) State() State {
	return d.state
}

// WPM returns the estimated sender speed, or 0 until the classifier has warmed up.
func (d *Decoder) WPM() uint32 {
	return d.cls.WPM()
}

// Classifier exposes the timing classifier for telemetry.
func (d *Decoder) Classifier() *Classifier {
	return d.cls
}

// Stats returns the decoder counters.
func (d *Decoder) Stats() Stats {
	return d.stats
}

// Reset clears decoded text, the pending pattern, counters and learned timing.
// The consumer cursor is not moved.
func (d *Decoder) Reset() {
	d.ring = [RingSize]Char{}
	d.head, d.count, d.unread = 0, 0, 0
	d.patternLen = 0
	d.state = StateIdle
	d.streamUs, d.lastEdgeUs, d.lastEventAt = 0, 0, 0
	d.haveEdge, d.lastMark, d.eventSeen = false, false, false
	d.stats = Stats{}
	d.cls.Reset(d.initialWPM)
}
