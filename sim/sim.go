// Package sim provides deterministic inputs and outputs for running a keyer without
// hardware: scripted paddle sources, a text-to-paddle source that keys a message
// through the iambic machine, and a recorder that captures key-down intervals.
//
// All sources are pure functions of the caller's clock, so a run in virtual time is
// reproducible.
package sim

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/arloliu/cwkeyer/decoder"
	"github.com/arloliu/cwkeyer/errs"
	"github.com/arloliu/cwkeyer/iambic"
	"github.com/arloliu/cwkeyer/sample"
)

// Event sets the input lines at AtUs.
type Event struct {
	AtUs int64
	Gpio sample.GpioState
}

// Script replays input line changes. Before the first event the lines are idle.
type Script struct {
	events []Event
}

// NewScript sorts events by time. Events at the same time keep their order.
func NewScript(events ...Event) *Script {
	ev := slices.Clone(events)
	slices.SortStableFunc(ev, func(a, b Event) int { return cmp.Compare(a.AtUs, b.AtUs) })

	return &Script{events: ev}
}

// Press returns the two events that hold lines from atUs for durUs.
func Press(atUs, durUs int64, lines sample.GpioState) []Event {
	return []Event{{AtUs: atUs, Gpio: lines}, {AtUs: atUs + durUs, Gpio: 0}}
}

// ReadGpio returns the lines in effect at nowUs.
func (s *Script) ReadGpio(nowUs int64) sample.GpioState {
	i, found := slices.BinarySearchFunc(s.events, nowUs, func(e Event, t int64) int { return cmp.Compare(e.AtUs, t) })
	if found {
		// last of several events at the same instant
		for i+1 < len(s.events) && s.events[i+1].AtUs == nowUs {
			i++
		}
		return s.events[i].Gpio
	}
	if i == 0 {
		return 0
	}

	return s.events[i-1].Gpio
}

// Events returns the sorted events.
func (s *Script) Events() []Event {
	return s.events
}

// EndUs returns the time of the last event.
func (s *Script) EndUs() int64 {
	if len(s.events) == 0 {
		return 0
	}

	return s.events[len(s.events)-1].AtUs
}

// Paddles builds a script that keys text through an iambic keyer running at wpm,
// starting at startUs. Each element is a short press of its paddle: the first
// element of a character is pressed when it should start, later ones during the
// preceding gap so the keyer picks them up as soon as the gap ends.
func Paddles(text string, wpm uint32, startUs int64) (*Script, error) {
	return build(text, wpm, startUs, false)
}

// StraightKey builds a script that keys text on the straight-key line with ideal
// PARIS timing.
func StraightKey(text string, wpm uint32, startUs int64) (*Script, error) {
	return build(text, wpm, startUs, true)
}

func build(text string, wpm uint32, startUs int64, straight bool) (*Script, error) {
	cfg := iambic.DefaultConfig()
	cfg.WPM = wpm
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dit := cfg.DitDurationUs()

	var events []Event
	t := startUs
	words := strings.Fields(text)
	for wi, w := range words {
		runes := []rune(norm.NFKC.String(w))
		for ci, r := range runes {
			pat, ok := decoder.Reverse(r)
			if !ok {
				return nil, fmt.Errorf("%w: %q", errs.ErrUnknownCharacter, r)
			}

			for ei, sym := range pat {
				dur := dit
				line := sample.GpioDit
				if sym == '-' {
					dur = 3 * dit
					line = sample.GpioDah
				}

				switch {
				case straight:
					events = append(events, Press(t, dur, sample.GpioStraight)...)
				case ei == 0:
					events = append(events, Press(t, dit/2, line)...)
				default:
					lead := dit / 4
					events = append(events, Press(t-lead, lead+dit/2, line)...)
				}
				t += dur
				if ei < len(pat)-1 {
					t += dit
				}
			}

			if ci < len(runes)-1 {
				t += 3 * dit
			}
		}
		if wi < len(words)-1 {
			t += 7 * dit
		}
	}

	return NewScript(events...), nil
}

// Duration returns how long text takes to send at wpm, in microseconds, from the
// first key-down to the last key-up.
func Duration(text string, wpm uint32) (int64, error) {
	s, err := StraightKey(text, wpm, 0)
	if err != nil {
		return 0, err
	}

	return s.EndUs(), nil
}

// Normalize folds compatibility forms (NFKC), upper-cases text and collapses
// whitespace the way a decoder renders it.
func Normalize(text string) string {
	text = norm.NFKC.String(text)
	return strings.Join(strings.Fields(strings.Map(unicode.ToUpper, text)), " ")
}

// Interval is one key-down period.
type Interval struct {
	StartUs int64
	EndUs   int64
}

// Duration returns the interval length.
func (i Interval) Duration() int64 { return i.EndUs - i.StartUs }

// KeyRecorder is a key sink that records key-down intervals. It is safe for
// concurrent use.
type KeyRecorder struct {
	mu        sync.Mutex
	down      bool
	since     int64
	intervals []Interval
	changes   int
}

// SetKey records the key level at nowUs.
func (r *KeyRecorder) SetKey(nowUs int64, down bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if down == r.down {
		return
	}
	r.changes++
	r.down = down
	if down {
		r.since = nowUs
		return
	}
	r.intervals = append(r.intervals, Interval{StartUs: r.since, EndUs: nowUs})
}

// IsDown reports the current level.
func (r *KeyRecorder) IsDown() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.down
}

// Intervals returns the completed key-down intervals.
func (r *KeyRecorder) Intervals() []Interval {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.intervals)
}

// Changes returns the number of level changes.
func (r *KeyRecorder) Changes() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.changes
}

// Remote replays key-down intervals as a remote key line.
type Remote struct {
	intervals []Interval
}

// NewRemote creates a remote line that is down inside any of intervals.
func NewRemote(intervals ...Interval) *Remote {
	iv := slices.Clone(intervals)
	slices.SortFunc(iv, func(a, b Interval) int { return cmp.Compare(a.StartUs, b.StartUs) })

	return &Remote{intervals: iv}
}

// RemoteKey reports whether the remote key is down at nowUs.
func (r *Remote) RemoteKey(nowUs int64) bool {
	i, _ := slices.BinarySearchFunc(r.intervals, nowUs+1, func(iv Interval, t int64) int { return cmp.Compare(iv.StartUs, t) })
	// intervals[i-1] is the last one starting at or before nowUs
	return i > 0 && nowUs < r.intervals[i-1].EndUs
}
