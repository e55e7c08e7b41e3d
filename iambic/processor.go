// Package iambic implements the iambic paddle keyer state machine.
//
// A Processor turns paddle state and elapsed time into key-down/key-up decisions
// using PARIS timing. It is driven by a fixed-period real-time loop that calls Tick
// once per period. Nothing inside Tick can fail or allocate; invalid configuration
// is rejected by New and SetConfig.
//
// # Element decision
//
// Whenever the machine is idle (including the tick on which an inter-element gap
// ends) it picks the next element in this order:
//
//  1. armed dit memory
//  2. armed dah memory
//  3. Mode B only: one element opposite to the last one, if a squeeze was seen during
//     the previous element and at least one paddle is now released
//  4. live paddles: squeeze alternates from the last element, a single paddle sends
//     its own element, no paddle stays idle
//
// # Memory
//
// While an element is sent, holding the opposite paddle arms that paddle's latch, so
// a dah held through a dit is sent next even if it was down before the dit started.
// The element's own paddle arms its latch only on a fresh press; a held squeeze
// therefore alternates strictly. During a gap any fresh press arms its latch. Presses
// during an element only count inside the configured memory window.
package iambic

import (
	"fmt"

	"github.com/arloliu/cwkeyer/sample"
)

// Element is a Morse element.
type Element uint8

const (
	Dit Element = iota
	Dah
)

func (e Element) String() string {
	if e == Dit {
		return "dit"
	}

	return "dah"
}

// Opposite returns the other element.
func (e Element) Opposite() Element {
	if e == Dit {
		return Dah
	}

	return Dit
}

// State is the FSM state.
type State uint8

const (
	StateIdle State = iota
	StateSendDit
	StateSendDah
	StateGap
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSendDit:
		return "send-dit"
	case StateSendDah:
		return "send-dah"
	case StateGap:
		return "gap"
	default:
		return "unknown"
	}
}

// Processor is the iambic keyer FSM. It is not safe for concurrent use; it belongs to
// the real-time goroutine.
type Processor struct {
	cfg   Config
	ditUs int64
	dahUs int64
	gapUs int64

	state        State
	elementStart int64
	elementEnd   int64
	last         Element

	ditPressed  bool
	dahPressed  bool
	ditMemory   bool
	dahMemory   bool
	squeezeSeen bool
	keyDown     bool
}

// New creates an idle processor.
//
// Parameters:
//   - cfg: Keyer configuration, validated here
//
// Returns:
//   - *Processor: Idle processor with last element Dah
//   - error: Validation error from cfg
func New(cfg Config) (*Processor, error) {
	p := &Processor{}
	if err := p.SetConfig(cfg); err != nil {
		return nil, err
	}
	p.Reset()

	return p, nil
}

// SetConfig validates and applies cfg. The element in progress keeps its timing;
// the new durations apply from the next element.
func (p *Processor) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("iambic config: %w", err)
	}

	p.cfg = cfg
	p.ditUs = cfg.DitDurationUs()
	p.dahUs = cfg.DahDurationUs()
	p.gapUs = cfg.GapDurationUs()

	return nil
}

// Config returns the active configuration.
func (p *Processor) Config() Config { return p.cfg }

// Reset returns to Idle with memories cleared and the key up.
func (p *Processor) Reset() {
	p.state = StateIdle
	p.elementStart = 0
	p.elementEnd = 0
	p.last = Dah
	p.ditPressed = false
	p.dahPressed = false
	p.ditMemory = false
	p.dahMemory = false
	p.squeezeSeen = false
	p.keyDown = false
}

// State returns the current FSM state.
func (p *Processor) State() State { return p.state }

// LastElement returns the most recently completed element.
func (p *Processor) LastElement() Element { return p.last }

// IsKeyDown reports whether an element is being sent.
func (p *Processor) IsKeyDown() bool { return p.keyDown }

// Memory reports the armed dit and dah memory latches.
func (p *Processor) Memory() (dit, dah bool) { return p.ditMemory, p.dahMemory }

// Tick advances the machine to nowUs with the current paddle state.
//
// Parameters:
//   - nowUs: Monotonic time in microseconds
//   - gpio: Input line snapshot for this period
//
// Returns:
//   - sample.Sample: Concrete sample with gpio and the local key level
func (p *Processor) Tick(nowUs int64, gpio sample.GpioState) sample.Sample {
	p.updatePaddles(nowUs, gpio)

	switch p.state {
	case StateIdle:
		p.decide(nowUs)
	case StateSendDit, StateSendDah:
		if nowUs >= p.elementEnd {
			p.endElement(nowUs)
		}
	case StateGap:
		if nowUs >= p.elementEnd {
			p.state = StateIdle
			p.decide(nowUs)
		}
	}

	return sample.Concrete(gpio, p.keyDown, false)
}

func (p *Processor) updatePaddles(nowUs int64, gpio sample.GpioState) {
	wasSqueeze := p.ditPressed && p.dahPressed
	ditEdge := gpio.Dit() && !p.ditPressed
	dahEdge := gpio.Dah() && !p.dahPressed

	p.ditPressed = gpio.Dit()
	p.dahPressed = gpio.Dah()

	if p.state == StateIdle {
		return
	}

	if p.cfg.Squeeze == LatchOff && gpio.IsSqueeze() && !wasSqueeze {
		p.squeezeSeen = true
	}

	if p.state != StateGap && !p.inMemoryWindow(nowUs) {
		return
	}
	if p.cfg.DitMemory && (ditEdge || (p.state == StateSendDah && p.ditPressed)) {
		p.ditMemory = true
	}
	if p.cfg.DahMemory && (dahEdge || (p.state == StateSendDit && p.dahPressed)) {
		p.dahMemory = true
	}
}

func (p *Processor) inMemoryWindow(nowUs int64) bool {
	w := p.cfg.Window
	if w.isFull() {
		return true
	}

	span := p.elementEnd - p.elementStart
	if span <= 0 {
		return true
	}
	pct := (nowUs - p.elementStart) * 100 / span

	return pct >= int64(w.StartPct) && pct <= int64(w.EndPct)
}

func (p *Processor) decide(nowUs int64) {
	switch {
	case p.ditMemory:
		p.ditMemory = false
		p.startElement(Dit, nowUs)
	case p.dahMemory:
		p.dahMemory = false
		p.startElement(Dah, nowUs)
	case p.cfg.Mode == ModeB && p.squeezeSeen && !(p.ditPressed && p.dahPressed):
		p.squeezeSeen = false
		p.startElement(p.last.Opposite(), nowUs)
	case p.ditPressed && p.dahPressed:
		p.startElement(p.last.Opposite(), nowUs)
	case p.ditPressed:
		p.startElement(Dit, nowUs)
	case p.dahPressed:
		p.startElement(Dah, nowUs)
	default:
		p.squeezeSeen = false
	}
}

func (p *Processor) startElement(e Element, nowUs int64) {
	dur := p.ditUs
	p.state = StateSendDit
	if e == Dah {
		dur = p.dahUs
		p.state = StateSendDah
	}

	p.keyDown = true
	p.elementStart = nowUs
	p.elementEnd = nowUs + dur
	p.squeezeSeen = p.ditPressed && p.dahPressed
}

func (p *Processor) endElement(nowUs int64) {
	p.last = Dit
	if p.state == StateSendDah {
		p.last = Dah
	}

	p.keyDown = false
	p.state = StateGap
	p.elementStart = nowUs
	p.elementEnd = nowUs + p.gapUs
}
