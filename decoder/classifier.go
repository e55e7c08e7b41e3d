package decoder

// Event is the classification of one mark or space duration.
type Event uint8

const (
	EventUnknown Event = iota
	EventDit
	EventDah
	EventIntraGap // space inside a character
	EventCharGap  // space between characters
	EventWordGap  // space between words
)

func (e Event) String() string {
	switch e {
	case EventDit:
		return "dit"
	case EventDah:
		return "dah"
	case EventIntraGap:
		return "intra-gap"
	case EventCharGap:
		return "char-gap"
	case EventWordGap:
		return "word-gap"
	default:
		return "unknown"
	}
}

// Classifier defaults.
const (
	DefaultInitialWPM   = 20
	DefaultEMAAlpha     = 0.3
	DefaultTolerancePct = 25.0

	warmupMarks   = 3
	minDurationUs = 5_000
	maxDurationUs = 5_000_000
)

// Classifier turns mark and space durations into Morse events while tracking the
// sender's speed with exponential moving averages of the dit and dah lengths.
//
// Durations outside 5ms..5s are classified as EventUnknown and do not move the averages.
type Classifier struct {
	ditAvgUs     int64
	dahAvgUs     int64
	ditCount     uint32
	dahCount     uint32
	warmup       int
	tolerancePct float64
	alpha        float64
}

// NewClassifier creates a classifier seeded with the PARIS timing of initialWPM.
func NewClassifier(initialWPM uint32) *Classifier {
	c := &Classifier{}
	c.Reset(initialWPM)

	return c
}

// Reset drops all learned timing and reseeds from initialWPM.
func (c *Classifier) Reset(initialWPM uint32) {
	if initialWPM < 1 {
		initialWPM = 1
	}
	dit := int64(1_200_000 / initialWPM)
	*c = Classifier{
		ditAvgUs:     dit,
		dahAvgUs:     dit * 3,
		warmup:       warmupMarks,
		tolerancePct: DefaultTolerancePct,
		alpha:        DefaultEMAAlpha,
	}
}

// SetTolerance sets the mark threshold tolerance in percent.
func (c *Classifier) SetTolerance(pct float64) {
	c.tolerancePct = pct
}

// Classify returns the event for a mark (key down) or space (key up) of durationUs.
func (c *Classifier) Classify(durationUs int64, isMark bool) Event {
	if durationUs < minDurationUs || durationUs > maxDurationUs {
		return EventUnknown
	}

	if !isMark {
		switch {
		case durationUs < c.ditAvgUs*2:
			return EventIntraGap
		case durationUs < c.ditAvgUs*5:
			return EventCharGap
		default:
			return EventWordGap
		}
	}

	// weighted toward the dit average, then widened by the tolerance
	threshold := (c.ditAvgUs*3 + c.dahAvgUs) / 4
	threshold = int64(float64(threshold) * (1 + c.tolerancePct/100))

	var ev Event
	if durationUs < threshold {
		ev = EventDit
		c.ditAvgUs = c.ema(c.ditAvgUs, durationUs)
		c.ditCount++
	} else {
		ev = EventDah
		c.dahAvgUs = c.ema(c.dahAvgUs, durationUs)
		c.dahCount++
	}
	if c.warmup > 0 {
		c.warmup--
	}

	return ev
}

func (c *Classifier) ema(avg, v int64) int64 {
	return int64(c.alpha*float64(v) + (1-c.alpha)*float64(avg))
}

// Calibrated reports whether the warm-up marks have been seen.
func (c *Classifier) Calibrated() bool {
	return c.warmup == 0
}

// WPM returns the estimated speed, or 0 during warm-up.
func (c *Classifier) WPM() uint32 {
	if c.warmup > 0 || c.ditAvgUs <= 0 {
		return 0
	}

	return uint32(1_200_000 / c.ditAvgUs)
}

// DitAvgUs returns the current dit length estimate.
func (c *Classifier) DitAvgUs() int64 { return c.ditAvgUs }

// DahAvgUs returns the current dah length estimate.
func (c *Classifier) DahAvgUs() int64 { return c.dahAvgUs }

// Ratio returns the dah/dit length ratio, nominally 3.
func (c *Classifier) Ratio() float64 {
	if c.ditAvgUs <= 0 {
		return 0
	}

	return float64(c.dahAvgUs) / float64(c.ditAvgUs)
}

// Counts returns the number of dits and dahs classified since the last reset.
func (c *Classifier) Counts() (dits, dahs uint32) {
	return c.ditCount, c.dahCount
}
