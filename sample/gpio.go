package sample

import "strings"

// GpioState is a snapshot of the physical keying input lines.
//
// It is a plain value: copy it freely and compare it with ==.
type GpioState uint8

const (
	GpioDit      GpioState = 0x01 // GpioDit is set while the DIT paddle is pressed.
	GpioDah      GpioState = 0x02 // GpioDah is set while the DAH paddle is pressed.
	GpioStraight GpioState = 0x04 // GpioStraight is set while the straight key is pressed.

	gpioMask   = GpioDit | GpioDah | GpioStraight
	paddleMask = GpioDit | GpioDah
)

// NewGpio builds a GpioState from individual line levels.
func NewGpio(dit, dah, straight bool) GpioState {
	var g GpioState
	if dit {
		g |= GpioDit
	}
	if dah {
		g |= GpioDah
	}
	if straight {
		g |= GpioStraight
	}

	return g
}

// Dit reports whether the DIT paddle is pressed.
func (g GpioState) Dit() bool { return g&GpioDit != 0 }

// Dah reports whether the DAH paddle is pressed.
func (g GpioState) Dah() bool { return g&GpioDah != 0 }

// Straight reports whether the straight key is pressed.
func (g GpioState) Straight() bool { return g&GpioStraight != 0 }

// IsIdle reports whether no input line is active.
func (g GpioState) IsIdle() bool { return g&gpioMask == 0 }

// IsSqueeze reports whether both paddles are pressed.
func (g GpioState) IsSqueeze() bool { return g&paddleMask == paddleMask }

// AnyPressed reports whether at least one input line is active.
func (g GpioState) AnyPressed() bool { return !g.IsIdle() }

// Valid reports whether only defined bits are set.
func (g GpioState) Valid() bool { return g&^gpioMask == 0 }

func (g GpioState) String() string {
	if g.IsIdle() {
		return "idle"
	}

	parts := make([]string, 0, 3)
	if g.Dit() {
		parts = append(parts, "dit")
	}
	if g.Dah() {
		parts = append(parts, "dah")
	}
	if g.Straight() {
		parts = append(parts, "straight")
	}

	return strings.Join(parts, "+")
}
