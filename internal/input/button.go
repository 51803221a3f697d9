// Package input reads the painter's controls: five push buttons and an
// optional positional encoder.
package input

import "fmt"

// Button is a logical button code. Lower codes win when several buttons are
// held at once.
type Button uint8

const (
	None Button = iota
	Go
	Faster
	Slower
	Next
	Prev
)

// NumButtons is the number of physical buttons.
const NumButtons = 5

func (b Button) String() string {
	switch b {
	case None:
		return "none"
	case Go:
		return "go"
	case Faster:
		return "faster"
	case Slower:
		return "slower"
	case Next:
		return "next"
	case Prev:
		return "prev"
	default:
		return fmt.Sprintf("Button(%d)", b)
	}
}

// Arbitrate returns the highest priority pressed button, given the pressed
// state of each button in code order (go, faster, slower, next, prev).
func Arbitrate(pressed [NumButtons]bool) Button {
	for i, p := range pressed {
		if p {
			return Button(i + 1)
		}
	}
	return None
}
