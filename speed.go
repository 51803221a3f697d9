package lightpaint

import (
	"math"
	"time"

	"libdb.so/lightpaint/internal/input"
)

// Speed maps a speed pixel, an index along the strip, linearly onto the
// paint duration range. The pixel is what the operator sees when adjusting.
//
// Pixel 0 is the shortest duration. The faster button moves toward it and
// stops there; the slower button moves away and stops at the last pixel.
type Speed struct {
	NumLEDs int
	Min     time.Duration
	Max     time.Duration
}

// Duration returns the paint duration for the speed pixel.
func (s Speed) Duration(pixel int) time.Duration {
	span := float64(s.Max - s.Min)
	return s.Min + time.Duration(span*float64(pixel)/float64(s.NumLEDs-1))
}

// Pixel returns the speed pixel closest to duration d.
func (s Speed) Pixel(d time.Duration) int {
	span := float64(s.Max - s.Min)
	return s.Clamp(int(math.Round(float64(d-s.Min) * float64(s.NumLEDs-1) / span)))
}

// Clamp clamps a speed pixel to the strip.
func (s Speed) Clamp(pixel int) int {
	return min(max(pixel, 0), s.NumLEDs-1)
}

// Repeat timing for held buttons.
const (
	repeatInitial = 200 * time.Millisecond
	repeatFloor   = 10 * time.Millisecond
	repeatDecay   = 0.92
)

// nextRepeat returns the repeat interval after a cycle in which cur was
// polled, given the previous cycle's button. Holding the same button speeds
// repeats up; anything else starts over.
func nextRepeat(prev, cur input.Button, interval time.Duration) time.Duration {
	if cur != input.None && cur == prev {
		return max(repeatFloor, time.Duration(float64(interval)*repeatDecay))
	}
	return repeatInitial
}
