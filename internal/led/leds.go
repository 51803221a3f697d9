// Package led describes LED strip pixel data and the byte layouts used to
// push it to hardware.
package led

import (
	"encoding"
	"encoding/hex"
	"fmt"
	"strings"
)

// RGBColor is a 24-bit color. The channels are always in R, G, B order;
// reordering for the hardware happens in Format.
type RGBColor [3]uint8

var (
	_ encoding.TextUnmarshaler = (*RGBColor)(nil)
	_ encoding.TextMarshaler   = (*RGBColor)(nil)
)

// Black is the color of an unlit LED.
var Black = RGBColor{}

// RGB returns a new RGBColor.
func RGB(r, g, b uint8) RGBColor {
	return RGBColor{r, g, b}
}

// Scale returns the color with each channel multiplied by n/255.
func (c RGBColor) Scale(n uint8) RGBColor {
	return RGBColor{
		uint8(uint(c[0]) * uint(n) / 0xFF),
		uint8(uint(c[1]) * uint(n) / 0xFF),
		uint8(uint(c[2]) * uint(n) / 0xFF),
	}
}

// UnmarshalText parses colors in the "#rrggbb" form.
func (c *RGBColor) UnmarshalText(text []byte) error {
	s := strings.TrimPrefix(string(text), "#")
	if len(s) != 6 {
		return fmt.Errorf("invalid color %q: expected #rrggbb", text)
	}
	var b [3]byte
	if _, err := hex.Decode(b[:], []byte(s)); err != nil {
		return fmt.Errorf("invalid color %q: %w", text, err)
	}
	*c = RGBColor(b)
	return nil
}

// MarshalText formats the color as "#rrggbb".
func (c RGBColor) MarshalText() ([]byte, error) {
	return []byte("#" + hex.EncodeToString(c[:])), nil
}

func (c RGBColor) String() string {
	b, _ := c.MarshalText()
	return string(b)
}

// LEDs describes a strip of LEDs. It is a preallocated slice of RGBColor.
type LEDs []RGBColor

// NewLEDs creates a new strip of LEDs. Colors are initialized to black
// (off).
func NewLEDs(numLEDs int) LEDs {
	return make(LEDs, numLEDs)
}

// Set sets the color of the LED at the given index. Out of range indices are
// ignored.
func (l LEDs) Set(i int, c RGBColor) {
	if i >= 0 && i < len(l) {
		l[i] = c
	}
}

// SetRange sets the color of the LEDs in [start, end), clipped to the strip.
func (l LEDs) SetRange(start, end int, c RGBColor) {
	start = max(start, 0)
	end = min(end, len(l))
	for i := start; i < end; i++ {
		l[i] = c
	}
}

// Fill sets every LED to the given color.
func (l LEDs) Fill(c RGBColor) {
	for i := range l {
		l[i] = c
	}
}

// Segment returns the [lower, upper) LED range that slot i of n occupies when
// the strip is divided evenly between n slots.
func Segment(numLEDs, i, n int) (lower, upper int) {
	if n <= 0 {
		return 0, 0
	}
	return i * numLEDs / n, (i + 1) * numLEDs / n
}
