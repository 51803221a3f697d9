package led

import (
	"fmt"
	"strings"
)

// Order is the position of the red, green and blue bytes within a pixel on
// the wire. Order{2, 1, 0} means the strip expects B, G, R.
type Order [3]uint8

// OrderRGB is the identity order.
var OrderRGB = Order{0, 1, 2}

// ParseOrder parses an order string such as "bgr". The string must be a
// permutation of "rgb"; case is ignored.
func ParseOrder(s string) (Order, error) {
	s = strings.ToLower(s)
	if len(s) != 3 {
		return Order{}, fmt.Errorf("invalid channel order %q", s)
	}

	var o Order
	var seen [3]bool
	for i, ch := range []byte(s) {
		var c int
		switch ch {
		case 'r':
			c = 0
		case 'g':
			c = 1
		case 'b':
			c = 2
		default:
			return Order{}, fmt.Errorf("invalid channel order %q", s)
		}
		if seen[c] {
			return Order{}, fmt.Errorf("invalid channel order %q: repeated %q", s, ch)
		}
		seen[c] = true
		o[c] = uint8(i)
	}

	return o, nil
}

func (o Order) String() string {
	var b [3]byte
	b[o[0]] = 'r'
	b[o[1]] = 'g'
	b[o[2]] = 'b'
	return string(b[:])
}

// Layout is a wire layout for a whole strip frame.
type Layout uint8

const (
	// DotStarLayout is the APA102 layout: a 4-byte zero start frame, 4 bytes
	// per pixel (0xFF global brightness byte and three color bytes) and an
	// end frame of (n+15)/16 0xFF bytes.
	DotStarLayout Layout = iota
	// PackedLayout is 3 bytes per pixel with no framing, as consumed by the
	// serial controller.
	PackedLayout
)

// ParseLayout parses "dotstar" or "packed".
func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(s) {
	case "dotstar", "apa102":
		return DotStarLayout, nil
	case "packed", "rgb":
		return PackedLayout, nil
	default:
		return 0, fmt.Errorf("unknown strip layout %q", s)
	}
}

func (l Layout) String() string {
	switch l {
	case DotStarLayout:
		return "dotstar"
	case PackedLayout:
		return "packed"
	default:
		return fmt.Sprintf("Layout(%d)", l)
	}
}

// Format describes how a strip of LEDs is encoded into a frame buffer. The
// same Format is used for status painting and for rendered image columns.
type Format struct {
	Layout Layout
	Order  Order
}

const dotStarHeader = 4

func (f Format) header() int {
	if f.Layout == DotStarLayout {
		return dotStarHeader
	}
	return 0
}

func (f Format) pixelSize() int {
	if f.Layout == DotStarLayout {
		return 4
	}
	return 3
}

func (f Format) footer(numLEDs int) int {
	if f.Layout == DotStarLayout {
		return (numLEDs + 15) / 16
	}
	return 0
}

// FrameSize returns the size in bytes of a frame for numLEDs pixels.
func (f Format) FrameSize(numLEDs int) int {
	return f.header() + numLEDs*f.pixelSize() + f.footer(numLEDs)
}

// NewFrame allocates a frame for numLEDs pixels with all pixels off and the
// framing bytes already in place.
func (f Format) NewFrame(numLEDs int) []byte {
	frame := make([]byte, f.FrameSize(numLEDs))
	if f.Layout == DotStarLayout {
		for i := 0; i < numLEDs; i++ {
			frame[dotStarHeader+i*4] = 0xFF
		}
		for i := dotStarHeader + numLEDs*4; i < len(frame); i++ {
			frame[i] = 0xFF
		}
	}
	return frame
}

// PixelOffset returns the offset of pixel i's first color byte.
func (f Format) PixelOffset(i int) int {
	off := f.header() + i*f.pixelSize()
	if f.Layout == DotStarLayout {
		off++ // brightness byte
	}
	return off
}

// Put writes channel values r, g, b for pixel i into frame.
func (f Format) Put(frame []byte, i int, r, g, b uint8) {
	off := f.PixelOffset(i)
	frame[off+int(f.Order[0])] = r
	frame[off+int(f.Order[1])] = g
	frame[off+int(f.Order[2])] = b
}

// Encode writes all of leds into frame.
func (f Format) Encode(frame []byte, leds LEDs) {
	for i, c := range leds {
		f.Put(frame, i, c[0], c[1], c[2])
	}
}

// Pixel reads pixel i back out of a frame.
func (f Format) Pixel(frame []byte, i int) RGBColor {
	off := f.PixelOffset(i)
	return RGBColor{
		frame[off+int(f.Order[0])],
		frame[off+int(f.Order[1])],
		frame[off+int(f.Order[2])],
	}
}
