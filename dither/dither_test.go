package dither

import (
	"testing"

	"github.com/pkg/errors"
	"libdb.so/lightpaint/internal/led"
)

var testFormat = led.Format{Layout: led.PackedLayout, Order: led.OrderRGB}

// linearOptions has no gamma curve, full balance and an unlimited power
// budget, so levels pass through unchanged.
func linearOptions() Options {
	return Options{
		Gamma:   [3]float64{1, 1, 1},
		Balance: [3]uint8{255, 255, 255},
		Power:   PowerBudget{AverageMilliamps: 1e9, PeakMilliamps: 1e9},
		Format:  testFormat,
	}
}

// twoColumns is a 2x2 image: left column black, right column white.
func twoColumns() []uint8 {
	return []uint8{
		0, 0, 0, 255, 255, 255,
		0, 0, 0, 255, 255, 255,
	}
}

func TestPrepareEmpty(t *testing.T) {
	_, err := Prepare(nil, 0, 10, linearOptions())
	if !errors.Is(err, ErrEmptyImage) {
		t.Fatalf("expected ErrEmptyImage, got %v", err)
	}

	_, err = Prepare([]uint8{1, 2, 3}, 2, 2, linearOptions())
	if err == nil {
		t.Fatal("expected error for short pixel buffer")
	}
}

func TestRenderColumns(t *testing.T) {
	seq, err := Prepare(twoColumns(), 2, 2, linearOptions())
	if err != nil {
		t.Fatal(err)
	}

	if seq.Width() != 2 || seq.Height() != 2 {
		t.Fatalf("sequence is %dx%d, want 2x2", seq.Width(), seq.Height())
	}

	frame := testFormat.NewFrame(2)

	seq.Render(frame, 0)
	for i := 0; i < 2; i++ {
		if c := testFormat.Pixel(frame, i); c != led.Black {
			t.Errorf("position 0: pixel %d = %v, want black", i, c)
		}
	}

	seq.Render(frame, 1)
	for i := 0; i < 2; i++ {
		if c := testFormat.Pixel(frame, i); c != led.RGB(255, 255, 255) {
			t.Errorf("position 1: pixel %d = %v, want white", i, c)
		}
	}
}

func TestRenderInterpolates(t *testing.T) {
	seq, err := Prepare(twoColumns(), 2, 2, linearOptions())
	if err != nil {
		t.Fatal(err)
	}

	frame := testFormat.NewFrame(2)
	seq.Render(frame, 0.5)

	// Weights at the midpoint are 128/129 of 256, so white lands on 128.
	c := testFormat.Pixel(frame, 0)
	for ch, v := range c {
		if v < 127 || v > 129 {
			t.Errorf("channel %d = %d, want about 128", ch, v)
		}
	}
}

func TestRenderVFlip(t *testing.T) {
	// 1x2 image: red on top, blue below.
	pix := []uint8{255, 0, 0, 0, 0, 255}

	opts := linearOptions()
	opts.VFlip = true

	seq, err := Prepare(pix, 1, 2, opts)
	if err != nil {
		t.Fatal(err)
	}

	frame := testFormat.NewFrame(2)
	seq.Render(frame, 0)

	if c := testFormat.Pixel(frame, 0); c != led.RGB(0, 0, 255) {
		t.Errorf("pixel 0 = %v, want blue", c)
	}
	if c := testFormat.Pixel(frame, 1); c != led.RGB(255, 0, 0) {
		t.Errorf("pixel 1 = %v, want red", c)
	}
}

func TestRenderShortFrame(t *testing.T) {
	seq, err := Prepare(twoColumns(), 2, 2, linearOptions())
	if err != nil {
		t.Fatal(err)
	}

	// Only one pixel fits; the second row must be dropped, not overflow.
	frame := testFormat.NewFrame(1)
	seq.Render(frame, 1)

	if c := testFormat.Pixel(frame, 0); c != led.RGB(255, 255, 255) {
		t.Errorf("pixel 0 = %v, want white", c)
	}
}

func TestPowerScale(t *testing.T) {
	// A single full-white pixel draws 1.25 + 12.95 + 9.90 + 8.45 = 32.55 mA.
	pix := []uint8{255, 255, 255}

	opts := linearOptions()
	opts.Power = PowerBudget{AverageMilliamps: 16.275, PeakMilliamps: 100}

	seq, err := Prepare(pix, 1, 1, opts)
	if err != nil {
		t.Fatal(err)
	}

	if s := seq.PowerScale(); s < 0.499 || s > 0.501 {
		t.Errorf("PowerScale() = %f, want 0.5", s)
	}

	frame := testFormat.NewFrame(1)
	seq.Render(frame, 0)

	c := testFormat.Pixel(frame, 0)
	for ch, v := range c {
		if v != 127 && v != 128 {
			t.Errorf("channel %d = %d, want half brightness", ch, v)
		}
	}
}

func TestPowerScaleNeverBrightens(t *testing.T) {
	seq, err := Prepare([]uint8{10, 10, 10}, 1, 1, linearOptions())
	if err != nil {
		t.Fatal(err)
	}
	if s := seq.PowerScale(); s != 1 {
		t.Errorf("PowerScale() = %f, want 1", s)
	}
}

func TestDitherAveragesFraction(t *testing.T) {
	// Gamma 2 at level 128 gives 0.2519 * 255 = 64.25: the strip must
	// alternate between 64 and 65 so that the average over time is right.
	opts := linearOptions()
	opts.Gamma = [3]float64{2, 2, 2}

	seq, err := Prepare([]uint8{128, 128, 128}, 1, 1, opts)
	if err != nil {
		t.Fatal(err)
	}

	frame := testFormat.NewFrame(1)

	const frames = 256
	var sum int
	for i := 0; i < frames; i++ {
		seq.Render(frame, 0)
		sum += int(testFormat.Pixel(frame, 0)[0])
	}

	avg := float64(sum) / frames
	if avg < 64.1 || avg > 64.4 {
		t.Errorf("average level = %f, want about 64.25", avg)
	}
}
