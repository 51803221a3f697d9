package lightpaint

import (
	"context"
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"libdb.so/lightpaint/internal/input"
	"libdb.so/lightpaint/internal/led"
	"libdb.so/lightpaint/internal/metrics"
	"libdb.so/lightpaint/internal/transport"
)

// scriptedButtons returns its script one poll at a time, then None.
type scriptedButtons struct {
	mu     sync.Mutex
	script []input.Button
	polls  int
}

func (b *scriptedButtons) Poll() input.Button {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.polls++
	if len(b.script) == 0 {
		return input.None
	}
	next := b.script[0]
	b.script = b.script[1:]
	return next
}

func (b *scriptedButtons) press(buttons ...input.Button) {
	b.mu.Lock()
	b.script = append(b.script, buttons...)
	b.mu.Unlock()
}

// recordingSequence records the positions it was asked to render.
type recordingSequence struct {
	positions []float64
}

func (s *recordingSequence) Render(frame []byte, pos float64) {
	s.positions = append(s.positions, pos)
	for i := range frame {
		frame[i] = 0x42
	}
}

type testPainter struct {
	*Painter
	buttons *scriptedButtons
	mem     *transport.Memory
	metrics *metrics.Metrics
}

func newTestPainter(t *testing.T, media string, opts ...Option) *testPainter {
	t.Helper()

	cfg := testConfig(media)
	strip, mem := newTestStrip(t, cfg)
	buttons := &scriptedButtons{}
	m := metrics.Discard()

	opts = append([]Option{WithMetrics(m)}, opts...)
	p, err := NewPainter(cfg, Hardware{Strip: strip, Buttons: buttons}, discardLogger(), opts...)
	if err != nil {
		t.Fatal(err)
	}

	return &testPainter{
		Painter: p,
		buttons: buttons,
		mem:     mem,
		metrics: m,
	}
}

func (p *testPainter) mustCycle(t *testing.T) {
	t.Helper()
	if err := p.handleLoad(p.cycle(context.Background())); err != nil {
		t.Fatal(err)
	}
}

func TestNewPainter(t *testing.T) {
	p := newTestPainter(t, t.TempDir())

	if p.clock.Name() != "timer" {
		t.Errorf("clock = %s, want timer", p.clock.Name())
	}
	if want := p.speed.Pixel(2 * time.Second); p.state.speedPixel != want {
		t.Errorf("initial speed pixel = %d, want %d", p.state.speedPixel, want)
	}
	if p.state.duration != p.speed.Duration(p.state.speedPixel) {
		t.Errorf("initial duration = %v", p.state.duration)
	}
	if p.state.repeat != 200*time.Millisecond {
		t.Errorf("initial repeat = %v", p.state.repeat)
	}

	cfg := testConfig(t.TempDir())
	strip, _ := newTestStrip(t, cfg)
	enc := &fakeEncoder{}
	ep, err := NewPainter(cfg, Hardware{Strip: strip, Buttons: &scriptedButtons{}, Encoder: enc}, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	if ep.clock.Name() != "encoder" {
		t.Errorf("clock = %s, want encoder", ep.clock.Name())
	}

	cfg.NumLEDs = 1
	if _, err := NewPainter(cfg, Hardware{Strip: strip, Buttons: &scriptedButtons{}}, discardLogger()); err == nil {
		t.Error("NewPainter accepted an invalid configuration")
	}
}

func TestRescanAutoloads(t *testing.T) {
	p := newTestPainter(t, mixedMedia(t))

	if err := p.rescan(); err != nil {
		t.Fatal(err)
	}

	if n := p.state.catalog.Len(); n != 3 {
		t.Fatalf("catalog has %d entries, want 3", n)
	}
	if p.state.index != 0 {
		t.Errorf("index = %d, want 0", p.state.index)
	}
	if p.state.sequence == nil {
		t.Error("entry 0 was not loaded")
	}
	if n := testutil.ToFloat64(p.metrics.CatalogImages); n != 3 {
		t.Errorf("catalog images = %v, want 3", n)
	}
}

func TestRescanEmpty(t *testing.T) {
	p := newTestPainter(t, t.TempDir())

	if err := p.rescan(); err != nil {
		t.Fatal(err)
	}

	if p.state.catalog == nil || p.state.catalog.Len() != 0 {
		t.Errorf("catalog = %+v, want empty", p.state.catalog)
	}
	if p.state.sequence != nil {
		t.Error("a sequence was loaded from empty media")
	}
	if n := p.mem.Count(); n != 0 {
		t.Errorf("strip updated %d times, want 0", n)
	}
}

func TestRescanMissingMedia(t *testing.T) {
	p := newTestPainter(t, filepath.Join(t.TempDir(), "usb"))

	if err := p.rescan(); err != nil {
		t.Fatalf("rescan without media: %v", err)
	}
	if p.state.catalog != nil {
		t.Errorf("catalog = %+v, want none", p.state.catalog)
	}
}

func TestRescanListingFailure(t *testing.T) {
	file := filepath.Join(t.TempDir(), "usb")
	writeFile(t, file, "not a directory")

	p := newTestPainter(t, file)
	old := &Catalog{Root: file, Entries: []string{"x.png"}}
	p.state.catalog = old
	p.state.index = 0

	if err := p.rescan(); err == nil {
		t.Fatal("rescan of a file succeeded")
	}
	if p.state.catalog != old {
		t.Error("catalog changed by a failed rescan")
	}
}

func TestNavigationWraps(t *testing.T) {
	p := newTestPainter(t, mixedMedia(t))
	if err := p.rescan(); err != nil {
		t.Fatal(err)
	}

	steps := []struct {
		button input.Button
		index  int
	}{
		{input.Prev, 2},
		{input.Prev, 1},
		{input.Next, 2},
		{input.Next, 0},
		{input.Next, 1},
	}

	for i, step := range steps {
		p.state.sequence = nil
		p.buttons.press(step.button)
		p.mustCycle(t)

		if p.state.index != step.index {
			t.Errorf("step %d: %v moved to %d, want %d", i, step.button, p.state.index, step.index)
		}
		if p.state.sequence == nil {
			t.Errorf("step %d: no sequence loaded", i)
		}
	}
}

func TestNavigationHoldsUntilRelease(t *testing.T) {
	p := newTestPainter(t, mixedMedia(t))
	if err := p.rescan(); err != nil {
		t.Fatal(err)
	}

	p.buttons.press(input.Next, input.Next, input.Next, input.Next)
	p.mustCycle(t)

	if p.state.index != 1 {
		t.Errorf("index = %d, want 1", p.state.index)
	}
	if p.buttons.polls != 5 {
		t.Errorf("polled %d times, want 5", p.buttons.polls)
	}
}

func TestNavigationWithoutMedia(t *testing.T) {
	p := newTestPainter(t, t.TempDir())

	p.buttons.press(input.Next)
	p.mustCycle(t)

	if p.state.index != 0 || p.state.sequence != nil {
		t.Errorf("navigated without media: index %d", p.state.index)
	}
	if n := p.mem.Count(); n != 0 {
		t.Errorf("strip updated %d times, want 0", n)
	}
}

func TestNavigationLoadFailure(t *testing.T) {
	media := mixedMedia(t)
	p := newTestPainter(t, media)
	if err := p.rescan(); err != nil {
		t.Fatal(err)
	}

	if err := os.Remove(filepath.Join(media, "b.png")); err != nil {
		t.Fatal(err)
	}

	p.buttons.press(input.Next)
	p.mustCycle(t)

	if p.state.index != 1 {
		t.Errorf("index = %d, want 1", p.state.index)
	}
	if p.state.sequence != nil {
		t.Error("sequence kept after a failed load")
	}

	p.buttons.press(input.Next)
	p.mustCycle(t)

	if p.state.index != 2 || p.state.sequence == nil {
		t.Errorf("could not navigate past a failed load")
	}
}

func TestInvalidateKeepsSequence(t *testing.T) {
	p := newTestPainter(t, mixedMedia(t), WithNow(newFakeNow(100*time.Millisecond).Now))
	if err := p.rescan(); err != nil {
		t.Fatal(err)
	}

	p.buttons.press(input.Next)
	p.mustCycle(t)

	p.Events().RequestInvalidate()
	if err := p.serviceMedia(); err != nil {
		t.Fatal(err)
	}

	if p.state.catalog != nil || p.state.index != 0 {
		t.Errorf("catalog not invalidated: %+v, index %d", p.state.catalog, p.state.index)
	}
	if p.state.sequence == nil {
		t.Fatal("invalidation dropped the sequence")
	}

	before := testutil.ToFloat64(p.metrics.Frames)
	p.buttons.press(input.Go)
	p.mustCycle(t)

	if n := testutil.ToFloat64(p.metrics.Frames); n <= before {
		t.Error("stale sequence did not paint")
	}
}

func TestServiceMediaOrder(t *testing.T) {
	p := newTestPainter(t, mixedMedia(t))

	p.Events().RequestRescan()
	p.Events().RequestInvalidate()
	if err := p.serviceMedia(); err != nil {
		t.Fatal(err)
	}

	if n := p.state.catalog.Len(); n != 3 {
		t.Errorf("catalog has %d entries after invalidate and rescan, want 3", n)
	}

	invalidate, rescan := p.Events().take()
	if invalidate || rescan {
		t.Error("requests not cleared")
	}
}

func TestSpeedClamped(t *testing.T) {
	tests := []struct {
		name   string
		start  int
		button input.Button
		want   int
	}{
		{"faster at fastest", 0, input.Faster, 0},
		{"slower at slowest", testLEDs - 1, input.Slower, testLEDs - 1},
		{"faster", 3, input.Faster, 2},
		{"slower", 3, input.Slower, 4},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			p := newTestPainter(t, t.TempDir())
			p.state.speedPixel = test.start
			p.state.duration = p.speed.Duration(test.start)
			before := p.state.duration

			p.buttons.press(test.button)
			p.mustCycle(t)

			if p.state.speedPixel != test.want {
				t.Errorf("speed pixel = %d, want %d", p.state.speedPixel, test.want)
			}
			if want := p.speed.Duration(test.want); p.state.duration != want {
				t.Errorf("duration = %v, want %v", p.state.duration, want)
			}
			if test.start == test.want && p.state.duration != before {
				t.Errorf("clamped duration changed from %v to %v", before, p.state.duration)
			}

			// The marker shows even when clamped, then the strip clears.
			frames := p.mem.Frames()
			if len(frames) != 2 {
				t.Fatalf("strip updated %d times, want 2", len(frames))
			}
			format := p.strip.Format()
			if got := format.Pixel(frames[0], test.want); got != p.cfg.Status.Speed {
				t.Errorf("marker pixel = %v, want %v", got, p.cfg.Status.Speed)
			}
			if got := format.Pixel(frames[1], test.want); got != led.Black {
				t.Errorf("marker not cleared: %v", got)
			}
		})
	}
}

func TestSpeedRepeat(t *testing.T) {
	p := newTestPainter(t, t.TempDir(), WithNow(newFakeNow(time.Millisecond).Now))
	p.state.speedPixel = 7

	held := make([]input.Button, 1000)
	for i := range held {
		held[i] = input.Faster
	}
	p.buttons.press(held...)

	var intervals []time.Duration
	for i := 0; i < 3; i++ {
		p.mustCycle(t)
		intervals = append(intervals, p.state.repeat)
	}

	if p.state.speedPixel != 4 {
		t.Errorf("speed pixel = %d, want 4", p.state.speedPixel)
	}

	want := []time.Duration{200 * time.Millisecond, 184 * time.Millisecond, 169280 * time.Microsecond}
	for i := range want {
		if intervals[i] != want[i] {
			t.Errorf("repeat after cycle %d = %v, want %v", i, intervals[i], want[i])
		}
	}

	p.buttons.mu.Lock()
	p.buttons.script = nil
	p.buttons.mu.Unlock()

	p.mustCycle(t)
	if p.state.repeat != 200*time.Millisecond {
		t.Errorf("repeat after release = %v, want 200ms", p.state.repeat)
	}
}

func TestPaint(t *testing.T) {
	tests := []struct {
		name    string
		held    bool
		cleared bool
	}{
		{"released", false, true},
		{"held", true, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			p := newTestPainter(t, t.TempDir(), WithNow(newFakeNow(250*time.Millisecond).Now))
			seq := &recordingSequence{}
			p.state.sequence = seq
			p.state.duration = time.Second

			p.buttons.press(input.Go)
			if test.held {
				p.buttons.press(input.Go)
			}
			p.mustCycle(t)

			want := []float64{0.25, 0.5, 0.75, 1}
			if len(seq.positions) != len(want) {
				t.Fatalf("rendered positions %v, want %v", seq.positions, want)
			}
			for i := range want {
				if seq.positions[i] != want[i] {
					t.Errorf("position %d = %v, want %v", i, seq.positions[i], want[i])
				}
			}

			frames := p.mem.Frames()
			pushed := 4
			if test.cleared {
				pushed++
			}
			if len(frames) != pushed {
				t.Fatalf("strip updated %d times, want %d", len(frames), pushed)
			}

			last := frames[len(frames)-1]
			isBlank := string(last) == string(p.strip.NewFrame())
			if isBlank != test.cleared {
				t.Errorf("last frame blank = %v, want %v", isBlank, test.cleared)
			}

			if n := testutil.ToFloat64(p.metrics.Gestures.WithLabelValues("timer")); n != 1 {
				t.Errorf("gestures = %v, want 1", n)
			}
			if n := testutil.ToFloat64(p.metrics.Frames); n != 4 {
				t.Errorf("frames = %v, want 4", n)
			}
		})
	}
}

func TestPaintWithoutSequence(t *testing.T) {
	p := newTestPainter(t, t.TempDir())

	p.buttons.press(input.Go)
	p.mustCycle(t)

	if n := p.mem.Count(); n != 0 {
		t.Errorf("strip updated %d times, want 0", n)
	}
}

func TestPaintEncoder(t *testing.T) {
	cfg := testConfig(t.TempDir())
	strip, mem := newTestStrip(t, cfg)
	buttons := &scriptedButtons{}

	enc := &fakeEncoder{}
	for i := 0; i < 3; i++ {
		enc.push(60, nil)
	}

	p, err := NewPainter(cfg, Hardware{Strip: strip, Buttons: buttons, Encoder: enc}, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	seq := &recordingSequence{}
	p.state.sequence = seq
	p.state.speedPixel = 0

	buttons.press(input.Go)
	if err := p.cycle(context.Background()); err != nil {
		t.Fatal(err)
	}

	// 0.6, then 1.2 ends the gesture.
	if len(seq.positions) != 1 {
		t.Errorf("rendered positions %v, want one", seq.positions)
	}
	if string(mem.Last()) != string(strip.NewFrame()) {
		t.Error("strip not cleared after release")
	}
}

func TestRunClearsOnCancel(t *testing.T) {
	p := newTestPainter(t, mixedMedia(t))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	err := p.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}

	if p.state.catalog.Len() != 3 || p.state.sequence == nil {
		t.Error("media was not scanned and loaded on start")
	}
	if string(p.mem.Last()) != string(p.strip.NewFrame()) {
		t.Error("strip not cleared on exit")
	}
}

func TestRunMediaRequests(t *testing.T) {
	media := filepath.Join(t.TempDir(), "usb")
	p := newTestPainter(t, media)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	if err := os.Mkdir(media, 0o755); err != nil {
		t.Fatal(err)
	}
	writePNG(t, filepath.Join(media, "a.png"), 2, testLEDs, color.NRGBA{9, 9, 9, 255})
	p.Events().RequestRescan()

	deadline := time.Now().Add(5 * time.Second)
	for testutil.ToFloat64(p.metrics.Loads.WithLabelValues("ok")) < 1 {
		if time.Now().After(deadline) {
			t.Fatal("rescan request was not serviced")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v", err)
	}
}
