package lightpaint

import (
	"fmt"
	"log/slog"
	"time"

	"libdb.so/lightpaint/dither"
	"libdb.so/lightpaint/internal/imaging"
	"libdb.so/lightpaint/internal/led"
	"libdb.so/lightpaint/internal/metrics"
)

// Sequence is a prepared image that renders any fractional column into a
// strip frame.
type Sequence interface {
	Render(frame []byte, position float64)
}

var _ Sequence = (*dither.Sequence)(nil)

// LoadError is returned when a catalog entry fails to load. The catalog
// advertised the entry as valid, so the failure is reported rather than
// skipped.
type LoadError struct {
	Entry string
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %q: %v", e.Entry, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Loader turns catalog entries into sequences.
type Loader struct {
	strip   *Strip
	status  StatusConfig
	opts    dither.Options
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewLoader creates a loader that prepares images for strip.
func NewLoader(cfg *Config, strip *Strip, logger *slog.Logger, m *metrics.Metrics) *Loader {
	opts := dither.Options{
		Power: dither.PowerBudget{
			AverageMilliamps: cfg.Image.Power.Average,
			PeakMilliamps:    cfg.Image.Power.Peak,
		},
		Format: strip.Format(),
		VFlip:  *cfg.Strip.VFlip,
	}
	copy(opts.Gamma[:], cfg.Image.Gamma)
	for i, b := range cfg.Image.ColorBalance {
		if i < len(opts.Balance) {
			opts.Balance[i] = uint8(b)
		}
	}

	return &Loader{
		strip:   strip,
		status:  cfg.Status,
		opts:    opts,
		logger:  logger,
		metrics: m,
	}
}

// Load decodes entry index of the catalog, resizes it to the strip's height
// and prepares it. The entry's slot on the strip shows red while loading,
// yellow while processing and green briefly when ready.
func (l *Loader) Load(c *Catalog, index int) (Sequence, error) {
	seq, err := l.load(c, index)
	if err != nil {
		l.metrics.Loads.WithLabelValues("error").Inc()
		if clearErr := l.strip.Clear(); clearErr != nil {
			l.logger.Warn("failed to clear strip", "error", clearErr)
		}
		return nil, &LoadError{Entry: c.Entries[index], Err: err}
	}
	l.metrics.Loads.WithLabelValues("ok").Inc()
	return seq, nil
}

func (l *Loader) load(c *Catalog, index int) (Sequence, error) {
	start := time.Now()
	numLEDs := l.strip.Len()
	lower, upper := led.Segment(numLEDs, index, c.Len())

	if err := l.showStatus(lower, upper, l.status.Load); err != nil {
		return nil, err
	}

	logger := l.logger.With("file", c.Entries[index])
	logger.Info("loading image")

	img, err := imaging.Load(c.Path(index))
	if err != nil {
		return nil, err
	}

	size := img.Bounds().Size()
	logger.Debug("decoded image", "width", size.X, "height", size.Y)

	if size.Y != numLEDs {
		img = imaging.ResizeHeight(img, numLEDs)
		logger.Debug("resized image", "width", size.X, "height", numLEDs)
	}

	px := imaging.ToPixels(img)
	logger.Debug("decoded", "took", time.Since(start))

	if err := l.showStatus(lower, upper, l.status.Process); err != nil {
		return nil, err
	}

	processStart := time.Now()
	seq, err := dither.Prepare(px.Pix, px.Width, px.Height, l.opts)
	if err != nil {
		return nil, err
	}
	logger.Debug("processed",
		"took", time.Since(processStart),
		"power_scale", seq.PowerScale())

	if err := l.showStatus(lower, upper, l.status.Ready); err != nil {
		return nil, err
	}
	time.Sleep(time.Duration(l.status.ReadyPause))

	if err := l.strip.Clear(); err != nil {
		return nil, err
	}

	l.metrics.LoadSeconds.Observe(time.Since(start).Seconds())
	logger.Info("image ready", "columns", seq.Width(), "rows", seq.Height())

	return seq, nil
}

func (l *Loader) showStatus(lower, upper int, c led.RGBColor) error {
	l.strip.SetRange(lower, upper, c)
	return l.strip.Show()
}
