package lightpaint

import (
	"context"
	"io"
	"io/fs"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"libdb.so/lightpaint/internal/input"
	"libdb.so/lightpaint/internal/metrics"
)

// Buttons reads the control buttons.
type Buttons interface {
	// Poll returns the highest priority button held down, or input.None.
	// It must not block.
	Poll() input.Button
}

// Hardware is the hardware the painter drives.
type Hardware struct {
	Strip   *Strip
	Buttons Buttons
	// Encoder is the optional positional encoder. If nil, painting is timed.
	// If it is also an io.Closer, it is closed when the painter stops.
	Encoder Encoder
}

// Option configures a Painter.
type Option func(*Painter)

// WithNow sets the painter's time source.
func WithNow(now func() time.Time) Option {
	return func(p *Painter) { p.now = now }
}

// WithMetrics sets the painter's metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Painter) { p.metrics = m }
}

// Painter is the light painter. It lets the operator pick an image from the
// media and paints it one column at a time on the strip while the go button
// is held.
type Painter struct {
	cfg     *Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	strip   *Strip
	buttons Buttons
	encoder Encoder
	clock   Clock
	speed   Speed
	scanner *Scanner
	loader  *Loader
	events  *MediaEvents
	frame   []byte

	state painterState
}

// painterState is owned by the render loop.
type painterState struct {
	catalog    *Catalog
	index      int
	sequence   Sequence
	speedPixel int
	duration   time.Duration
	prev       input.Button
	repeat     time.Duration
}

// NewPainter creates a new painter.
func NewPainter(cfg *Config, hw Hardware, logger *slog.Logger, opts ...Option) (*Painter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	if hw.Strip == nil || hw.Buttons == nil {
		return nil, errors.New("painter needs a strip and buttons")
	}

	if hw.Strip.Len() != cfg.NumLEDs {
		return nil, errors.Errorf(
			"strip has %d pixels, configuration says %d", hw.Strip.Len(), cfg.NumLEDs)
	}

	p := &Painter{
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		strip:   hw.Strip,
		buttons: hw.Buttons,
		encoder: hw.Encoder,
		speed: Speed{
			NumLEDs: cfg.NumLEDs,
			Min:     time.Duration(cfg.Speed.Min),
			Max:     time.Duration(cfg.Speed.Max),
		},
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.metrics == nil {
		p.metrics = metrics.Discard()
	}

	if p.encoder != nil {
		p.clock = NewEncoderClock(p.encoder, logger, p.metrics)
	} else {
		p.clock = NewTimerClock(p.now)
	}

	p.scanner = NewScanner(cfg, p.strip, logger, p.metrics)
	p.loader = NewLoader(cfg, p.strip, logger, p.metrics)
	p.events = NewMediaEvents(p.metrics)
	p.frame = p.strip.NewFrame()

	p.state.speedPixel = p.speed.Pixel(time.Duration(cfg.Speed.Initial))
	p.state.duration = p.speed.Duration(p.state.speedPixel)
	p.state.repeat = repeatInitial
	p.metrics.SpeedPixel.Set(float64(p.state.speedPixel))

	logger.Debug("created painter",
		"clock", p.clock.Name(),
		"speed_pixel", p.state.speedPixel,
		"duration", p.state.duration)

	return p, nil
}

// Events returns the painter's media event flags.
func (p *Painter) Events() *MediaEvents { return p.events }

// Run runs the painter. It blocks until the given context is canceled or
// an unrecoverable error occurs. The strip is cleared before it returns.
func (p *Painter) Run(ctx context.Context) error {
	errg, ctx := errgroup.WithContext(ctx)

	errg.Go(func() error {
		return p.events.Notify(ctx, p.logger)
	})

	if *p.cfg.Watch.Enabled {
		errg.Go(func() error {
			return p.events.Watch(ctx, p.cfg.Media, time.Duration(p.cfg.Watch.Debounce), p.logger)
		})
	}

	if closer, ok := p.encoder.(io.Closer); ok {
		errg.Go(func() error {
			<-ctx.Done()
			p.logger.Debug("closing encoder")
			if err := closer.Close(); err != nil {
				return errors.Wrap(err, "failed to close encoder")
			}
			return nil
		})
	}

	errg.Go(func() error {
		return p.mainLoop(ctx)
	})

	return errg.Wait()
}

func (p *Painter) mainLoop(ctx context.Context) error {
	defer func() {
		if err := p.strip.Clear(); err != nil {
			p.logger.Warn("failed to clear strip", "error", err)
		}
	}()

	if err := p.handleLoad(p.rescan()); err != nil {
		return err
	}

	for ctx.Err() == nil {
		if err := p.handleLoad(p.serviceMedia()); err != nil {
			return err
		}
		if err := p.handleLoad(p.cycle(ctx)); err != nil {
			return err
		}
	}

	return ctx.Err()
}

// handleLoad reports a failed load and swallows it. The operator can
// navigate elsewhere.
func (p *Painter) handleLoad(err error) error {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		p.logger.Error("cannot load image",
			"file", loadErr.Entry,
			"error", loadErr.Err)
		return nil
	}
	return err
}

func (p *Painter) serviceMedia() error {
	invalidate, rescan := p.events.take()

	if invalidate {
		p.logger.Info("media gone, dropping catalog")
		p.state.catalog = nil
		p.state.index = 0
		p.metrics.CatalogImages.Set(0)
	}

	if rescan {
		return p.rescan()
	}

	return nil
}

// rescan scans the media and loads its first image. A missing mount point
// means there is no media.
func (p *Painter) rescan() error {
	catalog, err := p.scanner.Scan(p.cfg.Media)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			p.logger.Info("no media", "root", p.cfg.Media)
			p.state.catalog = nil
			p.state.index = 0
			return nil
		}
		return err
	}

	p.state.catalog = catalog
	p.state.index = 0

	if catalog.Len() == 0 {
		return nil
	}

	return p.load()
}

func (p *Painter) load() error {
	p.state.sequence = nil
	seq, err := p.loader.Load(p.state.catalog, p.state.index)
	if err != nil {
		return err
	}
	p.state.sequence = seq
	return nil
}

// cycle handles one button poll.
func (p *Painter) cycle(ctx context.Context) error {
	b := p.buttons.Poll()

	var err error
	switch b {
	case input.Go:
		if p.state.sequence != nil {
			err = p.paint(ctx)
		}
	case input.Faster:
		err = p.adjustSpeed(ctx, b, -1)
	case input.Slower:
		err = p.adjustSpeed(ctx, b, +1)
	case input.Next:
		if p.state.catalog.Len() > 0 {
			err = p.navigate(ctx, b, +1)
		}
	case input.Prev:
		if p.state.catalog.Len() > 0 {
			err = p.navigate(ctx, b, -1)
		}
	}

	p.state.repeat = nextRepeat(p.state.prev, b, p.state.repeat)
	p.state.prev = b

	return err
}

// paint plays the active sequence once. The final column stays lit if go is
// still held afterwards.
func (p *Painter) paint(ctx context.Context) error {
	start := p.now()
	p.clock.Start(p.state.speedPixel, p.state.duration)
	p.metrics.Gestures.WithLabelValues(p.clock.Name()).Inc()

	p.logger.Debug("painting",
		"clock", p.clock.Name(),
		"speed_pixel", p.state.speedPixel,
		"duration", p.state.duration)

	for ctx.Err() == nil {
		pos := p.clock.Position()
		if pos > 1 {
			break
		}

		p.state.sequence.Render(p.frame, pos)
		if err := p.strip.Push(p.frame); err != nil {
			return errors.Wrap(err, "failed to push frame")
		}
		p.metrics.Frames.Inc()
	}

	p.metrics.GestureSeconds.Observe(p.now().Sub(start).Seconds())

	if p.buttons.Poll() != input.Go {
		return p.strip.Clear()
	}
	return nil
}

// adjustSpeed moves the speed pixel by delta and marks it on the strip
// until the button is released or the repeat interval passes.
func (p *Painter) adjustSpeed(ctx context.Context, b input.Button, delta int) error {
	p.state.speedPixel = p.speed.Clamp(p.state.speedPixel + delta)
	p.state.duration = p.speed.Duration(p.state.speedPixel)
	p.metrics.SpeedPixel.Set(float64(p.state.speedPixel))

	p.logger.Debug("speed changed",
		"speed_pixel", p.state.speedPixel,
		"duration", p.state.duration)

	p.strip.SetPixel(p.state.speedPixel, p.cfg.Status.Speed)
	if err := p.strip.Show(); err != nil {
		return errors.Wrap(err, "failed to show speed")
	}

	p.holdWhile(ctx, b, p.state.repeat)

	return p.strip.Clear()
}

// navigate moves through the catalog with wraparound and loads the image.
func (p *Painter) navigate(ctx context.Context, b input.Button, delta int) error {
	n := p.state.catalog.Len()
	p.state.index = ((p.state.index+delta)%n + n) % n

	err := p.load()
	p.holdWhile(ctx, b, 0)

	return err
}

// holdWhile spins while b stays held, for at most limit if limit is
// positive.
func (p *Painter) holdWhile(ctx context.Context, b input.Button, limit time.Duration) {
	start := p.now()
	for ctx.Err() == nil && p.buttons.Poll() == b {
		if limit > 0 && p.now().Sub(start) >= limit {
			return
		}
	}
}
