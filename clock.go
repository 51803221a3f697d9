package lightpaint

import (
	"log/slog"
	"time"

	"libdb.so/lightpaint/internal/metrics"
)

// Clock supplies the playback position during a painting gesture. The
// gesture ends once the position exceeds 1.
type Clock interface {
	// Start begins a gesture at the current speed.
	Start(speedPixel int, duration time.Duration)
	// Position returns the column to render, from 0 to 1. It may block.
	Position() float64
	// Name names the clock source.
	Name() string
}

// TimerClock advances playback with wall-clock time.
type TimerClock struct {
	now      func() time.Time
	start    time.Time
	duration time.Duration
}

var _ Clock = (*TimerClock)(nil)

// NewTimerClock creates a timer clock reading time from now.
func NewTimerClock(now func() time.Time) *TimerClock {
	return &TimerClock{now: now}
}

func (c *TimerClock) Name() string { return "timer" }

func (c *TimerClock) Start(_ int, duration time.Duration) {
	c.start = c.now()
	c.duration = duration
}

// Position returns elapsed / duration.
func (c *TimerClock) Position() float64 {
	return position(c.now().Sub(c.start), c.duration)
}

func position(elapsed, duration time.Duration) float64 {
	return elapsed.Seconds() / duration.Seconds()
}

// Encoder reports relative physical motion.
type Encoder interface {
	// ReadMotion blocks until motion events arrive and returns their summed
	// horizontal delta.
	ReadMotion() (int, error)
}

// EncoderClock advances playback with the motion of a positional encoder.
// The speed pixel scales how much motion crosses the whole image.
type EncoderClock struct {
	enc     Encoder
	logger  *slog.Logger
	metrics *metrics.Metrics

	acc   int
	scale float64
	lost  bool
}

var _ Clock = (*EncoderClock)(nil)

// NewEncoderClock creates a clock reading from enc.
func NewEncoderClock(enc Encoder, logger *slog.Logger, m *metrics.Metrics) *EncoderClock {
	return &EncoderClock{
		enc:     enc,
		logger:  logger,
		metrics: m,
	}
}

func (c *EncoderClock) Name() string { return "encoder" }

func (c *EncoderClock) Start(speedPixel int, _ time.Duration) {
	c.acc = 0
	c.scale = 0.01 / float64(speedPixel+1)
}

// Position waits for motion and returns |accumulated motion| * scale.
//
// A failed read leaves the position where it was; the next call tries
// again. The gesture stalls for as long as the device stays unreadable,
// which usually means the battery sagged and the USB device dropped out.
func (c *EncoderClock) Position() float64 {
	delta, err := c.enc.ReadMotion()
	if err != nil {
		c.metrics.EncoderErrors.Inc()
		if !c.lost {
			c.logger.Warn("lost encoder connection", "error", err)
			c.lost = true
		}
	} else if c.lost {
		c.logger.Info("encoder connection recovered")
		c.lost = false
	}

	c.acc += delta
	return c.position()
}

func (c *EncoderClock) position() float64 {
	acc := c.acc
	if acc < 0 {
		acc = -acc
	}
	return float64(acc) * c.scale
}
