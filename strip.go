package lightpaint

import (
	"log/slog"

	"github.com/pkg/errors"
	"libdb.so/lightpaint/internal/led"
	"libdb.so/lightpaint/internal/transport"
)

// Device is a strip transport. It writes whole encoded frames to the
// hardware.
type Device interface {
	WriteFrame(frame []byte) error
	Close() error
}

var (
	_ Device = (*transport.SPI)(nil)
	_ Device = (*transport.Serial)(nil)
	_ Device = (*transport.Memory)(nil)
)

// OpenStrip opens the strip transport described by cfg.
func OpenStrip(cfg *Config, logger *slog.Logger) (*Strip, error) {
	format, err := cfg.Strip.Format()
	if err != nil {
		return nil, errors.Wrap(err, "invalid strip format")
	}

	var dev Device
	switch cfg.Strip.Transport {
	case SPITransport:
		dev, err = transport.OpenSPI(cfg.Strip.Device, cfg.Strip.Hz)
	case SerialTransport:
		dev, err = transport.OpenSerial(cfg.Strip.Device, cfg.Strip.Baud, cfg.NumLEDs, logger)
	case MemoryTransport:
		dev = &transport.Memory{}
	default:
		err = errors.Errorf("unknown strip transport %q", cfg.Strip.Transport)
	}
	if err != nil {
		return nil, err
	}

	logger.Debug("opened strip",
		"transport", cfg.Strip.Transport,
		"device", cfg.Strip.Device,
		"format", format.Layout.String()+"/"+format.Order.String())

	return NewStrip(dev, format, cfg.NumLEDs), nil
}

// Strip is an LED strip. Status colors are painted per pixel and sent with
// Show; rendered image columns are sent as whole frames with Push. Both use
// the same Format.
type Strip struct {
	dev    Device
	format led.Format
	leds   led.LEDs
	status []byte
}

// NewStrip creates a strip of numLEDs pixels on dev.
func NewStrip(dev Device, format led.Format, numLEDs int) *Strip {
	return &Strip{
		dev:    dev,
		format: format,
		leds:   led.NewLEDs(numLEDs),
		status: format.NewFrame(numLEDs),
	}
}

// Len returns the number of pixels.
func (s *Strip) Len() int { return len(s.leds) }

// Format returns the strip's frame format.
func (s *Strip) Format() led.Format { return s.format }

// NewFrame allocates a blank frame for Push.
func (s *Strip) NewFrame() []byte { return s.format.NewFrame(len(s.leds)) }

// Push sends a complete frame to the strip. The status pixels are left
// untouched.
func (s *Strip) Push(frame []byte) error {
	return s.dev.WriteFrame(frame)
}

// SetPixel sets one status pixel. It is shown on the next Show.
func (s *Strip) SetPixel(i int, c led.RGBColor) {
	s.leds.Set(i, c)
}

// SetRange sets the status pixels in [lower, upper).
func (s *Strip) SetRange(lower, upper int, c led.RGBColor) {
	s.leds.SetRange(lower, upper, c)
}

// Show sends the status pixels to the strip.
func (s *Strip) Show() error {
	s.format.Encode(s.status, s.leds)
	return s.dev.WriteFrame(s.status)
}

// Clear turns every pixel off.
func (s *Strip) Clear() error {
	s.leds.Fill(led.Black)
	return s.Show()
}

// Close clears the strip and closes the device.
func (s *Strip) Close() error {
	clearErr := s.Clear()
	if err := s.dev.Close(); err != nil {
		return errors.Wrap(err, "failed to close strip device")
	}
	return clearErr
}
