package lightpaint

import (
	"encoding"
	"fmt"
	"io"
	"time"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
	"libdb.so/lightpaint/internal/input"
	"libdb.so/lightpaint/internal/led"
)

// Config is the configuration for the light painter.
type Config struct {
	// NumLEDs is the length of the strip, in pixels.
	NumLEDs int `toml:"num_leds"`
	// Media is the removable media mount point scanned for images.
	Media string `toml:"media"`

	Strip   StripConfig   `toml:"strip"`
	Buttons ButtonConfig  `toml:"buttons"`
	Encoder EncoderConfig `toml:"encoder"`
	Image   ImageConfig   `toml:"image"`
	Speed   SpeedConfig   `toml:"speed"`
	Status  StatusConfig  `toml:"status"`
	Watch   WatchConfig   `toml:"watch"`
}

// Transport is the kind of strip transport.
type Transport string

const (
	// SPITransport writes DotStar frames to an SPI bus.
	SPITransport Transport = "spi"
	// SerialTransport sends packed frames to a serial LED controller.
	SerialTransport Transport = "serial"
	// MemoryTransport discards frames. Useful for dry runs.
	MemoryTransport Transport = "memory"
)

// StripConfig configures the strip transport and its frame format.
type StripConfig struct {
	Transport Transport `toml:"transport"`
	// Device is the SPI port name (empty for the default port) or the serial
	// device path.
	Device string `toml:"device"`
	// Hz is the SPI clock rate. 12MHz is about the limit for a 288 pixel
	// strip before it glitches.
	Hz int64 `toml:"hz"`
	// Baud is the serial baud rate.
	Baud int `toml:"baud"`
	// Layout is "dotstar" or "packed". It defaults to the transport's
	// native layout.
	Layout string `toml:"layout"`
	// Order is the strip's color order: "bgr" for current DotStars, "gbr" or
	// "brg" for older strips.
	Order string `toml:"order"`
	// VFlip is true when the strip's input end is at the bottom.
	VFlip *bool `toml:"vflip"`
}

// Format returns the frame format described by the layout and order.
func (c StripConfig) Format() (led.Format, error) {
	layout, err := led.ParseLayout(c.Layout)
	if err != nil {
		return led.Format{}, err
	}
	order, err := led.ParseOrder(c.Order)
	if err != nil {
		return led.Format{}, err
	}
	return led.Format{Layout: layout, Order: order}, nil
}

// ButtonConfig names the GPIO pin of each button.
type ButtonConfig struct {
	Go     string `toml:"go"`
	Faster string `toml:"faster"`
	Slower string `toml:"slower"`
	Next   string `toml:"next"`
	Prev   string `toml:"prev"`
}

// Pins returns the pins in button code order.
func (c ButtonConfig) Pins() input.Pins {
	return input.Pins{c.Go, c.Faster, c.Slower, c.Next, c.Prev}
}

// EncoderConfig locates the optional positional encoder.
type EncoderConfig struct {
	// Detect is checked once at startup; the encoder is used for the
	// lifetime of the process only if it exists.
	Detect string `toml:"detect"`
	// Events is the evdev node to read motion from.
	Events string `toml:"events"`
}

// Paths returns the encoder's device paths.
func (c EncoderConfig) Paths() input.EncoderPaths {
	return input.EncoderPaths{Detect: c.Detect, Events: c.Events}
}

// ImageConfig configures image preparation.
type ImageConfig struct {
	// Gamma is the gamma correction exponent for R, G, B.
	Gamma []float64 `toml:"gamma"`
	// ColorBalance is the maximum brightness for R, G, B.
	ColorBalance []int `toml:"color_balance"`
	// Power is the battery's current budget.
	Power PowerConfig `toml:"power"`
}

// PowerConfig is a current budget in milliamps.
type PowerConfig struct {
	Average float64 `toml:"average"`
	Peak    float64 `toml:"peak"`
}

// SpeedConfig bounds the paint duration.
type SpeedConfig struct {
	Min     TOMLDuration `toml:"min"`
	Max     TOMLDuration `toml:"max"`
	Initial TOMLDuration `toml:"initial"`
}

// StatusConfig configures the status shown on the strip itself.
type StatusConfig struct {
	Scan    led.RGBColor `toml:"scan"`
	Load    led.RGBColor `toml:"load"`
	Process led.RGBColor `toml:"process"`
	Ready   led.RGBColor `toml:"ready"`
	Speed   led.RGBColor `toml:"speed"`

	// ScanPause is held after each image found so progress is visible.
	ScanPause TOMLDuration `toml:"scan_pause"`
	// ReadyPause is how long the ready color shows after a load.
	ReadyPause TOMLDuration `toml:"ready_pause"`
}

// WatchConfig configures the media mount watcher.
type WatchConfig struct {
	// Enabled watches the media mount point's parent directory for the
	// mount point appearing and disappearing.
	Enabled *bool `toml:"enabled"`
	// Debounce delays a rescan after the mount point appears.
	Debounce TOMLDuration `toml:"debounce"`
}

// DefaultConfig returns the configuration for a 144 pixel DotStar strip on a
// Raspberry Pi.
func DefaultConfig() *Config {
	var cfg Config
	cfg.setDefaults(func(string) bool { return false })
	return &cfg
}

// setDefaults fills in unset values. Values where zero is meaningful, like a
// black status color or no pause, are only defaulted if isSet reports their
// key missing from the file.
func (c *Config) setDefaults(isSet func(key string) bool) {
	setDefault(&c.NumLEDs, 144)
	setDefault(&c.Media, "/media/usb")

	setDefault(&c.Strip.Transport, SPITransport)
	setDefault(&c.Strip.Hz, 12_000_000)
	setDefault(&c.Strip.Baud, 115200)
	if c.Strip.Layout == "" {
		if c.Strip.Transport == SerialTransport {
			c.Strip.Layout = "packed"
		} else {
			c.Strip.Layout = "dotstar"
		}
	}
	setDefault(&c.Strip.Order, "bgr")
	if c.Strip.VFlip == nil {
		vflip := true
		c.Strip.VFlip = &vflip
	}
	if c.Strip.Device == "" && c.Strip.Transport == SerialTransport {
		c.Strip.Device = "/dev/ttyACM0"
	}

	setDefault(&c.Buttons.Go, "GPIO22")
	setDefault(&c.Buttons.Faster, "GPIO23")
	setDefault(&c.Buttons.Slower, "GPIO24")
	setDefault(&c.Buttons.Next, "GPIO17")
	setDefault(&c.Buttons.Prev, "GPIO4")

	setDefault(&c.Encoder.Detect, "/dev/input/mouse0")
	setDefault(&c.Encoder.Events, "/dev/input/event0")

	if c.Image.Gamma == nil {
		c.Image.Gamma = []float64{2.8, 2.8, 2.8}
	}
	if c.Image.ColorBalance == nil {
		c.Image.ColorBalance = []int{128, 255, 180}
	}
	setDefault(&c.Image.Power.Average, 1450)
	setDefault(&c.Image.Power.Peak, 1550)

	setDefault(&c.Speed.Min, TOMLDuration(100*time.Millisecond))
	setDefault(&c.Speed.Max, TOMLDuration(10*time.Second))
	setDefault(&c.Speed.Initial, TOMLDuration(2*time.Second))

	setUnset(isSet, "status.scan", &c.Status.Scan, led.RGB(1, 1, 0))
	setUnset(isSet, "status.load", &c.Status.Load, led.RGB(1, 0, 0))
	setUnset(isSet, "status.process", &c.Status.Process, led.RGB(1, 1, 0))
	setUnset(isSet, "status.ready", &c.Status.Ready, led.RGB(0, 1, 0))
	setUnset(isSet, "status.speed", &c.Status.Speed, led.RGB(0, 0, 128))
	setUnset(isSet, "status.scan_pause", &c.Status.ScanPause, TOMLDuration(50*time.Millisecond))
	setUnset(isSet, "status.ready_pause", &c.Status.ReadyPause, TOMLDuration(250*time.Millisecond))

	if c.Watch.Enabled == nil {
		enabled := true
		c.Watch.Enabled = &enabled
	}
	setUnset(isSet, "watch.debounce", &c.Watch.Debounce, TOMLDuration(time.Second))
}

func setDefault[T comparable](v *T, def T) {
	var zero T
	if *v == zero {
		*v = def
	}
}

func setUnset[T any](isSet func(string) bool, key string, v *T, def T) {
	if !isSet(key) {
		*v = def
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.NumLEDs < 2 {
		return fmt.Errorf("num_leds must be at least 2, got %d", c.NumLEDs)
	}
	if c.NumLEDs > 0xFFFF {
		return fmt.Errorf("num_leds %d is too large", c.NumLEDs)
	}
	if c.Media == "" {
		return errors.New("no media path configured")
	}

	switch c.Strip.Transport {
	case SPITransport, SerialTransport, MemoryTransport:
	default:
		return fmt.Errorf("unknown strip transport %q", c.Strip.Transport)
	}

	format, err := c.Strip.Format()
	if err != nil {
		return errors.Wrap(err, "invalid strip format")
	}
	if c.Strip.Transport == SerialTransport && format.Layout != led.PackedLayout {
		return errors.New("serial transport requires the packed layout")
	}
	if c.Strip.Transport == SPITransport && c.Strip.Hz <= 0 {
		return fmt.Errorf("invalid SPI clock rate %d", c.Strip.Hz)
	}

	for i, pin := range c.Buttons.Pins() {
		if pin == "" {
			return fmt.Errorf("no pin configured for %s button", input.Button(i+1))
		}
	}

	if len(c.Image.Gamma) != 3 {
		return fmt.Errorf("gamma needs 3 values, got %d", len(c.Image.Gamma))
	}
	for _, g := range c.Image.Gamma {
		if g <= 0 {
			return fmt.Errorf("invalid gamma %v", g)
		}
	}
	if len(c.Image.ColorBalance) != 3 {
		return fmt.Errorf("color_balance needs 3 values, got %d", len(c.Image.ColorBalance))
	}
	for _, b := range c.Image.ColorBalance {
		if b < 0 || b > 255 {
			return fmt.Errorf("color_balance value %d out of range [0, 255]", b)
		}
	}
	if c.Image.Power.Average <= 0 || c.Image.Power.Peak <= 0 {
		return errors.New("power budget must be positive")
	}

	lo, hi := time.Duration(c.Speed.Min), time.Duration(c.Speed.Max)
	if lo <= 0 || hi <= lo {
		return fmt.Errorf("invalid speed range [%v, %v]", lo, hi)
	}
	if initial := time.Duration(c.Speed.Initial); initial < lo || initial > hi {
		return fmt.Errorf("initial duration %v outside [%v, %v]", initial, lo, hi)
	}

	if c.Status.ScanPause < 0 || c.Status.ReadyPause < 0 || c.Watch.Debounce < 0 {
		return errors.New("pauses and debounce must not be negative")
	}

	return nil
}

// TOMLDuration is a duration that can be parsed from TOML.
type TOMLDuration time.Duration

var (
	_ encoding.TextUnmarshaler = (*TOMLDuration)(nil)
	_ encoding.TextMarshaler   = (*TOMLDuration)(nil)
)

func (d *TOMLDuration) UnmarshalText(text []byte) error {
	duration, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = TOMLDuration(duration)
	return nil
}

func (d TOMLDuration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// ParseConfig parses a configuration from a reader. Missing values take
// their defaults.
func ParseConfig(r io.Reader) (*Config, error) {
	tree, err := toml.LoadReader(r)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := tree.Unmarshal(&config); err != nil {
		return nil, err
	}
	config.setDefaults(tree.Has)
	return &config, nil
}
