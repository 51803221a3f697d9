package input

import (
	"os"

	"github.com/holoplot/go-evdev"
	"github.com/pkg/errors"
)

// EncoderPaths locates a mouse used as a positional encoder.
type EncoderPaths struct {
	// Detect is checked for existence to decide whether an encoder is
	// plugged in, e.g. /dev/input/mouse0.
	Detect string
	// Events is the evdev node events are read from, e.g. /dev/input/event0.
	Events string
}

// EncoderPresent reports whether the encoder's detect path exists.
func EncoderPresent(paths EncoderPaths) bool {
	if paths.Detect == "" {
		return false
	}
	_, err := os.Stat(paths.Detect)
	return err == nil
}

// Encoder reads horizontal relative motion from an evdev device.
type Encoder struct {
	dev *evdev.InputDevice
}

// OpenEncoder opens the encoder's event device.
func OpenEncoder(paths EncoderPaths) (*Encoder, error) {
	dev, err := evdev.Open(paths.Events)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open encoder %s", paths.Events)
	}
	return &Encoder{dev: dev}, nil
}

// Name returns the device's name.
func (e *Encoder) Name() string {
	name, err := e.dev.Name()
	if err != nil {
		return "unknown"
	}
	return name
}

// ReadMotion blocks until the device reports a batch of events and returns
// the summed REL_X motion in it. Other axes and event types are ignored, so
// the result may be zero.
func (e *Encoder) ReadMotion() (int, error) {
	var delta int
	for {
		ev, err := e.dev.ReadOne()
		if err != nil {
			return delta, err
		}

		switch {
		case ev.Type == evdev.EV_REL && ev.Code == evdev.REL_X:
			delta += int(ev.Value)
		case ev.Type == evdev.EV_SYN && ev.Code == evdev.SYN_REPORT:
			return delta, nil
		}
	}
}

// Close closes the device. A ReadMotion blocked on it returns an error.
func (e *Encoder) Close() error {
	return e.dev.Close()
}
