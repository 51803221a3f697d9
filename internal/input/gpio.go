package input

import (
	"github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// Pins names the GPIO line of each button, in code order.
type Pins [NumButtons]string

// GPIOButtons polls five active-low buttons wired between their pin and
// ground.
type GPIOButtons struct {
	pins [NumButtons]gpio.PinIO
}

// OpenButtons configures the named pins as pulled-up inputs.
func OpenButtons(names Pins) (*GPIOButtons, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "failed to initialize host drivers")
	}

	var b GPIOButtons
	for i, name := range names {
		pin := gpioreg.ByName(name)
		if pin == nil {
			return nil, errors.Errorf("unknown GPIO pin %q for %s button", name, Button(i+1))
		}
		if err := pin.In(gpio.PullUp, gpio.NoEdge); err != nil {
			return nil, errors.Wrapf(err, "failed to configure %s button", Button(i+1))
		}
		b.pins[i] = pin
	}

	return &b, nil
}

// Poll reads all buttons and returns the highest priority one held down. It
// does not block.
func (b *GPIOButtons) Poll() Button {
	var pressed [NumButtons]bool
	for i, pin := range b.pins {
		pressed[i] = pin.Read() == gpio.Low
	}
	return Arbitrate(pressed)
}

// Close releases the pins' pull-ups.
func (b *GPIOButtons) Close() error {
	var firstErr error
	for _, pin := range b.pins {
		if err := pin.In(gpio.Float, gpio.NoEdge); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
