// Package transport pushes encoded strip frames to hardware.
package transport

import (
	"github.com/pkg/errors"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// SPI writes DotStar frames straight to an SPI bus.
type SPI struct {
	port  spi.PortCloser
	conn  spi.Conn
	chunk int
}

// OpenSPI opens the named SPI port ("" for the first one) at the given clock
// rate.
func OpenSPI(name string, hz int64) (*SPI, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "failed to initialize host drivers")
	}

	port, err := spireg.Open(name)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open SPI port %q", name)
	}

	c, err := port.Connect(physic.Frequency(hz)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, errors.Wrap(err, "failed to configure SPI port")
	}

	s := &SPI{port: port, conn: c}
	if l, ok := c.(conn.Limits); ok {
		s.chunk = l.MaxTxSize()
	}

	return s, nil
}

// WriteFrame writes the frame. Frames larger than the driver's transfer
// limit are split; DotStar clocking makes the split invisible to the strip.
func (s *SPI) WriteFrame(frame []byte) error {
	for len(frame) > 0 {
		n := len(frame)
		if s.chunk > 0 && n > s.chunk {
			n = s.chunk
		}
		if err := s.conn.Tx(frame[:n], nil); err != nil {
			return errors.Wrap(err, "SPI write failed")
		}
		frame = frame[n:]
	}
	return nil
}

// Close closes the SPI port.
func (s *SPI) Close() error {
	return s.port.Close()
}
