package transport

import (
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"
	"golang.org/x/sync/errgroup"
	"libdb.so/lightpaint/ledserial"
)

// DefaultAckTimeout is how long Serial waits for the controller to
// acknowledge a packet.
const DefaultAckTimeout = time.Second

// Serial drives a strip through a microcontroller speaking the ledserial
// protocol. Frames must be packed RGB, 3 bytes per LED.
type Serial struct {
	port    io.ReadWriteCloser
	logger  *slog.Logger
	numLEDs int
	timeout time.Duration

	acks    chan ledserial.AckPacket
	done    chan struct{}
	readErr error
	closing atomic.Bool
	errg    errgroup.Group
}

// OpenSerial opens the serial device and initializes the controller for
// numLEDs LEDs.
func OpenSerial(device string, baud, numLEDs int, logger *slog.Logger) (*Serial, error) {
	port, err := serial.Open(device, &serial.Mode{
		BaudRate: baud,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open serial port")
	}

	if err := port.SetReadTimeout(serial.NoTimeout); err != nil {
		port.Close()
		return nil, errors.Wrap(err, "failed to reset read timeout")
	}

	return NewSerial(port, numLEDs, logger)
}

// NewSerial speaks the protocol over an already open port. The port is
// closed if the controller cannot be initialized.
func NewSerial(port io.ReadWriteCloser, numLEDs int, logger *slog.Logger) (*Serial, error) {
	s := &Serial{
		port:    port,
		logger:  logger,
		numLEDs: numLEDs,
		timeout: DefaultAckTimeout,
		acks:    make(chan ledserial.AckPacket, 4),
		done:    make(chan struct{}),
	}

	s.errg.Go(func() error {
		defer close(s.done)
		s.readErr = s.readPackets()
		return s.readErr
	})

	s.logger.Debug("sending initialize packet", "num_leds", numLEDs)
	if err := s.send(ledserial.InitializePacket{NumLEDs: uint16(numLEDs)}); err != nil {
		s.Close()
		return nil, errors.Wrap(err, "failed to initialize LEDs")
	}

	return s, nil
}

// WriteFrame sends a frame and waits for the controller to take it.
func (s *Serial) WriteFrame(frame []byte) error {
	if len(frame) != 3*s.numLEDs {
		return errors.Errorf("frame is %d bytes, want %d", len(frame), 3*s.numLEDs)
	}
	return s.send(ledserial.SetPacket{Pix: frame})
}

func (s *Serial) send(p ledserial.IncomingPacket) error {
	if err := ledserial.WriteIncomingPacket(s.port, p); err != nil {
		return errors.Wrapf(err, "failed to write %s packet", p.Type())
	}
	return s.waitAck(p.Type())
}

func (s *Serial) waitAck(t ledserial.IncomingPacketType) error {
	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	for {
		select {
		case ack := <-s.acks:
			if ack.IncomingPacketType == t {
				return nil
			}
			// An ack for an earlier packet that timed out.
		case <-s.done:
			if s.readErr != nil {
				return s.readErr
			}
			return errors.New("serial port closed")
		case <-timer.C:
			return errors.Errorf("timed out waiting for %s ack", t)
		}
	}
}

func (s *Serial) readPackets() error {
	for {
		p, err := ledserial.ReadOutgoingPacket(s.port)
		if err != nil {
			if s.closing.Load() {
				return nil
			}
			// A short read indicates a timeout. This is expected.
			if errors.Is(err, io.EOF) {
				continue
			}
			if errors.Is(err, ledserial.ErrChecksum) {
				s.logger.Warn("dropping corrupt packet from controller")
				continue
			}
			return errors.Wrap(err, "failed to read packet")
		}

		switch p := p.(type) {
		case ledserial.AckPacket:
			select {
			case s.acks <- p:
			default:
				s.logger.Debug("dropping unexpected ack", "acked_for", p.IncomingPacketType)
			}

		case ledserial.ErrorPacket:
			s.logger.Warn(
				"received error packet from controller",
				"message", p.Message)

		case ledserial.PanicPacket:
			s.logger.Error("controller unrecoverably panicked")
			return errors.New("controller panicked")

		case ledserial.LogPacket:
			s.logger.Info(
				"received log packet from controller",
				"message", p.Message)
		}
	}
}

// Close closes the port and waits for the read loop to stop.
func (s *Serial) Close() error {
	s.closing.Store(true)
	err := s.port.Close()
	s.errg.Wait()
	if err != nil {
		return errors.Wrap(err, "failed to close serial port")
	}
	return nil
}
