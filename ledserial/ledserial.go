// Package ledserial implements the LED serial protocol spoken between the
// painter and a microcontroller that drives the strip.
//
// Every packet is a one byte type, a type-specific body and a little endian
// CRC-32 (IEEE) of the type and body.
package ledserial

import (
	"encoding/binary"
	"fmt"
	"hash"
	"hash/crc32"
	"io"

	"github.com/pkg/errors"
)

// Endianness defines the endianness of the protocol.
var Endianness = binary.LittleEndian

// ErrChecksum is returned when a packet's checksum does not match its
// contents.
var ErrChecksum = errors.New("packet checksum mismatch")

// IncomingPacketType is the type of a packet sent to the controller.
type IncomingPacketType uint8

const (
	TypeInitializePacket IncomingPacketType = iota
	TypeClearPacket
	TypeSetPacket
)

// String returns a string representation of the packet type.
func (t IncomingPacketType) String() string {
	switch t {
	case TypeInitializePacket:
		return "initialize"
	case TypeClearPacket:
		return "clear"
	case TypeSetPacket:
		return "set"
	default:
		return fmt.Sprintf("IncomingPacketType(%d)", t)
	}
}

// IncomingPacket is a packet sent to the controller.
type IncomingPacket interface {
	// Type returns the type of packet.
	Type() IncomingPacketType
}

// InitializePacket sets the strip length. It must be the first packet.
type InitializePacket struct {
	NumLEDs uint16
}

// ClearPacket turns every LED off.
type ClearPacket struct{}

// SetPacket sets the LED strip to the given colors. Pix holds 3 bytes per
// LED in the strip's wire order.
type SetPacket struct {
	Pix []uint8
}

func (p InitializePacket) Type() IncomingPacketType { return TypeInitializePacket }
func (p ClearPacket) Type() IncomingPacketType      { return TypeClearPacket }
func (p SetPacket) Type() IncomingPacketType        { return TypeSetPacket }

// OutgoingPacketType is the type of a packet sent by the controller.
type OutgoingPacketType uint8

const (
	TypeErrorPacket OutgoingPacketType = iota
	TypePanicPacket
	TypeLogPacket
	TypeAckPacket
)

// String returns a string representation of the packet type.
func (t OutgoingPacketType) String() string {
	switch t {
	case TypeErrorPacket:
		return "error"
	case TypePanicPacket:
		return "panic"
	case TypeLogPacket:
		return "log"
	case TypeAckPacket:
		return "ack"
	default:
		return fmt.Sprintf("OutgoingPacketType(%d)", t)
	}
}

// OutgoingPacket is a packet sent by the controller.
type OutgoingPacket interface {
	// Type returns the type of packet.
	Type() OutgoingPacketType
}

// ErrorPacket is a packet that indicates an error occurred.
type ErrorPacket struct {
	Message string
}

// PanicPacket is a packet that indicates the controller cannot recover.
type PanicPacket struct{}

// LogPacket is a packet that contains a log message.
type LogPacket struct {
	Message string
}

// AckPacket acknowledges that an incoming packet was handled and the
// controller is ready for the next one.
type AckPacket struct {
	IncomingPacketType IncomingPacketType
}

func (p ErrorPacket) Type() OutgoingPacketType { return TypeErrorPacket }
func (p PanicPacket) Type() OutgoingPacketType { return TypePanicPacket }
func (p LogPacket) Type() OutgoingPacketType   { return TypeLogPacket }
func (p AckPacket) Type() OutgoingPacketType   { return TypeAckPacket }

// ReadContext is the state of the LED strip. Data in this structure are
// required for the device to read incoming packets.
type ReadContext struct {
	// NumLEDs is the number of LEDs in the strip, as set by the last
	// InitializePacket.
	NumLEDs uint16
	// LEDBuffer, if large enough, is reused for SetPacket pixel data.
	LEDBuffer []byte
}

// ReadIncomingPacket reads an incoming packet from the given reader.
func ReadIncomingPacket(r io.Reader, context ReadContext) (IncomingPacket, error) {
	hash := crc32.NewIEEE()
	r = io.TeeReader(r, hash)

	var ptypeBuf [1]byte
	if _, err := io.ReadFull(r, ptypeBuf[:]); err != nil {
		return nil, errors.Wrap(err, "failed to read incoming packet type")
	}

	var packet IncomingPacket

	switch ptype := IncomingPacketType(ptypeBuf[0]); ptype {
	case TypeInitializePacket:
		var p InitializePacket
		if err := binary.Read(r, Endianness, &p); err != nil {
			return nil, errors.Wrap(err, "failed to read number of LEDs")
		}
		packet = p

	case TypeClearPacket:
		packet = ClearPacket{}

	case TypeSetPacket:
		var p SetPacket
		size := 3 * int(context.NumLEDs)
		if len(context.LEDBuffer) >= size {
			p.Pix = context.LEDBuffer[:size]
		} else {
			p.Pix = make([]uint8, size)
		}
		if _, err := io.ReadFull(r, p.Pix); err != nil {
			return nil, errors.Wrap(err, "failed to read pixel data")
		}
		packet = p

	default:
		return nil, fmt.Errorf("unknown packet type: %s", ptype)
	}

	if err := readChecksum(r, hash); err != nil {
		return nil, err
	}

	return packet, nil
}

// WriteIncomingPacket writes an incoming packet to the given writer.
func WriteIncomingPacket(w io.Writer, p IncomingPacket) error {
	hash := crc32.NewIEEE()
	w = io.MultiWriter(w, hash)

	if err := binary.Write(w, Endianness, p.Type()); err != nil {
		return errors.Wrap(err, "failed to write packet type")
	}

	switch p := p.(type) {
	case InitializePacket:
		if err := binary.Write(w, Endianness, p); err != nil {
			return errors.Wrap(err, "failed to write packet")
		}
	case ClearPacket:
	case SetPacket:
		if _, err := w.Write(p.Pix); err != nil {
			return errors.Wrap(err, "failed to write pixel data")
		}
	default:
		return fmt.Errorf("unknown packet type: %T", p)
	}

	return writeChecksum(w, hash)
}

// ReadOutgoingPacket reads an outgoing packet from the given reader.
func ReadOutgoingPacket(r io.Reader) (OutgoingPacket, error) {
	hash := crc32.NewIEEE()
	r = io.TeeReader(r, hash)

	var ptypeBuf [1]byte
	if _, err := io.ReadFull(r, ptypeBuf[:]); err != nil {
		return nil, errors.Wrap(err, "failed to read outgoing packet type")
	}

	var packet OutgoingPacket

	switch ptype := OutgoingPacketType(ptypeBuf[0]); ptype {
	case TypeErrorPacket:
		msg, err := readString(r)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read error message")
		}
		packet = ErrorPacket{Message: msg}

	case TypePanicPacket:
		packet = PanicPacket{}

	case TypeLogPacket:
		msg, err := readString(r)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read log message")
		}
		packet = LogPacket{Message: msg}

	case TypeAckPacket:
		var p AckPacket
		if err := binary.Read(r, Endianness, &p.IncomingPacketType); err != nil {
			return nil, errors.Wrap(err, "failed to read acked packet type")
		}
		packet = p

	default:
		return nil, fmt.Errorf("unknown packet type: %s", ptype)
	}

	if err := readChecksum(r, hash); err != nil {
		return nil, err
	}

	return packet, nil
}

// WriteOutgoingPacket writes an outgoing packet to the given writer.
func WriteOutgoingPacket(w io.Writer, p OutgoingPacket) error {
	hash := crc32.NewIEEE()
	w = io.MultiWriter(w, hash)

	if err := binary.Write(w, Endianness, p.Type()); err != nil {
		return errors.Wrap(err, "failed to write packet type")
	}

	switch p := p.(type) {
	case ErrorPacket:
		if err := writeString(w, p.Message); err != nil {
			return errors.Wrap(err, "failed to write error message")
		}
	case PanicPacket:
	case LogPacket:
		if err := writeString(w, p.Message); err != nil {
			return errors.Wrap(err, "failed to write log message")
		}
	case AckPacket:
		if err := binary.Write(w, Endianness, p.IncomingPacketType); err != nil {
			return errors.Wrap(err, "failed to write acked packet type")
		}
	default:
		return fmt.Errorf("unknown packet type: %T", p)
	}

	return writeChecksum(w, hash)
}

func readString(r io.Reader) (string, error) {
	var length uint16
	if err := binary.Read(r, Endianness, &length); err != nil {
		return "", err
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeString(w io.Writer, s string) error {
	if len(s) > 0xFFFF {
		s = s[:0xFFFF]
	}
	if err := binary.Write(w, Endianness, uint16(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

// readChecksum reads the trailer and compares it against h, which must hold
// the sum of everything before the trailer.
func readChecksum(r io.Reader, h hash.Hash32) error {
	want := h.Sum32()

	var got uint32
	if err := binary.Read(r, Endianness, &got); err != nil {
		return errors.Wrap(err, "failed to read packet checksum")
	}
	if got != want {
		return ErrChecksum
	}
	return nil
}

func writeChecksum(w io.Writer, h hash.Hash32) error {
	if err := binary.Write(w, Endianness, h.Sum32()); err != nil {
		return errors.Wrap(err, "failed to write packet checksum")
	}
	return nil
}
