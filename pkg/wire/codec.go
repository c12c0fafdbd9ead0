package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Handshake and framing constants.
const (
	// ActOneSize is the size of the initiator's first handshake act.
	ActOneSize = 50

	// ActTwoSize is the size of the responder's handshake act.
	ActTwoSize = 50

	// ActThreeSize is the size of the initiator's final handshake act.
	ActThreeSize = 66

	// HandshakeVersion is the only accepted value of an act's first byte.
	HandshakeVersion = 0

	// MACSize is the size of a Poly1305 tag.
	MACSize = 16

	// LengthSize is the size of the message length prefix.
	LengthSize = 2

	// HeaderSize is the size of a framed message header (length + MAC).
	HeaderSize = LengthSize + MACSize

	// MinBodySize is the smallest valid body: a 2-byte message type.
	MinBodySize = 2

	// MaxBodySize is the largest body a 2-byte length can describe.
	MaxBodySize = 65535
)

// Decode errors. Every error the codec produces for bad input wraps ErrDecode.
var (
	// ErrDecode indicates the input could not be delimited into a unit.
	ErrDecode = errors.New("decode error")

	// ErrBadVersion indicates a handshake act with an unknown version byte.
	ErrBadVersion = fmt.Errorf("%w: bad handshake version", ErrDecode)

	// ErrTruncated indicates the input ended in the middle of a unit.
	ErrTruncated = fmt.Errorf("%w: truncated unit", ErrDecode)

	// ErrBodyTooShort indicates a message length below MinBodySize.
	ErrBodyTooShort = fmt.Errorf("%w: message body too short", ErrDecode)

	// ErrBadStep indicates a negative step index.
	ErrBadStep = errors.New("invalid step index")
)

// UnitKind distinguishes handshake acts from framed messages.
type UnitKind uint8

const (
	// UnitAct is a handshake act.
	UnitAct UnitKind = iota
	// UnitMessage is a framed protocol message.
	UnitMessage
)

// String returns the unit kind name.
func (k UnitKind) String() string {
	switch k {
	case UnitAct:
		return "ACT"
	case UnitMessage:
		return "MESSAGE"
	default:
		return "UNKNOWN"
	}
}

// Codec reads the next delimited unit from a byte stream.
type Codec interface {
	// ReadUnit returns the exact bytes of the unit at the given step.
	// While step < HandshakeActs(initiator) the unit is a handshake act,
	// afterwards it is a framed message.
	ReadUnit(r io.Reader, step int, initiator bool) ([]byte, error)
}

// HandshakeActs returns how many handshake acts one direction carries.
func HandshakeActs(initiator bool) int {
	if initiator {
		return 2
	}
	return 1
}

// KindAt returns the kind of the unit at the given step.
func KindAt(step int, initiator bool) UnitKind {
	if step < HandshakeActs(initiator) {
		return UnitAct
	}
	return UnitMessage
}

// ActSize returns the size of the handshake act at the given step.
// It returns 0 when the step is past the handshake.
func ActSize(step int, initiator bool) int {
	switch {
	case step < 0 || step >= HandshakeActs(initiator):
		return 0
	case !initiator:
		return ActTwoSize
	case step == 0:
		return ActOneSize
	default:
		return ActThreeSize
	}
}

// MessageSize returns the total size of a framed message with the given body length.
func MessageSize(bodyLen int) int {
	return HeaderSize + bodyLen + MACSize
}

// LightningCodec implements Codec for BOLT #8 connections.
// It is stateless and safe for concurrent use.
type LightningCodec struct{}

// NewLightningCodec creates a Lightning unit codec.
func NewLightningCodec() *LightningCodec {
	return &LightningCodec{}
}

// ReadUnit reads one handshake act or framed message.
func (c *LightningCodec) ReadUnit(r io.Reader, step int, initiator bool) ([]byte, error) {
	if step < 0 {
		return nil, ErrBadStep
	}
	if step < HandshakeActs(initiator) {
		return ReadAct(r, ActSize(step, initiator))
	}
	return ReadMessage(r)
}

// ReadAct reads a handshake act of the given size.
func ReadAct(r io.Reader, size int) ([]byte, error) {
	act := make([]byte, size)
	if err := readFull(r, act, true); err != nil {
		return nil, err
	}
	if act[0] != HandshakeVersion {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, act[0])
	}
	return act, nil
}

// ReadMessage reads one framed message, header and MACs included.
func ReadMessage(r io.Reader) ([]byte, error) {
	var header [HeaderSize]byte
	if err := readFull(r, header[:], true); err != nil {
		return nil, err
	}

	length := int(binary.BigEndian.Uint16(header[:LengthSize]))
	if length < MinBodySize {
		return nil, fmt.Errorf("%w: %d", ErrBodyTooShort, length)
	}

	msg := make([]byte, MessageSize(length))
	copy(msg, header[:])
	if err := readFull(r, msg[HeaderSize:], false); err != nil {
		return nil, err
	}
	return msg, nil
}

// EncodeMessage frames body with a plaintext length and zeroed MACs.
func EncodeMessage(body []byte) ([]byte, error) {
	if len(body) < MinBodySize {
		return nil, fmt.Errorf("%w: %d", ErrBodyTooShort, len(body))
	}
	if len(body) > MaxBodySize {
		return nil, fmt.Errorf("message body too large: %d > %d", len(body), MaxBodySize)
	}
	msg := make([]byte, MessageSize(len(body)))
	binary.BigEndian.PutUint16(msg[:LengthSize], uint16(len(body)))
	copy(msg[HeaderSize:], body)
	return msg, nil
}

// readFull fills buf. A clean EOF before the first byte is returned as io.EOF
// only when atBoundary is set; any other short read is ErrTruncated.
func readFull(r io.Reader, buf []byte, atBoundary bool) error {
	_, err := io.ReadFull(r, buf)
	switch {
	case err == nil:
		return nil
	case err == io.EOF && atBoundary:
		return io.EOF
	case err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF):
		return ErrTruncated
	default:
		return fmt.Errorf("read failed: %w", err)
	}
}

// Compile-time interface satisfaction check.
var _ Codec = (*LightningCodec)(nil)
