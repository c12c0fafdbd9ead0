package mesh

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/remyers/lnproxy/pkg/meshqueue"
)

// Envelope limits.
const (
	// MaxPayloadSize bounds a decompressed payload. It fits the largest
	// framed Lightning message with room for chunking slack.
	MaxPayloadSize = 128 * 1024

	// MinCompressSize is the smallest payload worth compressing.
	MinCompressSize = 64
)

// Envelope errors.
var (
	// ErrInvalidEnvelope indicates bytes that are not a valid envelope.
	ErrInvalidEnvelope = errors.New("invalid envelope")

	// ErrPayloadTooLarge indicates a payload above MaxPayloadSize.
	ErrPayloadTooLarge = errors.New("payload too large")
)

// EnvelopeType distinguishes tunnel data from link control.
type EnvelopeType uint8

const (
	// TypeData carries one block of a peer's tunnel stream.
	TypeData EnvelopeType = 0

	// TypeHello registers the sender's identity with a gateway.
	TypeHello EnvelopeType = 1
)

// String returns the type name.
func (t EnvelopeType) String() string {
	switch t {
	case TypeData:
		return "DATA"
	case TypeHello:
		return "HELLO"
	default:
		return "UNKNOWN"
	}
}

// Envelope is one unit of mesh traffic.
type Envelope struct {
	Type       EnvelopeType     `cbor:"1,keyasint"`
	From       meshqueue.PeerID `cbor:"2,keyasint"`
	To         meshqueue.PeerID `cbor:"3,keyasint,omitempty"`
	Payload    []byte           `cbor:"4,keyasint,omitempty"`
	Compressed bool             `cbor:"5,keyasint,omitempty"`
}

var (
	envEncMode cbor.EncMode
	envDecMode cbor.DecMode

	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error

	envEncMode, err = cbor.EncOptions{
		Sort:        cbor.SortCanonical,
		IndefLength: cbor.IndefLengthForbidden,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create envelope CBOR encoder mode: %v", err))
	}

	envDecMode, err = cbor.DecOptions{
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
		IndefLength:      cbor.IndefLengthForbidden,
		MaxArrayElements: 16,
		MaxMapPairs:      16,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create envelope CBOR decoder mode: %v", err))
	}

	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		panic(fmt.Sprintf("failed to create zstd encoder: %v", err))
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxPayloadSize))
	if err != nil {
		panic(fmt.Sprintf("failed to create zstd decoder: %v", err))
	}
}

// Encode serialises the envelope. With compress set, payloads of at least
// MinCompressSize bytes are zstd-compressed when that makes them smaller.
func (e Envelope) Encode(compress bool) ([]byte, error) {
	if len(e.Payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(e.Payload), MaxPayloadSize)
	}
	e.Compressed = false
	if compress && len(e.Payload) >= MinCompressSize {
		packed := zstdEncoder.EncodeAll(e.Payload, nil)
		if len(packed) < len(e.Payload) {
			e.Payload = packed
			e.Compressed = true
		}
	}
	return envEncMode.Marshal(e)
}

// DecodeEnvelope parses and, if needed, decompresses an envelope. The
// result always has Compressed unset.
func DecodeEnvelope(data []byte) (Envelope, error) {
	env, err := decodeRaw(data)
	if err != nil {
		return Envelope{}, err
	}
	if env.Compressed {
		payload, err := zstdDecoder.DecodeAll(env.Payload, nil)
		if err != nil {
			return Envelope{}, fmt.Errorf("%w: decompress: %v", ErrInvalidEnvelope, err)
		}
		if len(payload) > MaxPayloadSize {
			return Envelope{}, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(payload), MaxPayloadSize)
		}
		env.Payload = payload
		env.Compressed = false
	}
	return env, nil
}

// decodeRaw parses an envelope without touching the payload. Routers use it
// to read addresses.
func decodeRaw(data []byte) (Envelope, error) {
	var env Envelope
	if err := envDecMode.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if env.From == "" {
		return Envelope{}, fmt.Errorf("%w: missing sender", ErrInvalidEnvelope)
	}
	return env, nil
}
