package log

import (
	"time"

	"github.com/remyers/lnproxy/pkg/wire"
)

// MaxDataSize is the largest unit prefix stored in an event.
const MaxDataSize = 4096

// Event is a tunnel log event.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the local connection (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	// PeerID is the remote node identity.
	PeerID string `cbor:"3,keyasint,omitempty"`

	// Direction of the data flow.
	Direction Direction `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// Type-specific payload (one of these will be set).
	Unit        *UnitEvent        `cbor:"10,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"11,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"12,keyasint,omitempty"`
}

// Direction indicates which pump produced the event.
type Direction uint8

const (
	// DirectionIn is mesh to local node.
	DirectionIn Direction = 0
	// DirectionOut is local node to mesh.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryUnit indicates a handshake act or framed message crossed the tunnel.
	CategoryUnit Category = 0
	// CategoryState indicates a connection state change.
	CategoryState Category = 1
	// CategoryError indicates an error event.
	CategoryError Category = 2
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryUnit:
		return "UNIT"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// UnitEvent captures one delimited unit.
type UnitEvent struct {
	// Kind is act or message.
	Kind wire.UnitKind `cbor:"1,keyasint"`

	// Step is the pump's counter value for this unit.
	Step int `cbor:"2,keyasint"`

	// Size is the unit size in bytes.
	Size int `cbor:"3,keyasint"`

	// Data is the unit prefix (may be truncated).
	Data []byte `cbor:"4,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"5,keyasint,omitempty"`
}

// NewUnitEvent builds a UnitEvent, truncating data to MaxDataSize.
func NewUnitEvent(kind wire.UnitKind, step int, data []byte) *UnitEvent {
	ev := &UnitEvent{
		Kind: kind,
		Step: step,
		Size: len(data),
		Data: data,
	}
	if len(data) > MaxDataSize {
		ev.Data = data[:MaxDataSize]
		ev.Truncated = true
	}
	return ev
}

// StateChangeEvent captures connection lifecycle events.
type StateChangeEvent struct {
	// OldState is the previous state (may be empty).
	OldState string `cbor:"1,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"2,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"3,keyasint,omitempty"`
}

// ErrorEventData captures a connection error.
type ErrorEventData struct {
	// Kind is the error class (decode, transport, closed, setup).
	Kind string `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"3,keyasint,omitempty"`
}
