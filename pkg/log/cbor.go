package log

import (
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// ErrTruncated reports a log that ends inside an event, as left behind when
// the writing process died mid-record.
var ErrTruncated = errors.New("event log truncated")

// Events are encoded with RFC 8949 core deterministic rules so the same event
// always produces the same bytes. Timestamps are RFC 3339 strings.
var (
	eventEncMode = mustEventEncMode()
	eventDecMode = mustEventDecMode()
)

func mustEventEncMode() cbor.EncMode {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	opts.NilContainers = cbor.NilContainerAsNull
	em, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("event encoder mode: %v", err))
	}
	return em
}

func mustEventDecMode() cbor.DecMode {
	dm, err := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
		// Event, payload, fields: anything deeper is not an event.
		MaxNestedLevels: 8,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("event decoder mode: %v", err))
	}
	return dm
}

// EncodeEvent encodes an Event to CBOR bytes.
func EncodeEvent(event Event) ([]byte, error) {
	return eventEncMode.Marshal(event)
}

// DecodeEvent decodes one CBOR event.
func DecodeEvent(data []byte) (Event, error) {
	var event Event
	if err := eventDecMode.Unmarshal(data, &event); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Event{}, ErrTruncated
		}
		return Event{}, err
	}
	return event, nil
}

// decodeNext reads the next event from a log stream. It returns io.EOF at a
// clean end and ErrTruncated when the stream stops inside a record.
func decodeNext(dec *cbor.Decoder) (Event, error) {
	var event Event
	if err := dec.Decode(&event); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Event{}, ErrTruncated
		}
		return Event{}, err
	}
	return event, nil
}
