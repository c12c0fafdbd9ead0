package wire

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func testAct(size int, fill byte) []byte {
	act := bytes.Repeat([]byte{fill}, size)
	act[0] = HandshakeVersion
	return act
}

func TestHandshakeActs(t *testing.T) {
	if got := HandshakeActs(true); got != 2 {
		t.Errorf("HandshakeActs(true) = %d, want 2", got)
	}
	if got := HandshakeActs(false); got != 1 {
		t.Errorf("HandshakeActs(false) = %d, want 1", got)
	}
}

func TestActSize(t *testing.T) {
	tests := []struct {
		name      string
		step      int
		initiator bool
		want      int
	}{
		{"initiator act one", 0, true, ActOneSize},
		{"initiator act three", 1, true, ActThreeSize},
		{"initiator past handshake", 2, true, 0},
		{"responder act two", 0, false, ActTwoSize},
		{"responder past handshake", 1, false, 0},
		{"negative step", -1, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ActSize(tt.step, tt.initiator); got != tt.want {
				t.Errorf("ActSize(%d, %v) = %d, want %d", tt.step, tt.initiator, got, tt.want)
			}
		})
	}
}

func TestKindAt(t *testing.T) {
	if KindAt(1, true) != UnitAct {
		t.Error("initiator step 1 should be an act")
	}
	if KindAt(1, false) != UnitMessage {
		t.Error("responder step 1 should be a message")
	}
	if UnitMessage.String() != "MESSAGE" || UnitAct.String() != "ACT" {
		t.Error("unexpected UnitKind names")
	}
}

func TestReadUnitInitiatorSequence(t *testing.T) {
	msg, err := EncodeMessage([]byte{0x00, 0x10, 0xAA, 0xBB})
	if err != nil {
		t.Fatalf("EncodeMessage failed: %v", err)
	}

	var stream bytes.Buffer
	stream.Write(testAct(ActOneSize, 1))
	stream.Write(testAct(ActThreeSize, 3))
	stream.Write(msg)

	codec := NewLightningCodec()
	wantSizes := []int{ActOneSize, ActThreeSize, len(msg)}
	for step, want := range wantSizes {
		unit, err := codec.ReadUnit(&stream, step, true)
		if err != nil {
			t.Fatalf("step %d: ReadUnit failed: %v", step, err)
		}
		if len(unit) != want {
			t.Errorf("step %d: unit size = %d, want %d", step, len(unit), want)
		}
	}

	if _, err := codec.ReadUnit(&stream, 3, true); err != io.EOF {
		t.Errorf("expected io.EOF at end of stream, got %v", err)
	}
}

func TestReadUnitResponderSequence(t *testing.T) {
	msg, _ := EncodeMessage([]byte{0x00, 0x12})

	var stream bytes.Buffer
	stream.Write(testAct(ActTwoSize, 2))
	stream.Write(msg)

	codec := NewLightningCodec()
	act, err := codec.ReadUnit(&stream, 0, false)
	if err != nil {
		t.Fatalf("ReadUnit act failed: %v", err)
	}
	if len(act) != ActTwoSize {
		t.Errorf("act size = %d, want %d", len(act), ActTwoSize)
	}

	got, err := codec.ReadUnit(&stream, 1, false)
	if err != nil {
		t.Fatalf("ReadUnit message failed: %v", err)
	}
	if !bytes.Equal(got, msg) {
		t.Errorf("message mismatch: got %x, want %x", got, msg)
	}
}

func TestReadUnitErrors(t *testing.T) {
	codec := NewLightningCodec()

	t.Run("bad version", func(t *testing.T) {
		act := testAct(ActOneSize, 1)
		act[0] = 1
		_, err := codec.ReadUnit(bytes.NewReader(act), 0, true)
		if !errors.Is(err, ErrBadVersion) || !errors.Is(err, ErrDecode) {
			t.Errorf("expected ErrBadVersion wrapping ErrDecode, got %v", err)
		}
	})

	t.Run("truncated act", func(t *testing.T) {
		act := testAct(ActOneSize, 1)
		_, err := codec.ReadUnit(bytes.NewReader(act[:20]), 0, true)
		if !errors.Is(err, ErrTruncated) {
			t.Errorf("expected ErrTruncated, got %v", err)
		}
	})

	t.Run("truncated header", func(t *testing.T) {
		_, err := codec.ReadUnit(bytes.NewReader(make([]byte, 5)), 1, false)
		if !errors.Is(err, ErrTruncated) {
			t.Errorf("expected ErrTruncated, got %v", err)
		}
	})

	t.Run("truncated body", func(t *testing.T) {
		msg, _ := EncodeMessage(bytes.Repeat([]byte{7}, 40))
		_, err := codec.ReadUnit(bytes.NewReader(msg[:HeaderSize+10]), 1, false)
		if !errors.Is(err, ErrTruncated) {
			t.Errorf("expected ErrTruncated, got %v", err)
		}
	})

	t.Run("body too short", func(t *testing.T) {
		header := make([]byte, HeaderSize)
		header[1] = 1
		_, err := codec.ReadUnit(bytes.NewReader(header), 1, false)
		if !errors.Is(err, ErrBodyTooShort) {
			t.Errorf("expected ErrBodyTooShort, got %v", err)
		}
	})

	t.Run("negative step", func(t *testing.T) {
		_, err := codec.ReadUnit(bytes.NewReader(nil), -1, false)
		if !errors.Is(err, ErrBadStep) {
			t.Errorf("expected ErrBadStep, got %v", err)
		}
	})

	t.Run("reader error", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := codec.ReadUnit(errReader{boom}, 0, false)
		if !errors.Is(err, boom) {
			t.Errorf("expected wrapped reader error, got %v", err)
		}
		if errors.Is(err, ErrDecode) {
			t.Error("reader errors must not be reported as decode errors")
		}
	})
}

func TestEncodeMessage(t *testing.T) {
	body := []byte{0x00, 0x13, 0x01, 0x02, 0x03}
	msg, err := EncodeMessage(body)
	if err != nil {
		t.Fatalf("EncodeMessage failed: %v", err)
	}
	if len(msg) != MessageSize(len(body)) {
		t.Errorf("size = %d, want %d", len(msg), MessageSize(len(body)))
	}
	if !bytes.Equal(msg[HeaderSize:HeaderSize+len(body)], body) {
		t.Error("body not copied after header")
	}

	if _, err := EncodeMessage([]byte{1}); !errors.Is(err, ErrBodyTooShort) {
		t.Errorf("expected ErrBodyTooShort, got %v", err)
	}
	if _, err := EncodeMessage(make([]byte, MaxBodySize+1)); err == nil {
		t.Error("expected error for oversized body")
	}
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }
