package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/remyers/lnproxy/pkg/wire"
)

func logOne(t *testing.T, event Event) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	NewSlogAdapter(slog.New(handler)).Log(event)

	if buf.Len() == 0 {
		t.Fatal("no output produced")
	}
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}
	return entry
}

func TestSlogAdapterLogsUnitEvent(t *testing.T) {
	entry := logOne(t, Event{
		Timestamp:    time.Now(),
		ConnectionID: "conn-123",
		PeerID:       "0279be",
		Direction:    DirectionIn,
		Category:     CategoryUnit,
		Unit:         NewUnitEvent(wire.UnitMessage, 2, make([]byte, 36)),
	})

	want := map[string]any{
		"conn_id":   "conn-123",
		"peer":      "0279be",
		"direction": "IN",
		"category":  "UNIT",
		"unit":      "MESSAGE",
		"step":      float64(2),
		"size":      float64(36),
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("%s: got %v, want %v", k, entry[k], v)
		}
	}
}

func TestSlogAdapterLogsStateAndError(t *testing.T) {
	entry := logOne(t, Event{
		ConnectionID: "c",
		Category:     CategoryState,
		StateChange:  &StateChangeEvent{OldState: "OPEN", NewState: "CLOSED", Reason: "eof"},
	})
	if entry["new_state"] != "CLOSED" || entry["reason"] != "eof" {
		t.Errorf("unexpected state entry: %v", entry)
	}

	entry = logOne(t, Event{
		ConnectionID: "c",
		Category:     CategoryError,
		Error:        &ErrorEventData{Kind: "decode", Message: "bad version", Context: "stream-to-queue"},
	})
	if entry["error_kind"] != "decode" || entry["error_context"] != "stream-to-queue" {
		t.Errorf("unexpected error entry: %v", entry)
	}
	if _, ok := entry["peer"]; ok {
		t.Error("empty peer must be omitted")
	}
}
