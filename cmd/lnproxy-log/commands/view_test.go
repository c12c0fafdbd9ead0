package commands

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/remyers/lnproxy/pkg/log"
)

func TestViewFormatsAllEventTypes(t *testing.T) {
	ts := time.Date(2026, 1, 28, 10, 15, 32, 123456000, time.UTC)
	path := createTestLogFile(t, tunnelSession(ts))

	var buf bytes.Buffer
	if err := RunView(path, ViewFilter{}, &buf); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}
	output := buf.String()

	for _, want := range []string{
		"2026-01-28T10:15:32.123456Z [conn:conn-aaa] [peer:0279be66] IN  STATE",
		"OUT ACT",
		"Size: 50 bytes",
		"Data: 0001",
		"MESSAGE",
		"Kind: decode",
		"Context: QueueToStream",
		"-> OPEN",
		"OPEN -> CLOSED",
		"Reason: decode",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}
}

func TestViewFilters(t *testing.T) {
	ts := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)
	path := createTestLogFile(t, tunnelSession(ts))

	out := log.DirectionOut
	unit := log.CategoryUnit
	tests := []struct {
		name   string
		filter ViewFilter
		events int
	}{
		{"all", ViewFilter{}, 8},
		{"direction out", ViewFilter{Direction: &out}, 3},
		{"units", ViewFilter{Category: &unit}, 5},
		{"peer prefix", ViewFilter{Peer: "02c6"}, 1},
		{"peer and units", ViewFilter{Peer: "0279", Category: &unit}, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := RunView(path, tt.filter, &buf); err != nil {
				t.Fatalf("RunView failed: %v", err)
			}
			got := strings.Count(buf.String(), "[conn:")
			if got != tt.events {
				t.Errorf("got %d events, want %d", got, tt.events)
			}
		})
	}
}

func TestViewMissingFile(t *testing.T) {
	var buf bytes.Buffer
	if err := RunView("/nonexistent/file.tlog", ViewFilter{}, &buf); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestViewTruncatedData(t *testing.T) {
	path := createTestLogFile(t, []log.Event{{
		ConnectionID: "c1",
		Category:     log.CategoryUnit,
		Unit:         log.NewUnitEvent(0, 0, make([]byte, log.MaxDataSize+10)),
	}})

	var buf bytes.Buffer
	if err := RunView(path, ViewFilter{}, &buf); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}
	if !strings.Contains(buf.String(), "(truncated)") {
		t.Error("expected truncation marker")
	}
	if !strings.Contains(buf.String(), "[peer:-]") {
		t.Error("expected placeholder for missing peer")
	}
}

func TestParseFlags(t *testing.T) {
	if d, err := ParseDirectionFlag("OUT"); err != nil || d != log.DirectionOut {
		t.Errorf("ParseDirectionFlag(OUT) = %v, %v", d, err)
	}
	if _, err := ParseDirectionFlag("sideways"); err == nil {
		t.Error("expected error for invalid direction")
	}
	if c, err := ParseCategoryFlag("error"); err != nil || c != log.CategoryError {
		t.Errorf("ParseCategoryFlag(error) = %v, %v", c, err)
	}
	if _, err := ParseCategoryFlag("message"); err == nil {
		t.Error("expected error for invalid category")
	}
}
