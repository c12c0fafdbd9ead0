package commands

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestStatsSummarisesSession(t *testing.T) {
	ts := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)
	path := createTestLogFile(t, tunnelSession(ts))

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	output := buf.String()

	for _, want := range []string{
		"Total Events: 8",
		"UNIT:        5",
		"STATE:       2",
		"ACT:         3",
		"MESSAGE:     2",
		"OUT:         3 events, 168 bytes",
		"IN:          5 events, 90 bytes",
		"Connections: 2",
		"[conn-aaa] 7 events, 4 units, 218 bytes, duration 7ms",
		"State: CLOSED",
		"Peer: " + peerB,
		"decode:      1",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}
}

func TestStatsEmptyFile(t *testing.T) {
	path := createTestLogFile(t, nil)

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Total Events: 0") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
	if strings.Contains(buf.String(), "Time Range") {
		t.Error("empty file must not print a time range")
	}
}
