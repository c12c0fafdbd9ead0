package commands

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/remyers/lnproxy/pkg/log"
	"github.com/remyers/lnproxy/pkg/wire"
)

const (
	peerA = "0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"
	peerB = "02c6047f9441ed7d6d3045406e95c07cd85c778e4b8cef3ca7abac09b95c709ee5"
)

func createTestLogFile(t *testing.T, events []log.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.tlog")

	logger, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	logger.Close()

	return path
}

// tunnelSession is one outbound connection: open, two acts out, one act
// in, a message each way, then a decode error and close.
func tunnelSession(ts time.Time) []log.Event {
	return []log.Event{
		{Timestamp: ts, ConnectionID: "conn-aaaa-1111", PeerID: peerA, Category: log.CategoryState,
			StateChange: &log.StateChangeEvent{NewState: "OPEN"}},
		{Timestamp: ts.Add(1 * time.Millisecond), ConnectionID: "conn-aaaa-1111", PeerID: peerA,
			Direction: log.DirectionOut, Category: log.CategoryUnit,
			Unit: &log.UnitEvent{Kind: wire.UnitAct, Step: 0, Size: 50, Data: []byte{0x00, 0x01}}},
		{Timestamp: ts.Add(2 * time.Millisecond), ConnectionID: "conn-aaaa-1111", PeerID: peerA,
			Direction: log.DirectionIn, Category: log.CategoryUnit,
			Unit: &log.UnitEvent{Kind: wire.UnitAct, Step: 0, Size: 50}},
		{Timestamp: ts.Add(3 * time.Millisecond), ConnectionID: "conn-aaaa-1111", PeerID: peerA,
			Direction: log.DirectionOut, Category: log.CategoryUnit,
			Unit: &log.UnitEvent{Kind: wire.UnitAct, Step: 1, Size: 66}},
		{Timestamp: ts.Add(4 * time.Millisecond), ConnectionID: "conn-aaaa-1111", PeerID: peerA,
			Direction: log.DirectionOut, Category: log.CategoryUnit,
			Unit: &log.UnitEvent{Kind: wire.UnitMessage, Step: 2, Size: 52}},
		{Timestamp: ts.Add(5 * time.Millisecond), ConnectionID: "conn-bbbb-2222", PeerID: peerB,
			Direction: log.DirectionIn, Category: log.CategoryUnit,
			Unit: &log.UnitEvent{Kind: wire.UnitMessage, Step: 1, Size: 40}},
		{Timestamp: ts.Add(6 * time.Millisecond), ConnectionID: "conn-aaaa-1111", PeerID: peerA,
			Direction: log.DirectionIn, Category: log.CategoryError,
			Error: &log.ErrorEventData{Kind: "decode", Message: "bad version", Context: "QueueToStream"}},
		{Timestamp: ts.Add(7 * time.Millisecond), ConnectionID: "conn-aaaa-1111", PeerID: peerA, Category: log.CategoryState,
			StateChange: &log.StateChangeEvent{OldState: "OPEN", NewState: "CLOSED", Reason: "decode"}},
	}
}
