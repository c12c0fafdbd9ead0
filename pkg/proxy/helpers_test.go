package proxy

import (
	"bytes"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/remyers/lnproxy/pkg/meshqueue"
	"github.com/remyers/lnproxy/pkg/wire"
)

const testPeer = meshqueue.PeerID("0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798")

const waitFor = 2 * time.Second

// act returns a handshake act of the given size with a valid version byte
// and a recognisable fill.
func act(size int, fill byte) []byte {
	b := bytes.Repeat([]byte{fill}, size)
	b[0] = wire.HandshakeVersion
	return b
}

// message returns a framed message with the given body.
func message(t *testing.T, body ...byte) []byte {
	t.Helper()
	m, err := wire.EncodeMessage(body)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	return m
}

func concat(parts ...[]byte) []byte {
	return bytes.Join(parts, nil)
}

// recordingWriter records every Write call.
type recordingWriter struct {
	mu     sync.Mutex
	writes [][]byte
	err    error
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return 0, w.err
	}
	w.writes = append(w.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (w *recordingWriter) Writes() [][]byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([][]byte(nil), w.writes...)
}

// countingConn counts Close calls.
type countingConn struct {
	net.Conn
	closes atomic.Int32
}

func (c *countingConn) Close() error {
	c.closes.Add(1)
	return c.Conn.Close()
}

// sliceOutbox collects Put blocks.
type sliceOutbox struct {
	mu     sync.Mutex
	blocks [][]byte
}

func (o *sliceOutbox) Put(b []byte) {
	o.mu.Lock()
	o.blocks = append(o.blocks, b)
	o.mu.Unlock()
}

// tempSocketDir returns a short directory for Unix sockets; t.TempDir paths
// can exceed the socket path limit.
func tempSocketDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "lnp")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}
