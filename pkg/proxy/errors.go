package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/remyers/lnproxy/pkg/meshqueue"
	"github.com/remyers/lnproxy/pkg/wire"
)

// Kind classifies a tunnel failure.
type Kind uint8

const (
	// KindTransport is any I/O failure that is not a clean shutdown.
	KindTransport Kind = iota

	// KindDecode means the codec rejected the byte stream.
	KindDecode

	// KindClosed is a benign shutdown: EOF, closed resource or cancellation.
	KindClosed

	// KindSetup is a failure before any pump started: bind, dial, missing queues.
	KindSetup
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindDecode:
		return "decode"
	case KindClosed:
		return "closed"
	case KindSetup:
		return "setup"
	default:
		return "unknown"
	}
}

// Setup errors.
var (
	// ErrNoQueues indicates no queue pair is registered for a peer.
	ErrNoQueues = errors.New("no queue pair for peer")

	// ErrNotStarted indicates the engine has not been started.
	ErrNotStarted = errors.New("engine not started")

	// ErrNoNodeClient indicates an operation needs a node RPC client.
	ErrNoNodeClient = errors.New("no node client configured")
)

// Error is a classified tunnel failure.
type Error struct {
	Kind Kind
	Op   string
	Peer meshqueue.PeerID
	Err  error
}

// Error implements error.
func (e *Error) Error() string {
	if e.Peer != "" {
		return fmt.Sprintf("%s [%s] %s: %v", e.Op, e.Peer.Short(), e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf classifies err. A nil error is KindClosed.
func KindOf(err error) Kind {
	var pe *Error
	switch {
	case err == nil:
		return KindClosed
	case errors.As(err, &pe):
		return pe.Kind
	case errors.Is(err, wire.ErrDecode):
		return KindDecode
	case isClosed(err):
		return KindClosed
	default:
		return KindTransport
	}
}

// IsBenign reports whether err is nil or a clean shutdown.
func IsBenign(err error) bool {
	return KindOf(err) == KindClosed
}

func isClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// wrap classifies err for op. Already classified errors pass through.
func wrap(op string, peer meshqueue.PeerID, err error) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	return &Error{Kind: KindOf(err), Op: op, Peer: peer, Err: err}
}

func setupError(op string, peer meshqueue.PeerID, err error) error {
	return &Error{Kind: KindSetup, Op: op, Peer: peer, Err: err}
}
