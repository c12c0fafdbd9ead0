package mesh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/remyers/lnproxy/pkg/meshqueue"
)

// LinkState is the connection state of a GatewayLink.
type LinkState uint8

const (
	// StateConnecting means a dial is in progress or pending a backoff.
	StateConnecting LinkState = iota

	// StateConnected means the link is attached to the gateway.
	StateConnected

	// StateClosed means Close was called.
	StateClosed
)

// String returns the state name.
func (s LinkState) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// recvBuffer is how many received envelopes may wait for Recv.
const recvBuffer = 64

// GatewayLinkConfig configures a GatewayLink.
type GatewayLinkConfig struct {
	// Address of the gateway (host:port). Required.
	Address string

	// Identity is this node's peer id. Required.
	Identity meshqueue.PeerID

	// Compress enables payload compression.
	Compress bool

	// Backoff tunes redial delays.
	Backoff BackoffConfig

	// Clock drives redial delays (default: wall clock).
	Clock clock.Clock

	// Logger for operational logging (optional).
	Logger *slog.Logger

	// OnStateChange is called on every state transition (optional).
	OnStateChange func(old, new LinkState)
}

// GatewayLink attaches to a Gateway over TCP and redials with backoff
// whenever the connection drops.
type GatewayLink struct {
	config  GatewayLinkConfig
	clock   clock.Clock
	backoff *Backoff

	mu     sync.Mutex
	state  LinkState
	conn   net.Conn
	writer *FrameWriter

	recv   chan Envelope
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// DialGateway starts a link. It returns at once; the link connects in the
// background and Send returns ErrNotConnected until it is attached.
func DialGateway(ctx context.Context, config GatewayLinkConfig) (*GatewayLink, error) {
	if config.Address == "" {
		return nil, errors.New("gateway address is required")
	}
	if config.Identity == "" {
		return nil, errors.New("identity is required")
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.New()
	}

	l := &GatewayLink{
		config:  config,
		clock:   clk,
		backoff: NewBackoff(config.Backoff),
		state:   StateConnecting,
		recv:    make(chan Envelope, recvBuffer),
	}
	l.ctx, l.cancel = context.WithCancel(ctx)

	l.wg.Add(1)
	go l.run()
	return l, nil
}

// State returns the current link state.
func (l *GatewayLink) State() LinkState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Send writes env to the gateway.
func (l *GatewayLink) Send(ctx context.Context, env Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	env.From = l.config.Identity
	data, err := env.Encode(l.config.Compress)
	if err != nil {
		return err
	}

	l.mu.Lock()
	state, conn, writer := l.state, l.conn, l.writer
	l.mu.Unlock()

	switch {
	case state == StateClosed:
		return ErrLinkClosed
	case writer == nil:
		return ErrNotConnected
	}
	if err := writer.WriteFrame(data); err != nil {
		// The read loop notices the close and redials.
		conn.Close()
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	return nil
}

// Recv returns the next envelope from the gateway.
func (l *GatewayLink) Recv(ctx context.Context) (Envelope, error) {
	select {
	case env := <-l.recv:
		return env, nil
	case <-l.ctx.Done():
		return Envelope{}, ErrLinkClosed
	case <-ctx.Done():
		return Envelope{}, ctx.Err()
	}
}

// Close stops redialling and closes the connection.
func (l *GatewayLink) Close() error {
	l.mu.Lock()
	if l.state == StateClosed {
		l.mu.Unlock()
		return nil
	}
	old := l.state
	l.state = StateClosed
	conn := l.conn
	l.mu.Unlock()

	l.cancel()
	if conn != nil {
		conn.Close()
	}
	l.wg.Wait()
	l.notify(old, StateClosed)
	return nil
}

// run dials, serves and redials until the link is closed.
func (l *GatewayLink) run() {
	defer l.wg.Done()

	for l.ctx.Err() == nil {
		conn, err := l.dial()
		if err != nil {
			delay := l.backoff.Next()
			l.logInfo("gateway dial failed", "addr", l.config.Address, "retry_in", delay, "err", err)
			if sleep(l.ctx, l.clock, delay) != nil {
				return
			}
			continue
		}
		l.backoff.Reset()

		if !l.setConn(conn) {
			conn.Close()
			return
		}
		err = l.readLoop(conn)
		l.clearConn(conn)
		if l.ctx.Err() != nil {
			return
		}
		l.logInfo("gateway connection lost", "addr", l.config.Address, "err", err)
	}
}

// dial connects and registers the identity.
func (l *GatewayLink) dial() (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(l.ctx, "tcp", l.config.Address)
	if err != nil {
		return nil, err
	}
	hello, err := Envelope{Type: TypeHello, From: l.config.Identity}.Encode(false)
	if err == nil {
		err = NewFrameWriter(conn).WriteFrame(hello)
	}
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("hello: %w", err)
	}
	return conn, nil
}

func (l *GatewayLink) readLoop(conn net.Conn) error {
	reader := NewFrameReader(conn)
	for {
		frame, err := reader.ReadFrame()
		if err != nil {
			return err
		}
		env, err := DecodeEnvelope(frame)
		if err != nil {
			l.logInfo("dropping bad envelope", "err", err)
			continue
		}
		select {
		case l.recv <- env:
		case <-l.ctx.Done():
			return l.ctx.Err()
		}
	}
}

func (l *GatewayLink) setConn(conn net.Conn) bool {
	l.mu.Lock()
	if l.state == StateClosed {
		l.mu.Unlock()
		return false
	}
	old := l.state
	l.state = StateConnected
	l.conn = conn
	l.writer = NewFrameWriter(conn)
	l.mu.Unlock()

	l.logInfo("gateway attached", "addr", l.config.Address, "identity", l.config.Identity.Short())
	l.notify(old, StateConnected)
	return true
}

func (l *GatewayLink) clearConn(conn net.Conn) {
	conn.Close()

	l.mu.Lock()
	if l.conn == conn {
		l.conn = nil
		l.writer = nil
	}
	old := l.state
	if old == StateConnected {
		l.state = StateConnecting
	}
	l.mu.Unlock()

	if old == StateConnected {
		l.notify(old, StateConnecting)
	}
}

func (l *GatewayLink) notify(old, new LinkState) {
	if l.config.OnStateChange != nil && old != new {
		l.config.OnStateChange(old, new)
	}
}

func (l *GatewayLink) logInfo(msg string, args ...any) {
	if l.config.Logger != nil {
		l.config.Logger.Info(msg, args...)
	}
}

// Compile-time interface satisfaction check.
var _ Link = (*GatewayLink)(nil)
