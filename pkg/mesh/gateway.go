package mesh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/enbility/zeroconf/v3"
	temperrcatcher "github.com/jbenet/go-temp-err-catcher"
	"go.uber.org/multierr"

	"github.com/remyers/lnproxy/pkg/meshqueue"
)

// DefaultGatewayAddress is the gateway's default listen address.
const DefaultGatewayAddress = ":9736"

// GatewayConfig configures a Gateway.
type GatewayConfig struct {
	// Address to listen on (default: DefaultGatewayAddress).
	Address string

	// Advertise registers the gateway over mDNS.
	Advertise bool

	// InstanceName is the mDNS instance name (default: "lnproxy-gateway").
	InstanceName string

	// Logger for operational logging (optional).
	Logger *slog.Logger
}

// GatewayStats counts routed traffic.
type GatewayStats struct {
	Routed  int64
	Dropped int64
}

// Gateway routes envelopes between attached GatewayLinks by destination
// identity. Envelopes for unattached identities are dropped.
type Gateway struct {
	config   GatewayConfig
	listener net.Listener
	advert   *zeroconf.Server

	mu     sync.RWMutex
	routes map[meshqueue.PeerID]*gatewayConn
	conns  map[*gatewayConn]struct{}

	routed  atomic.Int64
	dropped atomic.Int64

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type gatewayConn struct {
	conn   net.Conn
	writer *FrameWriter
	id     meshqueue.PeerID
}

// NewGateway creates a gateway.
func NewGateway(config GatewayConfig) *Gateway {
	if config.Address == "" {
		config.Address = DefaultGatewayAddress
	}
	if config.InstanceName == "" {
		config.InstanceName = "lnproxy-gateway"
	}
	return &Gateway{
		config: config,
		routes: make(map[meshqueue.PeerID]*gatewayConn),
		conns:  make(map[*gatewayConn]struct{}),
	}
}

// Start listens and begins routing.
func (g *Gateway) Start(ctx context.Context) error {
	if g.running.Load() {
		return fmt.Errorf("gateway already running")
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", g.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	g.listener = listener
	g.ctx, g.cancel = context.WithCancel(ctx)

	if g.config.Advertise {
		port := listener.Addr().(*net.TCPAddr).Port
		server, err := Advertise(g.config.InstanceName, port)
		if err != nil {
			listener.Close()
			g.cancel()
			return err
		}
		g.advert = server
	}

	g.running.Store(true)
	g.wg.Add(1)
	go g.acceptLoop()

	g.logInfo("gateway listening", "addr", listener.Addr().String(), "advertise", g.config.Advertise)
	return nil
}

// Stop closes the listener and every attached link.
func (g *Gateway) Stop() error {
	if !g.running.Swap(false) {
		return nil
	}
	g.cancel()

	var err error
	if g.advert != nil {
		g.advert.Shutdown()
	}
	if cerr := g.listener.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
		err = multierr.Append(err, cerr)
	}

	g.mu.Lock()
	for c := range g.conns {
		if cerr := c.conn.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = multierr.Append(err, cerr)
		}
	}
	g.mu.Unlock()

	g.wg.Wait()
	return err
}

// Addr returns the listen address, or nil before Start.
func (g *Gateway) Addr() net.Addr {
	if g.listener != nil {
		return g.listener.Addr()
	}
	return nil
}

// Peers returns the attached identities in sorted order.
func (g *Gateway) Peers() []meshqueue.PeerID {
	g.mu.RLock()
	peers := make([]meshqueue.PeerID, 0, len(g.routes))
	for id := range g.routes {
		peers = append(peers, id)
	}
	g.mu.RUnlock()

	sort.Slice(peers, func(i, j int) bool { return peers[i] < peers[j] })
	return peers
}

// Stats returns traffic counters.
func (g *Gateway) Stats() GatewayStats {
	return GatewayStats{Routed: g.routed.Load(), Dropped: g.dropped.Load()}
}

func (g *Gateway) acceptLoop() {
	defer g.wg.Done()

	var catcher temperrcatcher.TempErrCatcher
	for g.running.Load() {
		conn, err := g.listener.Accept()
		if err != nil {
			if catcher.IsTemporary(err) {
				continue
			}
			if g.running.Load() {
				g.logError("accept failed", "err", err)
			}
			return
		}

		c := &gatewayConn{conn: conn, writer: NewFrameWriter(conn)}
		g.mu.Lock()
		if !g.running.Load() {
			g.mu.Unlock()
			conn.Close()
			return
		}
		g.conns[c] = struct{}{}
		g.mu.Unlock()

		g.wg.Add(1)
		go g.serve(c)
	}
}

// serve reads a hello then routes frames until the link goes away.
func (g *Gateway) serve(c *gatewayConn) {
	defer g.wg.Done()
	defer g.detach(c)

	reader := NewFrameReader(c.conn)
	frame, err := reader.ReadFrame()
	if err != nil {
		g.logDebug("link gone before hello", "remote", c.conn.RemoteAddr().String(), "err", err)
		return
	}
	hello, err := decodeRaw(frame)
	if err != nil || hello.Type != TypeHello {
		g.logError("expected hello", "remote", c.conn.RemoteAddr().String(), "err", err)
		return
	}
	c.id = hello.From
	g.attach(c)

	for {
		frame, err := reader.ReadFrame()
		if err != nil {
			g.logInfo("link detached", "peer", c.id.Short(), "err", err)
			return
		}
		env, err := decodeRaw(frame)
		if err != nil {
			g.logError("bad envelope", "peer", c.id.Short(), "err", err)
			return
		}
		if env.From != c.id {
			g.dropped.Add(1)
			g.logError("spoofed sender dropped", "peer", c.id.Short(), "from", env.From.Short())
			continue
		}
		g.route(env.To, frame)
	}
}

func (g *Gateway) attach(c *gatewayConn) {
	g.mu.Lock()
	old := g.routes[c.id]
	g.routes[c.id] = c
	g.mu.Unlock()

	if old != nil {
		old.conn.Close()
	}
	g.logInfo("link attached", "peer", c.id.Short(), "remote", c.conn.RemoteAddr().String())
}

func (g *Gateway) detach(c *gatewayConn) {
	g.mu.Lock()
	if c.id != "" && g.routes[c.id] == c {
		delete(g.routes, c.id)
	}
	delete(g.conns, c)
	g.mu.Unlock()
	c.conn.Close()
}

func (g *Gateway) route(to meshqueue.PeerID, frame []byte) {
	g.mu.RLock()
	dst := g.routes[to]
	g.mu.RUnlock()

	if dst == nil {
		g.dropped.Add(1)
		g.logDebug("no route", "to", to.Short())
		return
	}
	if err := dst.writer.WriteFrame(frame); err != nil {
		g.dropped.Add(1)
		g.logError("forward failed", "to", to.Short(), "err", err)
		dst.conn.Close()
		return
	}
	g.routed.Add(1)
}

func (g *Gateway) logDebug(msg string, args ...any) {
	if g.config.Logger != nil {
		g.config.Logger.Debug(msg, args...)
	}
}

func (g *Gateway) logInfo(msg string, args ...any) {
	if g.config.Logger != nil {
		g.config.Logger.Info(msg, args...)
	}
}

func (g *Gateway) logError(msg string, args ...any) {
	if g.config.Logger != nil {
		g.config.Logger.Error(msg, args...)
	}
}
