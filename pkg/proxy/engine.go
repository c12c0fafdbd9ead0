package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/remyers/lnproxy/pkg/meshqueue"
)

// Role names reported by ActiveConnections.
const (
	RoleOutbound = "outbound"
	RoleInbound  = "inbound"
)

// ConnInfo describes one proxied connection.
type ConnInfo struct {
	ID    string
	Peer  meshqueue.PeerID
	Role  string
	Since time.Time
}

// PeerStatus describes one registered peer.
type PeerStatus struct {
	Peer    meshqueue.PeerID
	ToSend  int
	Recvd   int
	Active  int
	Dialing bool
}

// Engine owns the queue registry and every proxied connection of a process.
type Engine struct {
	cfg    Config
	logger *slog.Logger

	mu        sync.Mutex
	running   bool
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	conns     map[string]ConnInfo
	active    map[meshqueue.PeerID]int
	dialSeq   uint64
	dialing   map[meshqueue.PeerID]uint64
	listeners map[string]net.Listener
}

// NewEngine creates an engine. Call Start before Connect or Deliver can
// spawn work.
func NewEngine(cfg Config) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		cfg:       cfg,
		logger:    cfg.Logger,
		conns:     make(map[string]ConnInfo),
		active:    make(map[meshqueue.PeerID]int),
		dialing:   make(map[meshqueue.PeerID]uint64),
		listeners: make(map[string]net.Listener),
	}
}

// Queues returns the engine's queue registry.
func (e *Engine) Queues() *meshqueue.Registry {
	return e.cfg.Queues
}

// Start opens the engine scope. Work spawned by Connect and Deliver runs
// until ctx is cancelled or Stop is called.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return fmt.Errorf("engine already running")
	}
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.running = true
	e.logger.Info("engine started", "node_socket", e.cfg.NodeSocket, "listen_dir", e.cfg.ListenDir)
	return nil
}

// Stop cancels all connections and listeners and waits for them to finish.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	e.cancel()
	listeners := e.listeners
	e.listeners = make(map[string]net.Listener)
	e.mu.Unlock()

	var err error
	for path, ln := range listeners {
		if cerr := ln.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = multierr.Append(err, fmt.Errorf("close listener %s: %w", path, cerr))
		}
	}

	e.wg.Wait()
	e.logger.Info("engine stopped")
	return err
}

// spawn runs fn in the engine scope. It reports false when the engine is
// not running.
func (e *Engine) spawn(fn func(ctx context.Context)) bool {
	_, ok := e.spawnCancelable(fn)
	return ok
}

// spawnCancelable runs fn under a child of the engine scope and returns the
// child's cancel func.
func (e *Engine) spawnCancelable(fn func(ctx context.Context)) (context.CancelFunc, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return nil, false
	}
	ctx, cancel := context.WithCancel(e.ctx)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer cancel()
		fn(ctx)
	}()
	return cancel, true
}

// Deliver hands a block received from the mesh to peer's receive queue.
// When no local connection for peer exists, it dials the local node so the
// block has somewhere to go. At most one such dial per peer is in flight.
func (e *Engine) Deliver(peer meshqueue.PeerID, block []byte) {
	pair, created := e.cfg.Queues.GetOrCreate(peer)
	if created {
		e.logger.Info("created queues", "peer", peer.Short())
	}
	pair.Recvd.Put(block)
	e.cfg.Metrics.delivered()

	e.mu.Lock()
	_, inFlight := e.dialing[peer]
	dial := e.running && e.active[peer] == 0 && !inFlight
	var gen uint64
	if dial {
		e.dialSeq++
		gen = e.dialSeq
		e.dialing[peer] = gen
	}
	e.mu.Unlock()
	if !dial {
		return
	}

	ok := e.spawn(func(ctx context.Context) {
		defer e.clearDialing(peer, gen)
		_ = e.HandleInbound(ctx, peer)
	})
	if !ok {
		e.clearDialing(peer, gen)
	}
}

// clearDialing drops peer's dial marker if it still belongs to dial gen. A
// registered connection clears the marker earlier, after which a later
// Deliver may own it.
func (e *Engine) clearDialing(peer meshqueue.PeerID, gen uint64) {
	e.mu.Lock()
	if e.dialing[peer] == gen {
		delete(e.dialing, peer)
	}
	e.mu.Unlock()
}

// ActiveConnections returns the proxied connections, oldest first.
func (e *Engine) ActiveConnections() []ConnInfo {
	e.mu.Lock()
	out := make([]ConnInfo, 0, len(e.conns))
	for _, c := range e.conns {
		out = append(out, c)
	}
	e.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Since.Equal(out[j].Since) {
			return out[i].ID < out[j].ID
		}
		return out[i].Since.Before(out[j].Since)
	})
	return out
}

// Peers returns the status of every registered peer, sorted by identity.
func (e *Engine) Peers() []PeerStatus {
	peers := e.cfg.Queues.Peers()
	out := make([]PeerStatus, 0, len(peers))

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, p := range peers {
		pair := e.cfg.Queues.Lookup(p)
		out = append(out, PeerStatus{
			Peer:    p,
			ToSend:  pair.ToSend.Len(),
			Recvd:   pair.Recvd.Len(),
			Active:  e.active[p],
			Dialing: e.dialing[p] != 0,
		})
	}
	return out
}

func (e *Engine) addConn(info ConnInfo) {
	e.mu.Lock()
	e.conns[info.ID] = info
	e.active[info.Peer]++
	delete(e.dialing, info.Peer)
	e.mu.Unlock()
	e.cfg.Metrics.connOpened()
}

func (e *Engine) removeConn(info ConnInfo, err error) {
	e.mu.Lock()
	delete(e.conns, info.ID)
	if e.active[info.Peer]--; e.active[info.Peer] <= 0 {
		delete(e.active, info.Peer)
	}
	e.mu.Unlock()
	e.cfg.Metrics.connClosed(err)
}

func (e *Engine) addListener(path string, ln net.Listener) {
	e.mu.Lock()
	e.listeners[path] = ln
	e.mu.Unlock()
}

func (e *Engine) removeListener(path string) {
	e.mu.Lock()
	delete(e.listeners, path)
	e.mu.Unlock()
}
