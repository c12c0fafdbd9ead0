package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	temperrcatcher "github.com/jbenet/go-temp-err-catcher"

	"github.com/remyers/lnproxy/pkg/meshqueue"
)

// Acceptor operation names.
const (
	OpHandleInbound = "handle-inbound"
	OpServeOutbound = "serve-outbound"
	OpConnect       = "connect"
)

// HandleInbound dials the local node on behalf of a mesh peer and proxies
// the connection. The remote peer initiated the handshake, so the local node
// is the responder on its stream and the queue carries initiator traffic.
func (e *Engine) HandleInbound(ctx context.Context, peer meshqueue.PeerID) error {
	if _, created := e.cfg.Queues.GetOrCreate(peer); created {
		e.logger.Info("created queues", "peer", peer.Short())
	}
	if e.cfg.NodeSocket == "" {
		err := setupError(OpHandleInbound, peer, errors.New("no node socket configured"))
		e.logger.Error("inbound dial failed", "peer", peer.Short(), "err", err)
		e.cfg.Metrics.inboundDial(err)
		return err
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", e.cfg.NodeSocket)
	e.cfg.Metrics.inboundDial(err)
	if err != nil {
		err = setupError(OpHandleInbound, peer, err)
		e.logger.Error("inbound dial failed", "peer", peer.Short(), "socket", e.cfg.NodeSocket, "err", err)
		return err
	}
	e.logger.Info("dialled local node", "peer", peer.Short(), "socket", e.cfg.NodeSocket)

	return e.ProxyStreams(ctx, conn, peer, false, true)
}

// HandleOutbound proxies a connection the local node opened towards peer.
// The local node initiates the handshake on its stream; the queue carries
// the remote responder's traffic.
func (e *Engine) HandleOutbound(ctx context.Context, conn net.Conn, peer meshqueue.PeerID) error {
	if _, created := e.cfg.Queues.GetOrCreate(peer); created {
		e.logger.Info("created queues", "peer", peer.Short())
	}
	return e.ProxyStreams(ctx, conn, peer, true, false)
}

// ServeOutbound listens on the Unix socket addr and proxies every accepted
// connection to peer. ready, if non-nil, is closed once the socket is bound.
// It returns when ctx is cancelled (nil) or the listener fails. The listener
// is not restarted and the socket file is removed on return.
func (e *Engine) ServeOutbound(ctx context.Context, addr string, peer meshqueue.PeerID, ready chan<- struct{}) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "unix", addr)
	if err != nil {
		err = setupError(OpServeOutbound, peer, err)
		e.logger.Error("listen failed", "peer", peer.Short(), "addr", addr, "err", err)
		return err
	}
	e.addListener(addr, ln)
	defer e.removeListener(addr)

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()
	defer ln.Close()

	e.logger.Info("listening for local node", "peer", peer.Short(), "addr", addr)
	if ready != nil {
		close(ready)
	}

	var (
		wg      sync.WaitGroup
		catcher temperrcatcher.TempErrCatcher
	)
	defer wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if catcher.IsTemporary(err) {
				continue
			}
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				e.logger.Info("listener closed", "peer", peer.Short(), "addr", addr)
				return nil
			}
			err = wrap(OpServeOutbound, peer, err)
			e.logger.Error("accept failed", "peer", peer.Short(), "addr", addr, "err", err)
			return err
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = e.HandleOutbound(ctx, conn, peer)
		}()
	}
}

// ListenPath returns a fresh socket path in the listen directory.
func (e *Engine) ListenPath() (string, error) {
	id, err := uuid.NewUUID()
	if err != nil {
		return "", err
	}
	return filepath.Join(e.cfg.ListenDir, "0"+strings.ReplaceAll(id.String(), "-", "")), nil
}

// Connect opens a tunnel from the local node to peer: it starts a listener
// on a fresh socket path in the engine scope, then asks the node to connect
// to peer at that path. It returns the path. When the node refuses or ctx
// ends first, the listener is shut down and its socket removed before
// Connect returns.
func (e *Engine) Connect(ctx context.Context, peer meshqueue.PeerID) (string, error) {
	if e.cfg.NodeClient == nil {
		return "", setupError(OpConnect, peer, ErrNoNodeClient)
	}
	path, err := e.ListenPath()
	if err != nil {
		return "", setupError(OpConnect, peer, err)
	}

	ready := make(chan struct{})
	errc := make(chan error, 1)
	cancel, ok := e.spawnCancelable(func(ctx context.Context) {
		errc <- e.ServeOutbound(ctx, path, peer, ready)
	})
	if !ok {
		return "", setupError(OpConnect, peer, ErrNotStarted)
	}
	abort := func() {
		cancel()
		<-errc
	}

	select {
	case <-ready:
	case err := <-errc:
		if err == nil {
			err = setupError(OpConnect, peer, ErrNotStarted)
		}
		return "", err
	case <-ctx.Done():
		abort()
		return "", setupError(OpConnect, peer, ctx.Err())
	}
	if err := ctx.Err(); err != nil {
		abort()
		return "", setupError(OpConnect, peer, err)
	}

	if err := e.cfg.NodeClient.Connect(ctx, string(peer), path); err != nil {
		abort()
		err = setupError(OpConnect, peer, fmt.Errorf("node connect: %w", err))
		e.logger.Error("node connect failed", "peer", peer.Short(), "path", path, "err", err)
		return "", err
	}
	e.logger.Info("node connecting through tunnel", "peer", peer.Short(), "path", path)
	return path, nil
}
