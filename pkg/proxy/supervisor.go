package proxy

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/remyers/lnproxy/pkg/log"
	"github.com/remyers/lnproxy/pkg/meshqueue"
	"github.com/remyers/lnproxy/pkg/wire"
)

// OpProxyStreams names the supervisor in errors.
const OpProxyStreams = "proxy-streams"

// Connection states recorded in the event log.
const (
	StateOpen   = "OPEN"
	StateClosed = "CLOSED"
)

// ProxyStreams runs both pumps for conn until either stops.
//
// streamInit is the handshake role of the node-to-mesh direction, queueInit
// that of the mesh-to-node direction. conn is closed exactly once on every
// path. The result is nil for a clean shutdown, the classified failure
// otherwise.
func (e *Engine) ProxyStreams(ctx context.Context, conn io.ReadWriteCloser, peer meshqueue.PeerID, streamInit, queueInit bool) error {
	var once sync.Once
	closeConn := func() {
		once.Do(func() {
			if err := conn.Close(); err != nil {
				e.logger.Debug("close connection", "peer", peer.Short(), "err", err)
			}
		})
	}
	defer closeConn()

	pair := e.cfg.Queues.Lookup(peer)
	if pair == nil {
		err := setupError(OpProxyStreams, peer, ErrNoQueues)
		e.logger.Error("cannot proxy connection", "peer", peer.Short(), "err", err)
		return err
	}

	info := ConnInfo{
		ID:    uuid.NewString(),
		Peer:  peer,
		Role:  RoleInbound,
		Since: time.Now(),
	}
	if streamInit {
		info.Role = RoleOutbound
	}
	e.addConn(info)
	e.logger.Info("proxying connection", "peer", peer.Short(), "conn", info.ID, "role", info.Role)
	e.stateEvent(info, "", StateOpen, info.Role)

	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, closeConn)
	defer stop()

	out := e.newPump(info, streamInit, log.DirectionOut)
	in := e.newPump(info, queueInit, log.DirectionIn)
	g.Go(func() error { return out.StreamToQueue(gctx, conn, pair.ToSend) })
	g.Go(func() error { return in.QueueToStream(gctx, pair.Recvd, conn) })

	err := g.Wait()
	closeConn()
	e.removeConn(info, err)
	e.stateEvent(info, StateOpen, StateClosed, reason(err))

	if IsBenign(err) {
		e.logger.Info("connection closed", "peer", peer.Short(), "conn", info.ID, "reason", reason(err))
		return nil
	}
	e.logger.Error("connection failed", "peer", peer.Short(), "conn", info.ID, "kind", KindOf(err), "err", err)
	e.errorEvent(info, err)
	return err
}

// newPump builds a pump that reports each unit to the event log, metrics
// and debug log.
func (e *Engine) newPump(info ConnInfo, initiator bool, dir log.Direction) *Pump {
	return &Pump{
		Codec:        e.cfg.Codec,
		Initiator:    initiator,
		Peer:         info.Peer,
		Clock:        e.cfg.Clock,
		PollInterval: e.cfg.PollInterval,
		OnUnit: func(step int, unit []byte) {
			kind := wire.KindAt(step, initiator)
			e.cfg.Metrics.unit(dir, kind, len(unit))
			e.logger.Debug("unit", "peer", info.Peer.Short(), "dir", dir, "kind", kind, "step", step, "size", len(unit))
			e.cfg.EventLogger.Log(log.Event{
				Timestamp:    time.Now(),
				ConnectionID: info.ID,
				PeerID:       string(info.Peer),
				Direction:    dir,
				Category:     log.CategoryUnit,
				Unit:         log.NewUnitEvent(kind, step, unit),
			})
		},
	}
}

func (e *Engine) stateEvent(info ConnInfo, from, to, why string) {
	e.cfg.EventLogger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: info.ID,
		PeerID:       string(info.Peer),
		Category:     log.CategoryState,
		StateChange:  &log.StateChangeEvent{OldState: from, NewState: to, Reason: why},
	})
}

func (e *Engine) errorEvent(info ConnInfo, err error) {
	ev := log.Event{
		Timestamp:    time.Now(),
		ConnectionID: info.ID,
		PeerID:       string(info.Peer),
		Category:     log.CategoryError,
		Error:        &log.ErrorEventData{Kind: KindOf(err).String(), Message: err.Error()},
	}
	var pe *Error
	if errors.As(err, &pe) {
		ev.Error.Context = pe.Op
		if pe.Op == OpStreamToQueue {
			ev.Direction = log.DirectionOut
		}
	}
	e.cfg.EventLogger.Log(ev)
}

func reason(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
