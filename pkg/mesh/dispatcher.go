package mesh

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"

	"github.com/remyers/lnproxy/pkg/meshqueue"
)

// DefaultSendInterval paces the send daemon: it waits this long after each
// envelope and between scans of idle queues.
const DefaultSendInterval = 100 * time.Millisecond

// Deliverer accepts blocks received from the mesh.
// Implemented by proxy.Engine.
type Deliverer interface {
	Deliver(peer meshqueue.PeerID, block []byte)
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	// Link is the mesh attachment. Required.
	Link Link

	// Queues holds the per-peer send queues. Required.
	Queues *meshqueue.Registry

	// Deliverer receives inbound payloads. Required.
	Deliverer Deliverer

	// SendInterval defaults to DefaultSendInterval.
	SendInterval time.Duration

	// Backoff tunes retries of a failed send.
	Backoff BackoffConfig

	// Clock drives pacing and retries (default: wall clock).
	Clock clock.Clock

	// Logger for operational logging (optional).
	Logger *slog.Logger
}

// Dispatcher moves blocks between the queue registry and a Link.
type Dispatcher struct {
	config DispatcherConfig
	clock  clock.Clock
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(config DispatcherConfig) *Dispatcher {
	if config.SendInterval <= 0 {
		config.SendInterval = DefaultSendInterval
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.New()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{config: config, clock: clk, logger: logger}
}

// Run runs the send daemon and the receive loop until ctx ends (nil) or
// the link is closed.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.sendLoop(gctx) })
	g.Go(func() error { return d.recvLoop(gctx) })

	err := g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// sendLoop scans every peer's ToSend queue in identity order and sends
// queued blocks in FIFO order.
func (d *Dispatcher) sendLoop(ctx context.Context) error {
	for {
		for _, peer := range d.config.Queues.Peers() {
			pair := d.config.Queues.Lookup(peer)
			for !pair.ToSend.Empty() {
				block := pair.ToSend.Get()
				if err := d.send(ctx, peer, block); err != nil {
					return err
				}
				if err := sleep(ctx, d.clock, d.config.SendInterval); err != nil {
					return err
				}
			}
		}
		if err := sleep(ctx, d.clock, d.config.SendInterval); err != nil {
			return err
		}
	}
}

// send retries a block until the link accepts it. A block taken off a
// queue is never dropped locally.
func (d *Dispatcher) send(ctx context.Context, peer meshqueue.PeerID, block []byte) error {
	var backoff *Backoff
	for {
		err := d.config.Link.Send(ctx, Envelope{Type: TypeData, To: peer, Payload: block})
		if err == nil {
			d.logger.Debug("sent", "peer", peer.Short(), "size", len(block))
			return nil
		}
		if errors.Is(err, ErrLinkClosed) || ctx.Err() != nil {
			return err
		}

		if backoff == nil {
			backoff = NewBackoff(d.config.Backoff)
		}
		delay := backoff.Next()
		d.logger.Warn("send failed, retrying", "peer", peer.Short(), "retry_in", delay, "err", err)
		if err := sleep(ctx, d.clock, delay); err != nil {
			return err
		}
	}
}

// recvLoop hands each data envelope's payload to the deliverer.
func (d *Dispatcher) recvLoop(ctx context.Context) error {
	for {
		env, err := d.config.Link.Recv(ctx)
		if err != nil {
			return err
		}
		if env.Type != TypeData || len(env.Payload) == 0 {
			continue
		}
		d.logger.Debug("received", "peer", env.From.Short(), "size", len(env.Payload))
		d.config.Deliverer.Deliver(env.From, env.Payload)
	}
}
