package proxy

import (
	"context"
	"io"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"

	"github.com/remyers/lnproxy/pkg/meshqueue"
	"github.com/remyers/lnproxy/pkg/wire"
)

// DefaultPollInterval is how long the inbound feeder sleeps on an empty queue
// when no readiness signal arrives.
const DefaultPollInterval = 5 * time.Second

// Pump operation names used in errors and logs.
const (
	OpStreamToQueue = "stream-to-queue"
	OpQueueToStream = "queue-to-stream"
)

// Inbox is the receiving side of a peer queue.
// Get is only called after Empty returned false.
type Inbox interface {
	Empty() bool
	Get() []byte
}

// Outbox is the sending side of a peer queue.
type Outbox interface {
	Put(block []byte)
}

// readier is implemented by queues that can signal new blocks.
type readier interface {
	Ready() <-chan struct{}
}

// Pump moves delimited units in one direction of a connection.
// A Pump owns its step counter; use one per direction per connection.
type Pump struct {
	// Codec delimits the byte stream. Required.
	Codec wire.Codec

	// Initiator selects the handshake role of this direction.
	Initiator bool

	// Peer is reported in errors.
	Peer meshqueue.PeerID

	// Clock drives the empty-queue poll. Defaults to the wall clock.
	Clock clock.Clock

	// PollInterval defaults to DefaultPollInterval.
	PollInterval time.Duration

	// OnUnit is called after each unit is handed on (optional).
	OnUnit func(step int, unit []byte)
}

// StreamToQueue reads units from src and puts each onto dst, in order,
// until src fails. It never returns nil.
func (p *Pump) StreamToQueue(ctx context.Context, src io.Reader, dst Outbox) error {
	for step := 0; ; step++ {
		if err := ctx.Err(); err != nil {
			return wrap(OpStreamToQueue, p.Peer, err)
		}
		unit, err := p.Codec.ReadUnit(src, step, p.Initiator)
		if err != nil {
			return wrap(OpStreamToQueue, p.Peer, err)
		}
		dst.Put(unit)
		p.observe(step, unit)
	}
}

// QueueToStream relays blocks from src to dst, re-delimited into units.
//
// Blocks are fed into a pipe in arrival order and a drainer reads units back
// out with the codec, so dst sees exactly one Write per unit however the
// sender chunked them. The feeder and drainer share fate. It never returns nil.
func (p *Pump) QueueToStream(ctx context.Context, src Inbox, dst io.Writer) error {
	pr, pw := io.Pipe()
	g, gctx := errgroup.WithContext(ctx)

	stop := context.AfterFunc(gctx, func() {
		pw.CloseWithError(io.ErrClosedPipe)
		pr.CloseWithError(io.ErrClosedPipe)
	})
	defer stop()

	g.Go(func() error { return p.feed(gctx, src, pw) })
	g.Go(func() error { return p.drain(pr, dst) })

	err := g.Wait()
	pr.Close()
	return wrap(OpQueueToStream, p.Peer, err)
}

// feed moves blocks from src into the pipe, waiting on an empty queue for
// the poll interval, a readiness signal or cancellation.
func (p *Pump) feed(ctx context.Context, src Inbox, pw *io.PipeWriter) error {
	var ready <-chan struct{}
	if r, ok := src.(readier); ok {
		ready = r.Ready()
	}
	clk := p.clock()
	interval := p.pollInterval()

	for {
		if src.Empty() {
			timer := clk.Timer(interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-ready:
				timer.Stop()
			case <-timer.C:
			}
			continue
		}

		block := src.Get()
		if len(block) == 0 {
			continue
		}
		if _, err := pw.Write(block); err != nil {
			return err
		}
	}
}

// drain reads units from the pipe and writes each to dst.
func (p *Pump) drain(pr *io.PipeReader, dst io.Writer) error {
	for step := 0; ; step++ {
		unit, err := p.Codec.ReadUnit(pr, step, p.Initiator)
		if err != nil {
			return err
		}
		if _, err := dst.Write(unit); err != nil {
			return err
		}
		p.observe(step, unit)
	}
}

func (p *Pump) observe(step int, unit []byte) {
	if p.OnUnit != nil {
		p.OnUnit(step, unit)
	}
}

func (p *Pump) clock() clock.Clock {
	if p.Clock == nil {
		return clock.New()
	}
	return p.Clock
}

func (p *Pump) pollInterval() time.Duration {
	if p.PollInterval <= 0 {
		return DefaultPollInterval
	}
	return p.PollInterval
}
