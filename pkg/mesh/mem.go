package mesh

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/remyers/lnproxy/pkg/meshqueue"
)

// MemNetwork is an in-process mesh. Envelopes are encoded on send and
// decoded on receive, exactly as on a real link.
type MemNetwork struct {
	// Compress enables payload compression for all links.
	Compress bool

	mu      sync.Mutex
	links   map[meshqueue.PeerID]*MemLink
	dropped atomic.Int64
}

// NewMemNetwork creates an empty in-process mesh.
func NewMemNetwork() *MemNetwork {
	return &MemNetwork{links: make(map[meshqueue.PeerID]*MemLink)}
}

// Join attaches a node with the given identity.
func (n *MemNetwork) Join(id meshqueue.PeerID) (*MemLink, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.links[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicatePeer, id.Short())
	}
	l := &MemLink{
		id:     id,
		net:    n,
		inbox:  meshqueue.NewQueue(),
		closed: make(chan struct{}),
	}
	n.links[id] = l
	return l, nil
}

// Dropped returns how many envelopes had no reachable destination.
func (n *MemNetwork) Dropped() int64 {
	return n.dropped.Load()
}

func (n *MemNetwork) route(to meshqueue.PeerID, data []byte) {
	n.mu.Lock()
	dst := n.links[to]
	n.mu.Unlock()

	if dst == nil {
		n.dropped.Add(1)
		return
	}
	dst.inbox.Put(data)
}

func (n *MemNetwork) leave(id meshqueue.PeerID) {
	n.mu.Lock()
	delete(n.links, id)
	n.mu.Unlock()
}

// MemLink is a node's attachment to a MemNetwork.
type MemLink struct {
	id        meshqueue.PeerID
	net       *MemNetwork
	inbox     *meshqueue.Queue
	closed    chan struct{}
	closeOnce sync.Once
}

// ID returns the link's identity.
func (l *MemLink) ID() meshqueue.PeerID {
	return l.id
}

// Send routes env to env.To.
func (l *MemLink) Send(ctx context.Context, env Envelope) error {
	select {
	case <-l.closed:
		return ErrLinkClosed
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	env.From = l.id
	data, err := env.Encode(l.net.Compress)
	if err != nil {
		return err
	}
	l.net.route(env.To, data)
	return nil
}

// Recv returns the next envelope addressed to this link.
func (l *MemLink) Recv(ctx context.Context) (Envelope, error) {
	for {
		if !l.inbox.Empty() {
			return DecodeEnvelope(l.inbox.Get())
		}
		select {
		case <-l.inbox.Ready():
		case <-l.closed:
			return Envelope{}, ErrLinkClosed
		case <-ctx.Done():
			return Envelope{}, ctx.Err()
		}
	}
}

// Close detaches the link from the network.
func (l *MemLink) Close() error {
	l.closeOnce.Do(func() {
		close(l.closed)
		l.net.leave(l.id)
	})
	return nil
}

// Compile-time interface satisfaction check.
var _ Link = (*MemLink)(nil)
