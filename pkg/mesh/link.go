package mesh

import (
	"context"
	"errors"
)

// Link errors.
var (
	// ErrLinkClosed indicates the link was closed locally.
	ErrLinkClosed = errors.New("link closed")

	// ErrNotConnected indicates the link currently has no path to the mesh.
	// Callers may retry.
	ErrNotConnected = errors.New("link not connected")

	// ErrDuplicatePeer indicates an identity is already attached.
	ErrDuplicatePeer = errors.New("peer already attached")
)

// Link is one node's attachment to the mesh.
type Link interface {
	// Send transmits env to env.To. The link sets env.From. Delivery is
	// best effort: the mesh may drop envelopes for unreachable peers.
	Send(ctx context.Context, env Envelope) error

	// Recv blocks until an envelope arrives, ctx ends or the link closes.
	Recv(ctx context.Context) (Envelope, error)

	// Close detaches from the mesh. Pending and later Recv calls return
	// ErrLinkClosed.
	Close() error
}
