package meshqueue

import (
	"sort"
	"sync"
)

// Pair is the mailbox of one remote peer.
type Pair struct {
	// ToSend holds units read from the local node, waiting for the mesh.
	ToSend *Queue

	// Recvd holds blocks delivered by the mesh, waiting for the local node.
	Recvd *Queue
}

// NewPair creates a pair of empty queues.
func NewPair() *Pair {
	return &Pair{
		ToSend: NewQueue(),
		Recvd:  NewQueue(),
	}
}

// Registry maps peer identities to their queue pairs.
// It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	pairs map[PeerID]*Pair
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{pairs: make(map[PeerID]*Pair)}
}

// Lookup returns the pair for peer, or nil if none exists.
func (r *Registry) Lookup(peer PeerID) *Pair {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pairs[peer]
}

// GetOrCreate returns the pair for peer, creating it if absent.
// created reports whether a new pair was made.
func (r *Registry) GetOrCreate(peer PeerID) (pair *Pair, created bool) {
	if p := r.Lookup(peer); p != nil {
		return p, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pairs[peer]; ok {
		return p, false
	}
	p := NewPair()
	r.pairs[peer] = p
	return p, true
}

// Peers returns all registered identities in sorted order.
func (r *Registry) Peers() []PeerID {
	r.mu.RLock()
	peers := make([]PeerID, 0, len(r.pairs))
	for id := range r.pairs {
		peers = append(peers, id)
	}
	r.mu.RUnlock()

	sort.Slice(peers, func(i, j int) bool { return peers[i] < peers[j] })
	return peers
}

// Len returns the number of registered peers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pairs)
}
