// Package meshqueue holds the per-peer mailboxes shared by the tunnel and the
// mesh transport.
//
// Every remote node is addressed by a PeerID and owns a Pair of unbounded
// FIFO queues: ToSend carries units from the local node towards the mesh,
// Recvd carries blocks delivered by the mesh towards the local node. Each
// queue has one producer and one consumer at a time, and the FIFO is the only
// synchronization point between them.
//
// Pairs live in a process-wide Registry and are created lazily. They outlive
// individual connections; nothing in the tunnel ever removes them.
package meshqueue
