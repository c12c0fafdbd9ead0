// Package proxy tunnels a Lightning node's byte-stream connection over a
// store-and-forward mesh modelled as per-peer queue pairs.
//
// Each connection to the local node runs two pumps:
//
//	node --StreamToQueue--> ToSend  (to the mesh)
//	node <--QueueToStream-- Recvd   (from the mesh)
//
// Both pumps delimit the byte stream into handshake acts and framed messages
// with a wire.Codec, so every queue block is exactly one unit on the sending
// side. Each pump counts its own steps: the initiator direction carries two
// acts, the responder direction one.
//
// The pumps share fate. When either stops, the connection is closed exactly
// once and the other pump unblocks and returns.
//
// Roles:
//
//	HandleOutbound (local node dialled us):  stream initiator, queue responder
//	HandleInbound  (mesh peer reached us):   stream responder, queue initiator
//
// Engine ties the pieces together: it owns the queue registry, listeners for
// outbound connects, inbound dials triggered by mesh deliveries, and metrics.
package proxy
