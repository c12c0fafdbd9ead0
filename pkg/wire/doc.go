// Package wire delimits the Lightning peer protocol (BOLT #8) into units.
//
// A Lightning connection starts with a three-act Noise handshake followed by
// length-framed messages. The tunnel never decrypts anything; it only needs
// to know where one unit ends and the next begins so that each unit can be
// carried as a single mesh message.
//
// # Handshake Acts
//
// The side that opened the connection (the initiator) sends act one and act
// three; the responder sends act two. Read from one direction of a
// connection, this means:
//
//	initiator: step 0 = act one (50 bytes), step 1 = act three (66 bytes)
//	responder: step 0 = act two (50 bytes)
//
// The first byte of every act is the handshake version and must be zero.
//
// # Framed Messages
//
//	┌──────────────┬─────────────┬──────────────────┬─────────────┐
//	│ length (2B)  │  MAC (16B)  │  body (length B) │  MAC (16B)  │
//	└──────────────┴─────────────┴──────────────────┴─────────────┘
//
// The length prefix must be readable by the tunnel, so the local node has to
// run with plaintext length headers. A unit is returned with its header and
// both MACs, byte for byte as read.
package wire
