// Package mesh carries tunnel traffic between lnproxy daemons.
//
// The mesh only moves discrete envelopes addressed by node identity; it
// knows nothing about connections. A Link is one daemon's attachment to the
// mesh. Two implementations exist:
//
//   - MemNetwork/MemLink: an in-process mesh for tests and demos.
//   - GatewayLink: a TCP attachment to a Gateway, which routes envelopes
//     between attached daemons the way a radio mesh would, dropping traffic
//     for unknown destinations. Gateways can be found with mDNS.
//
// Envelopes are CBOR with integer keys; payloads may be zstd-compressed.
// On TCP each envelope travels in a 4-byte length-prefixed frame:
//
//	+----------------+------------------------+
//	| length (4, BE) | CBOR envelope (length) |
//	+----------------+------------------------+
//
// The Dispatcher connects a Link to a proxy engine: it drains every peer's
// send queue onto the link and hands received payloads to the engine.
package mesh
