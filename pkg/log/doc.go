// Package log provides the structured tunnel event log.
//
// It is separate from operational logging (slog). The event log records what
// crossed the tunnel, unit by unit, together with connection lifecycle and
// error events, so a session can be replayed and analysed after the fact.
//
// # Basic Usage
//
//	// For development: log to console via slog
//	cfg.EventLogger = log.NewSlogAdapter(slog.Default())
//
//	// For production: write to a CBOR file
//	cfg.EventLogger, _ = log.NewFileLogger("/var/log/lnproxy/tunnel.tlog")
//
//	// Both
//	cfg.EventLogger = log.NewMultiLogger(adapter, fileLogger)
//
// # Directions
//
// OUT is node to mesh (the outbound pump), IN is mesh to node (the inbound
// pump).
//
// # File Format
//
// Log files are a stream of CBOR-encoded events with integer keys and the
// .tlog extension. A size-limited FileLogger rolls over to name.tlog.1. A
// file cut short by a crash reads up to the last whole event and then
// reports ErrTruncated. The lnproxy-log command views and summarises them.
package log
