package proxy

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/remyers/lnproxy/pkg/log"
	"github.com/remyers/lnproxy/pkg/meshqueue"
	"github.com/remyers/lnproxy/pkg/wire"
)

// NodeClient asks the local Lightning node to open a connection.
// Implemented by lnrpc.Client.
type NodeClient interface {
	Connect(ctx context.Context, id, host string) error
}

// Config configures an Engine.
type Config struct {
	// NodeSocket is the local node's Unix socket, dialled for inbound tunnels.
	NodeSocket string

	// ListenDir holds the Unix sockets created by Connect (default: os.TempDir()).
	ListenDir string

	// Codec delimits the node's byte stream (default: wire.LightningCodec).
	Codec wire.Codec

	// Queues is the process-wide queue registry (default: a new registry).
	Queues *meshqueue.Registry

	// NodeClient is required by Connect only.
	NodeClient NodeClient

	// Logger receives operational logs (optional).
	Logger *slog.Logger

	// EventLogger receives per-unit tunnel events (optional).
	EventLogger log.Logger

	// Metrics records Prometheus metrics (optional).
	Metrics *Metrics

	// PollInterval bounds how long an idle inbound pump waits before
	// re-checking its queue (default: DefaultPollInterval).
	PollInterval time.Duration

	// Clock drives polling (default: wall clock).
	Clock clock.Clock
}

func (c Config) withDefaults() Config {
	if c.ListenDir == "" {
		c.ListenDir = os.TempDir()
	}
	if c.Codec == nil {
		c.Codec = wire.NewLightningCodec()
	}
	if c.Queues == nil {
		c.Queues = meshqueue.NewRegistry()
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	if c.EventLogger == nil {
		c.EventLogger = log.NoopLogger{}
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	return c
}
