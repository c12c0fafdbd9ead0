package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"github.com/remyers/lnproxy/cmd/lnproxy/interactive"
	"github.com/remyers/lnproxy/pkg/config"
	"github.com/remyers/lnproxy/pkg/lnrpc"
	"github.com/remyers/lnproxy/pkg/mesh"
	"github.com/remyers/lnproxy/pkg/meshqueue"
	"github.com/remyers/lnproxy/pkg/proxy"
)

// shutdownTimeout bounds the metrics server shutdown.
const shutdownTimeout = 5 * time.Second

// nodeInfo is the subset of the node RPC used at startup.
type nodeInfo interface {
	GetInfo(ctx context.Context) (*lnrpc.Info, error)
}

// daemon is a running lnproxy instance.
type daemon struct {
	cfg      config.Config
	logger   *slog.Logger
	identity meshqueue.PeerID
	socket   string
	gateway  string

	engine      *proxy.Engine
	link        *mesh.GatewayLink
	metrics     *http.Server
	metricsAddr net.Addr
	events      io.Closer

	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan error
}

// resolveNode fills in the mesh identity and the node's peer socket from
// getinfo when the config leaves them empty.
func resolveNode(ctx context.Context, node nodeInfo, cfg config.Config) (meshqueue.PeerID, string, error) {
	identity := cfg.Mesh.Identity
	socket := cfg.Node.Socket
	if identity != "" && socket != "" {
		id, err := meshqueue.ParsePeerID(identity)
		return id, socket, err
	}
	if node == nil {
		return "", "", errNoIdentity
	}

	info, err := node.GetInfo(ctx)
	if err != nil {
		return "", "", fmt.Errorf("getinfo: %w", err)
	}
	if identity == "" {
		identity = info.ID
	}
	if socket == "" {
		if socket, err = info.LocalSocket(); err != nil {
			return "", "", err
		}
	}
	id, err := meshqueue.ParsePeerID(identity)
	if err != nil {
		return "", "", fmt.Errorf("node identity: %w", err)
	}
	return id, socket, nil
}

// resolveGateway returns the configured gateway or discovers one over mDNS.
func resolveGateway(ctx context.Context, cfg config.MeshConfig, logger *slog.Logger) (string, error) {
	if cfg.Gateway != "" {
		return cfg.Gateway, nil
	}
	if !cfg.Discover {
		return "", errors.New("no gateway configured")
	}
	logger.Info("discovering mesh gateway", "service", mesh.ServiceType)
	addr, err := mesh.DiscoverGateway(ctx, mesh.DefaultDiscoveryTimeout)
	if err != nil {
		return "", err
	}
	logger.Info("discovered mesh gateway", "address", addr)
	return addr, nil
}

// startMetrics serves /metrics for reg on addr and returns the bound
// address.
func startMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) (*http.Server, net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("metrics listen: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "err", err)
		}
	}()
	logger.Info("metrics endpoint listening", "address", ln.Addr().String())
	return srv, ln.Addr(), nil
}

// startDaemon wires the node client, engine, mesh link and dispatcher.
func startDaemon(ctx context.Context, cfg config.Config, logger *slog.Logger) (_ *daemon, err error) {
	d := &daemon{cfg: cfg, logger: logger, done: make(chan error, 1)}
	defer func() {
		if err != nil {
			_ = d.stop()
		}
	}()

	ctx, d.cancel = context.WithCancel(ctx)

	var rpc *lnrpc.Client
	if cfg.Node.RPCSocket != "" {
		rpc = lnrpc.NewClient(cfg.Node.RPCSocket)
	}
	var node nodeInfo
	if rpc != nil {
		node = rpc
	}
	if d.identity, d.socket, err = resolveNode(ctx, node, cfg); err != nil {
		return nil, err
	}
	logger.Info("node", "id", d.identity.String(), "socket", d.socket)

	if cfg.Node.SuppressGossip && rpc != nil {
		if err := rpc.DevSuppressGossip(ctx); err != nil {
			logger.Warn("dev-suppress-gossip failed", "err", err)
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := proxy.NewMetrics(reg)
	if cfg.Metrics.Listen != "" {
		if d.metrics, d.metricsAddr, err = startMetrics(cfg.Metrics.Listen, reg, logger); err != nil {
			return nil, err
		}
	}

	events, eventCloser, err := setupEventLog(cfg.Log, logger)
	if err != nil {
		return nil, err
	}
	d.events = eventCloser

	engineCfg := proxy.Config{
		NodeSocket:   d.socket,
		ListenDir:    cfg.Proxy.ListenDir,
		Logger:       logger.With("component", "proxy"),
		EventLogger:  events,
		Metrics:      metrics,
		PollInterval: cfg.Proxy.PollInterval,
	}
	if rpc != nil {
		engineCfg.NodeClient = rpc
	}
	d.engine = proxy.NewEngine(engineCfg)
	if err := d.engine.Start(ctx); err != nil {
		return nil, err
	}

	if d.gateway, err = resolveGateway(ctx, cfg.Mesh, logger); err != nil {
		return nil, err
	}
	meshLogger := logger.With("component", "mesh")
	d.link, err = mesh.DialGateway(ctx, mesh.GatewayLinkConfig{
		Address:  d.gateway,
		Identity: d.identity,
		Compress: cfg.Mesh.Compress,
		Logger:   meshLogger,
		OnStateChange: func(old, new mesh.LinkState) {
			meshLogger.Info("mesh link state", "old", old.String(), "new", new.String())
		},
	})
	if err != nil {
		return nil, err
	}

	disp := mesh.NewDispatcher(mesh.DispatcherConfig{
		Link:         d.link,
		Queues:       d.engine.Queues(),
		Deliverer:    d.engine,
		SendInterval: cfg.Mesh.SendInterval,
		Logger:       meshLogger,
	})
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.done <- disp.Run(ctx)
	}()

	logger.Info("lnproxy started", "gateway", d.gateway, "listen_dir", cfg.Proxy.ListenDir)
	return d, nil
}

// status describes the daemon for the console.
func (d *daemon) status() interactive.Status {
	return interactive.Status{
		Identity:   d.identity,
		NodeSocket: d.socket,
		Gateway:    d.gateway,
		LinkState:  func() string { return d.link.State().String() },
	}
}

// stop tears the daemon down in reverse start order.
func (d *daemon) stop() error {
	if d.cancel != nil {
		d.cancel()
	}

	var err error
	if d.link != nil {
		if cerr := d.link.Close(); cerr != nil && !errors.Is(cerr, mesh.ErrLinkClosed) {
			err = multierr.Append(err, fmt.Errorf("close mesh link: %w", cerr))
		}
	}
	d.wg.Wait()

	if d.engine != nil {
		err = multierr.Append(err, d.engine.Stop())
	}
	if d.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		err = multierr.Append(err, d.metrics.Shutdown(ctx))
		cancel()
	}
	if d.events != nil {
		err = multierr.Append(err, d.events.Close())
	}
	return err
}
