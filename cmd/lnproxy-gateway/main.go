// Command lnproxy-gateway routes mesh envelopes between lnproxy daemons.
//
// It stands in for a real mesh radio network: every daemon attaches over
// TCP, registers its identity, and the gateway forwards each envelope to
// the daemon named as its destination.
//
// Usage:
//
//	lnproxy-gateway [flags]
//
// Flags:
//
//	-listen string      Listen address (default ":9736")
//	-advertise          Advertise the gateway over mDNS
//	-name string        mDNS instance name (default "lnproxy-gateway")
//	-log-level string   Log level: debug, info, warn, error (default "info")
//	-stats duration     Interval for traffic statistics (0 disables)
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/remyers/lnproxy/pkg/mesh"
)

// Config holds the gateway configuration.
type Config struct {
	Listen        string
	Advertise     bool
	InstanceName  string
	LogLevel      string
	StatsInterval time.Duration
}

var config Config

func init() {
	flag.StringVar(&config.Listen, "listen", mesh.DefaultGatewayAddress, "Listen address")
	flag.BoolVar(&config.Advertise, "advertise", false, "Advertise the gateway over mDNS")
	flag.StringVar(&config.InstanceName, "name", "lnproxy-gateway", "mDNS instance name")
	flag.StringVar(&config.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.DurationVar(&config.StatsInterval, "stats", time.Minute, "Interval for traffic statistics (0 disables)")
}

func main() {
	flag.Parse()

	level, err := parseLevel(config.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(2)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gw := mesh.NewGateway(mesh.GatewayConfig{
		Address:      config.Listen,
		Advertise:    config.Advertise,
		InstanceName: config.InstanceName,
		Logger:       logger,
	})
	if err := gw.Start(ctx); err != nil {
		logger.Error("failed to start gateway", "err", err)
		os.Exit(1)
	}

	if config.StatsInterval > 0 {
		go reportStats(ctx, gw, logger, config.StatsInterval)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	logger.Info("received signal", "signal", sig.String())
	cancel()
	if err := gw.Stop(); err != nil {
		logger.Error("error stopping gateway", "err", err)
	}
	logStats(gw, logger)
}

func parseLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
	return l, nil
}

func reportStats(ctx context.Context, gw *mesh.Gateway, logger *slog.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logStats(gw, logger)
		}
	}
}

func logStats(gw *mesh.Gateway, logger *slog.Logger) {
	stats := gw.Stats()
	logger.Info("gateway stats", "peers", len(gw.Peers()), "routed", stats.Routed, "dropped", stats.Dropped)
}
