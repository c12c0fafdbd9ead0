// Command lnproxy tunnels a local Lightning node's peer connections over a
// mesh network.
//
// It proxies the node's Unix socket connections, splits the byte stream
// into handshake acts and framed messages, and exchanges them with remote
// lnproxy daemons through a mesh gateway.
//
// Usage:
//
//	lnproxy [flags]
//
// Flags:
//
//	-config string       Configuration file path
//	-log-level string    Log level: debug, info, warn, error (overrides config)
//	-node-socket string  Node RPC socket (overrides node.rpc_socket)
//	-gateway string      Mesh gateway host:port (overrides mesh.gateway)
//	-interactive         Start the interactive console
//
// Examples:
//
//	# Run against a regtest node through a local gateway
//	lnproxy -node-socket /tmp/l1-regtest/regtest/lightning-rpc -gateway 127.0.0.1:9736
//
//	# Run from a config file with the console
//	lnproxy -config /etc/lnproxy/lnproxy.yaml -interactive
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/remyers/lnproxy/cmd/lnproxy/interactive"
	"github.com/remyers/lnproxy/pkg/config"
)

// Flags holds the command line options. Empty values leave the config
// file setting in place.
type Flags struct {
	ConfigFile  string
	LogLevel    string
	NodeSocket  string
	Gateway     string
	Interactive bool
}

var flags Flags

func init() {
	flag.StringVar(&flags.ConfigFile, "config", "", "Configuration file path")
	flag.StringVar(&flags.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.StringVar(&flags.NodeSocket, "node-socket", "", "Node RPC socket path")
	flag.StringVar(&flags.Gateway, "gateway", "", "Mesh gateway address (host:port)")
	flag.BoolVar(&flags.Interactive, "interactive", false, "Start the interactive console")
}

func main() {
	flag.Parse()

	cfg, err := loadConfig(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(2)
	}

	logger, consoleOut, logCloser, err := setupLogging(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(2)
	}
	if logCloser != nil {
		defer logCloser.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d, err := startDaemon(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "err", err)
		os.Exit(1)
	}

	if flags.Interactive {
		console, err := interactive.New(d.engine, d.status())
		if err != nil {
			logger.Error("failed to create console", "err", err)
		} else {
			// Route log output through readline so lines do not garble the prompt.
			if consoleOut != nil {
				consoleOut.Set(console.Stdout())
			}
			go console.Run(ctx, cancel)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal", "signal", sig.String())
	case <-ctx.Done():
	case err := <-d.done:
		if err != nil {
			logger.Error("mesh dispatcher failed", "err", err)
		}
	}

	logger.Info("shutting down")
	cancel()
	if err := d.stop(); err != nil {
		logger.Error("shutdown", "err", err)
	}
	logger.Info("goodbye")
}

// loadConfig reads the config file (or defaults) and applies flag
// overrides.
func loadConfig(f Flags) (config.Config, error) {
	cfg := config.Default()
	if f.ConfigFile != "" {
		loaded, err := config.Load(f.ConfigFile)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.NodeSocket != "" {
		cfg.Node.RPCSocket = f.NodeSocket
	}
	if f.Gateway != "" {
		cfg.Mesh.Gateway = f.Gateway
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	if cfg.Mesh.Gateway == "" && !cfg.Mesh.Discover {
		return config.Config{}, fmt.Errorf("%w: mesh.gateway is required unless mesh.discover is set", config.ErrInvalidConfig)
	}
	return cfg, nil
}

var errNoIdentity = errors.New("no mesh identity: set mesh.identity or provide a node RPC socket")
