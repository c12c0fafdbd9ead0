// Package config loads the lnproxy daemon configuration from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/remyers/lnproxy/pkg/mesh"
	"github.com/remyers/lnproxy/pkg/meshqueue"
	"github.com/remyers/lnproxy/pkg/proxy"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// DefaultRPCSocket is the RPC socket of a regtest node started as "l1".
const DefaultRPCSocket = "/tmp/l1-regtest/regtest/lightning-rpc"

// Config is the daemon configuration.
type Config struct {
	Node    NodeConfig    `yaml:"node"`
	Proxy   ProxyConfig   `yaml:"proxy"`
	Mesh    MeshConfig    `yaml:"mesh"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// NodeConfig describes the local Lightning node.
type NodeConfig struct {
	// RPCSocket is the node's lightning-rpc socket.
	RPCSocket string `yaml:"rpc_socket"`

	// Socket is the node's peer socket. Empty means: ask getinfo.
	Socket string `yaml:"socket"`

	// SuppressGossip calls dev-suppress-gossip at startup.
	SuppressGossip bool `yaml:"suppress_gossip"`
}

// ProxyConfig tunes the tunnel engine.
type ProxyConfig struct {
	ListenDir    string        `yaml:"listen_dir"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// MeshConfig selects the mesh attachment.
type MeshConfig struct {
	// Identity is this node's id on the mesh. Empty means: the node id
	// from getinfo.
	Identity string `yaml:"identity"`

	// Gateway is the gateway host:port.
	Gateway string `yaml:"gateway"`

	// Discover finds the gateway over mDNS when Gateway is empty.
	Discover bool `yaml:"discover"`

	Compress     bool          `yaml:"compress"`
	SendInterval time.Duration `yaml:"send_interval"`
}

// LogConfig configures operational and event logging.
type LogConfig struct {
	Level  string       `yaml:"level"`
	Format string       `yaml:"format"`
	File   string       `yaml:"file"`
	Rotate RotateConfig `yaml:"rotate"`

	// Events is the CBOR tunnel event log path (empty: disabled).
	Events string `yaml:"events"`
	// EventsMaxSizeMB rolls the event log over to events.1 at this size
	// (0: unbounded).
	EventsMaxSizeMB int `yaml:"events_max_size_mb"`
}

// RotateConfig configures log file rotation.
type RotateConfig struct {
	MaxSizeMB  int  `yaml:"max_size_mb"`
	MaxBackups int  `yaml:"max_backups"`
	MaxAgeDays int  `yaml:"max_age_days"`
	Compress   bool `yaml:"compress"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Listen is the HTTP address for /metrics (empty: disabled).
	Listen string `yaml:"listen"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Node: NodeConfig{
			RPCSocket:      DefaultRPCSocket,
			SuppressGossip: true,
		},
		Proxy: ProxyConfig{
			ListenDir:    os.TempDir(),
			PollInterval: proxy.DefaultPollInterval,
		},
		Mesh: MeshConfig{
			Compress:     true,
			SendInterval: mesh.DefaultSendInterval,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Rotate: RotateConfig{MaxSizeMB: 10, MaxBackups: 3, MaxAgeDays: 7},
		},
	}
}

// Parse decodes YAML over the defaults and validates the result.
// Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads and parses the file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field values.
func (c *Config) Validate() error {
	var problems []string

	if c.Node.RPCSocket == "" && c.Node.Socket == "" {
		problems = append(problems, "node.rpc_socket or node.socket is required")
	}
	if c.Proxy.PollInterval <= 0 {
		problems = append(problems, "proxy.poll_interval must be positive")
	}
	if c.Proxy.ListenDir == "" {
		problems = append(problems, "proxy.listen_dir is required")
	}
	if c.Mesh.SendInterval <= 0 {
		problems = append(problems, "mesh.send_interval must be positive")
	}
	if c.Mesh.Identity != "" {
		if _, err := meshqueue.ParsePeerID(c.Mesh.Identity); err != nil {
			problems = append(problems, fmt.Sprintf("mesh.identity: %v", err))
		}
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("log.level %q unknown", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("log.format %q unknown", c.Log.Format))
	}
	if c.Log.Rotate.MaxSizeMB < 0 || c.Log.Rotate.MaxBackups < 0 || c.Log.Rotate.MaxAgeDays < 0 {
		problems = append(problems, "log.rotate values must not be negative")
	}
	if c.Log.EventsMaxSizeMB < 0 {
		problems = append(problems, "log.events_max_size_mb must not be negative")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
