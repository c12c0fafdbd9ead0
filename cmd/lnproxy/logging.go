package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/remyers/lnproxy/pkg/config"
	"github.com/remyers/lnproxy/pkg/log"
)

// parseLevel maps a config level name to a slog level.
func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

// consoleWriter sends terminal log output to a writer that can be swapped
// once the interactive console owns the terminal.
type consoleWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (c *consoleWriter) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.w.Write(p)
}

// Set redirects subsequent log lines to w.
func (c *consoleWriter) Set(w io.Writer) {
	c.mu.Lock()
	c.w = w
	c.mu.Unlock()
}

// logOutput returns the writer for daemon logs: stderr, or a rotating file.
// The returned closer is nil for stderr.
func logOutput(cfg config.LogConfig) (io.Writer, io.Closer) {
	if cfg.File == "" {
		return &consoleWriter{w: os.Stderr}, nil
	}
	lj := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.Rotate.MaxSizeMB,
		MaxBackups: cfg.Rotate.MaxBackups,
		MaxAge:     cfg.Rotate.MaxAgeDays,
		Compress:   cfg.Rotate.Compress,
	}
	return lj, lj
}

// newHandler builds the slog handler for the configured format.
func newHandler(w io.Writer, cfg config.LogConfig) (slog.Handler, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if level == slog.LevelDebug {
		opts.AddSource = true
	}
	switch cfg.Format {
	case "json":
		return slog.NewJSONHandler(w, opts), nil
	case "", "text":
		return slog.NewTextHandler(w, opts), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
}

// setupLogging creates the daemon logger. The closer releases the log file,
// if any. The console writer is nil when logging to a file.
func setupLogging(cfg config.LogConfig) (*slog.Logger, *consoleWriter, io.Closer, error) {
	w, closer := logOutput(cfg)
	h, err := newHandler(w, cfg)
	if err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return nil, nil, nil, err
	}
	console, _ := w.(*consoleWriter)
	return slog.New(h), console, closer, nil
}

// setupEventLog builds the tunnel event logger: the CBOR file when
// configured, mirrored to the debug log. The returned closer closes the file.
func setupEventLog(lc config.LogConfig, logger *slog.Logger) (log.Logger, io.Closer, error) {
	mirror := log.NewSlogAdapter(logger)
	if lc.Events == "" {
		return mirror, nil, nil
	}
	fl, err := log.NewFileLogger(lc.Events, log.WithMaxSize(int64(lc.EventsMaxSizeMB)<<20))
	if err != nil {
		return nil, nil, fmt.Errorf("open event log: %w", err)
	}
	multi := log.NewMultiLogger(fl, mirror)
	return multi, multi, nil
}
