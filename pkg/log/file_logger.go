package log

import (
	"fmt"
	"os"
	"sync"
)

// FileLogger appends events to a .tlog file as a CBOR stream.
//
// Unit events are written without syncing; state and error events flush the
// file to disk so a crash never loses how a connection ended. With a size
// limit set, the file rolls over to path.1 once it reaches the limit, always
// between two events so both files stay readable.
type FileLogger struct {
	mu      sync.Mutex
	path    string
	maxSize int64
	file    *os.File
	size    int64
	stats   FileStats
	closed  bool
}

// FileStats counts what a FileLogger has done.
type FileStats struct {
	Written   int
	Dropped   int
	Rollovers int
}

// FileOption configures a FileLogger.
type FileOption func(*FileLogger)

// WithMaxSize rolls the log over once it holds n bytes. Zero means no limit.
func WithMaxSize(n int64) FileOption {
	return func(l *FileLogger) { l.maxSize = n }
}

// NewFileLogger opens path for appending, creating it with mode 0644.
func NewFileLogger(path string, opts ...FileOption) (*FileLogger, error) {
	l := &FileLogger{path: path}
	for _, opt := range opts {
		opt(l)
	}
	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *FileLogger) open() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	l.file = f
	l.size = info.Size()
	return nil
}

// Log writes an event. Failures are counted in Stats and never reach the
// caller: pumps log inline and must not stall on the event log.
func (l *FileLogger) Log(event Event) {
	data, err := EncodeEvent(event)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	if err != nil {
		l.stats.Dropped++
		return
	}
	n, err := l.file.Write(data)
	l.size += int64(n)
	if err != nil {
		l.stats.Dropped++
		return
	}
	l.stats.Written++

	if event.Category != CategoryUnit {
		_ = l.file.Sync()
	}
	if l.maxSize > 0 && l.size >= l.maxSize {
		if err := l.rollover(); err != nil {
			// Keep appending to the old file rather than losing events.
			l.maxSize = 0
		}
	}
}

// rollover moves the current file to path.1, replacing any earlier one, and
// starts a fresh file at path.
func (l *FileLogger) rollover() error {
	if err := l.file.Close(); err != nil {
		return l.reopen(err)
	}
	if err := os.Rename(l.path, l.path+".1"); err != nil {
		return l.reopen(err)
	}
	if err := l.open(); err != nil {
		return err
	}
	l.stats.Rollovers++
	return nil
}

func (l *FileLogger) reopen(cause error) error {
	if err := l.open(); err != nil {
		return fmt.Errorf("rollover %s: %w (reopen: %v)", l.path, cause, err)
	}
	return fmt.Errorf("rollover %s: %w", l.path, cause)
}

// Stats returns the logger's counters.
func (l *FileLogger) Stats() FileStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Close closes the file. It is safe to call more than once; later Log calls
// are ignored.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return l.file.Close()
}

var _ Logger = (*FileLogger)(nil)
