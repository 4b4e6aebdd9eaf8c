// package shared defines shared helpers
package shared

import (
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger creates a new [log.Logger] instance with the specified [io.Writer], with timestamps and caller reporting enabled.
//
// The writer defaults to [os.Stderr]
func NewLogger(w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := log.Options{ReportTimestamp: true, ReportCaller: true}
	return log.NewWithOptions(w, opts)
}

// NewFileLogger returns a logger that writes to console and, when cfg.File is set, to a size-rotated file.
// A nil console discards terminal output, which keeps a full-screen UI clean.
// The returned closer must be called on shutdown.
func NewFileLogger(cfg LogConfig, console io.Writer) (*log.Logger, io.Closer, error) {
	if console == nil {
		console = io.Discard
	}
	if cfg.File == "" {
		l := NewLogger(console)
		l.SetLevel(ParseLevel(cfg.Level))
		return l, io.NopCloser(nil), nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, nil, err
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
	l := NewLogger(io.MultiWriter(console, rotator))
	l.SetLevel(ParseLevel(cfg.Level))
	return l, rotator, nil
}

// ParseLevel maps a level name to a [log.Level], falling back to info.
func ParseLevel(s string) log.Level {
	lvl, err := log.ParseLevel(s)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// WithLogger creates a child [log.Logger] with the specified key-value pairs added to all log entries.
func WithLogger(l *log.Logger, kv ...any) *log.Logger {
	return l.With(kv...)
}

// GenerateID generates a new v4 [uuid.UUID] as a string
func GenerateID() string {
	return uuid.New().String()
}
