// Package logging holds the small structured logger the commands share.
package logging

import (
	"io"
	"log/slog"
)

// Logger is the structured logger used across netbox2st2. Attributes are
// alternating key-value pairs, as with log/slog.
type Logger interface {
	Debug(msg string, attrs ...any)
	Info(msg string, attrs ...any)
	Warn(msg string, attrs ...any)
	Error(msg string, attrs ...any)
	With(attrs ...any) Logger
}

// NopLogger discards everything. It is the default when no logger is configured.
type NopLogger struct{}

func (NopLogger) Debug(_ string, _ ...any) {}
func (NopLogger) Info(_ string, _ ...any)  {}
func (NopLogger) Warn(_ string, _ ...any)  {}
func (NopLogger) Error(_ string, _ ...any) {}
func (n NopLogger) With(_ ...any) Logger   { return n }

var _ Logger = NopLogger{}

// SlogAdapter wraps a *slog.Logger.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter wraps logger; nil means slog.Default().
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogAdapter{logger: logger}
}

func (s *SlogAdapter) Debug(msg string, attrs ...any) { s.logger.Debug(msg, attrs...) }
func (s *SlogAdapter) Info(msg string, attrs ...any)  { s.logger.Info(msg, attrs...) }
func (s *SlogAdapter) Warn(msg string, attrs ...any)  { s.logger.Warn(msg, attrs...) }
func (s *SlogAdapter) Error(msg string, attrs ...any) { s.logger.Error(msg, attrs...) }

func (s *SlogAdapter) With(attrs ...any) Logger {
	return &SlogAdapter{logger: s.logger.With(attrs...)}
}

var _ Logger = (*SlogAdapter)(nil)

// New returns a text logger writing to w. Debug output is enabled when verbose is set.
func New(w io.Writer, verbose bool) Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return NewSlogAdapter(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

// OrNop returns l, or a NopLogger when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return NopLogger{}
	}
	return l
}
