// Package logger sets up zerolog for the binary and adapts it to the status
// sink the ports, parsers and devices report through.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/b3nn0/flightlink/common"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Level  string `yaml:"level" toml:"level"`   // zerolog level name, info when empty
	Output string `yaml:"output" toml:"output"` // stdout, stderr or a file appended to
	Format string `yaml:"format" toml:"format"` // json or console
}

var (
	mu   sync.RWMutex
	root = zerolog.New(os.Stderr).With().Timestamp().Logger()
)

// New builds a logger for cfg writing to w. A nil w selects cfg.Output.
func New(cfg Config, w io.Writer) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		var err error
		if level, err = zerolog.ParseLevel(cfg.Level); err != nil {
			return zerolog.Nop(), fmt.Errorf("log level: %w", err)
		}
	}

	if w == nil {
		var err error
		if w, err = openOutput(cfg.Output); err != nil {
			return zerolog.Nop(), err
		}
	}
	switch cfg.Format {
	case "", "json":
	case "console":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	default:
		return zerolog.Nop(), fmt.Errorf("log format %q is unknown", cfg.Format)
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}

func openOutput(name string) (io.Writer, error) {
	switch name {
	case "", "stderr":
		return os.Stderr, nil
	case "stdout":
		return os.Stdout, nil
	}
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("log output: %w", err)
	}
	return f, nil
}

// Setup makes the logger built from cfg the root every component derives
// from, and the zerolog global one.
func Setup(cfg Config) error {
	l, err := New(cfg, nil)
	if err != nil {
		return err
	}
	mu.Lock()
	root = l
	mu.Unlock()
	log.Logger = l
	return nil
}

// Component returns the root logger tagged with name.
func Component(name string) zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root.With().Str("component", name).Logger()
}

// StatusSink forwards status messages to a zerolog logger.
type StatusSink struct {
	l zerolog.Logger
}

// Sink returns a status sink logging as component.
func Sink(component string) *StatusSink {
	return &StatusSink{l: Component(component)}
}

func (s *StatusSink) StatusMessage(t common.MsgType, source string, format string, args ...any) {
	var ev *zerolog.Event
	switch t {
	case common.MSG_ERROR:
		ev = s.l.Error()
	case common.MSG_WARNING:
		ev = s.l.Warn()
	default:
		ev = s.l.Info()
	}
	ev.Str("source", source).Msgf(format, args...)
}
