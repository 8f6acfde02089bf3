// ABOUTME: Structured logging setup shared by every command
// ABOUTME: Configures level, format and destinations of the logrus logger
package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Config controls logger setup
type Config struct {
	Level  string
	Format string
	File   string

	// Console also writes to stdout. Off while a full-screen surface owns the terminal.
	Console bool
}

// Setup configures l and returns a closer for the log file, if any
func Setup(l *logrus.Logger, cfg Config) (io.Closer, error) {
	SetLevel(l, cfg.Level)
	SetFormat(l, cfg.Format)

	var writers []io.Writer
	var closer io.Closer = nopCloser{}

	if cfg.Console {
		writers = append(writers, os.Stdout)
	}
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
		if err != nil {
			return nil, fmt.Errorf("error opening log file: %w", err)
		}
		writers = append(writers, f)
		closer = f
	}

	switch len(writers) {
	case 0:
		l.SetOutput(io.Discard)
	case 1:
		l.SetOutput(writers[0])
	default:
		l.SetOutput(io.MultiWriter(writers...))
	}
	return closer, nil
}

// SetLevel sets the level by name, defaulting to info
func SetLevel(l *logrus.Logger, lvl string) {
	level, err := logrus.ParseLevel(lvl)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)
}

// SetFormat selects json or text output
func SetFormat(l *logrus.Logger, format string) {
	switch format {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}
}

// Component returns an entry tagged with the component name
func Component(l *logrus.Logger, name string) *logrus.Entry {
	return l.WithField("component", name)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
