package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Options select the level, output format and optional log file.
// Supported levels: debug, info, warn, error.
// Supported formats: text, json, logfmt.
type Options struct {
	Level  string
	Format string
	File   string
}

// New creates a logger writing to w.
func New(level, format string, w io.Writer) *log.Logger {
	logger := log.NewWithOptions(w, log.Options{
		Level:           parseLevel(level),
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
		Formatter:       parseFormatter(format),
	})
	return logger
}

// Open creates a logger for the daemon. With a file configured, records go
// to both stderr and the file; the returned closer releases the file.
func Open(opts Options) (*log.Logger, io.Closer, error) {
	if opts.File == "" {
		return New(opts.Level, opts.Format, os.Stderr), nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return New(opts.Level, opts.Format, io.MultiWriter(os.Stderr, f)), f, nil
}

func parseLevel(level string) log.Level {
	switch strings.ToLower(level) {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

func parseFormatter(format string) log.Formatter {
	switch strings.ToLower(format) {
	case "json":
		return log.JSONFormatter
	case "logfmt":
		return log.LogfmtFormatter
	default:
		return log.TextFormatter
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
