package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"mercator-hq/broker/pkg/config"
)

// LogFormat represents the output format for logs.
type LogFormat string

const (
	// FormatJSON outputs one JSON object per record.
	FormatJSON LogFormat = "json"
	// FormatText outputs logfmt-style key=value records.
	FormatText LogFormat = "text"
)

// Options configures New.
type Options struct {
	// Level is the minimum log level ("debug", "info", "warn", "error").
	Level string

	// Format is "json" or "text".
	Format string

	// AddSource includes file and line in records.
	AddSource bool

	// RedactTokens masks credentials in attribute values.
	RedactTokens bool

	// Writer defaults to os.Stdout.
	Writer io.Writer
}

// OptionsFromConfig maps the telemetry.logging section onto Options.
func OptionsFromConfig(cfg config.LoggingConfig) Options {
	return Options{
		Level:        cfg.Level,
		Format:       cfg.Format,
		AddSource:    cfg.AddSource,
		RedactTokens: cfg.RedactTokens,
	}
}

// New builds a logger. Records carry the request attributes stored in their
// context (see WithRequestID) and, when enabled, credentials are redacted.
func New(opts Options) (*slog.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	format, err := parseFormat(opts.Format)
	if err != nil {
		return nil, err
	}

	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     level,
		AddSource: opts.AddSource,
	}
	if opts.RedactTokens {
		handlerOpts.ReplaceAttr = NewRedactor().ReplaceAttr
	}

	var h slog.Handler
	switch format {
	case FormatText:
		h = slog.NewTextHandler(w, handlerOpts)
	default:
		h = slog.NewJSONHandler(w, handlerOpts)
	}

	return slog.New(&contextHandler{next: h}), nil
}

// Setup builds a logger from configuration and installs it as the slog
// default, so component loggers derived from slog.Default pick it up.
func Setup(cfg config.LoggingConfig) (*slog.Logger, error) {
	logger, err := New(OptionsFromConfig(cfg))
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}

// ParseLevel parses a log level name.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %s", s)
	}
}

func parseFormat(s string) (LogFormat, error) {
	switch strings.ToLower(s) {
	case "json", "":
		return FormatJSON, nil
	case "text", "console":
		return FormatText, nil
	default:
		return FormatJSON, fmt.Errorf("unknown log format: %s", s)
	}
}
