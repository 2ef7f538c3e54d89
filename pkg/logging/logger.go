// Package logging configures structured zerolog output for the scraper.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs per-page requests and batch boundaries.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs run start and completion.
	LevelInfo LogLevel = "info"

	// LevelWarn logs dropped pages.
	LevelWarn LogLevel = "warn"

	// LevelError logs fatal run errors only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger. Logs go to stderr so the
// summary and table on stdout stay clean.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: "15:04:05"}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ValidateLevel reports whether level names a known log level.
func ValidateLevel(level LogLevel) error {
	switch strings.ToLower(string(level)) {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("unknown log level %q", level)
	}
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: per-request detail
//   - Page URL and response size
//   - Batch membership and batch wall time
//   - Inter-batch pauses
//
// Info: run lifecycle
//   - Run start (mode, pages, batch size, pause)
//   - Run completion (rows, pages, duration)
//   - Export destinations (CSV path, Redis channel, Pushgateway)
//
// Warn: degraded but continuing
//   - Dropped pages in batched mode
//   - Export sinks that failed after the scrape succeeded
//
// Error: the run could not complete
//   - Sequential mode aborted on a page
//   - Invalid configuration
//
// Context Fields:
//   - component: page-client, batch-fetcher, pacer, scraper, export
//   - page: page number
//   - batch: page numbers of one batch
//   - pages, rows: counts
//   - duration: elapsed time
//   - status_code: HTTP status code
//   - error_class: timeout, connection, status, extraction
