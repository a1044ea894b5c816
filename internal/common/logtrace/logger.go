// Package logtrace provides logging and tracing utilities for the application.
// It integrates with zerolog for structured logging and supports request tracing.
package logtrace

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultLogFile returns the log file used when the process speaks the MCP
// protocol over stdout and no LOG_FILE was configured.
func DefaultLogFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "share", "flightctl-mcp", "flightctl-mcp.log")
}

// ParseLevel maps a level name such as "debug" or "WARNING" to a zerolog level.
// Unknown names fall back to info.
func ParseLevel(name string) zerolog.Level {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "warning" {
		name = "warn"
	}
	lvl, err := zerolog.ParseLevel(name)
	if err != nil || name == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// InitLogger initializes the global logger with Unix millisecond timestamps.
// Output goes to file, opened in append mode, or to stderr when file is empty.
// The returned closer releases the file and is a no-op for stderr.
func InitLogger(level, file string) (io.Closer, error) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	zerolog.SetGlobalLevel(ParseLevel(level))

	var out io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}
	if file != "" {
		if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, err
		}
		out = f
		closer = f
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
