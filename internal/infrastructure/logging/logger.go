package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/usagedeck/usagedeck-console/internal/infrastructure/config"
)

// Logger wraps slog.Logger with the console's default fields and level
// filtering. Every log line carries the service name and build version so
// aggregated output from multiple deployments stays attributable.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger
}

// New creates a Logger from the logging section of config.yaml.
//
// It configures:
//   - Output format (JSON for production, text for local development)
//   - Level filtering
//   - Default fields (service name, version)
//   - Output destination (stdout or stderr)
//
// Unrecognised format or output values fall back to JSON on stdout rather
// than failing, so a typo in config.yaml never silences logging entirely.
func New(cfg config.LoggingConfig, version string) *Logger {
	var output io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		output = os.Stderr
	default:
		output = os.Stdout
	}

	level := parseLevel(cfg.Level)

	var handler slog.Handler
	opts := &slog.HandlerOptions{
		Level: level,
	}

	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewJSONHandler(output, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "usagedeck"),
		slog.String("version", version),
	})

	return &Logger{
		Logger: slog.New(handler),
	}
}

// parseLevel converts a string log level to slog.Level.
//
// Supported levels: debug, info, warn, error
// Defaults to info if unrecognised.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a new Logger carrying additional default attributes.
//
// Subsystems derive their own logger at construction so every line they
// emit is tagged with its origin:
//
//	authLog := logger.With("component", "auth")
//	authLog.Info("session restored") // includes component=auth
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
	}
}

// Default creates a logger for use before config.yaml has been loaded.
//
// It writes JSON to stdout at info level with the version reported as
// "dev". Only early startup (config load failures included) should use it.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, "dev")
}
