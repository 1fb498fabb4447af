package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/jcihitachi-core/internal/infrastructure/config"
)

// serviceName is attached to every log entry.
const serviceName = "jcihitachi"

// redactKeep is how many leading characters Redact leaves visible.
const redactKeep = 4

// Logger wraps slog.Logger with service-wide default fields.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger
}

// New creates a new Logger with the specified configuration.
//
// It configures:
//   - Output format (JSON for production, text for development)
//   - Log level filtering
//   - Default fields (service name, version)
//   - Output destination
//
// Parameters:
//   - cfg: Logging configuration from config.yaml
//   - version: Application version for default field
//
// Returns:
//   - *Logger: Configured logger ready for use
func New(cfg config.LoggingConfig, version string) *Logger {
	var output io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		output = os.Stderr
	default:
		output = os.Stdout
	}

	return newWithWriter(cfg, version, output)
}

// newWithWriter builds the handler chain on an arbitrary writer.
func newWithWriter(cfg config.LoggingConfig, version string, output io.Writer) *Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewJSONHandler(output, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", serviceName),
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

// With returns a new Logger with additional default attributes.
//
// Example:
//
//	iotLogger := logger.With("component", "iot")
//	iotLogger.Info("connected") // Includes component=iot
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
	}
}

// Default creates a default logger for use before configuration is loaded.
//
// This logger outputs to stdout in JSON format at info level.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, "dev")
}

// Redact shortens a secret to a short prefix so it can be correlated in logs
// without being disclosed. Empty input stays empty.
//
//	logging.Redact("eyJraWQiOiJ...") // "eyJr..."
func Redact(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= redactKeep {
		return "..."
	}
	return secret[:redactKeep] + "..."
}
