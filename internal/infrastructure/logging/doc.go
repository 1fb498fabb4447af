// Package logging provides structured logging for the JCI Hitachi core.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Security
//
// Never log passwords, cloud tokens or temporary AWS keys. Use Redact when a
// value must be correlated across log lines:
//
//	logger.Debug("tokens refreshed", "access_token", logging.Redact(tokens.AccessToken))
package logging
