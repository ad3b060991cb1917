// SPDX-License-Identifier: GPL-3.0-or-later

package syslisten

// SLogger abstracts the [*slog.Logger] behavior.
//
// By using an abstraction we allow for unit testing and alternative implementations.
//
// This package uses four log levels:
//   - Debug for per-I/O events (read, set deadline) and discarded partial frames
//   - Info for lifecycle events (bind, accept, close, TLS handshake) and
//     for every decoded syslog message
//   - Warn for malformed messages and per-connection transport errors
//   - Error for bind failures that prevent the listener from starting
//
// The [*slog.Logger] type satisfies this interface.
type SLogger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// DefaultSLogger returns the default [SLogger] to use.
//
// The default is a no-op logger that discards all output. This follows the
// library convention of not writing to stdout/stderr unless explicitly configured.
//
// Use a custom [*slog.Logger] for emitting logs.
func DefaultSLogger() SLogger {
	return discardSLogger{}
}

// discardSLogger is a no-op [SLogger] that discards all log messages.
type discardSLogger struct{}

var _ SLogger = discardSLogger{}

// Debug implements [SLogger].
func (discardSLogger) Debug(msg string, args ...any) {
	// nothing
}

// Info implements [SLogger].
func (discardSLogger) Info(msg string, args ...any) {
	// nothing
}

// Warn implements [SLogger].
func (discardSLogger) Warn(msg string, args ...any) {
	// nothing
}

// Error implements [SLogger].
func (discardSLogger) Error(msg string, args ...any) {
	// nothing
}
