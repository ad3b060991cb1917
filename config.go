// SPDX-License-Identifier: GPL-3.0-or-later

package syslisten

import (
	"net"
	"time"
)

// Default values used by [NewConfig].
const (
	// DefaultMaxMessageSize is the largest syslog frame we accept.
	DefaultMaxMessageSize = 64 << 10

	// DefaultReadBufferSize is the size of the per-read buffer.
	DefaultReadBufferSize = 64 << 10

	// DefaultIdleFlushTimeout is how long an unterminated frame may
	// sit in a stream buffer before being decoded as complete.
	DefaultIdleFlushTimeout = 250 * time.Millisecond

	// DefaultHandshakeTimeout bounds the server-side TLS handshake.
	DefaultHandshakeTimeout = 10 * time.Second
)

// Config holds common configuration for syslisten operations.
//
// Pass this to constructor functions to pre-wire dependencies.
// All fields have sensible defaults set by [NewConfig].
type Config struct {
	// Binder is used by [*BindFunc] to create listening sockets.
	//
	// Set by [NewConfig] to [*net.ListenConfig].
	Binder Binder

	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewConfig] to [DefaultErrClassifier].
	ErrClassifier ErrClassifier

	// FlushOnClose controls what happens to an unterminated frame left
	// in a stream buffer when the peer closes the connection. When false
	// the bytes are discarded; when true they are decoded.
	//
	// Set by [NewConfig] to false.
	FlushOnClose bool

	// HandshakeTimeout bounds the TLS handshake of encrypted streams.
	//
	// Set by [NewConfig] to [DefaultHandshakeTimeout].
	HandshakeTimeout time.Duration

	// IdleFlushTimeout is how long a non-transparent frame without
	// trailer may stay pending before it is decoded. Zero disables
	// idle flushing.
	//
	// Set by [NewConfig] to [DefaultIdleFlushTimeout].
	IdleFlushTimeout time.Duration

	// MaxMessageSize is the maximum size of a single frame.
	//
	// Set by [NewConfig] to [DefaultMaxMessageSize].
	MaxMessageSize int

	// ReadBufferSize is the size of the buffer used for each read.
	//
	// Set by [NewConfig] to [DefaultReadBufferSize].
	ReadBufferSize int

	// TLSEngine creates server-side TLS connections.
	//
	// Set by [NewConfig] to [TLSEngineStdlib].
	TLSEngine TLSEngine

	// TimeNow returns the current time.
	//
	// Set by [NewConfig] to [time.Now].
	TimeNow func() time.Time
}

// NewConfig creates a [*Config] with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Binder:           &net.ListenConfig{},
		ErrClassifier:    DefaultErrClassifier,
		FlushOnClose:     false,
		HandshakeTimeout: DefaultHandshakeTimeout,
		IdleFlushTimeout: DefaultIdleFlushTimeout,
		MaxMessageSize:   DefaultMaxMessageSize,
		ReadBufferSize:   DefaultReadBufferSize,
		TLSEngine:        TLSEngineStdlib{},
		TimeNow:          time.Now,
	}
}
