// SPDX-License-Identifier: GPL-3.0-or-later

package syslisten

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"time"

	"github.com/bassosimone/runtimex"
	"github.com/bassosimone/safeconn"
)

// TLSEngine is the engine to create a new server-side [TLSConn].
type TLSEngine interface {
	// Server builds a new server [TLSConn].
	Server(conn net.Conn, config *tls.Config) TLSConn

	// Name returns the engine name.
	Name() string
}

// TLSEngineStdlib implements [TLSEngine] for the standard library.
//
// The zero value is ready to use.
type TLSEngineStdlib struct{}

var _ TLSEngine = TLSEngineStdlib{}

// Server implements [TLSEngine].
//
// This function uses [tls.Server] to build a new [*tls.Conn].
func (TLSEngineStdlib) Server(conn net.Conn, config *tls.Config) TLSConn {
	return tls.Server(conn, config)
}

// Name implements [TLSEngine].
//
// This function returns "stdlib".
func (TLSEngineStdlib) Name() string {
	return "stdlib"
}

// TLSConn abstracts over [*tls.Conn].
//
// By using an abstraction we allow for alternative TLS implementations.
type TLSConn interface {
	// ConnectionState returns the connection state.
	ConnectionState() tls.ConnectionState

	// HandshakeContext performs the handshake unless interrupted by the context.
	HandshakeContext(ctx context.Context) error

	// Embedding Conn means we can use this type as a [net.Conn].
	net.Conn
}

// NewTLSHandshakeFunc returns a new [*TLSHandshakeFunc] using the given [*tls.Config].
//
// The cfg argument contains the common configuration for syslisten operations.
//
// The tlsConfig argument is the server TLS configuration to use.
//
// The logger argument is the [SLogger] to use for structured logging.
func NewTLSHandshakeFunc(cfg *Config, tlsConfig *tls.Config, logger SLogger) *TLSHandshakeFunc {
	runtimex.Assert(tlsConfig != nil)
	return &TLSHandshakeFunc{
		Config:        tlsConfig,
		Engine:        cfg.TLSEngine,
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		TimeNow:       cfg.TimeNow,
	}
}

// TLSHandshakeFunc performs a server-side TLS handshake over an accepted [net.Conn].
//
// Returns either a valid [TLSConn] (as a [net.Conn]) or an error, never both.
// On failure the connection is closed.
//
// The caller bounds the handshake duration through the context.
//
// All fields are safe to modify after construction but before first use.
// Fields must not be mutated concurrently with calls to [Call].
type TLSHandshakeFunc struct {
	// Config contains the [*tls.Config] configuration to use.
	//
	// Set by [NewTLSHandshakeFunc] to the user-provided [*tls.Config] pointer.
	Config *tls.Config

	// Engine is the [TLSEngine] to use to handshake.
	//
	// Set by [NewTLSHandshakeFunc] from [Config.TLSEngine].
	Engine TLSEngine

	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewTLSHandshakeFunc] from [Config.ErrClassifier].
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use (configurable for testing or custom logging).
	//
	// Set by [NewTLSHandshakeFunc] to the user-provided logger.
	Logger SLogger

	// TimeNow is the function to get the current time (configurable for testing).
	//
	// Set by [NewTLSHandshakeFunc] from [Config.TimeNow].
	TimeNow func() time.Time
}

var _ Func[net.Conn, net.Conn] = &TLSHandshakeFunc{}

// Call invokes the [*TLSHandshakeFunc] to create a [TLSConn] from a [net.Conn].
func (op *TLSHandshakeFunc) Call(ctx context.Context, conn net.Conn) (net.Conn, error) {
	config := op.tlsConfig()
	tconn := op.Engine.Server(conn, config)
	t0 := op.TimeNow()
	deadline, _ := ctx.Deadline()
	op.logHandshakeStart(conn, t0, deadline)
	err := tconn.HandshakeContext(ctx)
	state := tconn.ConnectionState()
	op.logHandshakeDone(conn, t0, deadline, err, state)
	if err != nil {
		tconn.Close()
		return nil, err
	}
	return tconn, nil
}

func (op *TLSHandshakeFunc) tlsConfig() *tls.Config {
	runtimex.Assert(op.Config != nil)
	config := op.Config.Clone()
	config.Time = op.TimeNow
	return config
}

func (op *TLSHandshakeFunc) logHandshakeStart(conn net.Conn, t0 time.Time, deadline time.Time) {
	op.Logger.Info(
		"tlsHandshakeStart",
		slog.Time("deadline", deadline),
		slog.String("localAddr", safeconn.LocalAddr(conn)),
		slog.String("protocol", safeconn.Network(conn)),
		slog.String("remoteAddr", safeconn.RemoteAddr(conn)),
		slog.Time("t", t0),
		slog.String("tlsEngineName", op.Engine.Name()),
	)
}

func (op *TLSHandshakeFunc) logHandshakeDone(
	conn net.Conn, t0 time.Time, deadline time.Time, err error, state tls.ConnectionState) {
	op.Logger.Info(
		"tlsHandshakeDone",
		slog.Time("deadline", deadline),
		slog.Any("err", err),
		slog.String("errClass", op.ErrClassifier.Classify(err)),
		slog.String("localAddr", safeconn.LocalAddr(conn)),
		slog.String("protocol", safeconn.Network(conn)),
		slog.String("remoteAddr", safeconn.RemoteAddr(conn)),
		slog.Time("t0", t0),
		slog.Time("t", op.TimeNow()),
		slog.String("tlsCipherSuite", tls.CipherSuiteName(state.CipherSuite)),
		slog.String("tlsEngineName", op.Engine.Name()),
		slog.Any("tlsPeerCerts", op.peerCerts(state)),
		slog.String("tlsServerName", state.ServerName),
		slog.String("tlsVersion", tls.VersionName(state.Version)),
	)
}

// peerCerts returns the raw client certificates, if the client sent any.
func (op *TLSHandshakeFunc) peerCerts(state tls.ConnectionState) (out [][]byte) {
	out = [][]byte{}
	for _, cert := range state.PeerCertificates {
		out = append(out, cert.Raw)
	}
	return
}
