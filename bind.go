// SPDX-License-Identifier: GPL-3.0-or-later

package syslisten

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/bassosimone/syslisten/bindclass"
)

// Binder abstracts the [*net.ListenConfig] behavior.
//
// By making [*BindFunc] depend on an abstract implementation we
// allow for unit testing bind-time failures.
type Binder interface {
	Listen(ctx context.Context, network, address string) (net.Listener, error)
	ListenPacket(ctx context.Context, network, address string) (net.PacketConn, error)
}

// Endpoint is a bound socket ready to receive syslog traffic.
//
// Exactly one of Listener and PacketConn is non-nil.
type Endpoint struct {
	// Kind is the transport kind.
	Kind TransportKind

	// Listener is the listening socket for stream kinds.
	Listener net.Listener

	// PacketConn is the socket for the datagram kind.
	PacketConn net.PacketConn

	// TLSConfig is the server configuration for encrypted streams.
	TLSConfig *tls.Config
}

// Addr returns the bound address.
func (e *Endpoint) Addr() net.Addr {
	if e.PacketConn != nil {
		return e.PacketConn.LocalAddr()
	}
	return e.Listener.Addr()
}

// Close closes the underlying socket.
func (e *Endpoint) Close() error {
	if e.PacketConn != nil {
		return e.PacketConn.Close()
	}
	return e.Listener.Close()
}

// NewBindFunc returns a new [*BindFunc].
//
// The cfg argument contains the common configuration for syslisten operations.
//
// The logger argument is the [SLogger] to use for structured logging.
func NewBindFunc(cfg *Config, logger SLogger) *BindFunc {
	return &BindFunc{
		Binder:        cfg.Binder,
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		TimeNow:       cfg.TimeNow,
	}
}

// BindFunc creates the listening [*Endpoint] for a [ListenerConfig].
//
// Returns either a valid [*Endpoint] or an error, never both. Configuration
// errors ([ErrUnsupportedTransportKind], [ErrMissingTLSMaterial],
// [*CredentialLoadError]) are returned before any socket is created; socket
// errors are returned as [*BindError].
//
// All fields are safe to modify after construction but before first use.
// Fields must not be mutated concurrently with calls to [Call].
type BindFunc struct {
	// Binder is the [Binder] to use.
	//
	// Set by [NewBindFunc] from [Config.Binder].
	Binder Binder

	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewBindFunc] from [Config.ErrClassifier].
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use (configurable for testing or custom logging).
	//
	// Set by [NewBindFunc] to the user-provided logger.
	Logger SLogger

	// TLSConfig is the preloaded configuration for encrypted streams. When
	// nil, [Call] loads it from [ListenerConfig.TLS].
	//
	// Set by [NewBindFunc] to nil.
	TLSConfig *tls.Config

	// TimeNow is the function to get the current time (configurable for testing).
	//
	// Set by [NewBindFunc] from [Config.TimeNow].
	TimeNow func() time.Time
}

var _ Func[ListenerConfig, *Endpoint] = &BindFunc{}

// Call invokes the [*BindFunc] to bind the given [ListenerConfig].
func (op *BindFunc) Call(ctx context.Context, lc ListenerConfig) (*Endpoint, error) {
	if err := lc.Validate(); err != nil {
		return nil, err
	}

	tlsConfig, err := op.tlsConfig(lc)
	if err != nil {
		return nil, err
	}

	network, address := lc.Kind.Network(), lc.Address()
	t0 := op.TimeNow()
	op.logBindStart(network, address, t0)

	endpoint := &Endpoint{Kind: lc.Kind, TLSConfig: tlsConfig}
	switch lc.Kind {
	case TransportDatagram:
		endpoint.PacketConn, err = op.Binder.ListenPacket(ctx, network, address)
	default:
		endpoint.Listener, err = op.Binder.Listen(ctx, network, address)
	}

	if err != nil {
		op.logBindDone(network, address, t0, "", err)
		return nil, &BindError{
			Network: network,
			Address: lc.Host,
			Port:    lc.Port,
			Class:   bindclass.Classify(err),
			Err:     err,
		}
	}

	op.logBindDone(network, address, t0, endpoint.Addr().String(), nil)
	return endpoint, nil
}

func (op *BindFunc) tlsConfig(lc ListenerConfig) (*tls.Config, error) {
	switch {
	case lc.Kind != TransportEncryptedStream:
		return nil, nil
	case op.TLSConfig != nil:
		return op.TLSConfig, nil
	default:
		return LoadTLSConfig(lc.TLS)
	}
}

func (op *BindFunc) logBindStart(network, address string, t0 time.Time) {
	op.Logger.Info(
		"bindStart",
		slog.String("localAddr", address),
		slog.String("protocol", network),
		slog.Time("t", t0),
	)
}

func (op *BindFunc) logBindDone(network, address string, t0 time.Time, boundAddr string, err error) {
	op.Logger.Info(
		"bindDone",
		slog.String("boundAddr", boundAddr),
		slog.Any("err", err),
		slog.String("errClass", op.ErrClassifier.Classify(err)),
		slog.String("bindClass", string(bindclass.Classify(err))),
		slog.String("localAddr", address),
		slog.String("protocol", network),
		slog.Time("t0", t0),
		slog.Time("t", op.TimeNow()),
	)
}

// isClosedErr returns whether err means the socket was closed on purpose.
func isClosedErr(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
