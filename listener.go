// SPDX-License-Identifier: GPL-3.0-or-later

package syslisten

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// ListenerState is the state of a [*Listener].
type ListenerState int

const (
	// StateIdle means the listener is not bound. A new listener starts
	// in this state and an explicitly closed listener returns to it.
	StateIdle ListenerState = iota

	// StateBinding means [*Listener.Start] is creating the socket.
	StateBinding

	// StateListening means the listener is accepting traffic.
	StateListening

	// StateFailed means binding failed. The listener cannot be restarted.
	StateFailed
)

// String implements [fmt.Stringer].
func (s ListenerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBinding:
		return "binding"
	case StateListening:
		return "listening"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("ListenerState(%d)", int(s))
	}
}

// Listener receives syslog messages over a datagram, stream, or encrypted
// stream transport and reports them as [Event] values.
//
// A listener may be started again after [*Listener.Close]; the sequence
// counter keeps increasing across restarts.
//
// Construct using [NewListener].
type Listener struct {
	abort      bool
	accept     Func[net.Conn, net.Conn]
	bind       *BindFunc
	cancel     context.CancelFunc
	closeDone  chan struct{}
	config     ListenerConfig
	dispatcher *Dispatcher
	endpoint   *Endpoint
	logger     SLogger
	mu         sync.Mutex
	opts       Config
	registry   *Registry
	state      ListenerState
	stopWatch  func() bool
	wg         sync.WaitGroup
}

// NewListener validates lc and prepares a [*Listener].
//
// The cfg argument contains the common configuration for syslisten operations.
//
// The lc argument is the resolved listener configuration.
//
// The logger argument is the [SLogger] to use for structured logging.
//
// Configuration errors are fatal and detected here, before any socket
// exists: an unsupported transport kind yields [ErrUnsupportedTransportKind]
// and unreadable credentials yield a [*CredentialLoadError].
func NewListener(cfg *Config, lc ListenerConfig, logger SLogger) (*Listener, error) {
	if err := lc.Validate(); err != nil {
		return nil, err
	}

	dispatcher := NewDispatcher(cfg, logger)
	l := &Listener{
		accept: Compose2[net.Conn, net.Conn, net.Conn](
			NewObserveConnFunc(cfg, logger),
			NewCancelWatchFunc(),
		),
		bind:       NewBindFunc(cfg, logger),
		config:     lc,
		dispatcher: dispatcher,
		logger:     logger,
		opts:       *cfg,
		registry:   NewRegistry(dispatcher),
		state:      StateIdle,
	}

	if lc.Kind == TransportEncryptedStream {
		tlsConfig, err := LoadTLSConfig(lc.TLS)
		if err != nil {
			return nil, err
		}
		l.bind.TLSConfig = tlsConfig
	}
	return l, nil
}

// Config returns the listener configuration.
func (l *Listener) Config() ListenerConfig {
	return l.config
}

// Start binds the socket and starts serving in background goroutines.
//
// Start only succeeds from [StateIdle]. On bind failure the listener
// transitions to [StateFailed], emits [EventListenerBindFailed], and returns
// a [*BindError]; there is no retry. When ctx is done the listener is closed
// as if by [*Listener.Close].
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.state != StateIdle {
		state := l.state
		l.mu.Unlock()
		return fmt.Errorf("%w: cannot start from %s", ErrListenerState, state)
	}
	l.abort = false
	l.registry = NewRegistry(l.dispatcher)
	l.state = StateBinding
	l.mu.Unlock()

	endpoint, err := l.bind.Call(ctx, l.config)
	if err != nil {
		l.mu.Lock()
		l.state = StateFailed
		l.mu.Unlock()
		l.dispatcher.Dispatch(Event{Kind: EventListenerBindFailed, Listener: &l.config, Err: err})
		return err
	}

	l.mu.Lock()
	if l.abort || ctx.Err() != nil {
		l.state = StateIdle
		l.mu.Unlock()
		l.closeEndpoint(endpoint)
		return fmt.Errorf("%w: closed while binding", ErrListenerState)
	}
	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	l.cancel = cancel
	l.endpoint = endpoint
	l.state = StateListening
	l.stopWatch = context.AfterFunc(ctx, func() { l.Close() })
	l.wg.Add(1)
	registry := l.registry
	l.mu.Unlock()

	l.dispatcher.Dispatch(Event{
		Kind:     EventListenerStarted,
		Listener: &l.config,
		Peer:     Peer{LocalAddr: endpoint.Addr().String(), Protocol: l.protocol()},
	})

	if endpoint.PacketConn != nil {
		go l.serveDatagrams(sctx, endpoint.PacketConn)
	} else {
		go l.acceptLoop(sctx, endpoint.Listener, l.streamPipeline(endpoint), registry)
	}
	return nil
}

// streamPipeline returns the setup applied to each accepted connection:
// observation, cancellation, and, when the endpoint carries a TLS
// configuration, the server handshake bounded by [Config.HandshakeTimeout].
func (l *Listener) streamPipeline(endpoint *Endpoint) Func[net.Conn, net.Conn] {
	if endpoint.TLSConfig == nil {
		return l.accept
	}
	handshake := NewTLSHandshakeFunc(&l.opts, endpoint.TLSConfig, l.logger)
	bounded := FuncAdapter[net.Conn, net.Conn](func(ctx context.Context, conn net.Conn) (net.Conn, error) {
		ctx, cancel := context.WithTimeout(ctx, l.opts.HandshakeTimeout)
		defer cancel()
		return handshake.Call(ctx, conn)
	})
	return Compose2[net.Conn, net.Conn, net.Conn](l.accept, bounded)
}

// closeEndpoint closes the socket reporting, but otherwise tolerating, errors.
func (l *Listener) closeEndpoint(endpoint *Endpoint) error {
	err := endpoint.Close()
	if err != nil && !isClosedErr(err) {
		l.dispatcher.Dispatch(Event{
			Kind:     EventListenerCloseFailed,
			Listener: &l.config,
			Peer:     Peer{LocalAddr: endpoint.Addr().String(), Protocol: l.protocol()},
			Err:      err,
		})
		return err
	}
	return nil
}

// Close shuts the listener down: it closes every tracked connection, then
// the listening socket, and waits for the serving goroutines to exit.
// Buffered partial frames are discarded, not drained.
//
// Close is idempotent and a concurrent call waits for the shutdown in
// progress. Closing a listener that is not listening is a no-op, except
// that closing while binding makes [*Listener.Start] release the socket
// and fail.
func (l *Listener) Close() error {
	l.mu.Lock()
	if l.state == StateBinding {
		l.abort = true
	}
	if done := l.closeDone; done != nil {
		l.mu.Unlock()
		<-done
		return nil
	}
	if l.state != StateListening {
		l.mu.Unlock()
		return nil
	}
	done := make(chan struct{})
	l.closeDone = done
	cancel, endpoint, registry, stopWatch := l.cancel, l.endpoint, l.registry, l.stopWatch
	l.stopWatch = nil
	l.mu.Unlock()

	if stopWatch != nil {
		stopWatch()
	}

	connErr := registry.CloseAll()
	closeErr := l.closeEndpoint(endpoint)
	cancel()
	l.wg.Wait()

	l.dispatcher.Dispatch(Event{
		Kind:     EventListenerStopped,
		Listener: &l.config,
		Peer:     Peer{LocalAddr: endpoint.Addr().String(), Protocol: l.protocol()},
	})

	l.mu.Lock()
	l.cancel = nil
	l.closeDone = nil
	l.endpoint = nil
	l.state = StateIdle
	l.mu.Unlock()
	close(done)
	return errors.Join(connErr, closeErr)
}

// Wait blocks until all the serving goroutines have exited.
func (l *Listener) Wait() {
	l.wg.Wait()
}

// State returns the current [ListenerState].
func (l *Listener) State() ListenerState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Addr returns the bound address, or nil when not listening.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateListening {
		return nil
	}
	return l.endpoint.Addr()
}

// ActiveCount returns the number of open stream connections.
func (l *Listener) ActiveCount() int {
	l.mu.Lock()
	registry := l.registry
	l.mu.Unlock()
	return registry.ActiveCount()
}

// Subscribe returns a [*Subscription] to the listener events. Subscribe
// before [*Listener.Start] to observe the listenerStarted event.
func (l *Listener) Subscribe(size int) *Subscription {
	return l.dispatcher.Subscribe(size)
}

// Stats contains the listener diagnostics.
type Stats struct {
	// ActiveConnections is the number of open stream connections.
	ActiveConnections int

	DispatcherStats
}

// Stats returns a snapshot of the listener diagnostics.
func (l *Listener) Stats() Stats {
	return Stats{
		ActiveConnections: l.ActiveCount(),
		DispatcherStats:   l.dispatcher.Stats(),
	}
}

// protocol returns the protocol name used in events.
func (l *Listener) protocol() string {
	switch l.config.Kind {
	case TransportDatagram:
		return "udp"
	case TransportEncryptedStream:
		return "tls"
	default:
		return "tcp"
	}
}

// emitFrame decodes frame and dispatches the outcome.
func (l *Listener) emitFrame(decoder *Decoder, peer Peer, frame Frame) {
	if frame.Err != nil {
		l.dispatcher.Dispatch(Event{Kind: EventMessageInvalid, Peer: peer, Raw: frame.Data, Err: frame.Err})
		return
	}
	payload, err := decoder.Decode(frame.Data)
	if err != nil {
		l.dispatcher.Dispatch(Event{Kind: EventMessageInvalid, Peer: peer, Raw: frame.Data, Err: err})
		return
	}
	l.dispatcher.Dispatch(Event{Kind: EventMessageReceived, Peer: peer, Payload: payload})
}

// Bounds for the delay after a failed accept or read on the listening socket.
const (
	minRetryDelay = 5 * time.Millisecond
	maxRetryDelay = time.Second
)

// retryDelay waits before retrying a failed socket operation and returns
// the next delay, or false when ctx is done.
func retryDelay(ctx context.Context, delay time.Duration) (time.Duration, bool) {
	if delay <= 0 {
		delay = minRetryDelay
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return 0, false
	case <-timer.C:
		return min(2*delay, maxRetryDelay), true
	}
}
