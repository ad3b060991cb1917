// SPDX-License-Identifier: GPL-3.0-or-later

package syslisten

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bassosimone/runtimex"
)

// NewDispatcher returns a new [*Dispatcher].
//
// The cfg argument contains the common configuration for syslisten operations.
//
// The logger argument is the [SLogger] to use for structured logging.
func NewDispatcher(cfg *Config, logger SLogger) *Dispatcher {
	return &Dispatcher{
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		TimeNow:       cfg.TimeNow,
		subs:          make(map[*Subscription]struct{}),
	}
}

// Dispatcher routes events to the logger and to subscribers.
//
// Each [EventMessageReceived] gets the next sequence number. The counter,
// logging, and fan out happen under the same lock, therefore sequence
// numbers reflect the order in which events are observed even when many
// connections dispatch concurrently.
//
// All exported fields are safe to modify after construction but before first use.
type Dispatcher struct {
	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewDispatcher] from [Config.ErrClassifier].
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use (configurable for testing or custom logging).
	//
	// Set by [NewDispatcher] to the user-provided logger.
	Logger SLogger

	// TimeNow is the function to get the current time (configurable for testing).
	//
	// Set by [NewDispatcher] from [Config.TimeNow].
	TimeNow func() time.Time

	mu              sync.Mutex
	invalid         uint64
	received        uint64
	seq             uint64
	subs            map[*Subscription]struct{}
	transportErrors uint64
}

// Dispatch routes ev and returns it as delivered, that is with its sequence
// number and timestamp set.
func (d *Dispatcher) Dispatch(ev Event) Event {
	d.mu.Lock()
	defer d.mu.Unlock()

	ev.T = d.TimeNow()
	switch ev.Kind {
	case EventMessageReceived:
		runtimex.Assert(ev.Payload != nil)
		d.seq++
		d.received++
		ev.Sequence = d.seq
	case EventMessageInvalid:
		d.invalid++
	case EventTransportError:
		d.transportErrors++
	}

	d.log(ev)
	for sub := range d.subs {
		sub.deliver(ev)
	}
	return ev
}

// Sequence returns the last assigned sequence number.
func (d *Dispatcher) Sequence() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seq
}

// DispatcherStats contains the dispatcher counters.
type DispatcherStats struct {
	// Received counts valid messages.
	Received uint64

	// Invalid counts malformed frames.
	Invalid uint64

	// TransportErrors counts per-connection errors.
	TransportErrors uint64
}

// Stats returns a snapshot of the counters.
func (d *Dispatcher) Stats() DispatcherStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return DispatcherStats{
		Received:        d.received,
		Invalid:         d.invalid,
		TransportErrors: d.transportErrors,
	}
}

func (d *Dispatcher) log(ev Event) {
	name := ev.Kind.String()
	switch ev.Kind {
	case EventMessageReceived:
		d.Logger.Info(
			name,
			slog.Uint64("sequenceNumber", ev.Sequence),
			slog.String("connID", ev.Peer.ConnID),
			slog.String("localAddr", ev.Peer.LocalAddr),
			slog.String("protocol", ev.Peer.Protocol),
			slog.String("remoteAddr", ev.Peer.RemoteAddr),
			slog.Int("remotePort", int(ev.Peer.RemotePort)),
			slog.Any("payload", ev.Payload),
			slog.Time("t", ev.T),
		)

	case EventMessageInvalid:
		d.Logger.Warn(
			name,
			slog.String("connID", ev.Peer.ConnID),
			slog.String("localAddr", ev.Peer.LocalAddr),
			slog.String("protocol", ev.Peer.Protocol),
			slog.String("raw", string(ev.Raw[:min(len(ev.Raw), maxReportedBytes)])),
			slog.String("reason", decodeReason(ev.Err)),
			slog.String("remoteAddr", ev.Peer.RemoteAddr),
			slog.Int("remotePort", int(ev.Peer.RemotePort)),
			slog.Time("t", ev.T),
		)

	case EventTransportError:
		d.Logger.Warn(
			name,
			slog.String("connID", ev.Peer.ConnID),
			slog.Any("err", ev.Err),
			slog.String("errClass", d.ErrClassifier.Classify(ev.Err)),
			slog.String("localAddr", ev.Peer.LocalAddr),
			slog.String("protocol", ev.Peer.Protocol),
			slog.String("remoteAddr", ev.Peer.RemoteAddr),
			slog.Int("remotePort", int(ev.Peer.RemotePort)),
			slog.Time("t", ev.T),
		)

	case EventConnectionEstablished, EventConnectionClosed:
		d.Logger.Info(
			name,
			slog.String("connID", ev.Peer.ConnID),
			slog.String("localAddr", ev.Peer.LocalAddr),
			slog.String("protocol", ev.Peer.Protocol),
			slog.String("remoteAddr", ev.Peer.RemoteAddr),
			slog.Int("remotePort", int(ev.Peer.RemotePort)),
			slog.Time("t", ev.T),
		)

	case EventPartialFrameDiscarded:
		d.Logger.Debug(
			name,
			slog.String("connID", ev.Peer.ConnID),
			slog.Int("pendingBytes", len(ev.Raw)),
			slog.String("protocol", ev.Peer.Protocol),
			slog.String("remoteAddr", ev.Peer.RemoteAddr),
			slog.Int("remotePort", int(ev.Peer.RemotePort)),
			slog.Time("t", ev.T),
		)

	case EventListenerBindFailed:
		d.Logger.Error(name, d.listenerAttrs(ev)...)

	case EventListenerCloseFailed:
		d.Logger.Warn(name, d.listenerAttrs(ev)...)

	default:
		d.Logger.Info(name, d.listenerAttrs(ev)...)
	}
}

func (d *Dispatcher) listenerAttrs(ev Event) []any {
	var lc ListenerConfig
	if ev.Listener != nil {
		lc = *ev.Listener
	}
	attrs := []any{
		slog.String("address", lc.Host),
		slog.Int("port", int(lc.Port)),
		slog.String("transportKind", lc.Kind.String()),
		slog.String("localAddr", ev.Peer.LocalAddr),
	}
	if ev.Err != nil {
		var bindErr *BindError
		privileged := errors.As(ev.Err, &bindErr) && bindErr.Privileged()
		attrs = append(attrs,
			slog.Any("err", ev.Err),
			slog.String("errClass", d.ErrClassifier.Classify(ev.Err)),
			slog.Bool("privilegedPort", privileged),
			slog.String("reason", bindReason(ev.Err)),
		)
	}
	attrs = append(attrs, slog.Time("t", ev.T))
	return attrs
}

// bindReason returns the operator-facing explanation of a bind failure.
func bindReason(err error) string {
	var bindErr *BindError
	switch {
	case errors.As(err, &bindErr) && bindErr.Privileged():
		return "cannot listen on ports below 1024 without elevated permission; select a higher port number"
	case errors.As(err, &bindErr):
		return string(bindErr.Class)
	default:
		return err.Error()
	}
}

// decodeReason extracts the reason of a [*DecodeError].
func decodeReason(err error) string {
	var decodeErr *DecodeError
	switch {
	case errors.As(err, &decodeErr):
		return decodeErr.Reason
	case err != nil:
		return err.Error()
	default:
		return ""
	}
}

// Subscribe returns a [*Subscription] receiving every event dispatched
// from now on. The size argument is the channel buffer size.
//
// Delivery never blocks the dispatcher: when the buffer is full the
// event is dropped and counted by [*Subscription.Dropped].
func (d *Dispatcher) Subscribe(size int) *Subscription {
	runtimex.Assert(size >= 0)
	ch := make(chan Event, size)
	sub := &Subscription{C: ch, ch: ch, d: d}
	d.mu.Lock()
	d.subs[sub] = struct{}{}
	d.mu.Unlock()
	return sub
}

// Subscription is a typed stream of [Event] values.
type Subscription struct {
	// C receives the events.
	C <-chan Event

	ch      chan Event
	closed  bool
	d       *Dispatcher
	dropped atomic.Uint64
}

// deliver must be called with the dispatcher lock held.
func (s *Subscription) deliver(ev Event) {
	select {
	case s.ch <- ev:
	default:
		s.dropped.Add(1)
	}
}

// Dropped returns how many events could not be delivered.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close unsubscribes and closes C. It is safe to call Close more than once.
func (s *Subscription) Close() {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	delete(s.d.subs, s)
	close(s.ch)
}
