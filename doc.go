// SPDX-License-Identifier: GPL-3.0-or-later

// Package syslisten implements a syslog receiver for UDP, TCP, and TLS.
//
// # Core Abstraction
//
// A [*Listener] binds one socket described by a [ListenerConfig] and turns
// the bytes it receives into [Event] values:
//
//	cfg := syslisten.NewConfig()
//	lc := syslisten.ListenerConfig{Kind: syslisten.TransportStream, Host: "0.0.0.0", Port: 5514}
//	listener, err := syslisten.NewListener(cfg, lc, logger)
//	sub := listener.Subscribe(128)
//	err = listener.Start(ctx)
//
// Configuration problems (an unsupported transport kind, unreadable TLS
// credentials) are detected by [NewListener], before any socket exists.
// Bind problems are returned by [*Listener.Start] as a [*BindError] and
// reported as [EventListenerBindFailed]; binding a port below 1024 without
// the required permission is classified by [*BindError.Privileged].
//
// # Framing and Decoding
//
// Datagrams carry exactly one message. Streams are split by [*StreamFramer]
// according to RFC 6587, supporting both octet counting and non-transparent
// framing. A stream frame not terminated by LF or NUL is decoded once the
// connection has been idle for [Config.IdleFlushTimeout].
//
// Each frame is classified by [*Decoder]: a frame is valid when it begins
// with a well formed PRI, and RFC 5424 and RFC 3164 headers are decoded when
// present. A malformed frame yields [EventMessageInvalid] and never affects
// the frames following it on the same connection.
//
// # Sequencing
//
// Each valid message gets a sequence number from the [*Dispatcher]. Numbers
// start at 1 and increase by one for each valid message across all the
// connections of a listener, in the order messages are dispatched.
//
// # Connection Lifecycle
//
// Accepted stream connections pass through the same pipeline built with
// [Compose2]: [ObserveConnFunc] logs I/O and [CancelWatchFunc] closes the
// connection when the listener stops. Encrypted streams then complete the
// server-side handshake via [TLSHandshakeFunc], bounded by
// [Config.HandshakeTimeout]. The [*Registry] tracks each open connection
// by identity and reports connects and disconnects.
//
// [*Listener.Close] closes every tracked connection, then the listening
// socket. Bytes buffered for an incomplete frame are discarded and reported
// as [EventPartialFrameDiscarded] unless [Config.FlushOnClose] is set.
//
// # Observability
//
// All primitives support structured logging via [SLogger] (compatible with
// [log/slog]). Every [Event] is logged with its camelCase kind as the message
// and camelCase attributes, such as sequenceNumber, remoteAddr, remotePort,
// and connID. Span events (*Start/*Done pairs) and I/O events are emitted
// by the socket primitives; I/O events use [slog.LevelDebug].
package syslisten
