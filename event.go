// SPDX-License-Identifier: GPL-3.0-or-later

package syslisten

import (
	"net"
	"strconv"
	"time"

	"github.com/bassosimone/safeconn"
)

// EventKind is the kind of an [Event].
//
// The String representation is the message used for the structured log record.
type EventKind int

const (
	// EventListenerStarted is emitted once the socket is bound.
	EventListenerStarted EventKind = iota + 1

	// EventListenerBindFailed is emitted when binding fails.
	EventListenerBindFailed

	// EventListenerCloseFailed is emitted when closing the socket fails.
	EventListenerCloseFailed

	// EventListenerStopped is emitted after an explicit shutdown.
	EventListenerStopped

	// EventConnectionEstablished is emitted when a stream client connects.
	EventConnectionEstablished

	// EventConnectionClosed is emitted when a stream client goes away.
	EventConnectionClosed

	// EventMessageReceived is emitted for each valid syslog message.
	EventMessageReceived

	// EventMessageInvalid is emitted for each malformed frame.
	EventMessageInvalid

	// EventTransportError is emitted for per-connection I/O errors.
	EventTransportError

	// EventPartialFrameDiscarded is emitted when a connection ends with
	// buffered bytes that never formed a complete frame.
	EventPartialFrameDiscarded
)

var eventKindNames = map[EventKind]string{
	EventListenerStarted:       "listenerStarted",
	EventListenerBindFailed:    "listenerBindFailed",
	EventListenerCloseFailed:   "listenerCloseFailed",
	EventListenerStopped:       "listenerStopped",
	EventConnectionEstablished: "connectionEstablished",
	EventConnectionClosed:      "connectionClosed",
	EventMessageReceived:       "messageReceived",
	EventMessageInvalid:        "messageInvalid",
	EventTransportError:        "transportError",
	EventPartialFrameDiscarded: "partialFrameDiscarded",
}

// String implements [fmt.Stringer].
func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return "unknownEvent(" + strconv.Itoa(int(k)) + ")"
}

// Peer identifies where bytes came from.
type Peer struct {
	// ConnID is the connection ID for stream transports, empty for datagrams.
	ConnID string

	// Protocol is "udp", "tcp", or "tls".
	Protocol string

	// LocalAddr is the local endpoint as a string.
	LocalAddr string

	// RemoteAddr is the remote host (without port).
	RemoteAddr string

	// RemotePort is the remote port.
	RemotePort uint16
}

// newPeer builds a [Peer] from a local and a remote address string.
func newPeer(connID, protocol, localAddr, remoteAddr string) Peer {
	host, port := splitHostPort(remoteAddr)
	return Peer{
		ConnID:     connID,
		Protocol:   protocol,
		LocalAddr:  localAddr,
		RemoteAddr: host,
		RemotePort: port,
	}
}

// newConnPeer builds a [Peer] for a stream connection.
func newConnPeer(connID, protocol string, conn net.Conn) Peer {
	return newPeer(connID, protocol, safeconn.LocalAddr(conn), safeconn.RemoteAddr(conn))
}

func splitHostPort(address string) (string, uint16) {
	host, portString, err := net.SplitHostPort(address)
	if err != nil {
		return address, 0
	}
	port, err := strconv.ParseUint(portString, 10, 16)
	if err != nil {
		return host, 0
	}
	return host, uint16(port)
}

// Event is an observability event produced by a [*Listener].
//
// Which fields are meaningful depends on Kind.
type Event struct {
	// Kind is the event kind.
	Kind EventKind

	// Sequence is the message sequence number, starting at 1. It is only
	// set for [EventMessageReceived].
	Sequence uint64

	// Peer is the message or connection source, if any.
	Peer Peer

	// Payload is the decoded message for [EventMessageReceived].
	Payload *Payload

	// Raw contains the offending bytes for [EventMessageInvalid] and
	// the discarded bytes for [EventPartialFrameDiscarded].
	Raw []byte

	// Err is the error for invalid messages, transport errors, and
	// bind or close failures.
	Err error

	// Listener is the listener configuration for lifecycle events.
	Listener *ListenerConfig

	// T is when the event was dispatched.
	T time.Time
}
