// SPDX-License-Identifier: GPL-3.0-or-later

package syslisten

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// TransportKind is the kind of socket a [*Listener] binds.
type TransportKind int

const (
	// TransportUnknown is the zero value and is never valid.
	TransportUnknown TransportKind = iota

	// TransportDatagram is syslog over UDP.
	TransportDatagram

	// TransportStream is syslog over plaintext TCP.
	TransportStream

	// TransportEncryptedStream is syslog over TLS.
	TransportEncryptedStream
)

// ParseTransportKind maps the configured socket type ("TCP", "UDP", or
// "TLS", case insensitive) to a [TransportKind].
//
// Returns an error wrapping [ErrUnsupportedTransportKind] otherwise.
func ParseTransportKind(socketType string) (TransportKind, error) {
	switch strings.ToUpper(strings.TrimSpace(socketType)) {
	case "UDP":
		return TransportDatagram, nil
	case "TCP":
		return TransportStream, nil
	case "TLS":
		return TransportEncryptedStream, nil
	default:
		return TransportUnknown, fmt.Errorf("%w: %q", ErrUnsupportedTransportKind, socketType)
	}
}

// String returns the socket type name used in configuration files.
func (k TransportKind) String() string {
	switch k {
	case TransportDatagram:
		return "UDP"
	case TransportStream:
		return "TCP"
	case TransportEncryptedStream:
		return "TLS"
	default:
		return "unknown(" + strconv.Itoa(int(k)) + ")"
	}
}

// Network returns the network name used for binding ("udp" or "tcp").
func (k TransportKind) Network() string {
	if k == TransportDatagram {
		return "udp"
	}
	return "tcp"
}

// valid returns whether k is one of the three supported kinds.
func (k TransportKind) valid() bool {
	return k == TransportDatagram || k == TransportStream || k == TransportEncryptedStream
}

// TLSMaterial contains the paths of PEM-encoded credential material.
type TLSMaterial struct {
	// PrivateKeyPath is the path of the server private key.
	PrivateKeyPath string

	// CertificatePath is the path of the server certificate chain.
	CertificatePath string

	// CAPath is the path of the trusted CA bundle.
	CAPath string
}

// ListenerConfig is the resolved listener configuration.
//
// Create it once at startup and treat it as immutable afterwards.
type ListenerConfig struct {
	// Kind is the transport kind.
	Kind TransportKind

	// Host is the address to bind.
	Host string

	// Port is the port to bind. Zero selects an ephemeral port.
	Port uint16

	// TLS contains the credential material. It must be non-nil iff
	// Kind is [TransportEncryptedStream].
	TLS *TLSMaterial
}

// Validate checks the invariants of the configuration.
func (lc ListenerConfig) Validate() error {
	if !lc.Kind.valid() {
		return fmt.Errorf("%w: %s", ErrUnsupportedTransportKind, lc.Kind)
	}
	if lc.Kind == TransportEncryptedStream && lc.TLS == nil {
		return ErrMissingTLSMaterial
	}
	if lc.Kind != TransportEncryptedStream && lc.TLS != nil {
		return ErrUnexpectedTLSMaterial
	}
	return nil
}

// Address returns the host:port string to bind.
func (lc ListenerConfig) Address() string {
	return joinHostPort(lc.Host, lc.Port)
}

func joinHostPort(host string, port uint16) string {
	return net.JoinHostPort(host, strconv.Itoa(int(port)))
}
