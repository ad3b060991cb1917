// SPDX-License-Identifier: GPL-3.0-or-later

package syslisten

import (
	"errors"
	"fmt"

	"github.com/bassosimone/syslisten/bindclass"
)

var (
	// ErrUnsupportedTransportKind indicates a transport kind outside
	// of datagram, stream, and encrypted stream.
	ErrUnsupportedTransportKind = errors.New("syslisten: unsupported transport kind")

	// ErrMissingTLSMaterial indicates an encrypted stream without credentials.
	ErrMissingTLSMaterial = errors.New("syslisten: encrypted stream requires TLS material")

	// ErrUnexpectedTLSMaterial indicates credentials for a plaintext transport.
	ErrUnexpectedTLSMaterial = errors.New("syslisten: TLS material is only valid for encrypted streams")

	// ErrListenerState indicates an operation invalid in the current [ListenerState].
	ErrListenerState = errors.New("syslisten: invalid listener state")
)

// CredentialLoadError indicates that TLS credential material could not be loaded.
type CredentialLoadError struct {
	// Role is "privateKey", "certificate", or "ca".
	Role string

	// Path is the file we tried to load.
	Path string

	// Err is the underlying error.
	Err error
}

// Error implements error.
func (e *CredentialLoadError) Error() string {
	return fmt.Sprintf("syslisten: cannot load TLS %s from %q: %s", e.Role, e.Path, e.Err.Error())
}

// Unwrap returns the underlying error.
func (e *CredentialLoadError) Unwrap() error {
	return e.Err
}

// BindError indicates that we could not create the listening socket.
type BindError struct {
	// Network is the network we tried to bind ("tcp" or "udp").
	Network string

	// Address is the configured bind host.
	Address string

	// Port is the configured bind port.
	Port uint16

	// Class is the failure class computed by [bindclass.Classify].
	Class bindclass.Class

	// Err is the underlying error.
	Err error
}

// Error implements error.
func (e *BindError) Error() string {
	if e.Privileged() {
		return fmt.Sprintf(
			"syslisten: cannot listen on %s port %d without elevated permission; select a port >= 1024: %s",
			e.Network, e.Port, e.Err.Error())
	}
	return fmt.Sprintf("syslisten: cannot listen on %s %s: %s",
		e.Network, joinHostPort(e.Address, e.Port), e.Err.Error())
}

// Unwrap returns the underlying error.
func (e *BindError) Unwrap() error {
	return e.Err
}

// Privileged returns true when binding failed because the port is below
// 1024 and the process lacks the permission to bind it.
func (e *BindError) Privileged() bool {
	return e.Class == bindclass.PermissionDenied && e.Port < 1024
}

// DecodeError explains why a frame is not a valid syslog message.
type DecodeError struct {
	// Reason is a human readable explanation.
	Reason string
}

// Error implements error.
func (e *DecodeError) Error() string {
	return "syslisten: invalid syslog message: " + e.Reason
}

// newDecodeError is a convenience constructor for [*DecodeError].
func newDecodeError(format string, args ...any) *DecodeError {
	return &DecodeError{Reason: fmt.Sprintf(format, args...)}
}
