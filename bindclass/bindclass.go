// SPDX-License-Identifier: GPL-3.0-or-later

// Package bindclass classifies errors returned when binding a socket.
//
// The classification lets callers react to the failures an operator can
// fix by changing the configuration, most notably trying to bind a
// privileged port without the required permission.
package bindclass

import "errors"

// Class is the class of a bind failure.
type Class string

const (
	// None is the class of a nil error.
	None = Class("")

	// PermissionDenied means the process lacks the permission to bind.
	PermissionDenied = Class("permission-denied")

	// AddressInUse means another socket already owns the address.
	AddressInUse = Class("address-in-use")

	// AddressNotAvailable means the address does not belong to this host.
	AddressNotAvailable = Class("address-not-available")

	// Other is any other failure.
	Other = Class("other")
)

// Classify returns the [Class] of err.
func Classify(err error) Class {
	switch {
	case err == nil:
		return None
	case errors.Is(err, errEACCES) || errors.Is(err, errEPERM):
		return PermissionDenied
	case errors.Is(err, errEADDRINUSE):
		return AddressInUse
	case errors.Is(err, errEADDRNOTAVAIL):
		return AddressNotAvailable
	default:
		return Other
	}
}
