// SPDX-License-Identifier: GPL-3.0-or-later

package syslisten

import (
	"github.com/bassosimone/runtimex"
	"github.com/google/uuid"
)

// NewConnID returns a UUIDv7 identifying a stream connection.
//
// Every log record about a connection carries its ID, so records from two
// clients sharing the same address remain distinguishable, and the IDs sort
// by accept time.
//
// This function panics if the system random number generator fails,
// which should only happen under extraordinary circumstances.
func NewConnID() string {
	return runtimex.PanicOnError1(uuid.NewV7()).String()
}
