//go:build unix

//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package bindclass

import "golang.org/x/sys/unix"

const (
	errEACCES        = unix.EACCES
	errEADDRINUSE    = unix.EADDRINUSE
	errEADDRNOTAVAIL = unix.EADDRNOTAVAIL
	errEPERM         = unix.EPERM
)
