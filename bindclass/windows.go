//go:build windows

//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package bindclass

import "golang.org/x/sys/windows"

const (
	errEACCES        = windows.WSAEACCES
	errEADDRINUSE    = windows.WSAEADDRINUSE
	errEADDRNOTAVAIL = windows.WSAEADDRNOTAVAIL
	errEPERM         = windows.ERROR_ACCESS_DENIED
)
