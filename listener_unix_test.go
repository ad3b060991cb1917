//go:build unix

// SPDX-License-Identifier: GPL-3.0-or-later

package syslisten

import (
	"context"
	"log/slog"
	"net"
	"os"
	"syscall"
	"testing"

	"github.com/bassosimone/syslisten/bindclass"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Permission denied on a privileged port fails Start and reports the reason.
func TestListenerBindFailedPrivilegedPort(t *testing.T) {
	cfg := newTestConfig()
	cfg.Binder = &funcBinder{
		ListenFunc: func(ctx context.Context, network, address string) (net.Listener, error) {
			return nil, &net.OpError{Op: "listen", Net: network, Err: os.NewSyscallError("bind", syscall.EACCES)}
		},
	}
	logger, records := newCapturingLogger()

	listener, err := NewListener(cfg, ListenerConfig{Kind: TransportStream, Host: "0.0.0.0", Port: 514}, logger)
	require.NoError(t, err)
	sub := listener.Subscribe(16)
	defer sub.Close()

	err = listener.Start(context.Background())
	var bindErr *BindError
	require.ErrorAs(t, err, &bindErr)
	assert.Equal(t, bindclass.PermissionDenied, bindErr.Class)
	assert.True(t, bindErr.Privileged())

	ev := nextEvent(t, sub, EventListenerBindFailed)
	require.ErrorAs(t, ev.Err, &bindErr)
	assert.True(t, bindErr.Privileged())
	assert.Equal(t, StateFailed, listener.State())
	assert.Nil(t, listener.Addr())

	var failed *slog.Record
	for idx := range *records {
		if (*records)[idx].Message == "listenerBindFailed" {
			failed = &(*records)[idx]
		}
	}
	require.NotNil(t, failed)
	assert.Equal(t, slog.LevelError, failed.Level)
	privileged, found := recordAttr(*failed, "privilegedPort")
	require.True(t, found)
	assert.True(t, privileged.Bool())
	reason, found := recordAttr(*failed, "reason")
	require.True(t, found)
	assert.Contains(t, reason.String(), "elevated permission")
}
