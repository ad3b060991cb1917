// SPDX-License-Identifier: GPL-3.0-or-later

package syslisten

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/bassosimone/syslisten/bindclass"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// funcBinder is a [Binder] whose methods are functions.
type funcBinder struct {
	ListenFunc       func(ctx context.Context, network, address string) (net.Listener, error)
	ListenPacketFunc func(ctx context.Context, network, address string) (net.PacketConn, error)
}

func (b *funcBinder) Listen(ctx context.Context, network, address string) (net.Listener, error) {
	return b.ListenFunc(ctx, network, address)
}

func (b *funcBinder) ListenPacket(ctx context.Context, network, address string) (net.PacketConn, error) {
	return b.ListenPacketFunc(ctx, network, address)
}

// NewBindFunc populates all fields from Config and the provided logger.
func TestNewBindFunc(t *testing.T) {
	fn := NewBindFunc(NewConfig(), DefaultSLogger())

	require.NotNil(t, fn)
	assert.NotNil(t, fn.Binder)
	assert.NotNil(t, fn.ErrClassifier)
	assert.NotNil(t, fn.Logger)
	assert.NotNil(t, fn.TimeNow)
	assert.Nil(t, fn.TLSConfig)
}

// Call binds the socket matching the transport kind.
func TestBindFuncLoopback(t *testing.T) {
	tests := []struct {
		// kind is the transport kind to bind.
		kind TransportKind

		// wantPacket indicates whether we expect a PacketConn.
		wantPacket bool
	}{
		{kind: TransportDatagram, wantPacket: true},
		{kind: TransportStream, wantPacket: false},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			fn := NewBindFunc(NewConfig(), DefaultSLogger())
			endpoint, err := fn.Call(context.Background(), ListenerConfig{Kind: tt.kind, Host: "127.0.0.1"})
			require.NoError(t, err)
			defer endpoint.Close()

			assert.Equal(t, tt.wantPacket, endpoint.PacketConn != nil)
			assert.Equal(t, !tt.wantPacket, endpoint.Listener != nil)
			assert.Equal(t, tt.kind.Network(), endpoint.Addr().Network())
			assert.Nil(t, endpoint.TLSConfig)
		})
	}
}

// Call uses the preloaded TLS configuration for encrypted streams.
func TestBindFuncPreloadedTLSConfig(t *testing.T) {
	fn := NewBindFunc(NewConfig(), DefaultSLogger())
	fn.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}

	lc := ListenerConfig{
		Kind: TransportEncryptedStream,
		Host: "127.0.0.1",
		TLS:  &TLSMaterial{PrivateKeyPath: "/nonexistent/key", CertificatePath: "/nonexistent/crt", CAPath: "/nonexistent/ca"},
	}
	endpoint, err := fn.Call(context.Background(), lc)
	require.NoError(t, err)
	defer endpoint.Close()

	assert.Same(t, fn.TLSConfig, endpoint.TLSConfig)
	assert.NotNil(t, endpoint.Listener)
}

// Configuration errors happen before touching the Binder.
func TestBindFuncConfigErrors(t *testing.T) {
	tests := []struct {
		// name describes what this test case verifies.
		name string

		// config is the listener configuration.
		config ListenerConfig

		// check verifies the returned error.
		check func(t *testing.T, err error)
	}{
		{
			name:   "unsupported kind",
			config: ListenerConfig{Kind: TransportUnknown},
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, ErrUnsupportedTransportKind)
			},
		},
		{
			name:   "missing TLS material",
			config: ListenerConfig{Kind: TransportEncryptedStream},
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, ErrMissingTLSMaterial)
			},
		},
		{
			name: "unreadable TLS material",
			config: ListenerConfig{Kind: TransportEncryptedStream, TLS: &TLSMaterial{
				PrivateKeyPath: "/nonexistent/key", CertificatePath: "/nonexistent/crt", CAPath: "/nonexistent/ca",
			}},
			check: func(t *testing.T, err error) {
				var credErr *CredentialLoadError
				require.ErrorAs(t, err, &credErr)
				assert.Equal(t, "privateKey", credErr.Role)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn := NewBindFunc(NewConfig(), DefaultSLogger())
			fn.Binder = &funcBinder{
				ListenFunc: func(ctx context.Context, network, address string) (net.Listener, error) {
					t.Fatal("should not be called")
					return nil, nil
				},
				ListenPacketFunc: func(ctx context.Context, network, address string) (net.PacketConn, error) {
					t.Fatal("should not be called")
					return nil, nil
				},
			}

			endpoint, err := fn.Call(context.Background(), tt.config)
			assert.Nil(t, endpoint)
			tt.check(t, err)
		})
	}
}

// Call wraps socket errors into a BindError.
func TestBindFuncBindError(t *testing.T) {
	cfg := NewConfig()
	logger, records := newCapturingLogger()
	wantErr := errors.New("mocked bind error")

	var gotNetwork, gotAddress string
	fn := NewBindFunc(cfg, logger)
	fn.Binder = &funcBinder{
		ListenFunc: func(ctx context.Context, network, address string) (net.Listener, error) {
			gotNetwork, gotAddress = network, address
			return nil, wantErr
		},
	}

	endpoint, err := fn.Call(context.Background(), ListenerConfig{Kind: TransportStream, Host: "::1", Port: 6514})
	assert.Nil(t, endpoint)
	assert.Equal(t, "tcp", gotNetwork)
	assert.Equal(t, "[::1]:6514", gotAddress)

	var bindErr *BindError
	require.ErrorAs(t, err, &bindErr)
	require.ErrorIs(t, err, wantErr)
	assert.Equal(t, bindclass.Other, bindErr.Class)
	assert.False(t, bindErr.Privileged())
	assert.Equal(t, uint16(6514), bindErr.Port)

	require.Len(t, *records, 2)
	assert.Equal(t, "bindStart", (*records)[0].Message)
	assert.Equal(t, "bindDone", (*records)[1].Message)
}

// bindDone records the start and end times.
func TestBindFuncLogging(t *testing.T) {
	cfg := NewConfig()
	fixedTime := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg.TimeNow = func() time.Time { return fixedTime }
	logger, records := newCapturingLogger()

	fn := NewBindFunc(cfg, logger)
	endpoint, err := fn.Call(context.Background(), ListenerConfig{Kind: TransportDatagram, Host: "127.0.0.1"})
	require.NoError(t, err)
	defer endpoint.Close()

	require.Len(t, *records, 2)
	boundAddr, found := recordAttr((*records)[1], "boundAddr")
	require.True(t, found)
	assert.Equal(t, endpoint.Addr().String(), boundAddr.String())
	t0, found := recordAttr((*records)[1], "t0")
	require.True(t, found)
	assert.Equal(t, fixedTime, t0.Time())
}
