// SPDX-License-Identifier: GPL-3.0-or-later

package syslisten

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"log/slog"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bassosimone/netstub"
	"github.com/bassosimone/slogstub"
	"github.com/stretchr/testify/require"
)

// newCapturingLogger returns a logger that captures all log records into the
// returned slice. The caller can inspect the slice after exercising the code
// under test to verify which events were emitted.
func newCapturingLogger() (*slog.Logger, *[]slog.Record) {
	var records []slog.Record
	handler := &slogstub.FuncHandler{
		EnabledFunc: func(ctx context.Context, level slog.Level) bool {
			return true
		},
		HandleFunc: func(ctx context.Context, record slog.Record) error {
			records = append(records, record)
			return nil
		},
	}
	return slog.New(handler), &records
}

// recordAttr returns the value of the attribute with the given key.
func recordAttr(record slog.Record, key string) (value slog.Value, found bool) {
	record.Attrs(func(attr slog.Attr) bool {
		if attr.Key == key {
			value, found = attr.Value, true
			return false
		}
		return true
	})
	return
}

// funcTLSEngine is a [TLSEngine] whose methods are functions.
type funcTLSEngine struct {
	ServerFunc func(conn net.Conn, config *tls.Config) TLSConn
	NameFunc   func() string
}

func (e *funcTLSEngine) Server(conn net.Conn, config *tls.Config) TLSConn {
	return e.ServerFunc(conn, config)
}

func (e *funcTLSEngine) Name() string {
	return e.NameFunc()
}

// newMockTLSEngine returns a [*funcTLSEngine] that wraps the given
// [TLSConn]. The engine's ServerFunc returns the conn and NameFunc
// returns "mock".
func newMockTLSEngine(conn TLSConn) *funcTLSEngine {
	return &funcTLSEngine{
		ServerFunc: func(c net.Conn, config *tls.Config) TLSConn {
			return conn
		},
		NameFunc: func() string {
			return "mock"
		},
	}
}

// newMinimalConn returns a [*netstub.FuncConn] with only LocalAddrFunc and
// RemoteAddrFunc set. This is the minimum needed for code that calls
// [safeconn.LocalAddr], [safeconn.RemoteAddr], and [safeconn.Network]
// during construction.
func newMinimalConn() *netstub.FuncConn {
	return &netstub.FuncConn{
		LocalAddrFunc:  func() net.Addr { return &net.TCPAddr{} },
		RemoteAddrFunc: func() net.Addr { return &net.TCPAddr{} },
	}
}

// testCredentials contains paths to PEM files generated by [writeTestCredentials].
type testCredentials struct {
	Material *TLSMaterial
	Pool     *x509.CertPool
}

// writeTestCredentials writes a self-signed certificate for 127.0.0.1 and its
// private key into a temporary directory.
func writeTestCredentials(t *testing.T) testCredentials {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "syslisten test"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1)},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	dir := t.TempDir()
	material := &TLSMaterial{
		PrivateKeyPath:  filepath.Join(dir, "server.key"),
		CertificatePath: filepath.Join(dir, "server.crt"),
		CAPath:          filepath.Join(dir, "ca.crt"),
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	require.NoError(t, os.WriteFile(material.PrivateKeyPath,
		pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0600))
	require.NoError(t, os.WriteFile(material.CertificatePath, certPEM, 0600))
	require.NoError(t, os.WriteFile(material.CAPath, certPEM, 0600))

	pool := x509.NewCertPool()
	pool.AddCert(cert)
	return testCredentials{Material: material, Pool: pool}
}

// nextEvent waits for the next event of the given kind, skipping others.
func nextEvent(t *testing.T, sub *Subscription, kind EventKind) Event {
	t.Helper()
	timer := time.NewTimer(5 * time.Second)
	defer timer.Stop()
	for {
		select {
		case ev, ok := <-sub.C:
			require.True(t, ok, "subscription closed while waiting for %s", kind)
			if ev.Kind == kind {
				return ev
			}
		case <-timer.C:
			t.Fatalf("timed out waiting for %s", kind)
			return Event{}
		}
	}
}
