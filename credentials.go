// SPDX-License-Identifier: GPL-3.0-or-later

package syslisten

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"os"

	"github.com/bassosimone/runtimex"
)

// errNoPEMCertificates indicates a CA bundle without any usable certificate.
var errNoPEMCertificates = errors.New("no PEM-encoded certificates found")

// LoadTLSConfig reads the credential material and returns a server-side
// [*tls.Config] for encrypted streams.
//
// Every file is read exactly once. Any failure is returned as a
// [*CredentialLoadError]: a listener whose trust chain is broken must not
// start at all, let alone fall back to plaintext.
//
// The CA bundle is used to verify client certificates when clients present one.
func LoadTLSConfig(material *TLSMaterial) (*tls.Config, error) {
	runtimex.Assert(material != nil)

	keyPEM, err := os.ReadFile(material.PrivateKeyPath)
	if err != nil {
		return nil, &CredentialLoadError{Role: "privateKey", Path: material.PrivateKeyPath, Err: err}
	}

	certPEM, err := os.ReadFile(material.CertificatePath)
	if err != nil {
		return nil, &CredentialLoadError{Role: "certificate", Path: material.CertificatePath, Err: err}
	}

	caPEM, err := os.ReadFile(material.CAPath)
	if err != nil {
		return nil, &CredentialLoadError{Role: "ca", Path: material.CAPath, Err: err}
	}

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, &CredentialLoadError{Role: "certificate", Path: material.CertificatePath, Err: err}
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, &CredentialLoadError{Role: "ca", Path: material.CAPath, Err: errNoPEMCertificates}
	}

	config := &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientAuth:   tls.VerifyClientCertIfGiven,
		ClientCAs:    pool,
		MinVersion:   tls.VersionTLS12,
	}
	return config, nil
}
