/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package tlsutil builds x509 certificate pools for outbound TLS connections.
package tlsutil

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path"
)

// GetCertPool returns a certificate pool containing the certificates in the given
// PEM files, optionally on top of the system certificate pool.
func GetCertPool(useSystemCertPool bool, tlsCACerts []string) (*x509.CertPool, error) {
	certPool, err := newCertPool(useSystemCertPool)
	if err != nil {
		return nil, fmt.Errorf("create cert pool: %w", err)
	}

	for _, v := range tlsCACerts {
		bytes, err := os.ReadFile(path.Clean(v))
		if err != nil {
			return nil, fmt.Errorf("read cert: %w", err)
		}

		block, _ := pem.Decode(bytes)
		if block == nil {
			return nil, fmt.Errorf("decode pem in [%s]", v)
		}

		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse cert: %w", err)
		}

		certPool.AddCert(cert)
	}

	return certPool, nil
}

func newCertPool(useSystemCertPool bool) (*x509.CertPool, error) {
	if !useSystemCertPool {
		return x509.NewCertPool(), nil
	}

	pool, err := x509.SystemCertPool()
	if err != nil {
		return nil, fmt.Errorf("system cert pool: %w", err)
	}

	return pool, nil
}
