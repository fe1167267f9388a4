/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package httpsig

import (
	"crypto"
	"fmt"
	"net/http"
	"time"

	"github.com/go-fed/httpsig"

	"github.com/quillpub/quill/internal/pkg/log"
)

var logger = log.New("activitypub_httpsig")

const (
	dateHeader        = "Date"
	hostHeader        = "Host"
	defaultExpiration = 60 * time.Second
)

// DefaultGetSignerConfig returns the default configuration for signing HTTP GET requests.
func DefaultGetSignerConfig() SignerConfig {
	return SignerConfig{
		Algorithms: []httpsig.Algorithm{httpsig.RSA_SHA256, httpsig.RSA_SHA512},
		Headers:    []string{"(request-target)", "host", "date"},
	}
}

// DefaultPostSignerConfig returns the default configuration for signing HTTP POST requests.
func DefaultPostSignerConfig() SignerConfig {
	return SignerConfig{
		Algorithms:      []httpsig.Algorithm{httpsig.RSA_SHA256, httpsig.RSA_SHA512},
		DigestAlgorithm: httpsig.DigestSha256,
		Headers:         []string{"(request-target)", "host", "date", "digest"},
	}
}

// SignerConfig contains the configuration for signing HTTP requests.
type SignerConfig struct {
	Algorithms      []httpsig.Algorithm
	DigestAlgorithm httpsig.DigestAlgorithm
	Headers         []string
	Expiration      time.Duration
}

type metricsProvider interface {
	SignerSignTime(value time.Duration)
	SignatureVerificationTime(value time.Duration)
}

// Signer signs HTTP requests.
type Signer struct {
	SignerConfig
	metrics metricsProvider
}

// NewSigner returns a new signer.
func NewSigner(cfg SignerConfig, metrics metricsProvider) *Signer {
	s := &Signer{
		SignerConfig: cfg,
		metrics:      metrics,
	}

	if s.Expiration == 0 {
		s.Expiration = defaultExpiration
	}

	return s
}

// SignRequest signs an HTTP request. The signature covers the headers in the signer's
// configuration, including the Digest of the body for POST requests.
func (s *Signer) SignRequest(pKey crypto.PrivateKey, pubKeyID string, req *http.Request, body []byte) error {
	startTime := time.Now()

	defer func() {
		s.metrics.SignerSignTime(time.Since(startTime))
	}()

	logger.Debug("Signing request", log.WithRequestURL(req.URL), log.WithKeyID(pubKeyID))

	// A new signer is created for each request since the underlying implementation
	// is not thread safe.
	signer, _, err := httpsig.NewSigner(s.Algorithms, s.DigestAlgorithm, s.Headers,
		httpsig.Signature, int64(s.Expiration.Seconds()))
	if err != nil {
		return fmt.Errorf("new signer: %w", err)
	}

	req.Header.Set(dateHeader, time.Now().UTC().Format(http.TimeFormat))

	// The Host value lives in req.Host/req.URL rather than the header map, but the
	// signature covers the 'host' header, so it must be set explicitly.
	host := req.Host
	if host == "" {
		host = req.URL.Host
	}

	req.Header.Set(hostHeader, host)

	err = signer.SignRequest(pKey, pubKeyID, req, body)
	if err != nil {
		return fmt.Errorf("sign request: %w", err)
	}

	return nil
}
