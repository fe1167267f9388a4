/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package transport

import (
	"bytes"
	"context"
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/quillpub/quill/internal/pkg/log"
)

var logger = log.New("activitypub_transport")

// ActivityStreamsContentType is the content type used for ActivityPub requests and responses.
const ActivityStreamsContentType = `application/ld+json; profile="https://www.w3.org/ns/activitystreams"`

// ActivityJSONContentType is the plain ActivityStreams JSON content type.
const ActivityJSONContentType = "application/activity+json"

const (
	acceptHeader      = "Accept"
	contentTypeHeader = "Content-Type"
)

// DefaultRequestTimeout is the deadline that callers conventionally apply to
// outbound ActivityPub requests.
const DefaultRequestTimeout = 30 * time.Second

// MaxRedirects is the maximum number of redirects that are followed on an outbound request.
const MaxRedirects = 5

// NewHTTPClient returns an HTTP client that follows at most MaxRedirects redirects.
// If rootCAs is not nil then it is used to verify server certificates.
func NewHTTPClient(rootCAs *x509.CertPool) *http.Client {
	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= MaxRedirects {
				return fmt.Errorf("stopped after %d redirects", MaxRedirects)
			}

			return nil
		},
	}

	if rootCAs != nil {
		client.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{
				RootCAs:    rootCAs,
				MinVersion: tls.VersionTLS12,
			},
		}
	}

	return client
}

// Signer signs an HTTP request and adds the signature to the header of the request.
type Signer interface {
	SignRequest(pKey crypto.PrivateKey, pubKeyID string, r *http.Request, body []byte) error
}

type httpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Transport implements a client-side transport that Gets and Posts requests using HTTP signatures.
type Transport struct {
	client      httpClient
	getSigner   Signer
	postSigner  Signer
	privateKey  crypto.PrivateKey
	publicKeyID *url.URL
}

// New returns a new transport.
func New(client httpClient, privateKey crypto.PrivateKey, publicKeyID *url.URL,
	getSigner, postSigner Signer) *Transport {
	return &Transport{
		client:      client,
		privateKey:  privateKey,
		publicKeyID: publicKeyID,
		getSigner:   getSigner,
		postSigner:  postSigner,
	}
}

// Request contains the destination URL and headers.
type Request struct {
	URL    *url.URL
	Header http.Header
}

// NewRequest returns a new request.
func NewRequest(toURL *url.URL) *Request {
	return &Request{
		URL:    toURL,
		Header: make(http.Header),
	}
}

// Default returns a default transport that uses the default HTTP client and no HTTP signatures.
// This transport should only be used by tests.
func Default() *Transport {
	return &Transport{
		client:      http.DefaultClient,
		publicKeyID: &url.URL{},
		getSigner:   &NoOpSigner{},
		postSigner:  &NoOpSigner{},
	}
}

// Post posts an HTTP request. The HTTP request is first signed and the signature is added to the request header.
// Callers are expected to pass a context with a deadline; DefaultRequestTimeout is the conventional one.
func (t *Transport) Post(ctx context.Context, r *Request, payload []byte) (*http.Response, error) {
	var body io.Reader
	if len(payload) > 0 {
		body = bytes.NewBuffer(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL.String(), body)
	if err != nil {
		return nil, fmt.Errorf("new request to %s: %w", r.URL, err)
	}

	for header, values := range r.Header {
		req.Header[header] = values
	}

	if req.Header.Get(contentTypeHeader) == "" {
		req.Header.Set(contentTypeHeader, ActivityJSONContentType)
	}

	err = t.postSigner.SignRequest(t.privateKey, t.publicKeyID.String(), req, payload)
	if err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}

	logger.Debug("Signed HTTP POST", log.WithRequestURL(r.URL), log.WithRequestHeaders(req.Header))

	return t.client.Do(req) //nolint:wrapcheck
}

// Get sends an HTTP GET. The HTTP request is first signed and the signature is added to the request header.
// Callers are expected to pass a context with a deadline; DefaultRequestTimeout is the conventional one.
func (t *Transport) Get(ctx context.Context, r *Request) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("get from %s: %w", r.URL, err)
	}

	for header, values := range r.Header {
		req.Header[header] = values
	}

	if req.Header.Get(acceptHeader) == "" {
		req.Header.Add(acceptHeader, ActivityJSONContentType)
		req.Header.Add(acceptHeader, ActivityStreamsContentType)
	}

	err = t.getSigner.SignRequest(t.privateKey, t.publicKeyID.String(), req, nil)
	if err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}

	logger.Debug("Signed HTTP GET", log.WithRequestURL(r.URL), log.WithRequestHeaders(req.Header))

	return t.client.Do(req) //nolint:wrapcheck
}

// NoOpSigner is a signer that does nothing. This signer should only be used by tests.
type NoOpSigner struct{}

// DefaultSigner returns a default, no-op signer. This signer should only be used by tests.
func DefaultSigner() *NoOpSigner {
	return &NoOpSigner{}
}

// SignRequest does nothing.
func (s *NoOpSigner) SignRequest(crypto.PrivateKey, string, *http.Request, []byte) error {
	return nil
}
