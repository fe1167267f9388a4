/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mocks

import (
	"io"
	"net/http"
	"strings"
	"sync"
)

// HTTPTransport implements a mock HTTP client which records the requests that
// were made and responds to each with a configurable status code.
type HTTPTransport struct {
	mutex    sync.RWMutex
	requests []*http.Request
	status   int
	err      error
}

// NewHTTPTransport returns a mock HTTP client that responds with 200 OK.
func NewHTTPTransport() *HTTPTransport {
	return &HTTPTransport{status: http.StatusOK}
}

// WithStatus sets the status code with which each request is answered.
func (m *HTTPTransport) WithStatus(status int) *HTTPTransport {
	m.status = status

	return m
}

// WithError injects a round-trip error.
func (m *HTTPTransport) WithError(err error) *HTTPTransport {
	m.err = err

	return m
}

// Requests returns the requests that were made.
func (m *HTTPTransport) Requests() []*http.Request {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return m.requests
}

// Do records the request and returns the configured response.
func (m *HTTPTransport) Do(req *http.Request) (*http.Response, error) {
	if m.err != nil {
		return nil, m.err
	}

	m.mutex.Lock()
	m.requests = append(m.requests, req)
	m.mutex.Unlock()

	return &http.Response{
		StatusCode: m.status,
		Body:       io.NopCloser(strings.NewReader("")),
	}, nil
}
