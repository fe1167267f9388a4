/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quillpub/quill/pkg/activitypub/vocab"
)

func TestTransportPost(t *testing.T) {
	var receivedContentType string
	var receivedBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedContentType = r.Header.Get("Content-Type")
		receivedBody, _ = io.ReadAll(r.Body)

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	transport := Default()

	payload := []byte(`{"type":"Create"}`)

	resp, err := transport.Post(context.Background(), NewRequest(vocab.MustParseURL(server.URL)), payload)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, ActivityJSONContentType, receivedContentType)
	require.Equal(t, payload, receivedBody)
}

func TestTransportGet(t *testing.T) {
	var receivedAccept []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedAccept = r.Header.Values("Accept")

		w.Header().Set("Content-Type", ActivityJSONContentType)
		_, _ = w.Write([]byte(`{"type":"Person"}`))
	}))
	defer server.Close()

	transport := Default()

	resp, err := transport.Get(context.Background(), NewRequest(vocab.MustParseURL(server.URL)))
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	require.Equal(t, `{"type":"Person"}`, string(body))
	require.Contains(t, receivedAccept, ActivityJSONContentType)
	require.Contains(t, receivedAccept, ActivityStreamsContentType)
}

func TestTransportHeaderOverride(t *testing.T) {
	var receivedContentType string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedContentType = r.Header.Get("Content-Type")
	}))
	defer server.Close()

	transport := Default()

	req := NewRequest(vocab.MustParseURL(server.URL))
	req.Header.Set("Content-Type", ActivityStreamsContentType)

	resp, err := transport.Post(context.Background(), req, []byte(`{}`))
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	require.Equal(t, ActivityStreamsContentType, receivedContentType)
}

func TestTransportContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Default().Get(ctx, NewRequest(vocab.MustParseURL(server.URL))) //nolint:bodyclose
	require.Error(t, err)
}
