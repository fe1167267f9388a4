/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package httpserver

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	listenAddr = "localhost:8327"
	clientURL  = "http://" + listenAddr
)

type testHandler struct {
	path   string
	method string
	handle http.HandlerFunc
}

func (h *testHandler) Path() string {
	return h.path
}

func (h *testHandler) Method() string {
	return h.method
}

func (h *testHandler) Handler() http.HandlerFunc {
	return h.handle
}

type headerMiddleware struct{}

func (m *headerMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("X-Test-Middleware", "applied")

		next.ServeHTTP(w, req)
	})
}

func TestServer(t *testing.T) {
	s := New(listenAddr, "", "", time.Second, time.Second,
		&headerMiddleware{},
		&testHandler{
			path:   "/hello",
			method: http.MethodGet,
			handle: func(w http.ResponseWriter, req *http.Request) {
				_, err := w.Write([]byte("hello"))
				require.NoError(t, err)
			},
		},
		&testHandler{
			path:   "/echo",
			method: http.MethodPost,
			handle: func(w http.ResponseWriter, req *http.Request) {
				body, err := io.ReadAll(req.Body)
				require.NoError(t, err)

				_, err = w.Write(body)
				require.NoError(t, err)
			},
		},
	)

	require.NoError(t, s.Start())
	require.Error(t, s.Start())

	// Wait for the listener to come up.
	time.Sleep(100 * time.Millisecond)

	t.Run("GET", func(t *testing.T) {
		resp, err := http.Get(clientURL + "/hello")
		require.NoError(t, err)

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())

		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "hello", string(body))
		require.Equal(t, "applied", resp.Header.Get("X-Test-Middleware"))
	})

	t.Run("Method not allowed", func(t *testing.T) {
		resp, err := http.Get(clientURL + "/echo")
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())

		require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})

	t.Run("Not found", func(t *testing.T) {
		resp, err := http.Get(clientURL + "/unknown")
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())

		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, s.Stop(ctx))
	require.Error(t, s.Stop(ctx))
}
