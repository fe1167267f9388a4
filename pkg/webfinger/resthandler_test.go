/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package webfinger

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quillpub/quill/pkg/activitypub/store/memstore"
	"github.com/quillpub/quill/pkg/internal/aptestutil"
	"github.com/quillpub/quill/pkg/internal/testutil"
	"github.com/quillpub/quill/pkg/webfinger/model"
)

func TestHandler(t *testing.T) {
	serviceEndpoint := testutil.MustParseURL("https://example.com")

	activityStore := memstore.New("quill")
	require.NoError(t, activityStore.PutActor(aptestutil.NewMockPerson(serviceEndpoint, "alyssa")))

	h := NewHandler(serviceEndpoint, activityStore)

	require.Equal(t, WebFingerPath, h.Path())
	require.Equal(t, http.MethodGet, h.Method())

	t.Run("Success", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet,
			"https://example.com/.well-known/webfinger?resource=acct:alyssa@example.com", nil)

		rw := httptest.NewRecorder()

		h.Handler()(rw, req)

		require.Equal(t, http.StatusOK, rw.Code)
		require.Equal(t, model.ContentType, rw.Header().Get("Content-Type"))

		jrd := &model.JRD{}
		require.NoError(t, json.Unmarshal(rw.Body.Bytes(), jrd))
		require.Equal(t, "acct:alyssa@example.com", jrd.Subject)
		require.Contains(t, jrd.Aliases, "https://example.com/users/alyssa")

		link := jrd.LinkByRel(model.RelSelf, model.ActivityJSONType)
		require.NotNil(t, link)
		require.Equal(t, "https://example.com/users/alyssa", link.Href)
	})

	t.Run("Missing resource -> 400", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet,
			"https://example.com/.well-known/webfinger", nil)

		rw := httptest.NewRecorder()

		h.Handler()(rw, req)

		require.Equal(t, http.StatusBadRequest, rw.Code)
	})

	t.Run("Invalid resource -> 400", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet,
			"https://example.com/.well-known/webfinger?resource=acct:alyssa", nil)

		rw := httptest.NewRecorder()

		h.Handler()(rw, req)

		require.Equal(t, http.StatusBadRequest, rw.Code)
	})

	t.Run("Foreign host -> 404", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet,
			"https://example.com/.well-known/webfinger?resource=acct:alyssa@other.example", nil)

		rw := httptest.NewRecorder()

		h.Handler()(rw, req)

		require.Equal(t, http.StatusNotFound, rw.Code)
	})

	t.Run("Unknown actor -> 404", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet,
			"https://example.com/.well-known/webfinger?resource=acct:bob@example.com", nil)

		rw := httptest.NewRecorder()

		h.Handler()(rw, req)

		require.Equal(t, http.StatusNotFound, rw.Code)
	})
}
