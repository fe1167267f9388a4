/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package resthandler

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/quillpub/quill/pkg/activitypub/service/mocks"
	"github.com/quillpub/quill/pkg/activitypub/store/memstore"
	"github.com/quillpub/quill/pkg/activitypub/store/spi"
	"github.com/quillpub/quill/pkg/activitypub/store/storeutil"
	"github.com/quillpub/quill/pkg/activitypub/vocab"
	"github.com/quillpub/quill/pkg/auth"
	"github.com/quillpub/quill/pkg/internal/aptestutil"
	"github.com/quillpub/quill/pkg/internal/testutil"
)

var (
	serviceEndpoint = testutil.MustParseURL("https://example.com")
	alyssaIRI       = testutil.MustParseURL("https://example.com/users/alyssa")
	benIRI          = testutil.MustParseURL("https://chatty.example/users/ben")
)

type restHandler interface {
	Path() string
	Method() string
	Handler() http.HandlerFunc
}

func newTestRouter(authVerifier *auth.Verifier, handlers ...restHandler) http.Handler {
	router := mux.NewRouter()

	for _, h := range handlers {
		router.HandleFunc(h.Path(), h.Handler()).Methods(h.Method())
	}

	if authVerifier != nil {
		return authVerifier.Middleware(router)
	}

	return router
}

func invoke(t *testing.T, router http.Handler, method, requestURL, token string,
	body []byte) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, requestURL, reader)

	if body != nil {
		req.Header.Set("Content-Type", activityJSONType)
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rw := httptest.NewRecorder()

	router.ServeHTTP(rw, req)

	return rw
}

func TestActorHandler(t *testing.T) {
	activityStore := memstore.New("quill")
	require.NoError(t, activityStore.PutActor(aptestutil.NewMockPerson(serviceEndpoint, "alyssa")))

	cfg := &Config{ServiceEndpoint: serviceEndpoint, PageSize: 4}

	router := newTestRouter(nil, NewActor(cfg, activityStore))

	t.Run("Success", func(t *testing.T) {
		rw := invoke(t, router, http.MethodGet, "https://example.com/users/alyssa", "", nil)

		require.Equal(t, http.StatusOK, rw.Code)
		require.Equal(t, activityJSONType, rw.Header().Get("Content-Type"))

		actor := &vocab.ActorType{}
		require.NoError(t, vocab.UnmarshalJSON(rw.Body.Bytes(), actor))
		require.Equal(t, alyssaIRI.String(), actor.ID().String())
		require.Equal(t, "alyssa", actor.PreferredUsername())
	})

	t.Run("Unknown actor -> 404", func(t *testing.T) {
		rw := invoke(t, router, http.MethodGet, "https://example.com/users/bob", "", nil)

		require.Equal(t, http.StatusNotFound, rw.Code)
	})
}

func TestFollowersHandler(t *testing.T) {
	activityStore := memstore.New("quill")
	require.NoError(t, activityStore.PutActor(aptestutil.NewMockPerson(serviceEndpoint, "alyssa")))

	const numFollowers = 10

	followers := testutil.NewMockURLs(numFollowers, func(i int) string {
		return "https://chatty.example/users/follower-" + string(rune('a'+i))
	})

	for _, f := range followers {
		require.NoError(t, activityStore.AddReference(spi.Follower, alyssaIRI, f))
	}

	cfg := &Config{ServiceEndpoint: serviceEndpoint, PageSize: 4}

	router := newTestRouter(nil, NewFollowers(cfg, activityStore))

	t.Run("Collection", func(t *testing.T) {
		rw := invoke(t, router, http.MethodGet, "https://example.com/users/alyssa/followers", "", nil)

		require.Equal(t, http.StatusOK, rw.Code)

		coll := &vocab.OrderedCollectionType{}
		require.NoError(t, vocab.UnmarshalJSON(rw.Body.Bytes(), coll))
		require.Equal(t, numFollowers, coll.TotalItems())
		require.NotNil(t, coll.First())
		require.NotNil(t, coll.Last())
	})

	t.Run("Walk all pages", func(t *testing.T) {
		seen := make(map[string]struct{})

		pageIRI := "https://example.com/users/alyssa/followers?page=true"

		for pageIRI != "" {
			rw := invoke(t, router, http.MethodGet, pageIRI, "", nil)
			require.Equal(t, http.StatusOK, rw.Code)

			page := &vocab.OrderedCollectionPageType{}
			require.NoError(t, vocab.UnmarshalJSON(rw.Body.Bytes(), page))
			require.Equal(t, numFollowers, page.TotalItems())
			require.LessOrEqual(t, len(page.Items()), cfg.PageSize)

			for _, item := range page.Items() {
				iri := item.IRI()
				require.NotNil(t, iri)

				_, duplicate := seen[iri.String()]
				require.False(t, duplicate, "follower returned on more than one page")

				seen[iri.String()] = struct{}{}
			}

			if next := page.Next(); next != nil && len(page.Items()) > 0 {
				pageIRI = next.String()
			} else {
				pageIRI = ""
			}
		}

		require.Len(t, seen, numFollowers)
	})

	t.Run("Last page anchored at the oldest entry", func(t *testing.T) {
		rw := invoke(t, router, http.MethodGet,
			"https://example.com/users/alyssa/followers?page=true&min_id="+minCursor, "", nil)

		require.Equal(t, http.StatusOK, rw.Code)

		page := &vocab.OrderedCollectionPageType{}
		require.NoError(t, vocab.UnmarshalJSON(rw.Body.Bytes(), page))
		require.Len(t, page.Items(), cfg.PageSize)
	})
}

func TestOutboxGetHandler(t *testing.T) {
	activityStore := memstore.New("quill")
	require.NoError(t, activityStore.PutActor(aptestutil.NewMockPerson(serviceEndpoint, "alyssa")))

	publicIRI := testutil.MustParseURL(vocab.PublicIRI)

	// Three public and two private activities.
	for i := 0; i < 3; i++ {
		activity := aptestutil.NewMockCreateActivity(alyssaIRI,
			aptestutil.NewMockNote(alyssaIRI, "public note", publicIRI), publicIRI)
		activity.SetID(storeutil.MintID(alyssaIRI, storeutil.CategoryActivities))

		require.NoError(t, activityStore.AddActivity(activity))
		require.NoError(t, activityStore.AddReference(spi.Outbox, alyssaIRI, activity.ID().URL()))
		require.NoError(t, activityStore.AddReference(spi.PublicOutbox, alyssaIRI, activity.ID().URL()))
	}

	for i := 0; i < 2; i++ {
		activity := aptestutil.NewMockCreateActivity(alyssaIRI,
			aptestutil.NewMockNote(alyssaIRI, "private note", benIRI), benIRI)
		activity.SetID(storeutil.MintID(alyssaIRI, storeutil.CategoryActivities))

		require.NoError(t, activityStore.AddActivity(activity))
		require.NoError(t, activityStore.AddReference(spi.Outbox, alyssaIRI, activity.ID().URL()))
	}

	authVerifier := auth.NewVerifier(&auth.Config{})
	authVerifier.RegisterToken("alyssa-token", alyssaIRI)

	cfg := &Config{ServiceEndpoint: serviceEndpoint, PageSize: 10}

	router := newTestRouter(authVerifier, NewOutbox(cfg, activityStore, nil))

	t.Run("Anonymous sees the public outbox", func(t *testing.T) {
		rw := invoke(t, router, http.MethodGet, "https://example.com/users/alyssa/outbox", "", nil)

		require.Equal(t, http.StatusOK, rw.Code)

		coll := &vocab.OrderedCollectionType{}
		require.NoError(t, vocab.UnmarshalJSON(rw.Body.Bytes(), coll))
		require.Equal(t, 3, coll.TotalItems())

		rw = invoke(t, router, http.MethodGet,
			"https://example.com/users/alyssa/outbox?page=true", "", nil)

		require.Equal(t, http.StatusOK, rw.Code)

		page := &vocab.OrderedCollectionPageType{}
		require.NoError(t, vocab.UnmarshalJSON(rw.Body.Bytes(), page))
		require.Len(t, page.Items(), 3)
	})

	t.Run("Owner sees the full outbox", func(t *testing.T) {
		rw := invoke(t, router, http.MethodGet,
			"https://example.com/users/alyssa/outbox?page=true", "alyssa-token", nil)

		require.Equal(t, http.StatusOK, rw.Code)

		page := &vocab.OrderedCollectionPageType{}
		require.NoError(t, vocab.UnmarshalJSON(rw.Body.Bytes(), page))
		require.Len(t, page.Items(), 5)
	})
}

func TestInboxGetHandler(t *testing.T) {
	activityStore := memstore.New("quill")
	require.NoError(t, activityStore.PutActor(aptestutil.NewMockPerson(serviceEndpoint, "alyssa")))

	publicIRI := testutil.MustParseURL(vocab.PublicIRI)

	publicActivity := aptestutil.NewMockCreateActivity(benIRI,
		aptestutil.NewMockNote(benIRI, "public note", publicIRI), publicIRI)
	privateActivity := aptestutil.NewMockCreateActivity(benIRI,
		aptestutil.NewMockNote(benIRI, "private note", alyssaIRI), alyssaIRI)

	for _, activity := range []*vocab.ActivityType{publicActivity, privateActivity} {
		require.NoError(t, activityStore.AddActivity(activity))
		require.NoError(t, activityStore.AddReference(spi.Inbox, alyssaIRI, activity.ID().URL()))
	}

	authVerifier := auth.NewVerifier(&auth.Config{})
	authVerifier.RegisterToken("alyssa-token", alyssaIRI)

	cfg := &Config{ServiceEndpoint: serviceEndpoint, PageSize: 10}

	router := newTestRouter(authVerifier, NewInbox(cfg, activityStore, nil))

	t.Run("Anonymous sees only public items", func(t *testing.T) {
		rw := invoke(t, router, http.MethodGet,
			"https://example.com/users/alyssa/inbox?page=true", "", nil)

		require.Equal(t, http.StatusOK, rw.Code)

		page := &vocab.OrderedCollectionPageType{}
		require.NoError(t, vocab.UnmarshalJSON(rw.Body.Bytes(), page))
		require.Len(t, page.Items(), 1)
		require.Equal(t, publicActivity.ID().String(), page.Items()[0].Activity().ID().String())
	})

	t.Run("Owner sees all items", func(t *testing.T) {
		rw := invoke(t, router, http.MethodGet,
			"https://example.com/users/alyssa/inbox?page=true", "alyssa-token", nil)

		require.Equal(t, http.StatusOK, rw.Code)

		page := &vocab.OrderedCollectionPageType{}
		require.NoError(t, vocab.UnmarshalJSON(rw.Body.Bytes(), page))
		require.Len(t, page.Items(), 2)
	})
}

func TestPostOutboxHandler(t *testing.T) {
	activityStore := memstore.New("quill")
	require.NoError(t, activityStore.PutActor(aptestutil.NewMockPerson(serviceEndpoint, "alyssa")))

	authVerifier := auth.NewVerifier(&auth.Config{})
	authVerifier.RegisterToken("alyssa-token", alyssaIRI)
	authVerifier.RegisterToken("ben-token", benIRI)

	outbox := mocks.NewOutbox()

	cfg := &Config{ServiceEndpoint: serviceEndpoint, PageSize: 10}

	router := newTestRouter(authVerifier, NewPostOutbox(cfg, activityStore, outbox, nil))

	t.Run("Bare object is wrapped in a Create", func(t *testing.T) {
		note := vocab.NewObject(
			vocab.WithType(vocab.TypeNote),
			vocab.WithContent("hello world"),
			vocab.WithTo(testutil.MustParseURL(vocab.PublicIRI)),
			vocab.WithCC(benIRI),
		)

		noteBytes, err := vocab.Marshal(note)
		require.NoError(t, err)

		rw := invoke(t, router, http.MethodPost,
			"https://example.com/users/alyssa/outbox", "alyssa-token", noteBytes)

		require.Equal(t, http.StatusCreated, rw.Code)
		require.NotEmpty(t, rw.Header().Get("Location"))

		require.Len(t, outbox.Activities(), 1)

		activity := outbox.Activities()[0]
		require.True(t, activity.Type().Is(vocab.TypeCreate))
		require.Equal(t, alyssaIRI.String(), activity.Actor().String())
		require.Len(t, activity.To(), 1)
		require.Equal(t, vocab.PublicIRI, activity.To()[0].String())
		require.Len(t, activity.CC(), 1)
		require.Equal(t, benIRI.String(), activity.CC()[0].String())
	})

	t.Run("Activity is posted as-is", func(t *testing.T) {
		follow := vocab.NewFollowActivity(vocab.NewObjectProperty(vocab.WithIRI(benIRI)),
			vocab.WithContext(vocab.ContextActivityStreams),
			vocab.WithTo(benIRI),
		)

		followBytes, err := vocab.Marshal(follow)
		require.NoError(t, err)

		rw := invoke(t, router, http.MethodPost,
			"https://example.com/users/alyssa/outbox", "alyssa-token", followBytes)

		require.Equal(t, http.StatusCreated, rw.Code)

		activity := outbox.Activities()[len(outbox.Activities())-1]
		require.True(t, activity.Type().Is(vocab.TypeFollow))
	})

	t.Run("Anonymous -> 401", func(t *testing.T) {
		noteBytes, err := vocab.Marshal(vocab.NewObject(vocab.WithType(vocab.TypeNote)))
		require.NoError(t, err)

		rw := invoke(t, router, http.MethodPost,
			"https://example.com/users/alyssa/outbox", "", noteBytes)

		require.Equal(t, http.StatusUnauthorized, rw.Code)
	})

	t.Run("Posting to another actor's outbox -> 401", func(t *testing.T) {
		noteBytes, err := vocab.Marshal(vocab.NewObject(vocab.WithType(vocab.TypeNote)))
		require.NoError(t, err)

		rw := invoke(t, router, http.MethodPost,
			"https://example.com/users/alyssa/outbox", "ben-token", noteBytes)

		require.Equal(t, http.StatusUnauthorized, rw.Code)
	})

	t.Run("Unsupported content type -> 415", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost,
			"https://example.com/users/alyssa/outbox", bytes.NewReader([]byte("{}")))
		req.Header.Set("Content-Type", "text/plain")
		req.Header.Set("Authorization", "Bearer alyssa-token")

		rw := httptest.NewRecorder()

		router.ServeHTTP(rw, req)

		require.Equal(t, http.StatusUnsupportedMediaType, rw.Code)
	})

	t.Run("Malformed body -> 400", func(t *testing.T) {
		rw := invoke(t, router, http.MethodPost,
			"https://example.com/users/alyssa/outbox", "alyssa-token", []byte("not json"))

		require.Equal(t, http.StatusBadRequest, rw.Code)
	})
}

func TestReadActivityHandler(t *testing.T) {
	activityStore := memstore.New("quill")
	require.NoError(t, activityStore.PutActor(aptestutil.NewMockPerson(serviceEndpoint, "alyssa")))

	publicIRI := testutil.MustParseURL(vocab.PublicIRI)

	publicActivity := aptestutil.NewMockCreateActivity(alyssaIRI,
		aptestutil.NewMockNote(alyssaIRI, "public", publicIRI), publicIRI)
	publicActivity.SetID(storeutil.MintID(alyssaIRI, storeutil.CategoryActivities))

	privateActivity := aptestutil.NewMockCreateActivity(alyssaIRI,
		aptestutil.NewMockNote(alyssaIRI, "private", benIRI), benIRI)
	privateActivity.SetID(storeutil.MintID(alyssaIRI, storeutil.CategoryActivities))

	require.NoError(t, activityStore.AddActivity(publicActivity))
	require.NoError(t, activityStore.AddActivity(privateActivity))

	authVerifier := auth.NewVerifier(&auth.Config{})
	authVerifier.RegisterToken("alyssa-token", alyssaIRI)

	cfg := &Config{ServiceEndpoint: serviceEndpoint, PageSize: 10}

	router := newTestRouter(authVerifier, NewActivity(cfg, activityStore, nil))

	t.Run("Public activity", func(t *testing.T) {
		rw := invoke(t, router, http.MethodGet, publicActivity.ID().String(), "", nil)

		require.Equal(t, http.StatusOK, rw.Code)

		activity := &vocab.ActivityType{}
		require.NoError(t, vocab.UnmarshalJSON(rw.Body.Bytes(), activity))
		require.Equal(t, publicActivity.ID().String(), activity.ID().String())
	})

	t.Run("Private activity hidden from anonymous viewer", func(t *testing.T) {
		rw := invoke(t, router, http.MethodGet, privateActivity.ID().String(), "", nil)

		require.Equal(t, http.StatusNotFound, rw.Code)
	})

	t.Run("Private activity visible to owner", func(t *testing.T) {
		rw := invoke(t, router, http.MethodGet, privateActivity.ID().String(), "alyssa-token", nil)

		require.Equal(t, http.StatusOK, rw.Code)
	})

	t.Run("Unknown activity -> 404", func(t *testing.T) {
		rw := invoke(t, router, http.MethodGet,
			storeutil.MintID(alyssaIRI, storeutil.CategoryActivities).String(), "", nil)

		require.Equal(t, http.StatusNotFound, rw.Code)
	})
}

func TestReadObjectHandler(t *testing.T) {
	activityStore := memstore.New("quill")
	require.NoError(t, activityStore.PutActor(aptestutil.NewMockPerson(serviceEndpoint, "alyssa")))

	publicIRI := testutil.MustParseURL(vocab.PublicIRI)

	note := aptestutil.NewMockNote(alyssaIRI, "hello", publicIRI)
	note.SetID(storeutil.MintID(alyssaIRI, storeutil.CategoryObjects))
	require.NoError(t, activityStore.PutObject(note))

	deletedTime := note.Published()

	tombstone := vocab.NewTombstone(
		vocab.WithID(storeutil.MintID(alyssaIRI, storeutil.CategoryObjects)),
		vocab.WithFormerType(vocab.TypeNote),
		vocab.WithDeletedTime(deletedTime),
	)
	require.NoError(t, activityStore.PutObject(tombstone))

	cfg := &Config{ServiceEndpoint: serviceEndpoint, PageSize: 10}

	router := newTestRouter(nil, NewObject(cfg, activityStore, nil))

	t.Run("Public object", func(t *testing.T) {
		rw := invoke(t, router, http.MethodGet, note.ID().String(), "", nil)

		require.Equal(t, http.StatusOK, rw.Code)

		obj := &vocab.ObjectType{}
		require.NoError(t, vocab.UnmarshalJSON(rw.Body.Bytes(), obj))
		require.Equal(t, note.ID().String(), obj.ID().String())
	})

	t.Run("Deleted object -> 410 with Tombstone", func(t *testing.T) {
		rw := invoke(t, router, http.MethodGet, tombstone.ID().String(), "", nil)

		require.Equal(t, http.StatusGone, rw.Code)
		require.Contains(t, rw.Body.String(), `"formerType":"Note"`)

		obj := &vocab.ObjectType{}
		require.NoError(t, vocab.UnmarshalJSON(rw.Body.Bytes(), obj))
		require.True(t, obj.Type().Is(vocab.TypeTombstone))
	})

	t.Run("Unknown object -> 404", func(t *testing.T) {
		rw := invoke(t, router, http.MethodGet,
			storeutil.MintID(alyssaIRI, storeutil.CategoryObjects).String(), "", nil)

		require.Equal(t, http.StatusNotFound, rw.Code)
	})
}
