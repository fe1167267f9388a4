/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package resthandler implements the HTTP endpoints of the ActivityPub service:
// the actor document, the inbox, outbox, followers, following and liked
// collections, and per-activity and per-object documents. Collections are paged
// with ULID cursors (max_id/min_id), newest first.
package resthandler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/gorilla/mux"

	"github.com/quillpub/quill/internal/pkg/log"
	"github.com/quillpub/quill/pkg/activitypub/store/spi"
	"github.com/quillpub/quill/pkg/activitypub/vocab"
	"github.com/quillpub/quill/pkg/auth"
	qerrors "github.com/quillpub/quill/pkg/errors"
)

var logger = log.New("activitypub_resthandler")

const (
	// ActorPath is the path of the actor document endpoint.
	ActorPath = "/users/{nick}"
	// InboxPath is the path of the inbox endpoint.
	InboxPath = ActorPath + "/inbox"
	// OutboxPath is the path of the outbox endpoint.
	OutboxPath = ActorPath + "/outbox"
	// FollowersPath is the path of the followers collection endpoint.
	FollowersPath = ActorPath + "/followers"
	// FollowingPath is the path of the following collection endpoint.
	FollowingPath = ActorPath + "/following"
	// LikedPath is the path of the liked collection endpoint.
	LikedPath = ActorPath + "/liked"
	// ActivityPath is the path of the activity document endpoint.
	ActivityPath = ActorPath + "/activities/{id}"
	// ObjectPath is the path of the object document endpoint.
	ObjectPath = ActorPath + "/objects/{id}"

	pageParam  = "page"
	maxIDParam = "max_id"
	minIDParam = "min_id"

	activityJSONType = "application/activity+json"

	// minCursor sorts before every ULID, so a min_id query anchored at it
	// returns the oldest page.
	minCursor = "00000000000000000000000000"
)

// Config holds the configuration parameters for the REST handlers.
type Config struct {
	// ServiceEndpoint is the base URL of this server, e.g. https://example.com.
	ServiceEndpoint *url.URL
	// PageSize is the maximum number of items per collection page.
	PageSize int
}

type signatureVerifier interface {
	VerifyRequest(req *http.Request, body []byte) (bool, *url.URL, error)
}

type handler struct {
	*Config

	endpoint      string
	method        string
	activityStore spi.Store
	verifier      signatureVerifier
	handleFunc    http.HandlerFunc
	marshal       func(v interface{}) ([]byte, error)
}

func newHandler(endpoint, method string, cfg *Config, activityStore spi.Store,
	verifier signatureVerifier, handleFunc http.HandlerFunc) *handler {
	return &handler{
		Config:        cfg,
		endpoint:      endpoint,
		method:        method,
		activityStore: activityStore,
		verifier:      verifier,
		handleFunc:    handleFunc,
		marshal:       vocab.Marshal,
	}
}

// Path returns the base path of the target URL for this handler.
func (h *handler) Path() string {
	return h.endpoint
}

// Method returns the HTTP method of this handler.
func (h *handler) Method() string {
	return h.method
}

// Handler returns the handler that should be invoked when an HTTP request is made
// to the target endpoint. This handler must be registered with an HTTP server.
func (h *handler) Handler() http.HandlerFunc {
	return h.handleFunc
}

// ownerIRI resolves the {nick} path variable to the IRI of the local actor that
// owns the requested resource.
func (h *handler) ownerIRI(req *http.Request) (*url.URL, error) {
	nick := mux.Vars(req)["nick"]
	if nick == "" {
		return nil, qerrors.NewKindf(qerrors.KindNotFound, "no nickname in path [%s]", req.URL)
	}

	owner := *h.ServiceEndpoint
	owner.Path = "/users/" + nick

	return &owner, nil
}

// resolveOwner resolves the {nick} path variable to a local actor and ensures
// that the actor exists.
func (h *handler) resolveOwner(req *http.Request) (*url.URL, error) {
	ownerIRI, err := h.ownerIRI(req)
	if err != nil {
		return nil, err
	}

	if _, err := h.activityStore.GetActor(ownerIRI); err != nil {
		if errors.Is(err, spi.ErrNotFound) {
			return nil, qerrors.NewKindf(qerrors.KindNotFound, "actor [%s] does not exist", ownerIRI)
		}

		return nil, qerrors.NewTransient(err)
	}

	return ownerIRI, nil
}

// viewerIRI returns the IRI of the actor on whose behalf the request is made:
// the bearer-token user if one is attached to the request context, otherwise the
// actor resolved from a valid HTTP signature. An unauthenticated request returns
// nil, meaning that only publicly addressed content is visible.
func (h *handler) viewerIRI(req *http.Request) *url.URL {
	if user := auth.FromContext(req.Context()); user != nil {
		return user.ActorIRI
	}

	if h.verifier == nil || req.Header.Get("Signature") == "" {
		return nil
	}

	verified, actorIRI, err := h.verifier.VerifyRequest(req, nil)
	if err != nil || !verified {
		logger.Debug("Request signature could not be verified, treating request as anonymous",
			log.WithRequestURL(req.URL), log.WithError(err))

		return nil
	}

	return actorIRI
}

func (h *handler) writeResponse(w http.ResponseWriter, status int, body []byte) {
	if len(body) > 0 {
		w.Header().Set("Content-Type", activityJSONType)
	}

	w.WriteHeader(status)

	if len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			logger.Warn("Unable to write response", log.WithRequestURLString(h.endpoint),
				log.WithError(err))
		}
	}
}

func (h *handler) writeError(w http.ResponseWriter, err error) {
	status := qerrors.HTTPStatusOf(err)

	if status >= http.StatusInternalServerError {
		logger.Error("Error handling request", log.WithRequestURLString(h.endpoint), log.WithError(err))

		// 5xx responses carry no detail.
		w.WriteHeader(status)

		return
	}

	logger.Debug("Returning error status", log.WithRequestURLString(h.endpoint),
		log.WithHTTPStatus(status), log.WithError(err))

	body, e := json.Marshal(errorResponse{
		Error:            string(kindOf(err)),
		ErrorDescription: err.Error(),
	})
	if e != nil {
		w.WriteHeader(status)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if _, e := w.Write(body); e != nil {
		logger.Warn("Unable to write response", log.WithRequestURLString(h.endpoint), log.WithError(e))
	}
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

func kindOf(err error) qerrors.Kind {
	if kind, ok := qerrors.KindOf(err); ok {
		return kind
	}

	return "bad_request"
}

// pageRequest holds the parsed paging parameters of a collection request.
type pageRequest struct {
	paging bool
	maxID  string
	minID  string
}

func parsePageRequest(req *http.Request) *pageRequest {
	query := req.URL.Query()

	return &pageRequest{
		paging: query.Get(pageParam) == "true",
		maxID:  query.Get(maxIDParam),
		minID:  query.Get(minIDParam),
	}
}

// queryOpts maps the page request to store query options. A request anchored
// only by min_id pages backwards from the oldest entry, so the store query is
// ascending and the results are reversed for presentation.
func (r *pageRequest) queryOpts(pageSize int) []spi.QueryOpt {
	opts := []spi.QueryOpt{spi.WithPageSize(pageSize)}

	if r.ascending() {
		opts = append(opts, spi.WithSortOrder(spi.SortAscending))
	} else {
		opts = append(opts, spi.WithSortOrder(spi.SortDescending))
	}

	if r.maxID != "" {
		opts = append(opts, spi.WithMaxID(r.maxID))
	}

	if r.minID != "" {
		opts = append(opts, spi.WithMinID(r.minID))
	}

	return opts
}

func (r *pageRequest) ascending() bool {
	return r.minID != "" && r.maxID == ""
}

// pageURL returns the IRI of the page of the given collection anchored at the
// given cursors.
func pageURL(collID *url.URL, maxID, minID string) *url.URL {
	pageID := *collID

	query := url.Values{}
	query.Set(pageParam, "true")

	if maxID != "" {
		query.Set(maxIDParam, maxID)
	}

	if minID != "" {
		query.Set(minIDParam, minID)
	}

	pageID.RawQuery = query.Encode()

	return &pageID
}

// newCollection builds the top-level OrderedCollection document for the given
// collection IRI. The first page holds the newest entries; the last page is
// anchored just above the smallest possible cursor and so holds the oldest.
func newCollection(collID *url.URL, totalItems int) *vocab.OrderedCollectionType {
	return vocab.NewOrderedCollection(nil,
		vocab.WithContext(vocab.ContextActivityStreams),
		vocab.WithID(collID),
		vocab.WithFirst(pageURL(collID, "", "")),
		vocab.WithLast(pageURL(collID, "", minCursor)),
		vocab.WithTotalItems(totalItems),
	)
}

// pageEntry is an item of a collection page along with its paging cursor.
type pageEntry struct {
	item   *vocab.ObjectProperty
	cursor string
}

// newCollectionPage builds an OrderedCollectionPage from the given entries,
// which must be sorted newest first. The next link pages further into the past,
// the prev link back towards the present.
func newCollectionPage(collID *url.URL, req *pageRequest, entries []*pageEntry,
	totalItems, pageSize int) *vocab.OrderedCollectionPageType {
	items := make([]*vocab.ObjectProperty, len(entries))

	for i, e := range entries {
		items[i] = e.item
	}

	opts := []vocab.Opt{
		vocab.WithContext(vocab.ContextActivityStreams),
		vocab.WithID(pageURL(collID, req.maxID, req.minID)),
		vocab.WithPartOf(collID),
		vocab.WithTotalItems(totalItems),
	}

	if len(entries) > 0 {
		opts = append(opts, vocab.WithPrev(pageURL(collID, "", entries[0].cursor)))

		if len(entries) == pageSize {
			opts = append(opts, vocab.WithNext(pageURL(collID, entries[len(entries)-1].cursor, "")))
		}
	}

	return vocab.NewOrderedCollectionPage(items, opts...)
}

// reverseEntries puts entries read in ascending order back into the newest-first
// presentation order.
func reverseEntries(entries []*pageEntry) {
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
}
