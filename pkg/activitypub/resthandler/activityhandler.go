/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package resthandler

import (
	"errors"
	"net/http"
	"net/url"
	"path"

	"github.com/quillpub/quill/internal/pkg/log"
	"github.com/quillpub/quill/pkg/activitypub/store/spi"
	"github.com/quillpub/quill/pkg/activitypub/vocab"
	qerrors "github.com/quillpub/quill/pkg/errors"
)

// NewInbox returns a new 'inbox' REST handler that retrieves the activities in an
// actor's inbox. The owner sees every item; any other viewer sees only the
// publicly addressed ones.
func NewInbox(cfg *Config, activityStore spi.Store, verifier signatureVerifier) *Activities {
	h := &Activities{
		refType:         spi.Inbox,
		filterForViewer: true,
	}

	h.handler = newHandler(InboxPath, http.MethodGet, cfg, activityStore, verifier, h.handle)

	return h
}

// NewOutbox returns a new 'outbox' REST handler that retrieves the activities in
// an actor's outbox. The owner sees every item; any other viewer sees the public
// outbox.
func NewOutbox(cfg *Config, activityStore spi.Store, verifier signatureVerifier) *Activities {
	h := &Activities{
		refType:       spi.Outbox,
		publicRefType: spi.PublicOutbox,
	}

	h.handler = newHandler(OutboxPath, http.MethodGet, cfg, activityStore, verifier, h.handle)

	return h
}

// NewLiked returns a new 'liked' REST handler that retrieves the Like activities
// posted by an actor.
func NewLiked(cfg *Config, activityStore spi.Store, verifier signatureVerifier) *Activities {
	h := &Activities{
		refType: spi.Liked,
	}

	h.handler = newHandler(LikedPath, http.MethodGet, cfg, activityStore, verifier, h.handle)

	return h
}

// Activities implements a REST handler that retrieves activities as an ordered
// collection.
type Activities struct {
	*handler

	refType spi.ReferenceType
	// publicRefType, if set, is the reference set served to viewers other than
	// the owner.
	publicRefType spi.ReferenceType
	// filterForViewer hides items that are neither publicly addressed nor
	// addressed to the viewer from everyone but the owner.
	filterForViewer bool
}

func (h *Activities) handle(w http.ResponseWriter, req *http.Request) {
	ownerIRI, err := h.resolveOwner(req)
	if err != nil {
		h.writeError(w, err)

		return
	}

	viewerIRI := h.viewerIRI(req)

	isOwner := viewerIRI != nil && viewerIRI.String() == ownerIRI.String()

	refType := h.refType
	if h.publicRefType != "" && !isOwner {
		refType = h.publicRefType
	}

	collID := collectionID(ownerIRI, path.Base(h.endpoint))

	pageReq := parsePageRequest(req)

	var doc interface{}

	if pageReq.paging {
		doc, err = h.getPage(ownerIRI, viewerIRI, collID, refType, isOwner, pageReq)
	} else {
		doc, err = h.getCollection(ownerIRI, collID, refType)
	}

	if err != nil {
		h.writeError(w, err)

		return
	}

	docBytes, err := h.marshal(doc)
	if err != nil {
		h.writeError(w, qerrors.NewTransient(err))

		return
	}

	h.writeResponse(w, http.StatusOK, docBytes)
}

func (h *Activities) getCollection(ownerIRI, collID *url.URL, refType spi.ReferenceType) (interface{}, error) {
	it, err := h.activityStore.QueryActivities(
		spi.NewCriteria(spi.WithObjectIRI(ownerIRI), spi.WithReferenceType(refType)),
		spi.WithPageSize(h.PageSize),
	)
	if err != nil {
		return nil, qerrors.NewTransient(err)
	}

	defer closeIterator(it)

	totalItems, err := it.TotalItems()
	if err != nil {
		return nil, qerrors.NewTransient(err)
	}

	return newCollection(collID, totalItems), nil
}

func (h *Activities) getPage(ownerIRI, viewerIRI, collID *url.URL, refType spi.ReferenceType,
	isOwner bool, pageReq *pageRequest) (interface{}, error) {
	it, err := h.activityStore.QueryActivities(
		spi.NewCriteria(spi.WithObjectIRI(ownerIRI), spi.WithReferenceType(refType)),
		pageReq.queryOpts(h.PageSize)...,
	)
	if err != nil {
		return nil, qerrors.NewTransient(err)
	}

	defer closeIterator(it)

	totalItems, err := it.TotalItems()
	if err != nil {
		return nil, qerrors.NewTransient(err)
	}

	var entries []*pageEntry

	for {
		activity, err := it.Next()
		if err != nil {
			if errors.Is(err, spi.ErrNotFound) {
				break
			}

			return nil, qerrors.NewTransient(err)
		}

		if h.filterForViewer && !isOwner && !isVisibleTo(activity, viewerIRI) {
			logger.Debug("Hiding activity from viewer", log.WithActivityID(activity.ID()),
				log.WithActorIRI(viewerIRI))

			continue
		}

		entries = append(entries, &pageEntry{
			item:   vocab.NewObjectProperty(vocab.WithActivity(activity)),
			cursor: it.CurrentCursor(),
		})
	}

	if pageReq.ascending() {
		reverseEntries(entries)
	}

	return newCollectionPage(collID, pageReq, entries, totalItems, h.PageSize), nil
}

// isVisibleTo reports whether the activity is addressed to the given viewer,
// either directly, through an audience collection membership that the activity
// itself names, or through the public audience.
func isVisibleTo(activity *vocab.ActivityType, viewerIRI *url.URL) bool {
	recipients := activity.Recipients()

	for _, r := range recipients {
		if vocab.IsPublic(r) {
			return true
		}
	}

	if viewerIRI == nil {
		return false
	}

	if activity.Actor() != nil && activity.Actor().String() == viewerIRI.String() {
		return true
	}

	for _, r := range recipients {
		if r.String() == viewerIRI.String() {
			return true
		}
	}

	return false
}

// ReadActivity implements the REST handler that retrieves a single activity document.
type ReadActivity struct {
	*handler
}

// NewActivity returns a new activity document REST handler.
func NewActivity(cfg *Config, activityStore spi.Store, verifier signatureVerifier) *ReadActivity {
	h := &ReadActivity{}

	h.handler = newHandler(ActivityPath, http.MethodGet, cfg, activityStore, verifier, h.handle)

	return h
}

func (h *ReadActivity) handle(w http.ResponseWriter, req *http.Request) {
	activityIRI := h.requestIRI(req)

	activity, err := h.activityStore.GetActivity(activityIRI)
	if err != nil {
		if errors.Is(err, spi.ErrNotFound) {
			h.writeError(w, qerrors.NewKindf(qerrors.KindNotFound, "activity [%s] does not exist",
				activityIRI))

			return
		}

		h.writeError(w, qerrors.NewTransient(err))

		return
	}

	viewerIRI := h.viewerIRI(req)

	if !isVisibleTo(activity, viewerIRI) && !isOwnerOf(viewerIRI, activityIRI) {
		// The existence of a hidden activity is not revealed.
		h.writeError(w, qerrors.NewKindf(qerrors.KindNotFound, "activity [%s] does not exist",
			activityIRI))

		return
	}

	activityBytes, err := h.marshal(activity)
	if err != nil {
		h.writeError(w, qerrors.NewTransient(err))

		return
	}

	h.writeResponse(w, http.StatusOK, activityBytes)
}

// requestIRI reconstructs the IRI of the requested document from the request path.
func (h *handler) requestIRI(req *http.Request) *url.URL {
	iri := *h.ServiceEndpoint
	iri.Path = req.URL.Path

	return &iri
}

// isOwnerOf reports whether the viewer is the actor under whose IRI the given
// document is minted.
func isOwnerOf(viewerIRI, docIRI *url.URL) bool {
	if viewerIRI == nil {
		return false
	}

	// Documents are minted under {actor}/{category}/{ulid}.
	owner := *docIRI
	owner.Path = path.Dir(path.Dir(owner.Path))

	return owner.String() == viewerIRI.String()
}
