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

// NewFollowers returns a new 'followers' REST handler that retrieves an actor's
// list of followers.
func NewFollowers(cfg *Config, activityStore spi.Store) *Reference {
	return NewReference(FollowersPath, spi.Follower, cfg, activityStore)
}

// NewFollowing returns a new 'following' REST handler that retrieves the list of
// actors that an actor is following.
func NewFollowing(cfg *Config, activityStore spi.Store) *Reference {
	return NewReference(FollowingPath, spi.Following, cfg, activityStore)
}

// Reference implements a REST handler that retrieves references as a collection of IRIs.
type Reference struct {
	*handler

	refType spi.ReferenceType
}

// NewReference returns a new reference REST handler.
func NewReference(endpoint string, refType spi.ReferenceType, cfg *Config, activityStore spi.Store) *Reference {
	h := &Reference{
		refType: refType,
	}

	h.handler = newHandler(endpoint, http.MethodGet, cfg, activityStore, nil, h.handle)

	return h
}

func (h *Reference) handle(w http.ResponseWriter, req *http.Request) {
	ownerIRI, err := h.resolveOwner(req)
	if err != nil {
		h.writeError(w, err)

		return
	}

	collID := collectionID(ownerIRI, path.Base(h.endpoint))

	pageReq := parsePageRequest(req)

	var doc interface{}

	if pageReq.paging {
		doc, err = h.getPage(ownerIRI, collID, pageReq)
	} else {
		doc, err = h.getCollection(ownerIRI, collID)
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

func (h *Reference) getCollection(ownerIRI, collID *url.URL) (interface{}, error) {
	it, err := h.activityStore.QueryReferences(h.refType,
		spi.NewCriteria(spi.WithObjectIRI(ownerIRI)),
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

func (h *Reference) getPage(ownerIRI, collID *url.URL, pageReq *pageRequest) (interface{}, error) {
	it, err := h.activityStore.QueryReferences(h.refType,
		spi.NewCriteria(spi.WithObjectIRI(ownerIRI)),
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
		ref, err := it.Next()
		if err != nil {
			if errors.Is(err, spi.ErrNotFound) {
				break
			}

			return nil, qerrors.NewTransient(err)
		}

		entries = append(entries, &pageEntry{
			item:   vocab.NewObjectProperty(vocab.WithIRI(ref)),
			cursor: it.CurrentCursor(),
		})
	}

	if pageReq.ascending() {
		reverseEntries(entries)
	}

	return newCollectionPage(collID, pageReq, entries, totalItems, h.PageSize), nil
}

// collectionID returns the IRI of the named collection belonging to the given actor.
func collectionID(ownerIRI *url.URL, name string) *url.URL {
	collID := *ownerIRI
	collID.Path = path.Join(collID.Path, name)

	return &collID
}

type closer interface {
	Close() error
}

func closeIterator(it closer) {
	if err := it.Close(); err != nil {
		logger.Warn("Error closing iterator", log.WithError(err))
	}
}
