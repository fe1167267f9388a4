/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package resthandler

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/quillpub/quill/internal/pkg/log"
	"github.com/quillpub/quill/pkg/activitypub/store/spi"
	"github.com/quillpub/quill/pkg/activitypub/vocab"
	qerrors "github.com/quillpub/quill/pkg/errors"
)

// ReadObject implements the REST handler that retrieves a single object document.
// A deleted object is returned as a Tombstone with status 410.
type ReadObject struct {
	*handler
}

// NewObject returns a new object document REST handler.
func NewObject(cfg *Config, activityStore spi.Store, verifier signatureVerifier) *ReadObject {
	h := &ReadObject{}

	h.handler = newHandler(ObjectPath, http.MethodGet, cfg, activityStore, verifier, h.handle)

	return h
}

func (h *ReadObject) handle(w http.ResponseWriter, req *http.Request) {
	objectIRI := h.requestIRI(req)

	obj, err := h.activityStore.GetObject(objectIRI)
	if err != nil {
		if errors.Is(err, spi.ErrNotFound) {
			h.writeError(w, qerrors.NewKindf(qerrors.KindNotFound, "object [%s] does not exist",
				objectIRI))

			return
		}

		h.writeError(w, qerrors.NewTransient(err))

		return
	}

	viewerIRI := h.viewerIRI(req)

	if !isObjectVisibleTo(obj, viewerIRI) && !isOwnerOf(viewerIRI, objectIRI) {
		// The existence of a hidden object is not revealed.
		h.writeError(w, qerrors.NewKindf(qerrors.KindNotFound, "object [%s] does not exist",
			objectIRI))

		return
	}

	objBytes, err := h.marshal(obj)
	if err != nil {
		h.writeError(w, qerrors.NewTransient(err))

		return
	}

	if obj.Type().Is(vocab.TypeTombstone) {
		logger.Debug("Returning Tombstone for deleted object", log.WithObjectIRI(objectIRI))

		h.writeResponse(w, http.StatusGone, objBytes)

		return
	}

	h.writeResponse(w, http.StatusOK, objBytes)
}

// isObjectVisibleTo reports whether the object is addressed to the given viewer
// or to the public audience. A Tombstone retains no addressing and is visible to
// everyone, since it reveals only that the object once existed.
func isObjectVisibleTo(obj *vocab.ObjectType, viewerIRI *url.URL) bool {
	if obj.Type().Is(vocab.TypeTombstone) {
		return true
	}

	recipients := obj.Recipients()

	for _, r := range recipients {
		if vocab.IsPublic(r) {
			return true
		}
	}

	if viewerIRI == nil {
		return false
	}

	if obj.AttributedTo().URL() != nil && obj.AttributedTo().String() == viewerIRI.String() {
		return true
	}

	for _, r := range recipients {
		if r.String() == viewerIRI.String() {
			return true
		}
	}

	return false
}
