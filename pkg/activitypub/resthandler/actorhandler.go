/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package resthandler

import (
	"errors"
	"net/http"

	"github.com/quillpub/quill/internal/pkg/log"
	"github.com/quillpub/quill/pkg/activitypub/store/spi"
	qerrors "github.com/quillpub/quill/pkg/errors"
)

// Actor implements the REST handler that retrieves a local actor's document.
type Actor struct {
	*handler
}

// NewActor returns a new actor document REST handler.
func NewActor(cfg *Config, activityStore spi.Store) *Actor {
	h := &Actor{}

	h.handler = newHandler(ActorPath, http.MethodGet, cfg, activityStore, nil, h.handle)

	return h
}

func (h *Actor) handle(w http.ResponseWriter, req *http.Request) {
	actorIRI, err := h.ownerIRI(req)
	if err != nil {
		h.writeError(w, err)

		return
	}

	actor, err := h.activityStore.GetActor(actorIRI)
	if err != nil {
		if errors.Is(err, spi.ErrNotFound) {
			h.writeError(w, qerrors.NewKindf(qerrors.KindNotFound, "actor [%s] does not exist", actorIRI))

			return
		}

		h.writeError(w, qerrors.NewTransient(err))

		return
	}

	actorBytes, err := h.marshal(actor)
	if err != nil {
		h.writeError(w, qerrors.NewTransient(err))

		return
	}

	logger.Debug("Returning actor document", log.WithActorIRI(actorIRI))

	h.writeResponse(w, http.StatusOK, actorBytes)
}
