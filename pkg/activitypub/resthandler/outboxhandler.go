/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package resthandler

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/quillpub/quill/internal/pkg/log"
	service "github.com/quillpub/quill/pkg/activitypub/service/spi"
	"github.com/quillpub/quill/pkg/activitypub/store/spi"
	"github.com/quillpub/quill/pkg/activitypub/vocab"
	"github.com/quillpub/quill/pkg/auth"
	qerrors "github.com/quillpub/quill/pkg/errors"
)

type outboxService interface {
	Post(actorIRI *url.URL, activity *vocab.ActivityType) (*url.URL, error)
}

// PostOutbox implements the client-to-server endpoint: an authenticated local
// actor posts an activity (or a bare object, which is wrapped in a Create) to
// their outbox.
type PostOutbox struct {
	*handler

	outbox   outboxService
	bodyHook service.RequestBodyHookFunc
}

// NewPostOutbox returns a new outbox POST REST handler. The given hook, if any,
// is invoked on each parsed activity before it is authorized.
func NewPostOutbox(cfg *Config, activityStore spi.Store, outbox outboxService,
	bodyHook service.RequestBodyHookFunc) *PostOutbox {
	h := &PostOutbox{
		outbox:   outbox,
		bodyHook: bodyHook,
	}

	h.handler = newHandler(OutboxPath, http.MethodPost, cfg, activityStore, nil, h.handle)

	return h
}

func (h *PostOutbox) handle(w http.ResponseWriter, req *http.Request) {
	if !strings.HasPrefix(req.Header.Get("Content-Type"), activityJSONType) &&
		!strings.HasPrefix(req.Header.Get("Content-Type"), "application/ld+json") {
		h.writeError(w, qerrors.NewKindf(qerrors.KindUnsupportedMediaType,
			"unsupported content type [%s]", req.Header.Get("Content-Type")))

		return
	}

	user := auth.FromContext(req.Context())
	if user == nil {
		h.writeError(w, qerrors.NewKindf(qerrors.KindUnauthenticated,
			"posting to an outbox requires authentication"))

		return
	}

	ownerIRI, err := h.resolveOwner(req)
	if err != nil {
		h.writeError(w, err)

		return
	}

	if user.ActorIRI.String() != ownerIRI.String() {
		h.writeError(w, qerrors.NewKindf(qerrors.KindUnauthenticated,
			"actor [%s] may not post to the outbox of [%s]", user.ActorIRI, ownerIRI))

		return
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		h.writeError(w, qerrors.NewKind(qerrors.KindMalformedBody, err))

		return
	}

	activity, err := h.parseActivity(body, ownerIRI)
	if err != nil {
		h.writeError(w, err)

		return
	}

	if h.bodyHook != nil {
		if err := h.bodyHook(req, activity); err != nil {
			h.writeError(w, qerrors.NewBadRequest(err))

			return
		}
	}

	activityIRI, err := h.outbox.Post(ownerIRI, activity)
	if err != nil {
		h.writeError(w, err)

		return
	}

	logger.Debug("Posted activity to outbox", log.WithActorIRI(ownerIRI),
		log.WithActivityID(activityIRI))

	w.Header().Set("Location", activityIRI.String())
	w.WriteHeader(http.StatusCreated)
}

// parseActivity parses the request body as an activity. A bare object is wrapped
// in a Create whose addressing is copied from the object.
func (h *PostOutbox) parseActivity(body []byte, ownerIRI *url.URL) (*vocab.ActivityType, error) {
	obj := &vocab.ObjectType{}

	if err := json.Unmarshal(body, obj); err != nil {
		return nil, qerrors.NewKind(qerrors.KindMalformedBody, err)
	}

	if obj.Type() == nil {
		return nil, qerrors.NewKindf(qerrors.KindMalformedBody, "no type specified in posted document")
	}

	if !obj.Type().IsAny(vocab.ActivityTypes()...) {
		return wrapInCreate(obj, ownerIRI), nil
	}

	activity := &vocab.ActivityType{}

	if err := json.Unmarshal(body, activity); err != nil {
		return nil, qerrors.NewKind(qerrors.KindMalformedBody, err)
	}

	return activity, nil
}

// wrapInCreate wraps a bare object in a Create activity with the same
// addressing as the object.
func wrapInCreate(obj *vocab.ObjectType, actorIRI *url.URL) *vocab.ActivityType {
	return vocab.NewCreateActivity(vocab.NewObjectProperty(vocab.WithObject(obj)),
		vocab.WithContext(vocab.ContextActivityStreams),
		vocab.WithActor(actorIRI),
		vocab.WithTo(obj.To()...),
		vocab.WithCC(obj.CC()...),
		vocab.WithBto(obj.Bto()...),
		vocab.WithBcc(obj.Bcc()...),
		vocab.WithAudience(obj.Audience()...),
	)
}
