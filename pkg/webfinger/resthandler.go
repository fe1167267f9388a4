/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package webfinger implements actor discovery (RFC 7033): the
// /.well-known/webfinger endpoint maps an acct: resource to the IRI of the
// local actor's ActivityPub document.
package webfinger

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/quillpub/quill/internal/pkg/log"
	"github.com/quillpub/quill/pkg/activitypub/store/spi"
	"github.com/quillpub/quill/pkg/webfinger/model"
)

var logger = log.New("webfinger")

// WebFingerPath is the path of the WebFinger endpoint.
const WebFingerPath = "/.well-known/webfinger"

const (
	resourceParam = "resource"
	acctScheme    = "acct:"
)

// Handler implements the WebFinger endpoint for local actors.
type Handler struct {
	serviceEndpoint *url.URL
	activityStore   spi.Store
	marshal         func(v interface{}) ([]byte, error)
}

// NewHandler returns a new WebFinger REST handler.
func NewHandler(serviceEndpoint *url.URL, activityStore spi.Store) *Handler {
	return &Handler{
		serviceEndpoint: serviceEndpoint,
		activityStore:   activityStore,
		marshal:         json.Marshal,
	}
}

// Path returns the base path of the target URL for this handler.
func (h *Handler) Path() string {
	return WebFingerPath
}

// Method returns the HTTP method, which is always GET.
func (h *Handler) Method() string {
	return http.MethodGet
}

// Handler returns the handler that should be invoked when an HTTP GET is
// requested to the target endpoint. This handler must be registered with an
// HTTP server.
func (h *Handler) Handler() http.HandlerFunc {
	return h.handle
}

func (h *Handler) handle(w http.ResponseWriter, req *http.Request) {
	resource := req.URL.Query().Get(resourceParam)
	if resource == "" {
		writeStatus(w, http.StatusBadRequest)

		return
	}

	nick, host, err := parseAcct(resource)
	if err != nil {
		logger.Debug("Invalid WebFinger resource", log.WithParameter(resource), log.WithError(err))

		writeStatus(w, http.StatusBadRequest)

		return
	}

	if host != h.serviceEndpoint.Host {
		logger.Debug("WebFinger resource is not hosted by this server", log.WithParameter(resource))

		writeStatus(w, http.StatusNotFound)

		return
	}

	actorIRI := *h.serviceEndpoint
	actorIRI.Path = "/users/" + nick

	if _, err := h.activityStore.GetActor(&actorIRI); err != nil {
		if errors.Is(err, spi.ErrNotFound) {
			writeStatus(w, http.StatusNotFound)

			return
		}

		logger.Error("Error retrieving actor", log.WithActorIRI(&actorIRI), log.WithError(err))

		writeStatus(w, http.StatusInternalServerError)

		return
	}

	resp := &model.JRD{
		Subject: resource,
		Aliases: []string{actorIRI.String()},
		Links: []model.Link{
			{
				Rel:  model.RelSelf,
				Type: model.ActivityJSONType,
				Href: actorIRI.String(),
			},
		},
	}

	respBytes, err := h.marshal(resp)
	if err != nil {
		logger.Error("Error marshalling WebFinger response", log.WithError(err))

		writeStatus(w, http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", model.ContentType)
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(respBytes); err != nil {
		logger.Warn("Unable to write response", log.WithError(err))
	}
}

// parseAcct splits an 'acct:nick@host' resource into its nickname and host.
func parseAcct(resource string) (nick, host string, err error) {
	acct := strings.TrimPrefix(resource, acctScheme)

	parts := strings.Split(acct, "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid acct resource [%s]", resource)
	}

	return parts[0], parts[1], nil
}

func writeStatus(w http.ResponseWriter, status int) {
	w.WriteHeader(status)
}
