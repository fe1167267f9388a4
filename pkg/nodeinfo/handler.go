/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package nodeinfo

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/quillpub/quill/internal/pkg/log"
)

// WellKnownNodeInfoPath is the path of the NodeInfo discovery document.
const WellKnownNodeInfoPath = "/.well-known/nodeinfo"

type nodeInfoRetriever interface {
	GetNodeInfo(version Version) *NodeInfo
}

// Handler implements the /nodeinfo/{version} REST endpoint.
type Handler struct {
	version     Version
	retriever   nodeInfoRetriever
	contentType string
	marshal     func(v interface{}) ([]byte, error)
}

// NewHandler returns the /nodeinfo/{version} REST handler.
func NewHandler(version Version, retriever nodeInfoRetriever) *Handler {
	return &Handler{
		version:   version,
		retriever: retriever,
		contentType: fmt.Sprintf(`application/json; profile="http://nodeinfo.diaspora.software/ns/schema/%s#"`,
			version),
		marshal: json.Marshal,
	}
}

// Path returns the HTTP REST endpoint for the NodeInfo handler.
func (h *Handler) Path() string {
	return fmt.Sprintf("/nodeinfo/%s", h.version)
}

// Method returns the HTTP REST method for the NodeInfo handler.
func (h *Handler) Method() string {
	return http.MethodGet
}

// Handler returns the HTTP REST handle for the NodeInfo handler.
func (h *Handler) Handler() http.HandlerFunc {
	return h.handle
}

func (h *Handler) handle(w http.ResponseWriter, _ *http.Request) {
	nodeInfoBytes, err := h.marshal(h.retriever.GetNodeInfo(h.version))
	if err != nil {
		logger.Error("Error marshalling node info", log.WithError(err))

		w.WriteHeader(http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", h.contentType)
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(nodeInfoBytes); err != nil {
		logger.Warn("Unable to write response", log.WithError(err))
	}
}

// WellKnownHandler implements the /.well-known/nodeinfo REST endpoint, which
// points clients at the versioned NodeInfo documents.
type WellKnownHandler struct {
	respBytes []byte
}

type wellKnownLink struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

type wellKnownResponse struct {
	Links []wellKnownLink `json:"links"`
}

// NewWellKnownHandler returns the /.well-known/nodeinfo REST handler.
func NewWellKnownHandler(serviceEndpoint *url.URL, versions ...Version) (*WellKnownHandler, error) {
	resp := &wellKnownResponse{}

	for _, version := range versions {
		resp.Links = append(resp.Links, wellKnownLink{
			Rel:  fmt.Sprintf("http://nodeinfo.diaspora.software/ns/schema/%s", version),
			Href: fmt.Sprintf("%s/nodeinfo/%s", serviceEndpoint, version),
		})
	}

	respBytes, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("marshal NodeInfo discovery document: %w", err)
	}

	return &WellKnownHandler{respBytes: respBytes}, nil
}

// Path returns the HTTP REST endpoint for the NodeInfo discovery handler.
func (h *WellKnownHandler) Path() string {
	return WellKnownNodeInfoPath
}

// Method returns the HTTP REST method for the NodeInfo discovery handler.
func (h *WellKnownHandler) Method() string {
	return http.MethodGet
}

// Handler returns the HTTP REST handle for the NodeInfo discovery handler.
func (h *WellKnownHandler) Handler() http.HandlerFunc {
	return h.handle
}

func (h *WellKnownHandler) handle(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(h.respBytes); err != nil {
		logger.Warn("Unable to write response", log.WithError(err))
	}
}
