/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package resthandler

import (
	"net/http"
)

// PostInbox registers the inbox service's HTTP handler at the inbox endpoint.
// The handler itself lives in the inbox service, which verifies the signature
// and bridges the request into the activity pipeline.
type PostInbox struct {
	handlerFunc http.HandlerFunc
}

// NewPostInbox returns a new inbox POST REST handler that delegates to the
// given handler.
func NewPostInbox(handlerFunc http.HandlerFunc) *PostInbox {
	return &PostInbox{handlerFunc: handlerFunc}
}

// Path returns the base path of the target URL for this handler.
func (h *PostInbox) Path() string {
	return InboxPath
}

// Method returns the HTTP method, which is always POST.
func (h *PostInbox) Method() string {
	return http.MethodPost
}

// Handler returns the handler that should be invoked when an HTTP request is
// posted to an inbox endpoint. This handler must be registered with an HTTP server.
func (h *PostInbox) Handler() http.HandlerFunc {
	return h.handlerFunc
}
