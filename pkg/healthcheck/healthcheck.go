/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package healthcheck implements the /healthcheck endpoint, which reports the
// status of the server's dependencies.
package healthcheck

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/quillpub/quill/internal/pkg/log"
	"github.com/quillpub/quill/pkg/httpserver"
)

var logger = log.New("healthcheck")

const (
	healthCheckEndpoint = "/healthcheck"

	statusOK           = "OK"
	statusUnavailable  = "unavailable"
	statusSuccess      = "success"
	statusNotConnected = "not connected"
)

type pubSub interface {
	IsConnected() bool
}

type db interface {
	Ping() error
}

// Handler implements a health check HTTP handler.
type Handler struct {
	pubSub pubSub
	db     db
}

// NewHandler returns a new health check handler. Either of the dependencies
// may be nil, in which case it is not checked.
func NewHandler(pubSub pubSub, db db) *Handler {
	return &Handler{
		pubSub: pubSub,
		db:     db,
	}
}

// Method returns the HTTP method, which is always GET.
func (h *Handler) Method() string {
	return http.MethodGet
}

// Path returns the base path of the target URL for this handler.
func (h *Handler) Path() string {
	return healthCheckEndpoint
}

// Handler returns the handler that should be invoked when an HTTP GET is
// requested to the target endpoint. This handler must be registered with an
// HTTP server.
func (h *Handler) Handler() http.HandlerFunc {
	return h.checkHealth
}

type response struct {
	MQStatus    string    `json:"mqStatus,omitempty"`
	DBStatus    string    `json:"dbStatus,omitempty"`
	Status      string    `json:"status"`
	CurrentTime time.Time `json:"currentTime"`
	Version     string    `json:"version,omitempty"`
}

func (h *Handler) checkHealth(rw http.ResponseWriter, _ *http.Request) {
	unavailable := false

	mqUnavailable, mqStatus := h.mqHealthCheck()
	if mqUnavailable {
		unavailable = true
	}

	dbUnavailable, dbStatus := h.dbHealthCheck()
	if dbUnavailable {
		unavailable = true
	}

	status := http.StatusOK
	overall := statusOK

	if unavailable {
		status = http.StatusServiceUnavailable
		overall = statusUnavailable
	}

	resp := &response{
		MQStatus:    mqStatus,
		DBStatus:    dbStatus,
		Status:      overall,
		CurrentTime: time.Now(),
		Version:     httpserver.BuildVersion,
	}

	respBytes, err := json.Marshal(resp)
	if err != nil {
		logger.Error("Error marshalling health check response", log.WithError(err))

		rw.WriteHeader(http.StatusInternalServerError)

		return
	}

	logger.Debug("Health check returning response", log.WithHTTPStatus(status), log.WithResponse(respBytes))

	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)

	if _, err := rw.Write(respBytes); err != nil {
		logger.Warn("Unable to write response", log.WithError(err))
	}
}

func (h *Handler) mqHealthCheck() (bool, string) {
	if h.pubSub == nil {
		return false, ""
	}

	if h.pubSub.IsConnected() {
		return false, statusSuccess
	}

	return true, statusNotConnected
}

func (h *Handler) dbHealthCheck() (bool, string) {
	if h.db == nil {
		return false, ""
	}

	if err := h.db.Ping(); err != nil {
		return true, err.Error()
	}

	return false, statusSuccess
}
