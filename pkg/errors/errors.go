/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	transientType = &transient{} //nolint:gochecknoglobals

	invalidRequestType = &badRequest{} //nolint:gochecknoglobals

	// ErrNotFound is used to indicate that content at a given IRI could not be found.
	ErrNotFound = errors.New("not found")
)

// Kind classifies a protocol failure so that the REST boundary can map it to
// an HTTP status without inspecting error strings.
type Kind string

// Protocol error kinds.
const (
	KindMalformedBody        Kind = "malformed_body"
	KindUnsupportedMediaType Kind = "unsupported_media_type"
	KindUnauthenticated      Kind = "unauthenticated"
	KindActorSpoofed         Kind = "actor_spoofed"
	KindObjectSpoofed        Kind = "object_spoofed"
	KindNotFound             Kind = "not_found"
	KindGone                 Kind = "gone"
	KindBlocked              Kind = "blocked"
	KindDuplicate            Kind = "duplicate"
	KindUndoTypeNotSupported Kind = "undo_type_not_supported"
	KindTypeNotSupported     Kind = "type_not_supported"
	KindDeliveryFailed       Kind = "delivery_failed"
)

// HTTPStatus returns the HTTP response status for the kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindUnsupportedMediaType:
		return http.StatusUnsupportedMediaType
	case KindMalformedBody, KindUndoTypeNotSupported, KindTypeNotSupported:
		return http.StatusBadRequest
	case KindUnauthenticated, KindActorSpoofed:
		return http.StatusUnauthorized
	case KindObjectSpoofed:
		return http.StatusUnprocessableEntity
	case KindNotFound:
		return http.StatusNotFound
	case KindGone:
		return http.StatusGone
	case KindBlocked, KindDuplicate:
		// Blocked and duplicate deliveries are acknowledged without processing
		// so that the sender does not retry.
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

// NewKind returns an error of the given kind that wraps the given error.
func NewKind(kind Kind, err error) error {
	return &kindError{kind: kind, err: err}
}

// NewKindf returns an error of the given kind with a formatted message.
func NewKindf(kind Kind, format string, a ...interface{}) error {
	return &kindError{kind: kind, err: fmt.Errorf(format, a...)}
}

// KindOf returns the kind of the given error and true if the error (or an
// error in its chain) carries a kind.
func KindOf(err error) (Kind, bool) {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind, true
	}

	return "", false
}

// IsKind returns true if the given error is of the given kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)

	return ok && k == kind
}

// HTTPStatusOf returns the HTTP response status for the given error: the status
// of its kind if it carries one, 400 for a 'bad request' error, and 500 otherwise.
func HTTPStatusOf(err error) int {
	if k, ok := KindOf(err); ok {
		return k.HTTPStatus()
	}

	if IsBadRequest(err) {
		return http.StatusBadRequest
	}

	return http.StatusInternalServerError
}

// NewTransient returns a transient error that wraps the given error in order to indicate to the caller that a retry may
// resolve the problem, whereas a non-transient (persistent) error will always fail with the same outcome if retried.
func NewTransient(err error) error {
	return &transient{err: err}
}

// NewTransientf returns a transient error in order to indicate to the caller that a retry may resolve the problem,
// whereas a non-transient (persistent) error will always fail with the same outcome if retried.
func NewTransientf(format string, a ...interface{}) error {
	return &transient{err: fmt.Errorf(format, a...)}
}

// IsTransient returns true if the given error is a 'transient' error.
func IsTransient(err error) bool {
	return errors.As(err, &transientType)
}

// NewBadRequest returns a 'bad request' error that wraps the given error in order to indicate to the caller that
// the request was invalid.
func NewBadRequest(err error) error {
	return &badRequest{err: err}
}

// NewBadRequestf returns a 'bad request' error in order to indicate to the caller that the request was invalid.
func NewBadRequestf(format string, a ...interface{}) error {
	return &badRequest{err: fmt.Errorf(format, a...)}
}

// IsBadRequest returns true if the given error is a 'bad request' error.
func IsBadRequest(err error) bool {
	return errors.As(err, &invalidRequestType)
}

type transient struct {
	err error
}

func (e *transient) Error() string {
	return e.err.Error()
}

func (e *transient) Unwrap() error {
	return e.err
}

type badRequest struct {
	err error
}

func (e *badRequest) Error() string {
	return e.err.Error()
}

func (e *badRequest) Unwrap() error {
	return e.err
}

type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string {
	return e.err.Error()
}

func (e *kindError) Unwrap() error {
	return e.err
}
