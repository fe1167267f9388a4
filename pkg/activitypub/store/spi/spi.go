/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package spi

import (
	"net/url"

	"github.com/quillpub/quill/pkg/activitypub/vocab"
	qerrors "github.com/quillpub/quill/pkg/errors"
)

// ErrNotFound is returned from various store functions when a requested
// object is not found in the store.
var ErrNotFound = qerrors.ErrNotFound

// ReferenceType defines the type of a reference set, e.g. inbox, follower.
type ReferenceType string

const (
	// Inbox holds the activities that were received by an actor.
	Inbox ReferenceType = "INBOX"
	// Outbox holds the activities that were posted by an actor.
	Outbox ReferenceType = "OUTBOX"
	// PublicOutbox holds the activities posted by an actor that are addressed to the public audience.
	PublicOutbox ReferenceType = "PUBLIC_OUTBOX"
	// Follower indicates that the reference is an actor that's following the local actor.
	Follower ReferenceType = "FOLLOWER"
	// Following indicates that the reference is an actor that the local actor is following.
	Following ReferenceType = "FOLLOWING"
	// FollowRequest indicates that the reference is an actor to which the local actor has sent
	// a Follow that has been neither accepted nor rejected.
	FollowRequest ReferenceType = "FOLLOW_REQUEST"
	// Liked holds the activities that an actor has liked.
	Liked ReferenceType = "LIKED"
	// Like holds the Like activities that were received for an object.
	Like ReferenceType = "LIKE"
	// Share holds the Announce activities that were received for an object.
	Share ReferenceType = "SHARE"
	// Featured holds the objects that an actor has pinned.
	Featured ReferenceType = "FEATURED"
	// Blocked indicates that the reference is an actor that the local actor has blocked.
	Blocked ReferenceType = "BLOCKED"
)

// Store defines the functions of an ActivityPub store.
type Store interface {
	// PutActor stores the given actor, replacing any previous actor at the same IRI.
	PutActor(actor *vocab.ActorType) error
	// GetActor returns the actor for the given IRI. Returns an ErrNotFound error if the actor is not in the store.
	GetActor(actorIRI *url.URL) (*vocab.ActorType, error)
	// AddActivity stores the given activity under its ID.
	AddActivity(activity *vocab.ActivityType) error
	// GetActivity returns the activity for the given IRI or an ErrNotFound error if it wasn't found.
	GetActivity(activityIRI *url.URL) (*vocab.ActivityType, error)
	// QueryActivities queries the store using the provided criteria and returns a results iterator.
	QueryActivities(query *Criteria, opts ...QueryOpt) (ActivityIterator, error)
	// PutObject stores the given object, replacing any previous object at the same IRI.
	PutObject(obj *vocab.ObjectType) error
	// GetObject returns the object for the given IRI or an ErrNotFound error if it wasn't found.
	GetObject(objectIRI *url.URL) (*vocab.ObjectType, error)
	// AddReference adds the reference of the given type to the given object. Adding a reference
	// that already exists is a no-op.
	AddReference(refType ReferenceType, objectIRI, referenceIRI *url.URL) error
	// DeleteReference deletes the reference of the given type from the given object.
	// Returns an ErrNotFound error if the reference doesn't exist.
	DeleteReference(refType ReferenceType, objectIRI, referenceIRI *url.URL) error
	// QueryReferences returns the objects's list of references of the given type.
	QueryReferences(refType ReferenceType, query *Criteria, opts ...QueryOpt) (ReferenceIterator, error)
}

// Criteria holds the search criteria for a query.
type Criteria struct {
	// Types filters activities by type.
	Types []vocab.Type
	// ObjectIRI is the owner of the reference set being queried.
	ObjectIRI *url.URL
	// ReferenceType is the reference set from which activities are queried.
	ReferenceType ReferenceType
	// ReferenceIRI restricts the query to a single reference (existence check).
	ReferenceIRI *url.URL
}

// CriteriaOpt sets a Criteria option.
type CriteriaOpt func(q *Criteria)

// NewCriteria returns new Criteria which may be used to perform a query.
func NewCriteria(opts ...CriteriaOpt) *Criteria {
	q := &Criteria{}

	for _, opt := range opts {
		opt(q)
	}

	return q
}

// WithType sets the activity types on the criteria.
func WithType(t ...vocab.Type) CriteriaOpt {
	return func(query *Criteria) {
		query.Types = append(query.Types, t...)
	}
}

// WithObjectIRI sets the object IRI (the owner of the reference set) on the criteria.
func WithObjectIRI(objectIRI *url.URL) CriteriaOpt {
	return func(query *Criteria) {
		query.ObjectIRI = objectIRI
	}
}

// WithReferenceType sets the reference set from which activities are queried.
func WithReferenceType(refType ReferenceType) CriteriaOpt {
	return func(query *Criteria) {
		query.ReferenceType = refType
	}
}

// WithReferenceIRI restricts the query to the given reference.
func WithReferenceIRI(referenceIRI *url.URL) CriteriaOpt {
	return func(query *Criteria) {
		query.ReferenceIRI = referenceIRI
	}
}

// SortOrder specifies the order in which results are sorted.
type SortOrder string

const (
	// SortAscending indicates that the results are sorted in ascending (oldest first) order.
	SortAscending SortOrder = "asc"
	// SortDescending indicates that the results are sorted in descending (newest first) order.
	SortDescending SortOrder = "desc"
)

// QueryOptions holds the options for a query. Entries are ordered by their ULID
// cursor, newest first by default.
type QueryOptions struct {
	PageSize  int
	SortOrder SortOrder
	// MaxID restricts the results to entries with a cursor strictly less than the given ULID.
	MaxID string
	// MinID restricts the results to entries with a cursor strictly greater than the given ULID.
	MinID string
}

// QueryOpt sets a query option.
type QueryOpt func(options *QueryOptions)

// WithPageSize sets the maximum number of results to return.
func WithPageSize(pageSize int) QueryOpt {
	return func(options *QueryOptions) {
		options.PageSize = pageSize
	}
}

// WithSortOrder sets the sort order of the results.
func WithSortOrder(sortOrder SortOrder) QueryOpt {
	return func(options *QueryOptions) {
		options.SortOrder = sortOrder
	}
}

// WithMaxID restricts the results to entries older than the given ULID cursor.
func WithMaxID(maxID string) QueryOpt {
	return func(options *QueryOptions) {
		options.MaxID = maxID
	}
}

// WithMinID restricts the results to entries newer than the given ULID cursor.
func WithMinID(minID string) QueryOpt {
	return func(options *QueryOptions) {
		options.MinID = minID
	}
}

// ActivityIterator defines the query results iterator for activity queries.
type ActivityIterator interface {
	// Next returns the next activity or an ErrNotFound error if there are no more items.
	Next() (*vocab.ActivityType, error)
	// TotalItems returns the total number of items that match the criteria, regardless
	// of the page size and cursors.
	TotalItems() (int, error)
	// CurrentCursor returns the ULID cursor of the item most recently returned by Next,
	// or "" if Next has not yet been called.
	CurrentCursor() string
	// Close closes the iterator.
	Close() error
}

// ReferenceIterator defines the query results iterator for reference queries.
type ReferenceIterator interface {
	// Next returns the next reference or an ErrNotFound error if there are no more items.
	Next() (*url.URL, error)
	// TotalItems returns the total number of items that match the criteria, regardless
	// of the page size and cursors.
	TotalItems() (int, error)
	// CurrentCursor returns the ULID cursor of the item most recently returned by Next,
	// or "" if Next has not yet been called.
	CurrentCursor() string
	// Close closes the iterator.
	Close() error
}
