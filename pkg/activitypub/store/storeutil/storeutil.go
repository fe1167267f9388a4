/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package storeutil

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/quillpub/quill/pkg/activitypub/store/spi"
)

// DefaultPageSize is the default number of results returned on a collection page.
const DefaultPageSize = 30

// CategoryActivities is the ID category for activities.
const CategoryActivities = "activities"

// CategoryObjects is the ID category for objects.
const CategoryObjects = "objects"

// GetQueryOptions populates and returns the QueryOptions struct with the given options.
func GetQueryOptions(opts ...spi.QueryOpt) *spi.QueryOptions {
	options := &spi.QueryOptions{
		PageSize:  DefaultPageSize,
		SortOrder: spi.SortDescending,
	}

	for _, opt := range opts {
		opt(options)
	}

	return options
}

// MintID mints a new IRI for the given owner and category, e.g.
// https://host/users/alice/activities/01HV4Q2W5R2M2B6Y8A0V8K4N5T. The ULID path
// segment orders minted IRIs by creation time.
func MintID(ownerIRI *url.URL, category string) *url.URL {
	id := *ownerIRI
	id.Path = path.Join(id.Path, category, ulid.Make().String())

	return &id
}

// Cursor returns the paging cursor for the given IRI: the ULID path segment if the
// IRI carries one, otherwise a freshly minted ULID. Remote activity IDs generally
// don't contain a ULID, so their entries are ordered by time of arrival.
func Cursor(iri *url.URL) string {
	segment := path.Base(iri.Path)

	if id, err := ulid.Parse(segment); err == nil {
		return id.String()
	}

	return ulid.Make().String()
}

// IsLocal returns true if the given IRI is hosted at the given service endpoint.
func IsLocal(iri, serviceEndpoint *url.URL) bool {
	return iri.Host == serviceEndpoint.Host
}

// ActorForInbox returns the actor IRI that owns the given inbox IRI. An actor's
// inbox is always at {actorIRI}/inbox.
func ActorForInbox(inboxIRI *url.URL) (*url.URL, error) {
	if path.Base(inboxIRI.Path) != "inbox" {
		return nil, fmt.Errorf("not an inbox IRI: %s", inboxIRI)
	}

	actorIRI := *inboxIRI
	actorIRI.Path = strings.TrimSuffix(path.Dir(inboxIRI.Path), "/")

	return &actorIRI, nil
}

// HasReference returns true if the reference set of the given type owned by objectIRI
// contains referenceIRI.
func HasReference(s spi.Store, refType spi.ReferenceType, objectIRI, referenceIRI *url.URL) (bool, error) {
	it, err := s.QueryReferences(refType,
		spi.NewCriteria(spi.WithObjectIRI(objectIRI), spi.WithReferenceIRI(referenceIRI)))
	if err != nil {
		return false, fmt.Errorf("query references: %w", err)
	}

	defer func() {
		_ = it.Close()
	}()

	_, err = it.Next()
	if err != nil {
		if errors.Is(err, spi.ErrNotFound) {
			return false, nil
		}

		return false, fmt.Errorf("next reference: %w", err)
	}

	return true, nil
}

// AnyBlocked returns true if any of the given IRIs appear in the owner's blocked list.
func AnyBlocked(s spi.Store, ownerIRI *url.URL, iris []*url.URL) (bool, error) {
	for _, iri := range iris {
		blocked, err := HasReference(s, spi.Blocked, ownerIRI, iri)
		if err != nil {
			return false, err
		}

		if blocked {
			return true, nil
		}
	}

	return false, nil
}

// ReadReferences reads all references from the given iterator.
func ReadReferences(it spi.ReferenceIterator) ([]*url.URL, error) {
	var refs []*url.URL

	for {
		ref, err := it.Next()
		if err != nil {
			if errors.Is(err, spi.ErrNotFound) {
				break
			}

			return nil, fmt.Errorf("next reference: %w", err)
		}

		refs = append(refs, ref)
	}

	return refs, nil
}
