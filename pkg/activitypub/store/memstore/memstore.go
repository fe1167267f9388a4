/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package memstore

import (
	"fmt"
	"net/url"
	"sort"
	"sync"

	"github.com/quillpub/quill/internal/pkg/log"
	"github.com/quillpub/quill/pkg/activitypub/store/spi"
	"github.com/quillpub/quill/pkg/activitypub/store/storeutil"
	"github.com/quillpub/quill/pkg/activitypub/vocab"
)

var logger = log.New("activitypub_memstore")

// Store implements an in-memory ActivityPub store.
type Store struct {
	serviceName     string
	activityStore   *activityStore
	objectStore     map[string]*vocab.ObjectType
	actorStore      map[string]*vocab.ActorType
	referenceStores map[spi.ReferenceType]*referenceStore
	mutex           sync.RWMutex
}

// New returns a new in-memory ActivityPub store.
func New(serviceName string) *Store {
	return &Store{
		serviceName:   serviceName,
		activityStore: newActivityStore(),
		objectStore:   make(map[string]*vocab.ObjectType),
		actorStore:    make(map[string]*vocab.ActorType),
		referenceStores: map[spi.ReferenceType]*referenceStore{
			spi.Inbox:         newReferenceStore(),
			spi.Outbox:        newReferenceStore(),
			spi.PublicOutbox:  newReferenceStore(),
			spi.Follower:      newReferenceStore(),
			spi.Following:     newReferenceStore(),
			spi.FollowRequest: newReferenceStore(),
			spi.Liked:         newReferenceStore(),
			spi.Like:          newReferenceStore(),
			spi.Share:         newReferenceStore(),
			spi.Featured:      newReferenceStore(),
			spi.Blocked:       newReferenceStore(),
		},
	}
}

// PutActor stores the given actor.
func (s *Store) PutActor(actor *vocab.ActorType) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	logger.Debug("Storing actor", log.WithServiceName(s.serviceName), log.WithActorIRI(actor.ID()))

	s.actorStore[actor.ID().String()] = actor

	return nil
}

// GetActor returns the actor for the given IRI. Returns an ErrNotFound error if the actor is not in the store.
func (s *Store) GetActor(iri *url.URL) (*vocab.ActorType, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	a, ok := s.actorStore[iri.String()]
	if !ok {
		return nil, spi.ErrNotFound
	}

	return a, nil
}

// AddActivity stores the given activity under its ID.
func (s *Store) AddActivity(activity *vocab.ActivityType) error {
	logger.Debug("Storing activity", log.WithServiceName(s.serviceName),
		log.WithActivityType(activity.Type().String()), log.WithActivityID(activity.ID()))

	return s.activityStore.add(activity)
}

// GetActivity returns the activity for the given IRI or an ErrNotFound error if it wasn't found.
func (s *Store) GetActivity(activityIRI *url.URL) (*vocab.ActivityType, error) {
	return s.activityStore.get(activityIRI.String())
}

// QueryActivities queries the store using the provided criteria and returns a results iterator.
func (s *Store) QueryActivities(query *spi.Criteria, opts ...spi.QueryOpt) (spi.ActivityIterator, error) {
	logger.Debug("Querying activities", log.WithServiceName(s.serviceName), log.WithQuery(query))

	if query.ObjectIRI != nil && query.ReferenceType != "" {
		refStore, ok := s.referenceStores[query.ReferenceType]
		if !ok {
			return nil, fmt.Errorf("unsupported reference type %s", query.ReferenceType)
		}

		return s.activityStore.queryByReference(refStore, query, opts...)
	}

	return s.activityStore.query(query, opts...)
}

// PutObject stores the given object, replacing any previous object at the same IRI.
func (s *Store) PutObject(obj *vocab.ObjectType) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	logger.Debug("Storing object", log.WithServiceName(s.serviceName), log.WithObjectIRI(obj.ID().URL()))

	s.objectStore[obj.ID().String()] = obj

	return nil
}

// GetObject returns the object for the given IRI or an ErrNotFound error if it wasn't found.
func (s *Store) GetObject(objectIRI *url.URL) (*vocab.ObjectType, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	o, ok := s.objectStore[objectIRI.String()]
	if !ok {
		return nil, spi.ErrNotFound
	}

	return o, nil
}

// AddReference adds the reference of the given type to the given object. Adding a
// reference that already exists is a no-op.
func (s *Store) AddReference(refType spi.ReferenceType, objectIRI, referenceIRI *url.URL) error {
	logger.Debug("Adding reference", log.WithServiceName(s.serviceName), log.WithReferenceType(string(refType)),
		log.WithObjectIRI(objectIRI), log.WithReferenceIRI(referenceIRI))

	refStore, ok := s.referenceStores[refType]
	if !ok {
		return fmt.Errorf("unsupported reference type %s", refType)
	}

	return refStore.add(objectIRI, referenceIRI)
}

// DeleteReference deletes the reference of the given type from the given object.
func (s *Store) DeleteReference(refType spi.ReferenceType, objectIRI, referenceIRI *url.URL) error {
	logger.Debug("Deleting reference", log.WithServiceName(s.serviceName), log.WithReferenceType(string(refType)),
		log.WithObjectIRI(objectIRI), log.WithReferenceIRI(referenceIRI))

	refStore, ok := s.referenceStores[refType]
	if !ok {
		return fmt.Errorf("unsupported reference type %s", refType)
	}

	return refStore.delete(objectIRI, referenceIRI)
}

// QueryReferences returns the object's list of references of the given type.
func (s *Store) QueryReferences(refType spi.ReferenceType, query *spi.Criteria,
	opts ...spi.QueryOpt) (spi.ReferenceIterator, error) {
	refStore, ok := s.referenceStores[refType]
	if !ok {
		return nil, fmt.Errorf("unsupported reference type %s", refType)
	}

	return refStore.query(query, opts...), nil
}

type activityStore struct {
	mutex        sync.RWMutex
	activityByID map[string]*vocab.ActivityType
}

func newActivityStore() *activityStore {
	return &activityStore{
		activityByID: make(map[string]*vocab.ActivityType),
	}
}

func (s *activityStore) add(activity *vocab.ActivityType) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.activityByID[activity.ID().String()] = activity

	return nil
}

func (s *activityStore) get(activityID string) (*vocab.ActivityType, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	a, ok := s.activityByID[activityID]
	if !ok {
		return nil, spi.ErrNotFound
	}

	return a, nil
}

func (s *activityStore) query(query *spi.Criteria, opts ...spi.QueryOpt) (spi.ActivityIterator, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var entries []*entry

	for _, a := range s.activityByID {
		if matchesTypes(a, query.Types) {
			entries = append(entries, &entry{
				iri:      a.ID().URL(),
				cursor:   storeutil.Cursor(a.ID().URL()),
				activity: a,
			})
		}
	}

	results, totalItems := applyQueryOptions(entries, opts...)

	return NewActivityIterator(activities(results), cursors(results), totalItems), nil
}

func (s *activityStore) queryByReference(refStore *referenceStore, query *spi.Criteria,
	opts ...spi.QueryOpt) (spi.ActivityIterator, error) {
	refEntries := refStore.entries(query)

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var entries []*entry

	for _, ref := range refEntries {
		a, ok := s.activityByID[ref.iri.String()]
		if !ok {
			logger.Warn("Activity referenced in collection not found in activity store",
				log.WithActivityID(ref.iri))

			continue
		}

		if matchesTypes(a, query.Types) {
			entries = append(entries, &entry{iri: ref.iri, cursor: ref.cursor, activity: a})
		}
	}

	results, totalItems := applyQueryOptions(entries, opts...)

	return NewActivityIterator(activities(results), cursors(results), totalItems), nil
}

func matchesTypes(a *vocab.ActivityType, types []vocab.Type) bool {
	return len(types) == 0 || a.Type().IsAny(types...)
}

type entry struct {
	iri      *url.URL
	cursor   string
	activity *vocab.ActivityType
}

func activities(entries []*entry) []*vocab.ActivityType {
	result := make([]*vocab.ActivityType, len(entries))

	for i, e := range entries {
		result[i] = e.activity
	}

	return result
}

func iris(entries []*entry) []*url.URL {
	result := make([]*url.URL, len(entries))

	for i, e := range entries {
		result[i] = e.iri
	}

	return result
}

func cursors(entries []*entry) []string {
	result := make([]string, len(entries))

	for i, e := range entries {
		result[i] = e.cursor
	}

	return result
}

// applyQueryOptions sorts the entries by cursor, applies the max_id/min_id cursor
// bounds, and limits the results to the page size. The returned total is the number
// of entries before cursors and paging were applied.
func applyQueryOptions(entries []*entry, opts ...spi.QueryOpt) ([]*entry, int) {
	options := storeutil.GetQueryOptions(opts...)

	totalItems := len(entries)

	sort.SliceStable(entries, func(i, j int) bool {
		if options.SortOrder == spi.SortAscending {
			return entries[i].cursor < entries[j].cursor
		}

		return entries[i].cursor > entries[j].cursor
	})

	var results []*entry

	for _, e := range entries {
		if options.MaxID != "" && e.cursor >= options.MaxID {
			continue
		}

		if options.MinID != "" && e.cursor <= options.MinID {
			continue
		}

		results = append(results, e)

		if options.PageSize > 0 && len(results) == options.PageSize {
			break
		}
	}

	return results, totalItems
}

type referenceStore struct {
	entriesByOwner map[string][]*entry
	mutex          sync.RWMutex
}

func newReferenceStore() *referenceStore {
	return &referenceStore{
		entriesByOwner: make(map[string][]*entry),
	}
}

func (s *referenceStore) add(owner, iri *url.URL) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	ownerID := owner.String()

	for _, e := range s.entriesByOwner[ownerID] {
		if e.iri.String() == iri.String() {
			return nil
		}
	}

	s.entriesByOwner[ownerID] = append(s.entriesByOwner[ownerID], &entry{
		iri:    iri,
		cursor: storeutil.Cursor(iri),
	})

	return nil
}

func (s *referenceStore) delete(owner, iri *url.URL) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	entriesForOwner := s.entriesByOwner[owner.String()]

	for i, e := range entriesForOwner {
		if e.iri.String() == iri.String() {
			s.entriesByOwner[owner.String()] = append(entriesForOwner[0:i], entriesForOwner[i+1:]...)

			return nil
		}
	}

	return spi.ErrNotFound
}

func (s *referenceStore) entries(query *spi.Criteria) []*entry {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var results []*entry

	for _, e := range s.entriesByOwner[query.ObjectIRI.String()] {
		if query.ReferenceIRI != nil && e.iri.String() != query.ReferenceIRI.String() {
			continue
		}

		results = append(results, e)
	}

	return results
}

func (s *referenceStore) query(query *spi.Criteria, opts ...spi.QueryOpt) spi.ReferenceIterator {
	results, totalItems := applyQueryOptions(s.entries(query), opts...)

	return NewReferenceIterator(iris(results), cursors(results), totalItems)
}
