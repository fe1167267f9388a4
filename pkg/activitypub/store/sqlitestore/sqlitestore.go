/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package sqlitestore implements a persistent ActivityPub store on SQLite.
package sqlitestore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"

	// Registers the pure-Go sqlite driver.
	_ "modernc.org/sqlite"

	"github.com/quillpub/quill/internal/pkg/log"
	"github.com/quillpub/quill/pkg/activitypub/store/memstore"
	"github.com/quillpub/quill/pkg/activitypub/store/spi"
	"github.com/quillpub/quill/pkg/activitypub/store/storeutil"
	"github.com/quillpub/quill/pkg/activitypub/vocab"
)

var logger = log.New("activitypub_sqlitestore")

const schema = `
CREATE TABLE IF NOT EXISTS actors (
	iri TEXT PRIMARY KEY,
	doc TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS activities (
	iri TEXT PRIMARY KEY,
	doc TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS objects (
	iri TEXT PRIMARY KEY,
	doc TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS refs (
	ref_type TEXT NOT NULL,
	owner TEXT NOT NULL,
	iri TEXT NOT NULL,
	cursor TEXT NOT NULL,
	PRIMARY KEY (ref_type, owner, iri)
);
CREATE INDEX IF NOT EXISTS refs_owner_cursor ON refs (ref_type, owner, cursor);
`

// Store implements an ActivityPub store on a SQLite database.
type Store struct {
	serviceName string
	db          *sql.DB
}

// New opens (and if necessary creates) the SQLite database at the given path and
// returns a store backed by it.
func New(serviceName, dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database [%s]: %w", dbPath, err)
	}

	// The sqlite driver serializes writes; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000;"); err != nil {
		return nil, fmt.Errorf("set pragmas: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}

	logger.Info("Opened ActivityPub database", log.WithServiceName(serviceName), log.WithParameter(dbPath))

	return &Store{
		serviceName: serviceName,
		db:          db,
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close() //nolint:wrapcheck
}

// Ping verifies that the underlying database is reachable.
func (s *Store) Ping() error {
	return s.db.Ping() //nolint:wrapcheck
}

// PutActor stores the given actor, replacing any previous actor at the same IRI.
func (s *Store) PutActor(actor *vocab.ActorType) error {
	return s.put("actors", actor.ID().String(), actor)
}

// GetActor returns the actor for the given IRI. Returns an ErrNotFound error if the actor is not in the store.
func (s *Store) GetActor(actorIRI *url.URL) (*vocab.ActorType, error) {
	actor := &vocab.ActorType{}

	if err := s.get("actors", actorIRI.String(), actor); err != nil {
		return nil, err
	}

	return actor, nil
}

// AddActivity stores the given activity under its ID.
func (s *Store) AddActivity(activity *vocab.ActivityType) error {
	return s.put("activities", activity.ID().String(), activity)
}

// GetActivity returns the activity for the given IRI or an ErrNotFound error if it wasn't found.
func (s *Store) GetActivity(activityIRI *url.URL) (*vocab.ActivityType, error) {
	activity := &vocab.ActivityType{}

	if err := s.get("activities", activityIRI.String(), activity); err != nil {
		return nil, err
	}

	return activity, nil
}

// PutObject stores the given object, replacing any previous object at the same IRI.
func (s *Store) PutObject(obj *vocab.ObjectType) error {
	return s.put("objects", obj.ID().String(), obj)
}

// GetObject returns the object for the given IRI or an ErrNotFound error if it wasn't found.
func (s *Store) GetObject(objectIRI *url.URL) (*vocab.ObjectType, error) {
	obj := &vocab.ObjectType{}

	if err := s.get("objects", objectIRI.String(), obj); err != nil {
		return nil, err
	}

	return obj, nil
}

// AddReference adds the reference of the given type to the given object. Adding a
// reference that already exists is a no-op.
func (s *Store) AddReference(refType spi.ReferenceType, objectIRI, referenceIRI *url.URL) error {
	_, err := s.db.Exec(
		"INSERT OR IGNORE INTO refs (ref_type, owner, iri, cursor) VALUES (?, ?, ?, ?)",
		string(refType), objectIRI.String(), referenceIRI.String(), storeutil.Cursor(referenceIRI))
	if err != nil {
		return fmt.Errorf("add reference: %w", err)
	}

	return nil
}

// DeleteReference deletes the reference of the given type from the given object.
func (s *Store) DeleteReference(refType spi.ReferenceType, objectIRI, referenceIRI *url.URL) error {
	result, err := s.db.Exec(
		"DELETE FROM refs WHERE ref_type = ? AND owner = ? AND iri = ?",
		string(refType), objectIRI.String(), referenceIRI.String())
	if err != nil {
		return fmt.Errorf("delete reference: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if rows == 0 {
		return spi.ErrNotFound
	}

	return nil
}

// QueryReferences returns the object's list of references of the given type.
func (s *Store) QueryReferences(refType spi.ReferenceType, query *spi.Criteria,
	opts ...spi.QueryOpt) (spi.ReferenceIterator, error) {
	entries, err := s.refEntries(refType, query)
	if err != nil {
		return nil, err
	}

	results, totalItems := applyQueryOptions(entries, opts...)

	refs := make([]*url.URL, len(results))
	cursors := make([]string, len(results))

	for i, e := range results {
		refs[i] = e.iri
		cursors[i] = e.cursor
	}

	return memstore.NewReferenceIterator(refs, cursors, totalItems), nil
}

// QueryActivities queries the store using the provided criteria and returns a results iterator.
func (s *Store) QueryActivities(query *spi.Criteria, opts ...spi.QueryOpt) (spi.ActivityIterator, error) {
	if query.ObjectIRI != nil && query.ReferenceType != "" {
		return s.queryActivitiesByReference(query, opts...)
	}

	return s.queryAllActivities(query, opts...)
}

func (s *Store) queryActivitiesByReference(query *spi.Criteria, opts ...spi.QueryOpt) (spi.ActivityIterator, error) {
	rows, err := s.db.Query(
		"SELECT a.doc, r.cursor, r.iri FROM refs r JOIN activities a ON a.iri = r.iri "+
			"WHERE r.ref_type = ? AND r.owner = ?",
		string(query.ReferenceType), query.ObjectIRI.String())
	if err != nil {
		return nil, fmt.Errorf("query activities: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var entries []*refEntry

	for rows.Next() {
		var doc, cursor, iri string

		if err := rows.Scan(&doc, &cursor, &iri); err != nil {
			return nil, fmt.Errorf("scan activity row: %w", err)
		}

		if query.ReferenceIRI != nil && iri != query.ReferenceIRI.String() {
			continue
		}

		activity := &vocab.ActivityType{}

		if err := json.Unmarshal([]byte(doc), activity); err != nil {
			return nil, fmt.Errorf("unmarshal activity [%s]: %w", iri, err)
		}

		if len(query.Types) > 0 && !activity.Type().IsAny(query.Types...) {
			continue
		}

		iriURL, err := url.Parse(iri)
		if err != nil {
			return nil, fmt.Errorf("parse activity IRI [%s]: %w", iri, err)
		}

		entries = append(entries, &refEntry{iri: iriURL, cursor: cursor, activity: activity})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity rows: %w", err)
	}

	return newActivityIterator(entries, opts...), nil
}

func (s *Store) queryAllActivities(query *spi.Criteria, opts ...spi.QueryOpt) (spi.ActivityIterator, error) {
	rows, err := s.db.Query("SELECT doc, iri FROM activities")
	if err != nil {
		return nil, fmt.Errorf("query activities: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var entries []*refEntry

	for rows.Next() {
		var doc, iri string

		if err := rows.Scan(&doc, &iri); err != nil {
			return nil, fmt.Errorf("scan activity row: %w", err)
		}

		activity := &vocab.ActivityType{}

		if err := json.Unmarshal([]byte(doc), activity); err != nil {
			return nil, fmt.Errorf("unmarshal activity [%s]: %w", iri, err)
		}

		if len(query.Types) > 0 && !activity.Type().IsAny(query.Types...) {
			continue
		}

		iriURL, err := url.Parse(iri)
		if err != nil {
			return nil, fmt.Errorf("parse activity IRI [%s]: %w", iri, err)
		}

		entries = append(entries, &refEntry{iri: iriURL, cursor: storeutil.Cursor(iriURL), activity: activity})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity rows: %w", err)
	}

	return newActivityIterator(entries, opts...), nil
}

func (s *Store) put(table, iri string, value interface{}) error {
	doc, err := vocab.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal [%s]: %w", iri, err)
	}

	_, err = s.db.Exec("INSERT OR REPLACE INTO "+table+" (iri, doc) VALUES (?, ?)", iri, string(doc))
	if err != nil {
		return fmt.Errorf("store [%s]: %w", iri, err)
	}

	return nil
}

func (s *Store) get(table, iri string, value interface{}) error {
	var doc string

	err := s.db.QueryRow("SELECT doc FROM "+table+" WHERE iri = ?", iri).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return spi.ErrNotFound
		}

		return fmt.Errorf("retrieve [%s]: %w", iri, err)
	}

	if err := json.Unmarshal([]byte(doc), value); err != nil {
		return fmt.Errorf("unmarshal [%s]: %w", iri, err)
	}

	return nil
}

func (s *Store) refEntries(refType spi.ReferenceType, query *spi.Criteria) ([]*refEntry, error) {
	rows, err := s.db.Query("SELECT iri, cursor FROM refs WHERE ref_type = ? AND owner = ?",
		string(refType), query.ObjectIRI.String())
	if err != nil {
		return nil, fmt.Errorf("query references: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var entries []*refEntry

	for rows.Next() {
		var iri, cursor string

		if err := rows.Scan(&iri, &cursor); err != nil {
			return nil, fmt.Errorf("scan reference row: %w", err)
		}

		if query.ReferenceIRI != nil && iri != query.ReferenceIRI.String() {
			continue
		}

		iriURL, err := url.Parse(iri)
		if err != nil {
			return nil, fmt.Errorf("parse reference IRI [%s]: %w", iri, err)
		}

		entries = append(entries, &refEntry{iri: iriURL, cursor: cursor})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reference rows: %w", err)
	}

	return entries, nil
}

type refEntry struct {
	iri      *url.URL
	cursor   string
	activity *vocab.ActivityType
}

func newActivityIterator(entries []*refEntry, opts ...spi.QueryOpt) spi.ActivityIterator {
	results, totalItems := applyQueryOptions(entries, opts...)

	activities := make([]*vocab.ActivityType, len(results))
	cursors := make([]string, len(results))

	for i, e := range results {
		activities[i] = e.activity
		cursors[i] = e.cursor
	}

	return memstore.NewActivityIterator(activities, cursors, totalItems)
}

// applyQueryOptions sorts the entries by cursor, applies the max_id/min_id cursor
// bounds, and limits the results to the page size. The returned total is the number
// of entries before cursors and paging were applied.
func applyQueryOptions(entries []*refEntry, opts ...spi.QueryOpt) ([]*refEntry, int) {
	options := storeutil.GetQueryOptions(opts...)

	totalItems := len(entries)

	sort.SliceStable(entries, func(i, j int) bool {
		if options.SortOrder == spi.SortAscending {
			return entries[i].cursor < entries[j].cursor
		}

		return entries[i].cursor > entries[j].cursor
	})

	var results []*refEntry

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
