/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package memstore

import (
	"net/url"

	"github.com/quillpub/quill/pkg/activitypub/store/spi"
	"github.com/quillpub/quill/pkg/activitypub/vocab"
)

type iterator struct {
	current    int
	totalItems int
	cursors    []string
}

func newIterator(cursors []string, totalItems int) *iterator {
	return &iterator{
		totalItems: totalItems,
		cursors:    cursors,
		current:    -1,
	}
}

func (it *iterator) TotalItems() (int, error) {
	return it.totalItems, nil
}

// CurrentCursor returns the ULID cursor of the item most recently returned
// by Next, or "" if Next has not yet been called.
func (it *iterator) CurrentCursor() string {
	if it.current < 0 || it.current >= len(it.cursors) {
		return ""
	}

	return it.cursors[it.current]
}

func (it *iterator) Close() error {
	return nil
}

// ActivityIterator is used to iterate over activities.
type ActivityIterator struct {
	*iterator
	results []*vocab.ActivityType
}

// NewActivityIterator creates a new ActivityIterator. The cursors slice holds the
// paging cursor of each result, in the same order as the results.
func NewActivityIterator(results []*vocab.ActivityType, cursors []string, totalItems int) *ActivityIterator {
	return &ActivityIterator{
		iterator: newIterator(cursors, totalItems),
		results:  results,
	}
}

// Next returns the next activity or an ErrNotFound error if there are no more items.
func (it *ActivityIterator) Next() (*vocab.ActivityType, error) {
	if it.current >= len(it.results)-1 {
		return nil, spi.ErrNotFound
	}

	it.current++

	return it.results[it.current], nil
}

// ReferenceIterator is used to iterate over references.
type ReferenceIterator struct {
	*iterator
	results []*url.URL
}

// NewReferenceIterator creates a new ReferenceIterator. The cursors slice holds the
// paging cursor of each result, in the same order as the results.
func NewReferenceIterator(results []*url.URL, cursors []string, totalItems int) *ReferenceIterator {
	return &ReferenceIterator{
		iterator: newIterator(cursors, totalItems),
		results:  results,
	}
}

// Next returns the next reference or an ErrNotFound error if there are no more items.
func (it *ReferenceIterator) Next() (*url.URL, error) {
	if it.current >= len(it.results)-1 {
		return nil, spi.ErrNotFound
	}

	it.current++

	return it.results[it.current], nil
}
