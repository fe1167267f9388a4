/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vocab

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

var (
	outboxIRI = MustParseURL("https://alice.example.com/users/alice/outbox")
	firstIRI  = MustParseURL("https://alice.example.com/users/alice/outbox?page=true")
	lastIRI   = MustParseURL("https://alice.example.com/users/alice/outbox?page=true&page-num=0")

	item1IRI = MustParseURL("https://alice.example.com/users/alice/activities/01FXT2R5HGTJRD8XCFB7GMB7N2")
	item2IRI = MustParseURL("https://alice.example.com/users/alice/activities/01FXT2S9A7T1YCN8FRC0JVCBX4")
)

func TestOrderedCollection(t *testing.T) {
	coll := NewOrderedCollection(nil,
		WithContext(ContextActivityStreams),
		WithID(outboxIRI),
		WithFirst(firstIRI),
		WithLast(lastIRI),
		WithTotalItems(19),
	)

	require.True(t, coll.Type().Is(TypeOrderedCollection))
	require.Equal(t, 19, coll.TotalItems())
	require.Equal(t, firstIRI.String(), coll.First().String())
	require.Equal(t, lastIRI.String(), coll.Last().String())

	b, err := json.Marshal(coll)
	require.NoError(t, err)

	const expected = `{
      "@context": "https://www.w3.org/ns/activitystreams",
      "id": "https://alice.example.com/users/alice/outbox",
      "type": "OrderedCollection",
      "first": "https://alice.example.com/users/alice/outbox?page=true",
      "last": "https://alice.example.com/users/alice/outbox?page=true&page-num=0",
      "totalItems": 19
    }`

	requireJSONEqual(t, expected, b)

	t.Run("round trip", func(t *testing.T) {
		c := &OrderedCollectionType{}
		require.NoError(t, json.Unmarshal(b, c))

		require.True(t, c.Type().Is(TypeOrderedCollection))
		require.Equal(t, 19, c.TotalItems())
		require.Equal(t, firstIRI.String(), c.First().String())
	})
}

func TestOrderedCollectionWithItems(t *testing.T) {
	items := []*ObjectProperty{
		NewObjectProperty(WithIRI(item1IRI)),
		NewObjectProperty(WithIRI(item2IRI)),
	}

	coll := NewOrderedCollection(items, WithID(outboxIRI))

	require.Equal(t, 2, coll.TotalItems())
	require.Len(t, coll.Items(), 2)
	require.Equal(t, item1IRI.String(), coll.Items()[0].IRI().String())
}

func TestCollection(t *testing.T) {
	items := []*ObjectProperty{
		NewObjectProperty(WithIRI(item1IRI)),
	}

	coll := NewCollection(items, WithID(outboxIRI))

	require.True(t, coll.Type().Is(TypeCollection))
	require.Equal(t, 1, coll.TotalItems())

	b, err := json.Marshal(coll)
	require.NoError(t, err)

	c := &CollectionType{}
	require.NoError(t, json.Unmarshal(b, c))
	require.Equal(t, 1, c.TotalItems())
	require.Len(t, c.Items(), 1)
}
