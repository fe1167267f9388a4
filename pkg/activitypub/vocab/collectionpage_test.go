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

func TestOrderedCollectionPage(t *testing.T) {
	items := []*ObjectProperty{
		NewObjectProperty(WithIRI(item1IRI)),
		NewObjectProperty(WithIRI(item2IRI)),
	}

	page := NewOrderedCollectionPage(items,
		WithContext(ContextActivityStreams),
		WithID(MustParseURL("https://alice.example.com/users/alice/outbox?page=true&page-num=2")),
		WithPartOf(outboxIRI),
		WithNext(MustParseURL("https://alice.example.com/users/alice/outbox?page=true&page-num=1")),
		WithPrev(MustParseURL("https://alice.example.com/users/alice/outbox?page=true&page-num=3")),
		WithTotalItems(19),
	)

	require.True(t, page.Type().Is(TypeOrderedCollectionPage))
	require.Equal(t, outboxIRI.String(), page.PartOf().String())
	require.Equal(t, "https://alice.example.com/users/alice/outbox?page=true&page-num=1", page.Next().String())
	require.Equal(t, "https://alice.example.com/users/alice/outbox?page=true&page-num=3", page.Prev().String())
	require.Len(t, page.Items(), 2)

	b, err := json.Marshal(page)
	require.NoError(t, err)

	const expected = `{
      "@context": "https://www.w3.org/ns/activitystreams",
      "id": "https://alice.example.com/users/alice/outbox?page=true&page-num=2",
      "type": "OrderedCollectionPage",
      "partOf": "https://alice.example.com/users/alice/outbox",
      "next": "https://alice.example.com/users/alice/outbox?page=true&page-num=1",
      "prev": "https://alice.example.com/users/alice/outbox?page=true&page-num=3",
      "totalItems": 19,
      "orderedItems": [
        "https://alice.example.com/users/alice/activities/01FXT2R5HGTJRD8XCFB7GMB7N2",
        "https://alice.example.com/users/alice/activities/01FXT2S9A7T1YCN8FRC0JVCBX4"
      ]
    }`

	requireJSONEqual(t, expected, b)

	t.Run("round trip", func(t *testing.T) {
		p := &OrderedCollectionPageType{}
		require.NoError(t, json.Unmarshal(b, p))

		require.True(t, p.Type().Is(TypeOrderedCollectionPage))
		require.Equal(t, 19, p.TotalItems())
		require.Len(t, p.Items(), 2)
		require.Equal(t, item1IRI.String(), p.Items()[0].IRI().String())
		require.Equal(t, outboxIRI.String(), p.PartOf().String())
	})
}

func TestOrderedCollectionPageWithoutNavigation(t *testing.T) {
	page := NewOrderedCollectionPage(nil,
		WithID(MustParseURL("https://alice.example.com/users/alice/outbox?page=true&page-num=0")),
		WithPartOf(outboxIRI),
	)

	require.Nil(t, page.Next())
	require.Nil(t, page.Prev())
	require.Empty(t, page.Items())
}
