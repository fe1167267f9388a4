/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package storeutil_test

import (
	"net/url"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"

	"github.com/quillpub/quill/pkg/activitypub/store/memstore"
	"github.com/quillpub/quill/pkg/activitypub/store/spi"
	"github.com/quillpub/quill/pkg/activitypub/store/storeutil"
	"github.com/quillpub/quill/pkg/activitypub/vocab"
)

var (
	alice    = vocab.MustParseURL("https://quill.example.com/users/alice")
	bob      = vocab.MustParseURL("https://chatty.example.com/users/ben")
	endpoint = vocab.MustParseURL("https://quill.example.com")
)

func TestMintID(t *testing.T) {
	id1 := storeutil.MintID(alice, storeutil.CategoryActivities)
	id2 := storeutil.MintID(alice, storeutil.CategoryActivities)

	require.Equal(t, "quill.example.com", id1.Host)
	require.Regexp(t, `^/users/alice/activities/[0-9A-HJKMNP-TV-Z]{26}$`, id1.Path)

	// IDs are time-ordered.
	require.Less(t, id1.String(), id2.String())
}

func TestCursor(t *testing.T) {
	t.Run("ULID path segment", func(t *testing.T) {
		id := ulid.Make().String()

		cursor := storeutil.Cursor(vocab.MustParseURL("https://quill.example.com/users/alice/activities/" + id))
		require.Equal(t, id, cursor)
	})

	t.Run("non-ULID id gets a minted cursor", func(t *testing.T) {
		cursor := storeutil.Cursor(vocab.MustParseURL("https://chatty.example.com/users/ben/activities/abc-123"))
		require.Len(t, cursor, 26)
	})
}

func TestIsLocal(t *testing.T) {
	require.True(t, storeutil.IsLocal(alice, endpoint))
	require.False(t, storeutil.IsLocal(bob, endpoint))
}

func TestActorForInbox(t *testing.T) {
	actorIRI, err := storeutil.ActorForInbox(vocab.MustParseURL("https://quill.example.com/users/alice/inbox"))
	require.NoError(t, err)
	require.Equal(t, alice.String(), actorIRI.String())

	_, err = storeutil.ActorForInbox(alice)
	require.Error(t, err)
}

func TestGetQueryOptions(t *testing.T) {
	options := storeutil.GetQueryOptions()
	require.Equal(t, storeutil.DefaultPageSize, options.PageSize)
	require.Equal(t, spi.SortDescending, options.SortOrder)

	options = storeutil.GetQueryOptions(spi.WithPageSize(5), spi.WithSortOrder(spi.SortAscending),
		spi.WithMaxID("max"), spi.WithMinID("min"))
	require.Equal(t, 5, options.PageSize)
	require.Equal(t, spi.SortAscending, options.SortOrder)
	require.Equal(t, "max", options.MaxID)
	require.Equal(t, "min", options.MinID)
}

func TestAnyBlocked(t *testing.T) {
	s := memstore.New("quill")

	require.NoError(t, s.AddReference(spi.Blocked, alice, bob))

	blocked, err := storeutil.AnyBlocked(s, alice, []*url.URL{bob})
	require.NoError(t, err)
	require.True(t, blocked)

	blocked, err = storeutil.AnyBlocked(s, alice,
		[]*url.URL{vocab.MustParseURL("https://other.example.com/users/carol")})
	require.NoError(t, err)
	require.False(t, blocked)
}
