/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package memstore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quillpub/quill/pkg/activitypub/store/spi"
	"github.com/quillpub/quill/pkg/activitypub/store/storeutil"
	"github.com/quillpub/quill/pkg/activitypub/vocab"
)

var (
	alice = vocab.MustParseURL("https://quill.example.com/users/alice")
	bob   = vocab.MustParseURL("https://chatty.example.com/users/ben")
	carol = vocab.MustParseURL("https://other.example.com/users/carol")
)

func TestActorStore(t *testing.T) {
	s := New("quill")

	_, err := s.GetActor(alice)
	require.ErrorIs(t, err, spi.ErrNotFound)

	actor := vocab.NewPerson(alice, vocab.WithPreferredUsername("alice"))

	require.NoError(t, s.PutActor(actor))

	stored, err := s.GetActor(alice)
	require.NoError(t, err)
	require.Equal(t, actor, stored)
}

func TestActivityStore(t *testing.T) {
	s := New("quill")

	activityIRI := storeutil.MintID(alice, storeutil.CategoryActivities)

	_, err := s.GetActivity(activityIRI)
	require.ErrorIs(t, err, spi.ErrNotFound)

	activity := vocab.NewCreateActivity(
		vocab.NewObjectProperty(vocab.WithIRI(storeutil.MintID(alice, storeutil.CategoryObjects))),
		vocab.WithID(activityIRI),
		vocab.WithActor(alice),
	)

	require.NoError(t, s.AddActivity(activity))

	stored, err := s.GetActivity(activityIRI)
	require.NoError(t, err)
	require.Equal(t, activity, stored)
}

func TestObjectStore(t *testing.T) {
	s := New("quill")

	objectIRI := storeutil.MintID(alice, storeutil.CategoryObjects)

	_, err := s.GetObject(objectIRI)
	require.ErrorIs(t, err, spi.ErrNotFound)

	obj := vocab.NewObject(vocab.WithID(objectIRI), vocab.WithType(vocab.TypeNote), vocab.WithContent("hello"))

	require.NoError(t, s.PutObject(obj))

	stored, err := s.GetObject(objectIRI)
	require.NoError(t, err)
	require.Equal(t, obj, stored)

	// A deleted object is replaced with a Tombstone at the same IRI.
	tombstone := vocab.NewTombstone(vocab.WithID(objectIRI), vocab.WithFormerType(vocab.TypeNote))

	require.NoError(t, s.PutObject(tombstone))

	stored, err = s.GetObject(objectIRI)
	require.NoError(t, err)
	require.True(t, stored.Type().Is(vocab.TypeTombstone))
}

func TestReferenceStore(t *testing.T) {
	s := New("quill")

	require.NoError(t, s.AddReference(spi.Follower, alice, bob))
	require.NoError(t, s.AddReference(spi.Follower, alice, carol))

	// Adding a duplicate reference is a no-op.
	require.NoError(t, s.AddReference(spi.Follower, alice, bob))

	it, err := s.QueryReferences(spi.Follower, spi.NewCriteria(spi.WithObjectIRI(alice)))
	require.NoError(t, err)

	refs, err := storeutil.ReadReferences(it)
	require.NoError(t, err)
	require.Len(t, refs, 2)

	t.Run("existence check", func(t *testing.T) {
		has, err := storeutil.HasReference(s, spi.Follower, alice, bob)
		require.NoError(t, err)
		require.True(t, has)

		has, err = storeutil.HasReference(s, spi.Follower, bob, alice)
		require.NoError(t, err)
		require.False(t, has)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, s.DeleteReference(spi.Follower, alice, bob))
		require.ErrorIs(t, s.DeleteReference(spi.Follower, alice, bob), spi.ErrNotFound)

		has, err := storeutil.HasReference(s, spi.Follower, alice, bob)
		require.NoError(t, err)
		require.False(t, has)
	})

	t.Run("unsupported reference type", func(t *testing.T) {
		require.Error(t, s.AddReference("INVALID", alice, bob))
		require.Error(t, s.DeleteReference("INVALID", alice, bob))

		_, err := s.QueryReferences("INVALID", spi.NewCriteria(spi.WithObjectIRI(alice)))
		require.Error(t, err)
	})
}

func TestReferencePaging(t *testing.T) {
	s := New("quill")

	const total = 7

	minted := make([]string, total)

	for i := 0; i < total; i++ {
		iri := storeutil.MintID(alice, storeutil.CategoryActivities)
		minted[i] = iri.String()

		require.NoError(t, s.AddReference(spi.Outbox, alice, iri))
	}

	t.Run("descending order with page size", func(t *testing.T) {
		it, err := s.QueryReferences(spi.Outbox, spi.NewCriteria(spi.WithObjectIRI(alice)),
			spi.WithPageSize(3))
		require.NoError(t, err)

		totalItems, err := it.TotalItems()
		require.NoError(t, err)
		require.Equal(t, total, totalItems)

		refs, err := storeutil.ReadReferences(it)
		require.NoError(t, err)
		require.Len(t, refs, 3)

		// Newest first.
		require.Equal(t, minted[total-1], refs[0].String())
		require.Equal(t, minted[total-2], refs[1].String())
		require.Equal(t, minted[total-3], refs[2].String())
	})

	t.Run("max_id cursor", func(t *testing.T) {
		it, err := s.QueryReferences(spi.Outbox, spi.NewCriteria(spi.WithObjectIRI(alice)),
			spi.WithPageSize(3), spi.WithMaxID(storeutil.Cursor(vocab.MustParseURL(minted[4]))))
		require.NoError(t, err)

		refs, err := storeutil.ReadReferences(it)
		require.NoError(t, err)
		require.Len(t, refs, 3)
		require.Equal(t, minted[3], refs[0].String())
		require.Equal(t, minted[2], refs[1].String())
		require.Equal(t, minted[1], refs[2].String())
	})

	t.Run("min_id cursor", func(t *testing.T) {
		it, err := s.QueryReferences(spi.Outbox, spi.NewCriteria(spi.WithObjectIRI(alice)),
			spi.WithMinID(storeutil.Cursor(vocab.MustParseURL(minted[4]))))
		require.NoError(t, err)

		refs, err := storeutil.ReadReferences(it)
		require.NoError(t, err)
		require.Len(t, refs, 2)
		require.Equal(t, minted[6], refs[0].String())
		require.Equal(t, minted[5], refs[1].String())
	})

	t.Run("ascending order", func(t *testing.T) {
		it, err := s.QueryReferences(spi.Outbox, spi.NewCriteria(spi.WithObjectIRI(alice)),
			spi.WithSortOrder(spi.SortAscending), spi.WithPageSize(2))
		require.NoError(t, err)

		refs, err := storeutil.ReadReferences(it)
		require.NoError(t, err)
		require.Len(t, refs, 2)
		require.Equal(t, minted[0], refs[0].String())
		require.Equal(t, minted[1], refs[1].String())
	})
}

func TestQueryActivitiesByReference(t *testing.T) {
	s := New("quill")

	follow := vocab.NewFollowActivity(
		vocab.NewObjectProperty(vocab.WithIRI(alice)),
		vocab.WithID(storeutil.MintID(bob, storeutil.CategoryActivities)),
		vocab.WithActor(bob),
	)

	create := vocab.NewCreateActivity(
		vocab.NewObjectProperty(vocab.WithIRI(storeutil.MintID(bob, storeutil.CategoryObjects))),
		vocab.WithID(storeutil.MintID(bob, storeutil.CategoryActivities)),
		vocab.WithActor(bob),
	)

	for _, a := range []*vocab.ActivityType{follow, create} {
		require.NoError(t, s.AddActivity(a))
		require.NoError(t, s.AddReference(spi.Inbox, alice, a.ID().URL()))
	}

	t.Run("all", func(t *testing.T) {
		it, err := s.QueryActivities(spi.NewCriteria(
			spi.WithObjectIRI(alice), spi.WithReferenceType(spi.Inbox)))
		require.NoError(t, err)

		totalItems, err := it.TotalItems()
		require.NoError(t, err)
		require.Equal(t, 2, totalItems)

		// Newest first.
		a, err := it.Next()
		require.NoError(t, err)
		require.Equal(t, create.ID().String(), a.ID().String())

		a, err = it.Next()
		require.NoError(t, err)
		require.Equal(t, follow.ID().String(), a.ID().String())

		_, err = it.Next()
		require.ErrorIs(t, err, spi.ErrNotFound)
		require.NoError(t, it.Close())
	})

	t.Run("filtered by type", func(t *testing.T) {
		it, err := s.QueryActivities(spi.NewCriteria(
			spi.WithObjectIRI(alice), spi.WithReferenceType(spi.Inbox), spi.WithType(vocab.TypeFollow)))
		require.NoError(t, err)

		totalItems, err := it.TotalItems()
		require.NoError(t, err)
		require.Equal(t, 1, totalItems)

		a, err := it.Next()
		require.NoError(t, err)
		require.Equal(t, follow.ID().String(), a.ID().String())
	})

	t.Run("by type across the store", func(t *testing.T) {
		it, err := s.QueryActivities(spi.NewCriteria(spi.WithType(vocab.TypeCreate)))
		require.NoError(t, err)

		a, err := it.Next()
		require.NoError(t, err)
		require.Equal(t, create.ID().String(), a.ID().String())
	})
}
