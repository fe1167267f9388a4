/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package service

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quillpub/quill/pkg/activitypub/resthandler"
	"github.com/quillpub/quill/pkg/activitypub/service/mempubsub"
	"github.com/quillpub/quill/pkg/activitypub/service/mocks"
	"github.com/quillpub/quill/pkg/activitypub/service/spi"
	"github.com/quillpub/quill/pkg/activitypub/store/memstore"
	store "github.com/quillpub/quill/pkg/activitypub/store/spi"
	"github.com/quillpub/quill/pkg/activitypub/store/storeutil"
	"github.com/quillpub/quill/pkg/activitypub/vocab"
	"github.com/quillpub/quill/pkg/httpserver"
	"github.com/quillpub/quill/pkg/internal/testutil"
	"github.com/quillpub/quill/pkg/keystore"
)

// federatedServer is a complete server instance: an activity store, a key store,
// the ActivityPub service, and an HTTP server exposing the REST endpoints.
type federatedServer struct {
	endpoint      *url.URL
	activityStore store.Store
	keyStore      *keystore.KeyStore
	service       *Service
	httpServer    *httpserver.Server
}

func newFederatedServer(t *testing.T, addr string) *federatedServer {
	t.Helper()

	endpoint := testutil.MustParseURL("http://" + addr)

	activityStore := memstore.New(endpoint.Host)
	keyStore := keystore.New()

	svc, err := New(
		&Config{
			ServiceName:     endpoint.Host,
			ServiceEndpoint: endpoint,
		},
		activityStore, mempubsub.New(endpoint.Host, nil), keyStore, &mocks.MetricsProvider{},
		spi.WithOnFollow(func(*vocab.ActivityType, *vocab.ActorType) spi.FollowPolicy {
			return spi.FollowPolicyAutomaticallyAccept
		}),
	)
	require.NoError(t, err)

	restCfg := &resthandler.Config{
		ServiceEndpoint: endpoint,
		PageSize:        10,
	}

	httpServer := httpserver.New(addr, "", "", time.Second, time.Second, nil,
		resthandler.NewActor(restCfg, activityStore),
		resthandler.NewFollowers(restCfg, activityStore),
		resthandler.NewFollowing(restCfg, activityStore),
		resthandler.NewPostInbox(svc.InboxHTTPHandler()),
	)

	s := &federatedServer{
		endpoint:      endpoint,
		activityStore: activityStore,
		keyStore:      keyStore,
		service:       svc,
		httpServer:    httpServer,
	}

	svc.Start()
	require.NoError(t, httpServer.Start())

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		require.NoError(t, httpServer.Stop(ctx))
		svc.Stop()
	})

	return s
}

// createUser provisions a local actor whose public key is backed by the server's
// key store, so that its outgoing requests can be verified by other servers.
func (s *federatedServer) createUser(t *testing.T, nick string) *vocab.ActorType {
	t.Helper()

	actorIRI := testutil.NewMockID(s.endpoint, "/users/"+nick)

	publicKeyPem, err := s.keyStore.PublicKeyPEM(actorIRI)
	require.NoError(t, err)

	actor := vocab.NewPerson(actorIRI,
		vocab.WithContext(vocab.ContextActivityStreams, vocab.ContextSecurity),
		vocab.WithPreferredUsername(nick),
		vocab.WithPublicKey(vocab.NewPublicKey(keystore.KeyID(actorIRI), actorIRI, publicKeyPem)),
		vocab.WithInbox(testutil.NewMockID(actorIRI, "/inbox")),
		vocab.WithOutbox(testutil.NewMockID(actorIRI, "/outbox")),
		vocab.WithFollowers(testutil.NewMockID(actorIRI, "/followers")),
		vocab.WithFollowing(testutil.NewMockID(actorIRI, "/following")),
		vocab.WithLiked(testutil.NewMockID(actorIRI, "/liked")),
	)

	require.NoError(t, s.activityStore.PutActor(actor))

	return actor
}

func TestService_Federation(t *testing.T) {
	server1 := newFederatedServer(t, "localhost:8311")
	server2 := newFederatedServer(t, "localhost:8312")

	alyssa := server1.createUser(t, "alyssa")
	ben := server2.createUser(t, "ben")

	alyssaIRI := alyssa.ID().URL()
	benIRI := ben.ID().URL()

	t.Run("Follow with automatic accept", func(t *testing.T) {
		follow := vocab.NewFollowActivity(
			vocab.NewObjectProperty(vocab.WithIRI(benIRI)),
			vocab.WithContext(vocab.ContextActivityStreams),
			vocab.WithActor(alyssaIRI),
			vocab.WithTo(benIRI),
		)

		followIRI, err := server1.service.Outbox().Post(alyssaIRI, follow)
		require.NoError(t, err)
		require.NotNil(t, followIRI)

		// The Follow is delivered to ben, who automatically accepts it.
		require.Eventually(t, func() bool {
			has, err := storeutil.HasReference(server2.activityStore, store.Follower, benIRI, alyssaIRI)

			return err == nil && has
		}, 10*time.Second, 100*time.Millisecond, "ben never gained alyssa as a follower")

		// The Accept is delivered back to alyssa.
		require.Eventually(t, func() bool {
			has, err := storeutil.HasReference(server1.activityStore, store.Following, alyssaIRI, benIRI)

			return err == nil && has
		}, 10*time.Second, 100*time.Millisecond, "alyssa never started following ben")
	})

	t.Run("Create delivered to followers", func(t *testing.T) {
		note := vocab.NewObject(
			vocab.WithType(vocab.TypeNote),
			vocab.WithContent("Hello, fediverse!"),
			vocab.WithAttributedTo(benIRI),
			vocab.WithTo(ben.Followers()),
		)

		create := vocab.NewCreateActivity(
			vocab.NewObjectProperty(vocab.WithObject(note)),
			vocab.WithContext(vocab.ContextActivityStreams),
			vocab.WithActor(benIRI),
			vocab.WithTo(ben.Followers()),
		)

		createIRI, err := server2.service.Outbox().Post(benIRI, create)
		require.NoError(t, err)

		// The Create is fanned out to ben's followers, which now include alyssa.
		require.Eventually(t, func() bool {
			_, err := server1.activityStore.GetActivity(createIRI)

			return err == nil
		}, 10*time.Second, 100*time.Millisecond, "the Create was never delivered to alyssa")

		has, err := storeutil.HasReference(server1.activityStore, store.Inbox, alyssaIRI, createIRI)
		require.NoError(t, err)
		require.True(t, has)
	})

	t.Run("Like is added to the object's likes collection", func(t *testing.T) {
		// Like the note that ben published in the previous test.
		var noteIRI *url.URL

		require.Eventually(t, func() bool {
			it, err := server2.activityStore.QueryActivities(
				store.NewCriteria(
					store.WithReferenceType(store.Outbox),
					store.WithObjectIRI(benIRI),
					store.WithType(vocab.TypeCreate),
				),
			)
			if err != nil {
				return false
			}

			defer func() {
				require.NoError(t, it.Close())
			}()

			create, err := it.Next()
			if err != nil {
				return false
			}

			noteIRI = create.Object().Object().ID().URL()

			return noteIRI != nil
		}, 10*time.Second, 100*time.Millisecond, "ben's Create was never added to his outbox")

		activityChan := server2.service.Subscribe()

		like := vocab.NewLikeActivity(
			vocab.NewObjectProperty(vocab.WithIRI(noteIRI)),
			vocab.WithContext(vocab.ContextActivityStreams),
			vocab.WithActor(alyssaIRI),
			vocab.WithTo(benIRI),
		)

		likeIRI, err := server1.service.Outbox().Post(alyssaIRI, like)
		require.NoError(t, err)

		select {
		case activity := <-activityChan:
			require.True(t, activity.Type().Is(vocab.TypeLike))
		case <-time.After(10 * time.Second):
			t.Fatal("timed out waiting for the Like to arrive in ben's inbox")
		}

		has, err := storeutil.HasReference(server2.activityStore, store.Like, noteIRI, likeIRI)
		require.NoError(t, err)
		require.True(t, has)
	})
}
