/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package aptestutil contains ActivityPub test utilities.
package aptestutil

import (
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/quillpub/quill/pkg/activitypub/vocab"
	"github.com/quillpub/quill/pkg/internal/testutil"
)

// NewMockPerson returns a mock 'Person' actor under the given service endpoint.
func NewMockPerson(serviceEndpoint *url.URL, nick string) *vocab.ActorType {
	actorIRI := testutil.NewMockID(serviceEndpoint, "/users/"+nick)

	return vocab.NewPerson(actorIRI,
		vocab.WithContext(vocab.ContextActivityStreams, vocab.ContextSecurity),
		vocab.WithPreferredUsername(nick),
		vocab.WithPublicKey(NewMockPublicKey(actorIRI)),
		vocab.WithInbox(testutil.NewMockID(actorIRI, "/inbox")),
		vocab.WithOutbox(testutil.NewMockID(actorIRI, "/outbox")),
		vocab.WithFollowers(testutil.NewMockID(actorIRI, "/followers")),
		vocab.WithFollowing(testutil.NewMockID(actorIRI, "/following")),
		vocab.WithLiked(testutil.NewMockID(actorIRI, "/liked")),
		vocab.WithFeatured(testutil.NewMockID(actorIRI, "/featured")),
	)
}

// NewMockService returns a mock 'Service' actor with the given IRI.
func NewMockService(serviceIRI *url.URL) *vocab.ActorType {
	return vocab.NewService(serviceIRI,
		vocab.WithContext(vocab.ContextActivityStreams, vocab.ContextSecurity),
		vocab.WithPublicKey(NewMockPublicKey(serviceIRI)),
		vocab.WithInbox(testutil.NewMockID(serviceIRI, "/inbox")),
		vocab.WithOutbox(testutil.NewMockID(serviceIRI, "/outbox")),
	)
}

// NewMockPublicKey returns a mock public key owned by the given actor.
func NewMockPublicKey(ownerIRI *url.URL) *vocab.PublicKeyType {
	const keyPem = "-----BEGIN PUBLIC KEY-----\nMIIBIjANBgkqhki.....\n-----END PUBLIC KEY-----"

	return vocab.NewPublicKey(testutil.NewMockID(ownerIRI, "#main-key"), ownerIRI, keyPem)
}

// NewMockActivityID mints an activity ID under the given actor. Remote servers
// commonly use UUID-based IDs, so that is what the mock produces.
func NewMockActivityID(actorIRI *url.URL) *url.URL {
	return testutil.NewMockID(actorIRI, "/activities/"+uuid.NewString())
}

// NewMockObjectID mints an object ID under the given actor.
func NewMockObjectID(actorIRI *url.URL) *url.URL {
	return testutil.NewMockID(actorIRI, "/objects/"+uuid.NewString())
}

// NewMockNote returns a mock 'Note' object attributed to the given actor.
func NewMockNote(actorIRI *url.URL, content string, to ...*url.URL) *vocab.ObjectType {
	published := time.Now()

	return vocab.NewObject(
		vocab.WithID(NewMockObjectID(actorIRI)),
		vocab.WithType(vocab.TypeNote),
		vocab.WithContent(content),
		vocab.WithAttributedTo(actorIRI),
		vocab.WithPublishedTime(&published),
		vocab.WithTo(to...),
	)
}

// NewMockCreateActivity returns a mock 'Create' activity by the given actor,
// embedding the given object.
func NewMockCreateActivity(actorIRI *url.URL, obj *vocab.ObjectType, to ...*url.URL) *vocab.ActivityType {
	published := time.Now()

	return vocab.NewCreateActivity(vocab.NewObjectProperty(vocab.WithObject(obj)),
		vocab.WithContext(vocab.ContextActivityStreams),
		vocab.WithID(NewMockActivityID(actorIRI)),
		vocab.WithActor(actorIRI),
		vocab.WithPublishedTime(&published),
		vocab.WithTo(to...),
	)
}

// NewMockCreateActivities returns the given number of mock 'Create' activities
// by the given actor.
func NewMockCreateActivities(actorIRI *url.URL, num int, to ...*url.URL) []*vocab.ActivityType {
	activities := make([]*vocab.ActivityType, num)

	for i := 0; i < num; i++ {
		activities[i] = NewMockCreateActivity(actorIRI, NewMockNote(actorIRI, "note", to...), to...)
	}

	return activities
}

// NewMockLikeActivity returns a mock 'Like' activity by the given actor on the
// given object.
func NewMockLikeActivity(actorIRI, objectIRI *url.URL) *vocab.ActivityType {
	published := time.Now()

	return vocab.NewLikeActivity(vocab.NewObjectProperty(vocab.WithIRI(objectIRI)),
		vocab.WithContext(vocab.ContextActivityStreams),
		vocab.WithID(NewMockActivityID(actorIRI)),
		vocab.WithActor(actorIRI),
		vocab.WithPublishedTime(&published),
	)
}
