/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mocks

import (
	"fmt"
	"net/url"

	"github.com/quillpub/quill/pkg/activitypub/client"
	"github.com/quillpub/quill/pkg/activitypub/vocab"
)

// ActivityPubClient is a mock ActivityPub client.
type ActivityPubClient struct {
	actors     map[string]*vocab.ActorType
	keys       map[string]*vocab.PublicKeyType
	references map[string][]*url.URL
	err        error
}

// NewActivityPubClient returns a mock ActivityPub client.
func NewActivityPubClient() *ActivityPubClient {
	return &ActivityPubClient{
		actors:     make(map[string]*vocab.ActorType),
		keys:       make(map[string]*vocab.PublicKeyType),
		references: make(map[string][]*url.URL),
	}
}

// WithPublicKey adds the given public key to the map of keys which is used
// by GetPublicKey.
func (m *ActivityPubClient) WithPublicKey(key *vocab.PublicKeyType) *ActivityPubClient {
	m.keys[key.ID.String()] = key

	return m
}

// WithActor adds the given actor to the map of actors which is used by GetActor.
func (m *ActivityPubClient) WithActor(actor *vocab.ActorType) *ActivityPubClient {
	m.actors[actor.ID().String()] = actor

	return m
}

// WithReferences sets the references that are returned by GetReferences for the
// given IRI. An IRI with no explicit references resolves to itself.
func (m *ActivityPubClient) WithReferences(iri *url.URL, refs ...*url.URL) *ActivityPubClient {
	m.references[iri.String()] = refs

	return m
}

// WithError sets an error to be returned when any function is invoked on this struct.
func (m *ActivityPubClient) WithError(err error) *ActivityPubClient {
	m.err = err

	return m
}

// GetPublicKey returns the public key for the given IRI.
func (m *ActivityPubClient) GetPublicKey(keyIRI *url.URL) (*vocab.PublicKeyType, error) {
	if m.err != nil {
		return nil, m.err
	}

	key, ok := m.keys[keyIRI.String()]
	if !ok {
		return nil, fmt.Errorf("public key [%s]: %w", keyIRI, client.ErrNotFound)
	}

	return key, nil
}

// GetActor returns the actor for the given IRI.
func (m *ActivityPubClient) GetActor(actorIRI *url.URL) (*vocab.ActorType, error) {
	if m.err != nil {
		return nil, m.err
	}

	actor, ok := m.actors[actorIRI.String()]
	if !ok {
		return nil, fmt.Errorf("actor [%s]: %w", actorIRI, client.ErrNotFound)
	}

	return actor, nil
}

// GetReferences returns an iterator over the references configured for the given
// IRI, or an iterator containing just the IRI itself if none were configured.
func (m *ActivityPubClient) GetReferences(iri *url.URL) (client.ReferenceIterator, error) {
	if m.err != nil {
		return nil, m.err
	}

	refs, ok := m.references[iri.String()]
	if !ok {
		refs = []*url.URL{iri}
	}

	return &referenceIterator{refs: refs}, nil
}

type referenceIterator struct {
	refs    []*url.URL
	current int
}

func (it *referenceIterator) Next() (*url.URL, error) {
	if it.current >= len(it.refs) {
		return nil, client.ErrNotFound
	}

	ref := it.refs[it.current]

	it.current++

	return ref, nil
}

func (it *referenceIterator) TotalItems() int {
	return len(it.refs)
}
