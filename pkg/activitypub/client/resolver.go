/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package client

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/quillpub/quill/internal/pkg/log"
	"github.com/quillpub/quill/pkg/activitypub/vocab"
	qerrors "github.com/quillpub/quill/pkg/errors"
	wfclient "github.com/quillpub/quill/pkg/webfinger/client"
)

const acctScheme = "acct"

type activityStore interface {
	GetActivity(activityIRI *url.URL) (*vocab.ActivityType, error)
	GetObject(objectIRI *url.URL) (*vocab.ObjectType, error)
	GetActor(actorIRI *url.URL) (*vocab.ActorType, error)
}

type handleResolver interface {
	ResolveActorIRI(acct string) (*url.URL, error)
}

// Resolver dereferences IRIs. IRIs that are hosted by this server are read directly
// from the local store; all others are fetched from the remote server. An acct
// handle (acct:nick@host) is first resolved to the actor's IRI with WebFinger.
type Resolver struct {
	*Client

	store        activityStore
	endpointHost string
	wfClient     handleResolver
}

// ResolverOpt customizes the resolver.
type ResolverOpt func(*Resolver)

// WithWebFingerClient sets the WebFinger client used to resolve acct handles.
func WithWebFingerClient(c handleResolver) ResolverOpt {
	return func(r *Resolver) {
		r.wfClient = c
	}
}

// NewResolver returns a resolver that reads IRIs hosted at the given service endpoint
// from the local store and dereferences all others with the given client.
func NewResolver(c *Client, store activityStore, serviceEndpoint *url.URL,
	opts ...ResolverOpt) *Resolver {
	r := &Resolver{
		Client:       c,
		store:        store,
		endpointHost: serviceEndpoint.Host,
		wfClient:     wfclient.New(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// IsLocal returns true if the given IRI is hosted by this server.
func (r *Resolver) IsLocal(iri *url.URL) bool {
	return iri.Host == r.endpointHost
}

// Dereference resolves the given IRI to a raw ActivityPub document. The document may
// describe an object, an activity, or an actor.
func (r *Resolver) Dereference(iri *url.URL) (vocab.Document, error) {
	if iri.Scheme == acctScheme {
		actorIRI, err := r.wfClient.ResolveActorIRI(iri.String())
		if err != nil {
			return nil, fmt.Errorf("resolve handle [%s]: %w", iri, err)
		}

		iri = actorIRI
	}

	if r.IsLocal(iri) {
		return r.dereferenceLocal(iri)
	}

	respBytes, err := r.get(iri)
	if err != nil {
		return nil, fmt.Errorf("read response from %s: %w", iri, err)
	}

	doc, err := vocab.UnmarshalToDoc(respBytes)
	if err != nil {
		return nil, fmt.Errorf("invalid document in response from %s: %w", iri, err)
	}

	return doc, nil
}

func (r *Resolver) dereferenceLocal(iri *url.URL) (vocab.Document, error) {
	logger.Debug("Dereferencing local IRI", log.WithURI(iri))

	activity, err := r.store.GetActivity(iri)
	if err == nil {
		return vocab.MarshalToDoc(activity)
	}

	if !errors.Is(err, qerrors.ErrNotFound) {
		return nil, fmt.Errorf("get activity [%s]: %w", iri, err)
	}

	obj, err := r.store.GetObject(iri)
	if err == nil {
		return vocab.MarshalToDoc(obj)
	}

	if !errors.Is(err, qerrors.ErrNotFound) {
		return nil, fmt.Errorf("get object [%s]: %w", iri, err)
	}

	actor, err := r.store.GetActor(iri)
	if err == nil {
		return vocab.MarshalToDoc(actor)
	}

	if !errors.Is(err, qerrors.ErrNotFound) {
		return nil, fmt.Errorf("get actor [%s]: %w", iri, err)
	}

	return nil, fmt.Errorf("dereference local IRI [%s]: %w", iri, ErrNotFound)
}

// GetActor retrieves the actor at the given IRI. Local actors are read from the store
// and remote actors are fetched (and cached) by the client. An acct handle is first
// resolved to the actor's IRI with WebFinger.
func (r *Resolver) GetActor(actorIRI *url.URL) (*vocab.ActorType, error) {
	if actorIRI.Scheme == acctScheme {
		iri, err := r.wfClient.ResolveActorIRI(actorIRI.String())
		if err != nil {
			return nil, fmt.Errorf("resolve handle [%s]: %w", actorIRI, err)
		}

		actorIRI = iri
	}

	if r.IsLocal(actorIRI) {
		return r.store.GetActor(actorIRI) //nolint:wrapcheck
	}

	return r.Client.GetActor(actorIRI)
}

// GetPublicKey retrieves the public key at the given IRI. The owner of a local key is
// resolved from the store and the key is returned from the actor document.
func (r *Resolver) GetPublicKey(keyIRI *url.URL) (*vocab.PublicKeyType, error) {
	if !r.IsLocal(keyIRI) {
		return r.Client.GetPublicKey(keyIRI)
	}

	// A local key ID is the owner's IRI with a fragment, e.g. https://host/users/alice#main-key.
	ownerIRI := *keyIRI
	ownerIRI.Fragment = ""

	actor, err := r.store.GetActor(&ownerIRI)
	if err != nil {
		return nil, fmt.Errorf("get actor [%s]: %w", &ownerIRI, err)
	}

	publicKey := actor.PublicKey()

	if publicKey == nil || publicKey.ID.String() != keyIRI.String() {
		return nil, fmt.Errorf("public key [%s]: %w", keyIRI, ErrNotFound)
	}

	return publicKey, nil
}
