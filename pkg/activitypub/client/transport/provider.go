/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package transport

import (
	"crypto"
	"fmt"
	"net/url"
)

// KeyResolver returns the private key and public key ID with which requests on
// behalf of the given local actor are signed.
type KeyResolver interface {
	PrivateKey(actorIRI *url.URL) (crypto.PrivateKey, *url.URL, error)
}

// Provider creates transports that sign requests with a specific local actor's key.
type Provider struct {
	client     httpClient
	keys       KeyResolver
	getSigner  Signer
	postSigner Signer
}

// NewProvider returns a new transport provider.
func NewProvider(client httpClient, keys KeyResolver, getSigner, postSigner Signer) *Provider {
	return &Provider{
		client:     client,
		keys:       keys,
		getSigner:  getSigner,
		postSigner: postSigner,
	}
}

// ForActor returns a transport whose requests are signed with the given actor's key.
func (p *Provider) ForActor(actorIRI *url.URL) (*Transport, error) {
	privateKey, keyID, err := p.keys.PrivateKey(actorIRI)
	if err != nil {
		return nil, fmt.Errorf("resolve signing key for %s: %w", actorIRI, err)
	}

	return New(p.client, privateKey, keyID, p.getSigner, p.postSigner), nil
}
