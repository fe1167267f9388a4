/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package keystore

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/url"
	"sync"

	"github.com/quillpub/quill/internal/pkg/log"
)

var logger = log.New("keystore")

// KeyFragment is the fragment appended to an actor IRI to form the actor's public key ID.
const KeyFragment = "#main-key"

const rsaKeyBits = 2048

// KeyID returns the public key ID for the given actor.
func KeyID(actorIRI *url.URL) *url.URL {
	keyID := *actorIRI
	keyID.Fragment = "main-key"

	return &keyID
}

// KeyStore holds the signing keys of the local actors. A key pair is generated on
// first use of an actor.
type KeyStore struct {
	mutex sync.Mutex
	keys  map[string]*rsa.PrivateKey
}

// New returns a new, empty key store.
func New() *KeyStore {
	return &KeyStore{
		keys: make(map[string]*rsa.PrivateKey),
	}
}

// PrivateKey returns the private key and the public key ID for the given local actor.
func (s *KeyStore) PrivateKey(actorIRI *url.URL) (crypto.PrivateKey, *url.URL, error) {
	key, err := s.get(actorIRI)
	if err != nil {
		return nil, nil, err
	}

	return key, KeyID(actorIRI), nil
}

// PublicKeyPEM returns the PEM-encoded public key for the given local actor.
func (s *KeyStore) PublicKeyPEM(actorIRI *url.URL) (string, error) {
	key, err := s.get(actorIRI)
	if err != nil {
		return "", err
	}

	keyBytes, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return "", fmt.Errorf("marshal public key for %s: %w", actorIRI, err)
	}

	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: keyBytes})), nil
}

// Import stores an existing private key for the given actor, replacing any generated key.
func (s *KeyStore) Import(actorIRI *url.URL, key *rsa.PrivateKey) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.keys[actorIRI.String()] = key
}

func (s *KeyStore) get(actorIRI *url.URL) (*rsa.PrivateKey, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if key, ok := s.keys[actorIRI.String()]; ok {
		return key, nil
	}

	logger.Debug("Generating signing key for actor", log.WithActorIRI(actorIRI))

	key, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, fmt.Errorf("generate key for %s: %w", actorIRI, err)
	}

	s.keys[actorIRI.String()] = key

	return key, nil
}
