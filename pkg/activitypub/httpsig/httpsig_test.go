/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package httpsig

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quillpub/quill/pkg/activitypub/service/mocks"
	"github.com/quillpub/quill/pkg/activitypub/vocab"
	qerrors "github.com/quillpub/quill/pkg/errors"
)

const (
	actorID  = "https://alice.example.com/users/alice"
	keyID    = actorID + "#main-key"
	inboxURL = "https://bob.example.com/users/bob/inbox"
)

type mockActorRetriever struct {
	actor     *vocab.ActorType
	publicKey *vocab.PublicKeyType
	keyErr    error
	actorErr  error
}

func (m *mockActorRetriever) GetPublicKey(keyIRI *url.URL) (*vocab.PublicKeyType, error) {
	if m.keyErr != nil {
		return nil, m.keyErr
	}

	return m.publicKey, nil
}

func (m *mockActorRetriever) GetActor(actorIRI *url.URL) (*vocab.ActorType, error) {
	if m.actorErr != nil {
		return nil, m.actorErr
	}

	return m.actor, nil
}

func newTestRetriever(t *testing.T) (*mockActorRetriever, *rsa.PrivateKey) {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	publicKeyBytes, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	require.NoError(t, err)

	publicKeyPem := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicKeyBytes}))

	publicKey := vocab.NewPublicKey(vocab.MustParseURL(keyID), vocab.MustParseURL(actorID), publicKeyPem)

	actor := vocab.NewPerson(vocab.MustParseURL(actorID),
		vocab.WithPublicKey(publicKey),
		vocab.WithInbox(vocab.MustParseURL(actorID+"/inbox")),
	)

	return &mockActorRetriever{
		actor:     actor,
		publicKey: publicKey,
	}, privateKey
}

func TestSignAndVerifyPost(t *testing.T) {
	retriever, privateKey := newTestRetriever(t)

	body := []byte(`{"type":"Create"}`)

	req := httptest.NewRequest(http.MethodPost, inboxURL, strings.NewReader(string(body)))

	signer := NewSigner(DefaultPostSignerConfig(), &mocks.MetricsProvider{})
	require.NoError(t, signer.SignRequest(privateKey, keyID, req, body))

	require.NotEmpty(t, req.Header.Get("Signature"))
	require.NotEmpty(t, req.Header.Get("Date"))
	require.NotEmpty(t, req.Header.Get("Digest"))

	verifier := NewVerifier(retriever, &mocks.MetricsProvider{})

	ok, signerIRI, err := verifier.VerifyRequest(req, body)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, actorID, signerIRI.String())
}

func TestSignAndVerifyGet(t *testing.T) {
	retriever, privateKey := newTestRetriever(t)

	req := httptest.NewRequest(http.MethodGet, actorID, nil)

	signer := NewSigner(DefaultGetSignerConfig(), &mocks.MetricsProvider{})
	require.NoError(t, signer.SignRequest(privateKey, keyID, req, nil))

	verifier := NewVerifier(retriever, &mocks.MetricsProvider{})

	ok, signerIRI, err := verifier.VerifyRequest(req, nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, actorID, signerIRI.String())
}

func TestSignCoversHostHeader(t *testing.T) {
	retriever, privateKey := newTestRetriever(t)

	body := []byte(`{"type":"Create"}`)

	// A client request keeps the host in req.URL rather than the header map.
	req, err := http.NewRequest(http.MethodPost, inboxURL, strings.NewReader(string(body)))
	require.NoError(t, err)

	signer := NewSigner(DefaultPostSignerConfig(), &mocks.MetricsProvider{})
	require.NoError(t, signer.SignRequest(privateKey, keyID, req, body))

	require.Equal(t, "bob.example.com", req.Header.Get("Host"))

	// The receiving server moves the Host header into req.Host.
	serverReq := httptest.NewRequest(http.MethodPost, inboxURL, strings.NewReader(string(body)))
	serverReq.Header = req.Header.Clone()
	serverReq.Header.Del("Host")

	verifier := NewVerifier(retriever, &mocks.MetricsProvider{})

	ok, signerIRI, err := verifier.VerifyRequest(serverReq, body)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, actorID, signerIRI.String())
}

func TestVerifyTamperedBody(t *testing.T) {
	retriever, privateKey := newTestRetriever(t)

	body := []byte(`{"type":"Create"}`)

	req := httptest.NewRequest(http.MethodPost, inboxURL, strings.NewReader(string(body)))

	signer := NewSigner(DefaultPostSignerConfig(), &mocks.MetricsProvider{})
	require.NoError(t, signer.SignRequest(privateKey, keyID, req, body))

	verifier := NewVerifier(retriever, &mocks.MetricsProvider{})

	ok, _, err := verifier.VerifyRequest(req, []byte(`{"type":"Delete"}`))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerifyStaleDate(t *testing.T) {
	retriever, privateKey := newTestRetriever(t)

	body := []byte(`{"type":"Create"}`)

	req := httptest.NewRequest(http.MethodPost, inboxURL, strings.NewReader(string(body)))

	signer := NewSigner(DefaultPostSignerConfig(), &mocks.MetricsProvider{})
	require.NoError(t, signer.SignRequest(privateKey, keyID, req, body))

	req.Header.Set("Date", time.Now().Add(-time.Hour).UTC().Format(http.TimeFormat))

	verifier := NewVerifier(retriever, &mocks.MetricsProvider{})

	ok, _, err := verifier.VerifyRequest(req, body)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerifyKeyNotOwnedByActor(t *testing.T) {
	retriever, privateKey := newTestRetriever(t)

	// The actor advertises a different key than the one used to sign.
	retriever.actor = vocab.NewPerson(vocab.MustParseURL(actorID),
		vocab.WithPublicKey(vocab.NewPublicKey(
			vocab.MustParseURL(actorID+"#other-key"),
			vocab.MustParseURL(actorID),
			retriever.publicKey.PublicKeyPem,
		)),
	)

	body := []byte(`{"type":"Create"}`)

	req := httptest.NewRequest(http.MethodPost, inboxURL, strings.NewReader(string(body)))

	signer := NewSigner(DefaultPostSignerConfig(), &mocks.MetricsProvider{})
	require.NoError(t, signer.SignRequest(privateKey, keyID, req, body))

	verifier := NewVerifier(retriever, &mocks.MetricsProvider{})

	ok, _, err := verifier.VerifyRequest(req, body)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerifyNoSignature(t *testing.T) {
	retriever, _ := newTestRetriever(t)

	req := httptest.NewRequest(http.MethodPost, inboxURL, nil)
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))

	verifier := NewVerifier(retriever, &mocks.MetricsProvider{})

	ok, _, err := verifier.VerifyRequest(req, nil)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerifyTransientKeyRetrievalError(t *testing.T) {
	retriever, privateKey := newTestRetriever(t)
	retriever.keyErr = qerrors.NewTransient(errors.New("injected error"))

	body := []byte(`{"type":"Create"}`)

	req := httptest.NewRequest(http.MethodPost, inboxURL, strings.NewReader(string(body)))

	signer := NewSigner(DefaultPostSignerConfig(), &mocks.MetricsProvider{})
	require.NoError(t, signer.SignRequest(privateKey, keyID, req, body))

	verifier := NewVerifier(retriever, &mocks.MetricsProvider{})

	ok, _, err := verifier.VerifyRequest(req, body)
	require.Error(t, err)
	require.True(t, qerrors.IsTransient(err))
	require.False(t, ok)
}
