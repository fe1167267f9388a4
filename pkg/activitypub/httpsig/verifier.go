/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package httpsig

import (
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-fed/httpsig"

	"github.com/quillpub/quill/internal/pkg/log"
	"github.com/quillpub/quill/pkg/activitypub/vocab"
	qerrors "github.com/quillpub/quill/pkg/errors"
)

// ErrInvalidSignature indicates that the signature is not valid for the given data.
var ErrInvalidSignature = errors.New("invalid HTTP signature")

const defaultClockSkew = 300 * time.Second

type publicKeyRetriever interface {
	GetPublicKey(keyIRI *url.URL) (*vocab.PublicKeyType, error)
}

type actorRetriever interface {
	publicKeyRetriever

	GetActor(actorIRI *url.URL) (*vocab.ActorType, error)
}

// Verifier verifies signatures of HTTP requests.
type Verifier struct {
	actorRetriever actorRetriever
	clockSkew      time.Duration
	metrics        metricsProvider
}

// NewVerifier returns a new HTTP signature verifier.
func NewVerifier(actorRetriever actorRetriever, metrics metricsProvider) *Verifier {
	return &Verifier{
		actorRetriever: actorRetriever,
		clockSkew:      defaultClockSkew,
		metrics:        metrics,
	}
}

// VerifyRequest verifies the following:
// - The Date header is within the allowed clock skew.
// - The Digest header (if present) matches the request body.
// - The HTTP signature on the request.
// - The key ID in the Signature header is actually owned by the signing actor.
//
// Returns:
// - true if the signature was successfully verified, otherwise false.
// - The actor IRI of the signer if the signature was successfully verified.
// - An error if the signature could not be verified due to a server error.
func (v *Verifier) VerifyRequest(req *http.Request, body []byte) (bool, *url.URL, error) {
	startTime := time.Now()

	defer func() {
		v.metrics.SignatureVerificationTime(time.Since(startTime))
	}()

	logger.Debug("Verifying request", log.WithRequestHeaders(req.Header))

	if !v.verifyDate(req) {
		logger.Info("Date header in request is missing or outside of the allowed clock skew",
			log.WithRequestURL(req.URL))

		return false, nil, nil
	}

	if !verifyDigest(req, body) {
		logger.Info("Digest header in request does not match the request body",
			log.WithRequestURL(req.URL))

		return false, nil, nil
	}

	// The server moves the Host value out of the header map into req.Host, but the
	// signature covers the 'host' header, so it must be restored before verifying.
	if req.Header.Get(hostHeader) == "" {
		req.Header.Set(hostHeader, req.Host)
	}

	verifier, err := httpsig.NewVerifier(req)
	if err != nil {
		logger.Info("Unable to parse signature in request", log.WithRequestURL(req.URL), log.WithError(err))

		return false, nil, nil
	}

	keyIRI, err := url.Parse(verifier.KeyId())
	if err != nil {
		logger.Debug("Invalid public key ID in request", log.WithKeyID(verifier.KeyId()),
			log.WithRequestURL(req.URL), log.WithError(err))

		return false, nil, nil
	}

	publicKey, err := v.actorRetriever.GetPublicKey(keyIRI)
	if err != nil {
		if qerrors.IsTransient(err) {
			return false, nil, fmt.Errorf("get public key [%s]: %w", keyIRI, err)
		}

		logger.Info("Unable to retrieve public key", log.WithKeyIRI(keyIRI), log.WithError(err))

		return false, nil, nil
	}

	if err := verify(verifier, publicKey.PublicKeyPem); err != nil {
		logger.Info("Signature verification failed for request", log.WithRequestURL(req.URL),
			log.WithError(err))

		return false, nil, nil
	}

	logger.Debug("Retrieving actor for public key owner", log.WithKeyOwnerIRI(publicKey.Owner))

	// Ensure that the public key ID matches the key ID of the specified owner. Otherwise, it could
	// be an attempt to impersonate an actor.
	actor, err := v.actorRetriever.GetActor(publicKey.Owner.URL())
	if err != nil {
		if qerrors.IsTransient(err) {
			return false, nil, fmt.Errorf("get actor [%s]: %w", publicKey.Owner, err)
		}

		logger.Info("Unable to retrieve actor for public key owner",
			log.WithKeyOwnerIRI(publicKey.Owner), log.WithError(err))

		return false, nil, nil
	}

	if actor.PublicKey() == nil || actor.PublicKey().ID.String() != publicKey.ID.String() {
		logger.Info("Public key of actor does not match the key ID in the request",
			log.WithActorIRI(actor.ID()), log.WithKeyIRI(publicKey.ID))

		return false, nil, nil
	}

	logger.Debug("Successfully verified signature in header", log.WithActorIRI(actor.ID()))

	return true, actor.ID().URL(), nil
}

func (v *Verifier) verifyDate(req *http.Request) bool {
	date, err := http.ParseTime(req.Header.Get(dateHeader))
	if err != nil {
		return false
	}

	diff := time.Since(date)
	if diff < 0 {
		diff = -diff
	}

	return diff <= v.clockSkew
}

func verifyDigest(req *http.Request, body []byte) bool {
	digest := req.Header.Get("Digest")
	if digest == "" {
		// A digest is only mandatory for requests with a body.
		return len(body) == 0
	}

	const kvLength = 2

	parts := strings.SplitN(digest, "=", kvLength)
	if len(parts) != kvLength || !strings.EqualFold(parts[0], "SHA-256") {
		return false
	}

	hash := sha256.Sum256(body)

	return parts[1] == base64.StdEncoding.EncodeToString(hash[:])
}

func verify(verifier httpsig.Verifier, publicKeyPem string) error {
	block, _ := pem.Decode([]byte(publicKeyPem))
	if block == nil {
		return fmt.Errorf("invalid public key PEM")
	}

	publicKey, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return fmt.Errorf("parse public key: %w", err)
	}

	var algorithms []httpsig.Algorithm

	switch publicKey.(type) {
	case *rsa.PublicKey:
		algorithms = []httpsig.Algorithm{httpsig.RSA_SHA256, httpsig.RSA_SHA512}
	case ed25519.PublicKey:
		algorithms = []httpsig.Algorithm{httpsig.ED25519}
	default:
		return fmt.Errorf("unsupported public key type")
	}

	for _, algorithm := range algorithms {
		if err = verifier.Verify(publicKey, algorithm); err == nil {
			return nil
		}
	}

	return ErrInvalidSignature
}
