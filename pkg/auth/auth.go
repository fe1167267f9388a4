/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package auth authorizes client-to-server requests with bearer tokens. A token
// either maps statically to a local actor (provisioned at startup) or is a
// short-lived session token minted by NewSession.
package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bluele/gcache"
	"github.com/google/uuid"

	"github.com/quillpub/quill/internal/pkg/log"
	qerrors "github.com/quillpub/quill/pkg/errors"
)

var logger = log.New("auth")

const (
	authHeader  = "Authorization"
	tokenPrefix = "Bearer "

	defaultSessionCacheSize = 1000
	defaultSessionLifetime  = 24 * time.Hour
)

// CurrentUser identifies the authenticated local actor for a client-to-server request.
type CurrentUser struct {
	ActorIRI *url.URL
}

// Config holds the configuration parameters for the verifier.
type Config struct {
	// SessionCacheSize is the maximum number of concurrent sessions.
	SessionCacheSize int
	// SessionLifetime is the duration after which a session token expires.
	SessionLifetime time.Duration
}

// Verifier resolves bearer tokens to local actors.
type Verifier struct {
	mutex    sync.RWMutex
	tokens   map[string]*url.URL
	sessions gcache.Cache
	lifetime time.Duration
}

// NewVerifier returns a new bearer token verifier.
func NewVerifier(cfg *Config) *Verifier {
	cacheSize := cfg.SessionCacheSize
	if cacheSize == 0 {
		cacheSize = defaultSessionCacheSize
	}

	lifetime := cfg.SessionLifetime
	if lifetime == 0 {
		lifetime = defaultSessionLifetime
	}

	return &Verifier{
		tokens:   make(map[string]*url.URL),
		sessions: gcache.New(cacheSize).ARC().Build(),
		lifetime: lifetime,
	}
}

// RegisterToken maps a statically provisioned bearer token to the given local actor.
func (v *Verifier) RegisterToken(token string, actorIRI *url.URL) {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	v.tokens[token] = actorIRI

	logger.Debug("Registered bearer token", log.WithActorIRI(actorIRI))
}

// NewSession mints a session token for the given local actor. The token expires
// after the configured session lifetime.
func (v *Verifier) NewSession(actorIRI *url.URL) (string, error) {
	token := uuid.NewString()

	if err := v.sessions.SetWithExpire(token, &CurrentUser{ActorIRI: actorIRI}, v.lifetime); err != nil {
		return "", qerrors.NewTransient(err)
	}

	logger.Debug("Created session", log.WithActorIRI(actorIRI))

	return token, nil
}

// Authenticate resolves the bearer token in the given request to the local actor
// that owns it. A request without an Authorization header is anonymous, and both
// the user and the error are nil.
func (v *Verifier) Authenticate(req *http.Request) (*CurrentUser, error) {
	hdr := req.Header.Get(authHeader)
	if hdr == "" {
		return nil, nil
	}

	if !strings.HasPrefix(hdr, tokenPrefix) {
		return nil, qerrors.NewKindf(qerrors.KindUnauthenticated, "invalid authorization header")
	}

	token := hdr[len(tokenPrefix):]

	if user := v.lookupStatic(token); user != nil {
		return user, nil
	}

	session, err := v.sessions.Get(token)
	if err == nil {
		return session.(*CurrentUser), nil
	}

	return nil, qerrors.NewKindf(qerrors.KindUnauthenticated, "invalid bearer token")
}

func (v *Verifier) lookupStatic(token string) *CurrentUser {
	v.mutex.RLock()
	defer v.mutex.RUnlock()

	// Compare against all provisioned tokens in constant time.
	for t, actorIRI := range v.tokens {
		if subtle.ConstantTimeCompare([]byte(t), []byte(token)) == 1 {
			return &CurrentUser{ActorIRI: actorIRI}
		}
	}

	return nil
}

type contextKey struct{}

// FromContext returns the authenticated user for the request, or nil if the
// request is anonymous.
func FromContext(ctx context.Context) *CurrentUser {
	user, _ := ctx.Value(contextKey{}).(*CurrentUser)

	return user
}

// Middleware resolves the bearer token on each request and attaches the
// authenticated user to the request context. An invalid token is rejected with
// 401; a request without a token proceeds anonymously.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		user, err := v.Authenticate(req)
		if err != nil {
			logger.Debug("Request not authorized", log.WithRequestURL(req.URL), log.WithError(err))

			w.WriteHeader(http.StatusUnauthorized)

			return
		}

		if user != nil {
			req = req.WithContext(context.WithValue(req.Context(), contextKey{}, user))
		}

		next.ServeHTTP(w, req)
	})
}
