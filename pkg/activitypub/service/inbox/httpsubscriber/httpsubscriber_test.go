/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package httpsubscriber

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/require"

	service "github.com/quillpub/quill/pkg/activitypub/service/spi"
	"github.com/quillpub/quill/pkg/activitypub/vocab"
	"github.com/quillpub/quill/pkg/internal/testutil"
)

var (
	serviceEndpoint = testutil.MustParseURL("https://quill.example.com")
	actorIRI        = testutil.MustParseURL("https://remote.example.com/users/bob")
	targetIRI       = testutil.MustParseURL("https://quill.example.com/users/alice")
)

type mockVerifier struct {
	verified bool
	actorIRI *url.URL
	err      error
}

func (m *mockVerifier) VerifyRequest(_ *http.Request, _ []byte) (bool, *url.URL, error) {
	return m.verified, m.actorIRI, m.err
}

// consume acks or nacks every message received by the subscriber.
func consume(t *testing.T, s *Subscriber, ack bool, status string) {
	t.Helper()

	msgChan, err := s.Subscribe(context.Background(), "")
	require.NoError(t, err)

	go func() {
		for msg := range msgChan {
			if ack {
				msg.Ack()
			} else {
				if status != "" {
					msg.Metadata[ErrorStatusKey] = status
				}

				msg.Nack()
			}
		}
	}()
}

func newFollowRequest(t *testing.T) *http.Request {
	t.Helper()

	follow := vocab.NewFollowActivity(
		vocab.NewObjectProperty(vocab.WithIRI(targetIRI)),
		vocab.WithID(testutil.MustParseURL("https://remote.example.com/activities/follow-1")),
		vocab.WithActor(actorIRI),
	)

	payload, err := vocab.Marshal(follow)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost,
		"https://quill.example.com/users/alice/inbox", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/activity+json")

	return req
}

func TestSubscriber(t *testing.T) {
	t.Run("acked message", func(t *testing.T) {
		s := New(&Config{ServiceName: "inbox1", ServiceEndpoint: serviceEndpoint},
			&mockVerifier{verified: true, actorIRI: actorIRI}, nil)
		t.Cleanup(s.Stop)

		var msgs []*message.Message

		var mutex sync.Mutex

		msgChan, err := s.Subscribe(context.Background(), "")
		require.NoError(t, err)

		go func() {
			for msg := range msgChan {
				mutex.Lock()
				msgs = append(msgs, msg)
				mutex.Unlock()

				msg.Ack()
			}
		}()

		rr := httptest.NewRecorder()

		s.Handler()(rr, newFollowRequest(t))

		require.Equal(t, http.StatusOK, rr.Code)

		mutex.Lock()
		defer mutex.Unlock()

		require.Len(t, msgs, 1)
		require.Equal(t, actorIRI.String(), msgs[0].Metadata[ActorIRIKey])
		require.Equal(t, "https://quill.example.com/users/alice/inbox", msgs[0].Metadata[InboxIRIKey])
	})

	t.Run("nacked message with status", func(t *testing.T) {
		s := New(&Config{ServiceName: "inbox2", ServiceEndpoint: serviceEndpoint},
			&mockVerifier{verified: true, actorIRI: actorIRI}, nil)
		t.Cleanup(s.Stop)

		consume(t, s, false, "422")

		rr := httptest.NewRecorder()

		s.Handler()(rr, newFollowRequest(t))

		require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	})

	t.Run("nacked message without status", func(t *testing.T) {
		s := New(&Config{ServiceName: "inbox3", ServiceEndpoint: serviceEndpoint},
			&mockVerifier{verified: true, actorIRI: actorIRI}, nil)
		t.Cleanup(s.Stop)

		consume(t, s, false, "")

		rr := httptest.NewRecorder()

		s.Handler()(rr, newFollowRequest(t))

		require.Equal(t, http.StatusInternalServerError, rr.Code)
	})

	t.Run("unsupported media type", func(t *testing.T) {
		s := New(&Config{ServiceName: "inbox4", ServiceEndpoint: serviceEndpoint},
			&mockVerifier{verified: true, actorIRI: actorIRI}, nil)
		t.Cleanup(s.Stop)

		req := newFollowRequest(t)
		req.Header.Set("Content-Type", "text/plain")

		rr := httptest.NewRecorder()

		s.Handler()(rr, req)

		require.Equal(t, http.StatusUnsupportedMediaType, rr.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		s := New(&Config{ServiceName: "inbox5", ServiceEndpoint: serviceEndpoint},
			&mockVerifier{verified: true, actorIRI: actorIRI}, nil)
		t.Cleanup(s.Stop)

		req := httptest.NewRequest(http.MethodPost,
			"https://quill.example.com/users/alice/inbox", bytes.NewReader([]byte("{")))
		req.Header.Set("Content-Type", "application/activity+json")

		rr := httptest.NewRecorder()

		s.Handler()(rr, req)

		require.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("invalid signature", func(t *testing.T) {
		s := New(&Config{ServiceName: "inbox6", ServiceEndpoint: serviceEndpoint},
			&mockVerifier{verified: false}, nil)
		t.Cleanup(s.Stop)

		rr := httptest.NewRecorder()

		s.Handler()(rr, newFollowRequest(t))

		require.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("signature verification error", func(t *testing.T) {
		s := New(&Config{ServiceName: "inbox7", ServiceEndpoint: serviceEndpoint},
			&mockVerifier{err: errors.New("injected verifier error")}, nil)
		t.Cleanup(s.Stop)

		rr := httptest.NewRecorder()

		s.Handler()(rr, newFollowRequest(t))

		require.Equal(t, http.StatusInternalServerError, rr.Code)
	})

	t.Run("signer does not match actor", func(t *testing.T) {
		s := New(&Config{ServiceName: "inbox8", ServiceEndpoint: serviceEndpoint},
			&mockVerifier{verified: true,
				actorIRI: testutil.MustParseURL("https://remote.example.com/users/mallory")}, nil)
		t.Cleanup(s.Stop)

		rr := httptest.NewRecorder()

		s.Handler()(rr, newFollowRequest(t))

		require.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("body hook rejects request", func(t *testing.T) {
		hook := service.RequestBodyHookFunc(func(*http.Request, *vocab.ActivityType) error {
			return errors.New("injected hook error")
		})

		s := New(&Config{ServiceName: "inbox9", ServiceEndpoint: serviceEndpoint},
			&mockVerifier{verified: true, actorIRI: actorIRI}, hook)
		t.Cleanup(s.Stop)

		rr := httptest.NewRecorder()

		s.Handler()(rr, newFollowRequest(t))

		require.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("stopped", func(t *testing.T) {
		s := New(&Config{ServiceName: "inbox10", ServiceEndpoint: serviceEndpoint},
			&mockVerifier{verified: true, actorIRI: actorIRI}, nil)

		s.Stop()

		rr := httptest.NewRecorder()

		s.Handler()(rr, newFollowRequest(t))

		require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	})
}

func TestVerifySender(t *testing.T) {
	t.Run("matches attributedTo of embedded object", func(t *testing.T) {
		create := vocab.NewCreateActivity(
			vocab.NewObjectProperty(vocab.WithObject(vocab.NewObject(
				vocab.WithType(vocab.TypeNote),
				vocab.WithAttributedTo(actorIRI),
			))),
		)

		require.NoError(t, verifySender(actorIRI, create))
	})

	t.Run("no match", func(t *testing.T) {
		create := vocab.NewCreateActivity(
			vocab.NewObjectProperty(vocab.WithObject(vocab.NewObject(
				vocab.WithType(vocab.TypeNote),
			))),
			vocab.WithActor(actorIRI),
		)

		require.Error(t, verifySender(targetIRI, create))
	})
}
