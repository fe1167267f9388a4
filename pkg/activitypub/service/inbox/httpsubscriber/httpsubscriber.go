/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package httpsubscriber bridges incoming HTTP requests into a Watermill message
// stream. Each request is validated and signature-verified synchronously, then
// published as a message; the HTTP response is written once the message has been
// acked or nacked by the consumer.
package httpsubscriber

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/quillpub/quill/internal/pkg/log"
	service "github.com/quillpub/quill/pkg/activitypub/service/spi"
	"github.com/quillpub/quill/pkg/activitypub/vocab"
	qerrors "github.com/quillpub/quill/pkg/errors"
	"github.com/quillpub/quill/pkg/lifecycle"
)

var logger = log.New("activitypub_service")

const (
	// ActorIRIKey is the metadata key under which the IRI of the verified sender
	// (the owner of the signing key) is stored.
	ActorIRIKey = "actor-iri"

	// InboxIRIKey is the metadata key under which the IRI of the target inbox is stored.
	InboxIRIKey = "inbox-iri"

	// ErrorStatusKey is the metadata key under which the consumer stores the HTTP
	// status to respond with when a message is nacked.
	ErrorStatusKey = "error-status"

	defaultBufferSize = 100
)

// Config holds the HTTP subscriber configuration parameters.
type Config struct {
	ServiceName     string
	ServiceEndpoint *url.URL
	BufferSize      int
}

type signatureVerifier interface {
	VerifyRequest(req *http.Request, body []byte) (bool, *url.URL, error)
}

// Subscriber implements a subscriber for Watermill that handles HTTP requests.
type Subscriber struct {
	*lifecycle.Lifecycle
	*Config

	pubChan  chan *message.Message
	msgChan  chan *message.Message
	stopped  chan struct{}
	done     chan struct{}
	verifier signatureVerifier
	bodyHook service.RequestBodyHookFunc
}

// New returns a new HTTP subscriber. The given hook, if any, is invoked on each
// parsed activity before the signature is verified.
func New(cfg *Config, sigVerifier signatureVerifier, bodyHook service.RequestBodyHookFunc) *Subscriber {
	if cfg.BufferSize == 0 {
		cfg.BufferSize = defaultBufferSize
	}

	s := &Subscriber{
		Config:   cfg,
		verifier: sigVerifier,
		bodyHook: bodyHook,
		pubChan:  make(chan *message.Message, cfg.BufferSize),
		msgChan:  make(chan *message.Message, cfg.BufferSize),
		stopped:  make(chan struct{}),
		done:     make(chan struct{}),
	}

	s.Lifecycle = lifecycle.New("httpsubscriber-"+cfg.ServiceName,
		lifecycle.WithStop(s.stop),
		lifecycle.WithStart(func() {
			go s.publisher()
		}),
	)

	// The subscriber is ready to accept requests immediately.
	s.Start()

	return s
}

// Subscribe returns the channel over which incoming messages are sent.
func (s *Subscriber) Subscribe(_ context.Context, _ string) (<-chan *message.Message, error) {
	return s.msgChan, nil
}

// Close stops the subscriber.
func (s *Subscriber) Close() error {
	s.Stop()

	return nil
}

// Method returns the HTTP method, which is always POST.
func (s *Subscriber) Method() string {
	return http.MethodPost
}

// Handler returns the handler that should be invoked when an HTTP request is
// posted to an inbox endpoint. This handler must be registered with an HTTP server.
func (s *Subscriber) Handler() http.HandlerFunc {
	return s.handleMessage
}

func (s *Subscriber) handleMessage(w http.ResponseWriter, r *http.Request) {
	if !isActivityContentType(r.Header.Get("Content-Type")) {
		logger.Info("Unsupported media type in request", log.WithSenderURL(r.URL))

		w.WriteHeader(http.StatusUnsupportedMediaType)

		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Warn("Error reading request body", log.WithError(err), log.WithSenderURL(r.URL))

		w.WriteHeader(http.StatusBadRequest)

		return
	}

	activity := &vocab.ActivityType{}

	if err := json.Unmarshal(body, activity); err != nil {
		logger.Info("Error parsing activity in request body", log.WithError(err),
			log.WithSenderURL(r.URL))

		w.WriteHeader(http.StatusBadRequest)

		return
	}

	if s.bodyHook != nil {
		if err := s.bodyHook(r, activity); err != nil {
			logger.Info("Request body hook rejected the request", log.WithError(err),
				log.WithSenderURL(r.URL))

			w.WriteHeader(qerrors.HTTPStatusOf(qerrors.NewBadRequest(err)))

			return
		}
	}

	verified, actorIRI, err := s.verifier.VerifyRequest(r, body)
	if err != nil {
		logger.Error("Error verifying HTTP signature", log.WithError(err), log.WithSenderURL(r.URL))

		w.WriteHeader(http.StatusInternalServerError)

		return
	}

	if !verified {
		logger.Info("Invalid HTTP signature", log.WithSenderURL(r.URL))

		w.WriteHeader(http.StatusUnauthorized)

		return
	}

	if err := verifySender(actorIRI, activity); err != nil {
		logger.Info("Activity sender could not be matched to the request signer",
			log.WithActorIRI(actorIRI), log.WithError(err))

		w.WriteHeader(http.StatusUnauthorized)

		return
	}

	msg := message.NewMessage(watermill.NewUUID(), body)
	msg.Metadata[ActorIRIKey] = actorIRI.String()
	msg.Metadata[InboxIRIKey] = s.inboxIRI(r).String()

	logger.Debug("Handling message", log.WithMessageID(msg.UUID),
		log.WithActorIRI(actorIRI), log.WithSenderURL(r.URL))

	if err := s.publish(msg); err != nil {
		logger.Info("Message wasn't sent", log.WithMessageID(msg.UUID), log.WithError(err))

		w.WriteHeader(http.StatusServiceUnavailable)

		return
	}

	s.respond(msg, w, r)
}

// verifySender ensures that the verified signer of the request is the actor of the
// activity or, for a Create, the actor to which the embedded object is attributed.
func verifySender(actorIRI *url.URL, activity *vocab.ActivityType) error {
	if activity.Actor() != nil && activity.Actor().String() == actorIRI.String() {
		return nil
	}

	if obj := activity.Object().Object(); obj != nil && obj.AttributedTo() != nil &&
		obj.AttributedTo().String() == actorIRI.String() {
		return nil
	}

	return qerrors.NewKindf(qerrors.KindActorSpoofed,
		"the actor in activity [%s] does not match the signer of the request", activity.ID())
}

// inboxIRI reconstructs the IRI of the target inbox from the request path.
func (s *Subscriber) inboxIRI(r *http.Request) *url.URL {
	iri := *s.ServiceEndpoint
	iri.Path = r.URL.Path

	return &iri
}

func isActivityContentType(contentType string) bool {
	return strings.HasPrefix(contentType, "application/activity+json") ||
		strings.HasPrefix(contentType, "application/ld+json")
}

func (s *Subscriber) publish(msg *message.Message) error {
	if s.State() != lifecycle.StateStarted {
		return lifecycle.ErrNotStarted
	}

	s.pubChan <- msg

	return nil
}

func (s *Subscriber) publisher() {
	for {
		select {
		case msg := <-s.pubChan:
			s.msgChan <- msg

			logger.Debug("Message was delivered to subscriber", log.WithMessageID(msg.UUID))

		case <-s.stopped:
			logger.Info("Stopping publisher", log.WithServiceName(s.ServiceName))

			close(s.done)

			return
		}
	}
}

// respond writes the HTTP response once the consumer has acked or nacked the
// message. A nacked message carries the response status in its metadata.
func (s *Subscriber) respond(msg *message.Message, w http.ResponseWriter, r *http.Request) {
	select {
	case <-msg.Acked():
		logger.Debug("Ack received for message", log.WithMessageID(msg.UUID))

		w.WriteHeader(http.StatusOK)

	case <-msg.Nacked():
		status := errorStatus(msg)

		logger.Info("Nack received for message", log.WithMessageID(msg.UUID),
			log.WithHTTPStatus(status))

		w.WriteHeader(status)

	case <-r.Context().Done():
		logger.Info("Timed out waiting for ack or nack for message",
			log.WithMessageID(msg.UUID), log.WithError(r.Context().Err()))

		w.WriteHeader(http.StatusInternalServerError)

	case <-s.stopped:
		logger.Info("Message was not handled since service was stopped", log.WithMessageID(msg.UUID))

		w.WriteHeader(http.StatusServiceUnavailable)
	}
}

func errorStatus(msg *message.Message) int {
	status, err := strconv.Atoi(msg.Metadata[ErrorStatusKey])
	if err != nil || status < http.StatusOK {
		return http.StatusInternalServerError
	}

	return status
}

func (s *Subscriber) stop() {
	logger.Info("Stopping HTTP subscriber", log.WithServiceName(s.ServiceName))

	close(s.stopped)

	// Wait for the publisher to stop so that the message channel isn't closed
	// while a message is being published to it.
	<-s.done

	close(s.msgChan)
}
