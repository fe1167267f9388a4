/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package inbox implements the server-to-server pipeline: activities posted to a
// local actor's inbox are de-duplicated, checked against the owner's block list,
// persisted, dispatched to the activity handler, and conditionally forwarded to
// the owner's followers.
package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/quillpub/quill/internal/pkg/log"
	"github.com/quillpub/quill/pkg/activitypub/service/activityhandler"
	"github.com/quillpub/quill/pkg/activitypub/service/inbox/httpsubscriber"
	service "github.com/quillpub/quill/pkg/activitypub/service/spi"
	store "github.com/quillpub/quill/pkg/activitypub/store/spi"
	"github.com/quillpub/quill/pkg/activitypub/store/storeutil"
	"github.com/quillpub/quill/pkg/activitypub/vocab"
	qerrors "github.com/quillpub/quill/pkg/errors"
	"github.com/quillpub/quill/pkg/lifecycle"
)

var logger = log.New("activitypub_service")

const defaultSubscriberPoolSize = 5

// Config holds configuration parameters for the Inbox.
type Config struct {
	ServiceName        string
	ServiceEndpoint    *url.URL
	SubscriberPoolSize int
}

type signatureVerifier interface {
	VerifyRequest(req *http.Request, body []byte) (bool, *url.URL, error)
}

type metricsProvider interface {
	InboxHandlerTime(activityType string, value time.Duration)
}

// Inbox implements the ActivityPub inbox.
type Inbox struct {
	*Config
	*lifecycle.Lifecycle
	*service.Handlers

	subscriber      *httpsubscriber.Subscriber
	msgChan         <-chan *message.Message
	activityHandler service.ActivityHandler
	outbox          service.Outbox
	store           store.Store
	metrics         metricsProvider
}

// New returns a new ActivityPub inbox.
func New(cfg *Config, s store.Store, sigVerifier signatureVerifier,
	activityHandler service.ActivityHandler, outbox service.Outbox,
	metrics metricsProvider, opts ...service.HandlerOpt) (*Inbox, error) {
	if cfg.SubscriberPoolSize == 0 {
		cfg.SubscriberPoolSize = defaultSubscriberPoolSize
	}

	options := defaultOptions(s)

	for _, opt := range opts {
		opt(options)
	}

	subscriber := httpsubscriber.New(
		&httpsubscriber.Config{
			ServiceName:     cfg.ServiceName,
			ServiceEndpoint: cfg.ServiceEndpoint,
		},
		sigVerifier, options.InboxRequestBodyHook,
	)

	msgChan, err := subscriber.Subscribe(context.Background(), "")
	if err != nil {
		return nil, fmt.Errorf("subscribe to HTTP messages: %w", err)
	}

	h := &Inbox{
		Config:          cfg,
		Handlers:        options,
		subscriber:      subscriber,
		msgChan:         msgChan,
		activityHandler: activityHandler,
		outbox:          outbox,
		store:           s,
		metrics:         metrics,
	}

	h.Lifecycle = lifecycle.New(cfg.ServiceName+"-inbox",
		lifecycle.WithStart(h.start),
		lifecycle.WithStop(h.stop),
	)

	return h, nil
}

func defaultOptions(s store.Store) *service.Handlers {
	return &service.Handlers{
		Blocked: func(ownerIRI *url.URL, actorIRIs []*url.URL) (bool, error) {
			return storeutil.AnyBlocked(s, ownerIRI, actorIRIs)
		},
		FilterForwarding: func(_ *url.URL, _ *vocab.ActivityType, recipients []*url.URL) ([]*url.URL, error) {
			return recipients, nil
		},
		MaxInboxForwardingDepth: service.DefaultMaxInboxForwardingDepth,
	}
}

// HTTPHandler returns the HTTP handler which accepts activities posted to an inbox.
// This handler must be registered with an HTTP server.
func (h *Inbox) HTTPHandler() http.HandlerFunc {
	return h.subscriber.Handler()
}

func (h *Inbox) start() {
	for i := 0; i < h.SubscriberPoolSize; i++ {
		go h.listen()
	}
}

func (h *Inbox) stop() {
	if err := h.subscriber.Close(); err != nil {
		logger.Warn("Error closing HTTP subscriber", log.WithError(err))
	}
}

func (h *Inbox) listen() {
	for msg := range h.msgChan {
		h.handle(msg)
	}
}

// nack attaches the HTTP status for the given error to the message and nacks it
// so that the HTTP subscriber responds with that status.
func nack(msg *message.Message, err error) {
	msg.Metadata[httpsubscriber.ErrorStatusKey] = strconv.Itoa(qerrors.HTTPStatusOf(err))

	msg.Nack()
}

func (h *Inbox) handle(msg *message.Message) {
	startTime := time.Now()

	activity := &vocab.ActivityType{}

	if err := json.Unmarshal(msg.Payload, activity); err != nil {
		logger.Error("Error unmarshalling activity message", log.WithMessageID(msg.UUID),
			log.WithError(err))

		nack(msg, qerrors.NewKind(qerrors.KindMalformedBody, err))

		return
	}

	defer func() {
		h.metrics.InboxHandlerTime(activity.Type().String(), time.Since(startTime))
	}()

	err := h.handleActivity(msg, activity)
	if err == nil {
		logger.Debug("Successfully processed activity", log.WithMessageID(msg.UUID),
			log.WithActivityID(activity.ID()))

		msg.Ack()

		return
	}

	if qerrors.IsKind(err, qerrors.KindDuplicate) || qerrors.IsKind(err, qerrors.KindBlocked) {
		// Duplicate and blocked activities are acknowledged without processing
		// so that the sender does not retry.
		logger.Info("Ignoring activity", log.WithMessageID(msg.UUID),
			log.WithActivityID(activity.ID()), log.WithError(err))

		msg.Ack()

		return
	}

	logger.Warn("Error processing activity", log.WithMessageID(msg.UUID),
		log.WithActivityID(activity.ID()), log.WithError(err))

	nack(msg, err)
}

func (h *Inbox) handleActivity(msg *message.Message, activity *vocab.ActivityType) error {
	if activity.ID() == nil || activity.ID().URL() == nil {
		return qerrors.NewKindf(qerrors.KindMalformedBody, "no ID specified in activity")
	}

	if activity.Actor() == nil {
		return qerrors.NewKindf(qerrors.KindMalformedBody, "no actor specified in activity [%s]",
			activity.ID())
	}

	ownerIRI, err := h.resolveInboxOwner(msg)
	if err != nil {
		return err
	}

	_, err = h.store.GetActivity(activity.ID().URL())
	if err == nil {
		return qerrors.NewKindf(qerrors.KindDuplicate, "activity [%s] has already been processed",
			activity.ID())
	}

	if !errors.Is(err, store.ErrNotFound) {
		return qerrors.NewTransient(fmt.Errorf("check for duplicate activity [%s]: %w", activity.ID(), err))
	}

	blocked, err := h.Blocked(ownerIRI, []*url.URL{activity.Actor()})
	if err != nil {
		return qerrors.NewTransient(fmt.Errorf("check block list: %w", err))
	}

	if blocked {
		return qerrors.NewKindf(qerrors.KindBlocked, "actor [%s] is blocked by [%s]",
			activity.Actor(), ownerIRI)
	}

	if err := activityhandler.CheckObjectSpoofing(h.store, activity); err != nil {
		return err
	}

	if err := h.store.AddActivity(activity); err != nil {
		return qerrors.NewTransient(fmt.Errorf("store activity [%s]: %w", activity.ID(), err))
	}

	if err := h.store.AddReference(store.Inbox, ownerIRI, activity.ID().URL()); err != nil {
		return qerrors.NewTransient(fmt.Errorf("add activity [%s] to inbox: %w", activity.ID(), err))
	}

	if err := h.activityHandler.HandleActivity(ownerIRI, activity); err != nil {
		return fmt.Errorf("handle activity [%s]: %w", activity.ID(), err)
	}

	// Forwarding is best-effort: a failure here must not fail the delivery.
	h.forward(ownerIRI, activity)

	return nil
}

// resolveInboxOwner maps the inbox IRI in the message metadata to the local actor
// that owns the inbox.
func (h *Inbox) resolveInboxOwner(msg *message.Message) (*url.URL, error) {
	inboxIRI, err := url.Parse(msg.Metadata[httpsubscriber.InboxIRIKey])
	if err != nil {
		return nil, qerrors.NewKindf(qerrors.KindMalformedBody, "invalid inbox IRI in message [%s]",
			msg.UUID)
	}

	ownerIRI, err := storeutil.ActorForInbox(inboxIRI)
	if err != nil {
		return nil, qerrors.NewKind(qerrors.KindNotFound, err)
	}

	if _, err := h.store.GetActor(ownerIRI); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, qerrors.NewKindf(qerrors.KindNotFound, "actor [%s] does not exist", ownerIRI)
		}

		return nil, qerrors.NewTransient(fmt.Errorf("retrieve actor [%s]: %w", ownerIRI, err))
	}

	return ownerIRI, nil
}

// forward implements inbox forwarding: an activity addressed to one of the owner's
// collections, whose object chain references a local object, is delivered to the
// members of those collections on behalf of the origin server.
func (h *Inbox) forward(ownerIRI *url.URL, activity *vocab.ActivityType) {
	recipients := publicRecipients(activity)

	if !h.hasOwnedCollection(ownerIRI, recipients) {
		return
	}

	if !h.referencesLocalObject(activity, h.MaxInboxForwardingDepth) {
		return
	}

	filtered, err := h.FilterForwarding(ownerIRI, activity, recipients)
	if err != nil {
		logger.Error("Error filtering forwarding recipients", log.WithActivityID(activity.ID()),
			log.WithError(err))

		return
	}

	if len(filtered) == 0 {
		return
	}

	logger.Debug("Forwarding activity to collection members", log.WithActivityID(activity.ID()),
		log.WithActorIRI(ownerIRI), log.WithTotal(len(filtered)))

	if err := h.outbox.Forward(ownerIRI, activity, filtered); err != nil {
		logger.Error("Error forwarding activity", log.WithActivityID(activity.ID()),
			log.WithError(err))
	}
}

// publicRecipients returns the visible addressing of the activity. Hidden
// recipients (bto, bcc) are never forwarded.
func publicRecipients(activity *vocab.ActivityType) []*url.URL {
	var recipients []*url.URL

	recipients = append(recipients, activity.To()...)
	recipients = append(recipients, activity.CC()...)
	recipients = append(recipients, activity.Audience()...)

	return recipients
}

// hasOwnedCollection reports whether any of the recipients is a followers or
// following collection belonging to the given local actor.
func (h *Inbox) hasOwnedCollection(ownerIRI *url.URL, recipients []*url.URL) bool {
	for _, r := range recipients {
		if !storeutil.IsLocal(r, h.ServiceEndpoint) {
			continue
		}

		base := path.Base(r.Path)
		if base != "followers" && base != "following" {
			continue
		}

		collOwner := *r
		collOwner.Path = path.Dir(r.Path)

		if collOwner.String() == ownerIRI.String() {
			return true
		}
	}

	return false
}

// referencesLocalObject reports whether the activity's object chain references an
// object hosted by this server, recursing into embedded activities up to the
// given depth. A negative depth is unbounded. A reply (inReplyTo) to a local
// object and a target pointing at a local object both count as references.
func (h *Inbox) referencesLocalObject(activity *vocab.ActivityType, depth int) bool {
	if depth == 0 {
		return false
	}

	if iri := activity.Object().IRI(); iri != nil && storeutil.IsLocal(iri, h.ServiceEndpoint) {
		return true
	}

	if target := activity.Target(); target != nil {
		if iri := target.IRI(); iri != nil && storeutil.IsLocal(iri, h.ServiceEndpoint) {
			return true
		}
	}

	if obj := activity.Object().Object(); obj != nil {
		if obj.ID() != nil && obj.ID().URL() != nil &&
			storeutil.IsLocal(obj.ID().URL(), h.ServiceEndpoint) {
			return true
		}

		if inReplyTo := obj.InReplyTo().URL(); inReplyTo != nil &&
			storeutil.IsLocal(inReplyTo, h.ServiceEndpoint) {
			return true
		}
	}

	if embedded := activity.Object().Activity(); embedded != nil {
		if embedded.ID() != nil && embedded.ID().URL() != nil &&
			storeutil.IsLocal(embedded.ID().URL(), h.ServiceEndpoint) {
			return true
		}

		return h.referencesLocalObject(embedded, depth-1)
	}

	return false
}
