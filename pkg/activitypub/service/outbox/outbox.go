/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package outbox implements the client-to-server pipeline and the delivery engine:
// activities posted by local users are validated, side-effected, appended to the
// user's outbox, and fanned out to the inboxes of their recipients through a
// watermill message queue with redelivery on transient failures.
package outbox

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/quillpub/quill/internal/pkg/log"
	"github.com/quillpub/quill/pkg/activitypub/client"
	"github.com/quillpub/quill/pkg/activitypub/client/transport"
	"github.com/quillpub/quill/pkg/activitypub/service/activityhandler"
	"github.com/quillpub/quill/pkg/activitypub/service/outbox/redelivery"
	service "github.com/quillpub/quill/pkg/activitypub/service/spi"
	store "github.com/quillpub/quill/pkg/activitypub/store/spi"
	"github.com/quillpub/quill/pkg/activitypub/store/storeutil"
	"github.com/quillpub/quill/pkg/activitypub/vocab"
	qerrors "github.com/quillpub/quill/pkg/errors"
	"github.com/quillpub/quill/pkg/lifecycle"
)

var logger = log.New("activitypub_service")

const (
	defaultTopic                 = "outbox"
	defaultMaxRecipients         = 100
	defaultMaxConcurrentRequests = 10
	defaultSubscriberPoolSize    = 5
)

type messageType string

const (
	// broadcastType messages carry an activity plus its unexpanded recipient list.
	broadcastType messageType = "broadcast"

	// deliverType messages carry an activity plus a single resolved inbox URL.
	deliverType messageType = "deliver"
)

type activityMessage struct {
	Type       messageType          `json:"type"`
	Actor      *vocab.URLProperty   `json:"actor"`
	Activity   *vocab.ActivityType  `json:"activity"`
	Target     *vocab.URLProperty   `json:"target,omitempty"`
	Recipients []*vocab.URLProperty `json:"recipients,omitempty"`
}

// Config holds configuration parameters for the outbox.
type Config struct {
	ServiceName           string
	ServiceEndpoint       *url.URL
	Topic                 string
	MaxRecipients         int
	MaxConcurrentRequests int
	MaxDeliveryDepth      int
	SubscriberPoolSize    int
}

// PubSub defines the functions for a publisher/subscriber.
type PubSub interface {
	Publish(topic string, messages ...*message.Message) error
	Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error)
}

type activityPubClient interface {
	GetActor(actorIRI *url.URL) (*vocab.ActorType, error)
	GetReferences(iri *url.URL) (client.ReferenceIterator, error)
}

type transportProvider interface {
	ForActor(actorIRI *url.URL) (*transport.Transport, error)
}

type metricsProvider interface {
	OutboxPostTime(value time.Duration)
	OutboxResolveInboxesTime(value time.Duration)
}

// Outbox implements the ActivityPub outbox.
type Outbox struct {
	*Config
	*lifecycle.Lifecycle

	store           store.Store
	pubSub          PubSub
	activityHandler service.ActivityHandler
	client          activityPubClient
	transports      transportProvider
	redeliverer     *redelivery.Service
	redeliveryChan  chan *message.Message
	metrics         metricsProvider
	wg              sync.WaitGroup
}

// New returns a new ActivityPub outbox.
func New(cfg *Config, s store.Store, pubSub PubSub, activityHandler service.ActivityHandler,
	apClient activityPubClient, transports transportProvider, redeliveryCfg *redelivery.Config,
	metrics metricsProvider) *Outbox {
	cfg = populateConfigDefaults(cfg)

	redeliveryChan := make(chan *message.Message, defaultMaxConcurrentRequests)

	h := &Outbox{
		Config:          cfg,
		store:           s,
		pubSub:          pubSub,
		activityHandler: activityHandler,
		client:          apClient,
		transports:      transports,
		redeliveryChan:  redeliveryChan,
		redeliverer:     redelivery.NewService(cfg.ServiceName, redeliveryCfg, redeliveryChan),
		metrics:         metrics,
	}

	h.Lifecycle = lifecycle.New(cfg.ServiceName+"-outbox",
		lifecycle.WithStart(h.start),
		lifecycle.WithStop(h.stop),
	)

	return h
}

func populateConfigDefaults(cnfg *Config) *Config {
	cfg := *cnfg

	if cfg.Topic == "" {
		cfg.Topic = defaultTopic
	}

	if cfg.MaxRecipients == 0 {
		cfg.MaxRecipients = defaultMaxRecipients
	}

	if cfg.MaxConcurrentRequests == 0 {
		cfg.MaxConcurrentRequests = defaultMaxConcurrentRequests
	}

	if cfg.MaxDeliveryDepth == 0 {
		cfg.MaxDeliveryDepth = service.DefaultMaxDeliveryDepth
	}

	if cfg.SubscriberPoolSize == 0 {
		cfg.SubscriberPoolSize = defaultSubscriberPoolSize
	}

	return &cfg
}

func (h *Outbox) start() {
	msgChan, err := h.pubSub.Subscribe(context.Background(), h.Topic)
	if err != nil {
		logger.Error("Unable to subscribe to topic", log.WithTopic(h.Topic), log.WithError(err))

		return
	}

	undeliverableChan, err := h.pubSub.Subscribe(context.Background(), service.UndeliverableTopic)
	if err != nil {
		logger.Error("Unable to subscribe to undeliverable topic", log.WithError(err))

		return
	}

	h.redeliverer.Start()

	for i := 0; i < h.SubscriberPoolSize; i++ {
		h.wg.Add(1)

		go h.listen(msgChan)
	}

	h.wg.Add(2)

	go h.listenForUndeliverable(undeliverableChan)
	go h.listenForRedelivery()
}

func (h *Outbox) stop() {
	h.redeliverer.Stop()

	close(h.redeliveryChan)
}

func (h *Outbox) listen(msgChan <-chan *message.Message) {
	defer h.wg.Done()

	for msg := range msgChan {
		h.handleMessage(msg)
	}
}

func (h *Outbox) listenForUndeliverable(msgChan <-chan *message.Message) {
	defer h.wg.Done()

	for msg := range msgChan {
		deliverAt, err := h.redeliverer.Add(msg)
		if err != nil {
			logger.Error("Giving up on delivery of message", log.WithMessageID(msg.UUID),
				log.WithError(err))

			msg.Ack()

			continue
		}

		logger.Info("Scheduled message for redelivery", log.WithMessageID(msg.UUID),
			log.WithBackoff(time.Until(deliverAt)))

		msg.Ack()
	}
}

func (h *Outbox) listenForRedelivery() {
	defer h.wg.Done()

	for msg := range h.redeliveryChan {
		if err := h.pubSub.Publish(h.Topic, msg); err != nil {
			logger.Error("Unable to re-publish message for redelivery",
				log.WithMessageID(msg.UUID), log.WithError(err))
		}
	}
}

// Post posts an activity to the outbox of the given local actor and returns the IRI
// minted for the activity. The activity is validated, assigned new IDs, side-effected
// and stored synchronously; delivery to the recipients' inboxes happens asynchronously.
func (h *Outbox) Post(actorIRI *url.URL, activity *vocab.ActivityType) (*url.URL, error) {
	if h.State() != lifecycle.StateStarted {
		return nil, lifecycle.ErrNotStarted
	}

	startTime := time.Now()
	defer func() {
		h.metrics.OutboxPostTime(time.Since(startTime))
	}()

	if err := h.validateActivity(actorIRI, activity); err != nil {
		return nil, err
	}

	if err := activityhandler.CheckObjectSpoofing(h.store, activity); err != nil {
		return nil, err
	}

	h.mintIDs(actorIRI, activity)

	if err := h.activityHandler.HandleActivity(actorIRI, activity); err != nil {
		return nil, fmt.Errorf("handle activity [%s]: %w", activity.ID(), err)
	}

	// The recipient set is captured before bto/bcc are stripped: hidden recipients
	// receive the activity but never appear in the stored or delivered copy.
	recipients := activity.Recipients()

	activity.StripHiddenRecipients()

	if err := h.storeActivity(actorIRI, activity, recipients); err != nil {
		return nil, err
	}

	// A Block is recorded locally and never delivered to anyone, least of all its target.
	if !activity.Type().Is(vocab.TypeBlock) {
		if err := h.publishBroadcast(actorIRI, activity, recipients); err != nil {
			return nil, err
		}
	}

	return activity.ID().URL(), nil
}

// Forward delivers an already-received activity, verbatim, to the given recipients.
// Nothing is persisted and no side effects are applied.
func (h *Outbox) Forward(actorIRI *url.URL, activity *vocab.ActivityType, recipients []*url.URL) error {
	if h.State() != lifecycle.StateStarted {
		return lifecycle.ErrNotStarted
	}

	if len(recipients) == 0 {
		return nil
	}

	return h.publishBroadcast(actorIRI, activity, recipients)
}

func (h *Outbox) validateActivity(actorIRI *url.URL, activity *vocab.ActivityType) error {
	if activity.Actor() == nil {
		activity.SetActor(actorIRI)
	} else if activity.Actor().String() != actorIRI.String() {
		return qerrors.NewKindf(qerrors.KindActorSpoofed,
			"the actor of the posted activity does not match the outbox owner [%s]", actorIRI)
	}

	if activity.Type().Is(vocab.TypeCreate) {
		obj := activity.Object().Object()
		if obj != nil {
			if obj.AttributedTo() == nil {
				obj.SetAttributedTo(actorIRI)
			} else if obj.AttributedTo().String() != actorIRI.String() {
				return qerrors.NewKindf(qerrors.KindActorSpoofed,
					"the object of the posted 'Create' is not attributed to the outbox owner [%s]", actorIRI)
			}
		}
	}

	return nil
}

// mintIDs assigns a freshly minted IRI to the activity, ignoring any client-supplied
// ID, and to an embedded object that arrived without one.
func (h *Outbox) mintIDs(actorIRI *url.URL, activity *vocab.ActivityType) {
	now := time.Now()

	activity.SetID(storeutil.MintID(actorIRI, storeutil.CategoryActivities))
	activity.SetPublished(&now)

	if activity.Type().IsAny(vocab.TypeCreate, vocab.TypeUpdate) {
		obj := activity.Object().Object()
		if obj != nil {
			if obj.ID() == nil || obj.ID().URL() == nil {
				obj.SetID(storeutil.MintID(actorIRI, storeutil.CategoryObjects))
			}

			if obj.Published() == nil {
				obj.SetPublished(&now)
			}
		}
	}
}

func (h *Outbox) storeActivity(actorIRI *url.URL, activity *vocab.ActivityType,
	recipients []*url.URL) error {
	if err := h.store.AddActivity(activity); err != nil {
		return qerrors.NewTransient(fmt.Errorf("store activity: %w", err))
	}

	activityIRI := activity.ID().URL()

	if err := h.store.AddReference(store.Outbox, actorIRI, activityIRI); err != nil {
		return qerrors.NewTransient(fmt.Errorf("add activity to outbox: %w", err))
	}

	for _, r := range recipients {
		if vocab.IsPublic(r) {
			if err := h.store.AddReference(store.PublicOutbox, actorIRI, activityIRI); err != nil {
				return qerrors.NewTransient(fmt.Errorf("add activity to public outbox: %w", err))
			}

			break
		}
	}

	return nil
}

func (h *Outbox) publishBroadcast(actorIRI *url.URL, activity *vocab.ActivityType,
	recipients []*url.URL) error {
	msg := &activityMessage{
		Type:     broadcastType,
		Actor:    vocab.NewURLProperty(actorIRI),
		Activity: activity,
	}

	for _, r := range recipients {
		msg.Recipients = append(msg.Recipients, vocab.NewURLProperty(r))
	}

	return h.publish(msg)
}

func (h *Outbox) publish(am *activityMessage) error {
	payload, err := vocab.Marshal(am)
	if err != nil {
		return fmt.Errorf("marshal activity message: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)

	logger.Debug("Publishing activity message", log.WithTopic(h.Topic),
		log.WithMessageID(msg.UUID), log.WithActivityID(am.Activity.ID()))

	if err := h.pubSub.Publish(h.Topic, msg); err != nil {
		return qerrors.NewTransient(fmt.Errorf("publish to topic %s: %w", h.Topic, err))
	}

	return nil
}

func (h *Outbox) handleMessage(msg *message.Message) {
	am := &activityMessage{}

	if err := vocab.UnmarshalJSON(msg.Payload, am); err != nil {
		logger.Error("Error unmarshalling activity message. Message will be dropped.",
			log.WithMessageID(msg.UUID), log.WithError(err))

		msg.Ack()

		return
	}

	switch am.Type {
	case broadcastType:
		h.handleBroadcast(msg, am)
	case deliverType:
		h.handleDeliver(msg, am)
	default:
		logger.Error("Unsupported activity message type. Message will be dropped.",
			log.WithMessageID(msg.UUID), log.WithType(string(am.Type)))

		msg.Ack()
	}
}

// handleBroadcast resolves the recipient list of an activity to a de-duplicated set
// of inbox URLs and publishes one deliver message per inbox.
func (h *Outbox) handleBroadcast(msg *message.Message, am *activityMessage) {
	actorIRI := am.Actor.URL()

	var recipients []*url.URL
	for _, r := range am.Recipients {
		recipients = append(recipients, r.URL())
	}

	inboxes := h.resolveInboxes(actorIRI, am.Activity, recipients)

	for _, inboxURL := range inboxes {
		err := h.publish(&activityMessage{
			Type:     deliverType,
			Actor:    am.Actor,
			Activity: am.Activity,
			Target:   vocab.NewURLProperty(inboxURL),
		})
		if err != nil {
			logger.Error("Error publishing deliver message", log.WithActivityID(am.Activity.ID()),
				log.WithTargetIRI(inboxURL), log.WithError(err))
		}
	}

	msg.Ack()
}

// handleDeliver posts an activity to a single inbox. A 2xx response acks the message;
// a transient failure nacks it so that it is scheduled for redelivery; any other
// failure is fatal and logged.
func (h *Outbox) handleDeliver(msg *message.Message, am *activityMessage) {
	err := h.deliver(am.Actor.URL(), am.Activity, am.Target.URL())
	if err == nil {
		logger.Debug("Activity was delivered", log.WithActivityID(am.Activity.ID()),
			log.WithTargetIRI(am.Target))

		msg.Ack()

		return
	}

	if qerrors.IsTransient(err) {
		logger.Warn("Transient error delivering activity. Delivery will be retried.",
			log.WithActivityID(am.Activity.ID()), log.WithTargetIRI(am.Target), log.WithError(err))

		msg.Nack()

		return
	}

	logger.Error("Permanent error delivering activity. Delivery will NOT be retried.",
		log.WithActivityID(am.Activity.ID()), log.WithTargetIRI(am.Target), log.WithError(err))

	msg.Ack()
}

func (h *Outbox) deliver(actorIRI *url.URL, activity *vocab.ActivityType, inboxURL *url.URL) error {
	t, err := h.transports.ForActor(actorIRI)
	if err != nil {
		return fmt.Errorf("get transport for %s: %w", actorIRI, err)
	}

	payload, err := vocab.Marshal(activity)
	if err != nil {
		return fmt.Errorf("marshal activity [%s]: %w", activity.ID(), err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), transport.DefaultRequestTimeout)
	defer cancel()

	resp, err := t.Post(ctx, transport.NewRequest(inboxURL), payload)
	if err != nil {
		return qerrors.NewTransient(fmt.Errorf("post to %s: %w", inboxURL, err))
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Warn("Error closing response body", log.WithError(err))
		}
	}()

	if resp.StatusCode >= http.StatusInternalServerError {
		return qerrors.NewTransientf("post to %s returned status %d", inboxURL, resp.StatusCode)
	}

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("post to %s returned status %d", inboxURL, resp.StatusCode)
	}

	return nil
}

// resolveInboxes expands the recipient set (recursively substituting the members of
// collections, bounded by MaxDeliveryDepth) and maps each remaining actor to its
// inbox URL. The activity's own actor, the Public IRI, actors blocked by the sender,
// and unresolvable recipients are excluded. The returned URLs are de-duplicated.
func (h *Outbox) resolveInboxes(actorIRI *url.URL, activity *vocab.ActivityType,
	recipients []*url.URL) []*url.URL {
	startTime := time.Now()
	defer func() {
		h.metrics.OutboxResolveInboxesTime(time.Since(startTime))
	}()

	actorIRIs := make(map[string]*url.URL)
	visited := make(map[string]struct{})

	for _, r := range recipients {
		h.expandRecipient(r, h.MaxDeliveryDepth, visited, actorIRIs)
	}

	inboxes := make(map[string]*url.URL)

	var result []*url.URL

	for _, iri := range actorIRIs {
		if iri.String() == activity.Actor().String() {
			continue
		}

		if blocked, err := storeutil.AnyBlocked(h.store, actorIRI, []*url.URL{iri}); err != nil {
			logger.Warn("Error checking block list. Recipient will be skipped.",
				log.WithActorIRI(iri), log.WithError(err))

			continue
		} else if blocked {
			logger.Debug("Skipping delivery to blocked actor", log.WithActorIRI(iri))

			continue
		}

		inboxURL, err := h.inboxForActor(iri)
		if err != nil {
			logger.Warn("Unable to resolve inbox. Recipient will be skipped.",
				log.WithActorIRI(iri), log.WithError(err))

			continue
		}

		if _, ok := inboxes[inboxURL.String()]; !ok {
			inboxes[inboxURL.String()] = inboxURL

			result = append(result, inboxURL)
		}
	}

	return result
}

// expandRecipient adds the given recipient to the actor set, substituting the members
// of a collection recipient. Expanding a collection consumes one level of depth; when
// no depth remains the collection is skipped without error. A negative depth is
// unbounded; termination is still guaranteed by the visited set.
func (h *Outbox) expandRecipient(iri *url.URL, depth int, visited map[string]struct{},
	actorIRIs map[string]*url.URL) {
	if vocab.IsPublic(iri) {
		return
	}

	if _, ok := visited[iri.String()]; ok {
		return
	}

	visited[iri.String()] = struct{}{}

	if h.isLocalCollection(iri) {
		if depth == 0 {
			logger.Warn("Maximum delivery recursion depth reached. Collection will not be expanded.",
				log.WithURI(iri))

			return
		}

		for _, member := range h.localCollectionMembers(iri) {
			h.expandRecipient(member, depth-1, visited, actorIRIs)
		}

		return
	}

	if storeutil.IsLocal(iri, h.ServiceEndpoint) {
		actorIRIs[iri.String()] = iri

		return
	}

	h.expandRemoteRecipient(iri, depth, visited, actorIRIs)
}

// expandRemoteRecipient dereferences a remote recipient, which may be a plain actor
// or a collection of actors.
func (h *Outbox) expandRemoteRecipient(iri *url.URL, depth int, visited map[string]struct{},
	actorIRIs map[string]*url.URL) {
	it, err := h.client.GetReferences(iri)
	if err != nil {
		logger.Warn("Unable to resolve recipient. Recipient will be skipped.",
			log.WithURI(iri), log.WithError(err))

		return
	}

	refs, err := client.ReadReferences(it, h.MaxRecipients)
	if err != nil {
		logger.Warn("Unable to read recipient references. Recipient will be skipped.",
			log.WithURI(iri), log.WithError(err))

		return
	}

	// A plain actor resolves to itself.
	if len(refs) == 1 && refs[0].String() == iri.String() {
		actorIRIs[iri.String()] = iri

		return
	}

	if depth == 0 {
		logger.Warn("Maximum delivery recursion depth reached. Collection will not be expanded.",
			log.WithURI(iri))

		return
	}

	for _, ref := range refs {
		h.expandRecipient(ref, depth-1, visited, actorIRIs)
	}
}

// isLocalCollection reports whether the IRI names a followers/following collection
// of a local actor.
func (h *Outbox) isLocalCollection(iri *url.URL) bool {
	if !storeutil.IsLocal(iri, h.ServiceEndpoint) {
		return false
	}

	base := path.Base(iri.Path)

	return base == "followers" || base == "following"
}

func (h *Outbox) localCollectionMembers(iri *url.URL) []*url.URL {
	ownerIRI := *iri
	ownerIRI.Path = path.Dir(iri.Path)

	refType := store.Follower
	if path.Base(iri.Path) == "following" {
		refType = store.Following
	}

	it, err := h.store.QueryReferences(refType,
		store.NewCriteria(store.WithObjectIRI(&ownerIRI)),
		store.WithPageSize(h.MaxRecipients),
	)
	if err != nil {
		logger.Warn("Error querying local collection. Collection will be skipped.",
			log.WithURI(iri), log.WithError(err))

		return nil
	}

	members, err := storeutil.ReadReferences(it)
	if err != nil {
		logger.Warn("Error reading local collection. Collection will be skipped.",
			log.WithURI(iri), log.WithError(err))

		return nil
	}

	return members
}

// inboxForActor maps an actor IRI to the URL of the actor's inbox. The inbox of a
// local actor is derived from its IRI; a remote actor is dereferenced.
func (h *Outbox) inboxForActor(actorIRI *url.URL) (*url.URL, error) {
	if storeutil.IsLocal(actorIRI, h.ServiceEndpoint) {
		inboxURL := *actorIRI
		inboxURL.Path = path.Join(actorIRI.Path, "inbox")

		return &inboxURL, nil
	}

	actor, err := h.client.GetActor(actorIRI)
	if err != nil {
		return nil, fmt.Errorf("retrieve actor [%s]: %w", actorIRI, err)
	}

	if actor.Inbox() == nil {
		return nil, fmt.Errorf("actor [%s] does not advertise an inbox", actorIRI)
	}

	return actor.Inbox(), nil
}
