/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package service assembles the ActivityPub engine: the inbox (server-to-server),
// the outbox (client-to-server and delivery), the per-type activity handlers, and
// the signed HTTP client through which remote objects are resolved.
package service

import (
	"context"
	"crypto/x509"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/quillpub/quill/pkg/activitypub/client"
	"github.com/quillpub/quill/pkg/activitypub/client/transport"
	"github.com/quillpub/quill/pkg/activitypub/httpsig"
	"github.com/quillpub/quill/pkg/activitypub/service/activityhandler"
	"github.com/quillpub/quill/pkg/activitypub/service/inbox"
	"github.com/quillpub/quill/pkg/activitypub/service/outbox"
	"github.com/quillpub/quill/pkg/activitypub/service/outbox/redelivery"
	"github.com/quillpub/quill/pkg/activitypub/service/spi"
	store "github.com/quillpub/quill/pkg/activitypub/store/spi"
	"github.com/quillpub/quill/pkg/activitypub/vocab"
	"github.com/quillpub/quill/pkg/keystore"
	"github.com/quillpub/quill/pkg/lifecycle"
)

const activitiesTopic = "activities"

// PubSub defines the functions for a publisher/subscriber.
type PubSub interface {
	Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error)
	Publish(topic string, messages ...*message.Message) error
	Close() error
}

type metricsProvider interface {
	InboxHandlerTime(activityType string, value time.Duration)
	OutboxPostTime(value time.Duration)
	OutboxResolveInboxesTime(value time.Duration)
	SignerSignTime(value time.Duration)
	SignatureVerificationTime(value time.Duration)
}

// Config holds the configuration parameters for an ActivityPub service.
type Config struct {
	ServiceName               string
	ServiceEndpoint           *url.URL
	RootCAs                   *x509.CertPool
	RetryOpts                 *redelivery.Config
	ActivityHandlerBufferSize int
	MaxRecipients             int
	MaxConcurrentRequests     int
	MaxDeliveryDepth          int
	SubscriberPoolSize        int
	ClientCacheSize           int
	ClientCacheExpiration     time.Duration
}

// Service implements an ActivityPub service which has an inbox, an outbox, and
// handlers for the various ActivityPub activities.
type Service struct {
	*lifecycle.Lifecycle

	inbox         *inbox.Inbox
	outbox        *outbox.Outbox
	inboxHandler  *activityhandler.Inbox
	outboxHandler *activityhandler.Outbox
	resolver      *client.Resolver
	sigVerifier   *httpsig.Verifier
}

// New returns a new ActivityPub service.
func New(cfg *Config, activityStore store.Store, pubSub PubSub, keyStore *keystore.KeyStore,
	metrics metricsProvider, handlerOpts ...spi.HandlerOpt) (*Service, error) {
	transports := newTransportProvider(cfg.RootCAs, keyStore,
		httpsig.NewSigner(httpsig.DefaultGetSignerConfig(), metrics),
		httpsig.NewSigner(httpsig.DefaultPostSignerConfig(), metrics),
	)

	// Requests made on the server's own behalf (such as resolving the actor of an
	// incoming activity) are signed with the instance key.
	instanceTransport, err := transports.ForActor(cfg.ServiceEndpoint)
	if err != nil {
		return nil, fmt.Errorf("create instance transport: %w", err)
	}

	apClient := client.New(
		client.Config{
			CacheSize:       cfg.ClientCacheSize,
			CacheExpiration: cfg.ClientCacheExpiration,
		},
		instanceTransport,
	)

	resolver := client.NewResolver(apClient, activityStore, cfg.ServiceEndpoint)

	handlerCfg := &activityhandler.Config{
		ServiceName:     cfg.ServiceName,
		ServiceEndpoint: cfg.ServiceEndpoint,
		BufferSize:      cfg.ActivityHandlerBufferSize,
	}

	outboxHandler := activityhandler.NewOutbox(handlerCfg, activityStore)

	ob := outbox.New(
		&outbox.Config{
			ServiceName:           cfg.ServiceName,
			ServiceEndpoint:       cfg.ServiceEndpoint,
			Topic:                 activitiesTopic,
			MaxRecipients:         cfg.MaxRecipients,
			MaxConcurrentRequests: cfg.MaxConcurrentRequests,
			MaxDeliveryDepth:      cfg.MaxDeliveryDepth,
			SubscriberPoolSize:    cfg.SubscriberPoolSize,
		},
		activityStore, pubSub, outboxHandler, resolver, transports, cfg.RetryOpts, metrics,
	)

	inboxHandler := activityhandler.NewInbox(handlerCfg, activityStore, ob, resolver, handlerOpts...)

	sigVerifier := httpsig.NewVerifier(resolver, metrics)

	ib, err := inbox.New(
		&inbox.Config{
			ServiceName:        cfg.ServiceName,
			ServiceEndpoint:    cfg.ServiceEndpoint,
			SubscriberPoolSize: cfg.SubscriberPoolSize,
		},
		activityStore, sigVerifier, inboxHandler, ob, metrics, handlerOpts...,
	)
	if err != nil {
		return nil, fmt.Errorf("create inbox: %w", err)
	}

	s := &Service{
		inbox:         ib,
		outbox:        ob,
		inboxHandler:  inboxHandler,
		outboxHandler: outboxHandler,
		resolver:      resolver,
		sigVerifier:   sigVerifier,
	}

	s.Lifecycle = lifecycle.New(cfg.ServiceName,
		lifecycle.WithStart(s.start),
		lifecycle.WithStop(s.stop),
	)

	return s, nil
}

func (s *Service) start() {
	s.outbox.Start()
	s.inbox.Start()
}

func (s *Service) stop() {
	s.inbox.Stop()
	s.outbox.Stop()
}

// Outbox returns the outbox, which allows clients to post activities.
func (s *Service) Outbox() spi.Outbox {
	return s.outbox
}

// InboxHTTPHandler returns the HTTP handler which accepts activities posted to
// the inbox of a local actor. The handler must be registered with an HTTP server.
func (s *Service) InboxHTTPHandler() http.HandlerFunc {
	return s.inbox.HTTPHandler()
}

// Resolver returns the resolver through which local and remote ActivityPub
// objects are dereferenced.
func (s *Service) Resolver() *client.Resolver {
	return s.resolver
}

// SignatureVerifier returns the verifier for signatures on incoming HTTP requests.
func (s *Service) SignatureVerifier() *httpsig.Verifier {
	return s.sigVerifier
}

// Subscribe allows a client to receive activities that were processed by the inbox.
func (s *Service) Subscribe() <-chan *vocab.ActivityType {
	return s.inboxHandler.Subscribe()
}

// transportProvider creates signed transports for local actors using the keys in
// the key store.
type transportProvider struct {
	httpClient *http.Client
	keyStore   *keystore.KeyStore
	getSigner  transport.Signer
	postSigner transport.Signer
}

func newTransportProvider(rootCAs *x509.CertPool, keyStore *keystore.KeyStore,
	getSigner, postSigner transport.Signer) *transportProvider {
	return &transportProvider{
		httpClient: transport.NewHTTPClient(rootCAs),
		keyStore:   keyStore,
		getSigner:  getSigner,
		postSigner: postSigner,
	}
}

// ForActor returns a transport whose requests are signed with the given local
// actor's private key.
func (p *transportProvider) ForActor(actorIRI *url.URL) (*transport.Transport, error) {
	privateKey, publicKeyID, err := p.keyStore.PrivateKey(actorIRI)
	if err != nil {
		return nil, fmt.Errorf("private key for %s: %w", actorIRI, err)
	}

	return transport.New(p.httpClient, privateKey, publicKeyID, p.getSigner, p.postSigner), nil
}
