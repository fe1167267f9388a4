/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package startcmd

import (
	"context"
	"crypto/x509"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/quillpub/quill/internal/pkg/log"
	"github.com/quillpub/quill/internal/pkg/tlsutil"
	aphandler "github.com/quillpub/quill/pkg/activitypub/resthandler"
	apservice "github.com/quillpub/quill/pkg/activitypub/service"
	"github.com/quillpub/quill/pkg/activitypub/service/mempubsub"
	apspi "github.com/quillpub/quill/pkg/activitypub/service/spi"
	"github.com/quillpub/quill/pkg/activitypub/store/memstore"
	"github.com/quillpub/quill/pkg/activitypub/store/sqlitestore"
	storespi "github.com/quillpub/quill/pkg/activitypub/store/spi"
	"github.com/quillpub/quill/pkg/activitypub/vocab"
	"github.com/quillpub/quill/pkg/auth"
	"github.com/quillpub/quill/pkg/healthcheck"
	"github.com/quillpub/quill/pkg/httpserver"
	"github.com/quillpub/quill/pkg/keystore"
	"github.com/quillpub/quill/pkg/metrics"
	"github.com/quillpub/quill/pkg/nodeinfo"
	"github.com/quillpub/quill/pkg/webfinger"
)

var logger = log.New("quill-startcmd")

const (
	metricsPath     = "/metrics"
	shutdownTimeout = 10 * time.Second
)

// GetStartCmd returns the Cobra start command.
func GetStartCmd() *cobra.Command {
	startCmd := createStartCmd()

	createFlags(startCmd)

	return startCmd
}

func createStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start quill server",
		Long:  "Start quill federated social-network server",
		RunE: func(cmd *cobra.Command, args []string) error {
			parameters, err := getQuillParameters(cmd)
			if err != nil {
				return err
			}

			return startQuillServices(parameters)
		},
	}
}

// pingable is implemented by stores that are backed by a database connection.
type pingable interface {
	Ping() error
}

//nolint:funlen
func startQuillServices(parameters *quillParameters) error {
	setLogLevels(logger, parameters.logSpec)

	endpoint, err := url.Parse(parameters.externalEndpoint)
	if err != nil {
		return fmt.Errorf("parse external endpoint [%s]: %w", parameters.externalEndpoint, err)
	}

	activityStore, closeStore, err := createActivityStore(endpoint, parameters.dbParameters)
	if err != nil {
		return err
	}

	keyStore := keystore.New()
	pubSub := mempubsub.New(endpoint.Host, mempubsub.DefaultConfig())

	handlerOpts := []apspi.HandlerOpt{
		apspi.WithMaxDeliveryDepth(parameters.maxDeliveryDepth),
		apspi.WithMaxInboxForwardingDepth(parameters.maxForwardingDepth),
	}

	if policy, ok := followPolicyFor(parameters.followPolicy); ok {
		handlerOpts = append(handlerOpts,
			apspi.WithOnFollow(func(*vocab.ActivityType, *vocab.ActorType) apspi.FollowPolicy {
				return policy
			}),
		)
	}

	rootCAs, err := createRootCAs(parameters)
	if err != nil {
		return err
	}

	activityPubService, err := apservice.New(
		&apservice.Config{
			ServiceName:      endpoint.Host,
			ServiceEndpoint:  endpoint,
			RootCAs:          rootCAs,
			MaxDeliveryDepth: parameters.maxDeliveryDepth,
		},
		activityStore, pubSub, keyStore, metrics.Get(), handlerOpts...,
	)
	if err != nil {
		return fmt.Errorf("create ActivityPub service: %w", err)
	}

	authVerifier := auth.NewVerifier(&auth.Config{})

	actorIRIs, err := provisionUsers(parameters.users, endpoint, activityStore, keyStore, authVerifier)
	if err != nil {
		return err
	}

	nodeInfoService := nodeinfo.NewService(actorIRIs, parameters.nodeInfoRefreshInterval, activityStore)

	wellKnownNodeInfo, err := nodeinfo.NewWellKnownHandler(endpoint, nodeinfo.V2_0, nodeinfo.V2_1)
	if err != nil {
		return fmt.Errorf("create NodeInfo discovery handler: %w", err)
	}

	restCfg := &aphandler.Config{
		ServiceEndpoint: endpoint,
		PageSize:        parameters.pageSize,
	}

	sigVerifier := activityPubService.SignatureVerifier()

	var db pingable
	if p, ok := activityStore.(pingable); ok {
		db = p
	}

	httpServer := httpserver.New(parameters.hostURL, parameters.tlsCertificate, parameters.tlsKey,
		defaultServerIdleTimeout, defaultServerReadHeaderTimeout, authVerifier,
		aphandler.NewActor(restCfg, activityStore),
		aphandler.NewInbox(restCfg, activityStore, sigVerifier),
		aphandler.NewOutbox(restCfg, activityStore, sigVerifier),
		aphandler.NewLiked(restCfg, activityStore, sigVerifier),
		aphandler.NewFollowers(restCfg, activityStore),
		aphandler.NewFollowing(restCfg, activityStore),
		aphandler.NewActivity(restCfg, activityStore, sigVerifier),
		aphandler.NewObject(restCfg, activityStore, sigVerifier),
		aphandler.NewPostInbox(activityPubService.InboxHTTPHandler()),
		aphandler.NewPostOutbox(restCfg, activityStore, activityPubService.Outbox(), nil),
		webfinger.NewHandler(endpoint, activityStore),
		nodeinfo.NewHandler(nodeinfo.V2_0, nodeInfoService),
		nodeinfo.NewHandler(nodeinfo.V2_1, nodeInfoService),
		wellKnownNodeInfo,
		healthcheck.NewHandler(pubSub, db),
		newMetricsHandler(),
		newLogSpecWriter(),
		newLogSpecReader(),
	)

	activityPubService.Start()
	nodeInfoService.Start()

	if err := httpServer.Start(); err != nil {
		return fmt.Errorf("start HTTP server: %w", err)
	}

	logger.Info("Started Quill server", log.WithAddress(parameters.hostURL),
		log.WithServiceEndpoint(endpoint.String()))

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM)

	<-interrupt

	logger.Info("Shutting down ...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Stop(ctx); err != nil {
		logger.Warn("Error stopping HTTP server", log.WithError(err))
	}

	nodeInfoService.Stop()
	activityPubService.Stop()

	if err := pubSub.Close(); err != nil {
		logger.Warn("Error closing publisher/subscriber", log.WithError(err))
	}

	closeStore()

	logger.Info("Stopped Quill server")

	return nil
}

func createActivityStore(endpoint *url.URL, params *dbParameters) (storespi.Store, func(), error) {
	switch params.databaseType {
	case databaseTypeSQLiteOption:
		s, err := sqlitestore.New(endpoint.Host, params.databaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("create SQLite activity store: %w", err)
		}

		return s, func() {
			if err := s.Close(); err != nil {
				logger.Warn("Error closing activity store", log.WithError(err))
			}
		}, nil
	default:
		return memstore.New(endpoint.Host), func() {}, nil
	}
}

// provisionUsers creates the local actors and registers their bearer tokens. The
// actor documents are rewritten on every startup so that the published public
// keys always match the in-memory key store.
func provisionUsers(users []*userParams, endpoint *url.URL, activityStore storespi.Store,
	keyStore *keystore.KeyStore, authVerifier *auth.Verifier) ([]*url.URL, error) {
	actorIRIs := make([]*url.URL, len(users))

	for i, user := range users {
		actorIRI, err := url.Parse(endpoint.String() + "/users/" + user.nick)
		if err != nil {
			return nil, fmt.Errorf("parse actor IRI for user [%s]: %w", user.nick, err)
		}

		publicKeyPem, err := keyStore.PublicKeyPEM(actorIRI)
		if err != nil {
			return nil, fmt.Errorf("generate key for user [%s]: %w", user.nick, err)
		}

		actor := vocab.NewPerson(actorIRI,
			vocab.WithContext(vocab.ContextActivityStreams, vocab.ContextSecurity),
			vocab.WithPreferredUsername(user.nick),
			vocab.WithPublicKey(vocab.NewPublicKey(keystore.KeyID(actorIRI), actorIRI, publicKeyPem)),
			vocab.WithInbox(mustParseURL(actorIRI.String()+"/inbox")),
			vocab.WithOutbox(mustParseURL(actorIRI.String()+"/outbox")),
			vocab.WithFollowers(mustParseURL(actorIRI.String()+"/followers")),
			vocab.WithFollowing(mustParseURL(actorIRI.String()+"/following")),
			vocab.WithLiked(mustParseURL(actorIRI.String()+"/liked")),
		)

		if err := activityStore.PutActor(actor); err != nil {
			return nil, fmt.Errorf("store actor for user [%s]: %w", user.nick, err)
		}

		authVerifier.RegisterToken(user.token, actorIRI)

		logger.Info("Provisioned user", log.WithActorIRI(actorIRI))

		actorIRIs[i] = actorIRI
	}

	return actorIRIs, nil
}

// createRootCAs returns the certificate pool for verifying other servers, or nil
// if no TLS CA configuration was provided.
func createRootCAs(parameters *quillParameters) (*x509.CertPool, error) {
	if !parameters.tlsSystemCertPool && len(parameters.tlsCACerts) == 0 {
		return nil, nil
	}

	rootCAs, err := tlsutil.GetCertPool(parameters.tlsSystemCertPool, parameters.tlsCACerts)
	if err != nil {
		return nil, fmt.Errorf("create root CA pool: %w", err)
	}

	return rootCAs, nil
}

func followPolicyFor(policy string) (apspi.FollowPolicy, bool) {
	switch policy {
	case followPolicyAcceptOption:
		return apspi.FollowPolicyAutomaticallyAccept, true
	case followPolicyRejectOption:
		return apspi.FollowPolicyAutomaticallyReject, true
	default:
		return apspi.FollowPolicyDoNothing, false
	}
}

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		panic(err)
	}

	return u
}

// metricsHandler exposes the Prometheus metrics endpoint.
type metricsHandler struct {
	handler http.Handler
}

func newMetricsHandler() *metricsHandler {
	return &metricsHandler{handler: promhttp.Handler()}
}

func (h *metricsHandler) Path() string {
	return metricsPath
}

func (h *metricsHandler) Method() string {
	return http.MethodGet
}

func (h *metricsHandler) Handler() http.HandlerFunc {
	return h.handler.ServeHTTP
}
