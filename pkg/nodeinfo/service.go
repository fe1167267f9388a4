/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package nodeinfo implements the NodeInfo protocol, which exposes standardized
// metadata about the server to the rest of the fediverse.
package nodeinfo

import (
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/quillpub/quill/internal/pkg/log"
	"github.com/quillpub/quill/pkg/activitypub/store/spi"
	"github.com/quillpub/quill/pkg/activitypub/vocab"
	"github.com/quillpub/quill/pkg/httpserver"
	"github.com/quillpub/quill/pkg/lifecycle"
)

var logger = log.New("nodeinfo")

type stats struct {
	Posts    int
	Comments int
}

func (s *stats) String() string {
	return fmt.Sprintf("Posts: %d, Comments: %d", s.Posts, s.Comments)
}

// Service periodically queries the outboxes of the local actors and produces
// NodeInfo usage statistics.
type Service struct {
	*lifecycle.Lifecycle

	done          chan struct{}
	interval      time.Duration
	actorIRIs     []*url.URL
	activityStore spi.Store
	stats         *stats
	mutex         sync.RWMutex
}

// NewService returns a new NodeInfo service that reports usage statistics for
// the given local actors.
func NewService(actorIRIs []*url.URL, refreshInterval time.Duration, activityStore spi.Store) *Service {
	s := &Service{
		actorIRIs:     actorIRIs,
		activityStore: activityStore,
		done:          make(chan struct{}),
		interval:      refreshInterval,
		stats:         &stats{},
	}

	s.Lifecycle = lifecycle.New("nodeinfo",
		lifecycle.WithStart(s.start),
		lifecycle.WithStop(s.stop))

	return s
}

// GetNodeInfo returns a NodeInfo document compatible with the given version.
func (s *Service) GetNodeInfo(version Version) *NodeInfo {
	var repository string

	if version == V2_1 {
		repository = quillRepository
	}

	s.mutex.RLock()

	stats := s.stats

	s.mutex.RUnlock()

	return &NodeInfo{
		Version:   version,
		Protocols: []string{activityPubProtocol},
		Software: Software{
			Name:       "Quill",
			Version:    httpserver.BuildVersion,
			Repository: repository,
		},
		Services: Services{
			Inbound:  []string{},
			Outbound: []string{},
		},
		OpenRegistrations: false,
		Usage: Usage{
			Users: Users{
				Total: len(s.actorIRIs),
			},
			LocalPosts:    stats.Posts,
			LocalComments: stats.Comments,
		},
	}
}

func (s *Service) start() {
	go s.refresh()

	logger.Info("Started NodeInfo service")
}

func (s *Service) stop() {
	close(s.done)

	logger.Info("Stopped NodeInfo service")
}

func (s *Service) refresh() {
	for {
		select {
		case <-time.After(s.interval):
			if err := s.updateStats(); err != nil {
				logger.Warn("Error updating stats", log.WithError(err))
			}
		case <-s.done:
			logger.Debug("Exiting stats retriever")

			return
		}
	}
}

func (s *Service) updateStats() error {
	newStats := &stats{}

	for _, actorIRI := range s.actorIRIs {
		if err := s.countActivities(actorIRI, newStats); err != nil {
			return fmt.Errorf("count activities for %s: %w", actorIRI, err)
		}
	}

	logger.Debug("Updated stats", log.WithParameter(newStats.String()))

	s.mutex.Lock()

	s.stats = newStats

	s.mutex.Unlock()

	return nil
}

// countActivities counts the 'Create' activities in the given actor's outbox. A
// 'Create' whose object is a reply counts as a comment, otherwise as a post.
func (s *Service) countActivities(actorIRI *url.URL, counts *stats) error {
	it, err := s.activityStore.QueryActivities(
		spi.NewCriteria(
			spi.WithReferenceType(spi.Outbox),
			spi.WithObjectIRI(actorIRI),
			spi.WithType(vocab.TypeCreate),
		),
	)
	if err != nil {
		return fmt.Errorf("query outbox: %w", err)
	}

	defer func() {
		if err := it.Close(); err != nil {
			logger.Warn("Error closing iterator", log.WithError(err))
		}
	}()

	for {
		activity, err := it.Next()
		if err != nil {
			if errors.Is(err, spi.ErrNotFound) {
				break
			}

			return fmt.Errorf("next activity: %w", err)
		}

		obj := activity.Object().Object()

		if obj != nil && obj.InReplyTo().URL() != nil {
			counts.Comments++
		} else {
			counts.Posts++
		}
	}

	return nil
}
