/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package redelivery

import (
	"fmt"
	"strconv"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/cenkalti/backoff/v4"

	"github.com/quillpub/quill/internal/pkg/log"
	"github.com/quillpub/quill/pkg/lifecycle"
)

var logger = log.New("activitypub_service")

// MetadataRedeliveryAttempts is the message metadata key under which the number of
// redelivery attempts is stored.
const MetadataRedeliveryAttempts = "redelivery_attempts"

const (
	defaultMaxRetries      = 5
	defaultInitialInterval = 30 * time.Second
	defaultMaxInterval     = time.Hour
	defaultMultiplier      = 2.0
	defaultMaxMessages     = 20
)

type entry struct {
	msg   *message.Message
	delay time.Duration
}

// Config holds the configuration parameters for the redelivery service.
type Config struct {
	// MaxRetries is maximum number of times a redelivery will be attempted.
	MaxRetries int

	// InitialInterval is the delay before the first redelivery attempt.
	InitialInterval time.Duration

	// MaxInterval caps the exponentially growing delay between attempts.
	MaxInterval time.Duration

	// Multiplier is the factor by which the delay grows between attempts.
	Multiplier float64

	// MaxMessages is the maximum number of messages that can be concurrently managed
	// by the redelivery service.
	MaxMessages int
}

// DefaultConfig returns the default configuration parameters for the redelivery service.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:      defaultMaxRetries,
		InitialInterval: defaultInitialInterval,
		MaxInterval:     defaultMaxInterval,
		Multiplier:      defaultMultiplier,
		MaxMessages:     defaultMaxMessages,
	}
}

// Service schedules redelivery of messages that failed delivery. Messages are
// re-published to the notification channel after an exponentially growing delay.
type Service struct {
	*Config
	*lifecycle.Lifecycle

	serviceName string
	notifyChan  chan<- *message.Message
	entryChan   chan *entry
	done        chan struct{}
}

// NewService returns a new redelivery service.
func NewService(serviceName string, cfg *Config, notifyChan chan<- *message.Message) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	m := &Service{
		serviceName: serviceName,
		Config:      cfg,
		notifyChan:  notifyChan,
		entryChan:   make(chan *entry, cfg.MaxMessages),
		done:        make(chan struct{}),
	}

	m.Lifecycle = lifecycle.New(serviceName+"-redelivery",
		lifecycle.WithStart(m.start),
		lifecycle.WithStop(m.stop),
	)

	return m
}

// Add adds a message for redelivery and returns the time at which the redelivery attempt
// will occur. An error is returned if the maximum number of attempts has been reached.
// This function generally returns immediately, although if the number of messages being
// managed has reached the MaxMessages limit then it blocks until a previously added
// message has been processed.
func (m *Service) Add(msg *message.Message) (time.Time, error) {
	if m.State() != lifecycle.StateStarted {
		return time.Time{}, lifecycle.ErrNotStarted
	}

	attempts := 0

	attemptsStr, ok := msg.Metadata[MetadataRedeliveryAttempts]
	if ok {
		a, err := strconv.Atoi(attemptsStr)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid redelivery attempts metadata for message [%s]: %w",
				msg.UUID, err)
		}

		attempts = a
	}

	if attempts >= m.MaxRetries {
		return time.Time{}, fmt.Errorf("unable to redeliver message after %d attempts", attempts)
	}

	newMsg := msg.Copy()

	newMsg.Metadata[MetadataRedeliveryAttempts] = strconv.Itoa(attempts + 1)

	delay := m.backoff(attempts)

	m.entryChan <- &entry{
		msg:   newMsg,
		delay: delay,
	}

	logger.Debug("Added message for redelivery", log.WithServiceName(m.serviceName),
		log.WithMessageID(msg.UUID), log.WithBackoff(delay), log.WithAttempt(attempts))

	return time.Now().Add(delay), nil
}

func (m *Service) start() {
	logger.Info("Redelivery service started", log.WithServiceName(m.serviceName))

	go m.monitor()
}

func (m *Service) stop() {
	close(m.done)
	close(m.entryChan)

	logger.Info("Redelivery service stopped", log.WithServiceName(m.serviceName))
}

func (m *Service) monitor() {
	for entry := range m.entryChan {
		go m.redeliver(entry)
	}
}

func (m *Service) redeliver(entry *entry) {
	select {
	case <-time.After(entry.delay):
		logger.Debug("Submitting message for redelivery", log.WithServiceName(m.serviceName),
			log.WithMessageID(entry.msg.UUID), log.WithBackoff(entry.delay))

		m.notifyChan <- entry.msg

	case <-m.done:
		logger.Debug("Not redelivering message since the redelivery service has been stopped",
			log.WithServiceName(m.serviceName), log.WithMessageID(entry.msg.UUID))
	}
}

// backoff returns the delay before the given (zero-based) redelivery attempt.
func (m *Service) backoff(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.InitialInterval
	b.MaxInterval = m.MaxInterval
	b.Multiplier = m.Multiplier
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	delay := b.NextBackOff()

	for i := 0; i < attempt; i++ {
		delay = b.NextBackOff()
	}

	return delay
}
