/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mempubsub

import (
	"context"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/quillpub/quill/internal/pkg/log"
	service "github.com/quillpub/quill/pkg/activitypub/service/spi"
)

var logger = log.New("activitypub_service")

const (
	defaultTimeout     = 5 * time.Second
	defaultConcurrency = 20
	defaultBufferSize  = 20
)

// Config holds the configuration for the publisher/subscriber.
type Config struct {
	// Timeout is the time that we should wait for an Ack or a Nack.
	Timeout time.Duration

	// Concurrency specifies the maximum number of concurrent requests.
	Concurrency int

	// BufferSize is the size of the Go channel buffer for a subscription.
	BufferSize int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Timeout:     defaultTimeout,
		Concurrency: defaultConcurrency,
		BufferSize:  defaultBufferSize,
	}
}

// PubSub implements a publisher/subscriber using Go channels. This implementation
// works only on a single node. In order to distribute the load across a cluster,
// a persistent message queue (such as RabbitMQ or Kafka) should instead be used.
type PubSub struct {
	*Config

	serviceName     string
	msgChansByTopic map[string][]chan *message.Message
	mutex           sync.RWMutex
	ackChan         chan *message.Message
}

// New returns a new publisher/subscriber.
func New(name string, cfg *Config) *PubSub {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	m := &PubSub{
		Config:          cfg,
		serviceName:     name,
		msgChansByTopic: make(map[string][]chan *message.Message),
		ackChan:         make(chan *message.Message, cfg.Concurrency),
	}

	go m.listen()

	return m
}

// IsConnected returns true if the publisher/subscriber has not been closed.
func (p *PubSub) IsConnected() bool {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	return p.msgChansByTopic != nil
}

// Close closes all resources.
func (p *PubSub) Close() error {
	logger.Info("Closing publisher/subscriber ...", log.WithServiceName(p.serviceName))

	p.mutex.Lock()
	defer p.mutex.Unlock()

	for _, msgChans := range p.msgChansByTopic {
		for _, msgChan := range msgChans {
			close(msgChan)
		}
	}

	p.msgChansByTopic = nil

	close(p.ackChan)

	logger.Info("... publisher/subscriber closed", log.WithServiceName(p.serviceName))

	return nil
}

// Subscribe subscribes to a topic and returns the Go channel over which messages
// are sent. The returned channel will be closed when Close() is called on this struct.
func (p *PubSub) Subscribe(_ context.Context, topic string) (<-chan *message.Message, error) {
	logger.Debug("Subscribing to topic", log.WithServiceName(p.serviceName), log.WithTopic(topic))

	p.mutex.Lock()
	defer p.mutex.Unlock()

	msgChan := make(chan *message.Message, p.BufferSize)

	p.msgChansByTopic[topic] = append(p.msgChansByTopic[topic], msgChan)

	return msgChan, nil
}

// Publish publishes the given messages to the given topic. This function returns
// immediately after sending the messages to the Go channel(s), although it will
// block if the concurrency limit (defined by Config.Concurrency) has been reached.
func (p *PubSub) Publish(topic string, messages ...*message.Message) error {
	p.mutex.RLock()
	msgChans := p.msgChansByTopic[topic]
	p.mutex.RUnlock()

	for _, msgChan := range msgChans {
		for _, m := range messages {
			// Copy the message so that the Ack/Nack is specific to a subscriber.
			msg := m.Copy()

			logger.Debug("Publishing message", log.WithServiceName(p.serviceName),
				log.WithTopic(topic), log.WithMessageID(msg.UUID))

			msgChan <- msg
			p.ackChan <- msg
		}
	}

	return nil
}

func (p *PubSub) listen() {
	for msg := range p.ackChan {
		go p.check(msg)
	}
}

func (p *PubSub) check(msg *message.Message) {
	select {
	case <-msg.Acked():
		logger.Debug("Message was acknowledged", log.WithServiceName(p.serviceName),
			log.WithMessageID(msg.UUID))

	case <-msg.Nacked():
		logger.Info("Message was not acknowledged. Posting to undeliverable queue.",
			log.WithServiceName(p.serviceName), log.WithMessageID(msg.UUID))

		p.postToUndeliverable(msg)

	case <-time.After(p.Timeout):
		logger.Warn("Timed out waiting for Ack/Nack. Posting to undeliverable queue.",
			log.WithServiceName(p.serviceName), log.WithMessageID(msg.UUID),
			log.WithExpiration(p.Timeout))

		p.postToUndeliverable(msg)
	}
}

func (p *PubSub) postToUndeliverable(msg *message.Message) {
	p.mutex.RLock()
	msgChans := p.msgChansByTopic[service.UndeliverableTopic]
	p.mutex.RUnlock()

	// Sending to the undeliverable queue must not block, otherwise a full buffer
	// could deadlock the listener. If the channel is full the message is dropped.

	for _, msgChan := range msgChans {
		select {
		case msgChan <- msg:
			logger.Info("Message was added to the undeliverable queue",
				log.WithServiceName(p.serviceName), log.WithMessageID(msg.UUID))

		default:
			logger.Warn("Message could not be added to the undeliverable queue and will be dropped",
				log.WithServiceName(p.serviceName), log.WithMessageID(msg.UUID))
		}
	}
}
