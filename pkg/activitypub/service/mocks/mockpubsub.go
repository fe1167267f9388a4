/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mocks

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
)

// PubSub implements a mock publisher-subscriber.
type PubSub struct {
	Err     error
	MsgChan chan *message.Message
}

// NewPubSub returns a mock publisher-subscriber.
func NewPubSub() *PubSub {
	return &PubSub{
		MsgChan: make(chan *message.Message, 100),
	}
}

// WithError injects an error into the mock publisher-subscriber.
func (m *PubSub) WithError(err error) *PubSub {
	m.Err = err

	return m
}

// Subscribe subscribes to the given topic.
func (m *PubSub) Subscribe(_ context.Context, _ string) (<-chan *message.Message, error) {
	if m.Err != nil {
		return nil, m.Err
	}

	return m.MsgChan, nil
}

// Publish publishes the messages to the subscribers.
func (m *PubSub) Publish(_ string, messages ...*message.Message) error {
	if m.Err != nil {
		return m.Err
	}

	for _, msg := range messages {
		m.MsgChan <- msg
	}

	return nil
}

// Close closes the subscriber channel.
func (m *PubSub) Close() error {
	close(m.MsgChan)

	return nil
}
