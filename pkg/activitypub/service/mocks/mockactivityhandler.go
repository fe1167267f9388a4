/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mocks

import (
	"net/url"
	"sync"

	"github.com/quillpub/quill/pkg/activitypub/vocab"
)

// ActivityHandler implements a mock activity handler.
type ActivityHandler struct {
	mutex      sync.RWMutex
	activities Activities
	subscriber chan *vocab.ActivityType
	err        error
}

// NewActivityHandler returns a mock activity handler.
func NewActivityHandler() *ActivityHandler {
	return &ActivityHandler{
		subscriber: make(chan *vocab.ActivityType, 100),
	}
}

// WithError injects an error into the mock handler.
func (m *ActivityHandler) WithError(err error) *ActivityHandler {
	m.err = err

	return m
}

// HandleActivity records the activity and notifies the subscriber channel.
func (m *ActivityHandler) HandleActivity(_ *url.URL, activity *vocab.ActivityType) error {
	if m.err != nil {
		return m.err
	}

	m.mutex.Lock()
	m.activities = append(m.activities, activity)
	m.mutex.Unlock()

	select {
	case m.subscriber <- activity:
	default:
	}

	return nil
}

// Subscribe returns the channel to which handled activities are posted.
func (m *ActivityHandler) Subscribe() <-chan *vocab.ActivityType {
	return m.subscriber
}

// Activities returns the activities that were handled.
func (m *ActivityHandler) Activities() Activities {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return m.activities
}
