/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mocks

import (
	"net/url"
	"sync"

	"github.com/quillpub/quill/pkg/activitypub/store/storeutil"
	"github.com/quillpub/quill/pkg/activitypub/vocab"
	"github.com/quillpub/quill/pkg/lifecycle"
)

// Outbox implements a mock Outbox.
type Outbox struct {
	mutex      sync.RWMutex
	activities Activities
	forwarded  Activities
	err        error
}

// NewOutbox returns a mock outbox.
func NewOutbox() *Outbox {
	return &Outbox{}
}

// WithError injects an error into the mock outbox.
func (m *Outbox) WithError(err error) *Outbox {
	m.err = err

	return m
}

// Activities returns the activities that were posted to the outbox.
func (m *Outbox) Activities() Activities {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return m.activities
}

// Forwarded returns the activities that were forwarded through the outbox.
func (m *Outbox) Forwarded() Activities {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return m.forwarded
}

// Post stores the activity so that it may be retrieved by the Activities function.
// An ID is minted for the activity if it doesn't already have one.
func (m *Outbox) Post(actorIRI *url.URL, activity *vocab.ActivityType) (*url.URL, error) {
	if m.err != nil {
		return nil, m.err
	}

	if activity.ID() == nil || activity.ID().URL() == nil {
		activity.SetID(storeutil.MintID(actorIRI, storeutil.CategoryActivities))
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.activities = append(m.activities, activity)

	return activity.ID().URL(), nil
}

// Forward stores the activity so that it may be retrieved by the Forwarded function.
func (m *Outbox) Forward(_ *url.URL, activity *vocab.ActivityType, _ []*url.URL) error {
	if m.err != nil {
		return m.err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.forwarded = append(m.forwarded, activity)

	return nil
}

// Start does nothing.
func (m *Outbox) Start() {
}

// Stop does nothing.
func (m *Outbox) Stop() {
}

// State always returns StateStarted.
func (m *Outbox) State() lifecycle.State {
	return lifecycle.StateStarted
}
