/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mocks

import "time"

// MetricsProvider implements a no-op metrics provider.
type MetricsProvider struct{}

// NewMetricsProvider returns a no-op metrics provider.
func NewMetricsProvider() *MetricsProvider {
	return &MetricsProvider{}
}

// InboxHandlerTime records the time it takes to handle an inbox activity.
func (m *MetricsProvider) InboxHandlerTime(string, time.Duration) {
}

// OutboxPostTime records the time it takes to post an activity to the outbox.
func (m *MetricsProvider) OutboxPostTime(time.Duration) {
}

// OutboxResolveInboxesTime records the time it takes to resolve the inboxes
// of an activity's recipients.
func (m *MetricsProvider) OutboxResolveInboxesTime(time.Duration) {
}

// SignerSignTime records the time it takes to sign a request.
func (m *MetricsProvider) SignerSignTime(time.Duration) {
}

// SignatureVerificationTime records the time it takes to verify a request signature.
func (m *MetricsProvider) SignatureVerificationTime(time.Duration) {
}
