/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package metrics provides the Prometheus metrics for Quill.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "quill"

	// ActivityPub.
	activityPub                = "activitypub"
	apPostTimeMetric           = "outbox_post_seconds"
	apResolveInboxesTimeMetric = "outbox_resolve_inboxes_seconds"
	apInboxHandlerTimeMetric   = "inbox_handler_seconds"

	// HTTP signatures.
	httpSig             = "httpsig"
	sigSignTimeMetric   = "sign_seconds"
	sigVerifyTimeMetric = "verify_seconds"

	activityTypeLabel = "type"
)

var (
	createOnce sync.Once //nolint:gochecknoglobals
	instance   *Metrics  //nolint:gochecknoglobals
)

// Metrics manages the metrics for Quill.
type Metrics struct {
	apOutboxPostTime           prometheus.Histogram
	apOutboxResolveInboxesTime prometheus.Histogram
	apInboxHandlerTime         *prometheus.HistogramVec

	sigSignTime   prometheus.Histogram
	sigVerifyTime prometheus.Histogram
}

// Get returns the metrics provider, registering the metrics with the default
// Prometheus registerer on first use.
func Get() *Metrics {
	createOnce.Do(func() {
		instance = newMetrics()
	})

	return instance
}

func newMetrics() *Metrics {
	m := &Metrics{
		apOutboxPostTime: newHistogram(
			activityPub, apPostTimeMetric,
			"The time (in seconds) that it takes to post an activity to the outbox",
		),
		apOutboxResolveInboxesTime: newHistogram(
			activityPub, apResolveInboxesTimeMetric,
			"The time (in seconds) that it takes to resolve the inboxes of the recipients "+
				"when posting to the outbox",
		),
		apInboxHandlerTime: newHistogramVec(
			activityPub, apInboxHandlerTimeMetric,
			"The time (in seconds) that it takes to handle an activity posted to the inbox",
			activityTypeLabel,
		),
		sigSignTime: newHistogram(
			httpSig, sigSignTimeMetric,
			"The time (in seconds) that it takes to sign an HTTP request",
		),
		sigVerifyTime: newHistogram(
			httpSig, sigVerifyTimeMetric,
			"The time (in seconds) that it takes to verify the signature on an HTTP request",
		),
	}

	prometheus.MustRegister(
		m.apOutboxPostTime,
		m.apOutboxResolveInboxesTime,
		m.apInboxHandlerTime,
		m.sigSignTime,
		m.sigVerifyTime,
	)

	return m
}

// OutboxPostTime records the time it takes to post an activity to the outbox.
func (m *Metrics) OutboxPostTime(value time.Duration) {
	m.apOutboxPostTime.Observe(value.Seconds())
}

// OutboxResolveInboxesTime records the time it takes to resolve the inboxes of the
// recipients when posting to the outbox.
func (m *Metrics) OutboxResolveInboxesTime(value time.Duration) {
	m.apOutboxResolveInboxesTime.Observe(value.Seconds())
}

// InboxHandlerTime records the time it takes to handle an activity posted to the inbox.
func (m *Metrics) InboxHandlerTime(activityType string, value time.Duration) {
	m.apInboxHandlerTime.WithLabelValues(activityType).Observe(value.Seconds())
}

// SignerSignTime records the time it takes to sign an HTTP request.
func (m *Metrics) SignerSignTime(value time.Duration) {
	m.sigSignTime.Observe(value.Seconds())
}

// SignatureVerificationTime records the time it takes to verify the signature
// on an HTTP request.
func (m *Metrics) SignatureVerificationTime(value time.Duration) {
	m.sigVerifyTime.Observe(value.Seconds())
}

func newHistogram(subsystem, name, help string) prometheus.Histogram {
	return prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
}

func newHistogramVec(subsystem, name, help string, labels ...string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}
