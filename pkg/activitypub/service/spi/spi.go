/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package spi

import (
	"net/http"
	"net/url"

	"github.com/quillpub/quill/pkg/activitypub/vocab"
	"github.com/quillpub/quill/pkg/lifecycle"
)

// UndeliverableTopic is the topic to which messages are posted when they could not be delivered
// to their destination.
const UndeliverableTopic = "undeliverable"

// ErrNotStarted indicates that an attempt was made to invoke a service that has not been started.
var ErrNotStarted = lifecycle.ErrNotStarted

// ServiceLifecycle defines the functions of a service lifecycle.
type ServiceLifecycle interface {
	// Start starts the service.
	Start()
	// Stop stops the service.
	Stop()
	// State returns the state of the service.
	State() lifecycle.State
}

// Outbox defines the functions for an ActivityPub outbox.
type Outbox interface {
	ServiceLifecycle

	// Post runs the client-to-server pipeline for the given local actor: the activity
	// is validated, assigned newly minted IDs, side-effected, appended to the actor's
	// outbox, and delivered asynchronously to its recipients. The activity IRI is returned.
	Post(actorIRI *url.URL, activity *vocab.ActivityType) (*url.URL, error)

	// Forward delivers an already-received activity, verbatim, to the given recipients
	// on behalf of the given local actor. No IDs are minted and no side effects are applied.
	Forward(actorIRI *url.URL, activity *vocab.ActivityType, recipients []*url.URL) error
}

// Inbox defines the functions for an ActivityPub inbox.
type Inbox interface {
	ServiceLifecycle
}

// ActivityHandler applies the side effects of an activity on behalf of the local actor
// that owns the box through which the activity arrived.
type ActivityHandler interface {
	// HandleActivity handles the ActivityPub activity. The owner IRI is the IRI of the
	// local actor whose inbox or outbox is being processed.
	HandleActivity(ownerIRI *url.URL, activity *vocab.ActivityType) error

	// Subscribe allows a client to receive published activities.
	Subscribe() <-chan *vocab.ActivityType
}

// FollowPolicy is the application's decision on an incoming Follow request.
type FollowPolicy int

const (
	// FollowPolicyDoNothing records the Follow as pending and waits for the owner
	// to accept or reject it manually.
	FollowPolicyDoNothing FollowPolicy = iota

	// FollowPolicyAutomaticallyAccept replies with an Accept and adds the follower.
	FollowPolicyAutomaticallyAccept

	// FollowPolicyAutomaticallyReject replies with a Reject.
	FollowPolicyAutomaticallyReject
)

// Default recursion depths for inbox forwarding and delivery recipient expansion.
// A negative value means unbounded.
const (
	DefaultMaxInboxForwardingDepth = 4
	DefaultMaxDeliveryDepth        = 4
)

// OnFollowFunc decides what to do with an incoming Follow request from the given actor.
type OnFollowFunc func(follow *vocab.ActivityType, follower *vocab.ActorType) FollowPolicy

// BlockedFunc reports whether any of the given actors is blocked by the owner.
type BlockedFunc func(ownerIRI *url.URL, actorIRIs []*url.URL) (bool, error)

// FilterForwardingFunc filters the recipients of an activity that is about to be
// forwarded from the inbox.
type FilterForwardingFunc func(ownerIRI *url.URL, activity *vocab.ActivityType,
	recipients []*url.URL) ([]*url.URL, error)

// RequestBodyHookFunc is invoked with the parsed activity before authentication,
// allowing the application to attach request context. It must not write a response.
type RequestBodyHookFunc func(req *http.Request, activity *vocab.ActivityType) error

// DefaultHandlerFunc is invoked for activity types outside the built-in set.
type DefaultHandlerFunc func(ownerIRI *url.URL, activity *vocab.ActivityType) error

// Handlers contains handlers for various activity events, including undeliverable activities.
type Handlers struct {
	OnFollow              OnFollowFunc
	Blocked               BlockedFunc
	FilterForwarding      FilterForwardingFunc
	InboxRequestBodyHook  RequestBodyHookFunc
	OutboxRequestBodyHook RequestBodyHookFunc
	DefaultHandler        DefaultHandlerFunc

	MaxInboxForwardingDepth int
	MaxDeliveryDepth        int
}

// HandlerOpt sets a specific handler.
type HandlerOpt func(options *Handlers)

// WithOnFollow sets the handler that decides incoming Follow requests.
func WithOnFollow(onFollow OnFollowFunc) HandlerOpt {
	return func(options *Handlers) {
		options.OnFollow = onFollow
	}
}

// WithBlocked sets the handler that decides whether actors are blocked by an owner.
func WithBlocked(blocked BlockedFunc) HandlerOpt {
	return func(options *Handlers) {
		options.Blocked = blocked
	}
}

// WithFilterForwarding sets the filter applied to inbox-forwarding recipients.
func WithFilterForwarding(filter FilterForwardingFunc) HandlerOpt {
	return func(options *Handlers) {
		options.FilterForwarding = filter
	}
}

// WithInboxRequestBodyHook sets the pre-authentication hook for inbox POSTs.
func WithInboxRequestBodyHook(hook RequestBodyHookFunc) HandlerOpt {
	return func(options *Handlers) {
		options.InboxRequestBodyHook = hook
	}
}

// WithOutboxRequestBodyHook sets the pre-authentication hook for outbox POSTs.
func WithOutboxRequestBodyHook(hook RequestBodyHookFunc) HandlerOpt {
	return func(options *Handlers) {
		options.OutboxRequestBodyHook = hook
	}
}

// WithDefaultHandler sets the handler invoked for unrecognized activity types.
func WithDefaultHandler(handler DefaultHandlerFunc) HandlerOpt {
	return func(options *Handlers) {
		options.DefaultHandler = handler
	}
}

// WithMaxInboxForwardingDepth sets the maximum depth of the object graph that is
// traversed when deciding whether an inbound activity references a local object.
// A negative depth means unbounded.
func WithMaxInboxForwardingDepth(depth int) HandlerOpt {
	return func(options *Handlers) {
		options.MaxInboxForwardingDepth = depth
	}
}

// WithMaxDeliveryDepth sets the maximum recursion depth for recipient collection
// expansion during delivery. A negative depth means unbounded.
func WithMaxDeliveryDepth(depth int) HandlerOpt {
	return func(options *Handlers) {
		options.MaxDeliveryDepth = depth
	}
}
