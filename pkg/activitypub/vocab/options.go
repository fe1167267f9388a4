/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vocab

import (
	"net/url"
	"time"
)

// Options holds all of the options for building an ActivityPub object.
type Options struct {
	Context      []Context
	ID           *url.URL
	Name         string
	Summary      string
	Content      string
	AttributedTo *url.URL
	InReplyTo    *url.URL
	URL          []*url.URL
	Tag          []*TagProperty
	To           []*url.URL
	CC           []*url.URL
	Bto          []*url.URL
	Bcc          []*url.URL
	Audience     []*url.URL
	Published    *time.Time
	Updated      *time.Time
	FormerType   []Type
	Deleted      *time.Time
	Types        []Type

	Actor  *url.URL
	Target *ObjectProperty

	CollectionOptions
	ActorOptions
	ObjectPropertyOptions
}

// Opt is an option for an object, activity, etc.
type Opt func(opts *Options)

// NewOptions returns an Options struct which is populated with the provided options.
func NewOptions(opts ...Opt) *Options {
	options := &Options{}

	for _, opt := range opts {
		opt(options)
	}

	return options
}

// WithContext sets the 'context' property on the object.
func WithContext(context ...Context) Opt {
	return func(opts *Options) {
		opts.Context = context
	}
}

// WithID sets the 'id' property on the object.
func WithID(id *url.URL) Opt {
	return func(opts *Options) {
		opts.ID = id
	}
}

// WithName sets the 'name' property on the object.
func WithName(name string) Opt {
	return func(opts *Options) {
		opts.Name = name
	}
}

// WithSummary sets the 'summary' property on the object.
func WithSummary(summary string) Opt {
	return func(opts *Options) {
		opts.Summary = summary
	}
}

// WithContent sets the 'content' property on the object.
func WithContent(content string) Opt {
	return func(opts *Options) {
		opts.Content = content
	}
}

// WithAttributedTo sets the 'attributedTo' property on the object.
func WithAttributedTo(iri *url.URL) Opt {
	return func(opts *Options) {
		opts.AttributedTo = iri
	}
}

// WithInReplyTo sets the 'inReplyTo' property on the object.
func WithInReplyTo(iri *url.URL) Opt {
	return func(opts *Options) {
		opts.InReplyTo = iri
	}
}

// WithURL sets the 'url' property on the object.
func WithURL(u ...*url.URL) Opt {
	return func(opts *Options) {
		opts.URL = append(opts.URL, u...)
	}
}

// WithTag sets the 'tag' property on the object.
func WithTag(tag ...*TagProperty) Opt {
	return func(opts *Options) {
		opts.Tag = append(opts.Tag, tag...)
	}
}

// WithTo sets the 'to' property on the object.
func WithTo(to ...*url.URL) Opt {
	return func(opts *Options) {
		opts.To = append(opts.To, to...)
	}
}

// WithCC sets the 'cc' property on the object.
func WithCC(cc ...*url.URL) Opt {
	return func(opts *Options) {
		opts.CC = append(opts.CC, cc...)
	}
}

// WithBto sets the 'bto' property on the object.
func WithBto(bto ...*url.URL) Opt {
	return func(opts *Options) {
		opts.Bto = append(opts.Bto, bto...)
	}
}

// WithBcc sets the 'bcc' property on the object.
func WithBcc(bcc ...*url.URL) Opt {
	return func(opts *Options) {
		opts.Bcc = append(opts.Bcc, bcc...)
	}
}

// WithAudience sets the 'audience' property on the object.
func WithAudience(audience ...*url.URL) Opt {
	return func(opts *Options) {
		opts.Audience = append(opts.Audience, audience...)
	}
}

// WithType sets the 'type' property on the object.
func WithType(t ...Type) Opt {
	return func(opts *Options) {
		opts.Types = t
	}
}

// WithPublishedTime sets the 'published' property on the object.
func WithPublishedTime(t *time.Time) Opt {
	return func(opts *Options) {
		opts.Published = t
	}
}

// WithUpdatedTime sets the 'updated' property on the object.
func WithUpdatedTime(t *time.Time) Opt {
	return func(opts *Options) {
		opts.Updated = t
	}
}

// WithFormerType sets the 'formerType' property on a Tombstone object.
func WithFormerType(t ...Type) Opt {
	return func(opts *Options) {
		opts.FormerType = t
	}
}

// WithDeletedTime sets the 'deleted' property on a Tombstone object.
func WithDeletedTime(t *time.Time) Opt {
	return func(opts *Options) {
		opts.Deleted = t
	}
}

// WithActor sets the 'actor' property on the activity.
func WithActor(iri *url.URL) Opt {
	return func(opts *Options) {
		opts.Actor = iri
	}
}

// WithTarget sets the 'target' property on the activity.
func WithTarget(target *ObjectProperty) Opt {
	return func(opts *Options) {
		opts.Target = target
	}
}

// CollectionOptions holds options for a collection or collection page.
type CollectionOptions struct {
	Current    *url.URL
	First      *url.URL
	Last       *url.URL
	PartOf     *url.URL
	Next       *url.URL
	Prev       *url.URL
	TotalItems int
}

// WithCurrent sets the 'current' property on the collection.
func WithCurrent(current *url.URL) Opt {
	return func(opts *Options) {
		opts.Current = current
	}
}

// WithFirst sets the 'first' property on the collection.
func WithFirst(first *url.URL) Opt {
	return func(opts *Options) {
		opts.First = first
	}
}

// WithLast sets the 'last' property on the collection.
func WithLast(last *url.URL) Opt {
	return func(opts *Options) {
		opts.Last = last
	}
}

// WithPartOf sets the 'partOf' property on the collection page.
func WithPartOf(partOf *url.URL) Opt {
	return func(opts *Options) {
		opts.PartOf = partOf
	}
}

// WithNext sets the 'next' property on the collection page.
func WithNext(next *url.URL) Opt {
	return func(opts *Options) {
		opts.Next = next
	}
}

// WithPrev sets the 'prev' property on the collection page.
func WithPrev(prev *url.URL) Opt {
	return func(opts *Options) {
		opts.Prev = prev
	}
}

// WithTotalItems sets the 'totalItems' property on the collection.
func WithTotalItems(totalItems int) Opt {
	return func(opts *Options) {
		opts.TotalItems = totalItems
	}
}

// ActorOptions holds options for an actor.
type ActorOptions struct {
	PublicKey         *PublicKeyType
	Inbox             *url.URL
	Outbox            *url.URL
	Followers         *url.URL
	Following         *url.URL
	Liked             *url.URL
	Featured          *url.URL
	SharedInbox       *url.URL
	PreferredUsername string
}

// WithPublicKey sets the 'publicKey' property on the actor.
func WithPublicKey(publicKey *PublicKeyType) Opt {
	return func(opts *Options) {
		opts.PublicKey = publicKey
	}
}

// WithInbox sets the 'inbox' property on the actor.
func WithInbox(inbox *url.URL) Opt {
	return func(opts *Options) {
		opts.Inbox = inbox
	}
}

// WithOutbox sets the 'outbox' property on the actor.
func WithOutbox(outbox *url.URL) Opt {
	return func(opts *Options) {
		opts.Outbox = outbox
	}
}

// WithFollowers sets the 'followers' property on the actor.
func WithFollowers(followers *url.URL) Opt {
	return func(opts *Options) {
		opts.Followers = followers
	}
}

// WithFollowing sets the 'following' property on the actor.
func WithFollowing(following *url.URL) Opt {
	return func(opts *Options) {
		opts.Following = following
	}
}

// WithLiked sets the 'liked' property on the actor.
func WithLiked(liked *url.URL) Opt {
	return func(opts *Options) {
		opts.Liked = liked
	}
}

// WithFeatured sets the 'featured' property on the actor.
func WithFeatured(featured *url.URL) Opt {
	return func(opts *Options) {
		opts.Featured = featured
	}
}

// WithSharedInbox sets the 'sharedInbox' endpoint on the actor.
func WithSharedInbox(sharedInbox *url.URL) Opt {
	return func(opts *Options) {
		opts.SharedInbox = sharedInbox
	}
}

// WithPreferredUsername sets the 'preferredUsername' property on the actor.
func WithPreferredUsername(name string) Opt {
	return func(opts *Options) {
		opts.PreferredUsername = name
	}
}

// ObjectPropertyOptions holds options for an 'object' property.
type ObjectPropertyOptions struct {
	Iri      *url.URL
	Object   *ObjectType
	Activity *ActivityType
	Link     *LinkType
}

// WithIRI sets the 'object' property to an IRI.
func WithIRI(iri *url.URL) Opt {
	return func(opts *Options) {
		opts.Iri = iri
	}
}

// WithObject sets the 'object' property to an embedded object.
func WithObject(obj *ObjectType) Opt {
	return func(opts *Options) {
		opts.Object = obj
	}
}

// WithActivity sets the 'object' property to an embedded activity.
func WithActivity(activity *ActivityType) Opt {
	return func(opts *Options) {
		opts.Activity = activity
	}
}

// WithLink sets the 'tag' property to a link.
func WithLink(link *LinkType) Opt {
	return func(opts *Options) {
		opts.Link = link
	}
}
