/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vocab

import (
	"net/url"
)

// LinkType defines the ActivityStreams 'Link' type. A 'Mention' tag is a
// specialized Link with the mentioned actor in 'href'.
type LinkType struct {
	link *linkType
}

type linkType struct {
	Type *TypeProperty `json:"type,omitempty"`
	HRef *URLProperty  `json:"href,omitempty"`
	Name string        `json:"name,omitempty"`
}

// NewLink creates a new Link type.
func NewLink(hRef *url.URL, opts ...Opt) *LinkType {
	options := NewOptions(opts...)

	types := options.Types
	if len(types) == 0 {
		types = []Type{TypeLink}
	}

	return &LinkType{
		link: &linkType{
			Type: NewTypeProperty(types...),
			HRef: NewURLProperty(hRef),
			Name: options.Name,
		},
	}
}

// NewMention creates a new 'Mention' link.
func NewMention(hRef *url.URL, name string) *LinkType {
	return NewLink(hRef, WithType(TypeMention), WithName(name))
}

// Type returns the link type.
func (t *LinkType) Type() *TypeProperty {
	if t == nil || t.link == nil {
		return nil
	}

	return t.link.Type
}

// HRef return the reference ('href' field).
func (t *LinkType) HRef() *url.URL {
	if t == nil || t.link == nil || t.link.HRef == nil {
		return nil
	}

	return t.link.HRef.URL()
}

// Name returns the link's name.
func (t *LinkType) Name() string {
	if t == nil || t.link == nil {
		return ""
	}

	return t.link.Name
}

// MarshalJSON marshals the link type to JSON.
func (t *LinkType) MarshalJSON() ([]byte, error) {
	return MarshalJSON(t.link)
}

// UnmarshalJSON umarshals the link type from JSON.
func (t *LinkType) UnmarshalJSON(bytes []byte) error {
	t.link = &linkType{}

	return UnmarshalJSON(bytes, &t.link)
}
