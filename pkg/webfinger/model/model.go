/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package model contains the WebFinger data model (RFC 7033).
package model

// ContentType is the media type of a WebFinger response.
const ContentType = "application/jrd+json"

// RelSelf is the link relation that points at the resource itself. For an
// ActivityPub actor it carries the actor document IRI.
const RelSelf = "self"

// ActivityJSONType is the media type of an ActivityPub document.
const ActivityJSONType = "application/activity+json"

// JRD is a JSON Resource Descriptor: the response document of a WebFinger query.
type JRD struct {
	Subject string   `json:"subject"`
	Aliases []string `json:"aliases,omitempty"`
	Links   []Link   `json:"links,omitempty"`
}

// Link describes a relation of the subject to another resource.
type Link struct {
	Rel  string `json:"rel"`
	Type string `json:"type,omitempty"`
	Href string `json:"href,omitempty"`
}

// LinkByRel returns the first link with the given relation and type, or nil if
// there is none. An empty linkType matches any type.
func (d *JRD) LinkByRel(rel, linkType string) *Link {
	for i := range d.Links {
		link := &d.Links[i]

		if link.Rel != rel {
			continue
		}

		if linkType == "" || link.Type == linkType {
			return link
		}
	}

	return nil
}
