/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vocab

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"
)

// ObjectType defines an 'object'.
type ObjectType struct {
	object     *objectType
	additional Document
}

// NewObject returns a new 'object'.
func NewObject(opts ...Opt) *ObjectType {
	options := NewOptions(opts...)

	return &ObjectType{
		object: &objectType{
			Context:      NewContextProperty(options.Context...),
			ID:           NewURLProperty(options.ID),
			Type:         NewTypeProperty(options.Types...),
			Name:         options.Name,
			Summary:      options.Summary,
			Content:      options.Content,
			AttributedTo: NewURLProperty(options.AttributedTo),
			InReplyTo:    NewURLProperty(options.InReplyTo),
			URL:          NewURLCollectionProperty(options.URL...),
			Tag:          options.Tag,
			To:           NewURLCollectionProperty(options.To...),
			CC:           NewURLCollectionProperty(options.CC...),
			Bto:          NewURLCollectionProperty(options.Bto...),
			Bcc:          NewURLCollectionProperty(options.Bcc...),
			Audience:     NewURLCollectionProperty(options.Audience...),
			Published:    options.Published,
			Updated:      options.Updated,
			FormerType:   NewTypeProperty(options.FormerType...),
			Deleted:      options.Deleted,
		},
	}
}

// NewTombstone returns a new 'Tombstone' object. The type of the deleted
// object is carried in the 'formerType' property.
func NewTombstone(opts ...Opt) *ObjectType {
	t := NewObject(opts...)

	t.object.Type = NewTypeProperty(TypeTombstone)

	return t
}

// NewObjectWithDocument returns a new object initialized with the given document.
func NewObjectWithDocument(doc Document, opts ...Opt) (*ObjectType, error) {
	if doc == nil {
		return nil, fmt.Errorf("nil document")
	}

	bytes, err := MarshalJSON(NewObject(opts...), doc)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	obj := &ObjectType{}

	err = json.Unmarshal(bytes, &obj)
	if err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}

	return obj, nil
}

type objectType struct {
	Context      *ContextProperty       `json:"@context,omitempty"`
	ID           *URLProperty           `json:"id,omitempty"`
	Type         *TypeProperty          `json:"type,omitempty"`
	Name         string                 `json:"name,omitempty"`
	Summary      string                 `json:"summary,omitempty"`
	Content      string                 `json:"content,omitempty"`
	AttributedTo *URLProperty           `json:"attributedTo,omitempty"`
	InReplyTo    *URLProperty           `json:"inReplyTo,omitempty"`
	URL          *URLCollectionProperty `json:"url,omitempty"`
	Tag          []*TagProperty         `json:"tag,omitempty"`
	To           *URLCollectionProperty `json:"to,omitempty"`
	CC           *URLCollectionProperty `json:"cc,omitempty"`
	Bto          *URLCollectionProperty `json:"bto,omitempty"`
	Bcc          *URLCollectionProperty `json:"bcc,omitempty"`
	Audience     *URLCollectionProperty `json:"audience,omitempty"`
	Published    *time.Time             `json:"published,omitempty"`
	Updated      *time.Time             `json:"updated,omitempty"`
	FormerType   *TypeProperty          `json:"formerType,omitempty"`
	Deleted      *time.Time             `json:"deleted,omitempty"`
}

// Context returns the context property.
func (t *ObjectType) Context() *ContextProperty {
	return t.object.Context
}

// SetContext sets the context property.
func (t *ObjectType) SetContext(context ...Context) {
	t.object.Context = NewContextProperty(context...)
}

// ID returns the object's ID.
func (t *ObjectType) ID() *URLProperty {
	return t.object.ID
}

// SetID sets the object's ID.
func (t *ObjectType) SetID(id *url.URL) {
	t.object.ID = NewURLProperty(id)
}

// Type returns the type of the object.
func (t *ObjectType) Type() *TypeProperty {
	return t.object.Type
}

// SetType sets the type of the object.
func (t *ObjectType) SetType(types ...Type) {
	t.object.Type = NewTypeProperty(types...)
}

// Name returns the object's name.
func (t *ObjectType) Name() string {
	return t.object.Name
}

// Summary returns the object's summary.
func (t *ObjectType) Summary() string {
	return t.object.Summary
}

// Content returns the object's content.
func (t *ObjectType) Content() string {
	return t.object.Content
}

// AttributedTo returns the IRI of the actor to which the object is attributed.
func (t *ObjectType) AttributedTo() *URLProperty {
	return t.object.AttributedTo
}

// SetAttributedTo sets the 'attributedTo' property of the object.
func (t *ObjectType) SetAttributedTo(iri *url.URL) {
	t.object.AttributedTo = NewURLProperty(iri)
}

// InReplyTo returns the IRI of the object that this object is in reply to.
func (t *ObjectType) InReplyTo() *URLProperty {
	return t.object.InReplyTo
}

// URLs returns the object's URLs.
func (t *ObjectType) URLs() []*url.URL {
	if t.object.URL == nil {
		return nil
	}

	return t.object.URL.URLs()
}

// Tag returns the object's tags.
func (t *ObjectType) Tag() []*TagProperty {
	return t.object.Tag
}

// Published returns the time when the object was published.
func (t *ObjectType) Published() *time.Time {
	return t.object.Published
}

// SetPublished sets the time when the object was published.
func (t *ObjectType) SetPublished(published *time.Time) {
	t.object.Published = published
}

// Updated returns the time when the object was last updated.
func (t *ObjectType) Updated() *time.Time {
	return t.object.Updated
}

// FormerType returns the former type of a deleted object. This property
// is only set on a Tombstone.
func (t *ObjectType) FormerType() *TypeProperty {
	return t.object.FormerType
}

// Deleted returns the time when the object was deleted. This property
// is only set on a Tombstone.
func (t *ObjectType) Deleted() *time.Time {
	return t.object.Deleted
}

// To returns a set of URLs to which the object should be sent.
func (t *ObjectType) To() []*url.URL {
	if t.object.To == nil {
		return nil
	}

	return t.object.To.URLs()
}

// SetTo sets the 'to' property of the object.
func (t *ObjectType) SetTo(to ...*url.URL) {
	t.object.To = NewURLCollectionProperty(to...)
}

// CC returns the secondary recipients of the object.
func (t *ObjectType) CC() []*url.URL {
	if t.object.CC == nil {
		return nil
	}

	return t.object.CC.URLs()
}

// Bto returns the private primary recipients of the object.
func (t *ObjectType) Bto() []*url.URL {
	if t.object.Bto == nil {
		return nil
	}

	return t.object.Bto.URLs()
}

// Bcc returns the private secondary recipients of the object.
func (t *ObjectType) Bcc() []*url.URL {
	if t.object.Bcc == nil {
		return nil
	}

	return t.object.Bcc.URLs()
}

// StripHiddenRecipients removes the 'bto' and 'bcc' properties from the
// object. Hidden recipients are used for delivery but are never persisted
// or put on the wire.
func (t *ObjectType) StripHiddenRecipients() {
	t.object.Bto = nil
	t.object.Bcc = nil
}

// Audience returns the audience of the object.
func (t *ObjectType) Audience() []*url.URL {
	if t.object.Audience == nil {
		return nil
	}

	return t.object.Audience.URLs()
}

// Recipients returns all of the recipients of the object, i.e. the union of
// 'to', 'cc', 'bto', 'bcc' and 'audience'. Duplicates are not removed.
func (t *ObjectType) Recipients() []*url.URL {
	var recipients []*url.URL

	recipients = append(recipients, t.To()...)
	recipients = append(recipients, t.CC()...)
	recipients = append(recipients, t.Bto()...)
	recipients = append(recipients, t.Bcc()...)
	recipients = append(recipients, t.Audience()...)

	return recipients
}

// Value returns the value of a property.
func (t *ObjectType) Value(key string) (interface{}, bool) {
	v, ok := t.additional[key]

	return v, ok
}

// MarshalJSON marshals the object.
func (t *ObjectType) MarshalJSON() ([]byte, error) {
	return MarshalJSON(t.object, t.additional)
}

// UnmarshalJSON unmarshals the object.
func (t *ObjectType) UnmarshalJSON(bytes []byte) error {
	header := &objectType{}

	err := json.Unmarshal(bytes, header)
	if err != nil {
		return err
	}

	doc := make(Document)

	err = json.Unmarshal(bytes, &doc)
	if err != nil {
		return err
	}

	// Delete all of the reserved ActivityStreams fields
	for _, prop := range reservedProperties() {
		delete(doc, prop)
	}

	t.object = header
	t.additional = doc

	return nil
}
