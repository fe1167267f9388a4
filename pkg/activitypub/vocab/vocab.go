/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vocab

// Context defines the object context.
type Context string

const (
	// ContextActivityStreams is the ActivityStreams context.
	ContextActivityStreams Context = "https://www.w3.org/ns/activitystreams"
	// ContextSecurity is the security context.
	ContextSecurity Context = "https://w3id.org/security/v1"
)

const (
	// PublicIRI indicates that the object is public, i.e. it may be viewed by anyone.
	PublicIRI = "https://www.w3.org/ns/activitystreams#Public"
)

// Type indicates the type of the object.
type Type string

const (
	// TypeObject specifies the 'Object' type.
	TypeObject Type = "Object"
	// TypeNote specifies the 'Note' object type.
	TypeNote Type = "Note"
	// TypeArticle specifies the 'Article' object type.
	TypeArticle Type = "Article"
	// TypeImage specifies the 'Image' object type.
	TypeImage Type = "Image"
	// TypeTombstone specifies the 'Tombstone' object type.
	TypeTombstone Type = "Tombstone"
	// TypeLink specifies the 'Link' type.
	TypeLink Type = "Link"
	// TypeMention specifies the 'Mention' link type.
	TypeMention Type = "Mention"

	// TypeCollection specifies the 'Collection' object type.
	TypeCollection Type = "Collection"
	// TypeOrderedCollection specifies the 'OrderedCollection' object type.
	TypeOrderedCollection Type = "OrderedCollection"
	// TypeCollectionPage specifies the 'CollectionPage' object type.
	TypeCollectionPage Type = "CollectionPage"
	// TypeOrderedCollectionPage specifies the 'OrderedCollectionPage' object type.
	TypeOrderedCollectionPage Type = "OrderedCollectionPage"

	// TypePerson specifies the 'Person' actor type.
	TypePerson Type = "Person"
	// TypeGroup specifies the 'Group' actor type.
	TypeGroup Type = "Group"
	// TypeOrganization specifies the 'Organization' actor type.
	TypeOrganization Type = "Organization"
	// TypeService specifies the 'Service' actor type.
	TypeService Type = "Service"
	// TypeApplication specifies the 'Application' actor type.
	TypeApplication Type = "Application"

	// TypeCreate specifies the 'Create' activity type.
	TypeCreate Type = "Create"
	// TypeUpdate specifies the 'Update' activity type.
	TypeUpdate Type = "Update"
	// TypeDelete specifies the 'Delete' activity type.
	TypeDelete Type = "Delete"
	// TypeFollow specifies the 'Follow' activity type.
	TypeFollow Type = "Follow"
	// TypeAccept specifies the 'Accept' activity type.
	TypeAccept Type = "Accept"
	// TypeReject specifies the 'Reject' activity type.
	TypeReject Type = "Reject"
	// TypeLike specifies the 'Like' activity type.
	TypeLike Type = "Like"
	// TypeAnnounce specifies the 'Announce' activity type.
	TypeAnnounce Type = "Announce"
	// TypeAdd specifies the 'Add' activity type.
	TypeAdd Type = "Add"
	// TypeRemove specifies the 'Remove' activity type.
	TypeRemove Type = "Remove"
	// TypeBlock specifies the 'Block' activity type.
	TypeBlock Type = "Block"
	// TypeUndo specifies the 'Undo' activity type.
	TypeUndo Type = "Undo"
)

// ActivityTypes returns all of the supported activity types.
func ActivityTypes() []Type {
	return []Type{
		TypeCreate, TypeUpdate, TypeDelete, TypeFollow, TypeAccept, TypeReject,
		TypeLike, TypeAnnounce, TypeAdd, TypeRemove, TypeBlock, TypeUndo,
	}
}

// ActorTypes returns all of the supported actor types.
func ActorTypes() []Type {
	return []Type{TypePerson, TypeGroup, TypeOrganization, TypeService, TypeApplication}
}

const (
	propertyContext      = "@context"
	propertyID           = "id"
	propertyType         = "type"
	propertyName         = "name"
	propertySummary      = "summary"
	propertyContent      = "content"
	propertyAttributedTo = "attributedTo"
	propertyInReplyTo    = "inReplyTo"
	propertyURL          = "url"
	propertyTag          = "tag"
	propertyTo           = "to"
	propertyCc           = "cc"
	propertyBto          = "bto"
	propertyBcc          = "bcc"
	propertyAudience     = "audience"
	propertyPublished    = "published"
	propertyUpdated      = "updated"
	propertyFormerType   = "formerType"
	propertyDeleted      = "deleted"
	propertyActor        = "actor"
	propertyCurrent      = "current"
	propertyFirst        = "first"
	propertyLast         = "last"
	propertyItems        = "items"
	propertyOrderedItems = "orderedItems"
	propertyPartOf       = "partOf"
	propertyNext         = "next"
	propertyPrev         = "prev"
	propertyObject       = "object"
	propertyTarget       = "target"
	propertyTotalItems   = "totalItems"

	propertyPreferredUsername = "preferredUsername"
	propertyPublicKey         = "publicKey"
	propertyInbox             = "inbox"
	propertyOutbox            = "outbox"
	propertyFollowers         = "followers"
	propertyFollowing         = "following"
	propertyLiked             = "liked"
	propertyFeatured          = "featured"
	propertyEndpoints         = "endpoints"
)

func reservedProperties() []string {
	return []string{
		propertyContext,
		propertyID,
		propertyType,
		propertyName,
		propertySummary,
		propertyContent,
		propertyAttributedTo,
		propertyInReplyTo,
		propertyURL,
		propertyTag,
		propertyTo,
		propertyCc,
		propertyBto,
		propertyBcc,
		propertyAudience,
		propertyPublished,
		propertyUpdated,
		propertyFormerType,
		propertyDeleted,
		propertyActor,
		propertyCurrent,
		propertyFirst,
		propertyLast,
		propertyItems,
		propertyOrderedItems,
		propertyPartOf,
		propertyNext,
		propertyPrev,
		propertyObject,
		propertyTarget,
		propertyTotalItems,
		propertyPreferredUsername,
		propertyPublicKey,
		propertyInbox,
		propertyOutbox,
		propertyFollowers,
		propertyFollowing,
		propertyLiked,
		propertyFeatured,
		propertyEndpoints,
	}
}

// Document defines a JSON document as a map.
type Document map[string]interface{}

// MergeWith merges the document with the given document. Any duplicate fields
// in the given document are ignored.
func (doc Document) MergeWith(other Document) {
	for k, v := range other {
		if _, ok := doc[k]; !ok {
			doc[k] = v
		}
	}
}
