/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vocab

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMarshal(t *testing.T) {
	// Characters such as '&' must not be escaped.
	b, err := Marshal(Document{"url": "https://example.com/outbox?page=true&page-num=2"})
	require.NoError(t, err)
	require.Equal(t, `{"url":"https://example.com/outbox?page=true&page-num=2"}`, string(b))
}

func TestMarshalToDoc(t *testing.T) {
	obj := NewObject(WithType(TypeNote), WithContent("Hello"))

	doc, err := MarshalToDoc(obj)
	require.NoError(t, err)
	require.Equal(t, "Note", doc["type"])
	require.Equal(t, "Hello", doc["content"])

	obj2 := &ObjectType{}
	require.NoError(t, UnmarshalFromDoc(doc, obj2))
	require.Equal(t, "Hello", obj2.Content())
}

func TestMustParseURL(t *testing.T) {
	u := MustParseURL("https://example.com/users/alice")
	require.Equal(t, "alice", u.Path[len("/users/"):])

	require.Panics(t, func() {
		MustParseURL("%")
	})
}

func TestIsPublic(t *testing.T) {
	require.True(t, IsPublic(MustParseURL(PublicIRI)))
	require.False(t, IsPublic(MustParseURL("https://example.com/users/alice")))
	require.False(t, IsPublic(nil))
}
