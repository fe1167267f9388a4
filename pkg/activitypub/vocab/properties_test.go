/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vocab

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTypeProperty(t *testing.T) {
	require.Nil(t, NewTypeProperty())

	p := NewTypeProperty(TypeCreate)
	require.Equal(t, "Create", p.String())
	require.True(t, p.Is(TypeCreate))
	require.False(t, p.Is(TypeFollow))
	require.True(t, p.IsAny(TypeFollow, TypeCreate))

	t.Run("single value", func(t *testing.T) {
		b, err := json.Marshal(p)
		require.NoError(t, err)
		require.Equal(t, `"Create"`, string(b))

		p2 := &TypeProperty{}
		require.NoError(t, json.Unmarshal(b, p2))
		require.True(t, p2.Is(TypeCreate))
	})

	t.Run("multiple values", func(t *testing.T) {
		p := NewTypeProperty(TypeLink, TypeMention)

		b, err := json.Marshal(p)
		require.NoError(t, err)
		require.Equal(t, `["Link","Mention"]`, string(b))

		p2 := &TypeProperty{}
		require.NoError(t, json.Unmarshal(b, p2))
		require.True(t, p2.Is(TypeLink, TypeMention))
	})

	t.Run("nil receiver", func(t *testing.T) {
		var p *TypeProperty
		require.Empty(t, p.String())
		require.Nil(t, p.Types())
		require.False(t, p.Is(TypeCreate))
	})
}

func TestURLProperty(t *testing.T) {
	require.Nil(t, NewURLProperty(nil))

	u := MustParseURL("https://alice.example.com/users/alice")

	p := NewURLProperty(u)
	require.Equal(t, u.String(), p.String())
	require.Equal(t, u, p.URL())

	b, err := json.Marshal(p)
	require.NoError(t, err)
	require.Equal(t, `"https://alice.example.com/users/alice"`, string(b))

	p2 := &URLProperty{}
	require.NoError(t, json.Unmarshal(b, p2))
	require.Equal(t, u.String(), p2.String())

	t.Run("nil receiver", func(t *testing.T) {
		var p *URLProperty
		require.Empty(t, p.String())
		require.Nil(t, p.URL())
	})
}

func TestURLCollectionProperty(t *testing.T) {
	require.Nil(t, NewURLCollectionProperty())

	u1 := MustParseURL("https://alice.example.com/users/alice")
	u2 := MustParseURL("https://bob.example.com/users/bob")

	t.Run("single value marshals as a string", func(t *testing.T) {
		p := NewURLCollectionProperty(u1)

		b, err := json.Marshal(p)
		require.NoError(t, err)
		require.Equal(t, `"https://alice.example.com/users/alice"`, string(b))

		p2 := &URLCollectionProperty{}
		require.NoError(t, json.Unmarshal(b, p2))
		require.Len(t, p2.URLs(), 1)
	})

	t.Run("multiple values marshal as an array", func(t *testing.T) {
		p := NewURLCollectionProperty(u1, u2)

		b, err := json.Marshal(p)
		require.NoError(t, err)

		p2 := &URLCollectionProperty{}
		require.NoError(t, json.Unmarshal(b, p2))
		require.Len(t, p2.URLs(), 2)
		require.Equal(t, u2.String(), p2.URLs()[1].String())
	})
}

func TestContextProperty(t *testing.T) {
	require.Nil(t, NewContextProperty())

	p := NewContextProperty(ContextActivityStreams, ContextSecurity)
	require.True(t, p.Contains(ContextActivityStreams, ContextSecurity))
	require.False(t, p.Contains(ContextActivityStreams, "https://example.com/context"))
	require.True(t, p.ContainsAny("https://example.com/context", ContextSecurity))

	b, err := json.Marshal(p)
	require.NoError(t, err)

	p2 := &ContextProperty{}
	require.NoError(t, json.Unmarshal(b, p2))
	require.True(t, p2.Contains(ContextActivityStreams, ContextSecurity))

	t.Run("single context", func(t *testing.T) {
		p := NewContextProperty(ContextActivityStreams)

		b, err := json.Marshal(p)
		require.NoError(t, err)
		require.Equal(t, `"https://www.w3.org/ns/activitystreams"`, string(b))
		require.Equal(t, string(ContextActivityStreams), p.String())
	})
}

func TestObjectProperty(t *testing.T) {
	t.Run("IRI", func(t *testing.T) {
		iri := MustParseURL("https://alice.example.com/users/alice")

		p := NewObjectProperty(WithIRI(iri))
		require.Equal(t, iri.String(), p.IRI().String())
		require.Nil(t, p.Object())
		require.Nil(t, p.Type())
	})

	t.Run("embedded object", func(t *testing.T) {
		p := NewObjectProperty(WithObject(NewObject(WithType(TypeNote), WithContent("hi"))))
		require.Nil(t, p.IRI())
		require.True(t, p.Type().Is(TypeNote))

		b, err := json.Marshal(p)
		require.NoError(t, err)

		p2 := &ObjectProperty{}
		require.NoError(t, json.Unmarshal(b, p2))
		require.NotNil(t, p2.Object())
		require.Equal(t, "hi", p2.Object().Content())
	})

	t.Run("nil receiver", func(t *testing.T) {
		var p *ObjectProperty
		require.Nil(t, p.IRI())
		require.Nil(t, p.Object())
		require.Nil(t, p.Activity())
		require.Nil(t, p.Type())
	})
}

func TestTagProperty(t *testing.T) {
	t.Run("mention link", func(t *testing.T) {
		mention := NewMention(MustParseURL("https://bob.example.com/users/bob"), "@bob@bob.example.com")

		p := NewTagProperty(WithLink(mention))
		require.True(t, p.Type().Is(TypeMention))

		b, err := json.Marshal(p)
		require.NoError(t, err)

		p2 := &TagProperty{}
		require.NoError(t, json.Unmarshal(b, p2))

		link := p2.Link()
		require.NotNil(t, link)
		require.True(t, link.Type().Is(TypeMention))
		require.Equal(t, "https://bob.example.com/users/bob", link.HRef().String())
		require.Equal(t, "@bob@bob.example.com", link.Name())
	})

	t.Run("object tag", func(t *testing.T) {
		p := NewTagProperty(WithObject(NewObject(WithType(TypeObject), WithName("#hashtag"))))

		b, err := json.Marshal(p)
		require.NoError(t, err)

		p2 := &TagProperty{}
		require.NoError(t, json.Unmarshal(b, p2))
		require.Nil(t, p2.Link())
		require.NotNil(t, p2.Object())
		require.Equal(t, "#hashtag", p2.Object().Name())
	})

	t.Run("neither object nor link", func(t *testing.T) {
		p := NewTagProperty()

		_, err := json.Marshal(p)
		require.Error(t, err)
	})
}
