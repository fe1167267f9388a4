/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vocab

import (
	"testing"

	"github.com/gowebpki/jcs"
	"github.com/stretchr/testify/require"
)

// canonical returns the canonical (RFC 8785) form of the given JSON so that
// documents can be compared regardless of property order.
func canonical(t *testing.T, raw []byte) string {
	t.Helper()

	c, err := jcs.Transform(raw)
	require.NoError(t, err)

	return string(c)
}

func requireJSONEqual(t *testing.T, expected string, actual []byte) {
	t.Helper()

	require.Equal(t, canonical(t, []byte(expected)), canonical(t, actual))
}

func TestDocumentMergeWith(t *testing.T) {
	doc := Document{
		"field1": "value1",
		"field2": "value2",
	}

	doc.MergeWith(Document{
		"field2": "other_value2",
		"field3": "value3",
	})

	require.Equal(t, "value1", doc["field1"])
	require.Equal(t, "value2", doc["field2"])
	require.Equal(t, "value3", doc["field3"])
}

func TestActivityTypes(t *testing.T) {
	require.Contains(t, ActivityTypes(), TypeCreate)
	require.Contains(t, ActivityTypes(), TypeUndo)
	require.NotContains(t, ActivityTypes(), TypeNote)

	require.Contains(t, ActorTypes(), TypePerson)
	require.NotContains(t, ActorTypes(), TypeCreate)
}
