/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mocks

import (
	"fmt"

	"github.com/quillpub/quill/pkg/activitypub/vocab"
)

// Activities contains a slice of ActivityType.
type Activities []*vocab.ActivityType

// Contains returns true if an activity with the given ID is in the slice.
func (a Activities) Contains(iri fmt.Stringer) bool {
	for _, activity := range a {
		if activity.ID().String() == iri.String() {
			return true
		}
	}

	return false
}

// QueryByType returns the activities that match any of the given types.
func (a Activities) QueryByType(types ...vocab.Type) Activities {
	var result Activities

	for _, activity := range a {
		if activity.Type().IsAny(types...) {
			result = append(result, activity)
		}
	}

	return result
}
