// Copyright (c) Mystira. All rights reserved.
// Licensed under the MIT License.

// Package infra contains the infrastructure change planning logic: parsing
// what-if diff payloads into a canonical change list, classifying resources
// into logical modules, enforcing cross-module dependencies and tracking the
// validate/preview/deploy readiness of a planning session.
package infra

// ChangeType defines the canonical set of planned mutations for a resource.
type ChangeType string

const (
	ChangeTypeCreate   ChangeType = "create"
	ChangeTypeModify   ChangeType = "modify"
	ChangeTypeDelete   ChangeType = "delete"
	ChangeTypeNoChange ChangeType = "noChange"
)

// ResourceChange represents one planned infrastructure mutation from a
// what-if diff.
type ResourceChange struct {
	// ResourceId is the fully qualified identifier. May be empty for legacy
	// payloads that only carry a nested target resource.
	ResourceId string `json:"resourceId,omitempty"`

	// ResourceType is the canonicalized provider type string, for example
	// "Microsoft.Storage/storageAccounts".
	ResourceType string `json:"resourceType"`

	// ResourceName is the display name, derived from the last path segment
	// of ResourceId when not explicitly supplied.
	ResourceName string `json:"resourceName"`

	ChangeType ChangeType `json:"changeType"`

	// ChangeDetails holds ordered human readable property deltas in the form
	// "path: before → after".
	ChangeDetails []string `json:"changeDetails,omitempty"`

	// Selected defaults to true for any change other than noChange. A user
	// may still select a no-op resource explicitly, defaults only follow the
	// change type.
	Selected bool `json:"selected"`

	// ResourceGroup is the logical grouping label used for deployment and
	// destruction scoping.
	ResourceGroup string `json:"resourceGroup,omitempty"`
}
