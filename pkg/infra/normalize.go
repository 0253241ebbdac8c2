// Copyright (c) Mystira. All rights reserved.
// Licensed under the MIT License.

package infra

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Normalizer converts heterogeneous what-if diff payloads into a canonical
// change list. The zero value is usable and resolves no resource groups.
type Normalizer struct {
	// TypeResourceGroups maps a canonical resource type to the resource
	// group resources of that type deploy into. Consulted when a record
	// carries no explicit resource group.
	TypeResourceGroups map[string]string

	// DefaultResourceGroup is applied when neither an explicit value nor a
	// per-type mapping resolves.
	DefaultResourceGroup string
}

// shapeMatcher extracts a candidate change array from a decoded payload.
// Matchers are tried in order and the first one yielding a non-empty array
// wins, later shapes are never consulted.
type shapeMatcher func(payload any) []any

var shapeMatchers = []shapeMatcher{
	func(payload any) []any {
		records, _ := payload.([]any)
		return records
	},
	objectArray("changes"),
	objectArray("resourceChanges"),
	nestedArray("properties", "changes"),
	nestedArray("properties", "resourceChanges"),
}

func objectArray(key string) shapeMatcher {
	return func(payload any) []any {
		obj, ok := payload.(map[string]any)
		if !ok {
			return nil
		}
		records, _ := obj[key].([]any)
		return records
	}
}

func nestedArray(parent string, key string) shapeMatcher {
	return func(payload any) []any {
		obj, ok := payload.(map[string]any)
		if !ok {
			return nil
		}
		nested, ok := obj[parent].(map[string]any)
		if !ok {
			return nil
		}
		records, _ := nested[key].([]any)
		return records
	}
}

// Normalize parses a raw what-if payload into resource changes. The input is
// untrusted, invalid JSON or an unrecognized shape degrades to an empty list,
// never an error.
func (n *Normalizer) Normalize(raw []byte) []ResourceChange {
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return []ResourceChange{}
	}

	var records []any
	for _, match := range shapeMatchers {
		if found := match(payload); len(found) > 0 {
			records = found
			break
		}
	}

	changes := []ResourceChange{}
	for _, rec := range records {
		record, ok := rec.(map[string]any)
		if !ok {
			continue
		}

		change, ok := n.normalizeRecord(record)
		if !ok {
			continue
		}

		changes = append(changes, change)
	}

	return changes
}

// Normalize parses a raw what-if payload with no resource group resolution.
func Normalize(raw []byte) []ResourceChange {
	n := &Normalizer{}
	return n.Normalize(raw)
}

func (n *Normalizer) normalizeRecord(record map[string]any) (ResourceChange, bool) {
	resourceId := stringField(record, "resourceId", "id")
	if resourceId == "" {
		if target, ok := record["targetResource"].(map[string]any); ok {
			resourceId = stringField(target, "id", "resourceId")
		}
	}

	// A record with no identifier of any kind is unusable.
	if resourceId == "" {
		return ResourceChange{}, false
	}

	resourceType := resolveResourceType(record, resourceId)
	changeType := resolveChangeType(stringField(record, "changeType", "action"))

	name := stringField(record, "resourceName", "name")
	if name == "" {
		segments := strings.Split(resourceId, "/")
		name = segments[len(segments)-1]
	}

	change := ResourceChange{
		ResourceId:    resourceId,
		ResourceType:  resourceType,
		ResourceName:  name,
		ChangeType:    changeType,
		ChangeDetails: flattenDelta(firstField(record, "delta", "changeDetails")),
		Selected:      changeType != ChangeTypeNoChange,
		ResourceGroup: n.resolveResourceGroup(record, resourceType),
	}

	return change, true
}

// resolveResourceType resolves a record's type in fixed precedence order:
// explicit field, nested target resource, nested resource, identifier path
// segments, with "Unknown" as the final fallback.
func resolveResourceType(record map[string]any, resourceId string) string {
	if t := stringField(record, "resourceType"); t != "" {
		return canonicalType(t)
	}

	if target, ok := record["targetResource"].(map[string]any); ok {
		if t := stringField(target, "type", "resourceType"); t != "" {
			return canonicalType(t)
		}
	}

	if resource, ok := record["resource"].(map[string]any); ok {
		if t := stringField(resource, "type", "resourceType"); t != "" {
			return canonicalType(t)
		}
	}

	// /subscriptions/{sub}/resourceGroups/{rg}/providers/{namespace}/{kind}/{name}
	segments := strings.Split(resourceId, "/")
	if len(segments) >= 8 {
		return canonicalType(segments[6] + "/" + segments[7])
	}

	return "Unknown"
}

// canonicalNamespaces maps lower-cased provider namespaces to their canonical
// capitalization.
var canonicalNamespaces = map[string]string{
	"microsoft.storage":             "Microsoft.Storage",
	"microsoft.documentdb":          "Microsoft.DocumentDB",
	"microsoft.web":                 "Microsoft.Web",
	"microsoft.keyvault":            "Microsoft.KeyVault",
	"microsoft.insights":            "Microsoft.Insights",
	"microsoft.operationalinsights": "Microsoft.OperationalInsights",
	"microsoft.resources":           "Microsoft.Resources",
}

// canonicalType normalizes the leading provider namespace of a type string to
// its canonical capitalization, leaving the remaining segments untouched.
func canonicalType(resourceType string) string {
	namespace, rest, found := strings.Cut(resourceType, "/")
	if !found {
		return resourceType
	}

	if canonical, ok := canonicalNamespaces[strings.ToLower(namespace)]; ok {
		return canonical + "/" + rest
	}

	// Unknown namespace, title-case each dotted token.
	tokens := strings.Split(namespace, ".")
	for i, token := range tokens {
		if token == "" {
			continue
		}
		tokens[i] = strings.ToUpper(token[:1]) + strings.ToLower(token[1:])
	}

	return strings.Join(tokens, ".") + "/" + rest
}

// changeTypeSynonyms maps lower-cased raw action strings to canonical change
// types. Unrecognized values default to noChange.
var changeTypeSynonyms = map[string]ChangeType{
	"create":   ChangeTypeCreate,
	"deploy":   ChangeTypeCreate,
	"new":      ChangeTypeCreate,
	"modify":   ChangeTypeModify,
	"update":   ChangeTypeModify,
	"change":   ChangeTypeModify,
	"delete":   ChangeTypeDelete,
	"remove":   ChangeTypeDelete,
	"destroy":  ChangeTypeDelete,
	"nochange": ChangeTypeNoChange,
	"ignore":   ChangeTypeNoChange,
	"no-op":    ChangeTypeNoChange,
}

func resolveChangeType(raw string) ChangeType {
	if mapped, ok := changeTypeSynonyms[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return mapped
	}

	return ChangeTypeNoChange
}

// flattenDelta renders a raw property delta into ordered "path: before →
// after" strings. A delta may be an array of property tuples or an object
// whose values are either such arrays or nested objects, the latter rendered
// as a labeled JSON blob.
func flattenDelta(delta any) []string {
	switch d := delta.(type) {
	case []any:
		return flattenDeltaEntries(d)
	case map[string]any:
		keys := make([]string, 0, len(d))
		for key := range d {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		var details []string
		for _, key := range keys {
			switch value := d[key].(type) {
			case []any:
				details = append(details, flattenDeltaEntries(value)...)
			default:
				blob, err := json.Marshal(value)
				if err != nil {
					continue
				}
				details = append(details, fmt.Sprintf("%s: %s", key, blob))
			}
		}
		return details
	default:
		return nil
	}
}

func flattenDeltaEntries(entries []any) []string {
	var details []string
	for _, entry := range entries {
		tuple, ok := entry.(map[string]any)
		if !ok {
			continue
		}

		path := stringField(tuple, "path", "property")
		if path == "" {
			continue
		}

		before := firstField(tuple, "before", "oldValue")
		after := firstField(tuple, "after", "newValue")
		details = append(details, fmt.Sprintf("%s: %s → %s", path, formatDeltaValue(before), formatDeltaValue(after)))
	}

	return details
}

func formatDeltaValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "(none)"
	case string:
		return v
	default:
		blob, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(blob)
	}
}

func (n *Normalizer) resolveResourceGroup(record map[string]any, resourceType string) string {
	if rg := stringField(record, "resourceGroup"); rg != "" {
		return rg
	}

	if rg, ok := n.TypeResourceGroups[resourceType]; ok {
		return rg
	}

	return n.DefaultResourceGroup
}

// stringField returns the first non-empty string value among the named keys.
func stringField(record map[string]any, keys ...string) string {
	for _, key := range keys {
		if value, ok := record[key].(string); ok && value != "" {
			return value
		}
	}

	return ""
}

// firstField returns the first present value among the named keys.
func firstField(record map[string]any, keys ...string) any {
	for _, key := range keys {
		if value, ok := record[key]; ok {
			return value
		}
	}

	return nil
}
