// Copyright (c) Mystira. All rights reserved.
// Licensed under the MIT License.

package infra

import "strings"

// Module is one of the logical resource categories used for dependency
// gating.
type Module string

const (
	ModuleStorage  Module = "storage"
	ModuleDatabase Module = "database"
	ModuleCompute  Module = "compute"
)

// moduleOrder fixes the evaluation order of classification rules.
var moduleOrder = []Module{ModuleStorage, ModuleDatabase, ModuleCompute}

// moduleTypes lists the fully qualified resource types per module. A
// candidate matches when it equals a listed type or extends it with a nested
// resource path.
var moduleTypes = map[Module][]string{
	ModuleStorage:  {"Microsoft.Storage/storageAccounts"},
	ModuleDatabase: {"Microsoft.DocumentDB/databaseAccounts"},
	ModuleCompute:  {"Microsoft.Web/sites", "Microsoft.Web/serverfarms"},
}

// moduleHints holds the fallback substring heuristics. Every keyword of a
// hint must appear for the hint to match.
var moduleHints = map[Module][][]string{
	ModuleStorage:  {{"storage", "account"}},
	ModuleDatabase: {{"documentdb"}, {"cosmos"}},
	ModuleCompute:  {{"web/sites"}, {"web/serverfarms"}},
}

// Classify maps a raw resource type string to a logical module. Matching is
// case-insensitive and two-tiered: the exact-or-prefix allow list always wins
// over the substring heuristics. Returns false when neither tier matches,
// such resources are excluded from dependency validation but remain
// individually deployable.
func Classify(resourceType string) (Module, bool) {
	candidate := strings.ToLower(resourceType)

	for _, module := range moduleOrder {
		for _, listed := range moduleTypes[module] {
			prefix := strings.ToLower(listed)
			if candidate == prefix || strings.HasPrefix(candidate, prefix+"/") {
				return module, true
			}
		}
	}

	for _, module := range moduleOrder {
		for _, keywords := range moduleHints[module] {
			if containsAll(candidate, keywords) {
				return module, true
			}
		}
	}

	return "", false
}

func containsAll(candidate string, keywords []string) bool {
	for _, keyword := range keywords {
		if !strings.Contains(candidate, keyword) {
			return false
		}
	}

	return true
}
