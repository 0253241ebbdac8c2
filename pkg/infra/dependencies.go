// Copyright (c) Mystira. All rights reserved.
// Licensed under the MIT License.

package infra

import (
	"fmt"
	"strings"
)

// ModuleSet is the set of logical modules covered by a change selection.
type ModuleSet map[Module]bool

// SelectedModules classifies every selected change and returns the set of
// modules the selection covers. Unclassifiable resources are skipped.
func SelectedModules(changes []ResourceChange) ModuleSet {
	selected := ModuleSet{}
	for _, change := range changes {
		if !change.Selected {
			continue
		}

		if module, ok := Classify(change.ResourceType); ok {
			selected[module] = true
		}
	}

	return selected
}

// computeDependencies lists the modules the compute deployment template
// requires to be provisioned first.
var computeDependencies = []Module{ModuleDatabase, ModuleStorage}

// DependencyError reports a deploy selection that violates the compute
// dependency rule.
type DependencyError struct {
	// Missing lists the required modules absent from the selection.
	Missing []Module
}

func (e *DependencyError) Error() string {
	names := make([]string, len(e.Missing))
	for i, module := range e.Missing {
		names[i] = string(module)
	}

	return fmt.Sprintf(
		"compute depends on %s: select the missing module(s) before deploying",
		strings.Join(names, " and "))
}

// ValidateDependencies enforces the single cross-resource rule: compute
// cannot be deployed without database and storage, its runtime requires both
// to exist. Returns *DependencyError naming every missing module.
func ValidateDependencies(selected ModuleSet) error {
	if !selected[ModuleCompute] {
		return nil
	}

	var missing []Module
	for _, dependency := range computeDependencies {
		if !selected[dependency] {
			missing = append(missing, dependency)
		}
	}

	if len(missing) > 0 {
		return &DependencyError{Missing: missing}
	}

	return nil
}
