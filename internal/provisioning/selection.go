// Copyright (c) Mystira. All rights reserved.
// Licensed under the MIT License.

// Package provisioning drives the infrastructure lifecycle (validate,
// preview, deploy, destroy, status) for one environment through the Azure
// CLI, gated by the deployment readiness session.
package provisioning

import (
	"fmt"

	"github.com/mystira/devhub/pkg/config"
	"github.com/mystira/devhub/pkg/infra"
)

// TemplateSelection is the set of deployment templates the user opted into
// for the current planning session, plus an optional resource group override.
type TemplateSelection struct {
	DeployStorage    bool   `json:"deployStorage"`
	DeployCosmos     bool   `json:"deployCosmos"`
	DeployAppService bool   `json:"deployAppService"`
	ResourceGroup    string `json:"resourceGroup,omitempty"`
}

// DefaultSelection deploys everything into the environment's default group.
func DefaultSelection() TemplateSelection {
	return TemplateSelection{
		DeployStorage:    true,
		DeployCosmos:     true,
		DeployAppService: true,
	}
}

// Modules maps the selection to the logical module set used by dependency
// validation.
func (s TemplateSelection) Modules() infra.ModuleSet {
	modules := infra.ModuleSet{}
	if s.DeployStorage {
		modules[infra.ModuleStorage] = true
	}
	if s.DeployCosmos {
		modules[infra.ModuleDatabase] = true
	}
	if s.DeployAppService {
		modules[infra.ModuleCompute] = true
	}

	return modules
}

func selectionPath(environment string) string {
	return fmt.Sprintf("infra.%s.selection", environment)
}

// LoadSelection reads the persisted selection for the environment. Absent or
// malformed entries fall back to the default selection.
func LoadSelection(settings config.Config, environment string) TemplateSelection {
	if settings == nil {
		return DefaultSelection()
	}

	section, ok := settings.Get(selectionPath(environment))
	if !ok {
		return DefaultSelection()
	}

	raw, ok := section.(map[string]any)
	if !ok {
		return DefaultSelection()
	}

	selection := TemplateSelection{}
	selection.DeployStorage = boolValue(raw, "deployStorage")
	selection.DeployCosmos = boolValue(raw, "deployCosmos")
	selection.DeployAppService = boolValue(raw, "deployAppService")
	if group, ok := raw["resourceGroup"].(string); ok {
		selection.ResourceGroup = group
	}

	return selection
}

// SaveSelection persists the selection for the environment.
func SaveSelection(settings config.Config, environment string, selection TemplateSelection) error {
	if settings == nil {
		return nil
	}

	value := map[string]any{
		"deployStorage":    selection.DeployStorage,
		"deployCosmos":     selection.DeployCosmos,
		"deployAppService": selection.DeployAppService,
	}
	if selection.ResourceGroup != "" {
		value["resourceGroup"] = selection.ResourceGroup
	}

	return settings.Set(selectionPath(environment), value)
}

func boolValue(raw map[string]any, key string) bool {
	value, ok := raw[key].(bool)
	return ok && value
}
