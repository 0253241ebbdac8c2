// Copyright (c) Mystira. All rights reserved.
// Licensed under the MIT License.

package provisioning

import (
	"context"
	"strings"

	"github.com/mystira/devhub/pkg/infra"
)

// Health is the display state of one logical module.
type Health string

const (
	HealthHealthy   Health = "healthy"
	HealthDegraded  Health = "degraded"
	HealthUnhealthy Health = "unhealthy"
	HealthUnknown   Health = "unknown"
)

// Snapshot is one point-in-time view of the environment's infrastructure,
// the polling target for the control panel.
type Snapshot struct {
	Exists        bool                    `json:"exists"`
	ResourceGroup string                  `json:"resourceGroup"`
	ResourceCount int                     `json:"resourceCount"`
	Modules       map[infra.Module]Health `json:"modules"`
}

// Status reports the health of every classifiable resource in the
// environment's group, aggregated per module. App services additionally get
// a runtime state probe, a site can be provisioned fine yet stopped.
func (e *Engine) Status(ctx context.Context) (*Snapshot, error) {
	group := e.ResourceGroup()

	exists, err := e.az.GroupExists(ctx, group)
	if err != nil {
		return nil, err
	}
	if !exists {
		return &Snapshot{ResourceGroup: group, Modules: map[infra.Module]Health{}}, nil
	}

	resources, err := e.Resources(ctx)
	if err != nil {
		return nil, err
	}

	snapshot := &Snapshot{
		Exists:        true,
		ResourceGroup: group,
		ResourceCount: len(resources),
		Modules:       map[infra.Module]Health{},
	}

	for _, resource := range resources {
		module, ok := infra.Classify(resource.Type)
		if !ok {
			continue
		}

		health := healthFromProvisioningState(resource.Properties.ProvisioningState)

		if health == HealthHealthy && isAppService(resource.Type) {
			if state, err := e.az.AppServiceState(ctx, group, resource.Name); err == nil {
				health = healthFromRuntimeState(state)
			}
		}

		snapshot.Modules[module] = worstOf(snapshot.Modules[module], health)
	}

	return snapshot, nil
}

func isAppService(resourceType string) bool {
	candidate := strings.ToLower(resourceType)
	return candidate == "microsoft.web/sites" || strings.HasPrefix(candidate, "microsoft.web/sites/")
}

func healthFromProvisioningState(state string) Health {
	switch state {
	case "Succeeded":
		return HealthHealthy
	case "Failed", "Canceled":
		return HealthUnhealthy
	case "Creating", "Updating", "Accepted", "Deleting":
		return HealthDegraded
	default:
		return HealthUnknown
	}
}

func healthFromRuntimeState(state string) Health {
	switch state {
	case "Running":
		return HealthHealthy
	case "Stopped":
		return HealthUnhealthy
	default:
		return HealthDegraded
	}
}

// healthRank orders health states from best to worst for aggregation.
var healthRank = map[Health]int{
	HealthHealthy:   0,
	HealthUnknown:   1,
	HealthDegraded:  2,
	HealthUnhealthy: 3,
}

func worstOf(current Health, candidate Health) Health {
	if current == "" {
		return candidate
	}
	if healthRank[candidate] > healthRank[current] {
		return candidate
	}
	return current
}
