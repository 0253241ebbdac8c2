// Copyright (c) Mystira. All rights reserved.
// Licensed under the MIT License.

package provisioning

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mystira/devhub/pkg/config"
	"github.com/mystira/devhub/pkg/infra"
)

func Test_Selection_Roundtrip(t *testing.T) {
	settings := config.NewEmptyConfig()

	selection := TemplateSelection{
		DeployStorage: true,
		DeployCosmos:  true,
		ResourceGroup: "custom-rg",
	}
	require.NoError(t, SaveSelection(settings, "dev", selection))

	loaded := LoadSelection(settings, "dev")
	require.Equal(t, selection, loaded)

	// Other environments keep their own defaults.
	require.Equal(t, DefaultSelection(), LoadSelection(settings, "prod"))
}

func Test_Selection_DefaultWhenAbsent(t *testing.T) {
	require.Equal(t, DefaultSelection(), LoadSelection(config.NewEmptyConfig(), "dev"))
	require.Equal(t, DefaultSelection(), LoadSelection(nil, "dev"))
}

func Test_Selection_DefaultWhenMalformed(t *testing.T) {
	settings := config.NewEmptyConfig()
	require.NoError(t, settings.Set("infra.dev.selection", "not a map"))

	require.Equal(t, DefaultSelection(), LoadSelection(settings, "dev"))
}

func Test_Selection_Modules(t *testing.T) {
	full := DefaultSelection().Modules()
	require.True(t, full[infra.ModuleStorage])
	require.True(t, full[infra.ModuleDatabase])
	require.True(t, full[infra.ModuleCompute])

	partial := TemplateSelection{DeployAppService: true}.Modules()
	require.False(t, partial[infra.ModuleStorage])
	require.True(t, partial[infra.ModuleCompute])

	// The partial selection violates the compute dependency rule.
	require.Error(t, infra.ValidateDependencies(partial))
	require.NoError(t, infra.ValidateDependencies(full))
}

func Test_Engine_SetSelectionResetsSession(t *testing.T) {
	settings := config.NewEmptyConfig()
	session := infra.NewSession("dev")
	engine := NewEngine(nil, session, settings, nil, Options{Environment: "dev"})

	session.CompleteValidate()
	require.Equal(t, infra.PhaseValidated, session.Phase())

	selection := DefaultSelection()
	selection.DeployAppService = false
	require.NoError(t, engine.SetSelection(selection))

	require.Equal(t, infra.PhaseUnvalidated, session.Phase())
	require.Equal(t, selection, engine.Selection())
}

func Test_Engine_ResourceGroupOverride(t *testing.T) {
	settings := config.NewEmptyConfig()
	engine := NewEngine(nil, infra.NewSession("dev"), settings, nil, Options{Environment: "dev"})

	require.Equal(t, "dev-san-rg-mystira-app", engine.ResourceGroup())

	selection := DefaultSelection()
	selection.ResourceGroup = "shared-sandbox-rg"
	require.NoError(t, engine.SetSelection(selection))

	require.Equal(t, "shared-sandbox-rg", engine.ResourceGroup())
}
