// Copyright (c) Mystira. All rights reserved.
// Licensed under the MIT License.

package cmd

import (
	"path/filepath"
	"testing"

	"github.com/mystira/devhub/pkg/config"
	"github.com/stretchr/testify/require"
)

func Test_SlugFromRemote(t *testing.T) {
	tests := []struct {
		name     string
		remote   string
		expected string
	}{
		{"https", "https://github.com/mystira/app.git", "mystira/app"},
		{"https no suffix", "https://github.com/mystira/app", "mystira/app"},
		{"ssh", "git@github.com:mystira/app.git", "mystira/app"},
		{"ssh url form", "ssh://git@github.com/mystira/app", "mystira/app"},
		{"trailing newline", "https://github.com/mystira/app.git\n", "mystira/app"},
		{"other host", "https://gitlab.com/mystira/app.git", ""},
		{"missing repo", "https://github.com/mystira", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, slugFromRemote(tt.remote))
		})
	}
}

func Test_LoadSettings_StartsEmpty(t *testing.T) {
	t.Setenv("DEVHUB_CONFIG_DIR", t.TempDir())

	settings, settingsPath, err := loadSettings()
	require.NoError(t, err)
	require.NotNil(t, settings)
	require.Equal(t, "config.json", filepath.Base(settingsPath))

	_, ok := settings.GetString("github.token")
	require.False(t, ok)
}

func Test_LoadSettings_RoundTrip(t *testing.T) {
	t.Setenv("DEVHUB_CONFIG_DIR", t.TempDir())

	settings, settingsPath, err := loadSettings()
	require.NoError(t, err)

	require.NoError(t, settings.Set("github.token", "ghp_test"))

	fileManager := config.NewFileConfigManager(config.NewManager())
	require.NoError(t, fileManager.Save(settings, settingsPath))

	reloaded, _, err := loadSettings()
	require.NoError(t, err)

	token, ok := reloaded.GetString("github.token")
	require.True(t, ok)
	require.Equal(t, "ghp_test", token)
}
