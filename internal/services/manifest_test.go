// Copyright (c) Mystira. All rights reserved.
// Licensed under the MIT License.

package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_ParseManifest(t *testing.T) {
	contents := []byte(`
services:
  - name: api
    path: src/Api
    port: 7096
    url: https://localhost:7096/swagger
    build: [dotnet, build]
    run: [dotnet, run]
    envFile: .env.local
  - name: worker
    path: src/Worker
    run: [go, run, ./cmd/worker]
`)

	manifest, err := Parse(contents)
	require.NoError(t, err)
	require.Len(t, manifest.Services, 2)

	api, ok := manifest.Get("api")
	require.True(t, ok)
	require.Equal(t, 7096, api.Port)
	require.Equal(t, []string{"dotnet", "build"}, api.Build)
	require.Equal(t, ".env.local", api.EnvFile)

	_, ok = manifest.Get("missing")
	require.False(t, ok)
}

func Test_ParseManifest_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		contents string
	}{
		{"missing name", "services:\n  - path: src/Api\n    run: [dotnet, run]\n"},
		{"missing run", "services:\n  - name: api\n    path: src/Api\n"},
		{"not yaml", "{{{"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.contents))
			require.Error(t, err)
		})
	}
}

func Test_LoadManifest_DefaultsWhenAbsent(t *testing.T) {
	manifest, err := Load(t.TempDir())
	require.NoError(t, err)
	require.Len(t, manifest.Services, 3)

	api, ok := manifest.Get("api")
	require.True(t, ok)
	require.Equal(t, 7096, api.Port)

	pwa, ok := manifest.Get("pwa")
	require.True(t, ok)
	require.Equal(t, 7000, pwa.Port)
}

func Test_LoadManifest_FromFile(t *testing.T) {
	root := t.TempDir()
	contents := "services:\n  - name: api\n    path: src/Api\n    run: [dotnet, run]\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, ManifestFileName), []byte(contents), 0o644))

	manifest, err := Load(root)
	require.NoError(t, err)
	require.Len(t, manifest.Services, 1)
}

func Test_Environment(t *testing.T) {
	projectDir := t.TempDir()
	envFile := filepath.Join(projectDir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("ASPNETCORE_ENVIRONMENT=Development\nDB_NAME=mystira\n"), 0o644))

	env, err := environment(projectDir, ServiceConfig{Name: "api", EnvFile: ".env"})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"ASPNETCORE_ENVIRONMENT=Development", "DB_NAME=mystira"}, env)
}

func Test_Environment_MissingFile(t *testing.T) {
	env, err := environment(t.TempDir(), ServiceConfig{Name: "api", EnvFile: ".env"})
	require.NoError(t, err)
	require.Nil(t, env)
}
