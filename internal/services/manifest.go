// Copyright (c) Mystira. All rights reserved.
// Licensed under the MIT License.

// Package services manages the local dev service processes: building,
// starting, stopping and health checking the microservices the control panel
// fronts.
package services

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/braydonk/yaml"
	"github.com/joho/godotenv"
)

// ManifestFileName is looked up at the repository root.
const ManifestFileName = "devhub.yaml"

// ServiceConfig describes one managed service.
type ServiceConfig struct {
	Name string `yaml:"name"`
	// Path is the project directory, relative to the repository root.
	Path string `yaml:"path"`
	Port int    `yaml:"port"`
	// Url is the address opened in the panel's webview proxy, also used for
	// health checks.
	Url string `yaml:"url"`
	// Build and Run are argv style command lines.
	Build []string `yaml:"build"`
	Run   []string `yaml:"run"`
	// EnvFile is an optional dotenv file loaded into the process
	// environment, relative to the project directory.
	EnvFile string `yaml:"envFile,omitempty"`
}

// Manifest is the devhub.yaml document.
type Manifest struct {
	Services []ServiceConfig `yaml:"services"`
}

// Get returns the named service config.
func (m *Manifest) Get(name string) (ServiceConfig, bool) {
	for _, svc := range m.Services {
		if svc.Name == name {
			return svc, true
		}
	}

	return ServiceConfig{}, false
}

// Load reads the manifest from the repository root, falling back to the
// default service set when no devhub.yaml exists.
func Load(repoRoot string) (*Manifest, error) {
	manifestPath := filepath.Join(repoRoot, ManifestFileName)
	contents, err := os.ReadFile(manifestPath)
	if os.IsNotExist(err) {
		return DefaultManifest(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", manifestPath, err)
	}

	return Parse(contents)
}

// Parse unmarshals manifest YAML, validating the minimum per-service fields.
func Parse(contents []byte) (*Manifest, error) {
	var manifest Manifest
	if err := yaml.Unmarshal(contents, &manifest); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}

	for i, svc := range manifest.Services {
		if svc.Name == "" {
			return nil, fmt.Errorf("service #%d has no name", i+1)
		}
		if len(svc.Run) == 0 {
			return nil, fmt.Errorf("service %s has no run command", svc.Name)
		}
	}

	return &manifest, nil
}

// DefaultManifest matches the well known Mystira service layout.
func DefaultManifest() *Manifest {
	return &Manifest{
		Services: []ServiceConfig{
			{
				Name:  "api",
				Path:  filepath.Join("src", "Mystira.App.Api"),
				Port:  7096,
				Url:   "https://localhost:7096/swagger",
				Build: []string{"dotnet", "build"},
				Run:   []string{"dotnet", "run"},
			},
			{
				Name:  "admin-api",
				Path:  filepath.Join("src", "Mystira.App.Admin.Api"),
				Port:  7097,
				Url:   "https://localhost:7097/swagger",
				Build: []string{"dotnet", "build"},
				Run:   []string{"dotnet", "run"},
			},
			{
				Name:  "pwa",
				Path:  filepath.Join("src", "Mystira.App.PWA"),
				Port:  7000,
				Url:   "http://localhost:7000",
				Build: []string{"dotnet", "build"},
				Run:   []string{"dotnet", "run"},
			},
		},
	}
}

// environment loads the service's dotenv file, returning KEY=VALUE pairs for
// the process environment. A missing env file is not an error.
func environment(projectDir string, svc ServiceConfig) ([]string, error) {
	if svc.EnvFile == "" {
		return nil, nil
	}

	envPath := filepath.Join(projectDir, svc.EnvFile)
	if _, err := os.Stat(envPath); os.IsNotExist(err) {
		return nil, nil
	}

	values, err := godotenv.Read(envPath)
	if err != nil {
		return nil, fmt.Errorf("reading env file %s: %w", envPath, err)
	}

	env := make([]string, 0, len(values))
	for key, value := range values {
		env = append(env, fmt.Sprintf("%s=%s", key, value))
	}

	return env, nil
}
