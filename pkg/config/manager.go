// Copyright (c) Mystira. All rights reserved.
// Licensed under the MIT License.

package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/mystira/devhub/pkg/osutil"
)

const cConfigDir = ".devhub"

// Config Manager provides the ability to load, parse and save devhub configuration files
type manager struct {
}

type Manager interface {
	Save(config Config, writer io.Writer) error
	Load(io.Reader) (Config, error)
}

// Creates a new Configuration Manager
func NewManager() Manager {
	return &manager{}
}

// Saves the devhub configuration to the specified writer
func (c *manager) Save(config Config, writer io.Writer) error {
	configJson, err := json.MarshalIndent(config.Raw(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed marshalling config JSON: %w", err)
	}

	_, err = writer.Write(configJson)
	if err != nil {
		return fmt.Errorf("failed writing configuration data: %w", err)
	}

	return nil
}

// Loads devhub configuration from the specified reader
func (c *manager) Load(reader io.Reader) (Config, error) {
	jsonBytes, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed reading devhub configuration file")
	}

	return Parse(jsonBytes)
}

// Parses devhub configuration JSON and returns a Config instance
func Parse(configJson []byte) (Config, error) {
	var data map[string]any
	err := json.Unmarshal(configJson, &data)
	if err != nil {
		return nil, fmt.Errorf("failed unmarshalling configuration JSON: %w", err)
	}

	return NewConfig(data), nil
}

// GetUserConfigDir returns the config directory for storing user wide configuration data.
//
// The config directory is guaranteed to exist, otherwise an error is returned.
func GetUserConfigDir() (string, error) {
	configDirPath := os.Getenv("DEVHUB_CONFIG_DIR")
	if configDirPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("could not determine current home directory: %w", err)
		}

		configDirPath = filepath.Join(homeDir, cConfigDir)
	}

	err := os.MkdirAll(configDirPath, osutil.PermissionDirectoryOwnerOnly)
	if err != nil {
		return configDirPath, err
	}

	// Ensure that the "x" permission is set on the folder for the current
	// user. OS upgrades and other processes can remove the "x" permission
	if runtime.GOOS == "linux" || runtime.GOOS == "darwin" {
		info, err := os.Stat(configDirPath)
		if err != nil {
			return configDirPath, err
		}

		permissions := info.Mode().Perm()
		if permissions&osutil.PermissionMaskDirectoryExecute == 0 {
			err := os.Chmod(configDirPath, permissions|osutil.PermissionMaskDirectoryExecute)
			return configDirPath, err
		}
	}

	return configDirPath, err
}

// GetUserConfigFilePath returns the path to the user level settings file.
func GetUserConfigFilePath() (string, error) {
	configPath, err := GetUserConfigDir()
	if err != nil {
		return "", fmt.Errorf("getting user config dir: %w", err)
	}

	return filepath.Join(configPath, "config.json"), nil
}
