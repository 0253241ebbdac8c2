// Copyright (c) Mystira. All rights reserved.
// Licensed under the MIT License.

package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/mystira/devhub/pkg/osutil"
)

// FileConfigManager provides the ability to load, parse and save devhub configuration files
type FileConfigManager interface {
	// Saves the devhub configuration to the specified file path
	// Path is automatically created if it does not exist
	Save(config Config, filePath string) error

	// Loads devhub configuration from the specified file path
	Load(filePath string) (Config, error)
}

// NewFileConfigManager creates a new FileConfigManager instance
func NewFileConfigManager(configManager Manager) FileConfigManager {
	return &fileConfigManager{
		manager: configManager,
	}
}

type fileConfigManager struct {
	manager Manager
}

func (m *fileConfigManager) Load(filePath string) (Config, error) {
	lock := flock.New(lockPath(filePath))
	if err := lock.RLock(); err != nil {
		return nil, fmt.Errorf("failed locking configuration file: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed opening devhub configuration file: %w", err)
	}

	defer file.Close()

	cfg, err := m.manager.Load(file)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func (m *fileConfigManager) Save(c Config, filePath string) error {
	folderPath := filepath.Dir(filePath)
	if err := os.MkdirAll(folderPath, osutil.PermissionDirectory); err != nil {
		return fmt.Errorf("failed creating config directory: %w", err)
	}

	lock := flock.New(lockPath(filePath))
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed locking configuration file: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	file, err := os.OpenFile(filePath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, osutil.PermissionFile)
	if err != nil {
		return fmt.Errorf("failed creating config file: %w", err)
	}
	defer file.Close()

	err = m.manager.Save(c, file)
	if err != nil {
		return err
	}

	return nil
}

// lockPath returns the advisory lock file path used to serialize access to
// filePath across devhub processes.
func lockPath(filePath string) string {
	return filePath + ".lock"
}
