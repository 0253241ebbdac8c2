// Copyright (c) Mystira. All rights reserved.
// Licensed under the MIT License.

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"path/filepath"
	"strings"

	"github.com/mystira/devhub/internal/bridge"
	"github.com/mystira/devhub/internal/cache"
	"github.com/mystira/devhub/internal/migrate"
	"github.com/mystira/devhub/internal/provisioning"
	"github.com/mystira/devhub/internal/services"
	"github.com/mystira/devhub/internal/workflows"
	"github.com/mystira/devhub/pkg/config"
	"github.com/mystira/devhub/pkg/exec"
	"github.com/mystira/devhub/pkg/infra"
	"github.com/mystira/devhub/pkg/tools"
	"github.com/mystira/devhub/pkg/tools/az"
	"github.com/mystira/devhub/pkg/tools/git"
)

// host is the fully wired application: every backend the bridge and the
// headless commands bind to, built once per invocation.
type host struct {
	components bridge.Components
	engine     *provisioning.Engine
	manager    *services.Manager
	settings   config.Config
}

// newHost wires the application from the root flags. The repository root is
// resolved through git when the working directory is inside a clone, so the
// commands work from any subdirectory.
func newHost(ctx context.Context, flags rootFlagsDefinition) (*host, error) {
	runner := exec.NewCommandRunner(nil)
	gitCli := git.NewGitCli(runner)

	repoRoot, err := filepath.Abs(flags.Cwd)
	if err != nil {
		return nil, fmt.Errorf("resolving working directory: %w", err)
	}

	if root, err := gitCli.GetRepoRoot(ctx, repoRoot); err == nil {
		repoRoot = root
	}

	settings, settingsPath, err := loadSettings()
	if err != nil {
		return nil, err
	}

	manifest, err := services.Load(repoRoot)
	if err != nil {
		return nil, err
	}

	manager := services.NewManager(repoRoot, manifest, runner, settings)
	responseCache := cache.New()

	engine := provisioning.NewEngine(
		az.NewCli(runner),
		infra.NewSession(flags.Environment),
		settings,
		responseCache,
		provisioning.Options{
			RepoRoot:       repoRoot,
			Environment:    flags.Environment,
			SubscriptionId: flags.Subscription,
		},
	)

	var workflowService *workflows.Service
	if slug := repoSlug(ctx, gitCli, settings, repoRoot); slug != "" {
		workflowService, err = workflows.NewService(
			ctx, repoRoot, slug, settings, tools.NewGitHubCli(runner), responseCache)
		if err != nil {
			log.Printf("workflow commands disabled: %v", err)
			workflowService = nil
		}
	} else {
		log.Printf("no GitHub repository detected, workflow commands disabled")
	}

	fileManager := config.NewFileConfigManager(config.NewManager())

	return &host{
		components: bridge.Components{
			RepoRoot:  repoRoot,
			Manager:   manager,
			Engine:    engine,
			Workflows: workflowService,
			Wizard:    migrate.NewWizard(runner),
			Git:       gitCli,
			Settings:  settings,
			SaveSettings: func() error {
				return fileManager.Save(settings, settingsPath)
			},
		},
		engine:   engine,
		manager:  manager,
		settings: settings,
	}, nil
}

// loadSettings reads the user settings file, starting empty when none
// exists yet.
func loadSettings() (config.Config, string, error) {
	settingsPath, err := config.GetUserConfigFilePath()
	if err != nil {
		return nil, "", err
	}

	fileManager := config.NewFileConfigManager(config.NewManager())
	settings, err := fileManager.Load(settingsPath)
	if errors.Is(err, fs.ErrNotExist) {
		return config.NewEmptyConfig(), settingsPath, nil
	}
	if err != nil {
		return nil, "", err
	}

	return settings, settingsPath, nil
}

// repoSlug resolves the owner/repo pair for the workflows panel, the
// settings override wins over the origin remote.
func repoSlug(ctx context.Context, gitCli git.GitCli, settings config.Config, repoRoot string) string {
	if slug, ok := settings.GetString("github.repository"); ok && slug != "" {
		return slug
	}

	remoteUrl, err := gitCli.GetRemoteUrl(ctx, repoRoot, "origin")
	if err != nil {
		return ""
	}

	return slugFromRemote(remoteUrl)
}

// slugFromRemote extracts owner/repo from a GitHub remote URL, both the
// https and the ssh form. Returns "" for remotes hosted elsewhere.
func slugFromRemote(remoteUrl string) string {
	remoteUrl = strings.TrimSpace(remoteUrl)
	remoteUrl = strings.TrimSuffix(remoteUrl, ".git")

	var path string
	switch {
	case strings.HasPrefix(remoteUrl, "git@github.com:"):
		path = strings.TrimPrefix(remoteUrl, "git@github.com:")
	case strings.HasPrefix(remoteUrl, "https://github.com/"):
		path = strings.TrimPrefix(remoteUrl, "https://github.com/")
	case strings.HasPrefix(remoteUrl, "ssh://git@github.com/"):
		path = strings.TrimPrefix(remoteUrl, "ssh://git@github.com/")
	default:
		return ""
	}

	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return ""
	}

	return parts[0] + "/" + parts[1]
}
