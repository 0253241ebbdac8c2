// Copyright (c) Mystira. All rights reserved.
// Licensed under the MIT License.

package bridge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cli/browser"

	"github.com/mystira/devhub/internal/migrate"
	"github.com/mystira/devhub/internal/provisioning"
	"github.com/mystira/devhub/internal/services"
	"github.com/mystira/devhub/internal/workflows"
	"github.com/mystira/devhub/pkg/config"
	"github.com/mystira/devhub/pkg/tools/git"
)

// Components are the backends the command registry binds to. Nil entries
// leave their command group unregistered.
type Components struct {
	RepoRoot string

	Manager   *services.Manager
	Engine    *provisioning.Engine
	Workflows *workflows.Service
	Wizard    *migrate.Wizard
	Git       git.GitCli

	Settings config.Config

	// SaveSettings persists Settings after a settings.set.
	SaveSettings func() error
}

// RegisterAll binds every command the shell consumes.
func RegisterAll(d *Dispatcher, c Components) {
	if c.Manager != nil {
		registerServiceCommands(d, c.Manager)
	}
	if c.Engine != nil {
		registerInfraCommands(d, c.Engine)
	}
	if c.Workflows != nil {
		registerWorkflowCommands(d, c.Workflows)
	}
	if c.Wizard != nil {
		registerMigrationCommands(d, c.Wizard)
	}
	if c.Git != nil {
		registerRepoCommands(d, c.Git, c.RepoRoot)
	}
	if c.Settings != nil {
		registerSettingsCommands(d, c.Settings, c.SaveSettings)
	}

	registerUtilityCommands(d, c.RepoRoot)
}

func registerServiceCommands(d *Dispatcher, manager *services.Manager) {
	d.Register("service.status", func(ctx context.Context, args Args) (any, error) {
		return manager.Statuses(), nil
	})

	d.Register("service.start", func(ctx context.Context, args Args) (any, error) {
		name, err := args.RequireString("name")
		if err != nil {
			return nil, err
		}
		return manager.Start(ctx, name)
	})

	d.Register("service.stop", func(ctx context.Context, args Args) (any, error) {
		name, err := args.RequireString("name")
		if err != nil {
			return nil, err
		}
		return nil, manager.Stop(ctx, name)
	})

	d.Register("service.build", func(ctx context.Context, args Args) (any, error) {
		name, err := args.RequireString("name")
		if err != nil {
			return nil, err
		}
		return nil, manager.Build(ctx, name)
	})

	d.Register("service.start-all", func(ctx context.Context, args Args) (any, error) {
		return nil, manager.StartAll(ctx)
	})

	d.Register("service.stop-all", func(ctx context.Context, args Args) (any, error) {
		return nil, manager.StopAll(ctx)
	})

	d.Register("service.health", func(ctx context.Context, args Args) (any, error) {
		url, err := args.RequireString("url")
		if err != nil {
			return nil, err
		}
		return map[string]any{"url": url, "healthy": services.CheckHealth(ctx, url)}, nil
	})

	d.Register("port.check", func(ctx context.Context, args Args) (any, error) {
		port := args.Int("port")
		if port <= 0 {
			return nil, fmt.Errorf("missing required argument %q", "port")
		}
		return map[string]any{"port": port, "available": services.CheckPortAvailable(port)}, nil
	})

	d.Register("port.find", func(ctx context.Context, args Args) (any, error) {
		start := args.Int("startPort")
		if start <= 0 {
			return nil, fmt.Errorf("missing required argument %q", "startPort")
		}
		port, err := services.FindAvailablePort(start)
		if err != nil {
			return nil, err
		}
		return map[string]any{"port": port}, nil
	})
}

func registerInfraCommands(d *Dispatcher, engine *provisioning.Engine) {
	d.Register("infra.validate", func(ctx context.Context, args Args) (any, error) {
		return engine.Validate(ctx)
	})

	d.Register("infra.preview", func(ctx context.Context, args Args) (any, error) {
		return engine.Preview(ctx)
	})

	d.Register("infra.deploy", func(ctx context.Context, args Args) (any, error) {
		return engine.Deploy(ctx)
	})

	d.Register("infra.destroy", func(ctx context.Context, args Args) (any, error) {
		return nil, engine.Destroy(ctx, args.String("confirmation"))
	})

	d.Register("infra.status", func(ctx context.Context, args Args) (any, error) {
		return engine.Status(ctx)
	})

	d.Register("infra.resources", func(ctx context.Context, args Args) (any, error) {
		return engine.Resources(ctx)
	})

	d.Register("infra.delete-resource", func(ctx context.Context, args Args) (any, error) {
		id, err := args.RequireString("resourceId")
		if err != nil {
			return nil, err
		}
		retryPreview, err := engine.DeleteResource(ctx, id)
		if err != nil {
			return nil, err
		}
		return map[string]any{"retryPreview": retryPreview}, nil
	})

	d.Register("infra.selection", func(ctx context.Context, args Args) (any, error) {
		return engine.Selection(), nil
	})

	d.Register("infra.set-selection", func(ctx context.Context, args Args) (any, error) {
		selection := provisioning.TemplateSelection{
			DeployStorage:    args.Bool("deployStorage"),
			DeployCosmos:     args.Bool("deployCosmos"),
			DeployAppService: args.Bool("deployAppService"),
			ResourceGroup:    args.String("resourceGroup"),
		}
		return nil, engine.SetSelection(selection)
	})
}

func registerWorkflowCommands(d *Dispatcher, service *workflows.Service) {
	d.Register("workflow.list", func(ctx context.Context, args Args) (any, error) {
		return service.ListWorkflowFiles(ctx, args.String("environment"))
	})

	d.Register("workflow.dispatch", func(ctx context.Context, args Args) (any, error) {
		file, err := args.RequireString("workflowFile")
		if err != nil {
			return nil, err
		}
		ref := args.String("ref")
		if ref == "" {
			ref = "main"
		}
		return nil, service.Dispatch(ctx, file, ref, args.StringMap("inputs"))
	})

	d.Register("workflow.status", func(ctx context.Context, args Args) (any, error) {
		runId := args.Int64("runId")
		if runId == 0 {
			return nil, fmt.Errorf("missing required argument %q", "runId")
		}
		return service.RunStatus(ctx, runId)
	})

	d.Register("workflow.logs", func(ctx context.Context, args Args) (any, error) {
		runId := args.Int64("runId")
		if runId == 0 {
			return nil, fmt.Errorf("missing required argument %q", "runId")
		}
		return service.RunLogs(ctx, runId)
	})

	d.Register("workflow.history", func(ctx context.Context, args Args) (any, error) {
		file, err := args.RequireString("workflowFile")
		if err != nil {
			return nil, err
		}
		return service.History(ctx, file, args.Int("limit"))
	})
}

func registerMigrationCommands(d *Dispatcher, wizard *migrate.Wizard) {
	d.Register("migration.run", func(ctx context.Context, args Args) (any, error) {
		spec := migrationSpec(args)
		return wizard.Run(ctx, spec)
	})

	d.Register("cosmos.export", func(ctx context.Context, args Args) (any, error) {
		outputPath, err := args.RequireString("outputPath")
		if err != nil {
			return nil, err
		}
		count, err := wizard.Export(ctx, migrationSpec(args), outputPath)
		if err != nil {
			return nil, err
		}
		return map[string]any{"exported": count, "path": outputPath}, nil
	})

	d.Register("cosmos.stats", func(ctx context.Context, args Args) (any, error) {
		connection, err := args.RequireString("sourceCosmosConnection")
		if err != nil {
			return nil, err
		}
		var containers []string
		if raw, ok := args["containers"].([]any); ok {
			for _, name := range raw {
				if str, ok := name.(string); ok {
					containers = append(containers, str)
				}
			}
		}
		return wizard.CosmosStats(ctx, connection, args.String("databaseName"), containers)
	})
}

func migrationSpec(args Args) migrate.Spec {
	return migrate.Spec{
		Kind:                    args.String("type"),
		SourceCosmosConnection:  args.String("sourceCosmosConnection"),
		DestCosmosConnection:    args.String("destCosmosConnection"),
		SourceStorageConnection: args.String("sourceStorageConnection"),
		DestStorageConnection:   args.String("destStorageConnection"),
		DatabaseName:            args.String("databaseName"),
		ContainerName:           args.String("containerName"),
		PartitionKey:            args.String("partitionKey"),
		Overwrite:               args.Bool("overwrite"),
		Confirmation:            args.String("confirmation"),
	}
}

func registerRepoCommands(d *Dispatcher, gitCli git.GitCli, repoRoot string) {
	d.Register("repo.root", func(ctx context.Context, args Args) (any, error) {
		return gitCli.GetRepoRoot(ctx, repoRoot)
	})

	d.Register("repo.branch", func(ctx context.Context, args Args) (any, error) {
		return gitCli.GetCurrentBranch(ctx, repoRoot)
	})

	d.Register("repo.status", func(ctx context.Context, args Args) (any, error) {
		return gitCli.Status(ctx, repoRoot)
	})
}

func registerSettingsCommands(d *Dispatcher, settings config.Config, save func() error) {
	d.Register("settings.get", func(ctx context.Context, args Args) (any, error) {
		path, err := args.RequireString("path")
		if err != nil {
			return nil, err
		}
		value, ok := settings.Get(path)
		if !ok {
			return nil, nil
		}
		return value, nil
	})

	d.Register("settings.set", func(ctx context.Context, args Args) (any, error) {
		path, err := args.RequireString("path")
		if err != nil {
			return nil, err
		}
		if err := settings.Set(path, args["value"]); err != nil {
			return nil, err
		}
		if save != nil {
			if err := save(); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
}

func registerUtilityCommands(d *Dispatcher, repoRoot string) {
	d.Register("template.read", func(ctx context.Context, args Args) (any, error) {
		path, err := args.RequireString("path")
		if err != nil {
			return nil, err
		}

		// Template display is read-only and stays inside the repository.
		resolved := filepath.Join(repoRoot, filepath.Clean(path))
		if !strings.HasPrefix(resolved, filepath.Clean(repoRoot)+string(filepath.Separator)) {
			return nil, fmt.Errorf("path %s is outside the repository", path)
		}

		content, err := os.ReadFile(resolved)
		if err != nil {
			return nil, fmt.Errorf("failed reading %s: %w", path, err)
		}
		return string(content), nil
	})

	d.Register("browser.open", func(ctx context.Context, args Args) (any, error) {
		url, err := args.RequireString("url")
		if err != nil {
			return nil, err
		}
		if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			return nil, fmt.Errorf("refusing to open non http(s) url %s", url)
		}
		return nil, browser.OpenURL(url)
	})
}
