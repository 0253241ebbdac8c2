// Copyright (c) Mystira. All rights reserved.
// Licensed under the MIT License.

// Package az wraps the Azure CLI. All cloud access goes through the CLI's
// own session, devhub never holds credentials itself.
package az

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/blang/semver/v4"
	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"

	"github.com/mystira/devhub/pkg/exec"
	"github.com/mystira/devhub/pkg/tools"
)

// Azure answers at most this many CLI driven requests per minute before
// throttling, stay under it.
const requestsPerMinute = 30

const maxRetries = 3

// Cli is a wrapper around the Azure CLI. Calls are rate limited and
// transient failures are retried with exponential backoff.
type Cli struct {
	runner  exec.CommandRunner
	limiter *rate.Limiter
}

// NewCli creates a new Azure CLI wrapper using the provided command runner.
func NewCli(commandRunner exec.CommandRunner) *Cli {
	return &Cli{
		runner:  commandRunner,
		limiter: rate.NewLimiter(rate.Every(time.Minute/requestsPerMinute), requestsPerMinute),
	}
}

func (cli *Cli) Name() string {
	return "Azure CLI"
}

func (cli *Cli) InstallUrl() string {
	return "https://aka.ms/azure-dev/azure-cli-install"
}

func (cli *Cli) CheckInstalled(_ context.Context) (bool, error) {
	return tools.ToolInPath("az")
}

// Version returns the installed azure-cli version.
func (cli *Cli) Version(ctx context.Context) (semver.Version, error) {
	result, err := cli.run(ctx, exec.NewRunArgs("az", "version", "--output", "json"))
	if err != nil {
		return semver.Version{}, fmt.Errorf("failed running az version: %w", err)
	}

	var versions struct {
		AzureCli string `json:"azure-cli"`
	}
	if err := json.Unmarshal([]byte(result.Stdout), &versions); err != nil {
		return semver.Version{}, fmt.Errorf("could not unmarshal az version output: %w", err)
	}

	return tools.ExtractVersion(versions.AzureCli)
}

// Account holds the subset of `az account show` output devhub displays.
type Account struct {
	Id       string `json:"id"`
	Name     string `json:"name"`
	TenantId string `json:"tenantId"`
	User     struct {
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"user"`
}

// Account retrieves the current Azure account, erroring when the CLI session
// is not authenticated.
func (cli *Cli) Account(ctx context.Context) (Account, error) {
	result, err := cli.run(ctx, exec.NewRunArgs("az", "account", "show", "--output", "json"))
	if err != nil {
		if strings.Contains(result.Stderr, "az login") {
			return Account{}, fmt.Errorf("az is not authenticated, run 'az login' first")
		}
		return Account{}, fmt.Errorf("failed running az account show: %w", err)
	}

	var account Account
	if err := json.Unmarshal([]byte(result.Stdout), &account); err != nil {
		return Account{}, fmt.Errorf("could not unmarshal az account output: %w", err)
	}

	return account, nil
}

// SetSubscription switches the CLI session to the given subscription.
func (cli *Cli) SetSubscription(ctx context.Context, subscriptionId string) error {
	_, err := cli.run(ctx, exec.NewRunArgs("az", "account", "set", "--subscription", subscriptionId))
	if err != nil {
		return fmt.Errorf("failed setting subscription %s: %w", subscriptionId, err)
	}

	return nil
}

// GroupExists reports whether the resource group exists.
func (cli *Cli) GroupExists(ctx context.Context, name string) (bool, error) {
	result, err := cli.run(ctx, exec.NewRunArgs("az", "group", "exists", "--name", name))
	if err != nil {
		return false, fmt.Errorf("failed checking resource group %s: %w", name, err)
	}

	return strings.TrimSpace(result.Stdout) == "true", nil
}

// EnsureGroup creates the resource group when it does not exist yet.
func (cli *Cli) EnsureGroup(ctx context.Context, name string, location string) error {
	exists, err := cli.GroupExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	_, err = cli.run(ctx, exec.NewRunArgs(
		"az", "group", "create",
		"--name", name,
		"--location", location,
		"--output", "none"))
	if err != nil {
		return fmt.Errorf("failed creating resource group %s: %w", name, err)
	}

	return nil
}

// DeleteGroup deletes the resource group and everything in it. The CLI call
// waits for completion.
func (cli *Cli) DeleteGroup(ctx context.Context, name string) error {
	_, err := cli.run(ctx, exec.NewRunArgs("az", "group", "delete", "--name", name, "--yes"))
	if err != nil {
		return fmt.Errorf("failed deleting resource group %s: %w", name, err)
	}

	return nil
}

// DeploymentArgs identifies one deployment group operation.
type DeploymentArgs struct {
	ResourceGroup  string
	TemplateFile   string
	ParametersFile string
	// Cwd is the deployment template directory the CLI runs in.
	Cwd string
	// Name is only used by Deploy.
	Name string
}

// DeploymentResult carries the raw CLI output. Stdout is the operation's
// JSON payload, Stderr holds warnings and errors for triage.
type DeploymentResult struct {
	Stdout string
	Stderr string
}

// ValidateDeployment runs `az deployment group validate`.
func (cli *Cli) ValidateDeployment(ctx context.Context, args DeploymentArgs) (DeploymentResult, error) {
	return cli.deploymentGroup(ctx, "validate", args, nil)
}

// WhatIf runs `az deployment group what-if`, the dry-run diff of planned
// changes.
func (cli *Cli) WhatIf(ctx context.Context, args DeploymentArgs) (DeploymentResult, error) {
	return cli.deploymentGroup(ctx, "what-if", args, []string{"--no-pretty-print"})
}

// Deploy runs `az deployment group create` in Incremental mode.
func (cli *Cli) Deploy(ctx context.Context, args DeploymentArgs) (DeploymentResult, error) {
	return cli.deploymentGroup(ctx, "create", args, []string{"--mode", "Incremental", "--name", args.Name})
}

func (cli *Cli) deploymentGroup(
	ctx context.Context,
	operation string,
	args DeploymentArgs,
	extraArgs []string,
) (DeploymentResult, error) {
	runArgs := exec.NewRunArgs(
		"az", "deployment", "group", operation,
		"--resource-group", args.ResourceGroup,
		"--template-file", args.TemplateFile,
		"--parameters", "@"+args.ParametersFile,
		"--output", "json").
		AppendParams(extraArgs...).
		WithCwd(args.Cwd)

	result, err := cli.run(ctx, runArgs)
	return DeploymentResult{Stdout: result.Stdout, Stderr: result.Stderr}, err
}

// Resource is one entry from `az resource list`.
type Resource struct {
	Id            string `json:"id"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	Location      string `json:"location"`
	ResourceGroup string `json:"resourceGroup"`
	Properties    struct {
		ProvisioningState string `json:"provisioningState"`
	} `json:"properties"`
}

// ListResources lists all resources of the resource group, including
// provisioning state.
func (cli *Cli) ListResources(ctx context.Context, resourceGroup string) ([]Resource, error) {
	result, err := cli.run(ctx, exec.NewRunArgs(
		"az", "resource", "list",
		"--resource-group", resourceGroup,
		"--expand", "properties",
		"--output", "json"))
	if err != nil {
		return nil, fmt.Errorf("failed listing resources in %s: %w", resourceGroup, err)
	}

	var resources []Resource
	if err := json.Unmarshal([]byte(result.Stdout), &resources); err != nil {
		return nil, fmt.Errorf("could not unmarshal az resource list output: %w", err)
	}

	return resources, nil
}

// DeleteResource deletes one resource by fully qualified id.
func (cli *Cli) DeleteResource(ctx context.Context, resourceId string) error {
	_, err := cli.run(ctx, exec.NewRunArgs("az", "resource", "delete", "--ids", resourceId))
	if err != nil {
		return fmt.Errorf("failed deleting resource %s: %w", resourceId, err)
	}

	return nil
}

// AppServiceState returns the runtime state (Running/Stopped/Starting) of a
// web app, which overrides the provisioning state in health reporting.
func (cli *Cli) AppServiceState(ctx context.Context, resourceGroup string, name string) (string, error) {
	result, err := cli.run(ctx, exec.NewRunArgs(
		"az", "webapp", "show",
		"--resource-group", resourceGroup,
		"--name", name,
		"--query", "state",
		"--output", "tsv"))
	if err != nil {
		return "", fmt.Errorf("failed reading app service state for %s: %w", name, err)
	}

	return strings.TrimSpace(result.Stdout), nil
}

// run executes one CLI invocation under the shared rate limit, retrying
// transient failures.
func (cli *Cli) run(ctx context.Context, args exec.RunArgs) (exec.RunResult, error) {
	var result exec.RunResult

	backoff := retry.WithMaxRetries(maxRetries, retry.NewExponential(100*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := cli.limiter.Wait(ctx); err != nil {
			return err
		}

		res, err := cli.runner.Run(ctx, args)
		result = res
		if err != nil && tools.IsTransient(res.Stderr) {
			return retry.RetryableError(err)
		}

		return err
	})

	return result, err
}
