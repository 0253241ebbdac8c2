// Copyright (c) Mystira. All rights reserved.
// Licensed under the MIT License.

package provisioning

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/benbjohnson/clock"

	"github.com/mystira/devhub/internal/cache"
	"github.com/mystira/devhub/pkg/config"
	"github.com/mystira/devhub/pkg/infra"
	"github.com/mystira/devhub/pkg/tools/az"
)

// DestroyConfirmation is the exact text a user must type before a destroy is
// issued.
const DestroyConfirmation = "DELETE"

// ErrConfirmationRequired is returned when a destroy request does not carry
// the typed confirmation text.
var ErrConfirmationRequired = fmt.Errorf(
	"destroying infrastructure requires typing %s to confirm", DestroyConfirmation)

const defaultLocation = "westeurope"

// Options configures an engine for one repository and environment.
type Options struct {
	RepoRoot    string
	Environment string

	// Location for the resource group, defaults to westeurope.
	Location string

	// SubscriptionId switches the CLI session before any call when set.
	SubscriptionId string

	Clock clock.Clock
}

// Engine runs the infrastructure lifecycle for one environment. All cloud
// access goes through the Azure CLI wrapper and every mutating operation is
// gated by the readiness session.
type Engine struct {
	az       *az.Cli
	session  *infra.Session
	settings config.Config
	cache    *cache.Cache
	clk      clock.Clock

	repoRoot       string
	environment    string
	location       string
	subscriptionId string
}

// NewEngine creates an engine over the CLI wrapper and readiness session.
func NewEngine(
	azCli *az.Cli,
	session *infra.Session,
	settings config.Config,
	resourceCache *cache.Cache,
	opts Options,
) *Engine {
	location := opts.Location
	if location == "" {
		location = defaultLocation
	}

	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}

	return &Engine{
		az:             azCli,
		session:        session,
		settings:       settings,
		cache:          resourceCache,
		clk:            clk,
		repoRoot:       opts.RepoRoot,
		environment:    opts.Environment,
		location:       location,
		subscriptionId: opts.SubscriptionId,
	}
}

// Session exposes the readiness session for callers that gate or reset
// planning state directly.
func (e *Engine) Session() *infra.Session {
	return e.session
}

// Selection returns the persisted template selection for the environment.
func (e *Engine) Selection() TemplateSelection {
	return LoadSelection(e.settings, e.environment)
}

// SetSelection persists the selection and resets the readiness session. A
// changed selection invalidates any validation or preview done against the
// previous one.
func (e *Engine) SetSelection(selection TemplateSelection) error {
	if err := SaveSelection(e.settings, e.environment, selection); err != nil {
		return fmt.Errorf("failed saving template selection: %w", err)
	}

	e.session.Reset()
	return nil
}

// ResourceGroup resolves the target resource group: the selection's override
// when present, the environment naming convention otherwise.
func (e *Engine) ResourceGroup() string {
	if override := e.Selection().ResourceGroup; override != "" {
		return override
	}

	return fmt.Sprintf("%s-san-rg-mystira-app", e.environment)
}

// DeploymentDir is the environment's deployment template directory.
func (e *Engine) DeploymentDir() string {
	return filepath.Join(
		e.repoRoot, "src", "Mystira.App.Infrastructure.Azure", "Deployment", e.environment)
}

// ValidateResult reports a successful template validation.
type ValidateResult struct {
	// Warnings holds stderr output and template diagnostics. Non-blocking.
	Warnings []string
}

// Validate runs template validation and, on success, moves the session to
// Validated.
func (e *Engine) Validate(ctx context.Context) (*ValidateResult, error) {
	if err := e.preflight(ctx); err != nil {
		return nil, err
	}

	paramsFile, cleanup, err := e.writeParametersFile("validate")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	result, err := e.az.ValidateDeployment(ctx, e.deploymentArgs(paramsFile, ""))
	if err != nil {
		return nil, fmt.Errorf("validation failed: %s", failureText(result, err))
	}

	warnings := diagnosticMessages([]byte(result.Stdout))
	if stderr := strings.TrimSpace(result.Stderr); stderr != "" {
		warnings = append([]string{stderr}, warnings...)
	}

	e.session.CompleteValidate()

	return &ValidateResult{Warnings: warnings}, nil
}

// PreviewResult reports a completed what-if analysis.
type PreviewResult struct {
	Changes []infra.ResourceChange

	// Failure is set when the analysis produced a recoverable finding, a
	// benign nested resource warning or a naming collision. The readiness
	// session records it.
	Failure *infra.Failure
}

// Preview runs what-if analysis, normalizes the diff into the canonical
// change list, and records the outcome on the session. Benign nested
// resource noise and naming collisions are recoverable findings, everything
// else fails the preview outright.
func (e *Engine) Preview(ctx context.Context) (*PreviewResult, error) {
	if err := e.session.EnsureCanPreview(); err != nil {
		return nil, err
	}

	if err := e.preflight(ctx); err != nil {
		return nil, err
	}

	paramsFile, cleanup, err := e.writeParametersFile("preview")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	result, err := e.az.WhatIf(ctx, e.deploymentArgs(paramsFile, ""))
	failure := infra.ClassifyFailure(result.Stderr)

	if err != nil {
		switch failure.Kind {
		case infra.FailureBenignDiffNoise, infra.FailureNamingCollision:
			// The readiness session records these below.
		default:
			return nil, fmt.Errorf("what-if analysis failed: %s", failureText(result, err))
		}
	}

	normalizer := infra.Normalizer{DefaultResourceGroup: e.ResourceGroup()}
	changes := normalizer.Normalize([]byte(result.Stdout))

	e.session.CompletePreview(changes, failure)

	preview := &PreviewResult{Changes: changes}
	if failure.Kind != infra.FailureNone {
		preview.Failure = &failure
	}

	return preview, nil
}

// DeployResult reports a completed deployment.
type DeployResult struct {
	Name          string
	ResourceGroup string
	Output        string
}

// Deploy runs the deployment after the full readiness chain passes. The CLI
// always runs in Incremental mode, a deployment never deletes resources it
// does not mention.
func (e *Engine) Deploy(ctx context.Context) (*DeployResult, error) {
	if err := infra.ValidateDependencies(e.Selection().Modules()); err != nil {
		return nil, err
	}

	if err := e.session.EnsureCanDeploy(); err != nil {
		return nil, err
	}

	if err := e.preflight(ctx); err != nil {
		return nil, err
	}

	paramsFile, cleanup, err := e.writeParametersFile("deploy")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	name := fmt.Sprintf("mystira-app-%s-%d", e.environment, e.clk.Now().Unix())

	result, err := e.az.Deploy(ctx, e.deploymentArgs(paramsFile, name))
	if err != nil {
		return nil, fmt.Errorf("deployment %s failed: %s", name, failureText(result, err))
	}

	e.invalidateResources()
	e.session.CompleteDeploy()

	return &DeployResult{
		Name:          name,
		ResourceGroup: e.ResourceGroup(),
		Output:        result.Stdout,
	}, nil
}

// Destroy deletes the environment's resource group and everything in it.
// The caller must pass the typed confirmation text verbatim, anything else
// refuses before any CLI call is issued.
func (e *Engine) Destroy(ctx context.Context, confirmation string) error {
	if confirmation != DestroyConfirmation {
		return ErrConfirmationRequired
	}

	if err := e.preflightAuth(ctx); err != nil {
		return err
	}

	if err := e.az.DeleteGroup(ctx, e.ResourceGroup()); err != nil {
		return err
	}

	e.invalidateResources()
	e.session.CompleteDeploy()

	return nil
}

// Resources lists the environment's resources, served from the TTL cache
// when fresh.
func (e *Engine) Resources(ctx context.Context) ([]az.Resource, error) {
	key := e.resourcesCacheKey()

	if e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			var resources []az.Resource
			if err := json.Unmarshal([]byte(cached), &resources); err == nil {
				return resources, nil
			}
			e.cache.Invalidate(key)
		}
	}

	resources, err := e.az.ListResources(ctx, e.ResourceGroup())
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		if encoded, err := json.Marshal(resources); err == nil {
			e.cache.Set(key, string(encoded), cache.AzureResourcesTTL)
		}
	}

	return resources, nil
}

// DeleteResource deletes one resource by id. Deletion is the remediation
// path for naming collisions, so a pending conflict is cleared and the
// returned flag tells the caller to re-run the preview automatically.
func (e *Engine) DeleteResource(ctx context.Context, resourceId string) (bool, error) {
	if err := e.az.DeleteResource(ctx, resourceId); err != nil {
		return false, err
	}

	e.invalidateResources()

	if _, pending := e.session.Conflict(); pending {
		return e.session.ConflictRemediated(), nil
	}

	return false, nil
}

func (e *Engine) resourcesCacheKey() string {
	return "azure_resources:" + e.ResourceGroup()
}

func (e *Engine) invalidateResources() {
	if e.cache != nil {
		e.cache.Invalidate(e.resourcesCacheKey())
	}
}

// preflight verifies the CLI session and makes sure the resource group
// exists, what-if and validate both require it.
func (e *Engine) preflight(ctx context.Context) error {
	if err := e.preflightAuth(ctx); err != nil {
		return err
	}

	return e.az.EnsureGroup(ctx, e.ResourceGroup(), e.location)
}

func (e *Engine) preflightAuth(ctx context.Context) error {
	if _, err := e.az.Account(ctx); err != nil {
		if failure := infra.ClassifyFailure(err.Error()); failure.Kind == infra.FailureCliMissing {
			return fmt.Errorf("%s is not installed, install it from %s", e.az.Name(), e.az.InstallUrl())
		}
		return err
	}

	if e.subscriptionId != "" {
		if err := e.az.SetSubscription(ctx, e.subscriptionId); err != nil {
			return err
		}
	}

	return nil
}

func (e *Engine) deploymentArgs(paramsFile string, name string) az.DeploymentArgs {
	return az.DeploymentArgs{
		ResourceGroup:  e.ResourceGroup(),
		TemplateFile:   "main.bicep",
		ParametersFile: filepath.Base(paramsFile),
		Cwd:            e.DeploymentDir(),
		Name:           name,
	}
}

type parameterValue struct {
	Value any `json:"value"`
}

// writeParametersFile renders the selection into an ARM parameters file next
// to the templates. The cleanup function removes it again.
func (e *Engine) writeParametersFile(operation string) (string, func(), error) {
	selection := e.Selection()

	parameters := map[string]parameterValue{
		"environment":      {Value: e.environment},
		"location":         {Value: e.location},
		"deployStorage":    {Value: selection.DeployStorage},
		"deployCosmos":     {Value: selection.DeployCosmos},
		"deployAppService": {Value: selection.DeployAppService},
	}

	encoded, err := json.Marshal(parameters)
	if err != nil {
		return "", nil, fmt.Errorf("failed encoding parameters: %w", err)
	}

	path := filepath.Join(e.DeploymentDir(), fmt.Sprintf("params-%s.json", operation))
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return "", nil, fmt.Errorf("failed writing parameters file: %w", err)
	}

	return path, func() { _ = os.Remove(path) }, nil
}

// diagnosticMessages pulls template diagnostics out of a validate response.
func diagnosticMessages(payload []byte) []string {
	var response struct {
		Properties struct {
			Diagnostics []struct {
				Message string `json:"message"`
			} `json:"diagnostics"`
		} `json:"properties"`
	}
	if err := json.Unmarshal(payload, &response); err != nil {
		return nil
	}

	var messages []string
	for _, diagnostic := range response.Properties.Diagnostics {
		if diagnostic.Message != "" {
			messages = append(messages, diagnostic.Message)
		}
	}

	return messages
}

// failureText prefers the CLI's stderr over the wrapped Go error, the CLI
// explains itself better.
func failureText(result az.DeploymentResult, err error) string {
	if stderr := strings.TrimSpace(result.Stderr); stderr != "" {
		return stderr
	}

	if err != nil {
		return err.Error()
	}

	return "unknown failure"
}
