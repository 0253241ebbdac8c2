// Copyright (c) Mystira. All rights reserved.
// Licensed under the MIT License.

package workflows

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/go-github/v60/github"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// GitHub allows 5000 authenticated requests per hour, the panel stays far
// under it.
const apiRequestsPerMinute = 60

// apiBackend talks to the GitHub REST API with a personal access token.
type apiBackend struct {
	client  *github.Client
	limiter *rate.Limiter
	owner   string
	repo    string
}

func newApiBackend(repoSlug string, token string) (*apiBackend, error) {
	owner, repo, ok := strings.Cut(repoSlug, "/")
	if !ok || owner == "" || repo == "" {
		return nil, fmt.Errorf("invalid repository %q, expected owner/repo", repoSlug)
	}

	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	client := github.NewClient(oauth2.NewClient(context.Background(), source))

	return &apiBackend{
		client:  client,
		limiter: rate.NewLimiter(rate.Every(time.Minute/apiRequestsPerMinute), apiRequestsPerMinute),
		owner:   owner,
		repo:    repo,
	}, nil
}

func (b *apiBackend) Dispatch(ctx context.Context, workflowFile string, ref string, inputs map[string]string) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}

	event := github.CreateWorkflowDispatchEventRequest{Ref: ref}
	if len(inputs) > 0 {
		event.Inputs = map[string]any{}
		for name, value := range inputs {
			event.Inputs[name] = value
		}
	}

	_, err := b.client.Actions.CreateWorkflowDispatchEventByFileName(
		ctx, b.owner, b.repo, workflowFile, event)
	if err != nil {
		return fmt.Errorf("failed dispatching workflow %s: %w", workflowFile, err)
	}

	return nil
}

func (b *apiBackend) Workflows(ctx context.Context) ([]string, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, _, err := b.client.Actions.ListWorkflows(ctx, b.owner, b.repo, nil)
	if err != nil {
		return nil, fmt.Errorf("failed listing workflows: %w", err)
	}

	files := make([]string, 0, len(result.Workflows))
	for _, workflow := range result.Workflows {
		files = append(files, path.Base(workflow.GetPath()))
	}

	return files, nil
}

func (b *apiBackend) Run(ctx context.Context, runId int64) (Run, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return Run{}, err
	}

	run, _, err := b.client.Actions.GetWorkflowRunByID(ctx, b.owner, b.repo, runId)
	if err != nil {
		return Run{}, fmt.Errorf("failed reading workflow run %d: %w", runId, err)
	}

	return runFromApi(run), nil
}

// RunLogs returns the short-lived URL of the run's log archive. Downloading
// and unpacking the archive is left to the caller, the CLI backend returns
// plain text instead.
func (b *apiBackend) RunLogs(ctx context.Context, runId int64) (string, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return "", err
	}

	logsUrl, _, err := b.client.Actions.GetWorkflowRunLogs(ctx, b.owner, b.repo, runId, 4)
	if err != nil {
		return "", fmt.Errorf("failed reading logs for run %d: %w", runId, err)
	}

	return logsUrl.String(), nil
}

func (b *apiBackend) History(ctx context.Context, workflowFile string, limit int) ([]Run, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, _, err := b.client.Actions.ListWorkflowRunsByFileName(
		ctx, b.owner, b.repo, workflowFile,
		&github.ListWorkflowRunsOptions{
			ListOptions: github.ListOptions{PerPage: limit},
		})
	if err != nil {
		return nil, fmt.Errorf("failed listing runs of %s: %w", workflowFile, err)
	}

	runs := make([]Run, 0, len(result.WorkflowRuns))
	for _, run := range result.WorkflowRuns {
		runs = append(runs, runFromApi(run))
	}

	return runs, nil
}

func runFromApi(run *github.WorkflowRun) Run {
	return Run{
		Id:         run.GetID(),
		Name:       run.GetName(),
		Status:     run.GetStatus(),
		Conclusion: run.GetConclusion(),
		Branch:     run.GetHeadBranch(),
		Url:        run.GetHTMLURL(),
		CreatedAt:  run.GetCreatedAt().Format(time.RFC3339),
		UpdatedAt:  run.GetUpdatedAt().Format(time.RFC3339),
	}
}
