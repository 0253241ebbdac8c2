// Copyright (c) Mystira. All rights reserved.
// Licensed under the MIT License.

package workflows

import (
	"context"
	"path"

	"github.com/mystira/devhub/pkg/tools"
)

// cliBackend drives the gh CLI's own session, used when no API token is
// configured.
type cliBackend struct {
	gh       tools.GitHubCli
	repoSlug string
}

func (b *cliBackend) Dispatch(ctx context.Context, workflowFile string, ref string, inputs map[string]string) error {
	return b.gh.DispatchWorkflow(ctx, b.repoSlug, workflowFile, ref, inputs)
}

func (b *cliBackend) Run(ctx context.Context, runId int64) (Run, error) {
	run, err := b.gh.ViewRun(ctx, b.repoSlug, runId)
	if err != nil {
		return Run{}, err
	}

	return runFromGh(run), nil
}

func (b *cliBackend) RunLogs(ctx context.Context, runId int64) (string, error) {
	return b.gh.RunLogs(ctx, b.repoSlug, runId)
}

func (b *cliBackend) Workflows(ctx context.Context) ([]string, error) {
	workflows, err := b.gh.ListWorkflows(ctx, b.repoSlug)
	if err != nil {
		return nil, err
	}

	files := make([]string, 0, len(workflows))
	for _, workflow := range workflows {
		files = append(files, path.Base(workflow.Path))
	}

	return files, nil
}

func (b *cliBackend) History(ctx context.Context, workflowFile string, limit int) ([]Run, error) {
	ghRuns, err := b.gh.ListRuns(ctx, b.repoSlug, workflowFile, limit)
	if err != nil {
		return nil, err
	}

	runs := make([]Run, 0, len(ghRuns))
	for _, run := range ghRuns {
		runs = append(runs, runFromGh(run))
	}

	return runs, nil
}

func runFromGh(run tools.GhWorkflowRun) Run {
	return Run{
		Id:         run.Id,
		Name:       run.Name,
		Status:     run.Status,
		Conclusion: run.Conclusion,
		Branch:     run.Branch,
		Url:        run.Url,
		CreatedAt:  run.CreatedAt,
		UpdatedAt:  run.UpdatedAt,
	}
}
