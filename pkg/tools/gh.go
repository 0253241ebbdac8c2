// Copyright (c) Mystira. All rights reserved.
// Licensed under the MIT License.

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"

	"github.com/mystira/devhub/pkg/exec"
)

// ErrGitHubCliNotLoggedIn is returned when the gh session is missing or
// expired.
var ErrGitHubCliNotLoggedIn = errors.New("gh cli is not logged in")

var isGhCliNotLoggedInMessageRegex = regexp.MustCompile(
	`(To get started with GitHub CLI, please run:\s+gh auth login)|(gh auth login)`,
)

// GitHub answers at most this many gh driven requests per minute for an
// unauthenticated-ish usage pattern, stay under it.
const ghRequestsPerMinute = 60

type GitHubCli interface {
	ExternalTool
	CheckAuth(ctx context.Context) (bool, error)
	ListWorkflows(ctx context.Context, repoSlug string) ([]GhWorkflow, error)
	DispatchWorkflow(ctx context.Context, repoSlug string, workflow string, ref string, inputs map[string]string) error
	ListRuns(ctx context.Context, repoSlug string, workflow string, limit int) ([]GhWorkflowRun, error)
	ViewRun(ctx context.Context, repoSlug string, runId int64) (GhWorkflowRun, error)
	RunLogs(ctx context.Context, repoSlug string, runId int64) (string, error)
}

func NewGitHubCli(commandRunner exec.CommandRunner) GitHubCli {
	return &ghCli{
		commandRunner: commandRunner,
		limiter:       rate.NewLimiter(rate.Every(time.Minute/ghRequestsPerMinute), ghRequestsPerMinute),
	}
}

type ghCli struct {
	commandRunner exec.CommandRunner
	limiter       *rate.Limiter
}

func (cli *ghCli) CheckInstalled(_ context.Context) (bool, error) {
	return ToolInPath("gh")
}

func (cli *ghCli) Name() string {
	return "GitHub CLI"
}

func (cli *ghCli) InstallUrl() string {
	return "https://cli.github.com"
}

func (cli *ghCli) CheckAuth(ctx context.Context) (bool, error) {
	res, err := cli.run(ctx, exec.NewRunArgs("gh", "auth", "status"))
	if res.ExitCode == 0 {
		return true, nil
	} else if isGhCliNotLoggedInMessageRegex.MatchString(res.Stderr) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("failed running gh auth status: %w", err)
	}

	return false, errors.New("could not determine auth status")
}

// GhWorkflow is one entry from `gh workflow list`.
type GhWorkflow struct {
	Id    int64  `json:"id"`
	Name  string `json:"name"`
	Path  string `json:"path"`
	State string `json:"state"`
}

func (cli *ghCli) ListWorkflows(ctx context.Context, repoSlug string) ([]GhWorkflow, error) {
	res, err := cli.run(ctx, exec.NewRunArgs(
		"gh", "-R", repoSlug, "workflow", "list", "--json", "id,name,path,state"))
	if isGhCliNotLoggedInMessageRegex.MatchString(res.Stderr) {
		return nil, ErrGitHubCliNotLoggedIn
	} else if err != nil {
		return nil, fmt.Errorf("failed running gh workflow list: %w", err)
	}

	var workflows []GhWorkflow
	if err := json.Unmarshal([]byte(res.Stdout), &workflows); err != nil {
		return nil, fmt.Errorf("could not unmarshal output %s as a []GhWorkflow: %w", res.Stdout, err)
	}

	return workflows, nil
}

func (cli *ghCli) DispatchWorkflow(
	ctx context.Context,
	repoSlug string,
	workflow string,
	ref string,
	inputs map[string]string,
) error {
	args := exec.NewRunArgs("gh", "-R", repoSlug, "workflow", "run", workflow, "--ref", ref)
	for name, value := range inputs {
		args = args.AppendParams("-f", fmt.Sprintf("%s=%s", name, value))
	}

	res, err := cli.run(ctx, args)
	if isGhCliNotLoggedInMessageRegex.MatchString(res.Stderr) {
		return ErrGitHubCliNotLoggedIn
	} else if err != nil {
		return fmt.Errorf("failed running gh workflow run: %w", err)
	}

	return nil
}

// GhWorkflowRun is one entry from `gh run list` / `gh run view`.
type GhWorkflowRun struct {
	Id         int64  `json:"databaseId"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	Conclusion string `json:"conclusion"`
	Branch     string `json:"headBranch"`
	Url        string `json:"url"`
	CreatedAt  string `json:"createdAt"`
	UpdatedAt  string `json:"updatedAt"`
}

const ghRunFields = "databaseId,name,status,conclusion,headBranch,url,createdAt,updatedAt"

func (cli *ghCli) ListRuns(
	ctx context.Context,
	repoSlug string,
	workflow string,
	limit int,
) ([]GhWorkflowRun, error) {
	args := exec.NewRunArgs(
		"gh", "-R", repoSlug, "run", "list",
		"--limit", fmt.Sprintf("%d", limit),
		"--json", ghRunFields)
	if workflow != "" {
		args = args.AppendParams("--workflow", workflow)
	}

	res, err := cli.run(ctx, args)
	if isGhCliNotLoggedInMessageRegex.MatchString(res.Stderr) {
		return nil, ErrGitHubCliNotLoggedIn
	} else if err != nil {
		return nil, fmt.Errorf("failed running gh run list: %w", err)
	}

	var runs []GhWorkflowRun
	if err := json.Unmarshal([]byte(res.Stdout), &runs); err != nil {
		return nil, fmt.Errorf("could not unmarshal output %s as a []GhWorkflowRun: %w", res.Stdout, err)
	}

	return runs, nil
}

func (cli *ghCli) ViewRun(ctx context.Context, repoSlug string, runId int64) (GhWorkflowRun, error) {
	res, err := cli.run(ctx, exec.NewRunArgs(
		"gh", "-R", repoSlug, "run", "view", fmt.Sprintf("%d", runId), "--json", ghRunFields))
	if isGhCliNotLoggedInMessageRegex.MatchString(res.Stderr) {
		return GhWorkflowRun{}, ErrGitHubCliNotLoggedIn
	} else if err != nil {
		return GhWorkflowRun{}, fmt.Errorf("failed running gh run view: %w", err)
	}

	var run GhWorkflowRun
	if err := json.Unmarshal([]byte(res.Stdout), &run); err != nil {
		return GhWorkflowRun{}, fmt.Errorf("could not unmarshal output %s as a GhWorkflowRun: %w", res.Stdout, err)
	}

	return run, nil
}

func (cli *ghCli) RunLogs(ctx context.Context, repoSlug string, runId int64) (string, error) {
	res, err := cli.run(ctx, exec.NewRunArgs(
		"gh", "-R", repoSlug, "run", "view", fmt.Sprintf("%d", runId), "--log"))
	if isGhCliNotLoggedInMessageRegex.MatchString(res.Stderr) {
		return "", ErrGitHubCliNotLoggedIn
	} else if err != nil {
		return "", fmt.Errorf("failed running gh run view --log: %w", err)
	}

	return res.Stdout, nil
}

func (cli *ghCli) run(ctx context.Context, args exec.RunArgs) (exec.RunResult, error) {
	var result exec.RunResult

	backoff := retry.WithMaxRetries(3, retry.NewExponential(100*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := cli.limiter.Wait(ctx); err != nil {
			return err
		}

		res, err := cli.commandRunner.Run(ctx, args)
		result = res
		if err != nil && IsTransient(res.Stderr) {
			return retry.RetryableError(err)
		}

		return err
	})

	return result, err
}
