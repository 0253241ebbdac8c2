// Copyright (c) Mystira. All rights reserved.
// Licensed under the MIT License.

package tools_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mystira/devhub/pkg/exec"
	"github.com/mystira/devhub/pkg/tools"
	"github.com/mystira/devhub/test/mocks/mockexec"
)

func Test_Gh_ListWorkflows(t *testing.T) {
	runner := mockexec.NewMockCommandRunner()
	runner.When(func(args exec.RunArgs, command string) bool {
		return strings.Contains(command, "workflow list")
	}).Respond(exec.NewRunResult(0, `[
		{"id": 1, "name": "Deploy Dev", "path": ".github/workflows/deploy-dev.yml", "state": "active"}
	]`, ""))

	cli := tools.NewGitHubCli(runner)
	workflows, err := cli.ListWorkflows(context.Background(), "mystira/mystira")
	require.NoError(t, err)
	require.Len(t, workflows, 1)
	require.Equal(t, "Deploy Dev", workflows[0].Name)
}

func Test_Gh_NotLoggedIn(t *testing.T) {
	runner := mockexec.NewMockCommandRunner()
	runner.When(func(args exec.RunArgs, command string) bool {
		return strings.Contains(command, "workflow list")
	}).RespondFn(func(args exec.RunArgs) (exec.RunResult, error) {
		res := exec.NewRunResult(1, "", "To get started with GitHub CLI, please run:  gh auth login")
		return res, exec.NewExitError(res.ExitCode, args.Cmd, res.Stdout, res.Stderr)
	})

	cli := tools.NewGitHubCli(runner)
	_, err := cli.ListWorkflows(context.Background(), "mystira/mystira")
	require.ErrorIs(t, err, tools.ErrGitHubCliNotLoggedIn)
}

func Test_Gh_DispatchWorkflowInputs(t *testing.T) {
	var captured exec.RunArgs

	runner := mockexec.NewMockCommandRunner()
	runner.When(func(args exec.RunArgs, command string) bool {
		return strings.Contains(command, "workflow run")
	}).RespondFn(func(args exec.RunArgs) (exec.RunResult, error) {
		captured = args
		return exec.NewRunResult(0, "", ""), nil
	})

	cli := tools.NewGitHubCli(runner)
	err := cli.DispatchWorkflow(context.Background(), "mystira/mystira", "deploy-dev.yml", "main",
		map[string]string{"environment": "dev"})
	require.NoError(t, err)

	joined := strings.Join(captured.Args, " ")
	require.Contains(t, joined, "--ref main")
	require.Contains(t, joined, "environment=dev")
}

func Test_Gh_ViewRun(t *testing.T) {
	runner := mockexec.NewMockCommandRunner()
	runner.When(func(args exec.RunArgs, command string) bool {
		return strings.Contains(command, "run view")
	}).Respond(exec.NewRunResult(0, `{
		"databaseId": 42,
		"name": "Deploy Dev",
		"status": "completed",
		"conclusion": "success",
		"headBranch": "main"
	}`, ""))

	cli := tools.NewGitHubCli(runner)
	run, err := cli.ViewRun(context.Background(), "mystira/mystira", 42)
	require.NoError(t, err)
	require.Equal(t, int64(42), run.Id)
	require.Equal(t, "completed", run.Status)
	require.Equal(t, "success", run.Conclusion)
}
