// Copyright (c) Mystira. All rights reserved.
// Licensed under the MIT License.

package workflows

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mystira/devhub/internal/cache"
	"github.com/mystira/devhub/pkg/config"
	"github.com/mystira/devhub/pkg/exec"
	"github.com/mystira/devhub/pkg/tools"
	"github.com/mystira/devhub/test/mocks/mockexec"
)

type stubBackend struct {
	dispatched   []string
	historyCalls int
	runs         []Run
	workflows    []string
	err          error
}

func (b *stubBackend) Workflows(_ context.Context) ([]string, error) {
	return b.workflows, b.err
}

func (b *stubBackend) Dispatch(_ context.Context, workflowFile string, ref string, _ map[string]string) error {
	b.dispatched = append(b.dispatched, workflowFile+"@"+ref)
	return b.err
}

func (b *stubBackend) Run(_ context.Context, runId int64) (Run, error) {
	return Run{Id: runId, Status: "completed"}, b.err
}

func (b *stubBackend) RunLogs(_ context.Context, _ int64) (string, error) {
	return "log output", b.err
}

func (b *stubBackend) History(_ context.Context, _ string, _ int) ([]Run, error) {
	b.historyCalls++
	return b.runs, b.err
}

func testService(t *testing.T, backend backend) *Service {
	t.Helper()
	return &Service{
		repoRoot: t.TempDir(),
		repoSlug: "mystira/app",
		backend:  backend,
		cache:    cache.New(),
	}
}

func Test_ListWorkflowFiles(t *testing.T) {
	svc := testService(t, &stubBackend{})

	dir := filepath.Join(svc.repoRoot, ".github", "workflows")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, name := range []string{"deploy-dev.yml", "deploy-prod.yml", "ci.yaml", "README.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("on: push"), 0o644))
	}

	all, err := svc.ListWorkflowFiles(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, []string{"ci.yaml", "deploy-dev.yml", "deploy-prod.yml"}, all)

	dev, err := svc.ListWorkflowFiles(context.Background(), "DEV")
	require.NoError(t, err)
	require.Equal(t, []string{"deploy-dev.yml"}, dev)
}

func Test_ListWorkflowFiles_RemoteFallback(t *testing.T) {
	// No local .github/workflows directory, the backend's listing answers.
	backend := &stubBackend{workflows: []string{"deploy-prod.yml", "deploy-dev.yml", "ci.yaml"}}
	svc := testService(t, backend)

	all, err := svc.ListWorkflowFiles(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, []string{"ci.yaml", "deploy-dev.yml", "deploy-prod.yml"}, all)

	dev, err := svc.ListWorkflowFiles(context.Background(), "dev")
	require.NoError(t, err)
	require.Equal(t, []string{"deploy-dev.yml"}, dev)
}

func Test_ListWorkflowFiles_RemoteError(t *testing.T) {
	svc := testService(t, &stubBackend{err: errors.New("boom")})
	_, err := svc.ListWorkflowFiles(context.Background(), "")
	require.Error(t, err)
}

func Test_History_Cached(t *testing.T) {
	backend := &stubBackend{runs: []Run{{Id: 1, Status: "completed", Conclusion: "success"}}}
	svc := testService(t, backend)

	first, err := svc.History(context.Background(), "deploy-dev.yml", 0)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := svc.History(context.Background(), "deploy-dev.yml", 0)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, backend.historyCalls)

	// A different limit is a different cache entry.
	_, err = svc.History(context.Background(), "deploy-dev.yml", 5)
	require.NoError(t, err)
	require.Equal(t, 2, backend.historyCalls)
}

func Test_Dispatch_InvalidatesHistory(t *testing.T) {
	backend := &stubBackend{runs: []Run{{Id: 1}}}
	svc := testService(t, backend)

	_, err := svc.History(context.Background(), "deploy-dev.yml", 0)
	require.NoError(t, err)

	require.NoError(t, svc.Dispatch(context.Background(), "deploy-dev.yml", "main", nil))
	require.Equal(t, []string{"deploy-dev.yml@main"}, backend.dispatched)

	_, err = svc.History(context.Background(), "deploy-dev.yml", 0)
	require.NoError(t, err)
	require.Equal(t, 2, backend.historyCalls)
}

func Test_History_BackendError(t *testing.T) {
	backend := &stubBackend{err: errors.New("boom")}
	svc := testService(t, backend)

	_, err := svc.History(context.Background(), "deploy-dev.yml", 0)
	require.Error(t, err)
}

func Test_NewService_SelectsBackend(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("GH_TOKEN", "")

	runner := mockexec.NewMockCommandRunner()
	runner.When(func(args exec.RunArgs, command string) bool {
		return strings.Contains(command, "gh auth status")
	}).Respond(exec.NewRunResult(0, "Logged in to github.com", ""))
	ghCli := tools.NewGitHubCli(runner)

	svc, err := NewService(
		context.Background(), t.TempDir(), "mystira/app", config.NewEmptyConfig(), ghCli, nil)
	require.NoError(t, err)
	require.IsType(t, &cliBackend{}, svc.backend)

	settings := config.NewEmptyConfig()
	require.NoError(t, settings.Set("github.token", "ghp_test"))

	svc, err = NewService(
		context.Background(), t.TempDir(), "mystira/app", settings, ghCli, nil)
	require.NoError(t, err)
	require.IsType(t, &apiBackend{}, svc.backend)

	_, err = NewService(
		context.Background(), t.TempDir(), "not-a-slug", settings, ghCli, nil)
	require.Error(t, err)
}

func Test_NewService_FailsFastWhenGhNotLoggedIn(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("GH_TOKEN", "")

	runner := mockexec.NewMockCommandRunner()
	runner.When(func(args exec.RunArgs, command string) bool {
		return strings.Contains(command, "gh auth status")
	}).Respond(exec.NewRunResult(
		1, "", "To get started with GitHub CLI, please run:  gh auth login"))
	ghCli := tools.NewGitHubCli(runner)

	_, err := NewService(
		context.Background(), t.TempDir(), "mystira/app", config.NewEmptyConfig(), ghCli, nil)
	require.ErrorIs(t, err, tools.ErrGitHubCliNotLoggedIn)
}

func Test_CliBackend_Workflows(t *testing.T) {
	runner := mockexec.NewMockCommandRunner()
	runner.When(func(args exec.RunArgs, command string) bool {
		return strings.Contains(command, "gh -R mystira/app workflow list")
	}).Respond(exec.NewRunResult(0, `[
		{"id": 1, "name": "Deploy Dev", "path": ".github/workflows/deploy-dev.yml", "state": "active"},
		{"id": 2, "name": "CI", "path": ".github/workflows/ci.yaml", "state": "active"}
	]`, ""))

	backend := &cliBackend{gh: tools.NewGitHubCli(runner), repoSlug: "mystira/app"}

	files, err := backend.Workflows(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"deploy-dev.yml", "ci.yaml"}, files)
}

func Test_CliBackend_History(t *testing.T) {
	runner := mockexec.NewMockCommandRunner()
	runner.When(func(args exec.RunArgs, command string) bool {
		return strings.Contains(command, "gh -R mystira/app run list")
	}).Respond(exec.NewRunResult(0, `[
		{"databaseId": 42, "name": "Deploy", "status": "completed",
		 "conclusion": "success", "headBranch": "main",
		 "url": "https://github.com/mystira/app/actions/runs/42",
		 "createdAt": "2026-08-30T10:00:00Z", "updatedAt": "2026-08-30T10:05:00Z"}
	]`, ""))

	backend := &cliBackend{gh: tools.NewGitHubCli(runner), repoSlug: "mystira/app"}

	runs, err := backend.History(context.Background(), "deploy-dev.yml", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, int64(42), runs[0].Id)
	require.Equal(t, "success", runs[0].Conclusion)
	require.Equal(t, "main", runs[0].Branch)
}
