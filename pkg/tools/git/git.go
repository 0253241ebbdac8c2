// Copyright (c) Mystira. All rights reserved.
// Licensed under the MIT License.

package git

import (
	"context"
	"fmt"
	"strings"

	"github.com/blang/semver/v4"

	"github.com/mystira/devhub/pkg/exec"
	"github.com/mystira/devhub/pkg/tools"
)

type GitCli interface {
	tools.ExternalTool
	GetRepoRoot(ctx context.Context, repositoryPath string) (string, error)
	GetCurrentBranch(ctx context.Context, repositoryPath string) (string, error)
	GetRemoteUrl(ctx context.Context, repositoryPath string, remoteName string) (string, error)
	Status(ctx context.Context, repositoryPath string) (RepoStatus, error)
}

type gitCli struct {
	commandRunner exec.CommandRunner
}

func NewGitCli(commandRunner exec.CommandRunner) GitCli {
	return &gitCli{
		commandRunner: commandRunner,
	}
}

func (cli *gitCli) versionInfo() tools.VersionInfo {
	return tools.VersionInfo{
		MinimumVersion: semver.Version{
			Major: 2,
			Minor: 20,
			Patch: 0},
		UpdateCommand: "Visit https://git-scm.com/downloads to upgrade",
	}
}

func (cli *gitCli) CheckInstalled(ctx context.Context) (bool, error) {
	found, err := tools.ToolInPath("git")
	if !found {
		return false, err
	}

	gitRes, err := cli.commandRunner.Run(ctx, exec.NewRunArgs("git", "--version"))
	if err != nil {
		return false, fmt.Errorf("checking git version: %w", err)
	}

	gitSemver, err := tools.ExtractVersion(gitRes.Stdout)
	if err != nil {
		return false, fmt.Errorf("converting to semver version fails: %w", err)
	}

	updateDetail := cli.versionInfo()
	if gitSemver.LT(updateDetail.MinimumVersion) {
		return false, &tools.ErrSemver{ToolName: cli.Name(), VersionInfo: updateDetail}
	}

	return true, nil
}

func (cli *gitCli) Name() string {
	return "Git CLI"
}

func (cli *gitCli) InstallUrl() string {
	return "https://git-scm.com/downloads"
}

// GetRepoRoot returns the absolute path of the repository containing
// repositoryPath.
func (cli *gitCli) GetRepoRoot(ctx context.Context, repositoryPath string) (string, error) {
	runArgs := exec.NewRunArgs("git", "-C", repositoryPath, "rev-parse", "--show-toplevel")
	result, err := cli.commandRunner.Run(ctx, runArgs)
	if err != nil {
		return "", fmt.Errorf("failed determining repository root: %w", err)
	}

	return strings.TrimSpace(result.Stdout), nil
}

func (cli *gitCli) GetCurrentBranch(ctx context.Context, repositoryPath string) (string, error) {
	runArgs := exec.NewRunArgs("git", "-C", repositoryPath, "branch", "--show-current")
	result, err := cli.commandRunner.Run(ctx, runArgs)
	if err != nil {
		return "", fmt.Errorf("failed reading current branch: %w", err)
	}

	return strings.TrimSpace(result.Stdout), nil
}

func (cli *gitCli) GetRemoteUrl(ctx context.Context, repositoryPath string, remoteName string) (string, error) {
	runArgs := exec.NewRunArgs("git", "-C", repositoryPath, "remote", "get-url", remoteName)
	result, err := cli.commandRunner.Run(ctx, runArgs)
	if err != nil {
		return "", fmt.Errorf("failed reading remote url for %s: %w", remoteName, err)
	}

	return strings.TrimSpace(result.Stdout), nil
}

// RepoStatus is a summary of `git status --porcelain`.
type RepoStatus struct {
	Clean bool
	// Modified counts tracked files with pending changes.
	Modified int
	// Untracked counts files git does not know about.
	Untracked int
}

func (cli *gitCli) Status(ctx context.Context, repositoryPath string) (RepoStatus, error) {
	runArgs := exec.NewRunArgs("git", "-C", repositoryPath, "status", "--porcelain")
	result, err := cli.commandRunner.Run(ctx, runArgs)
	if err != nil {
		return RepoStatus{}, fmt.Errorf("failed reading repository status: %w", err)
	}

	status := RepoStatus{Clean: true}
	for _, line := range strings.Split(result.Stdout, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}

		status.Clean = false
		if strings.HasPrefix(line, "??") {
			status.Untracked++
		} else {
			status.Modified++
		}
	}

	return status, nil
}
