// Copyright (c) Mystira. All rights reserved.
// Licensed under the MIT License.

// Package workflows backs the CI workflow panel: listing workflow files,
// dispatching runs, and following their status and logs. GitHub access goes
// through the REST API when a token is configured and falls back to the gh
// CLI session otherwise.
package workflows

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mystira/devhub/internal/cache"
	"github.com/mystira/devhub/pkg/config"
	"github.com/mystira/devhub/pkg/tools"
)

// Run is one workflow run in the panel's shape, regardless of backend.
type Run struct {
	Id         int64  `json:"id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	Conclusion string `json:"conclusion"`
	Branch     string `json:"branch"`
	Url        string `json:"url"`
	CreatedAt  string `json:"createdAt"`
	UpdatedAt  string `json:"updatedAt"`
}

// backend is the remote side of the panel. Both implementations return runs
// in the shared shape.
type backend interface {
	Workflows(ctx context.Context) ([]string, error)
	Dispatch(ctx context.Context, workflowFile string, ref string, inputs map[string]string) error
	Run(ctx context.Context, runId int64) (Run, error)
	RunLogs(ctx context.Context, runId int64) (string, error)
	History(ctx context.Context, workflowFile string, limit int) ([]Run, error)
}

const defaultHistoryLimit = 20

// Service is the workflow panel over one repository.
type Service struct {
	repoRoot string
	repoSlug string
	backend  backend
	cache    *cache.Cache
}

// NewService selects the backend for the repository: the REST API when a
// token is found in settings or the environment, the gh CLI session
// otherwise. An unauthenticated gh session fails here rather than on the
// first panel call.
func NewService(
	ctx context.Context,
	repoRoot string,
	repoSlug string,
	settings config.Config,
	ghCli tools.GitHubCli,
	responseCache *cache.Cache,
) (*Service, error) {
	var selected backend
	if token := githubToken(settings); token != "" {
		api, err := newApiBackend(repoSlug, token)
		if err != nil {
			return nil, err
		}
		selected = api
	} else {
		authed, err := ghCli.CheckAuth(ctx)
		if err != nil {
			return nil, fmt.Errorf("checking gh auth status: %w", err)
		}
		if !authed {
			return nil, tools.ErrGitHubCliNotLoggedIn
		}
		selected = &cliBackend{gh: ghCli, repoSlug: repoSlug}
	}

	return &Service{
		repoRoot: repoRoot,
		repoSlug: repoSlug,
		backend:  selected,
		cache:    responseCache,
	}, nil
}

// githubToken resolves the API token: settings first, then the conventional
// environment variables.
func githubToken(settings config.Config) string {
	if settings != nil {
		if token, ok := settings.GetString("github.token"); ok && token != "" {
			return token
		}
	}

	for _, name := range []string{"GITHUB_TOKEN", "GH_TOKEN"} {
		if token := os.Getenv(name); token != "" {
			return token
		}
	}

	return ""
}

// ListWorkflowFiles lists the repository's workflow files, optionally
// filtered by environment name. The filter matches case-insensitively
// against the file name. When the local checkout has no workflows
// directory the backend's remote listing answers instead.
func (s *Service) ListWorkflowFiles(ctx context.Context, environment string) ([]string, error) {
	dir := filepath.Join(s.repoRoot, ".github", "workflows")

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		names, err := s.backend.Workflows(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed listing remote workflows: %w", err)
		}
		return filterWorkflowFiles(names, environment), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed reading workflows directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}

	return filterWorkflowFiles(names, environment), nil
}

func filterWorkflowFiles(names []string, environment string) []string {
	var files []string
	for _, name := range names {
		ext := filepath.Ext(name)
		if ext != ".yml" && ext != ".yaml" {
			continue
		}

		if environment != "" &&
			!strings.Contains(strings.ToLower(name), strings.ToLower(environment)) {
			continue
		}

		files = append(files, name)
	}

	sort.Strings(files)
	return files
}

// Dispatch triggers a workflow run and drops any cached history for it, the
// next poll should see the new run.
func (s *Service) Dispatch(ctx context.Context, workflowFile string, ref string, inputs map[string]string) error {
	if err := s.backend.Dispatch(ctx, workflowFile, ref, inputs); err != nil {
		return err
	}

	if s.cache != nil {
		s.cache.Invalidate(s.historyCacheKey(workflowFile, defaultHistoryLimit))
	}

	return nil
}

// RunStatus returns the current state of one run.
func (s *Service) RunStatus(ctx context.Context, runId int64) (Run, error) {
	return s.backend.Run(ctx, runId)
}

// RunLogs returns the logs of one run. The CLI path returns the log text,
// the API path a short-lived archive URL.
func (s *Service) RunLogs(ctx context.Context, runId int64) (string, error) {
	return s.backend.RunLogs(ctx, runId)
}

// History returns the most recent runs of a workflow, newest first, served
// from the TTL cache when fresh. A limit of zero uses the default.
func (s *Service) History(ctx context.Context, workflowFile string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	key := s.historyCacheKey(workflowFile, limit)
	if s.cache != nil {
		if cached, ok := s.cache.Get(key); ok {
			var runs []Run
			if err := json.Unmarshal([]byte(cached), &runs); err == nil {
				return runs, nil
			}
			s.cache.Invalidate(key)
		}
	}

	runs, err := s.backend.History(ctx, workflowFile, limit)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if encoded, err := json.Marshal(runs); err == nil {
			s.cache.Set(key, string(encoded), cache.GithubDeploymentsTTL)
		}
	}

	return runs, nil
}

func (s *Service) historyCacheKey(workflowFile string, limit int) string {
	return fmt.Sprintf("github_deployments:%s:%s:%d", s.repoSlug, workflowFile, limit)
}
