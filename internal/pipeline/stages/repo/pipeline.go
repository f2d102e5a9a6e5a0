package repo

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/cifix/pipeline/internal/pipeline/retry"
	"github.com/cifix/pipeline/internal/pipeline/runtime"
)

func (s *Stage) Run(ctx *runtime.Context) (runtime.Outcome, error) {
	repoURL := ctx.PayloadString("repo_url")
	commitSHA := ctx.PayloadString("commit_sha")
	if repoURL == "" {
		err := fmt.Errorf("missing repo_url in task payload")
		return runtime.FailedWith(retry.Classify(retry.ClassInput, err)), nil
	}

	workingDir := filepath.Join(s.baseDir, "build-"+strconv.FormatUint(uint64(ctx.Task.BuildID), 10))
	if err := s.git.Clone(ctx.Ctx, repoURL, commitSHA, workingDir); err != nil {
		return runtime.RetryWith(retry.Classify(retry.ClassCollaborator, fmt.Errorf("clone repository: %w", err))), nil
	}

	fixBranch := fmt.Sprintf("ci-fix/%d", ctx.Task.BuildID)
	if err := s.git.CreateBranch(ctx.Ctx, workingDir, fixBranch); err != nil {
		return runtime.RetryWith(retry.Classify(retry.ClassCollaborator, fmt.Errorf("create fix branch: %w", err))), nil
	}

	ctx.Log.Info("repository prepared", "working_directory", workingDir, "fix_branch", fixBranch)

	return runtime.CompletedWith(map[string]any{
		"working_directory": workingDir,
		"fix_branch":        fixBranch,
	}), nil
}
