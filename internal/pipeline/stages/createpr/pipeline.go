package createpr

import (
	"fmt"

	"github.com/cifix/pipeline/internal/collaborators/codehost"
	"github.com/cifix/pipeline/internal/pipeline/retry"
	"github.com/cifix/pipeline/internal/pipeline/runtime"
	"github.com/cifix/pipeline/internal/platform/dbctx"
)

func (s *Stage) Run(ctx *runtime.Context) (runtime.Outcome, error) {
	repoURL := ctx.PayloadString("repo_url")
	workingDir := ctx.PayloadString("working_directory")
	fixBranch := ctx.PayloadString("fix_branch")
	branch := ctx.PayloadString("branch")
	if branch == "" {
		branch = s.baseBranch
	}
	if repoURL == "" || workingDir == "" || fixBranch == "" {
		err := fmt.Errorf("missing repo_url, working_directory, or fix_branch in task payload")
		return runtime.FailedWith(retry.Classify(retry.ClassInput, err)), nil
	}

	dbc := dbctx.Context{Ctx: ctx.Ctx, Tx: ctx.DB}

	// Duplicate detection: a crash between push and settle must not open
	// a second pull request on re-lease.
	exists, err := s.artifacts.HasOpenPullRequestForBranch(dbc, ctx.Task.BuildID, fixBranch)
	if err != nil {
		return runtime.RetryWith(retry.Classify(retry.ClassInternal, fmt.Errorf("check existing pull request: %w", err))), nil
	}
	if exists {
		ctx.Log.Info("pull request already exists for branch, skipping", "fix_branch", fixBranch)
		return runtime.CompletedWith(nil), nil
	}

	if err := s.git.Push(ctx.Ctx, workingDir, fixBranch); err != nil {
		return runtime.RetryWith(retry.Classify(retry.ClassCollaborator, fmt.Errorf("push fix branch: %w", err))), nil
	}

	resp, err := s.codehost.CreatePullRequest(ctx.Ctx, codehost.PullRequestRequest{
		RepoURL:    repoURL,
		HeadBranch: fixBranch,
		BaseBranch: branch,
		Title:      fmt.Sprintf("cifix: automated fix for build %d", ctx.Task.BuildID),
		Body:       "Automated fix generated by the CI fix pipeline.",
	})
	if err != nil {
		return runtime.RetryWith(retry.Classify(retry.ClassCollaborator, fmt.Errorf("open pull request: %w", err))), nil
	}

	if _, err := s.artifacts.CreatePullRequest(dbc, ctx.Task.BuildID, fixBranch, branch, resp.ExternalID, resp.URL); err != nil {
		return runtime.RetryWith(retry.Classify(retry.ClassInternal, fmt.Errorf("persist pull request: %w", err))), nil
	}

	ctx.Log.Info("pull request opened", "url", resp.URL)

	return runtime.CompletedWith(map[string]any{
		"pull_request_url": resp.URL,
	}), nil
}
