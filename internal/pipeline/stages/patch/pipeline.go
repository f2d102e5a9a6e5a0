package patch

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cifix/pipeline/internal/collaborators/llm"
	"github.com/cifix/pipeline/internal/pipeline/retry"
	"github.com/cifix/pipeline/internal/pipeline/runtime"
	"github.com/cifix/pipeline/internal/platform/dbctx"
	"github.com/cifix/pipeline/internal/safety"
)

const maxCandidateFilesRead = 5

func (s *Stage) Run(ctx *runtime.Context) (runtime.Outcome, error) {
	workingDir := ctx.PayloadString("working_directory")
	if workingDir == "" {
		err := fmt.Errorf("missing working_directory in task payload")
		return runtime.FailedWith(retry.Classify(retry.ClassInput, err)), nil
	}

	// plan_summary is LLM context, not a hard requirement: a plan that
	// produced no summary text still has candidate files and build logs
	// worth attempting a patch against.
	planSummary := ctx.PayloadString("plan_summary")
	if planSummary == "" {
		ctx.Log.Warn("patch stage running without a plan summary")
	}

	candidatePaths := stringSlice(ctx.Payload()["candidate_files"])
	if len(candidatePaths) > maxCandidateFilesRead {
		candidatePaths = candidatePaths[:maxCandidateFilesRead]
	}

	previousFailure := ctx.PayloadString("previous_failure_reason")
	plan := planSummary
	if previousFailure != "" {
		plan = fmt.Sprintf("%s\n\nThe previous attempt failed to compile with:\n%s", planSummary, previousFailure)
	}

	files := make(map[string]string, len(candidatePaths))
	for _, p := range candidatePaths {
		if err := safety.ValidatePath(p); err != nil {
			continue
		}
		content, err := os.ReadFile(filepath.Join(workingDir, p))
		if err != nil {
			continue
		}
		files[p] = string(content)
	}
	if len(files) == 0 {
		err := fmt.Errorf("no readable candidate files under %s", workingDir)
		return runtime.FailedWith(retry.Classify(retry.ClassInput, err)), nil
	}

	resp, err := s.llm.GeneratePatch(ctx.Ctx, llm.PatchRequest{Plan: plan, CandidateFiles: files})
	if err != nil {
		return runtime.RetryWith(retry.Classify(retry.ClassCollaborator, fmt.Errorf("generate patch: %w", err))), nil
	}

	if err := safety.ValidateDiff(resp.Diff); err != nil {
		return runtime.FailedWith(retry.Classify(retry.ClassSafety, fmt.Errorf("reject unsafe patch: %w", err))), nil
	}

	if err := s.git.ApplyPatch(ctx.Ctx, workingDir, resp.Diff); err != nil {
		return runtime.RetryWith(retry.Classify(retry.ClassCollaborator, fmt.Errorf("apply patch: %w", err))), nil
	}

	dbc := dbctx.Context{Ctx: ctx.Ctx, Tx: ctx.DB}
	patchRow, err := s.artifacts.CreatePatch(dbc, ctx.Task.BuildID, resp.Diff)
	if err != nil {
		return runtime.RetryWith(retry.Classify(retry.ClassInternal, fmt.Errorf("persist patch: %w", err))), nil
	}

	if _, err := s.git.CommitAll(ctx.Ctx, workingDir, fmt.Sprintf("cifix: automated fix for build %d", ctx.Task.BuildID)); err != nil {
		return runtime.RetryWith(retry.Classify(retry.ClassCollaborator, fmt.Errorf("commit patch: %w", err))), nil
	}

	if err := s.artifacts.MarkPatchApplied(dbc, patchRow.ID); err != nil {
		ctx.Log.Warn("failed to mark patch applied", "patch_id", patchRow.ID, "error", err)
	}

	ctx.Log.Info("patch applied", "patch_id", patchRow.ID)

	return runtime.CompletedWith(map[string]any{
		"patch_id": patchRow.ID,
	}), nil
}

func stringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		if s, ok := v.([]string); ok {
			return s
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
