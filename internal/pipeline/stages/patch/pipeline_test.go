package patch

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cifix/pipeline/internal/collaborators/llm"
	"github.com/cifix/pipeline/internal/data/repos/artifacts"
	"github.com/cifix/pipeline/internal/domain"
	"github.com/cifix/pipeline/internal/pipeline/retry"
	"github.com/cifix/pipeline/internal/pipeline/runtime"
	"github.com/cifix/pipeline/internal/platform/dbctx"
	"github.com/cifix/pipeline/internal/platform/logger"
)

type fakeLLM struct {
	patchResp llm.PatchResponse
	patchErr  error
	gotReq    llm.PatchRequest
}

func (f *fakeLLM) GeneratePlan(ctx context.Context, req llm.PlanRequest) (llm.PlanResponse, error) {
	return llm.PlanResponse{}, nil
}

func (f *fakeLLM) GeneratePatch(ctx context.Context, req llm.PatchRequest) (llm.PatchResponse, error) {
	f.gotReq = req
	return f.patchResp, f.patchErr
}

type fakeGit struct {
	applyErr  error
	commitErr error
	appliedAt string
}

func (f *fakeGit) Clone(ctx context.Context, repoURL, commitSHA, destDir string) error { return nil }
func (f *fakeGit) CreateBranch(ctx context.Context, workingDir, branchName string) error {
	return nil
}
func (f *fakeGit) ApplyPatch(ctx context.Context, workingDir, diff string) error {
	f.appliedAt = workingDir
	return f.applyErr
}
func (f *fakeGit) CommitAll(ctx context.Context, workingDir, message string) (string, error) {
	return "deadbeef", f.commitErr
}
func (f *fakeGit) Push(ctx context.Context, workingDir, branchName string) error { return nil }

type fakeArtifacts struct {
	artifacts.ArtifactRepo
	createdPatch *domain.Patch
	applied      bool
}

func (f *fakeArtifacts) CreatePatch(dbc dbctx.Context, buildID uint, diff string) (*domain.Patch, error) {
	f.createdPatch = &domain.Patch{ID: 1, BuildID: buildID, Diff: diff}
	return f.createdPatch, nil
}

func (f *fakeArtifacts) MarkPatchApplied(dbc dbctx.Context, patchID uint) error {
	f.applied = true
	return nil
}

func testContext(t *testing.T, payload map[string]any) *runtime.Context {
	t.Helper()
	task := &domain.Task{ID: 7, BuildID: 3, Kind: domain.StagePatch, Attempt: 1}
	build := &domain.Build{ID: 3, Job: "svc-api", BuildNumber: 42}
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	ctx := runtime.NewContext(context.Background(), nil, log, task, build)
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		task.Payload = b
		ctx = runtime.NewContext(context.Background(), nil, log, task, build)
	}
	return ctx
}

const validDiff = `--- a/src/main/java/com/example/Foo.java
+++ b/src/main/java/com/example/Foo.java
@@ -1,1 +1,1 @@
-return null;
+return compute();
`

func TestPatchStage_MissingWorkingDirectoryFails(t *testing.T) {
	s := New(&fakeLLM{}, &fakeGit{}, &fakeArtifacts{})
	ctx := testContext(t, map[string]any{"plan_summary": "fix it"})

	outcome, err := s.Run(ctx)
	if err != nil {
		t.Fatalf("Run returned unexpected error: %v", err)
	}
	if outcome.Kind != runtime.Failed {
		t.Fatalf("outcome.Kind = %v, want Failed", outcome.Kind)
	}
	if retry.ClassOf(outcome.Err) != retry.ClassInput {
		t.Fatalf("outcome.Err class = %v, want ClassInput", retry.ClassOf(outcome.Err))
	}
}

func TestPatchStage_MissingPlanSummaryStillSucceeds(t *testing.T) {
	dir := t.TempDir()
	relPath := "src/main/java/com/example/Foo.java"
	writeFile(t, dir, relPath, "class Foo {}")

	fl := &fakeLLM{patchResp: llm.PatchResponse{Diff: validDiff}}
	s := New(fl, &fakeGit{}, &fakeArtifacts{})
	ctx := testContext(t, map[string]any{
		"working_directory": dir,
		"candidate_files":   []any{relPath},
	})

	outcome, err := s.Run(ctx)
	if err != nil {
		t.Fatalf("Run returned unexpected error: %v", err)
	}
	if outcome.Kind != runtime.Completed {
		t.Fatalf("outcome.Kind = %v, want Completed even without a plan_summary, err=%v", outcome.Kind, outcome.Err)
	}
}

func TestPatchStage_NoReadableCandidateFilesFails(t *testing.T) {
	dir := t.TempDir()
	s := New(&fakeLLM{}, &fakeGit{}, &fakeArtifacts{})
	ctx := testContext(t, map[string]any{
		"working_directory": dir,
		"plan_summary":      "fix it",
		"candidate_files":   []any{"src/main/java/com/example/DoesNotExist.java"},
	})

	outcome, err := s.Run(ctx)
	if err != nil {
		t.Fatalf("Run returned unexpected error: %v", err)
	}
	if outcome.Kind != runtime.Failed {
		t.Fatalf("outcome.Kind = %v, want Failed", outcome.Kind)
	}
}

func TestPatchStage_UnsafeDiffIsRejected(t *testing.T) {
	dir := t.TempDir()
	relPath := "src/main/java/com/example/Foo.java"
	writeFile(t, dir, relPath, "class Foo {}")

	fl := &fakeLLM{patchResp: llm.PatchResponse{Diff: `--- a/Dockerfile
+++ b/Dockerfile
@@ -1,1 +1,1 @@
-FROM a
+FROM b
`}}
	s := New(fl, &fakeGit{}, &fakeArtifacts{})
	ctx := testContext(t, map[string]any{
		"working_directory": dir,
		"plan_summary":      "fix it",
		"candidate_files":   []any{relPath},
	})

	outcome, err := s.Run(ctx)
	if err != nil {
		t.Fatalf("Run returned unexpected error: %v", err)
	}
	if outcome.Kind != runtime.Failed {
		t.Fatalf("outcome.Kind = %v, want Failed", outcome.Kind)
	}
	if retry.ClassOf(outcome.Err) != retry.ClassSafety {
		t.Fatalf("outcome.Err class = %v, want ClassSafety", retry.ClassOf(outcome.Err))
	}
}

func TestPatchStage_LLMFailureIsRetryable(t *testing.T) {
	dir := t.TempDir()
	relPath := "src/main/java/com/example/Foo.java"
	writeFile(t, dir, relPath, "class Foo {}")

	fl := &fakeLLM{patchErr: errors.New("rate limited")}
	s := New(fl, &fakeGit{}, &fakeArtifacts{})
	ctx := testContext(t, map[string]any{
		"working_directory": dir,
		"plan_summary":      "fix it",
		"candidate_files":   []any{relPath},
	})

	outcome, err := s.Run(ctx)
	if err != nil {
		t.Fatalf("Run returned unexpected error: %v", err)
	}
	if outcome.Kind != runtime.Retry {
		t.Fatalf("outcome.Kind = %v, want Retry", outcome.Kind)
	}
}

func TestPatchStage_HappyPathAppliesAndCommits(t *testing.T) {
	dir := t.TempDir()
	relPath := "src/main/java/com/example/Foo.java"
	writeFile(t, dir, relPath, "class Foo {}")

	fl := &fakeLLM{patchResp: llm.PatchResponse{Diff: validDiff}}
	fg := &fakeGit{}
	fa := &fakeArtifacts{}
	s := New(fl, fg, fa)
	ctx := testContext(t, map[string]any{
		"working_directory": dir,
		"plan_summary":      "fix it",
		"candidate_files":   []any{relPath},
	})

	outcome, err := s.Run(ctx)
	if err != nil {
		t.Fatalf("Run returned unexpected error: %v", err)
	}
	if outcome.Kind != runtime.Completed {
		t.Fatalf("outcome.Kind = %v, want Completed, err=%v", outcome.Kind, outcome.Err)
	}
	if fa.createdPatch == nil {
		t.Fatal("expected a patch artifact to be created")
	}
	if !fa.applied {
		t.Fatal("expected patch to be marked applied")
	}
	if fg.appliedAt != dir {
		t.Fatalf("ApplyPatch called with workingDir=%q, want %q", fg.appliedAt, dir)
	}
	if outcome.NextPayload["patch_id"] != fa.createdPatch.ID {
		t.Fatalf("NextPayload[patch_id] = %v, want %v", outcome.NextPayload["patch_id"], fa.createdPatch.ID)
	}
}

func TestPatchStage_PreviousFailureReasonIsPromptedToLLM(t *testing.T) {
	dir := t.TempDir()
	relPath := "src/main/java/com/example/Foo.java"
	writeFile(t, dir, relPath, "class Foo {}")

	fl := &fakeLLM{patchResp: llm.PatchResponse{Diff: validDiff}}
	s := New(fl, &fakeGit{}, &fakeArtifacts{})
	ctx := testContext(t, map[string]any{
		"working_directory":       dir,
		"plan_summary":            "fix it",
		"candidate_files":         []any{relPath},
		"previous_failure_reason": "compile error: missing semicolon",
	})

	if _, err := s.Run(ctx); err != nil {
		t.Fatalf("Run returned unexpected error: %v", err)
	}
	if !strings.Contains(fl.gotReq.Plan, "missing semicolon") {
		t.Fatalf("LLM plan prompt = %q, want it to include the previous failure reason", fl.gotReq.Plan)
	}
}

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	full := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

