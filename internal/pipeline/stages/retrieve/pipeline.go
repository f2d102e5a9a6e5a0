package retrieve

import (
	"fmt"

	"github.com/cifix/pipeline/internal/collaborators/fileranker"
	"github.com/cifix/pipeline/internal/collaborators/logparser"
	"github.com/cifix/pipeline/internal/collaborators/projectanalyzer"
	"github.com/cifix/pipeline/internal/data/repos/artifacts"
	"github.com/cifix/pipeline/internal/pipeline/retry"
	"github.com/cifix/pipeline/internal/pipeline/runtime"
	"github.com/cifix/pipeline/internal/platform/dbctx"
)

func (s *Stage) Run(ctx *runtime.Context) (runtime.Outcome, error) {
	workingDir := ctx.PayloadString("working_directory")
	if workingDir == "" {
		err := fmt.Errorf("missing working_directory in task payload")
		return runtime.FailedWith(retry.Classify(retry.ClassInput, err)), nil
	}
	buildLogs := ctx.PayloadString("build_logs")

	analysis, err := projectanalyzer.Analyze(workingDir)
	if err != nil {
		return runtime.RetryWith(retry.Classify(retry.ClassTransient, fmt.Errorf("analyze working copy: %w", err))), nil
	}

	entries := logparser.Parse(buildLogs)
	ranked := fileranker.Rank(entries, analysis.SourceFiles)
	if len(ranked) == 0 {
		err := fmt.Errorf("no candidate files ranked from %d source files", len(analysis.SourceFiles))
		return runtime.FailedWith(retry.Classify(retry.ClassInput, err)), nil
	}

	rows := make([]artifacts.RankedFile, 0, len(ranked))
	paths := make([]string, 0, len(ranked))
	for _, r := range ranked {
		rows = append(rows, artifacts.RankedFile{Path: r.Path, RankScore: r.RankScore, Reason: r.Reason})
		paths = append(paths, r.Path)
	}

	dbc := dbctx.Context{Ctx: ctx.Ctx, Tx: ctx.DB}
	if _, err := s.artifacts.CreateCandidateFiles(dbc, ctx.Task.BuildID, rows); err != nil {
		return runtime.RetryWith(retry.Classify(retry.ClassInternal, fmt.Errorf("persist candidate files: %w", err))), nil
	}

	ctx.Log.Info("candidate files ranked", "count", len(rows), "build_tool", analysis.BuildTool)

	return runtime.CompletedWith(map[string]any{
		"candidate_files": paths,
		"build_tool":      string(analysis.BuildTool),
	}), nil
}
