package plan

import (
	"fmt"
	"strings"

	"github.com/cifix/pipeline/internal/collaborators/logparser"
	"github.com/cifix/pipeline/internal/pipeline/retry"
	"github.com/cifix/pipeline/internal/pipeline/runtime"
	"github.com/cifix/pipeline/internal/platform/dbctx"
)

func (s *Stage) Run(ctx *runtime.Context) (runtime.Outcome, error) {
	buildLogs := ctx.PayloadString("build_logs")
	if strings.TrimSpace(buildLogs) == "" {
		err := fmt.Errorf("missing build_logs in task payload")
		return runtime.FailedWith(retry.Classify(retry.ClassInput, err)), nil
	}

	entries := logparser.Parse(buildLogs)
	paths := logparser.Paths(entries)

	var stepsBuilder strings.Builder
	for i, e := range entries {
		fmt.Fprintf(&stepsBuilder, "%d. %s", i+1, e.Message)
		if e.Path != "" {
			fmt.Fprintf(&stepsBuilder, " (%s:%d)", e.Path, e.Line)
		}
		stepsBuilder.WriteString("\n")
	}
	summary := fmt.Sprintf("%d diagnostic(s) found across %d file(s)", len(entries), len(paths))

	dbc := dbctx.Context{Ctx: ctx.Ctx, Tx: ctx.DB}
	planRow, err := s.artifacts.CreatePlan(dbc, ctx.Task.BuildID, summary, stepsBuilder.String())
	if err != nil {
		return runtime.RetryWith(retry.Classify(retry.ClassInternal, fmt.Errorf("persist plan: %w", err))), nil
	}

	ctx.Log.Info("plan generated", "plan_id", planRow.ID, "diagnostics", len(entries))

	return runtime.CompletedWith(map[string]any{
		"plan_id":      planRow.ID,
		"plan_summary": summary,
		"log_paths":    paths,
	}), nil
}
