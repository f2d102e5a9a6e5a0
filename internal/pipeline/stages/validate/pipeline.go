package validate

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/cifix/pipeline/internal/pipeline/retry"
	"github.com/cifix/pipeline/internal/pipeline/runtime"
	"github.com/cifix/pipeline/internal/platform/dbctx"
)

func (s *Stage) Run(ctx *runtime.Context) (runtime.Outcome, error) {
	workingDir := ctx.PayloadString("working_directory")
	buildTool := ctx.PayloadString("build_tool")
	if workingDir == "" {
		err := fmt.Errorf("missing working_directory in task payload")
		return runtime.FailedWith(retry.Classify(retry.ClassInput, err)), nil
	}

	runCtx, cancel := context.WithTimeout(ctx.Ctx, s.timeout)
	defer cancel()

	cmd := s.compileCommand(runCtx, buildTool)
	cmd.Dir = workingDir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	runErr := cmd.Run()
	passed := runErr == nil

	dbc := dbctx.Context{Ctx: ctx.Ctx, Tx: ctx.DB}
	if _, err := s.artifacts.CreateValidation(dbc, ctx.Task.BuildID, passed, out.String()); err != nil {
		return runtime.RetryWith(retry.Classify(retry.ClassInternal, fmt.Errorf("persist validation: %w", err))), nil
	}

	if runCtx.Err() != nil {
		return runtime.RetryWith(retry.Classify(retry.ClassTransient, fmt.Errorf("validation timed out: %w", runCtx.Err()))), nil
	}
	if !passed {
		return runtime.FailedWith(fmt.Errorf("compilation failed: %s", truncate(out.String(), 2000))), nil
	}

	ctx.Log.Info("validation passed", "build_tool", buildTool)

	return runtime.CompletedWith(nil), nil
}

func (s *Stage) compileCommand(ctx context.Context, buildTool string) *exec.Cmd {
	switch buildTool {
	case "gradle":
		if s.runTests {
			return exec.CommandContext(ctx, "./gradlew", "test")
		}
		return exec.CommandContext(ctx, "./gradlew", "compileJava")
	default:
		if s.runTests {
			return exec.CommandContext(ctx, "mvn", "-q", "test")
		}
		return exec.CommandContext(ctx, "mvn", "-q", "-DskipTests=true", "compile")
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}
