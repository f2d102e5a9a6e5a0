package main

import (
	"fmt"
	"os"

	"github.com/cifix/pipeline/internal/app"
	"github.com/cifix/pipeline/internal/config"
	"github.com/cifix/pipeline/internal/platform/envutil"
	"github.com/cifix/pipeline/internal/platform/logger"
	"github.com/cifix/pipeline/internal/platform/shutdown"
)

func main() {
	baseLog, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer baseLog.Sync()

	cfg := config.Load()

	a, err := app.New(cfg, baseLog)
	if err != nil {
		baseLog.Fatal("failed to initialize app", "error", err)
	}

	ctx, stop := shutdown.NotifyContext(nil)
	defer stop()

	if err := a.Run(ctx); err != nil {
		baseLog.Error("server exited", "error", err)
		os.Exit(1)
	}
}
