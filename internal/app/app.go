// Package app wires every pipeline component together: the database,
// repositories, stage handlers, dispatcher, cleanup sweeper, and HTTP
// server. It mirrors the teacher's single composition-root convention.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/cifix/pipeline/internal/admin"
	"github.com/cifix/pipeline/internal/cleanup"
	"github.com/cifix/pipeline/internal/collaborators/codehost"
	"github.com/cifix/pipeline/internal/collaborators/git"
	"github.com/cifix/pipeline/internal/collaborators/llm"
	"github.com/cifix/pipeline/internal/collaborators/mail"
	"github.com/cifix/pipeline/internal/config"
	"github.com/cifix/pipeline/internal/data/db"
	"github.com/cifix/pipeline/internal/data/repos/artifacts"
	"github.com/cifix/pipeline/internal/data/repos/builds"
	"github.com/cifix/pipeline/internal/data/repos/tasks"
	"github.com/cifix/pipeline/internal/httpapi"
	"github.com/cifix/pipeline/internal/ingress"
	"github.com/cifix/pipeline/internal/pipeline/dispatcher"
	"github.com/cifix/pipeline/internal/pipeline/retry"
	"github.com/cifix/pipeline/internal/pipeline/runtime"
	"github.com/cifix/pipeline/internal/pipeline/stages/createpr"
	"github.com/cifix/pipeline/internal/pipeline/stages/notify"
	"github.com/cifix/pipeline/internal/pipeline/stages/patch"
	"github.com/cifix/pipeline/internal/pipeline/stages/plan"
	"github.com/cifix/pipeline/internal/pipeline/stages/repo"
	"github.com/cifix/pipeline/internal/pipeline/stages/retrieve"
	"github.com/cifix/pipeline/internal/pipeline/stages/validate"
	"github.com/cifix/pipeline/internal/platform/logger"
)

// App holds every long-lived component the process runs.
type App struct {
	cfg        config.Config
	log        *logger.Logger
	pg         *db.PostgresService
	dispatcher *dispatcher.Dispatcher
	sweeper    *cleanup.Sweeper
	server     *httpapi.Server
}

// New constructs the full dependency graph: repos, collaborator
// adapters, stage handlers registered into a runtime.Registry, the
// dispatcher, the cleanup sweeper, and the HTTP server.
func New(cfg config.Config, baseLog *logger.Logger) (*App, error) {
	pg, err := db.NewPostgresService(baseLog)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	buildRepo := builds.NewBuildRepo(pg.DB(), baseLog)
	taskRepo := tasks.NewTaskRepo(pg.DB(), baseLog)
	artifactRepo := artifacts.NewArtifactRepo(pg.DB(), baseLog)

	gitClient := git.NewExecClient(2 * time.Minute)
	llmClient := llm.NewHTTPClient()
	codehostClient := codehost.NewHTTPClient()
	mailClient := mail.NewSMTPClient()

	registry := runtime.NewRegistry()
	stageHandlers := []runtime.Handler{
		plan.New(artifactRepo),
		repo.New(gitClient, cfg.WorkRoot),
		retrieve.New(artifactRepo),
		patch.New(llmClient, gitClient, artifactRepo),
		validate.New(artifactRepo),
		createpr.New(gitClient, codehostClient, artifactRepo),
		notify.New(mailClient, artifactRepo),
	}
	for _, h := range stageHandlers {
		if err := registry.Register(h); err != nil {
			return nil, fmt.Errorf("register stage handler: %w", err)
		}
	}

	dispatcherCfg := dispatcherConfig(cfg)
	disp := dispatcher.New(pg.DB(), baseLog, taskRepo, buildRepo, artifactRepo, registry, dispatcherCfg)

	sweeper := cleanup.NewSweeper(cfg.WorkRoot, cfg.RetentionDuration(), buildRepo, baseLog)

	ingressHandler := ingress.NewHandler(cfg, buildRepo, taskRepo, baseLog)
	adminHandler := admin.NewHandler(pg, buildRepo, taskRepo, baseLog)
	server := httpapi.NewServer(httpapi.RouterConfig{
		IngressHandler: ingressHandler,
		AdminHandler:   adminHandler,
	})

	return &App{
		cfg:        cfg,
		log:        baseLog.With("component", "App"),
		pg:         pg,
		dispatcher: disp,
		sweeper:    sweeper,
		server:     server,
	}, nil
}

// Run starts the dispatcher and cleanup sweeper in the background and
// blocks serving HTTP until the process exits or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.dispatcher.Start(ctx, dispatcherConfig(a.cfg))
	go a.sweeper.Start(ctx, time.Hour)

	a.log.Info("starting http server", "address", a.cfg.HTTPAddress)
	return a.server.Run(a.cfg.HTTPAddress)
}

// dispatcherConfig translates the process-wide config surface into the
// dispatcher's own Config, so the retry_base_seconds/retry_max_seconds/
// retry_jitter_factor knobs loaded in config.Load actually reach the
// backoff policy applied to retryable outcomes.
func dispatcherConfig(cfg config.Config) dispatcher.Config {
	return dispatcher.Config{
		TickInterval:    time.Duration(cfg.TickIntervalMS) * time.Millisecond,
		LeaseTimeout:    cfg.LeaseTimeout(),
		PerKindCapacity: int64(cfg.MaxConcurrentPerKind),
		RetryPolicy: retry.Policy{
			Base:      cfg.RetryBase(),
			Max:       cfg.RetryMax(),
			MaxJitter: cfg.RetryJitterFactor,
		},
	}
}
