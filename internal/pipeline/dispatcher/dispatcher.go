// Package dispatcher runs the worker pool that leases tasks, dispatches
// them to stage handlers, and applies their outcomes.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/cifix/pipeline/internal/data/repos/artifacts"
	"github.com/cifix/pipeline/internal/data/repos/builds"
	"github.com/cifix/pipeline/internal/data/repos/tasks"
	"github.com/cifix/pipeline/internal/domain"
	"github.com/cifix/pipeline/internal/metrics"
	"github.com/cifix/pipeline/internal/pipeline/retry"
	"github.com/cifix/pipeline/internal/pipeline/runtime"
	"github.com/cifix/pipeline/internal/pipeline/topology"
	"github.com/cifix/pipeline/internal/platform/ctxutil"
	"github.com/cifix/pipeline/internal/platform/dbctx"
	"github.com/cifix/pipeline/internal/platform/logger"
)

// Dispatcher is the worker pool's infrastructure: it knows nothing about
// what a stage does, only how to lease, run, and settle one.
type Dispatcher struct {
	db        *gorm.DB
	log       *logger.Logger
	taskRepo  tasks.TaskRepo
	buildRepo builds.BuildRepo
	artifacts artifacts.ArtifactRepo
	registry  *runtime.Registry

	leasePolicy tasks.LeasePolicy
	retryPolicy retry.Policy

	sems map[string]*semaphore.Weighted
}

// Config controls per-stage-kind concurrency, the tick interval, and the
// backoff policy applied to retryable outcomes. It is always built from
// config.Config (see internal/app), never from hardcoded defaults, so
// the retry_base_seconds/retry_max_seconds/retry_jitter_factor knobs
// actually reach the running dispatcher.
type Config struct {
	TickInterval    time.Duration
	LeaseTimeout    time.Duration
	PerKindCapacity int64
	RetryPolicy     retry.Policy
}

func New(db *gorm.DB, baseLog *logger.Logger, taskRepo tasks.TaskRepo, buildRepo builds.BuildRepo, artifactRepo artifacts.ArtifactRepo, registry *runtime.Registry, cfg Config) *Dispatcher {
	sems := make(map[string]*semaphore.Weighted, len(topology.Order))
	for _, kind := range topology.Order {
		sems[kind] = semaphore.NewWeighted(cfg.PerKindCapacity)
	}
	return &Dispatcher{
		db:        db,
		log:       baseLog.With("component", "Dispatcher"),
		taskRepo:  taskRepo,
		buildRepo: buildRepo,
		artifacts: artifactRepo,
		registry:  registry,
		leasePolicy: tasks.LeasePolicy{
			LeaseTimeout: cfg.LeaseTimeout,
		},
		retryPolicy: cfg.RetryPolicy,
		sems:        sems,
	}
}

// Start spawns one polling goroutine per stage kind. Each goroutine ticks
// independently so a backlog in one stage never starves another.
func (d *Dispatcher) Start(ctx context.Context, cfg Config) {
	interval := cfg.TickInterval
	if interval <= 0 {
		interval = time.Second
	}
	for _, kind := range topology.Order {
		go d.runLoop(ctx, kind, interval)
	}
}

func (d *Dispatcher) runLoop(ctx context.Context, kind string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.log.Info("dispatcher loop stopped", "kind", kind)
			return
		case <-ticker.C:
			d.tick(ctx, kind)
		}
	}
}

// tick attempts to acquire a concurrency slot for kind and, if one is
// available, leases and runs the next eligible task of that kind.
func (d *Dispatcher) tick(ctx context.Context, kind string) {
	sem := d.sems[kind]
	if !sem.TryAcquire(1) {
		return
	}
	go func() {
		defer sem.Release(1)
		d.leaseAndRun(ctx, kind)
	}()
}

func (d *Dispatcher) leaseAndRun(ctx context.Context, kind string) {
	task, err := d.taskRepo.LeaseNext(dbctx.Context{Ctx: ctx, Tx: d.db}, kind, d.leasePolicy)
	if err != nil {
		d.log.Warn("lease failed", "kind", kind, "error", err)
		return
	}
	if task == nil {
		return
	}

	corrID := fmt.Sprintf("orch-%d-%d-%d", task.BuildID, task.ID, time.Now().UnixMilli())
	runCtx := ctxutil.WithTraceData(ctx, &ctxutil.TraceData{CorrelationID: corrID})
	taskLog := d.log.With("correlation_id", corrID, "task_id", task.ID, "build_id", task.BuildID, "kind", kind)

	build, err := d.buildRepo.Find(dbctx.Context{Ctx: runCtx, Tx: d.db}, task.BuildID)
	if err != nil || build == nil {
		taskLog.Error("build lookup failed", "error", err)
		d.settleFailed(runCtx, task, fmt.Errorf("build %d not found: %w", task.BuildID, err))
		return
	}

	handler, ok := d.registry.Get(kind)
	if !ok {
		taskLog.Error("no handler registered for kind")
		d.settleFailed(runCtx, task, fmt.Errorf("no handler registered for kind=%s", kind))
		return
	}

	stageCtx := runtime.NewContext(runCtx, d.db, taskLog, task, build)

	started := time.Now()
	outcome, runErr := d.safeRun(handler, stageCtx, kind)
	if runErr != nil && outcome.Kind != runtime.Failed && outcome.Kind != runtime.Retry {
		outcome = runtime.FailedWith(runErr)
	}
	metrics.StageDuration.WithLabelValues(kind, outcome.Kind.String()).Observe(time.Since(started).Seconds())

	switch outcome.Kind {
	case runtime.Completed:
		d.settleCompleted(runCtx, task, build, outcome)
	case runtime.Retry:
		metrics.RetriesTotal.WithLabelValues(kind).Inc()
		d.settleRetry(runCtx, task, outcome.Err)
	case runtime.Failed:
		d.settleFailed(runCtx, task, outcome.Err)
	default:
		d.settleFailed(runCtx, task, fmt.Errorf("handler returned unknown outcome kind"))
	}
}

// safeRun converts a handler panic into a Failed outcome rather than
// letting it crash a dispatcher goroutine.
func (d *Dispatcher) safeRun(h runtime.Handler, ctx *runtime.Context, kind string) (outcome runtime.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.PanicsTotal.WithLabelValues(kind).Inc()
			outcome = runtime.FailedWith(fmt.Errorf("panic in stage handler: %v", r))
			err = outcome.Err
		}
	}()
	return h.Run(ctx)
}

func (d *Dispatcher) settleCompleted(ctx context.Context, task *domain.Task, build *domain.Build, outcome runtime.Outcome) {
	dbc := dbctx.Context{Ctx: ctx, Tx: d.db}
	if _, err := d.taskRepo.UpdateStatus(dbc, task.ID, task.LeaseGeneration, domain.TaskCompleted, "", nil, nil); err != nil {
		d.log.Warn("failed to mark task completed", "task_id", task.ID, "error", err)
	}

	next := topology.Next(task.Kind)
	if next == "" {
		if err := d.buildRepo.MarkStatus(dbc, build.ID, domain.BuildCompleted); err != nil {
			d.log.Warn("failed to mark build completed", "build_id", build.ID, "error", err)
		}
		metrics.BuildsTotal.WithLabelValues(domain.BuildCompleted).Inc()
		return
	}

	payload := topology.MergePayload(decodeTaskPayload(task), outcome.NextPayload)

	if _, err := d.taskRepo.Enqueue(dbc, build.ID, next, toJSON(payload), domain.DefaultMaxAttempts); err != nil {
		d.log.Error("failed to enqueue successor task", "build_id", build.ID, "next_kind", next, "error", err)
	}
}

func (d *Dispatcher) settleRetry(ctx context.Context, task *domain.Task, cause error) {
	dbc := dbctx.Context{Ctx: ctx, Tx: d.db}
	attempt := task.Attempt
	if retry.ShouldRetry(cause, attempt, task.MaxAttempts) {
		delay := d.retryPolicy.Delay(attempt)
		retryAfter := time.Now().Add(delay)
		msg := ""
		if cause != nil {
			msg = cause.Error()
		}
		// Carry the failure reason into the next attempt's payload so the
		// handler can adapt, e.g. the patch stage re-prompting the LLM
		// with the prior compile errors.
		payload := decodeTaskPayload(task)
		payload["previous_failure_reason"] = msg
		if _, err := d.taskRepo.UpdateStatus(dbc, task.ID, task.LeaseGeneration, domain.TaskRetry, msg, &retryAfter, toJSON(payload)); err != nil {
			d.log.Warn("failed to schedule retry", "task_id", task.ID, "error", err)
		}
		return
	}
	d.settleFailed(ctx, task, cause)
}

func (d *Dispatcher) settleFailed(ctx context.Context, task *domain.Task, cause error) {
	dbc := dbctx.Context{Ctx: ctx, Tx: d.db}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if _, err := d.taskRepo.UpdateStatus(dbc, task.ID, task.LeaseGeneration, domain.TaskFailed, msg, nil, nil); err != nil {
		d.log.Warn("failed to mark task failed", "task_id", task.ID, "error", err)
	}
	if err := d.buildRepo.MarkStatus(dbc, task.BuildID, domain.BuildFailed); err != nil {
		d.log.Warn("failed to mark build failed", "build_id", task.BuildID, "error", err)
	} else {
		metrics.BuildsTotal.WithLabelValues(domain.BuildFailed).Inc()
	}

	// Every terminally failed build still gets exactly one notification,
	// even when the failure happens before the notify stage ever runs.
	if task.Kind == domain.StageNotify {
		return
	}
	has, err := d.artifacts.HasNotificationOfType(dbc, task.BuildID, domain.NotificationManualIntervention)
	if err != nil || has {
		return
	}
	payload := topology.MergePayload(decodeTaskPayload(task), map[string]any{
		"notification_type": domain.NotificationManualIntervention,
		"failure_reason":    msg,
	})
	if _, err := d.taskRepo.Enqueue(dbc, task.BuildID, domain.StageNotify, toJSON(payload), domain.DefaultMaxAttempts); err != nil {
		d.log.Error("failed to enqueue failure notification", "build_id", task.BuildID, "error", err)
	}
}

func decodeTaskPayload(task *domain.Task) map[string]any {
	out := map[string]any{}
	if task == nil || len(task.Payload) == 0 {
		return out
	}
	if err := json.Unmarshal(task.Payload, &out); err != nil {
		return map[string]any{}
	}
	return out
}

func toJSON(m map[string]any) datatypes.JSON {
	b, err := json.Marshal(m)
	if err != nil {
		return datatypes.JSON([]byte("{}"))
	}
	return datatypes.JSON(b)
}
