// Package tasks implements the durable, leaseable task queue described in
// spec.md §4.1, generalizing the teacher's single-job-type claim query to
// one keyed by stage kind, with a lease-generation fencing token.
package tasks

import (
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cifix/pipeline/internal/domain"
	"github.com/cifix/pipeline/internal/platform/dbctx"
	"github.com/cifix/pipeline/internal/platform/logger"
)

// LeasePolicy parameterizes LeaseNext's eligibility window.
type LeasePolicy struct {
	LeaseTimeout time.Duration
}

type TaskRepo interface {
	// Enqueue writes a new pending task for buildID/kind with the given payload.
	Enqueue(dbc dbctx.Context, buildID uint, kind string, payload datatypes.JSON, maxAttempts int) (*domain.Task, error)
	// LeaseNext atomically claims the oldest eligible task of kind and
	// returns it with attempt and lease_generation incremented.
	LeaseNext(dbc dbctx.Context, kind string, policy LeasePolicy) (*domain.Task, error)
	// UpdateStatus writes status/error for a task, guarded by the lease
	// generation the caller observed at lease time. A mismatched
	// generation is a no-op (the lease has since been reassigned). A
	// non-nil payload replaces the task's payload column, used by the
	// dispatcher to inject previous_failure_reason before a retry.
	UpdateStatus(dbc dbctx.Context, taskID uint, leaseGeneration int, status string, errMsg string, retryAfter *time.Time, payload datatypes.JSON) (bool, error)
	// Find looks up a task by id for administrative operations.
	Find(dbc dbctx.Context, taskID uint) (*domain.Task, error)
	// ListByBuild returns every task belonging to a build.
	ListByBuild(dbc dbctx.Context, buildID uint) ([]*domain.Task, error)
	// List returns a paginated, optionally status-filtered scan across all
	// tasks, for the admin task listing surface.
	List(dbc dbctx.Context, status string, page, size int) ([]*domain.Task, int64, error)
	// ResetForRetry clears a failed task back to pending with attempt=0,
	// the only sanctioned way a terminally-failed task re-enters the queue.
	ResetForRetry(dbc dbctx.Context, taskID uint) error
	// CountByStatus returns per-status counts across all tasks, for the
	// admin status surface.
	CountByStatus(dbc dbctx.Context) (map[string]int64, error)
	// CountByKind returns per-stage-kind counts across all tasks.
	CountByKind(dbc dbctx.Context) (map[string]int64, error)
}

type taskRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTaskRepo(gdb *gorm.DB, baseLog *logger.Logger) TaskRepo {
	return &taskRepo{db: gdb, log: baseLog.With("repo", "TaskRepo")}
}

func (r *taskRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *taskRepo) Enqueue(dbc dbctx.Context, buildID uint, kind string, payload datatypes.JSON, maxAttempts int) (*domain.Task, error) {
	if maxAttempts <= 0 {
		maxAttempts = domain.DefaultMaxAttempts
	}
	task := &domain.Task{
		BuildID:     buildID,
		Kind:        kind,
		Status:      domain.TaskPending,
		Attempt:     0,
		MaxAttempts: maxAttempts,
		Payload:     payload,
	}
	if err := r.tx(dbc).WithContext(dbc.Ctx).Create(task).Error; err != nil {
		return nil, err
	}
	return task, nil
}

// LeaseNext selects the oldest task of kind that is pending, a due retry,
// or an in_progress task whose lease has expired, locks the row with
// SKIP LOCKED so concurrent callers never observe the same task, and
// transitions it to in_progress with attempt and lease_generation bumped.
//
// This mirrors the teacher's ClaimNextRunnable transaction shape
// (internal/data/repos/jobs/job_run.go) generalized from one job_type
// column to a stage kind plus the lease-timeout branch spec.md §5 adds.
func (r *taskRepo) LeaseNext(dbc dbctx.Context, kind string, policy LeasePolicy) (*domain.Task, error) {
	now := time.Now()
	staleCutoff := now.Add(-policy.LeaseTimeout)

	var claimed *domain.Task
	err := r.tx(dbc).WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		var task domain.Task
		q := txx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("kind = ?", kind).
			Where(`
				(
					status = ?
					OR (status = ? AND (retry_after IS NULL OR retry_after <= ?))
					OR (status = ? AND updated_at < ?)
				)
			`, domain.TaskPending, domain.TaskRetry, now, domain.TaskInProgress, staleCutoff).
			Order("created_at ASC")

		qErr := q.First(&task).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}

		uErr := txx.Model(&domain.Task{}).
			Where("id = ?", task.ID).
			Updates(map[string]interface{}{
				"status":           domain.TaskInProgress,
				"attempt":          gorm.Expr("attempt + 1"),
				"lease_generation": gorm.Expr("lease_generation + 1"),
				"retry_after":      nil,
				"updated_at":       now,
			}).Error
		if uErr != nil {
			return uErr
		}
		task.Status = domain.TaskInProgress
		task.Attempt++
		task.LeaseGeneration++
		claimed = &task
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *taskRepo) UpdateStatus(dbc dbctx.Context, taskID uint, leaseGeneration int, status string, errMsg string, retryAfter *time.Time, payload datatypes.JSON) (bool, error) {
	now := time.Now()
	updates := map[string]interface{}{
		"status":      status,
		"last_error":  errMsg,
		"retry_after": retryAfter,
		"updated_at":  now,
	}
	if payload != nil {
		updates["payload"] = payload
	}
	res := r.tx(dbc).WithContext(dbc.Ctx).
		Model(&domain.Task{}).
		Where("id = ? AND lease_generation = ?", taskID, leaseGeneration).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		r.log.Warn("stale task update discarded (lease generation mismatch)", "task_id", taskID, "observed_generation", leaseGeneration)
		return false, nil
	}
	return true, nil
}

func (r *taskRepo) Find(dbc dbctx.Context, taskID uint) (*domain.Task, error) {
	var task domain.Task
	err := r.tx(dbc).WithContext(dbc.Ctx).Where("id = ?", taskID).First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *taskRepo) ListByBuild(dbc dbctx.Context, buildID uint) ([]*domain.Task, error) {
	var out []*domain.Task
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Where("build_id = ?", buildID).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *taskRepo) List(dbc dbctx.Context, status string, page, size int) ([]*domain.Task, int64, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 200 {
		size = 20
	}
	q := r.tx(dbc).WithContext(dbc.Ctx).Model(&domain.Task{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []*domain.Task
	if err := q.Order("created_at DESC").
		Offset((page - 1) * size).Limit(size).
		Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *taskRepo) ResetForRetry(dbc dbctx.Context, taskID uint) error {
	return r.tx(dbc).WithContext(dbc.Ctx).
		Model(&domain.Task{}).
		Where("id = ? AND status = ?", taskID, domain.TaskFailed).
		Updates(map[string]interface{}{
			"status":     domain.TaskPending,
			"attempt":    0,
			"last_error": "",
			"updated_at": time.Now(),
		}).Error
}

func (r *taskRepo) CountByStatus(dbc dbctx.Context) (map[string]int64, error) {
	type row struct {
		Status string
		Count  int64
	}
	var rows []row
	if err := r.tx(dbc).WithContext(dbc.Ctx).Model(&domain.Task{}).
		Select("status, count(*) as count").Group("status").Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, rr := range rows {
		out[rr.Status] = rr.Count
	}
	return out, nil
}

func (r *taskRepo) CountByKind(dbc dbctx.Context) (map[string]int64, error) {
	type row struct {
		Kind  string
		Count int64
	}
	var rows []row
	if err := r.tx(dbc).WithContext(dbc.Ctx).Model(&domain.Task{}).
		Select("kind, count(*) as count").Group("kind").Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, rr := range rows {
		out[rr.Kind] = rr.Count
	}
	return out, nil
}
