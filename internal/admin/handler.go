// Package admin exposes the read-mostly operator surface over builds,
// tasks, and queue health described in spec.md's admin API section.
package admin

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cifix/pipeline/internal/data/db"
	"github.com/cifix/pipeline/internal/data/repos/builds"
	"github.com/cifix/pipeline/internal/data/repos/tasks"
	"github.com/cifix/pipeline/internal/domain"
	"github.com/cifix/pipeline/internal/platform/dbctx"
	"github.com/cifix/pipeline/internal/platform/logger"
)

// pendingDegradedThreshold is the pending-task count above which the
// composite health endpoint reports "degraded" instead of "up".
const pendingDegradedThreshold = 100

type Handler struct {
	db        *db.PostgresService
	buildRepo builds.BuildRepo
	taskRepo  tasks.TaskRepo
	log       *logger.Logger
}

func NewHandler(pg *db.PostgresService, buildRepo builds.BuildRepo, taskRepo tasks.TaskRepo, baseLog *logger.Logger) *Handler {
	return &Handler{db: pg, buildRepo: buildRepo, taskRepo: taskRepo, log: baseLog.With("component", "AdminHandler")}
}

// Status reports queue counts by status/kind, build counts by state,
// connection-pool stats, memory info, and a timestamp.
func (h *Handler) Status(c *gin.Context) {
	dbc := dbctx.Context{Ctx: c.Request.Context()}

	tasksByStatus, err := h.taskRepo.CountByStatus(dbc)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	tasksByKind, err := h.taskRepo.CountByKind(dbc)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	buildsByStatus, err := h.buildRepo.CountByStatus(dbc)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	sqlDB, err := h.db.DB().DB()
	pool := gin.H{}
	if err == nil {
		stats := sqlDB.Stats()
		pool = gin.H{
			"open_connections": stats.OpenConnections,
			"in_use":           stats.InUse,
			"idle":             stats.Idle,
			"wait_count":       stats.WaitCount,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"tasks_by_status":  tasksByStatus,
		"tasks_by_kind":    tasksByKind,
		"builds_by_status": buildsByStatus,
		"db_pool":          pool,
		"memory": gin.H{
			"alloc_bytes": memStats.Alloc,
			"heap_bytes":  memStats.HeapAlloc,
			"goroutines":  runtime.NumGoroutine(),
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *Handler) ListTasks(c *gin.Context) {
	page, size := pagination(c)
	status := c.Query("status")
	list, total, err := h.taskRepo.List(dbctx.Context{Ctx: c.Request.Context()}, status, page, size)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": list, "total": total, "page": page, "size": size})
}

func (h *Handler) GetTask(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return
	}
	task, err := h.taskRepo.Find(dbctx.Context{Ctx: c.Request.Context()}, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if task == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	c.JSON(http.StatusOK, task)
}

// RetryTask resets a terminally failed task to pending with attempt=0,
// the only sanctioned way it re-enters the queue.
func (h *Handler) RetryTask(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	task, err := h.taskRepo.Find(dbc, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if task == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	if task.Status != domain.TaskFailed {
		c.JSON(http.StatusConflict, gin.H{"error": "only a failed task can be retried"})
		return
	}
	if err := h.taskRepo.ResetForRetry(dbc, id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"retried": true})
}

func (h *Handler) ListBuilds(c *gin.Context) {
	page, size := pagination(c)
	status := c.Query("status")
	list, total, err := h.buildRepo.List(dbctx.Context{Ctx: c.Request.Context()}, status, page, size)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"builds": list, "total": total, "page": page, "size": size})
}

func (h *Handler) GetBuild(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid build id"})
		return
	}
	build, err := h.buildRepo.Find(dbctx.Context{Ctx: c.Request.Context()}, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if build == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "build not found"})
		return
	}
	c.JSON(http.StatusOK, build)
}

func (h *Handler) ListBuildTasks(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid build id"})
		return
	}
	list, err := h.taskRepo.ListByBuild(dbctx.Context{Ctx: c.Request.Context()}, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": list})
}

// RetryBuild requeues every failed task belonging to a build.
func (h *Handler) RetryBuild(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid build id"})
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	list, err := h.taskRepo.ListByBuild(dbc, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	retried := 0
	for _, t := range list {
		if t.Status != domain.TaskFailed {
			continue
		}
		if err := h.taskRepo.ResetForRetry(dbc, t.ID); err != nil {
			h.log.Warn("failed to reset task for retry", "task_id", t.ID, "error", err)
			continue
		}
		retried++
	}
	c.JSON(http.StatusOK, gin.H{"retried_tasks": retried})
}

func (h *Handler) QueueStats(c *gin.Context) {
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	byStatus, err := h.taskRepo.CountByStatus(dbc)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	byKind, err := h.taskRepo.CountByKind(dbc)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"by_status": byStatus, "by_kind": byKind})
}

// Health reports a composite status: "down" if the database is
// unreachable, "degraded" if pending tasks exceed the threshold, else "up".
func (h *Handler) Health(c *gin.Context) {
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	byStatus, err := h.taskRepo.CountByStatus(dbc)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "down", "error": err.Error()})
		return
	}
	if byStatus[domain.TaskPending] > pendingDegradedThreshold {
		c.JSON(http.StatusOK, gin.H{"status": "degraded", "pending": byStatus[domain.TaskPending]})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "up"})
}

func pagination(c *gin.Context) (page, size int) {
	page, _ = strconv.Atoi(c.Query("page"))
	size, _ = strconv.Atoi(c.Query("size"))
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 200 {
		size = 20
	}
	return page, size
}

func parseID(raw string) (uint, error) {
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(v), nil
}
