package ingress

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"github.com/cifix/pipeline/internal/config"
	"github.com/cifix/pipeline/internal/data/repos/builds"
	"github.com/cifix/pipeline/internal/data/repos/tasks"
	"github.com/cifix/pipeline/internal/domain"
	"github.com/cifix/pipeline/internal/platform/dbctx"
	"github.com/cifix/pipeline/internal/platform/logger"
)

type Handler struct {
	cfg       config.Config
	buildRepo builds.BuildRepo
	taskRepo  tasks.TaskRepo
	log       *logger.Logger
}

func NewHandler(cfg config.Config, buildRepo builds.BuildRepo, taskRepo tasks.TaskRepo, baseLog *logger.Logger) *Handler {
	return &Handler{cfg: cfg, buildRepo: buildRepo, taskRepo: taskRepo, log: baseLog.With("component", "IngressHandler")}
}

// HandleCI implements POST /webhook/ci.
func (h *Handler) HandleCI(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, int64(h.cfg.MaxLogBytes)+4096))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	if h.cfg.SignatureRequired {
		sigHeader := c.GetHeader("X-CI-Signature")
		if err := VerifySignature(sigHeader, body, h.cfg.SignatureSecret); err != nil {
			h.log.Warn("webhook signature rejected", "error", err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}
		if err := VerifyTimestamp(c.GetHeader("X-Request-Timestamp"), h.cfg.SignatureMaxSkew()); err != nil {
			h.log.Warn("webhook timestamp rejected", "error", err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid timestamp"})
			return
		}
	}

	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed JSON body"})
		return
	}
	if err := Validate(payload, h.cfg.MaxLogBytes); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ingestPayload, err := json.Marshal(payload)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode ingestion payload"})
		return
	}

	dbc := dbctx.Context{Ctx: c.Request.Context()}
	build, err := h.buildRepo.Create(dbc, payload.Job, payload.BuildNumber, payload.Branch, payload.RepoURL, payload.CommitSHA, datatypes.JSON(ingestPayload))
	if err != nil {
		if errors.Is(err, builds.ErrDuplicateBuild) {
			c.JSON(http.StatusConflict, gin.H{"error": "build already ingested"})
			return
		}
		h.log.Error("failed to create build", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to persist build"})
		return
	}

	taskPayload := map[string]any{
		"repo_url":   payload.RepoURL,
		"branch":     payload.Branch,
		"commit_sha": payload.CommitSHA,
		"build_logs": payload.BuildLogs,
		"scm":        "git",
	}
	taskPayloadJSON, err := json.Marshal(taskPayload)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode task payload"})
		return
	}

	if _, err := h.taskRepo.Enqueue(dbc, build.ID, domain.StagePlan, datatypes.JSON(taskPayloadJSON), h.cfg.DefaultMaxAttempts); err != nil {
		h.log.Error("failed to enqueue initial task", "build_id", build.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue pipeline"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"build_id": build.ID})
}
