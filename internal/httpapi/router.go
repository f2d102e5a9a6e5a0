// Package httpapi wires the Gin engine that serves ingress webhooks,
// the admin surface, health checks, and Prometheus metrics.
package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/cifix/pipeline/internal/admin"
	"github.com/cifix/pipeline/internal/httpapi/middleware"
	"github.com/cifix/pipeline/internal/ingress"
	"github.com/cifix/pipeline/internal/metrics"
)

type RouterConfig struct {
	IngressHandler *ingress.Handler
	AdminHandler   *admin.Handler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.Default()
	r.Use(middleware.AttachRequestContext())
	r.Use(middleware.CORS())

	r.GET("/healthcheck", func(c *gin.Context) { c.String(200, "ok") })
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	if cfg.IngressHandler != nil {
		r.POST("/webhook/ci", cfg.IngressHandler.HandleCI)
	}

	if cfg.AdminHandler != nil {
		adminGroup := r.Group("/admin")
		{
			adminGroup.GET("/status", cfg.AdminHandler.Status)
			adminGroup.GET("/health", cfg.AdminHandler.Health)
			adminGroup.GET("/queue/stats", cfg.AdminHandler.QueueStats)

			adminGroup.GET("/tasks", cfg.AdminHandler.ListTasks)
			adminGroup.GET("/tasks/:id", cfg.AdminHandler.GetTask)
			adminGroup.POST("/tasks/:id/retry", cfg.AdminHandler.RetryTask)

			adminGroup.GET("/builds", cfg.AdminHandler.ListBuilds)
			adminGroup.GET("/builds/:id", cfg.AdminHandler.GetBuild)
			adminGroup.GET("/builds/:id/tasks", cfg.AdminHandler.ListBuildTasks)
			adminGroup.POST("/builds/:id/retry", cfg.AdminHandler.RetryBuild)
		}
	}

	return r
}
