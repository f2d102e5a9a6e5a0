// Package middleware wires Gin request handling with the correlation id
// and logging conventions the rest of the pipeline uses.
package middleware

import (
	"github.com/google/uuid"
	"github.com/gin-gonic/gin"

	"github.com/cifix/pipeline/internal/platform/ctxutil"
)

// AttachRequestContext installs a correlation id into the request
// context, generating one if the caller did not send X-Request-ID.
func AttachRequestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := ctxutil.WithTraceData(c.Request.Context(), &ctxutil.TraceData{
			RequestID:     reqID,
			CorrelationID: reqID,
		})
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-ID", reqID)
		c.Next()
	}
}
