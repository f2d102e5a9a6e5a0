package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/cifix/pipeline/internal/domain"
	"github.com/cifix/pipeline/internal/platform/ctxutil"
	"github.com/cifix/pipeline/internal/platform/logger"
)

// Context is the execution handle a stage handler receives. It wraps the
// leased task, the build it belongs to, and the decoded payload; it never
// exposes the repositories directly so handlers cannot reach past the
// outcome contract to mutate task state themselves.
type Context struct {
	Ctx   context.Context
	DB    *gorm.DB
	Log   *logger.Logger
	Task  *domain.Task
	Build *domain.Build

	payload map[string]any
}

// NewContext decodes Task.Payload eagerly so handlers can read inputs via
// Payload()/PayloadString() without each re-implementing JSON decoding.
func NewContext(ctx context.Context, db *gorm.DB, log *logger.Logger, task *domain.Task, build *domain.Build) *Context {
	c := &Context{Ctx: ctx, DB: db, Log: log, Task: task, Build: build}
	c.decodePayload()
	return c
}

func (c *Context) decodePayload() {
	if c.Task == nil || len(c.Task.Payload) == 0 {
		c.payload = map[string]any{}
		return
	}
	var m map[string]any
	if err := json.Unmarshal(c.Task.Payload, &m); err != nil {
		c.payload = map[string]any{}
		return
	}
	c.payload = m
}

// Payload returns the decoded task payload. Never nil.
func (c *Context) Payload() map[string]any {
	if c.payload == nil {
		c.payload = map[string]any{}
	}
	return c.payload
}

// PayloadString reads a payload field as a string, defaulting to "".
func (c *Context) PayloadString(key string) string {
	v, ok := c.Payload()[key]
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// PayloadJSON re-marshals the payload, for handlers that pass it through
// unchanged to a collaborator call.
func (c *Context) PayloadJSON() datatypes.JSON {
	b, err := json.Marshal(c.Payload())
	if err != nil {
		return datatypes.JSON([]byte("{}"))
	}
	return datatypes.JSON(b)
}

// CorrelationID returns the orchestration correlation id threaded through
// the context for this task's run, or "" if none was installed.
func (c *Context) CorrelationID() string {
	return ctxutil.CorrelationID(c.Ctx)
}
