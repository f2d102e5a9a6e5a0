// Package dbctx bundles a request context with an optional GORM transaction.
package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context carries the ambient context.Context plus an optional transaction
// handle. Repos fall back to their own *gorm.DB when Tx is nil.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}

func Background() Context { return Context{Ctx: context.Background()} }
