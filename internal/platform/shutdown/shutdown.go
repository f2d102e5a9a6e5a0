// Package shutdown provides the signal-driven context cancellation the
// entrypoint uses to stop the dispatcher and cleanup sweeper gracefully.
package shutdown

import (
	"context"
	"os/signal"
	"syscall"
)

func NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
