// Package ctxutil threads correlation data through a context.Context.
package ctxutil

import "context"

type traceDataKey struct{}

// TraceData is the correlation identity carried through a request or a
// dispatcher tick. CorrelationID is the orch-{build}-{task}-{epoch_ms}
// identifier the dispatcher installs before invoking a stage handler.
type TraceData struct {
	TraceID       string
	RequestID     string
	CorrelationID string
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	val := ctx.Value(traceDataKey{})
	if td, ok := val.(*TraceData); ok {
		return td
	}
	return nil
}

// CorrelationID returns the correlation id installed on ctx, or "" if none.
func CorrelationID(ctx context.Context) string {
	td := GetTraceData(ctx)
	if td == nil {
		return ""
	}
	return td.CorrelationID
}
