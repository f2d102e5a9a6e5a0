// Package topology encodes the fixed stage order every build advances
// through and the payload propagation rules between stages.
package topology

import "github.com/cifix/pipeline/internal/domain"

// Order is the pipeline's fixed stage sequence. There is no branching
// between these stages: every build that enters at "plan" either
// completes every stage or terminates at "failed" partway through, in
// which case the dispatcher enqueues a manual-intervention "notify" task
// directly instead of the remaining stages.
var Order = []string{
	domain.StagePlan,
	domain.StageRepo,
	domain.StageRetrieve,
	domain.StagePatch,
	domain.StageValidate,
	domain.StageCreatePR,
	domain.StageNotify,
}

// EssentialKeys are payload fields that must survive into every
// downstream stage's task regardless of what an individual stage's
// outcome carries forward, because later stages (createpr, notify) need
// the original build identity even though the intervening stages never
// touch those fields themselves. This also includes fields produced by
// one stage but consumed by a non-adjacent later stage (plan_summary:
// plan -> patch; build_tool: retrieve -> validate), since an ordinary
// stage's NextPayload only overlays what the immediately preceding
// stage emitted.
var EssentialKeys = []string{
	"repo_url",
	"branch",
	"commit_sha",
	"build_logs",
	"scm",
	"working_directory",
	"fix_branch",
	"plan_summary",
	"build_tool",
}

// Next returns the stage kind that follows kind, or "" if kind is the
// last stage in the pipeline.
func Next(kind string) string {
	for i, k := range Order {
		if k == kind && i+1 < len(Order) {
			return Order[i+1]
		}
	}
	return ""
}

// IsTerminal reports whether kind is the last stage in the pipeline.
func IsTerminal(kind string) bool {
	return Next(kind) == ""
}

// MergePayload builds the next stage's task payload: it starts from the
// essential keys carried over from the current payload, then applies the
// stage's own NextPayload on top so a stage can both pass through
// identity fields and contribute new ones (e.g. patch adds "patch_id").
func MergePayload(current, next map[string]any) map[string]any {
	out := make(map[string]any, len(EssentialKeys)+len(next))
	for _, k := range EssentialKeys {
		if v, ok := current[k]; ok {
			out[k] = v
		}
	}
	for k, v := range next {
		out[k] = v
	}
	return out
}
