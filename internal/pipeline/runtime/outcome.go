package runtime

// OutcomeKind is the dispatcher-facing result of a single stage run.
//
// Handlers return an Outcome instead of mutating the task directly, unlike
// the job-run pattern this package generalizes: a stage's fix decision
// (retry with backoff vs. hand off to the next stage vs. fail the build)
// is a judgment the dispatcher needs to see explicitly so it can apply the
// shared retry policy and topology rules in one place.
type OutcomeKind int

const (
	// Completed means the stage finished and produced output the next
	// stage in the topology should consume.
	Completed OutcomeKind = iota
	// Retry means the stage hit a transient condition and should be
	// re-attempted after backoff, subject to the task's max attempts.
	Retry
	// Failed means the stage hit a non-retryable condition; the task and
	// its build are terminal.
	Failed
)

func (k OutcomeKind) String() string {
	switch k {
	case Completed:
		return "completed"
	case Retry:
		return "retry"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the value a Handler.Run returns.
type Outcome struct {
	Kind OutcomeKind

	// NextPayload carries fields the next stage's task payload should
	// include, merged over the essential keys the topology always
	// propagates. Only meaningful when Kind == Completed.
	NextPayload map[string]any

	// Err explains a Retry or Failed outcome. Nil for Completed.
	Err error
}

func CompletedWith(payload map[string]any) Outcome {
	return Outcome{Kind: Completed, NextPayload: payload}
}

func RetryWith(err error) Outcome {
	return Outcome{Kind: Retry, Err: err}
}

func FailedWith(err error) Outcome {
	return Outcome{Kind: Failed, Err: err}
}
