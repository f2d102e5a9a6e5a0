// Package retry implements the backoff policy and error taxonomy the
// dispatcher uses to decide whether a failed stage should be retried.
package retry

import (
	"errors"
	"math"
	"math/rand"
	"time"
)

// Class categorizes a stage error for retry purposes.
type Class int

const (
	// ClassTransient covers network blips, timeouts, and other conditions
	// expected to clear on their own.
	ClassTransient Class = iota
	// ClassCollaborator covers a 5xx or rate-limit response from an
	// external collaborator (LLM, code host, mail relay).
	ClassCollaborator
	// ClassInternal covers an unexpected local error worth one retry in
	// case it was a transient resource blip (disk, memory).
	ClassInternal
	// ClassInput covers malformed or missing payload fields. Never
	// retryable: the input will not change on its own.
	ClassInput
	// ClassSecurity covers rejected paths, SSRF targets, or signature
	// failures. Never retryable.
	ClassSecurity
	// ClassSafety covers a patch or diff that fails safety validation.
	// Never retryable.
	ClassSafety
)

// Retryable reports whether a class is eligible for a retry at all,
// independent of remaining attempt budget.
func (c Class) Retryable() bool {
	switch c {
	case ClassTransient, ClassCollaborator, ClassInternal:
		return true
	default:
		return false
	}
}

// ClassifiedError pairs an underlying error with its retry class.
type ClassifiedError struct {
	Class Class
	Err   error
}

func (e *ClassifiedError) Error() string { return e.Err.Error() }
func (e *ClassifiedError) Unwrap() error { return e.Err }

func Classify(class Class, err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Class: class, Err: err}
}

// ClassOf extracts the Class from err, defaulting to ClassInternal for
// errors that were never classified (an unwrapped panic recovery, say).
func ClassOf(err error) Class {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class
	}
	return ClassInternal
}

// Policy computes the delay before a stage's next attempt.
type Policy struct {
	Base    time.Duration
	Max     time.Duration
	MaxJitter float64 // fraction of the computed delay, e.g. 0.1 = up to 10%
}

func DefaultPolicy() Policy {
	return Policy{Base: 2 * time.Second, Max: 5 * time.Minute, MaxJitter: 0.1}
}

// Delay returns the backoff for the given attempt number (1-indexed),
// computed as base * 2^(attempt-1), capped at Max, with uniform jitter
// in [0, MaxJitter] added on top.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := p.Base
	if base <= 0 {
		base = DefaultPolicy().Base
	}
	max := p.Max
	if max <= 0 {
		max = DefaultPolicy().Max
	}

	factor := math.Pow(2, float64(attempt-1))
	d := time.Duration(float64(base) * factor)
	if d > max || d <= 0 {
		d = max
	}

	jitter := p.MaxJitter
	if jitter < 0 {
		jitter = 0
	}
	if jitter > 0 {
		d = time.Duration(float64(d) * (1 + rand.Float64()*jitter))
	}
	return d
}

// ShouldRetry reports whether a task with the given attempt count and
// classified error should be retried, honoring both the error's class and
// the task's remaining attempt budget.
func ShouldRetry(err error, attempt, maxAttempts int) bool {
	if err == nil {
		return false
	}
	class := ClassOf(err)
	if !class.Retryable() {
		return false
	}
	// An internal error gets one retry: the run after the first attempt.
	if class == ClassInternal && maxAttempts > 2 {
		maxAttempts = 2
	}
	return attempt < maxAttempts
}
