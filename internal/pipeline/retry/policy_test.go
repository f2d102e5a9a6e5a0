package retry

import (
	"errors"
	"testing"
	"time"
)

func TestClassOf_DefaultsToInternalWhenUnclassified(t *testing.T) {
	if got := ClassOf(errors.New("boom")); got != ClassInternal {
		t.Fatalf("ClassOf(unclassified) = %v, want ClassInternal", got)
	}
}

func TestClassOf_RoundTrips(t *testing.T) {
	err := Classify(ClassSafety, errors.New("dangerous diff"))
	if got := ClassOf(err); got != ClassSafety {
		t.Fatalf("ClassOf = %v, want ClassSafety", got)
	}
}

func TestClassify_NilErrorReturnsNil(t *testing.T) {
	if err := Classify(ClassTransient, nil); err != nil {
		t.Fatalf("Classify(nil) = %v, want nil", err)
	}
}

func TestClass_Retryable(t *testing.T) {
	cases := []struct {
		class Class
		want  bool
	}{
		{ClassTransient, true},
		{ClassCollaborator, true},
		{ClassInternal, true},
		{ClassInput, false},
		{ClassSecurity, false},
		{ClassSafety, false},
	}
	for _, tc := range cases {
		if got := tc.class.Retryable(); got != tc.want {
			t.Errorf("Class(%d).Retryable() = %v, want %v", tc.class, got, tc.want)
		}
	}
}

// Property 6 (spec.md §8): delay is monotonic in attempt up to the cap,
// ignoring jitter.
func TestPolicy_DelayMonotonicUpToCap(t *testing.T) {
	p := Policy{Base: 2 * time.Second, Max: 300 * time.Second, MaxJitter: 0}
	var prev time.Duration
	for attempt := 1; attempt <= 10; attempt++ {
		d := p.Delay(attempt)
		if d < prev {
			t.Fatalf("attempt %d: delay %v < previous %v", attempt, d, prev)
		}
		prev = d
	}
}

func TestPolicy_DelayCapsAtMax(t *testing.T) {
	p := Policy{Base: 2 * time.Second, Max: 10 * time.Second, MaxJitter: 0}
	d := p.Delay(20)
	if d != 10*time.Second {
		t.Fatalf("Delay(20) = %v, want capped at %v", d, p.Max)
	}
}

func TestPolicy_DelayJitterStaysWithinBound(t *testing.T) {
	p := Policy{Base: 2 * time.Second, Max: 300 * time.Second, MaxJitter: 0.1}
	base := 2 * time.Second
	for i := 0; i < 50; i++ {
		d := p.Delay(1)
		if d < base {
			t.Fatalf("Delay(1) = %v, want >= base %v", d, base)
		}
		if d > time.Duration(float64(base)*1.1)+time.Millisecond {
			t.Fatalf("Delay(1) = %v, want <= base*1.1", d)
		}
	}
}

func TestPolicy_DelayDefaultsBelowOne(t *testing.T) {
	p := Policy{Base: 2 * time.Second, Max: 300 * time.Second}
	if d := p.Delay(0); d != p.Delay(1) {
		t.Fatalf("Delay(0) = %v, want same as Delay(1) = %v", d, p.Delay(1))
	}
}

func TestDefaultPolicy_MatchesSpecDefaults(t *testing.T) {
	p := DefaultPolicy()
	if p.Base != 2*time.Second {
		t.Errorf("Base = %v, want 2s", p.Base)
	}
	if p.Max != 5*time.Minute {
		t.Errorf("Max = %v, want 5m", p.Max)
	}
	if p.MaxJitter != 0.1 {
		t.Errorf("MaxJitter = %v, want 0.1", p.MaxJitter)
	}
}

// Property 7 (spec.md §8): non-retryable errors never produce retry.
func TestShouldRetry_NonRetryableClassNeverRetries(t *testing.T) {
	err := Classify(ClassInput, errors.New("bad field"))
	if ShouldRetry(err, 0, 3) {
		t.Fatalf("ShouldRetry(non-retryable) = true, want false")
	}
}

func TestShouldRetry_SecurityAndSafetyNeverRetry(t *testing.T) {
	for _, class := range []Class{ClassSecurity, ClassSafety} {
		err := Classify(class, errors.New("rejected"))
		if ShouldRetry(err, 0, 3) {
			t.Errorf("ShouldRetry(class=%d, attempt=0) = true, want false", class)
		}
	}
}

// Boundary (spec.md §8): attempt == max_attempts with a transient error
// must not retry.
func TestShouldRetry_ExhaustionAtMaxAttempts(t *testing.T) {
	err := Classify(ClassTransient, errors.New("timeout"))
	if ShouldRetry(err, 3, 3) {
		t.Fatalf("ShouldRetry(attempt=max_attempts) = true, want false")
	}
	if !ShouldRetry(err, 2, 3) {
		t.Fatalf("ShouldRetry(attempt=max_attempts-1) = false, want true")
	}
}

func TestShouldRetry_NilErrorNeverRetries(t *testing.T) {
	if ShouldRetry(nil, 0, 3) {
		t.Fatalf("ShouldRetry(nil) = true, want false")
	}
}

func TestShouldRetry_UnclassifiedErrorDefaultsToInternalRetryable(t *testing.T) {
	if !ShouldRetry(errors.New("panic recovered"), 0, 3) {
		t.Fatalf("ShouldRetry(unclassified, attempt=0) = false, want true (treated as internal)")
	}
}
