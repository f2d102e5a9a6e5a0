package safety

import (
	"fmt"
	"strings"
)

// ErrUnsafeDiff is returned for a diff that is malformed or touches a
// disallowed path.
type ErrUnsafeDiff struct {
	Reason string
}

func (e *ErrUnsafeDiff) Error() string { return "unsafe diff: " + e.Reason }

// ValidateDiff parses a unified diff's file headers and validates every
// touched path, without attempting to apply it. It rejects diffs with no
// file headers (not a diff at all) and diffs that create or delete files
// outside the allowed prefixes.
func ValidateDiff(diff string) error {
	paths := diffPaths(diff)
	if len(paths) == 0 {
		return &ErrUnsafeDiff{Reason: "no file headers found"}
	}
	for _, p := range paths {
		if err := ValidatePath(p); err != nil {
			return fmt.Errorf("%w", &ErrUnsafeDiff{Reason: err.Error()})
		}
	}
	return nil
}

// diffPaths extracts paths from unified diff "+++ b/path" / "--- a/path"
// headers, stripping the a/ b/ prefixes git adds.
func diffPaths(diff string) []string {
	var out []string
	for _, line := range strings.Split(diff, "\n") {
		var prefix string
		switch {
		case strings.HasPrefix(line, "+++ "):
			prefix = "+++ "
		case strings.HasPrefix(line, "--- "):
			prefix = "--- "
		default:
			continue
		}
		p := strings.TrimSpace(strings.TrimPrefix(line, prefix))
		if p == "/dev/null" {
			continue
		}
		p = strings.TrimPrefix(p, "a/")
		p = strings.TrimPrefix(p, "b/")
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
