// Package safety validates that a generated patch only touches paths and
// operations the pipeline is allowed to apply without human review.
package safety

import (
	"fmt"
	"path"
	"strings"
)

// AllowedPrefixes are the only locations a patch may modify. Anything
// outside these (other build files, CI config, vendored dependencies) is
// rejected rather than silently dropped, since a patch that needs to
// touch those files needs a human to look at it first.
var AllowedPrefixes = []string{
	"src/main/java/",
	"src/test/java/",
	"pom.xml",
	"build.gradle",
}

// ErrUnsafePath is wrapped with the offending path for caller logging.
type ErrUnsafePath struct {
	Path   string
	Reason string
}

func (e *ErrUnsafePath) Error() string {
	return fmt.Sprintf("unsafe path %q: %s", e.Path, e.Reason)
}

// ValidatePath rejects path traversal, absolute paths, home-directory
// references, embedded null bytes, and anything outside AllowedPrefixes.
func ValidatePath(p string) error {
	if p == "" {
		return &ErrUnsafePath{Path: p, Reason: "empty path"}
	}
	if strings.ContainsRune(p, 0) {
		return &ErrUnsafePath{Path: p, Reason: "contains a null byte"}
	}
	if strings.HasPrefix(p, "/") {
		return &ErrUnsafePath{Path: p, Reason: "absolute path"}
	}
	if strings.HasPrefix(p, "~") {
		return &ErrUnsafePath{Path: p, Reason: "home-directory reference"}
	}
	clean := path.Clean(p)
	if clean != p {
		return &ErrUnsafePath{Path: p, Reason: "not in canonical form"}
	}
	for _, seg := range strings.Split(clean, "/") {
		if seg == ".." {
			return &ErrUnsafePath{Path: p, Reason: "contains a parent directory reference"}
		}
	}
	if !allowed(clean) {
		return &ErrUnsafePath{Path: p, Reason: "outside the allowed path prefixes"}
	}
	return nil
}

func allowed(p string) bool {
	for _, prefix := range AllowedPrefixes {
		if strings.HasSuffix(prefix, "/") {
			if strings.HasPrefix(p, prefix) {
				return true
			}
			continue
		}
		if p == prefix {
			return true
		}
	}
	return false
}
