// Package logparser extracts structured failure signals from raw build
// logs: compiler/test error lines and the file paths they reference.
package logparser

import (
	"regexp"
	"strings"
)

// Entry is one diagnostic line extracted from a build log.
type Entry struct {
	Path    string
	Line    int
	Message string
}

var (
	// javacStyle matches `path/To/File.java:42: error: message`.
	javacStyle = regexp.MustCompile(`(?m)^([\w/.\-]+\.(?:java|kt|scala)):(\d+):\s*(?:error|warning)?:?\s*(.*)$`)
	// mavenSurefireStyle matches `FAILED: com.example.FooTest.testBar`.
	mavenSurefireStyle = regexp.MustCompile(`(?m)^(?:\[ERROR\]\s+)?(?:FAILED:|FAILURE!)\s*([\w.$]+)`)
)

// Parse scans raw build log text and returns every diagnostic it can
// identify. It never errors: logs are adversarial input from a build
// agent the pipeline does not control, so partial or unrecognized output
// simply yields fewer entries rather than a failure.
func Parse(logText string) []Entry {
	var out []Entry
	for _, m := range javacStyle.FindAllStringSubmatch(logText, -1) {
		out = append(out, Entry{Path: m[1], Line: atoi(m[2]), Message: strings.TrimSpace(m[3])})
	}
	for _, m := range mavenSurefireStyle.FindAllStringSubmatch(logText, -1) {
		out = append(out, Entry{Path: classNameToPath(m[1]), Message: "test failure: " + m[1]})
	}
	return out
}

// Paths returns the distinct set of file paths referenced across entries.
func Paths(entries []Entry) []string {
	seen := make(map[string]bool, len(entries))
	var out []string
	for _, e := range entries {
		if e.Path == "" || seen[e.Path] {
			continue
		}
		seen[e.Path] = true
		out = append(out, e.Path)
	}
	return out
}

func classNameToPath(className string) string {
	// A trailing lowercase segment is the test method (FooTest.testBar),
	// not part of the class path.
	if i := strings.LastIndex(className, "."); i >= 0 && i+1 < len(className) {
		if c := className[i+1]; c >= 'a' && c <= 'z' {
			className = className[:i]
		}
	}
	return "src/test/java/" + strings.ReplaceAll(className, ".", "/") + ".java"
}

func atoi(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return n
		}
		n = n*10 + int(c-'0')
	}
	return n
}
