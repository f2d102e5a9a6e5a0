// Package fileranker scores candidate source files by how likely they
// are to be the right place to apply a fix, given the log entries that
// mention them.
package fileranker

import (
	"sort"
	"strings"

	"github.com/cifix/pipeline/internal/collaborators/logparser"
)

// Ranked is a single scored candidate.
type Ranked struct {
	Path      string
	RankScore float64
	Reason    string
}

// Rank scores paths found in projectFiles against the log entries that
// reference them. A direct match in a log entry scores highest; a path
// sharing a directory prefix with a referenced file scores lower so
// sibling files (test fixtures, shared helpers) still surface.
func Rank(entries []logparser.Entry, projectFiles []string) []Ranked {
	mentioned := make(map[string]int)
	for _, e := range entries {
		if e.Path != "" {
			mentioned[e.Path]++
		}
	}

	scores := make(map[string]Ranked, len(projectFiles))
	for _, f := range projectFiles {
		if count, ok := mentioned[f]; ok {
			scores[f] = Ranked{Path: f, RankScore: 1.0 + float64(count)*0.1, Reason: "referenced directly in build log"}
			continue
		}
		best := 0.0
		for m := range mentioned {
			if sameDir(f, m) {
				if 0.5 > best {
					best = 0.5
				}
			}
		}
		if best > 0 {
			scores[f] = Ranked{Path: f, RankScore: best, Reason: "shares a directory with a referenced file"}
		}
	}

	out := make([]Ranked, 0, len(scores))
	for _, r := range scores {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RankScore != out[j].RankScore {
			return out[i].RankScore > out[j].RankScore
		}
		return out[i].Path < out[j].Path
	})
	return out
}

func sameDir(a, b string) bool {
	da := a[:strings.LastIndex(a, "/")+1]
	db := b[:strings.LastIndex(b, "/")+1]
	return da != "" && da == db
}
