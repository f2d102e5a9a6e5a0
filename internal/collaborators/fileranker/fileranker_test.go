package fileranker

import (
	"testing"

	"github.com/cifix/pipeline/internal/collaborators/logparser"
)

func TestRank_DirectMatchOutranksSiblingMatch(t *testing.T) {
	entries := []logparser.Entry{
		{Path: "src/main/java/com/example/Foo.java", Line: 10, Message: "cannot find symbol"},
	}
	projectFiles := []string{
		"src/main/java/com/example/Foo.java",
		"src/main/java/com/example/Bar.java",
		"src/main/java/com/example/other/Baz.java",
	}

	ranked := Rank(entries, projectFiles)
	if len(ranked) < 2 {
		t.Fatalf("Rank returned %d results, want at least 2", len(ranked))
	}
	if ranked[0].Path != "src/main/java/com/example/Foo.java" {
		t.Fatalf("top result = %q, want the directly-referenced file", ranked[0].Path)
	}
	if ranked[0].RankScore <= ranked[1].RankScore {
		t.Fatalf("direct match score %v should exceed sibling score %v", ranked[0].RankScore, ranked[1].RankScore)
	}
}

func TestRank_UnrelatedFileNotIncluded(t *testing.T) {
	entries := []logparser.Entry{
		{Path: "src/main/java/com/example/Foo.java", Message: "error"},
	}
	projectFiles := []string{
		"src/main/java/com/example/Foo.java",
		"src/main/java/com/other/Unrelated.java",
	}
	ranked := Rank(entries, projectFiles)
	for _, r := range ranked {
		if r.Path == "src/main/java/com/other/Unrelated.java" {
			t.Fatalf("unrelated file %q should not be ranked", r.Path)
		}
	}
}

func TestRank_NoEntriesYieldsNoCandidates(t *testing.T) {
	ranked := Rank(nil, []string{"src/main/java/com/example/Foo.java"})
	if len(ranked) != 0 {
		t.Fatalf("Rank(no entries) = %v, want empty", ranked)
	}
}

func TestRank_RepeatedMentionsIncreaseScore(t *testing.T) {
	entries := []logparser.Entry{
		{Path: "src/main/java/com/example/Foo.java", Message: "a"},
		{Path: "src/main/java/com/example/Foo.java", Message: "b"},
		{Path: "src/main/java/com/example/Foo.java", Message: "c"},
	}
	single := []logparser.Entry{entries[0]}
	projectFiles := []string{"src/main/java/com/example/Foo.java"}

	multi := Rank(entries, projectFiles)
	once := Rank(single, projectFiles)
	if len(multi) != 1 || len(once) != 1 {
		t.Fatalf("expected exactly one ranked result in each case")
	}
	if multi[0].RankScore <= once[0].RankScore {
		t.Fatalf("repeated-mention score %v should exceed single-mention score %v", multi[0].RankScore, once[0].RankScore)
	}
}

func TestRank_IsDeterministicallyOrdered(t *testing.T) {
	entries := []logparser.Entry{
		{Path: "src/main/java/com/example/A.java", Message: "x"},
		{Path: "src/main/java/com/example/B.java", Message: "y"},
	}
	projectFiles := []string{
		"src/main/java/com/example/B.java",
		"src/main/java/com/example/A.java",
	}
	first := Rank(entries, projectFiles)
	second := Rank(entries, projectFiles)
	if len(first) != len(second) {
		t.Fatalf("non-deterministic result length: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Path != second[i].Path {
			t.Fatalf("non-deterministic ordering at index %d: %q vs %q", i, first[i].Path, second[i].Path)
		}
	}
}
