package projectanalyzer

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func write(t *testing.T, dir, rel, content string) {
	t.Helper()
	full := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestAnalyze_DetectsMaven(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "pom.xml", "<project/>")
	write(t, dir, "src/main/java/com/example/Foo.java", "class Foo {}")

	a, err := Analyze(dir)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if a.BuildTool != BuildToolMaven {
		t.Fatalf("BuildTool = %q, want maven", a.BuildTool)
	}
	if len(a.SourceFiles) != 1 || a.SourceFiles[0] != "src/main/java/com/example/Foo.java" {
		t.Fatalf("SourceFiles = %v, want [Foo.java]", a.SourceFiles)
	}
}

func TestAnalyze_DetectsGradle(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "build.gradle", "apply plugin: 'java'")

	a, err := Analyze(dir)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if a.BuildTool != BuildToolGradle {
		t.Fatalf("BuildTool = %q, want gradle", a.BuildTool)
	}
}

func TestAnalyze_DetectsGradleKts(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "build.gradle.kts", "plugins { java }")

	a, err := Analyze(dir)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if a.BuildTool != BuildToolGradle {
		t.Fatalf("BuildTool = %q, want gradle", a.BuildTool)
	}
}

func TestAnalyze_UnknownWhenNoBuildFilePresent(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "README.md", "hello")

	a, err := Analyze(dir)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if a.BuildTool != BuildToolUnknown {
		t.Fatalf("BuildTool = %q, want unknown", a.BuildTool)
	}
}

func TestAnalyze_SkipsGitTargetAndBuildDirectories(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "pom.xml", "<project/>")
	write(t, dir, "src/main/java/com/example/Foo.java", "class Foo {}")
	write(t, dir, ".git/objects/Fake.java", "class Fake {}")
	write(t, dir, "target/generated/Gen.java", "class Gen {}")
	write(t, dir, "build/classes/Built.java", "class Built {}")

	a, err := Analyze(dir)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(a.SourceFiles) != 1 {
		t.Fatalf("SourceFiles = %v, want only the one file outside .git/target/build", a.SourceFiles)
	}
}

func TestAnalyze_CollectsKotlinFilesToo(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "src/main/kotlin/com/example/Foo.kt", "class Foo")
	write(t, dir, "src/main/java/com/example/Bar.java", "class Bar {}")

	a, err := Analyze(dir)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	got := append([]string{}, a.SourceFiles...)
	sort.Strings(got)
	want := []string{"src/main/java/com/example/Bar.java", "src/main/kotlin/com/example/Foo.kt"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("SourceFiles = %v, want %v", got, want)
	}
}
