// Package projectanalyzer inspects a cloned working copy to discover its
// build tool and enumerate the source files a fix might touch.
package projectanalyzer

import (
	"os"
	"path/filepath"
	"strings"
)

// BuildTool identifies the detected build system, used by the validate
// stage to pick the right recompile command.
type BuildTool string

const (
	BuildToolMaven   BuildTool = "maven"
	BuildToolGradle  BuildTool = "gradle"
	BuildToolUnknown BuildTool = "unknown"
)

// Analysis is the result of walking a working directory.
type Analysis struct {
	BuildTool   BuildTool
	SourceFiles []string
}

// Analyze walks workingDir, classifying the build tool by the presence
// of pom.xml or a Gradle build file, and collecting source file paths
// relative to workingDir for ranking.
func Analyze(workingDir string) (Analysis, error) {
	a := Analysis{BuildTool: BuildToolUnknown}

	if fileExists(filepath.Join(workingDir, "pom.xml")) {
		a.BuildTool = BuildToolMaven
	} else if fileExists(filepath.Join(workingDir, "build.gradle")) || fileExists(filepath.Join(workingDir, "build.gradle.kts")) {
		a.BuildTool = BuildToolGradle
	}

	err := filepath.Walk(workingDir, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if info.IsDir() {
			if info.Name() == ".git" || info.Name() == "target" || info.Name() == "build" {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(path, ".java") || strings.HasSuffix(path, ".kt") {
			rel, relErr := filepath.Rel(workingDir, path)
			if relErr != nil {
				return nil
			}
			a.SourceFiles = append(a.SourceFiles, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		return a, err
	}
	return a, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
