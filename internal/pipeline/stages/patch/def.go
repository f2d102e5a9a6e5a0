// Package patch generates a unified diff via the LLM collaborator,
// validates it, applies it to the working copy, and commits it.
package patch

import (
	"github.com/cifix/pipeline/internal/collaborators/git"
	"github.com/cifix/pipeline/internal/collaborators/llm"
	"github.com/cifix/pipeline/internal/data/repos/artifacts"
	"github.com/cifix/pipeline/internal/domain"
)

type Stage struct {
	llm       llm.Client
	git       git.Client
	artifacts artifacts.ArtifactRepo
}

func New(llmClient llm.Client, gitClient git.Client, artifactRepo artifacts.ArtifactRepo) *Stage {
	return &Stage{llm: llmClient, git: gitClient, artifacts: artifactRepo}
}

func (s *Stage) Type() string { return domain.StagePatch }
