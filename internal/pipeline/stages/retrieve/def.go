// Package retrieve analyzes the cloned working copy and ranks candidate
// files for the patch stage to consider.
package retrieve

import (
	"github.com/cifix/pipeline/internal/data/repos/artifacts"
	"github.com/cifix/pipeline/internal/domain"
)

type Stage struct {
	artifacts artifacts.ArtifactRepo
}

func New(artifactRepo artifacts.ArtifactRepo) *Stage {
	return &Stage{artifacts: artifactRepo}
}

func (s *Stage) Type() string { return domain.StageRetrieve }
