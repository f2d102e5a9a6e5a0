// Package plan is the first pipeline stage: it turns a build's raw logs
// into a structured fix plan.
package plan

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

func (s *Stage) Type() string { return domain.StagePlan }
