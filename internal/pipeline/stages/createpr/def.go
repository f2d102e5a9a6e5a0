// Package createpr pushes the fix branch and opens a pull request,
// skipping the push/open step entirely if one already exists for this
// build's head branch.
package createpr

import (
	"github.com/cifix/pipeline/internal/collaborators/codehost"
	"github.com/cifix/pipeline/internal/collaborators/git"
	"github.com/cifix/pipeline/internal/data/repos/artifacts"
	"github.com/cifix/pipeline/internal/domain"
	"github.com/cifix/pipeline/internal/platform/envutil"
)

type Stage struct {
	git        git.Client
	codehost   codehost.Client
	artifacts  artifacts.ArtifactRepo
	baseBranch string
}

func New(gitClient git.Client, codehostClient codehost.Client, artifactRepo artifacts.ArtifactRepo) *Stage {
	return &Stage{
		git:        gitClient,
		codehost:   codehostClient,
		artifacts:  artifactRepo,
		baseBranch: envutil.String("CREATEPR_BASE_BRANCH", "main"),
	}
}

func (s *Stage) Type() string { return domain.StageCreatePR }
