// Package validate recompiles the patched working copy and records
// whether the build tool reports success.
package validate

import (
	"time"

	"github.com/cifix/pipeline/internal/data/repos/artifacts"
	"github.com/cifix/pipeline/internal/domain"
	"github.com/cifix/pipeline/internal/platform/envutil"
)

type Stage struct {
	artifacts artifacts.ArtifactRepo
	timeout   time.Duration
	runTests  bool
}

func New(artifactRepo artifacts.ArtifactRepo) *Stage {
	return &Stage{
		artifacts: artifactRepo,
		timeout:   envutil.Seconds("VALIDATE_TIMEOUT_SECONDS", 10*time.Minute),
		runTests:  envutil.Bool("VALIDATE_RUN_TESTS", false),
	}
}

func (s *Stage) Type() string { return domain.StageValidate }
