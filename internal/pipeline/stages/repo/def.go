// Package repo clones the build's repository at the failing commit and
// creates the branch the fix will land on.
package repo

import (
	"github.com/cifix/pipeline/internal/collaborators/git"
	"github.com/cifix/pipeline/internal/domain"
)

type Stage struct {
	git     git.Client
	baseDir string
}

// New builds a repo stage that clones into baseDir/build-{id}. baseDir
// is the same WORK_ROOT the cleanup sweeper retires directories under.
func New(gitClient git.Client, baseDir string) *Stage {
	return &Stage{
		git:     gitClient,
		baseDir: baseDir,
	}
}

func (s *Stage) Type() string { return domain.StageRepo }
