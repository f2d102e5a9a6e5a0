// Package notify emails the build's outcome and records the
// Notification; the dispatcher marks the build complete once this last
// stage settles. It is the only stage reached both from the successful path
// and, with a synthetic notification_type, from an early termination.
package notify

import (
	"github.com/cifix/pipeline/internal/collaborators/mail"
	"github.com/cifix/pipeline/internal/data/repos/artifacts"
	"github.com/cifix/pipeline/internal/domain"
	"github.com/cifix/pipeline/internal/platform/envutil"
)

type Stage struct {
	mail      mail.Client
	artifacts artifacts.ArtifactRepo
	recipient string
}

func New(mailClient mail.Client, artifactRepo artifacts.ArtifactRepo) *Stage {
	return &Stage{
		mail:      mailClient,
		artifacts: artifactRepo,
		recipient: envutil.String("NOTIFY_RECIPIENT", "build-notifications@localhost"),
	}
}

func (s *Stage) Type() string { return domain.StageNotify }
