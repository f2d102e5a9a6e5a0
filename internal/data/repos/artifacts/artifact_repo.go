// Package artifacts stores the append-only records each pipeline stage
// produces: plans, ranked candidate files, patches, validation results,
// pull requests, and notifications.
package artifacts

import (
	"errors"

	"gorm.io/gorm"

	"github.com/cifix/pipeline/internal/domain"
	"github.com/cifix/pipeline/internal/platform/dbctx"
	"github.com/cifix/pipeline/internal/platform/logger"
)

type ArtifactRepo interface {
	CreatePlan(dbc dbctx.Context, buildID uint, summary, steps string) (*domain.Plan, error)
	LatestPlan(dbc dbctx.Context, buildID uint) (*domain.Plan, error)

	CreateCandidateFiles(dbc dbctx.Context, buildID uint, files []RankedFile) ([]*domain.CandidateFile, error)
	TopCandidateFiles(dbc dbctx.Context, buildID uint, limit int) ([]*domain.CandidateFile, error)

	CreatePatch(dbc dbctx.Context, buildID uint, diff string) (*domain.Patch, error)
	MarkPatchApplied(dbc dbctx.Context, patchID uint) error
	LatestPatch(dbc dbctx.Context, buildID uint) (*domain.Patch, error)

	CreateValidation(dbc dbctx.Context, buildID uint, passed bool, output string) (*domain.Validation, error)
	LatestValidation(dbc dbctx.Context, buildID uint) (*domain.Validation, error)

	CreatePullRequest(dbc dbctx.Context, buildID uint, headBranch, baseBranch, externalID, url string) (*domain.PullRequest, error)
	HasOpenPullRequestForBranch(dbc dbctx.Context, buildID uint, headBranch string) (bool, error)

	CreateNotification(dbc dbctx.Context, buildID uint, kind, recipient, subject string) (*domain.Notification, error)
	HasNotificationOfType(dbc dbctx.Context, buildID uint, kind string) (bool, error)
}

// RankedFile is the input shape for recording candidate files in bulk.
type RankedFile struct {
	Path      string
	RankScore float64
	Reason    string
}

type artifactRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewArtifactRepo(gdb *gorm.DB, baseLog *logger.Logger) ArtifactRepo {
	return &artifactRepo{db: gdb, log: baseLog.With("repo", "ArtifactRepo")}
}

func (r *artifactRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *artifactRepo) CreatePlan(dbc dbctx.Context, buildID uint, summary, steps string) (*domain.Plan, error) {
	p := &domain.Plan{BuildID: buildID, Summary: summary, Steps: steps}
	if err := r.tx(dbc).WithContext(dbc.Ctx).Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

func (r *artifactRepo) LatestPlan(dbc dbctx.Context, buildID uint) (*domain.Plan, error) {
	var p domain.Plan
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Where("build_id = ?", buildID).
		Order("created_at DESC").First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *artifactRepo) CreateCandidateFiles(dbc dbctx.Context, buildID uint, files []RankedFile) ([]*domain.CandidateFile, error) {
	if len(files) == 0 {
		return nil, nil
	}
	rows := make([]*domain.CandidateFile, 0, len(files))
	for _, f := range files {
		rows = append(rows, &domain.CandidateFile{
			BuildID:   buildID,
			Path:      f.Path,
			RankScore: f.RankScore,
			Reason:    f.Reason,
		})
	}
	if err := r.tx(dbc).WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *artifactRepo) TopCandidateFiles(dbc dbctx.Context, buildID uint, limit int) ([]*domain.CandidateFile, error) {
	if limit <= 0 {
		limit = 10
	}
	var out []*domain.CandidateFile
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Where("build_id = ?", buildID).
		Order("rank_score DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *artifactRepo) CreatePatch(dbc dbctx.Context, buildID uint, diff string) (*domain.Patch, error) {
	p := &domain.Patch{BuildID: buildID, Diff: diff}
	if err := r.tx(dbc).WithContext(dbc.Ctx).Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

func (r *artifactRepo) MarkPatchApplied(dbc dbctx.Context, patchID uint) error {
	return r.tx(dbc).WithContext(dbc.Ctx).
		Model(&domain.Patch{}).
		Where("id = ?", patchID).
		Update("applied", true).Error
}

func (r *artifactRepo) LatestPatch(dbc dbctx.Context, buildID uint) (*domain.Patch, error) {
	var p domain.Patch
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Where("build_id = ?", buildID).
		Order("created_at DESC").First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *artifactRepo) CreateValidation(dbc dbctx.Context, buildID uint, passed bool, output string) (*domain.Validation, error) {
	v := &domain.Validation{BuildID: buildID, Passed: passed, Output: output}
	if err := r.tx(dbc).WithContext(dbc.Ctx).Create(v).Error; err != nil {
		return nil, err
	}
	return v, nil
}

func (r *artifactRepo) LatestValidation(dbc dbctx.Context, buildID uint) (*domain.Validation, error) {
	var v domain.Validation
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Where("build_id = ?", buildID).
		Order("created_at DESC").First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *artifactRepo) CreatePullRequest(dbc dbctx.Context, buildID uint, headBranch, baseBranch, externalID, url string) (*domain.PullRequest, error) {
	pr := &domain.PullRequest{
		BuildID:    buildID,
		HeadBranch: headBranch,
		BaseBranch: baseBranch,
		ExternalID: externalID,
		URL:        url,
	}
	if err := r.tx(dbc).WithContext(dbc.Ctx).Create(pr).Error; err != nil {
		return nil, err
	}
	return pr, nil
}

func (r *artifactRepo) HasOpenPullRequestForBranch(dbc dbctx.Context, buildID uint, headBranch string) (bool, error) {
	var count int64
	err := r.tx(dbc).WithContext(dbc.Ctx).Model(&domain.PullRequest{}).
		Where("build_id = ? AND head_branch = ?", buildID, headBranch).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *artifactRepo) CreateNotification(dbc dbctx.Context, buildID uint, kind, recipient, subject string) (*domain.Notification, error) {
	n := &domain.Notification{BuildID: buildID, Type: kind, Recipient: recipient, Subject: subject}
	if err := r.tx(dbc).WithContext(dbc.Ctx).Create(n).Error; err != nil {
		return nil, err
	}
	return n, nil
}

func (r *artifactRepo) HasNotificationOfType(dbc dbctx.Context, buildID uint, kind string) (bool, error) {
	var count int64
	err := r.tx(dbc).WithContext(dbc.Ctx).Model(&domain.Notification{}).
		Where("build_id = ? AND type = ?", buildID, kind).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
