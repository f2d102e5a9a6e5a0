// Package builds stores the Build entity and its lifecycle transitions.
package builds

import (
	"errors"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/cifix/pipeline/internal/domain"
	"github.com/cifix/pipeline/internal/platform/dbctx"
	"github.com/cifix/pipeline/internal/platform/logger"
)

// ErrDuplicateBuild is returned when (job, build_number) already exists.
var ErrDuplicateBuild = errors.New("build already exists for job+build_number")

type BuildRepo interface {
	Create(dbc dbctx.Context, job string, buildNumber int, branch, repoURL, commitSHA string, payload datatypes.JSON) (*domain.Build, error)
	FindByJobAndNumber(dbc dbctx.Context, job string, buildNumber int) (*domain.Build, error)
	Find(dbc dbctx.Context, id uint) (*domain.Build, error)
	List(dbc dbctx.Context, status string, page, size int) ([]*domain.Build, int64, error)
	MarkStatus(dbc dbctx.Context, id uint, status string) error
	CountByStatus(dbc dbctx.Context) (map[string]int64, error)
}

type buildRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBuildRepo(gdb *gorm.DB, baseLog *logger.Logger) BuildRepo {
	return &buildRepo{db: gdb, log: baseLog.With("repo", "BuildRepo")}
}

func (r *buildRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *buildRepo) Create(dbc dbctx.Context, job string, buildNumber int, branch, repoURL, commitSHA string, payload datatypes.JSON) (*domain.Build, error) {
	build := &domain.Build{
		Job:         job,
		BuildNumber: buildNumber,
		Branch:      branch,
		RepoURL:     repoURL,
		CommitSHA:   commitSHA,
		Status:      domain.BuildProcessing,
		Payload:     payload,
	}
	if err := r.tx(dbc).WithContext(dbc.Ctx).Create(build).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateBuild
		}
		return nil, err
	}
	return build, nil
}

func (r *buildRepo) FindByJobAndNumber(dbc dbctx.Context, job string, buildNumber int) (*domain.Build, error) {
	var b domain.Build
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Where("job = ? AND build_number = ?", job, buildNumber).
		First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *buildRepo) Find(dbc dbctx.Context, id uint) (*domain.Build, error) {
	var b domain.Build
	err := r.tx(dbc).WithContext(dbc.Ctx).Where("id = ?", id).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *buildRepo) List(dbc dbctx.Context, status string, page, size int) ([]*domain.Build, int64, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 200 {
		size = 20
	}
	q := r.tx(dbc).WithContext(dbc.Ctx).Model(&domain.Build{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []*domain.Build
	if err := q.Order("created_at DESC").
		Offset((page - 1) * size).Limit(size).
		Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// MarkStatus transitions a Build's lifecycle state. Terminal states
// (completed, failed) never revert, enforced here by only allowing the
// transition out of processing.
func (r *buildRepo) MarkStatus(dbc dbctx.Context, id uint, status string) error {
	return r.tx(dbc).WithContext(dbc.Ctx).
		Model(&domain.Build{}).
		Where("id = ? AND status = ?", id, domain.BuildProcessing).
		Update("status", status).Error
}

func (r *buildRepo) CountByStatus(dbc dbctx.Context) (map[string]int64, error) {
	type row struct {
		Status string
		Count  int64
	}
	var rows []row
	if err := r.tx(dbc).WithContext(dbc.Ctx).Model(&domain.Build{}).
		Select("status, count(*) as count").Group("status").Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, rr := range rows {
		out[rr.Status] = rr.Count
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	// Postgres unique_violation SQLSTATE is 23505; pgx/lib/pq both surface it
	// in the error string when no structured error type is imported here.
	msg := err.Error()
	return contains(msg, "23505") || contains(msg, "duplicate key")
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
