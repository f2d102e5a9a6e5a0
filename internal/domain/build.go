package domain

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Build lifecycle states. Terminal states never revert.
const (
	BuildProcessing = "processing"
	BuildCompleted  = "completed"
	BuildFailed     = "failed"
)

// Build represents one ingested CI failure notification.
type Build struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Job         string         `gorm:"column:job;not null;index:idx_builds_job_number,unique" json:"job"`
	BuildNumber int            `gorm:"column:build_number;not null;index:idx_builds_job_number,unique" json:"build_number"`
	Branch      string         `gorm:"column:branch;not null" json:"branch"`
	RepoURL     string         `gorm:"column:repo_url;not null" json:"repo_url"`
	CommitSHA   string         `gorm:"column:commit_sha;not null" json:"commit_sha"`
	Status      string         `gorm:"column:status;not null;index" json:"status"`
	Payload     datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload"`
	CreatedAt   time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Build) TableName() string { return "builds" }
