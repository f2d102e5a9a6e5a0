package domain

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Stage kinds, in fixed topology order.
const (
	StagePlan     = "plan"
	StageRepo     = "repo"
	StageRetrieve = "retrieve"
	StagePatch    = "patch"
	StageValidate = "validate"
	StageCreatePR = "create_pr"
	StageNotify   = "notify"
)

// Task status values.
const (
	TaskPending    = "pending"
	TaskInProgress = "in_progress"
	TaskCompleted  = "completed"
	TaskRetry      = "retry"
	TaskFailed     = "failed"
)

// DefaultMaxAttempts is the per-task retry ceiling unless overridden.
const DefaultMaxAttempts = 3

// Task is one (build, stage kind, attempt-cohort) unit of work.
type Task struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	BuildID         uint           `gorm:"column:build_id;not null;index" json:"build_id"`
	Kind            string         `gorm:"column:kind;not null;index:idx_tasks_status_kind,priority:2" json:"kind"`
	Status          string         `gorm:"column:status;not null;index:idx_tasks_status_kind,priority:1" json:"status"`
	Attempt         int            `gorm:"column:attempt;not null;default:0" json:"attempt"`
	MaxAttempts     int            `gorm:"column:max_attempts;not null;default:3" json:"max_attempts"`
	Payload         datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload"`
	LastError       string         `gorm:"column:last_error" json:"last_error,omitempty"`
	RetryAfter      *time.Time     `gorm:"column:retry_after;index" json:"retry_after,omitempty"`
	LeaseGeneration int            `gorm:"column:lease_generation;not null;default:0" json:"lease_generation"`
	CreatedAt       time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null;default:now();index" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Task) TableName() string { return "tasks" }
