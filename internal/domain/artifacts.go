package domain

import "time"

// Plan is the structured fix plan produced by the plan stage.
type Plan struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	BuildID   uint      `gorm:"column:build_id;not null;index" json:"build_id"`
	Summary   string    `gorm:"column:summary" json:"summary"`
	Steps     string    `gorm:"column:steps;type:text" json:"steps"`
	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (Plan) TableName() string { return "plans" }

// CandidateFile is one file ranked as a likely fix location.
type CandidateFile struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	BuildID   uint      `gorm:"column:build_id;not null;index" json:"build_id"`
	Path      string    `gorm:"column:path;not null" json:"path"`
	RankScore float64   `gorm:"column:rank_score;not null;index:idx_candidate_files_build_rank,priority:2,sort:desc" json:"rank_score"`
	Reason    string    `gorm:"column:reason" json:"reason,omitempty"`
	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (CandidateFile) TableName() string { return "candidate_files" }

// Patch is the unified diff generated by the LLM and applied to the working copy.
type Patch struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	BuildID   uint      `gorm:"column:build_id;not null;index" json:"build_id"`
	Diff      string    `gorm:"column:diff;type:text;not null" json:"diff"`
	Applied   bool      `gorm:"column:applied;not null;default:false" json:"applied"`
	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (Patch) TableName() string { return "patches" }

// Validation is the result of recompiling the patched working copy.
type Validation struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	BuildID   uint      `gorm:"column:build_id;not null;index" json:"build_id"`
	Passed    bool      `gorm:"column:passed;not null" json:"passed"`
	Output    string    `gorm:"column:output;type:text" json:"output,omitempty"`
	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (Validation) TableName() string { return "validations" }

// PullRequest is the review request opened on the code-hosting service.
type PullRequest struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	BuildID    uint      `gorm:"column:build_id;not null;index" json:"build_id"`
	HeadBranch string    `gorm:"column:head_branch;not null;uniqueIndex:idx_pr_build_head" json:"head_branch"`
	BaseBranch string    `gorm:"column:base_branch;not null" json:"base_branch"`
	ExternalID string    `gorm:"column:external_id;not null" json:"external_id"`
	URL        string    `gorm:"column:url" json:"url,omitempty"`
	CreatedAt  time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (PullRequest) TableName() string { return "pull_requests" }

// Notification types.
const (
	NotificationSuccess            = "success"
	NotificationFailure            = "failure"
	NotificationManualIntervention = "manual_intervention"
)

// Notification is an append-only record of an outbound email.
type Notification struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	BuildID   uint      `gorm:"column:build_id;not null;index:idx_notifications_build_type" json:"build_id"`
	Type      string    `gorm:"column:type;not null;index:idx_notifications_build_type" json:"type"`
	Recipient string    `gorm:"column:recipient" json:"recipient,omitempty"`
	Subject   string    `gorm:"column:subject" json:"subject,omitempty"`
	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (Notification) TableName() string { return "notifications" }
