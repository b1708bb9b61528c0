package database

import (
	"time"
)

// JobStatus is the lifecycle state of a queued job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobRetrying   JobStatus = "retrying"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Job is a durable unit of background work. Priority runs 1 (critical) to 10
// (low); ties break by oldest created_at. Terminal jobs are pruned; durable
// history lives in activity_logs.
type Job struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	Type     string    `gorm:"not null;index" json:"type"`
	Priority int       `gorm:"not null;default:5" json:"priority"`
	Status   JobStatus `gorm:"not null;default:pending;index" json:"status"`

	Payload string `gorm:"type:text" json:"payload,omitempty"`
	Result  string `gorm:"type:text" json:"result,omitempty"`
	Error   string `json:"error,omitempty"`

	RetryCount  int        `gorm:"not null;default:0" json:"retry_count"`
	MaxRetries  int        `gorm:"not null;default:3" json:"max_retries"`
	NextRetryAt *time.Time `gorm:"index" json:"next_retry_at,omitempty"`

	WorkerID    string     `json:"worker_id,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Manual      bool       `gorm:"not null;default:false" json:"manual"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JobDependency gates pickup: a job is pickable only when every row pointing
// at it names a completed job.
type JobDependency struct {
	JobID          uint `gorm:"primaryKey" json:"job_id"`
	DependsOnJobID uint `gorm:"primaryKey;index" json:"depends_on_job_id"`
}
