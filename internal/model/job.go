package model

import "time"

// JobStatus is the lifecycle state of a deferred job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobDone      JobStatus = "done"
	JobCancelled JobStatus = "cancelled"
	JobFailed    JobStatus = "failed"
)

// ScheduledJob is a persisted deferred callback, due at DueAt.
type ScheduledJob struct {
	Handle    string    `gorm:"primaryKey;size:64"`
	Kind      string    `gorm:"size:64;not null"`
	SubjectID int64     `gorm:"not null"`
	DueAt     time.Time `gorm:"not null;index:idx_scheduled_jobs_due,priority:2"`
	Status    JobStatus `gorm:"size:16;not null;index:idx_scheduled_jobs_due,priority:1"`
	Attempts  int       `gorm:"not null;default:0"`
	LastError string    `gorm:"type:text"`
	ClaimedAt *time.Time
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}
