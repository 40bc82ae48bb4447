package models

import (
	"time"

	apperrors "github.com/property-scanner/internal/errors"
)

// JobStatus is the lifecycle state of a batch job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusPaused     JobStatus = "paused"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// ParseJobStatus accepts only the five known statuses
func ParseJobStatus(s string) (JobStatus, error) {
	switch JobStatus(s) {
	case JobStatusPending, JobStatusInProgress, JobStatusPaused, JobStatusCompleted, JobStatusFailed:
		return JobStatus(s), nil
	default:
		return "", apperrors.NewValidationError("status", "unknown status "+s)
	}
}

// IsTerminal reports whether no further status change is allowed
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// BatchJob is one unit of externally executed work tracked by progress counters
type BatchJob struct {
	ID             string     `json:"id" db:"id"`
	JobType        string     `json:"job_type" db:"job_type"`
	Status         JobStatus  `json:"status" db:"status"`
	TotalItems     int        `json:"total_items" db:"total_items"`
	ProcessedItems int        `json:"processed_items" db:"processed_items"`
	FailedItems    int        `json:"failed_items" db:"failed_items"`
	CurrentBatch   int        `json:"current_batch" db:"current_batch"`
	ErrorCount     int        `json:"error_count" db:"error_count"`
	LastError      *string    `json:"last_error" db:"last_error"`
	StartedAt      *time.Time `json:"started_at" db:"started_at"`
	PausedAt       *time.Time `json:"paused_at" db:"paused_at"`
	CompletedAt    *time.Time `json:"completed_at" db:"completed_at"`
	TriggeredAt    *time.Time `json:"triggered_at" db:"triggered_at"`
	TriggerError   *string    `json:"trigger_error" db:"trigger_error"`
	Version        int64      `json:"version" db:"version"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// Clone returns a deep copy so callers can mutate without aliasing stored rows
func (j *BatchJob) Clone() *BatchJob {
	if j == nil {
		return nil
	}
	c := *j
	c.LastError = cloneString(j.LastError)
	c.TriggerError = cloneString(j.TriggerError)
	c.StartedAt = cloneTime(j.StartedAt)
	c.PausedAt = cloneTime(j.PausedAt)
	c.CompletedAt = cloneTime(j.CompletedAt)
	c.TriggeredAt = cloneTime(j.TriggeredAt)
	return &c
}

// JobUpdate is a sparse set of field updates. Nil fields are left untouched.
type JobUpdate struct {
	Status         *JobStatus `json:"status,omitempty"`
	TotalItems     *int       `json:"total_items,omitempty"`
	ProcessedItems *int       `json:"processed_items,omitempty"`
	FailedItems    *int       `json:"failed_items,omitempty"`
	CurrentBatch   *int       `json:"current_batch,omitempty"`
	ErrorCount     *int       `json:"error_count,omitempty"`
	LastError      *string    `json:"last_error,omitempty"`
}

// IsEmpty reports whether the update sets no field at all
func (u *JobUpdate) IsEmpty() bool {
	return u == nil || (u.Status == nil &&
		u.TotalItems == nil &&
		u.ProcessedItems == nil &&
		u.FailedItems == nil &&
		u.CurrentBatch == nil &&
		u.ErrorCount == nil &&
		u.LastError == nil)
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
