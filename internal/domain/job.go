package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus captures lifecycle state for an ingestion job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusSuccess    JobStatus = "success"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed from the status.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSuccess || s == JobStatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusSuccess, JobStatusFailed:
		return true
	}
	return false
}

// ParseJobStatus converts a query or storage value into a JobStatus.
func ParseJobStatus(raw string) (JobStatus, bool) {
	status := JobStatus(raw)
	return status, status.Valid()
}

// Job tracks one ingestion attempt for an uploaded file. Clients poll it for
// progress; only the pipeline mutates it after creation.
type Job struct {
	JobID        string    `json:"job_id"`
	Status       JobStatus `json:"status"`
	Total        int       `json:"total"`
	Processed    int       `json:"processed"`
	ErrorMessage *string   `json:"error_message"`
	FileName     string    `json:"file_name,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewJobID returns a fresh client-visible job identifier.
func NewJobID() string {
	return "JOB_" + uuid.NewString()
}

// NewJob builds a pending job for the given upload.
func NewJob(fileName string, now time.Time) Job {
	now = now.UTC()
	return Job{
		JobID:     NewJobID(),
		Status:    JobStatusPending,
		FileName:  fileName,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
