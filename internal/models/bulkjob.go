package models

import (
	"time"
)

// Bulk job lifecycle states. Transitions only move forward:
// queued -> running -> completed|failed.
const (
	JobQueued    = "queued"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// JobResults aggregates per-item outcomes of a bulk job.
type JobResults struct {
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// BulkJob tracks one asynchronous batch reminder operation. Progress equals
// Results.Successful + Results.Failed at every point after the first item,
// and never exceeds TotalItems. Completed means "finished processing";
// failed is reserved for the coordinator being unable to persist job state.
type BulkJob struct {
	ID            string     `json:"id"`
	AssignmentIDs []string   `json:"assignment_ids"`
	SubmittedBy   string     `json:"submitted_by"`
	TotalItems    int        `json:"total_items"`
	Status        string     `json:"status"`
	Progress      int        `json:"progress"`
	Results       JobResults `json:"results"`
	LastError     *string    `json:"last_error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// Done reports whether the job has reached a terminal status.
func (j BulkJob) Done() bool {
	return j.Status == JobCompleted || j.Status == JobFailed
}
