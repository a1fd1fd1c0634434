package bulk

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"assignment-reminders/internal/models"
	"assignment-reminders/internal/telemetry"
)

// Submission errors surfaced to the API as bad requests.
var (
	ErrNoItems      = errors.New("bulk submission contains no assignment ids")
	ErrTooManyItems = errors.New("bulk submission exceeds the item cap")
	ErrNoSubmitter  = errors.New("bulk submission has no submitting user")
)

// JobStore is the slice of the store the coordinator needs: creating the
// job row before any processing, failing it when scheduling breaks, and
// reading it back for polling clients.
type JobStore interface {
	CreateBulkJob(ctx context.Context, assignmentIDs []string, submittedBy string) (models.BulkJob, error)
	FailJob(ctx context.Context, id, reason string) error
	GetBulkJob(ctx context.Context, id string) (models.BulkJob, error)
}

// Queue schedules a persisted job for asynchronous processing.
type Queue interface {
	Enqueue(ctx context.Context, jobID string) error
}

// Coordinator accepts batch reminder submissions. It persists a job row and
// hands the id to the queue; the worker picks it up from there, so the
// submitting request never blocks on processing.
type Coordinator struct {
	jobs     JobStore
	queue    Queue
	maxItems int
	log      zerolog.Logger
}

// NewCoordinator constructs a coordinator with the given per-job item cap.
func NewCoordinator(jobs JobStore, queue Queue, maxItems int, log zerolog.Logger) *Coordinator {
	if maxItems <= 0 {
		maxItems = 100
	}
	return &Coordinator{
		jobs:     jobs,
		queue:    queue,
		maxItems: maxItems,
		log:      log,
	}
}

// Submission is the immediate response to a bulk request.
type Submission struct {
	JobID      string `json:"job_id"`
	TotalItems int    `json:"total_items"`
}

// Submit validates the batch, creates the job record, and schedules it.
// It returns as soon as the job id exists; item processing happens on the
// worker. A job that cannot be enqueued after its row was created is marked
// failed rather than left queued forever.
func (c *Coordinator) Submit(ctx context.Context, assignmentIDs []string, submittedBy string) (Submission, error) {
	if submittedBy == "" {
		return Submission{}, ErrNoSubmitter
	}
	if len(assignmentIDs) == 0 {
		return Submission{}, ErrNoItems
	}
	if len(assignmentIDs) > c.maxItems {
		return Submission{}, fmt.Errorf("%w: %d items, cap %d", ErrTooManyItems, len(assignmentIDs), c.maxItems)
	}

	job, err := c.jobs.CreateBulkJob(ctx, assignmentIDs, submittedBy)
	if err != nil {
		return Submission{}, fmt.Errorf("create bulk job: %w", err)
	}

	if err := c.queue.Enqueue(ctx, job.ID); err != nil {
		if failErr := c.jobs.FailJob(ctx, job.ID, "enqueue failed: "+err.Error()); failErr != nil {
			c.log.Error().Err(failErr).Str("job_id", job.ID).Msg("could not mark unschedulable job failed")
		}
		return Submission{}, fmt.Errorf("enqueue bulk job: %w", err)
	}

	telemetry.BulkJobsSubmitted.Inc()
	c.log.Info().
		Str("job_id", job.ID).
		Int("total_items", job.TotalItems).
		Str("submitted_by", submittedBy).
		Msg("bulk reminder job queued")
	return Submission{JobID: job.ID, TotalItems: job.TotalItems}, nil
}

// Status is the read-only polling surface over job state. It reflects
// whatever the worker has persisted so far; progress never decreases across
// polls.
func (c *Coordinator) Status(ctx context.Context, jobID string) (models.BulkJob, error) {
	return c.jobs.GetBulkJob(ctx, jobID)
}
