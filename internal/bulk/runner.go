package bulk

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"assignment-reminders/internal/models"
	"assignment-reminders/internal/reminder"
	"assignment-reminders/internal/store"
	"assignment-reminders/internal/telemetry"
)

// leaseExtendEvery is the item interval at which a long job pushes its
// visibility deadline forward.
const leaseExtendEvery = 25

// RunnerStore is the slice of the store the worker mutates while driving a
// job through its item list.
type RunnerStore interface {
	GetBulkJob(ctx context.Context, id string) (models.BulkJob, error)
	MarkJobRunning(ctx context.Context, id string) error
	RecordItemResult(ctx context.Context, id string, succeeded bool) error
	CompleteJob(ctx context.Context, id string) error
	FailJob(ctx context.Context, id, reason string) error
}

// RunnerQueue is the queue surface the worker loop consumes.
type RunnerQueue interface {
	DequeueWithLease(ctx context.Context) (string, error)
	ExtendLease(ctx context.Context, jobID string, extension time.Duration) error
	Ack(ctx context.Context, jobID string) error
	RequeueExpired(ctx context.Context, now time.Time, limit int64) ([]string, error)
	ReadyDepth(ctx context.Context) (int64, error)
	DLQPush(ctx context.Context, jobID string) error
}

// Sender dispatches a single reminder. Satisfied by *reminder.Dispatcher.
type Sender interface {
	Send(ctx context.Context, p reminder.SendParams) (models.ReminderRecord, error)
}

// Runner drives the bulk-job worker loop: dequeue a job under lease, walk
// its items through the single-send dispatcher, persist progress after each
// item, and complete the job. Item failures of any kind are absorbed into
// the failed counter; only the job row itself becoming unwritable fails a
// job.
type Runner struct {
	store        RunnerStore
	queue        RunnerQueue
	sender       Sender
	pollInterval time.Duration
	visibility   time.Duration
	workerID     string
	log          zerolog.Logger
}

// NewRunner constructs a worker runner.
func NewRunner(st RunnerStore, q RunnerQueue, sender Sender, pollInterval, visibility time.Duration, workerID string, log zerolog.Logger) *Runner {
	if pollInterval == 0 {
		pollInterval = time.Second
	}
	if visibility == 0 {
		visibility = 60 * time.Second
	}
	return &Runner{
		store:        st,
		queue:        q,
		sender:       sender,
		pollInterval: pollInterval,
		visibility:   visibility,
		workerID:     workerID,
		log:          log,
	}
}

// Run executes the worker loop until context cancellation.
func (r *Runner) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if reclaimed, _ := r.queue.RequeueExpired(ctx, time.Now(), 100); len(reclaimed) > 0 {
			telemetry.InFlightGauge.Sub(float64(len(reclaimed)))
			r.log.Warn().Strs("job_ids", reclaimed).Msg("reclaimed expired job leases")
		}
		if depth, err := r.queue.ReadyDepth(ctx); err == nil {
			telemetry.QueueDepthGauge.Set(float64(depth))
		}

		jobID, err := r.queue.DequeueWithLease(ctx)
		if err != nil || jobID == "" {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.pollInterval):
			}
			continue
		}

		telemetry.InFlightGauge.Inc()
		r.processJob(ctx, jobID)
		telemetry.InFlightGauge.Dec()
	}
}

// processJob walks one job's item list. The job may arrive half-processed
// when a previous worker's lease expired; already-counted items are skipped
// so progress stays monotonic and never exceeds total_items.
func (r *Runner) processJob(ctx context.Context, jobID string) {
	defer func() { _ = r.queue.Ack(ctx, jobID) }()

	job, err := r.store.GetBulkJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			r.log.Warn().Str("job_id", jobID).Msg("queued job has no row, dropping")
			return
		}
		// Transient read failure: leave the lease to expire so another
		// worker retries the job.
		r.log.Error().Err(err).Str("job_id", jobID).Msg("load bulk job")
		return
	}
	if job.Done() {
		return
	}

	if err := r.store.MarkJobRunning(ctx, job.ID); err != nil {
		r.failJob(ctx, job.ID, "mark running: "+err.Error())
		return
	}

	log := r.log.With().Str("job_id", job.ID).Str("worker_id", r.workerID).Logger()
	log.Info().Int("total_items", job.TotalItems).Int("resume_from", job.Progress).Msg("processing bulk reminder job")

	for i, assignmentID := range job.AssignmentIDs[job.Progress:] {
		if i > 0 && i%leaseExtendEvery == 0 {
			_ = r.queue.ExtendLease(ctx, job.ID, r.visibility)
		}

		_, sendErr := r.sender.Send(ctx, reminder.SendParams{
			AssignmentID: assignmentID,
			SentByUserID: job.SubmittedBy,
		})
		if sendErr != nil {
			log.Debug().
				Str("assignment_id", assignmentID).
				Str("code", string(reminder.CodeOf(sendErr))).
				Err(sendErr).
				Msg("bulk item failed")
		}

		if err := r.store.RecordItemResult(ctx, job.ID, sendErr == nil); err != nil {
			r.failJob(ctx, job.ID, "record item result: "+err.Error())
			return
		}
		telemetry.BulkItemsProcessed.Inc()
	}

	if err := r.store.CompleteJob(ctx, job.ID); err != nil {
		r.failJob(ctx, job.ID, "complete job: "+err.Error())
		return
	}
	telemetry.BulkJobsCompleted.Inc()
	log.Info().Msg("bulk reminder job completed")
}

// failJob records a coordinator-fatal error. The best-effort status write
// may itself fail; the DLQ entry survives either way so an operator can
// find the job.
func (r *Runner) failJob(ctx context.Context, jobID, reason string) {
	if err := r.store.FailJob(ctx, jobID, reason); err != nil {
		r.log.Error().Err(err).Str("job_id", jobID).Msg("could not persist job failure")
	}
	_ = r.queue.DLQPush(ctx, jobID)
	telemetry.BulkJobsFailed.Inc()
	r.log.Error().Str("job_id", jobID).Str("reason", reason).Msg("bulk reminder job failed")
}
