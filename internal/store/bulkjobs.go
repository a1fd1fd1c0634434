package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"assignment-reminders/internal/models"
)

// CreateBulkJob inserts a queued job row before any item is processed, so
// the caller gets a pollable id immediately.
func (s *Store) CreateBulkJob(ctx context.Context, assignmentIDs []string, submittedBy string) (models.BulkJob, error) {
	idsJSON, err := json.Marshal(assignmentIDs)
	if err != nil {
		return models.BulkJob{}, fmt.Errorf("marshal assignment ids: %w", err)
	}

	id := uuid.New().String()
	now := time.Now().UTC()

	sqlStr, args, err := s.sb.
		Insert("bulk_reminder_jobs").
		Columns("id", "assignment_ids", "submitted_by", "total_items", "status", "progress", "successful", "failed", "created_at").
		Values(id, idsJSON, submittedBy, len(assignmentIDs), models.JobQueued, 0, 0, 0, now).
		ToSql()
	if err != nil {
		return models.BulkJob{}, fmt.Errorf("build insert bulk job: %w", err)
	}
	if _, err := s.pool.Exec(ctx, sqlStr, args...); err != nil {
		return models.BulkJob{}, fmt.Errorf("insert bulk job: %w", err)
	}

	return models.BulkJob{
		ID:            id,
		AssignmentIDs: assignmentIDs,
		SubmittedBy:   submittedBy,
		TotalItems:    len(assignmentIDs),
		Status:        models.JobQueued,
		CreatedAt:     now,
	}, nil
}

// GetBulkJob fetches a bulk job by id.
func (s *Store) GetBulkJob(ctx context.Context, id string) (models.BulkJob, error) {
	sqlStr, args, err := s.sb.
		Select("id", "assignment_ids", "submitted_by", "total_items", "status", "progress", "successful", "failed", "last_error", "created_at", "completed_at").
		From("bulk_reminder_jobs").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return models.BulkJob{}, fmt.Errorf("build select bulk job: %w", err)
	}

	var j models.BulkJob
	var idsJSON []byte
	row := s.pool.QueryRow(ctx, sqlStr, args...)
	if err := row.Scan(
		&j.ID, &idsJSON, &j.SubmittedBy, &j.TotalItems, &j.Status,
		&j.Progress, &j.Results.Successful, &j.Results.Failed,
		&j.LastError, &j.CreatedAt, &j.CompletedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.BulkJob{}, fmt.Errorf("bulk job %s: %w", id, ErrNotFound)
		}
		return models.BulkJob{}, fmt.Errorf("scan bulk job: %w", err)
	}
	if err := json.Unmarshal(idsJSON, &j.AssignmentIDs); err != nil {
		return models.BulkJob{}, fmt.Errorf("unmarshal assignment ids: %w", err)
	}
	return j, nil
}

// MarkJobRunning moves a queued job to running. A job already past queued is
// left untouched; that happens when a worker reclaims an expired lease and
// picks up a half-processed job.
func (s *Store) MarkJobRunning(ctx context.Context, id string) error {
	sqlStr, args, err := s.sb.
		Update("bulk_reminder_jobs").
		Set("status", models.JobRunning).
		Where(sq.Eq{"id": id, "status": models.JobQueued}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build running update: %w", err)
	}
	if _, err := s.pool.Exec(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("mark job running: %w", err)
	}
	return nil
}

// RecordItemResult advances progress and one of the result counters in a
// single atomic statement, keeping progress == successful + failed even if
// items ever complete concurrently.
func (s *Store) RecordItemResult(ctx context.Context, id string, succeeded bool) error {
	resultCol := "failed"
	if succeeded {
		resultCol = "successful"
	}
	sqlStr, args, err := s.sb.
		Update("bulk_reminder_jobs").
		Set("progress", sq.Expr("progress + 1")).
		Set(resultCol, sq.Expr(resultCol+" + 1")).
		Where(sq.Eq{"id": id}).
		Where(sq.Expr("progress < total_items")).
		ToSql()
	if err != nil {
		return fmt.Errorf("build item result update: %w", err)
	}
	tag, err := s.pool.Exec(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("record item result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("bulk job %s already at total_items: %w", id, ErrNotFound)
	}
	return nil
}

// CompleteJob marks a running job as finished processing. Completed does not
// mean every item succeeded, only that the item list is exhausted.
func (s *Store) CompleteJob(ctx context.Context, id string) error {
	sqlStr, args, err := s.sb.
		Update("bulk_reminder_jobs").
		Set("status", models.JobCompleted).
		Set("completed_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id, "status": models.JobRunning}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build complete update: %w", err)
	}
	tag, err := s.pool.Exec(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("running bulk job %s: %w", id, ErrNotFound)
	}
	return nil
}

// FailJob marks a job as failed with the coordinator-fatal reason. Per-item
// failures never land here; they live in the result counters.
func (s *Store) FailJob(ctx context.Context, id, reason string) error {
	sqlStr, args, err := s.sb.
		Update("bulk_reminder_jobs").
		Set("status", models.JobFailed).
		Set("last_error", reason).
		Set("completed_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id}).
		Where(sq.NotEq{"status": models.JobCompleted}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build fail update: %w", err)
	}
	if _, err := s.pool.Exec(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return nil
}
