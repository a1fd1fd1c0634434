package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"assignment-reminders/internal/models"
)

var assignmentColumns = []string{
	"id", "work_item_id", "work_item_type", "assignee_id", "status",
	"priority", "last_reminder_sent_at", "version", "created_at", "updated_at",
}

// GetAssignment fetches an assignment by id.
func (s *Store) GetAssignment(ctx context.Context, id string) (models.Assignment, error) {
	sqlStr, args, err := s.sb.
		Select(assignmentColumns...).
		From("assignments").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return models.Assignment{}, fmt.Errorf("build select assignment: %w", err)
	}

	var a models.Assignment
	row := s.pool.QueryRow(ctx, sqlStr, args...)
	if err := row.Scan(
		&a.ID, &a.WorkItemID, &a.WorkItemType, &a.AssigneeID, &a.Status,
		&a.Priority, &a.LastReminderSentAt, &a.Version, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Assignment{}, fmt.Errorf("assignment %s: %w", id, ErrNotFound)
		}
		return models.Assignment{}, fmt.Errorf("scan assignment: %w", err)
	}
	return a, nil
}

// MarkReminderSent applies the reminder side effect under optimistic
// concurrency control: it sets last_reminder_sent_at and bumps the version,
// but only if the row still carries expectedVersion. The compare and the
// update are one conditional statement, so at most one concurrent caller per
// version generation can succeed. Zero rows affected means either a stale
// version or a missing row; a re-read disambiguates the two.
func (s *Store) MarkReminderSent(ctx context.Context, id string, expectedVersion int64, sentAt time.Time) (int64, error) {
	sqlStr, args, err := s.sb.
		Update("assignments").
		Set("last_reminder_sent_at", sentAt).
		Set("version", sq.Expr("version + 1")).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id, "version": expectedVersion}).
		Suffix("RETURNING version").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build reminder update: %w", err)
	}

	var newVersion int64
	if err := s.pool.QueryRow(ctx, sqlStr, args...).Scan(&newVersion); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := s.GetAssignment(ctx, id); getErr != nil {
				return 0, getErr
			}
			return 0, fmt.Errorf("assignment %s at version %d: %w", id, expectedVersion, ErrVersionConflict)
		}
		return 0, fmt.Errorf("update assignment reminder: %w", err)
	}
	return newVersion, nil
}

// CreateAssignmentParams collects inputs for seeding an assignment row.
// The engine itself never creates assignments; this exists for the
// surrounding application and for test fixtures.
type CreateAssignmentParams struct {
	WorkItemID   string
	WorkItemType string
	AssigneeID   *string
	Status       string
	Priority     string
}

// CreateAssignment inserts an assignment at version 1.
func (s *Store) CreateAssignment(ctx context.Context, p CreateAssignmentParams) (models.Assignment, error) {
	if p.WorkItemType == "" {
		p.WorkItemType = "dossier"
	}
	if p.Status == "" {
		p.Status = models.AssignmentPending
	}
	if p.Priority == "" {
		p.Priority = models.PriorityMedium
	}

	id := uuid.New().String()
	now := time.Now().UTC()

	sqlStr, args, err := s.sb.
		Insert("assignments").
		Columns("id", "work_item_id", "work_item_type", "assignee_id", "status", "priority", "version", "created_at", "updated_at").
		Values(id, p.WorkItemID, p.WorkItemType, p.AssigneeID, p.Status, p.Priority, 1, now, now).
		ToSql()
	if err != nil {
		return models.Assignment{}, fmt.Errorf("build insert assignment: %w", err)
	}
	if _, err := s.pool.Exec(ctx, sqlStr, args...); err != nil {
		return models.Assignment{}, fmt.Errorf("insert assignment: %w", err)
	}

	return models.Assignment{
		ID:           id,
		WorkItemID:   p.WorkItemID,
		WorkItemType: p.WorkItemType,
		AssigneeID:   p.AssigneeID,
		Status:       p.Status,
		Priority:     p.Priority,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}
