package store

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"assignment-reminders/internal/models"
)

// CreateReminder inserts the audit record for one dispatched reminder with
// delivery_status pending. The delivery channel advances the status out of
// band via UpdateReminderDelivery.
func (s *Store) CreateReminder(ctx context.Context, assignmentID, sentByUserID string, sentAt time.Time) (models.ReminderRecord, error) {
	id := uuid.New().String()

	sqlStr, args, err := s.sb.
		Insert("followup_reminders").
		Columns("id", "assignment_id", "sent_by_user_id", "delivery_status", "created_at").
		Values(id, assignmentID, sentByUserID, models.DeliveryPending, sentAt).
		ToSql()
	if err != nil {
		return models.ReminderRecord{}, fmt.Errorf("build insert reminder: %w", err)
	}
	if _, err := s.pool.Exec(ctx, sqlStr, args...); err != nil {
		return models.ReminderRecord{}, fmt.Errorf("insert reminder: %w", err)
	}

	return models.ReminderRecord{
		ID:             id,
		AssignmentID:   assignmentID,
		SentByUserID:   sentByUserID,
		DeliveryStatus: models.DeliveryPending,
		CreatedAt:      sentAt,
	}, nil
}

// UpdateReminderDelivery records the delivery outcome for a pending
// reminder. Records that already left pending are not touched.
func (s *Store) UpdateReminderDelivery(ctx context.Context, reminderID, deliveryStatus string) error {
	sqlStr, args, err := s.sb.
		Update("followup_reminders").
		Set("delivery_status", deliveryStatus).
		Where(sq.Eq{"id": reminderID, "delivery_status": models.DeliveryPending}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delivery update: %w", err)
	}
	tag, err := s.pool.Exec(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("update reminder delivery: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pending reminder %s: %w", reminderID, ErrNotFound)
	}
	return nil
}

// RemindersForAssignment lists reminder records for one assignment, newest
// first.
func (s *Store) RemindersForAssignment(ctx context.Context, assignmentID string) ([]models.ReminderRecord, error) {
	sqlStr, args, err := s.sb.
		Select("id", "assignment_id", "sent_by_user_id", "delivery_status", "created_at").
		From("followup_reminders").
		Where(sq.Eq{"assignment_id": assignmentID}).
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select reminders: %w", err)
	}

	rows, err := s.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query reminders: %w", err)
	}
	defer rows.Close()

	var out []models.ReminderRecord
	for rows.Next() {
		var r models.ReminderRecord
		if err := rows.Scan(&r.ID, &r.AssignmentID, &r.SentByUserID, &r.DeliveryStatus, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
