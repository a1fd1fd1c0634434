package models

import (
	"time"
)

// Assignment status values persisted in Postgres. Statuses other than
// completed/cancelled are eligible for reminders.
const (
	AssignmentPending    = "pending"
	AssignmentAssigned   = "assigned"
	AssignmentInProgress = "in_progress"
	AssignmentCompleted  = "completed"
	AssignmentCancelled  = "cancelled"
)

// Assignment priorities, informational for this engine.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Assignment is a unit of work awaiting action. The reminder engine only
// ever mutates LastReminderSentAt and Version; everything else belongs to
// the surrounding application.
type Assignment struct {
	ID                 string     `json:"id"`
	WorkItemID         string     `json:"work_item_id"`
	WorkItemType       string     `json:"work_item_type"`
	AssigneeID         *string    `json:"assignee_id,omitempty"`
	Status             string     `json:"status"`
	Priority           string     `json:"priority"`
	LastReminderSentAt *time.Time `json:"last_reminder_sent_at,omitempty"`
	Version            int64      `json:"version"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Closed reports whether the assignment has reached a terminal status.
func (a Assignment) Closed() bool {
	return a.Status == AssignmentCompleted || a.Status == AssignmentCancelled
}
