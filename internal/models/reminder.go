package models

import (
	"time"
)

// Delivery statuses for a reminder record. The engine always creates records
// as pending; an external delivery channel advances them to sent or failed.
const (
	DeliveryPending = "pending"
	DeliverySent    = "sent"
	DeliveryFailed  = "failed"
)

// ReminderRecord is the audit row for one reminder dispatch.
type ReminderRecord struct {
	ID             string    `json:"id"`
	AssignmentID   string    `json:"assignment_id"`
	SentByUserID   string    `json:"sent_by_user_id"`
	DeliveryStatus string    `json:"delivery_status"`
	CreatedAt      time.Time `json:"created_at"`
}
