package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"assignment-reminders/internal/models"
	"assignment-reminders/internal/ratelimit"
	"assignment-reminders/internal/store"
	"assignment-reminders/internal/telemetry"
)

// AssignmentStore is the slice of the store the dispatcher reads and
// conditionally updates. MarkReminderSent must be atomic on the expected
// version and return store.ErrVersionConflict or store.ErrNotFound on the
// two zero-row outcomes.
type AssignmentStore interface {
	GetAssignment(ctx context.Context, id string) (models.Assignment, error)
	MarkReminderSent(ctx context.Context, id string, expectedVersion int64, sentAt time.Time) (int64, error)
}

// ReminderStore creates the audit record for a dispatched reminder.
type ReminderStore interface {
	CreateReminder(ctx context.Context, assignmentID, sentByUserID string, sentAt time.Time) (models.ReminderRecord, error)
}

// Limiter grants or denies one send attempt for a keyed budget. The reset
// duration tells a denied caller when the window rolls over.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, remaining int64, reset time.Duration, err error)
}

// Dispatcher orchestrates a single reminder send: validation, cooldown,
// rate limit, optimistic update, record creation. Each step short-circuits;
// only the last two have side effects.
type Dispatcher struct {
	assignments AssignmentStore
	reminders   ReminderStore
	limiter     Limiter
	cooldown    time.Duration
	now         func() time.Time
	log         zerolog.Logger
}

// NewDispatcher constructs a dispatcher with the given cooldown period.
func NewDispatcher(assignments AssignmentStore, reminders ReminderStore, limiter Limiter, cooldown time.Duration, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		assignments: assignments,
		reminders:   reminders,
		limiter:     limiter,
		cooldown:    cooldown,
		now:         time.Now,
		log:         log,
	}
}

// WithClock overrides the dispatcher's time source. Tests use this to walk
// the cooldown boundary deterministically.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// SendParams identifies one send attempt. ExpectedVersion is optional: when
// nil the version read during validation is used, which is the common case;
// explicit optimistic-lock clients pass the version they last observed and
// it takes precedence.
type SendParams struct {
	AssignmentID    string
	SentByUserID    string
	ExpectedVersion *int64
}

// Send dispatches one reminder. On success the assignment's version has
// advanced by one, last_reminder_sent_at is set, and the returned record is
// persisted with delivery_status pending. Failures carry a *Error with a
// stable code; when two callers race on the same assignment, exactly one
// succeeds and the other observes CodeVersionConflict.
func (d *Dispatcher) Send(ctx context.Context, p SendParams) (models.ReminderRecord, error) {
	now := d.now().UTC()

	a, err := d.assignments.GetAssignment(ctx, p.AssignmentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			telemetry.PreconditionErrors.Inc()
			return models.ReminderRecord{}, &Error{
				Code:   CodeAssignmentNotFound,
				Detail: fmt.Sprintf("assignment %s does not exist", p.AssignmentID),
			}
		}
		return models.ReminderRecord{}, fmt.Errorf("load assignment: %w", err)
	}

	if a.AssigneeID == nil {
		telemetry.PreconditionErrors.Inc()
		return models.ReminderRecord{}, &Error{
			Code:   CodeNoAssignee,
			Detail: "assignment has no assignee to remind",
		}
	}
	if a.Closed() {
		telemetry.PreconditionErrors.Inc()
		return models.ReminderRecord{}, &Error{
			Code:   CodeInvalidStatus,
			Detail: fmt.Sprintf("assignment status %q does not accept reminders", a.Status),
		}
	}

	if !CanSend(a.LastReminderSentAt, now, d.cooldown) {
		remaining := CooldownRemaining(a.LastReminderSentAt, now, d.cooldown)
		telemetry.CooldownRejects.Inc()
		return models.ReminderRecord{}, &Error{
			Code:       CodeCooldownActive,
			Detail:     fmt.Sprintf("a reminder was already sent within the last %s; retry in %s", humanWindow(d.cooldown), remaining.Round(time.Second)),
			RetryAfter: remaining,
		}
	}

	allowed, _, reset, err := d.limiter.Allow(ctx, ratelimit.UserKey(p.SentByUserID))
	if err != nil {
		return models.ReminderRecord{}, fmt.Errorf("rate limiter: %w", err)
	}
	if !allowed {
		telemetry.RateLimitRejects.Inc()
		return models.ReminderRecord{}, &Error{
			Code:       CodeRateLimitExceeded,
			Detail:     fmt.Sprintf("reminder rate limit exceeded; window resets in %s", reset.Round(time.Second)),
			RetryAfter: reset,
		}
	}

	expected := a.Version
	if p.ExpectedVersion != nil {
		expected = *p.ExpectedVersion
	}
	newVersion, err := d.assignments.MarkReminderSent(ctx, a.ID, expected, now)
	if err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			telemetry.VersionConflicts.Inc()
			return models.ReminderRecord{}, &Error{
				Code:   CodeVersionConflict,
				Detail: fmt.Sprintf("assignment was modified since version %d was read", expected),
			}
		}
		if errors.Is(err, store.ErrNotFound) {
			telemetry.PreconditionErrors.Inc()
			return models.ReminderRecord{}, &Error{
				Code:   CodeAssignmentNotFound,
				Detail: fmt.Sprintf("assignment %s does not exist", p.AssignmentID),
			}
		}
		return models.ReminderRecord{}, fmt.Errorf("mark reminder sent: %w", err)
	}

	record, err := d.reminders.CreateReminder(ctx, a.ID, p.SentByUserID, now)
	if err != nil {
		return models.ReminderRecord{}, fmt.Errorf("create reminder record: %w", err)
	}

	telemetry.RemindersSent.Inc()
	d.log.Debug().
		Str("assignment_id", a.ID).
		Str("sent_by", p.SentByUserID).
		Int64("version", newVersion).
		Msg("reminder dispatched")
	return record, nil
}

// humanWindow renders whole-hour durations the way the API documents them
// ("24 hours"), falling back to Go notation for odd configurations.
func humanWindow(d time.Duration) string {
	if d >= time.Hour && d%time.Hour == 0 {
		return fmt.Sprintf("%d hours", int(d/time.Hour))
	}
	return d.String()
}
