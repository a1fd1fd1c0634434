package reminder

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"assignment-reminders/internal/models"
	"assignment-reminders/internal/store"
)

type memAssignments struct {
	mu   sync.Mutex
	byID map[string]*models.Assignment
}

func newMemAssignments(assignments ...models.Assignment) *memAssignments {
	m := &memAssignments{byID: make(map[string]*models.Assignment)}
	for i := range assignments {
		a := assignments[i]
		m.byID[a.ID] = &a
	}
	return m
}

func (m *memAssignments) GetAssignment(_ context.Context, id string) (models.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return models.Assignment{}, fmt.Errorf("assignment %s: %w", id, store.ErrNotFound)
	}
	return *a, nil
}

func (m *memAssignments) MarkReminderSent(_ context.Context, id string, expectedVersion int64, sentAt time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return 0, fmt.Errorf("assignment %s: %w", id, store.ErrNotFound)
	}
	if a.Version != expectedVersion {
		return 0, fmt.Errorf("assignment %s at version %d: %w", id, expectedVersion, store.ErrVersionConflict)
	}
	ts := sentAt
	a.LastReminderSentAt = &ts
	a.Version++
	return a.Version, nil
}

type memReminders struct {
	mu      sync.Mutex
	records []models.ReminderRecord
}

func (m *memReminders) CreateReminder(_ context.Context, assignmentID, sentByUserID string, sentAt time.Time) (models.ReminderRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := models.ReminderRecord{
		ID:             fmt.Sprintf("rec-%d", len(m.records)+1),
		AssignmentID:   assignmentID,
		SentByUserID:   sentByUserID,
		DeliveryStatus: models.DeliveryPending,
		CreatedAt:      sentAt,
	}
	m.records = append(m.records, r)
	return r, nil
}

type memLimiter struct {
	mu       sync.Mutex
	capacity int
	counts   map[string]int
}

func newMemLimiter(capacity int) *memLimiter {
	return &memLimiter{capacity: capacity, counts: make(map[string]int)}
}

func (m *memLimiter) Allow(_ context.Context, key string) (bool, int64, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[key]++
	count := m.counts[key]
	remaining := int64(m.capacity - count)
	if remaining < 0 {
		remaining = 0
	}
	return count <= m.capacity, remaining, time.Minute, nil
}

func strPtr(s string) *string { return &s }

func pendingAssignment(id string) models.Assignment {
	return models.Assignment{
		ID:           id,
		WorkItemID:   "work-item-1",
		WorkItemType: "dossier",
		AssigneeID:   strPtr("assignee-1"),
		Status:       models.AssignmentPending,
		Priority:     models.PriorityHigh,
		Version:      1,
	}
}

func newTestDispatcher(assignments *memAssignments, reminders *memReminders, limiter Limiter) *Dispatcher {
	return NewDispatcher(assignments, reminders, limiter, 24*time.Hour, zerolog.Nop())
}

func TestSendFirstReminderSucceeds(t *testing.T) {
	ctx := context.Background()
	assignments := newMemAssignments(pendingAssignment("a-1"))
	reminders := &memReminders{}
	d := newTestDispatcher(assignments, reminders, newMemLimiter(100))

	record, err := d.Send(ctx, SendParams{AssignmentID: "a-1", SentByUserID: "u-1"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if record.DeliveryStatus != models.DeliveryPending {
		t.Fatalf("delivery status = %q, want pending", record.DeliveryStatus)
	}

	a, _ := assignments.GetAssignment(ctx, "a-1")
	if a.Version != 2 {
		t.Fatalf("version = %d, want 2", a.Version)
	}
	if a.LastReminderSentAt == nil {
		t.Fatal("last_reminder_sent_at not set")
	}
	if len(reminders.records) != 1 {
		t.Fatalf("reminder records = %d, want 1", len(reminders.records))
	}
}

func TestSendUnknownAssignment(t *testing.T) {
	d := newTestDispatcher(newMemAssignments(), &memReminders{}, newMemLimiter(100))

	_, err := d.Send(context.Background(), SendParams{AssignmentID: "missing", SentByUserID: "u-1"})
	if CodeOf(err) != CodeAssignmentNotFound {
		t.Fatalf("code = %q, want ASSIGNMENT_NOT_FOUND", CodeOf(err))
	}
}

func TestSendNoAssignee(t *testing.T) {
	a := pendingAssignment("a-1")
	a.AssigneeID = nil
	d := newTestDispatcher(newMemAssignments(a), &memReminders{}, newMemLimiter(100))

	_, err := d.Send(context.Background(), SendParams{AssignmentID: "a-1", SentByUserID: "u-1"})
	if CodeOf(err) != CodeNoAssignee {
		t.Fatalf("code = %q, want NO_ASSIGNEE", CodeOf(err))
	}
}

func TestSendClosedStatuses(t *testing.T) {
	for _, status := range []string{models.AssignmentCompleted, models.AssignmentCancelled} {
		a := pendingAssignment("a-1")
		a.Status = status
		d := newTestDispatcher(newMemAssignments(a), &memReminders{}, newMemLimiter(100))

		_, err := d.Send(context.Background(), SendParams{AssignmentID: "a-1", SentByUserID: "u-1"})
		if CodeOf(err) != CodeInvalidStatus {
			t.Fatalf("status %s: code = %q, want INVALID_STATUS", status, CodeOf(err))
		}
	}
}

func TestSendWithinCooldownRejected(t *testing.T) {
	ctx := context.Background()
	assignments := newMemAssignments(pendingAssignment("a-1"))
	d := newTestDispatcher(assignments, &memReminders{}, newMemLimiter(100))

	if _, err := d.Send(ctx, SendParams{AssignmentID: "a-1", SentByUserID: "u-1"}); err != nil {
		t.Fatalf("first send: %v", err)
	}

	_, err := d.Send(ctx, SendParams{AssignmentID: "a-1", SentByUserID: "u-1"})
	de, ok := AsError(err)
	if !ok || de.Code != CodeCooldownActive {
		t.Fatalf("second send err = %v, want COOLDOWN_ACTIVE", err)
	}
	if !strings.Contains(de.Detail, "24 hours") {
		t.Fatalf("cooldown detail %q does not mention the 24-hour window", de.Detail)
	}
	if de.RetryAfter <= 0 || de.RetryAfter > 24*time.Hour {
		t.Fatalf("retry after = %s, want within (0, 24h]", de.RetryAfter)
	}
}

func TestSendAfterCooldownSucceedsAndResetsClock(t *testing.T) {
	ctx := context.Background()
	assignments := newMemAssignments(pendingAssignment("a-1"))
	d := newTestDispatcher(assignments, &memReminders{}, newMemLimiter(100))

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	current := base
	d.WithClock(func() time.Time { return current })

	if _, err := d.Send(ctx, SendParams{AssignmentID: "a-1", SentByUserID: "u-1"}); err != nil {
		t.Fatalf("first send: %v", err)
	}

	// Exactly at the boundary the cooldown is inclusive.
	current = base.Add(24 * time.Hour)
	if _, err := d.Send(ctx, SendParams{AssignmentID: "a-1", SentByUserID: "u-1"}); err != nil {
		t.Fatalf("send at cooldown boundary: %v", err)
	}

	a, _ := assignments.GetAssignment(ctx, "a-1")
	if !a.LastReminderSentAt.Equal(current) {
		t.Fatalf("cooldown clock = %s, want reset to %s", a.LastReminderSentAt, current)
	}
	if a.Version != 3 {
		t.Fatalf("version = %d, want 3", a.Version)
	}
}

func TestSendRateLimited(t *testing.T) {
	ctx := context.Background()
	limiter := newMemLimiter(2)
	var seed []models.Assignment
	for i := 0; i < 3; i++ {
		seed = append(seed, pendingAssignment(fmt.Sprintf("a-%d", i)))
	}
	d := newTestDispatcher(newMemAssignments(seed...), &memReminders{}, limiter)

	for i := 0; i < 2; i++ {
		if _, err := d.Send(ctx, SendParams{AssignmentID: fmt.Sprintf("a-%d", i), SentByUserID: "u-1"}); err != nil {
			t.Fatalf("send %d: %v", i+1, err)
		}
	}

	_, err := d.Send(ctx, SendParams{AssignmentID: "a-2", SentByUserID: "u-1"})
	de, ok := AsError(err)
	if !ok || de.Code != CodeRateLimitExceeded {
		t.Fatalf("err = %v, want RATE_LIMIT_EXCEEDED", err)
	}
	if de.RetryAfter <= 0 {
		t.Fatalf("retry after = %s, want positive window reset", de.RetryAfter)
	}
}

func TestSendStaleExplicitVersionConflicts(t *testing.T) {
	ctx := context.Background()
	assignments := newMemAssignments(pendingAssignment("a-1"))
	d := newTestDispatcher(assignments, &memReminders{}, newMemLimiter(100))

	stale := int64(7)
	_, err := d.Send(ctx, SendParams{AssignmentID: "a-1", SentByUserID: "u-1", ExpectedVersion: &stale})
	if CodeOf(err) != CodeVersionConflict {
		t.Fatalf("code = %q, want VERSION_CONFLICT", CodeOf(err))
	}

	// The caller-supplied handle takes precedence, so nothing was written.
	a, _ := assignments.GetAssignment(ctx, "a-1")
	if a.Version != 1 || a.LastReminderSentAt != nil {
		t.Fatalf("assignment mutated despite stale version: %+v", a)
	}
}

func TestConcurrentSendsExactlyOneWins(t *testing.T) {
	ctx := context.Background()
	assignments := newMemAssignments(pendingAssignment("a-1"))
	reminders := &memReminders{}
	d := newTestDispatcher(assignments, reminders, newMemLimiter(100))

	const callers = 8
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = d.Send(ctx, SendParams{AssignmentID: "a-1", SentByUserID: fmt.Sprintf("u-%d", i)})
		}(i)
	}
	wg.Wait()

	var wins, conflicts, cooldowns int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case CodeOf(err) == CodeVersionConflict:
			conflicts++
		case CodeOf(err) == CodeCooldownActive:
			// Raced after the winner's write landed; also a correct loss.
			cooldowns++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("winners = %d, want exactly 1 (conflicts=%d cooldowns=%d)", wins, conflicts, cooldowns)
	}
	if len(reminders.records) != 1 {
		t.Fatalf("reminder records = %d, want 1", len(reminders.records))
	}

	a, _ := assignments.GetAssignment(ctx, "a-1")
	if a.Version != 2 {
		t.Fatalf("version = %d, want 2", a.Version)
	}
}
