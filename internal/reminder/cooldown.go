package reminder

import (
	"time"
)

// CanSend reports whether enough time has passed since the last reminder.
// A nil lastSentAt always permits sending. The boundary is inclusive:
// elapsed time exactly equal to the cooldown permits sending.
func CanSend(lastSentAt *time.Time, now time.Time, cooldown time.Duration) bool {
	if lastSentAt == nil {
		return true
	}
	return now.Sub(*lastSentAt) >= cooldown
}

// CooldownRemaining returns how long until the cooldown expires, or zero if
// sending is already permitted.
func CooldownRemaining(lastSentAt *time.Time, now time.Time, cooldown time.Duration) time.Duration {
	if lastSentAt == nil {
		return 0
	}
	remaining := cooldown - now.Sub(*lastSentAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}
