package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type OffsetUnit string

const (
	OffsetUnitMinutes OffsetUnit = "minutes"
	OffsetUnitHours   OffsetUnit = "hours"
	OffsetUnitDays    OffsetUnit = "days"
)

// ReminderRule describes when and through which channel an owner is
// reminded about a subject (one rule per owner/subject/channel).
type ReminderRule struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	OwnerID      uuid.UUID  `db:"owner_id" json:"owner_id"`
	SubjectID    uuid.UUID  `db:"subject_id" json:"subject_id"`
	Channel      string     `db:"channel" json:"channel"`
	OffsetAmount int        `db:"offset_amount" json:"offset_amount"`
	OffsetUnit   OffsetUnit `db:"offset_unit" json:"offset_unit"`
	Enabled      bool       `db:"enabled" json:"enabled"`
	LastSentAt   *time.Time `db:"last_sent_at" json:"last_sent_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Offset converts the configured amount/unit pair into a duration.
func (r *ReminderRule) Offset() time.Duration {
	switch r.OffsetUnit {
	case OffsetUnitHours:
		return time.Duration(r.OffsetAmount) * time.Hour
	case OffsetUnitDays:
		return time.Duration(r.OffsetAmount) * 24 * time.Hour
	default:
		return time.Duration(r.OffsetAmount) * time.Minute
	}
}

// TriggerAt computes the instant the rule becomes due for the given
// subject due time.
func (r *ReminderRule) TriggerAt(dueAt time.Time) time.Time {
	return dueAt.Add(-r.Offset())
}

// DueFor reports whether the rule should fire at now for a subject due at
// dueAt: the rule is enabled, the trigger time has been reached, and the
// last send falls outside the dedup window. ListDue's WHERE clause is the
// set form of this predicate; this is the authoritative single-rule check.
func (r *ReminderRule) DueFor(dueAt, now time.Time, dedupWindow time.Duration) bool {
	if !r.Enabled {
		return false
	}
	if now.Before(r.TriggerAt(dueAt)) {
		return false
	}
	if r.LastSentAt != nil && !r.LastSentAt.Before(now.Add(-dedupWindow)) {
		return false
	}
	return true
}

func (r *ReminderRule) Validate() error {
	if r.OwnerID == uuid.Nil {
		return fmt.Errorf("owner ID is required")
	}
	if r.SubjectID == uuid.Nil {
		return fmt.Errorf("subject ID is required")
	}
	if r.OffsetAmount <= 0 {
		return fmt.Errorf("offset amount must be greater than 0")
	}
	switch r.OffsetUnit {
	case OffsetUnitMinutes, OffsetUnitHours, OffsetUnitDays:
	default:
		return fmt.Errorf("unsupported offset unit: %s", r.OffsetUnit)
	}
	return nil
}
