package model

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestOffset(t *testing.T) {
	tests := []struct {
		name   string
		amount int
		unit   OffsetUnit
		want   time.Duration
	}{
		{"minutes", 30, OffsetUnitMinutes, 30 * time.Minute},
		{"hours", 2, OffsetUnitHours, 2 * time.Hour},
		{"days", 1, OffsetUnitDays, 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := &ReminderRule{OffsetAmount: tt.amount, OffsetUnit: tt.unit}
			assert.Equal(t, tt.want, rule.Offset())
		})
	}
}

func TestTriggerAt(t *testing.T) {
	dueAt := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	rule := &ReminderRule{OffsetAmount: 30, OffsetUnit: OffsetUnitMinutes}

	trigger := rule.TriggerAt(dueAt)
	assert.Equal(t, time.Date(2026, 3, 15, 9, 30, 0, 0, time.UTC), trigger)

	// One minute before the trigger instant the rule is not yet due; at
	// the instant itself it is.
	before := trigger.Add(-time.Minute)
	assert.True(t, before.Before(trigger))
	assert.False(t, trigger.Before(trigger))
}

func TestDueFor(t *testing.T) {
	// Task due 14:00 with a 30 minute offset triggers at 13:30.
	dueAt := time.Date(2026, 3, 15, 14, 0, 0, 0, time.UTC)
	window := time.Hour

	base := ReminderRule{
		Enabled:      true,
		OffsetAmount: 30,
		OffsetUnit:   OffsetUnitMinutes,
	}

	recentSend := dueAt.Add(-45 * time.Minute)
	staleSend := dueAt.Add(-3 * time.Hour)

	tests := []struct {
		name   string
		mutate func(*ReminderRule)
		now    time.Time
		want   bool
	}{
		{"one minute before trigger", nil, dueAt.Add(-31 * time.Minute), false},
		{"at trigger instant", nil, dueAt.Add(-30 * time.Minute), true},
		{"past trigger", nil, dueAt.Add(-29 * time.Minute), true},
		{"disabled", func(r *ReminderRule) { r.Enabled = false }, dueAt.Add(-29 * time.Minute), false},
		{"sent inside window", func(r *ReminderRule) { r.LastSentAt = &recentSend }, dueAt.Add(-29 * time.Minute), false},
		{"sent exactly at window edge", func(r *ReminderRule) { r.LastSentAt = &recentSend }, recentSend.Add(window), false},
		{"sent outside window", func(r *ReminderRule) { r.LastSentAt = &staleSend }, dueAt.Add(-29 * time.Minute), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := base
			if tt.mutate != nil {
				tt.mutate(&rule)
			}
			assert.Equal(t, tt.want, rule.DueFor(dueAt, tt.now, window))
		})
	}
}

func TestRuleValidate(t *testing.T) {
	valid := &ReminderRule{
		OwnerID:      uuid.New(),
		SubjectID:    uuid.New(),
		Channel:      "email",
		OffsetAmount: 15,
		OffsetUnit:   OffsetUnitMinutes,
	}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*ReminderRule)
	}{
		{"missing owner", func(r *ReminderRule) { r.OwnerID = uuid.Nil }},
		{"missing subject", func(r *ReminderRule) { r.SubjectID = uuid.Nil }},
		{"zero offset", func(r *ReminderRule) { r.OffsetAmount = 0 }},
		{"negative offset", func(r *ReminderRule) { r.OffsetAmount = -5 }},
		{"bad unit", func(r *ReminderRule) { r.OffsetUnit = "weeks" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := *valid
			tt.mutate(&rule)
			assert.Error(t, rule.Validate())
		})
	}
}

func TestJobStateTerminal(t *testing.T) {
	assert.True(t, JobStateCompleted.Terminal())
	assert.True(t, JobStateFailed.Terminal())
	assert.False(t, JobStatePending.Terminal())
	assert.False(t, JobStateProcessing.Terminal())
	assert.False(t, JobStateRetrying.Terminal())
}

func TestOwnerContactRecipient(t *testing.T) {
	phone := "+15551234567"
	contact := &OwnerContact{
		ID:    uuid.New(),
		Email: "owner@example.com",
		Phone: &phone,
	}

	assert.Equal(t, "owner@example.com", contact.Recipient("email"))
	assert.Equal(t, phone, contact.Recipient("sms"))
	assert.Equal(t, contact.ID.String(), contact.Recipient("in_app"))
	assert.Empty(t, contact.Recipient("push"), "no push token configured")
	assert.Empty(t, contact.Recipient("carrier_pigeon"))
}
