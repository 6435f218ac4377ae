package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type JobState string

const (
	JobStatePending    JobState = "pending"
	JobStateProcessing JobState = "processing"
	JobStateRetrying   JobState = "retrying"
	JobStateCompleted  JobState = "completed"
	JobStateFailed     JobState = "failed"
)

// Terminal reports whether the state admits no further transitions.
func (s JobState) Terminal() bool {
	return s == JobStateCompleted || s == JobStateFailed
}

const (
	JobTypeReminderDelivery = "reminder_delivery"

	QueueDefault       = "default"
	QueueNotifications = "notifications"
	QueueHeavy         = "heavy"
)

// JobStatus is the generic lifecycle record for one asynchronous unit of
// work. The idempotency key is unique across all non-terminal rows, which
// is what suppresses duplicate enqueues of the same logical job.
type JobStatus struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	IdempotencyKey string          `db:"idempotency_key" json:"idempotency_key"`
	JobType        string          `db:"job_type" json:"job_type"`
	Queue          string          `db:"queue" json:"queue"`
	Status         JobState        `db:"status" json:"status"`
	Attempts       int             `db:"attempts" json:"attempts"`
	MaxAttempts    int             `db:"max_attempts" json:"max_attempts"`
	Progress       int             `db:"progress" json:"progress"`
	RunAt          time.Time       `db:"run_at" json:"run_at"`
	Payload        json.RawMessage `db:"payload" json:"payload"`
	ErrorMessage   *string         `db:"error_message" json:"error_message,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
	CompletedAt    *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
}

// DeliveryPayload is the payload carried by reminder_delivery jobs. It
// names the rule only; everything else is re-read fresh at execution time.
type DeliveryPayload struct {
	RuleID uuid.UUID `json:"rule_id"`
}
