package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type DeliveryStatus string

const (
	DeliveryStatusPending DeliveryStatus = "pending"
	DeliveryStatusSent    DeliveryStatus = "sent"
	DeliveryStatusFailed  DeliveryStatus = "failed"
)

// DeliveryLog is the audit record of one send attempt lineage for a rule.
// Rows transition pending -> sent|failed exactly once; afterwards only the
// metadata map may be enriched.
type DeliveryLog struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	RuleID       uuid.UUID       `db:"rule_id" json:"rule_id"`
	OwnerID      uuid.UUID       `db:"owner_id" json:"owner_id"`
	SubjectID    uuid.UUID       `db:"subject_id" json:"subject_id"`
	Channel      string          `db:"channel" json:"channel"`
	Status       DeliveryStatus  `db:"status" json:"status"`
	SentAt       *time.Time      `db:"sent_at" json:"sent_at,omitempty"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	Metadata     json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}
