package model

import (
	"time"

	"github.com/google/uuid"
)

// Subject is the read-only snapshot of a task record owned by the external
// CRUD surface. The engine never writes to it.
type Subject struct {
	ID      uuid.UUID `db:"id" json:"id"`
	OwnerID uuid.UUID `db:"owner_id" json:"owner_id"`
	Title   string    `db:"title" json:"title"`
	DueAt   time.Time `db:"due_at" json:"due_at"`
}

// OwnerContact carries the per-channel recipient addresses read from the
// external user store.
type OwnerContact struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	Phone     *string   `db:"phone" json:"phone,omitempty"`
	PushToken *string   `db:"push_token" json:"push_token,omitempty"`
}

// Recipient resolves the address for a channel tag. An empty string means
// the owner has no usable address for that channel.
func (c *OwnerContact) Recipient(channel string) string {
	switch channel {
	case "email":
		return c.Email
	case "sms":
		if c.Phone != nil {
			return *c.Phone
		}
	case "push":
		if c.PushToken != nil {
			return *c.PushToken
		}
	case "in_app":
		return c.ID.String()
	}
	return ""
}

// DueRule pairs a due reminder rule with the subject/owner snapshot taken
// at evaluation time. Delivery jobs treat the snapshot as advisory and
// re-read everything before sending.
type DueRule struct {
	Rule      ReminderRule
	Subject   Subject
	Recipient string
	TriggerAt time.Time
}
