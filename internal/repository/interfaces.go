package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/taskhive/notifier/internal/model"
	"github.com/taskhive/notifier/pkg/queue"
)

// RuleRepository owns writes to reminder rules. The external CRUD surface
// goes through Create/Update/SetEnabled/Delete; delivery jobs touch only
// MarkSent.
type RuleRepository interface {
	Create(ctx context.Context, rule *model.ReminderRule) error
	Get(ctx context.Context, id uuid.UUID) (*model.ReminderRule, error)
	Update(ctx context.Context, rule *model.ReminderRule) error
	SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*model.ReminderRule, error)

	// ListDue returns enabled rules whose trigger time has passed and whose
	// last send is outside the dedup window, joined with their subject.
	ListDue(ctx context.Context, now time.Time, dedupWindow time.Duration, limit int) ([]*model.DueRule, error)

	// MarkSent advances last_sent_at, keeping it monotonically
	// non-decreasing under concurrent writers.
	MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error
}

// DeliveryLogFilter narrows List; nil fields are ignored.
type DeliveryLogFilter struct {
	RuleID  *uuid.UUID
	OwnerID *uuid.UUID
	Status  *string
	Limit   int
	Offset  int
}

// DeliveryLogRepository owns the append/update audit trail of send attempts.
type DeliveryLogRepository interface {
	Create(ctx context.Context, log *model.DeliveryLog) error
	Get(ctx context.Context, id uuid.UUID) (*model.DeliveryLog, error)
	List(ctx context.Context, filter DeliveryLogFilter) ([]*model.DeliveryLog, error)
	MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error

	// HasSentWithin reports whether a sent row exists for the rule inside
	// the dedup window. This is the authoritative duplicate check delivery
	// jobs run before contacting any channel.
	HasSentWithin(ctx context.Context, ruleID uuid.UUID, window time.Duration) (bool, error)

	// FindPending returns the rule's open pending row inside the window,
	// if any. Retrying jobs reuse it instead of opening a second lineage,
	// which is what keeps the no-two-active-rows invariant.
	FindPending(ctx context.Context, ruleID uuid.UUID, window time.Duration) (*model.DeliveryLog, error)
}

// JobRepository is the job status tracker plus the durable queue built on
// top of it.
type JobRepository interface {
	queue.Queue
	queue.Reaper

	Get(ctx context.Context, id uuid.UUID) (*model.JobStatus, error)
	GetByKey(ctx context.Context, idempotencyKey string) (*model.JobStatus, error)
	RunnableCount(ctx context.Context, queue string) (int64, error)
	DeleteTerminalBefore(ctx context.Context, before time.Time) (int64, error)
}

// SubjectReader is the read-only view onto the external task/user store.
type SubjectReader interface {
	GetSubject(ctx context.Context, id uuid.UUID) (*model.Subject, error)
	GetOwnerContact(ctx context.Context, ownerID uuid.UUID) (*model.OwnerContact, error)
}
