package channel

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Known channel tags. Adding a channel means implementing Handler and
// registering its tag; nothing in the delivery path changes.
const (
	TagEmail = "email"
	TagSMS   = "sms"
	TagPush  = "push"
	TagInApp = "in_app"
)

// KnownTag reports whether the tag belongs to the fixed channel set.
func KnownTag(tag string) bool {
	switch tag {
	case TagEmail, TagSMS, TagPush, TagInApp:
		return true
	}
	return false
}

type Result int

const (
	ResultSuccess Result = iota
	ResultTransient
	ResultPermanent
)

// Outcome is the tri-state result of a send attempt. Transient failures
// are retried on the backoff schedule; permanent ones fail the delivery
// immediately.
type Outcome struct {
	Result Result
	Reason string
}

func Success() Outcome {
	return Outcome{Result: ResultSuccess}
}

func Transient(reason string) Outcome {
	return Outcome{Result: ResultTransient, Reason: reason}
}

func Permanent(reason string) Outcome {
	return Outcome{Result: ResultPermanent, Reason: reason}
}

// Message carries everything a handler needs for one send: the resolved
// recipient address plus the subject context for the notification body.
// Template rendering stays out of the handlers on purpose.
type Message struct {
	RuleID       uuid.UUID
	OwnerID      uuid.UUID
	Recipient    string
	SubjectTitle string
	DueAt        time.Time
}

// Handler is the capability every delivery channel implements.
type Handler interface {
	Send(ctx context.Context, msg Message) Outcome
}

// Registry maps channel tags to handlers. Populated once at startup and
// read-only afterwards, so no locking.
type Registry struct {
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(tag string, h Handler) error {
	if !KnownTag(tag) {
		return fmt.Errorf("unknown channel tag: %s", tag)
	}
	if _, exists := r.handlers[tag]; exists {
		return fmt.Errorf("channel tag already registered: %s", tag)
	}
	r.handlers[tag] = h
	return nil
}

func (r *Registry) Resolve(tag string) (Handler, bool) {
	h, ok := r.handlers[tag]
	return h, ok
}

// Tags returns the registered tags in stable order.
func (r *Registry) Tags() []string {
	tags := make([]string, 0, len(r.handlers))
	for tag := range r.handlers {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
