package channel

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/taskhive/notifier/pkg/messaging"
)

const (
	inAppTopic     = "notifications"
	inAppEventType = "reminder.due"
)

// InAppEvent is what the web application consumes off the broker to show
// an in-app notification.
type InAppEvent struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   uuid.UUID `json:"owner_id"`
	RuleID    uuid.UUID `json:"rule_id"`
	Title     string    `json:"title"`
	DueAt     time.Time `json:"due_at"`
	CreatedAt time.Time `json:"created_at"`
}

// InAppHandler publishes reminder events to the message broker; the UI
// layer subscribed to the notifications topic renders them. Broker
// publish failures are transient by definition (redis comes back).
type InAppHandler struct {
	broker messaging.Broker
}

func NewInAppHandler(broker messaging.Broker) *InAppHandler {
	return &InAppHandler{broker: broker}
}

func (h *InAppHandler) Send(ctx context.Context, msg Message) Outcome {
	event := InAppEvent{
		ID:        uuid.New(),
		OwnerID:   msg.OwnerID,
		RuleID:    msg.RuleID,
		Title:     msg.SubjectTitle,
		DueAt:     msg.DueAt,
		CreatedAt: time.Now(),
	}

	envelope := messaging.Message{
		Type:    inAppEventType,
		Payload: event,
	}
	if err := h.broker.Publish(ctx, inAppTopic, envelope); err != nil {
		return Transient(fmt.Sprintf("broker publish failed: %v", err))
	}
	return Success()
}
