package channel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"github.com/taskhive/notifier/pkg/messaging"
)

type fakeSender struct {
	err  error
	sent []*gomail.Message
}

func (s *fakeSender) DialAndSend(m ...*gomail.Message) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, m...)
	return nil
}

func emailMessage(recipient string) Message {
	return Message{
		RuleID:       uuid.New(),
		OwnerID:      uuid.New(),
		Recipient:    recipient,
		SubjectTitle: "Ship quarterly report",
		DueAt:        time.Date(2026, 4, 1, 17, 0, 0, 0, time.UTC),
	}
}

func TestEmailSendSuccess(t *testing.T) {
	sender := &fakeSender{}
	h := NewEmailHandlerWithSender(sender, "reminders@taskhive.io")

	outcome := h.Send(context.Background(), emailMessage("owner@example.com"))

	assert.Equal(t, ResultSuccess, outcome.Result)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, []string{"owner@example.com"}, sender.sent[0].GetHeader("To"))
	assert.Contains(t, sender.sent[0].GetHeader("Subject")[0], "Ship quarterly report")
}

func TestEmailSendInvalidRecipientIsPermanent(t *testing.T) {
	sender := &fakeSender{}
	h := NewEmailHandlerWithSender(sender, "reminders@taskhive.io")

	outcome := h.Send(context.Background(), emailMessage("not-an-address"))

	assert.Equal(t, ResultPermanent, outcome.Result)
	assert.Empty(t, sender.sent, "no SMTP attempt for an unparseable address")
}

func TestEmailSendSMTPErrorIsTransient(t *testing.T) {
	sender := &fakeSender{err: errors.New("connection refused")}
	h := NewEmailHandlerWithSender(sender, "reminders@taskhive.io")

	outcome := h.Send(context.Background(), emailMessage("owner@example.com"))

	assert.Equal(t, ResultTransient, outcome.Result)
	assert.Contains(t, outcome.Reason, "connection refused")
}

type fakeBroker struct {
	err       error
	published []interface{}
}

func (b *fakeBroker) Publish(ctx context.Context, channel string, message interface{}) error {
	if b.err != nil {
		return b.err
	}
	b.published = append(b.published, message)
	return nil
}

func (b *fakeBroker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return nil, errors.New("not implemented")
}

func (b *fakeBroker) Close() error { return nil }

func TestInAppSendPublishesEvent(t *testing.T) {
	broker := &fakeBroker{}
	h := NewInAppHandler(broker)

	msg := emailMessage("ignored")
	outcome := h.Send(context.Background(), msg)

	assert.Equal(t, ResultSuccess, outcome.Result)
	require.Len(t, broker.published, 1)
	envelope := broker.published[0].(messaging.Message)
	assert.Equal(t, "reminder.due", envelope.Type)
	event := envelope.Payload.(InAppEvent)
	assert.Equal(t, msg.RuleID, event.RuleID)
	assert.Equal(t, msg.OwnerID, event.OwnerID)
	assert.Equal(t, msg.SubjectTitle, event.Title)
}

func TestInAppSendBrokerFailureIsTransient(t *testing.T) {
	broker := &fakeBroker{err: errors.New("redis unavailable")}
	h := NewInAppHandler(broker)

	outcome := h.Send(context.Background(), emailMessage("ignored"))

	assert.Equal(t, ResultTransient, outcome.Result)
}
