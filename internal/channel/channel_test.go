package channel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubHandler struct {
	outcome Outcome
}

func (h *stubHandler) Send(ctx context.Context, msg Message) Outcome {
	return h.outcome
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(TagEmail, &stubHandler{outcome: Success()}))
	require.NoError(t, r.Register(TagSMS, &stubHandler{outcome: Success()}))

	h, ok := r.Resolve(TagEmail)
	assert.True(t, ok)
	assert.NotNil(t, h)

	_, ok = r.Resolve(TagPush)
	assert.False(t, ok)

	assert.Equal(t, []string{TagEmail, TagSMS}, r.Tags())
}

func TestRegistryRejectsUnknownTag(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register("carrier_pigeon", &stubHandler{}))
}

func TestRegistryRejectsDuplicate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(TagEmail, &stubHandler{}))
	assert.Error(t, r.Register(TagEmail, &stubHandler{}))
}

func TestKnownTag(t *testing.T) {
	for _, tag := range []string{TagEmail, TagSMS, TagPush, TagInApp} {
		assert.True(t, KnownTag(tag), tag)
	}
	assert.False(t, KnownTag("fax"))
	assert.False(t, KnownTag(""))
}

func TestStubHandlersFailPermanently(t *testing.T) {
	msg := Message{Recipient: "someone"}

	sms := NewSMSHandler().Send(context.Background(), msg)
	assert.Equal(t, ResultPermanent, sms.Result)

	push := NewPushHandler().Send(context.Background(), msg)
	assert.Equal(t, ResultPermanent, push.Result)
}
