package channel

import (
	"context"
)

// SMSHandler is a structural stub. The tag is registered so rules can be
// configured ahead of a real gateway integration; every send reports a
// permanent failure rather than silently pretending to deliver.
type SMSHandler struct{}

func NewSMSHandler() *SMSHandler {
	return &SMSHandler{}
}

func (h *SMSHandler) Send(_ context.Context, _ Message) Outcome {
	return Permanent("sms channel is not configured")
}
