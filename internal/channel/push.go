package channel

import (
	"context"
)

// PushHandler is a structural stub, same contract as SMSHandler.
type PushHandler struct{}

func NewPushHandler() *PushHandler {
	return &PushHandler{}
}

func (h *PushHandler) Send(_ context.Context, _ Message) Outcome {
	return Permanent("push channel is not configured")
}
