package channel

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"golang.org/x/time/rate"
	"gopkg.in/gomail.v2"

	"github.com/taskhive/notifier/pkg/circuitbreaker"
)

// EmailSender abstracts gomail's dialer so tests can stub the SMTP hop.
type EmailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

type EmailConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	From        string
	SendRate    float64
	SendBurst   int
	BreakerMax  int
	BreakerWait time.Duration
}

// EmailHandler delivers reminders over SMTP. A malformed recipient is a
// permanent failure; anything the SMTP hop reports (connection refused,
// greylisting, timeouts) is treated as transient and left to the retry
// schedule. The breaker keeps a dead relay from burning every attempt.
type EmailHandler struct {
	sender  EmailSender
	from    string
	limiter *rate.Limiter
	breaker *circuitbreaker.CircuitBreaker
}

func NewEmailHandler(cfg EmailConfig) *EmailHandler {
	return &EmailHandler{
		sender:  gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:    cfg.From,
		limiter: rate.NewLimiter(rate.Limit(cfg.SendRate), cfg.SendBurst),
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "smtp",
			MaxFailures: cfg.BreakerMax,
			Timeout:     cfg.BreakerWait,
		}),
	}
}

// NewEmailHandlerWithSender is the test seam.
func NewEmailHandlerWithSender(sender EmailSender, from string) *EmailHandler {
	return &EmailHandler{
		sender:  sender,
		from:    from,
		limiter: rate.NewLimiter(rate.Inf, 1),
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "smtp",
			MaxFailures: 1000,
			Timeout:     time.Second,
		}),
	}
}

func (h *EmailHandler) Send(ctx context.Context, msg Message) Outcome {
	if _, err := mail.ParseAddress(msg.Recipient); err != nil {
		return Permanent(fmt.Sprintf("invalid recipient address %q: %v", msg.Recipient, err))
	}

	if err := h.limiter.Wait(ctx); err != nil {
		return Transient(fmt.Sprintf("rate limiter interrupted: %v", err))
	}

	m := gomail.NewMessage()
	m.SetHeader("From", h.from)
	m.SetHeader("To", msg.Recipient)
	m.SetHeader("Subject", fmt.Sprintf("Reminder: %s", msg.SubjectTitle))
	m.SetBody("text/plain", fmt.Sprintf(
		"Your task %q is due at %s.",
		msg.SubjectTitle,
		msg.DueAt.Format(time.RFC1123),
	))

	err := h.breaker.Execute(func() error {
		return h.sender.DialAndSend(m)
	})
	if err != nil {
		return Transient(fmt.Sprintf("smtp send failed: %v", err))
	}

	return Success()
}
