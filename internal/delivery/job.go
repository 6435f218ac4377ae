package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/taskhive/notifier/internal/channel"
	"github.com/taskhive/notifier/internal/model"
	"github.com/taskhive/notifier/internal/repository"
	apperrors "github.com/taskhive/notifier/pkg/errors"
	"github.com/taskhive/notifier/pkg/logger"
	"github.com/taskhive/notifier/pkg/metrics"
)

// DefaultBackoff is the fixed retry schedule, indexed by completed attempt
// count. Fixed rather than exponential so the worst-case latency of a
// reminder stays predictable.
var DefaultBackoff = []time.Duration{
	60 * time.Second,
	300 * time.Second,
	900 * time.Second,
}

type Config struct {
	DedupWindow time.Duration
	Backoff     []time.Duration
}

// Executor runs one claimed reminder_delivery job through its state
// machine. The worker pool hands it jobs already transitioned to
// processing with the attempt counter incremented.
//
// The execution re-validates everything from fresh reads: the snapshot the
// dispatcher saw may be minutes old and the rule may have been disabled or
// its subject deleted in between.
type Executor struct {
	rules    repository.RuleRepository
	logs     repository.DeliveryLogRepository
	jobs     repository.JobRepository
	subjects repository.SubjectReader
	registry *channel.Registry
	config   Config
	logger   *logger.Logger
	metrics  *metrics.Metrics
}

func NewExecutor(
	rules repository.RuleRepository,
	logs repository.DeliveryLogRepository,
	jobs repository.JobRepository,
	subjects repository.SubjectReader,
	registry *channel.Registry,
	config Config,
	logger *logger.Logger,
	m *metrics.Metrics,
) *Executor {
	if config.DedupWindow <= 0 {
		config.DedupWindow = time.Hour
	}
	if len(config.Backoff) == 0 {
		config.Backoff = DefaultBackoff
	}
	return &Executor{
		rules:    rules,
		logs:     logs,
		jobs:     jobs,
		subjects: subjects,
		registry: registry,
		config:   config,
		logger:   logger,
		metrics:  m,
	}
}

// JobType reports which jobs this executor handles.
func (e *Executor) JobType() string {
	return model.JobTypeReminderDelivery
}

// Execute drives one attempt. Terminal outcomes ack the job; transient
// channel failures with attempts left schedule a retry on the fixed
// backoff. The returned error covers infrastructure failures only (the
// queue redelivers those jobs after the claim timeout).
func (e *Executor) Execute(ctx context.Context, job *model.JobStatus) error {
	timer := prometheus.NewTimer(e.metrics.DeliveryLatency)
	defer timer.ObserveDuration()

	var payload model.DeliveryPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		// Unparseable payloads can never succeed; fail without retry.
		return e.fail(ctx, job, nil, "", fmt.Sprintf("malformed job payload: %v", err))
	}

	log := e.logger.WithFields(map[string]interface{}{
		"job_id":  job.ID.String(),
		"rule_id": payload.RuleID.String(),
		"attempt": job.Attempts,
	})

	// Step 1: re-fetch the rule fresh. Disabled or deleted rules turn the
	// job into a no-op, not a failure.
	rule, err := e.rules.Get(ctx, payload.RuleID)
	if err != nil {
		if isNotFound(err) {
			log.Info("rule deleted before delivery, completing as no-op")
			return e.skip(ctx, job)
		}
		return e.retryInfra(ctx, job, log, fmt.Errorf("failed to re-read rule: %w", err))
	}
	if !rule.Enabled {
		log.Info("rule disabled before delivery, completing as no-op")
		return e.skip(ctx, job)
	}

	// Step 2: authoritative duplicate check against the delivery log.
	sent, err := e.logs.HasSentWithin(ctx, rule.ID, e.config.DedupWindow)
	if err != nil {
		return e.retryInfra(ctx, job, log, fmt.Errorf("failed dedup check: %w", err))
	}
	if sent {
		log.Info("already sent within dedup window, completing as no-op")
		return e.skip(ctx, job)
	}

	subject, err := e.subjects.GetSubject(ctx, rule.SubjectID)
	if err != nil {
		if isNotFound(err) {
			log.Info("subject deleted before delivery, completing as no-op")
			return e.skip(ctx, job)
		}
		return e.retryInfra(ctx, job, log, fmt.Errorf("failed to re-read subject: %w", err))
	}

	contact, err := e.subjects.GetOwnerContact(ctx, rule.OwnerID)
	if err != nil {
		if isNotFound(err) {
			return e.fail(ctx, job, rule, subject.Title, "owner record no longer exists")
		}
		return e.retryInfra(ctx, job, log, fmt.Errorf("failed to read owner contact: %w", err))
	}

	recipient := contact.Recipient(rule.Channel)
	if recipient == "" {
		return e.fail(ctx, job, rule, subject.Title, fmt.Sprintf("owner has no %s address configured", rule.Channel))
	}

	handler, ok := e.registry.Resolve(rule.Channel)
	if !ok {
		return e.fail(ctx, job, rule, subject.Title, fmt.Sprintf("no handler registered for channel %s", rule.Channel))
	}

	// Step 3: open (or on retry, reuse) the pending audit row, then send.
	dlog, err := e.openPending(ctx, rule, subject)
	if err != nil {
		return e.retryInfra(ctx, job, log, fmt.Errorf("failed to open delivery log: %w", err))
	}

	outcome := handler.Send(ctx, channel.Message{
		RuleID:       rule.ID,
		OwnerID:      rule.OwnerID,
		Recipient:    recipient,
		SubjectTitle: subject.Title,
		DueAt:        subject.DueAt,
	})

	switch outcome.Result {
	case channel.ResultSuccess:
		return e.complete(ctx, job, rule, dlog, log)
	case channel.ResultTransient:
		return e.handleTransient(ctx, job, rule, dlog, outcome.Reason, log)
	default:
		return e.failWithLog(ctx, job, rule, dlog, outcome.Reason, log)
	}
}

func (e *Executor) openPending(ctx context.Context, rule *model.ReminderRule, subject *model.Subject) (*model.DeliveryLog, error) {
	existing, err := e.logs.FindPending(ctx, rule.ID, e.config.DedupWindow)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	dlog := &model.DeliveryLog{
		RuleID:    rule.ID,
		OwnerID:   rule.OwnerID,
		SubjectID: rule.SubjectID,
		Channel:   rule.Channel,
		Metadata:  json.RawMessage(fmt.Sprintf(`{"subject_title":%q}`, subject.Title)),
	}
	if err := e.logs.Create(ctx, dlog); err != nil {
		return nil, err
	}
	return dlog, nil
}

// complete is the PROCESSING -> COMPLETED transition: delivery log to
// sent, rule last_sent_at advanced, job acked.
func (e *Executor) complete(ctx context.Context, job *model.JobStatus, rule *model.ReminderRule, dlog *model.DeliveryLog, log *logger.Logger) error {
	now := time.Now()

	if err := e.logs.MarkSent(ctx, dlog.ID, now); err != nil {
		return e.retryInfra(ctx, job, log, fmt.Errorf("sent but failed to update delivery log: %w", err))
	}
	if err := e.rules.MarkSent(ctx, rule.ID, now); err != nil {
		log.Error(err, "sent but failed to advance last_sent_at")
	}
	if err := e.jobs.Ack(ctx, job.ID, model.JobStateCompleted, nil); err != nil {
		log.Error(err, "failed to mark job completed")
		return err
	}

	e.metrics.DeliveriesSent.WithLabelValues(rule.Channel).Inc()
	log.Info("reminder delivered", "channel", rule.Channel)
	return nil
}

// handleTransient is PROCESSING -> RETRYING while attempts remain, else
// PROCESSING -> FAILED with the delivery log closed out.
func (e *Executor) handleTransient(ctx context.Context, job *model.JobStatus, rule *model.ReminderRule, dlog *model.DeliveryLog, reason string, log *logger.Logger) error {
	if job.Attempts < job.MaxAttempts {
		delay := e.backoffFor(job.Attempts)
		errMsg := reason
		if err := e.jobs.Retry(ctx, job.ID, delay, &errMsg); err != nil {
			log.Error(err, "failed to schedule retry")
			return err
		}
		e.metrics.DeliveryRetries.WithLabelValues(rule.Channel).Inc()
		log.Warn("transient delivery failure, retrying",
			"reason", reason, "retry_in", delay.String())
		return nil
	}
	return e.failWithLog(ctx, job, rule, dlog, fmt.Sprintf("retries exhausted: %s", reason), log)
}

func (e *Executor) failWithLog(ctx context.Context, job *model.JobStatus, rule *model.ReminderRule, dlog *model.DeliveryLog, reason string, log *logger.Logger) error {
	if err := e.logs.MarkFailed(ctx, dlog.ID, reason); err != nil {
		log.Error(err, "failed to mark delivery log failed")
	}
	errMsg := reason
	if err := e.jobs.Ack(ctx, job.ID, model.JobStateFailed, &errMsg); err != nil {
		log.Error(err, "failed to mark job failed")
		return err
	}
	e.metrics.DeliveriesFailed.WithLabelValues(rule.Channel).Inc()
	log.Warn("reminder delivery failed", "reason", reason)
	return nil
}

// fail closes out a job that never got as far as a delivery log row.
func (e *Executor) fail(ctx context.Context, job *model.JobStatus, rule *model.ReminderRule, subjectTitle, reason string) error {
	chanTag := "unknown"
	if rule != nil {
		chanTag = rule.Channel
		dlog := &model.DeliveryLog{
			RuleID:    rule.ID,
			OwnerID:   rule.OwnerID,
			SubjectID: rule.SubjectID,
			Channel:   rule.Channel,
			Metadata:  json.RawMessage(fmt.Sprintf(`{"subject_title":%q}`, subjectTitle)),
		}
		if err := e.logs.Create(ctx, dlog); err == nil {
			if err := e.logs.MarkFailed(ctx, dlog.ID, reason); err != nil {
				e.logger.Error(err, "failed to mark delivery log failed", "job_id", job.ID.String())
			}
		}
	}

	errMsg := reason
	if err := e.jobs.Ack(ctx, job.ID, model.JobStateFailed, &errMsg); err != nil {
		e.logger.Error(err, "failed to mark job failed", "job_id", job.ID.String())
		return err
	}
	e.metrics.DeliveriesFailed.WithLabelValues(chanTag).Inc()
	e.logger.Warn("reminder delivery failed", "job_id", job.ID.String(), "reason", reason)
	return nil
}

// skip completes a job as a no-op: no channel contact, no delivery log
// with status sent, last_sent_at untouched.
func (e *Executor) skip(ctx context.Context, job *model.JobStatus) error {
	if err := e.jobs.Ack(ctx, job.ID, model.JobStateCompleted, nil); err != nil {
		e.logger.Error(err, "failed to mark no-op job completed", "job_id", job.ID.String())
		return err
	}
	e.metrics.DeliveriesSkipped.Inc()
	return nil
}

// retryInfra routes store failures through the same retry budget as
// transient channel errors so a flaky database cannot spin a job forever.
func (e *Executor) retryInfra(ctx context.Context, job *model.JobStatus, log *logger.Logger, cause error) error {
	if job.Attempts < job.MaxAttempts {
		delay := e.backoffFor(job.Attempts)
		errMsg := cause.Error()
		if err := e.jobs.Retry(ctx, job.ID, delay, &errMsg); err != nil {
			log.Error(err, "failed to schedule retry after infrastructure error")
			return err
		}
		log.Warn("infrastructure error, retrying", "reason", cause.Error(), "retry_in", delay.String())
		return nil
	}

	errMsg := fmt.Sprintf("retries exhausted: %v", cause)
	if err := e.jobs.Ack(ctx, job.ID, model.JobStateFailed, &errMsg); err != nil {
		log.Error(err, "failed to mark job failed")
		return err
	}
	log.Warn("reminder delivery failed", "reason", errMsg)
	return nil
}

// backoffFor returns the delay after the given completed attempt number
// (1-based). Attempts beyond the schedule reuse the last entry.
func (e *Executor) backoffFor(attempt int) time.Duration {
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(e.config.Backoff) {
		idx = len(e.config.Backoff) - 1
	}
	return e.config.Backoff[idx]
}

func isNotFound(err error) bool {
	var appErr *apperrors.AppError
	return errors.As(err, &appErr) && appErr.Code == apperrors.ErrNotFound
}
