package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/taskhive/notifier/internal/model"
	"github.com/taskhive/notifier/internal/repository"
	apperrors "github.com/taskhive/notifier/pkg/errors"
	"github.com/taskhive/notifier/pkg/logger"
	"github.com/taskhive/notifier/pkg/metrics"
)

type Config struct {
	Queue       string
	MaxAttempts int
}

// Dispatcher turns due rules into at most one in-flight delivery job each.
// The idempotency key derived from the rule id is what collapses duplicate
// enqueues from overlapping ticks or multiple scheduler instances.
type Dispatcher struct {
	jobs    repository.JobRepository
	config  Config
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewDispatcher(jobs repository.JobRepository, config Config, logger *logger.Logger, m *metrics.Metrics) *Dispatcher {
	if config.Queue == "" {
		config.Queue = model.QueueNotifications
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	return &Dispatcher{
		jobs:    jobs,
		config:  config,
		logger:  logger,
		metrics: m,
	}
}

// IdempotencyKey is deterministic per rule, stable across retries and
// scheduler instances.
func IdempotencyKey(ruleID uuid.UUID) string {
	return fmt.Sprintf("reminder:%s", ruleID)
}

// Dispatch enqueues one delivery job per due rule and returns the number
// newly enqueued. Key collisions with in-flight jobs are skipped silently;
// any other enqueue failure aborts the batch so the tick can report it.
func (d *Dispatcher) Dispatch(ctx context.Context, due []*model.DueRule) (int, error) {
	enqueued := 0
	for _, rule := range due {
		payload, err := json.Marshal(model.DeliveryPayload{RuleID: rule.Rule.ID})
		if err != nil {
			return enqueued, fmt.Errorf("failed to marshal delivery payload: %w", err)
		}

		job := &model.JobStatus{
			IdempotencyKey: IdempotencyKey(rule.Rule.ID),
			JobType:        model.JobTypeReminderDelivery,
			Queue:          d.config.Queue,
			MaxAttempts:    d.config.MaxAttempts,
			Payload:        payload,
		}

		if err := d.jobs.Enqueue(ctx, job); err != nil {
			if errors.Is(err, apperrors.ErrDuplicateInFlight) {
				d.metrics.DuplicatesSkipped.Inc()
				d.logger.Debug("skipping duplicate in-flight delivery",
					"rule_id", rule.Rule.ID.String())
				continue
			}
			d.metrics.DispatchFailures.Inc()
			return enqueued, fmt.Errorf("failed to enqueue delivery for rule %s: %w", rule.Rule.ID, err)
		}

		d.metrics.JobsDispatched.Inc()
		enqueued++
	}
	return enqueued, nil
}

// DryRun reports how many rules would be dispatched without enqueueing
// anything. Rules whose key is already in flight are excluded from the
// count, matching what Dispatch would actually enqueue.
func (d *Dispatcher) DryRun(ctx context.Context, due []*model.DueRule) (int, error) {
	count := 0
	for _, rule := range due {
		job, err := d.jobs.GetByKey(ctx, IdempotencyKey(rule.Rule.ID))
		if err != nil {
			var appErr *apperrors.AppError
			if errors.As(err, &appErr) && appErr.Code == apperrors.ErrNotFound {
				count++
				continue
			}
			return 0, fmt.Errorf("failed to check in-flight job for rule %s: %w", rule.Rule.ID, err)
		}
		if job.Status.Terminal() {
			count++
		}
	}
	return count, nil
}
