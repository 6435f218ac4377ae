package evaluator

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/taskhive/notifier/internal/model"
	"github.com/taskhive/notifier/internal/repository"
	"github.com/taskhive/notifier/pkg/errors"
	"github.com/taskhive/notifier/pkg/logger"
)

type Config struct {
	DedupWindow time.Duration
	BatchSize   int
}

// Evaluator is the pure read side of a tick: given "now", it returns the
// ordered set of due, eligible rules. No side effects.
type Evaluator struct {
	rules    repository.RuleRepository
	subjects repository.SubjectReader
	config   Config
	logger   *logger.Logger
}

func NewEvaluator(rules repository.RuleRepository, subjects repository.SubjectReader, config Config, logger *logger.Logger) *Evaluator {
	if config.DedupWindow <= 0 {
		config.DedupWindow = time.Hour
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 500
	}
	return &Evaluator{
		rules:    rules,
		subjects: subjects,
		config:   config,
		logger:   logger,
	}
}

// DueRules selects rules satisfying all of: enabled, last send outside the
// dedup window, trigger time (due_at - offset) reached. Results are ordered
// by trigger time ascending with rule id as the tiebreak, so dispatch order
// is deterministic across runs and instances.
func (e *Evaluator) DueRules(ctx context.Context, now time.Time) ([]*model.DueRule, error) {
	rows, err := e.rules.ListDue(ctx, now, e.config.DedupWindow, e.config.BatchSize)
	if err != nil {
		return nil, errors.StoreUnavailable(err)
	}

	// The query's WHERE clause mirrors DueFor; re-checking each row keeps
	// DueFor authoritative over whatever the store returned.
	due := make([]*model.DueRule, 0, len(rows))
	for _, d := range rows {
		if !d.Rule.DueFor(d.Subject.DueAt, now, e.config.DedupWindow) {
			e.logger.Debug("dropping ineligible row from due set",
				"rule_id", d.Rule.ID.String())
			continue
		}

		contact, err := e.subjects.GetOwnerContact(ctx, d.Subject.OwnerID)
		if err != nil {
			// Advisory only; the delivery job re-resolves the recipient
			// from a fresh read before sending.
			e.logger.Debug("could not resolve recipient at evaluation time",
				"rule_id", d.Rule.ID.String(), "owner_id", d.Subject.OwnerID.String())
		} else {
			d.Recipient = contact.Recipient(d.Rule.Channel)
		}
		due = append(due, d)
	}

	sort.Slice(due, func(i, j int) bool {
		if !due[i].TriggerAt.Equal(due[j].TriggerAt) {
			return due[i].TriggerAt.Before(due[j].TriggerAt)
		}
		return strings.Compare(due[i].Rule.ID.String(), due[j].Rule.ID.String()) < 0
	})

	return due, nil
}
