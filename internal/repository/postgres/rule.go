package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/taskhive/notifier/internal/model"
	"github.com/taskhive/notifier/internal/repository"
	"github.com/taskhive/notifier/pkg/errors"
)

type ruleRepository struct {
	BaseRepository
}

func NewRuleRepository(base BaseRepository) repository.RuleRepository {
	return &ruleRepository{base}
}

func (r *ruleRepository) Create(ctx context.Context, rule *model.ReminderRule) error {
	if err := rule.Validate(); err != nil {
		return errors.NewBadRequest("invalid reminder rule", err)
	}

	query := `
		INSERT INTO reminder_rules (
			id, owner_id, subject_id, channel, offset_amount, offset_unit,
			enabled, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	rule.ID = uuid.New()
	rule.CreatedAt = time.Now()
	rule.UpdatedAt = rule.CreatedAt

	_, err := r.db.ExecContext(ctx, query,
		rule.ID,
		rule.OwnerID,
		rule.SubjectID,
		rule.Channel,
		rule.OffsetAmount,
		rule.OffsetUnit,
		rule.Enabled,
		rule.CreatedAt,
		rule.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.NewConflict("reminder rule already exists for this subject and channel", err)
		}
		return fmt.Errorf("failed to create reminder rule: %w", err)
	}
	return nil
}

func (r *ruleRepository) Get(ctx context.Context, id uuid.UUID) (*model.ReminderRule, error) {
	query := `
		SELECT id, owner_id, subject_id, channel, offset_amount, offset_unit,
			enabled, last_sent_at, created_at, updated_at
		FROM reminder_rules
		WHERE id = $1
	`
	var rule model.ReminderRule
	if err := r.db.GetContext(ctx, &rule, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NewNotFound("reminder rule", err)
		}
		return nil, fmt.Errorf("failed to get reminder rule: %w", err)
	}
	return &rule, nil
}

func (r *ruleRepository) Update(ctx context.Context, rule *model.ReminderRule) error {
	if err := rule.Validate(); err != nil {
		return errors.NewBadRequest("invalid reminder rule", err)
	}

	query := `
		UPDATE reminder_rules
		SET channel = $1, offset_amount = $2, offset_unit = $3, enabled = $4,
			updated_at = NOW()
		WHERE id = $5
	`
	result, err := r.db.ExecContext(ctx, query,
		rule.Channel, rule.OffsetAmount, rule.OffsetUnit, rule.Enabled, rule.ID)
	if err != nil {
		return fmt.Errorf("failed to update reminder rule: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return errors.NewNotFound("reminder rule", nil)
	}
	return nil
}

func (r *ruleRepository) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	query := `
		UPDATE reminder_rules
		SET enabled = $1, updated_at = NOW()
		WHERE id = $2
	`
	result, err := r.db.ExecContext(ctx, query, enabled, id)
	if err != nil {
		return fmt.Errorf("failed to toggle reminder rule: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return errors.NewNotFound("reminder rule", nil)
	}
	return nil
}

func (r *ruleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM reminder_rules WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete reminder rule: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return errors.NewNotFound("reminder rule", nil)
	}
	return nil
}

func (r *ruleRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*model.ReminderRule, error) {
	query := `
		SELECT id, owner_id, subject_id, channel, offset_amount, offset_unit,
			enabled, last_sent_at, created_at, updated_at
		FROM reminder_rules
		WHERE owner_id = $1
		ORDER BY created_at ASC
	`
	var rules []*model.ReminderRule
	if err := r.db.SelectContext(ctx, &rules, query, ownerID); err != nil {
		return nil, fmt.Errorf("failed to list reminder rules: %w", err)
	}
	return rules, nil
}

// dueRow flattens the rule/subject join for sqlx scanning.
type dueRow struct {
	model.ReminderRule
	SubjectOwnerID uuid.UUID `db:"subject_owner_id"`
	SubjectTitle   string    `db:"subject_title"`
	SubjectDueAt   time.Time `db:"subject_due_at"`
}

func (r *ruleRepository) ListDue(ctx context.Context, now time.Time, dedupWindow time.Duration, limit int) ([]*model.DueRule, error) {
	// The trigger-time predicate mirrors ReminderRule.Offset: the rule is
	// due once now >= due_at - offset. Ordering here is only a coarse
	// pre-sort; the evaluator re-sorts by computed trigger time.
	query := `
		SELECT r.id, r.owner_id, r.subject_id, r.channel, r.offset_amount,
			r.offset_unit, r.enabled, r.last_sent_at, r.created_at, r.updated_at,
			s.owner_id AS subject_owner_id,
			s.title AS subject_title,
			s.due_at AS subject_due_at
		FROM reminder_rules r
		JOIN tasks s ON s.id = r.subject_id AND s.deleted_at IS NULL
		WHERE r.enabled = TRUE
		AND (r.last_sent_at IS NULL OR r.last_sent_at < $1)
		AND $2 >= s.due_at - (r.offset_amount * CASE r.offset_unit
			WHEN 'minutes' THEN INTERVAL '1 minute'
			WHEN 'hours' THEN INTERVAL '1 hour'
			WHEN 'days' THEN INTERVAL '1 day'
		END)
		ORDER BY s.due_at ASC, r.id ASC
		LIMIT $3
	`
	var rows []dueRow
	err := r.db.SelectContext(ctx, &rows, query, now.Add(-dedupWindow), now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due rules: %w", err)
	}

	due := make([]*model.DueRule, 0, len(rows))
	for _, row := range rows {
		subject := model.Subject{
			ID:      row.SubjectID,
			OwnerID: row.SubjectOwnerID,
			Title:   row.SubjectTitle,
			DueAt:   row.SubjectDueAt,
		}
		due = append(due, &model.DueRule{
			Rule:      row.ReminderRule,
			Subject:   subject,
			TriggerAt: row.ReminderRule.TriggerAt(subject.DueAt),
		})
	}
	return due, nil
}

func (r *ruleRepository) MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error {
	// last_sent_at only moves forward; a late-arriving older timestamp is
	// dropped by the guard.
	query := `
		UPDATE reminder_rules
		SET last_sent_at = $1, updated_at = NOW()
		WHERE id = $2
		AND (last_sent_at IS NULL OR last_sent_at < $1)
	`
	if _, err := r.db.ExecContext(ctx, query, sentAt, id); err != nil {
		return fmt.Errorf("failed to mark rule sent: %w", err)
	}
	return nil
}
