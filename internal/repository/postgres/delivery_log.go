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

type deliveryLogRepository struct {
	BaseRepository
}

func NewDeliveryLogRepository(base BaseRepository) repository.DeliveryLogRepository {
	return &deliveryLogRepository{base}
}

func (r *deliveryLogRepository) Create(ctx context.Context, log *model.DeliveryLog) error {
	if log == nil {
		return fmt.Errorf("delivery log cannot be nil")
	}

	query := `
		INSERT INTO delivery_logs (
			id, rule_id, owner_id, subject_id, channel, status, metadata,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	log.ID = uuid.New()
	log.Status = model.DeliveryStatusPending
	log.CreatedAt = time.Now()
	log.UpdatedAt = log.CreatedAt

	_, err := r.db.ExecContext(ctx, query,
		log.ID,
		log.RuleID,
		log.OwnerID,
		log.SubjectID,
		log.Channel,
		log.Status,
		log.Metadata,
		log.CreatedAt,
		log.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create delivery log: %w", err)
	}
	return nil
}

func (r *deliveryLogRepository) Get(ctx context.Context, id uuid.UUID) (*model.DeliveryLog, error) {
	query := `
		SELECT id, rule_id, owner_id, subject_id, channel, status, sent_at,
			error_message, metadata, created_at, updated_at
		FROM delivery_logs
		WHERE id = $1
	`
	var log model.DeliveryLog
	if err := r.db.GetContext(ctx, &log, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NewNotFound("delivery log", err)
		}
		return nil, fmt.Errorf("failed to get delivery log: %w", err)
	}
	return &log, nil
}

func (r *deliveryLogRepository) List(ctx context.Context, filter repository.DeliveryLogFilter) ([]*model.DeliveryLog, error) {
	query := `
		SELECT id, rule_id, owner_id, subject_id, channel, status, sent_at,
			error_message, metadata, created_at, updated_at
		FROM delivery_logs
		WHERE 1=1
	`
	args := []interface{}{}
	argPos := 1

	if filter.RuleID != nil {
		query += fmt.Sprintf(" AND rule_id = $%d", argPos)
		args = append(args, *filter.RuleID)
		argPos++
	}
	if filter.OwnerID != nil {
		query += fmt.Sprintf(" AND owner_id = $%d", argPos)
		args = append(args, *filter.OwnerID)
		argPos++
	}
	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, *filter.Status)
		argPos++
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, filter.Offset)

	var logs []*model.DeliveryLog
	if err := r.db.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list delivery logs: %w", err)
	}
	return logs, nil
}

func (r *deliveryLogRepository) MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error {
	// Status transitions are one-way; the WHERE guard keeps a terminal row
	// from being rewritten by a late or replayed worker.
	query := `
		UPDATE delivery_logs
		SET status = $1, sent_at = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4
	`
	result, err := r.db.ExecContext(ctx, query,
		model.DeliveryStatusSent, sentAt, id, model.DeliveryStatusPending)
	if err != nil {
		return fmt.Errorf("failed to mark delivery sent: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return errors.NewConflict("delivery log is not pending", nil)
	}
	return nil
}

func (r *deliveryLogRepository) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	query := `
		UPDATE delivery_logs
		SET status = $1, error_message = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4
	`
	result, err := r.db.ExecContext(ctx, query,
		model.DeliveryStatusFailed, errMsg, id, model.DeliveryStatusPending)
	if err != nil {
		return fmt.Errorf("failed to mark delivery failed: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return errors.NewConflict("delivery log is not pending", nil)
	}
	return nil
}

func (r *deliveryLogRepository) HasSentWithin(ctx context.Context, ruleID uuid.UUID, window time.Duration) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM delivery_logs
			WHERE rule_id = $1
			AND status = $2
			AND created_at > $3
		)
	`
	var exists bool
	err := r.db.GetContext(ctx, &exists, query,
		ruleID,
		model.DeliveryStatusSent,
		time.Now().Add(-window),
	)
	if err != nil {
		return false, fmt.Errorf("failed to check recent deliveries: %w", err)
	}
	return exists, nil
}

func (r *deliveryLogRepository) FindPending(ctx context.Context, ruleID uuid.UUID, window time.Duration) (*model.DeliveryLog, error) {
	query := `
		SELECT id, rule_id, owner_id, subject_id, channel, status, sent_at,
			error_message, metadata, created_at, updated_at
		FROM delivery_logs
		WHERE rule_id = $1
		AND status = $2
		AND created_at > $3
		ORDER BY created_at DESC
		LIMIT 1
	`
	var log model.DeliveryLog
	err := r.db.GetContext(ctx, &log, query,
		ruleID, model.DeliveryStatusPending, time.Now().Add(-window))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find pending delivery: %w", err)
	}
	return &log, nil
}
