package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/taskhive/notifier/internal/model"
	"github.com/taskhive/notifier/internal/repository"
	"github.com/taskhive/notifier/pkg/errors"
)

type jobRepository struct {
	BaseRepository
}

func NewJobRepository(base BaseRepository) repository.JobRepository {
	return &jobRepository{base}
}

// Enqueue inserts a job row. The partial unique index on idempotency_key
// over non-terminal statuses turns a concurrent duplicate into a 23505,
// which surfaces as ErrDuplicateInFlight.
func (r *jobRepository) Enqueue(ctx context.Context, job *model.JobStatus) error {
	if job == nil {
		return fmt.Errorf("job cannot be nil")
	}
	if job.IdempotencyKey == "" {
		return fmt.Errorf("job idempotency key cannot be empty")
	}

	query := `
		INSERT INTO job_status (
			id, idempotency_key, job_type, queue, status, attempts,
			max_attempts, progress, run_at, payload, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	job.ID = uuid.New()
	job.Status = model.JobStatePending
	job.Attempts = 0
	job.CreatedAt = time.Now()
	job.UpdatedAt = job.CreatedAt
	if job.RunAt.IsZero() {
		job.RunAt = job.CreatedAt
	}
	if job.Queue == "" {
		job.Queue = model.QueueDefault
	}

	_, err := r.db.ExecContext(ctx, query,
		job.ID,
		job.IdempotencyKey,
		job.JobType,
		job.Queue,
		job.Status,
		job.Attempts,
		job.MaxAttempts,
		job.Progress,
		job.RunAt,
		job.Payload,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.ErrDuplicateInFlight
		}
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// Dequeue claims up to limit runnable jobs from one queue. The claim
// transitions them to processing and increments attempts in the same
// statement, so a crashed worker's redelivery still counts toward the
// max-attempts invariant; rows already at the cap are never claimed
// again. SKIP LOCKED keeps concurrent workers from claiming the same
// rows.
func (r *jobRepository) Dequeue(ctx context.Context, queueName string, limit int) ([]*model.JobStatus, error) {
	query := `
		UPDATE job_status
		SET status = $1, attempts = attempts + 1, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM job_status
			WHERE queue = $2
			AND status IN ($3, $4)
			AND run_at <= NOW()
			AND attempts < max_attempts
			ORDER BY run_at ASC
			LIMIT $5
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, idempotency_key, job_type, queue, status, attempts,
			max_attempts, progress, run_at, payload, error_message,
			created_at, updated_at, completed_at
	`
	var jobs []*model.JobStatus
	err := r.db.SelectContext(ctx, &jobs, query,
		model.JobStateProcessing,
		queueName,
		model.JobStatePending,
		model.JobStateRetrying,
		limit,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to dequeue jobs: %w", err)
	}
	return jobs, nil
}

// Ack records a terminal outcome. Terminal rows are never transitioned
// again, which also frees the idempotency key for future occurrences.
func (r *jobRepository) Ack(ctx context.Context, id uuid.UUID, status model.JobState, errMsg *string) error {
	if !status.Terminal() {
		return fmt.Errorf("ack requires a terminal status, got %s", status)
	}

	query := `
		UPDATE job_status
		SET status = $1,
			error_message = $2,
			progress = CASE WHEN $1 = 'completed' THEN 100 ELSE progress END,
			completed_at = NOW(),
			updated_at = NOW()
		WHERE id = $3 AND status = $4
	`
	result, err := r.db.ExecContext(ctx, query, status, errMsg, id, model.JobStateProcessing)
	if err != nil {
		return fmt.Errorf("failed to ack job: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return errors.NewConflict("job is not processing", nil)
	}
	return nil
}

func (r *jobRepository) Retry(ctx context.Context, id uuid.UUID, delay time.Duration, errMsg *string) error {
	query := `
		UPDATE job_status
		SET status = $1, run_at = NOW() + $2 * INTERVAL '1 second',
			error_message = $3, updated_at = NOW()
		WHERE id = $4 AND status = $5
	`
	result, err := r.db.ExecContext(ctx, query,
		model.JobStateRetrying, delay.Seconds(), errMsg, id, model.JobStateProcessing)
	if err != nil {
		return fmt.Errorf("failed to schedule job retry: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return errors.NewConflict("job is not processing", nil)
	}
	return nil
}

// ReapStuck recovers jobs abandoned mid-processing by a crashed worker.
// Rows with attempt budget left go back to pending for redelivery;
// delivery-side dedup keeps the redelivery safe. Rows already at the cap
// are failed instead, so a crash on the final attempt still surfaces as
// a terminal outcome rather than cycling through claim and reap with an
// ever-growing attempt count.
func (r *jobRepository) ReapStuck(ctx context.Context, queueName string, olderThan time.Duration) (reset, abandoned int64, err error) {
	err = r.WithTx(ctx, func(tx *sqlx.Tx) error {
		failQuery := `
			UPDATE job_status
			SET status = $1, error_message = $2, completed_at = NOW(), updated_at = NOW()
			WHERE queue = $3
			AND status = $4
			AND updated_at < NOW() - $5 * INTERVAL '1 second'
			AND attempts >= max_attempts
		`
		result, execErr := tx.ExecContext(ctx, failQuery,
			model.JobStateFailed, "worker lost after final attempt",
			queueName, model.JobStateProcessing, olderThan.Seconds())
		if execErr != nil {
			return fmt.Errorf("failed to abandon exhausted jobs: %w", execErr)
		}
		abandoned, _ = result.RowsAffected()

		resetQuery := `
			UPDATE job_status
			SET status = $1, updated_at = NOW()
			WHERE queue = $2
			AND status = $3
			AND updated_at < NOW() - $4 * INTERVAL '1 second'
			AND attempts < max_attempts
		`
		result, execErr = tx.ExecContext(ctx, resetQuery,
			model.JobStatePending, queueName, model.JobStateProcessing, olderThan.Seconds())
		if execErr != nil {
			return fmt.Errorf("failed to reap stuck jobs: %w", execErr)
		}
		reset, _ = result.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return reset, abandoned, nil
}

func (r *jobRepository) Get(ctx context.Context, id uuid.UUID) (*model.JobStatus, error) {
	query := `
		SELECT id, idempotency_key, job_type, queue, status, attempts,
			max_attempts, progress, run_at, payload, error_message,
			created_at, updated_at, completed_at
		FROM job_status
		WHERE id = $1
	`
	var job model.JobStatus
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NewNotFound("job", err)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

func (r *jobRepository) GetByKey(ctx context.Context, idempotencyKey string) (*model.JobStatus, error) {
	query := `
		SELECT id, idempotency_key, job_type, queue, status, attempts,
			max_attempts, progress, run_at, payload, error_message,
			created_at, updated_at, completed_at
		FROM job_status
		WHERE idempotency_key = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	var job model.JobStatus
	if err := r.db.GetContext(ctx, &job, query, idempotencyKey); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NewNotFound("job", err)
		}
		return nil, fmt.Errorf("failed to get job by key: %w", err)
	}
	return &job, nil
}

func (r *jobRepository) RunnableCount(ctx context.Context, queueName string) (int64, error) {
	query := `
		SELECT COUNT(*) FROM job_status
		WHERE queue = $1 AND status IN ($2, $3) AND run_at <= NOW()
	`
	var count int64
	err := r.db.GetContext(ctx, &count, query,
		queueName, model.JobStatePending, model.JobStateRetrying)
	if err != nil {
		return 0, fmt.Errorf("failed to count runnable jobs: %w", err)
	}
	return count, nil
}

func (r *jobRepository) DeleteTerminalBefore(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM job_status
		WHERE status IN ($1, $2)
		AND completed_at < $3
	`
	result, err := r.db.ExecContext(ctx, query,
		model.JobStateCompleted, model.JobStateFailed, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete terminal jobs: %w", err)
	}
	return result.RowsAffected()
}
