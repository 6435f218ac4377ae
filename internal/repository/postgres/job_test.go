package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhive/notifier/internal/model"
	apperrors "github.com/taskhive/notifier/pkg/errors"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func jobColumns() []string {
	return []string{
		"id", "idempotency_key", "job_type", "queue", "status", "attempts",
		"max_attempts", "progress", "run_at", "payload", "error_message",
		"created_at", "updated_at", "completed_at",
	}
}

func TestEnqueueDuplicateKeySurfacesInFlight(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewJobRepository(NewBaseRepository(db))

	mock.ExpectExec(`INSERT INTO job_status`).
		WillReturnError(&pq.Error{Code: "23505"})

	job := &model.JobStatus{
		IdempotencyKey: "reminder:" + uuid.NewString(),
		JobType:        model.JobTypeReminderDelivery,
		Queue:          model.QueueNotifications,
		MaxAttempts:    3,
		Payload:        []byte(`{}`),
	}

	err := repo.Enqueue(context.Background(), job)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrDuplicateInFlight)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDequeueClaimGuardsAttemptCap(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewJobRepository(NewBaseRepository(db))

	now := time.Now()
	id := uuid.New()
	rows := sqlmock.NewRows(jobColumns()).AddRow(
		id.String(), "reminder:"+uuid.NewString(), model.JobTypeReminderDelivery,
		model.QueueNotifications, string(model.JobStateProcessing), 1, 3, 0,
		now, []byte(`{}`), nil, now, now, nil)

	// The claim must exclude rows already at max_attempts; otherwise a job
	// abandoned by a crashed worker can be reclaimed past its budget.
	mock.ExpectQuery(`(?s)UPDATE job_status.*attempts = attempts \+ 1.*attempts < max_attempts.*FOR UPDATE SKIP LOCKED.*RETURNING`).
		WithArgs(model.JobStateProcessing, model.QueueNotifications,
			model.JobStatePending, model.JobStateRetrying, 10).
		WillReturnRows(rows)

	jobs, err := repo.Dequeue(context.Background(), model.QueueNotifications, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, id, jobs[0].ID)
	assert.Equal(t, 1, jobs[0].Attempts)
	assert.Equal(t, model.JobStateProcessing, jobs[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReapStuckFailsExhaustedJobs(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewJobRepository(NewBaseRepository(db))

	olderThan := 5 * time.Minute

	// Stuck rows at the attempt cap are failed; the rest go back to pending.
	mock.ExpectBegin()
	mock.ExpectExec(`(?s)UPDATE job_status.*attempts >= max_attempts`).
		WithArgs(model.JobStateFailed, "worker lost after final attempt",
			model.QueueNotifications, model.JobStateProcessing, olderThan.Seconds()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`(?s)UPDATE job_status.*attempts < max_attempts`).
		WithArgs(model.JobStatePending, model.QueueNotifications,
			model.JobStateProcessing, olderThan.Seconds()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	reset, abandoned, err := repo.ReapStuck(context.Background(), model.QueueNotifications, olderThan)
	require.NoError(t, err)
	assert.EqualValues(t, 2, reset)
	assert.EqualValues(t, 1, abandoned)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReapStuckRollsBackOnError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewJobRepository(NewBaseRepository(db))

	mock.ExpectBegin()
	mock.ExpectExec(`(?s)UPDATE job_status.*attempts >= max_attempts`).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	reset, abandoned, err := repo.ReapStuck(context.Background(), model.QueueNotifications, time.Minute)
	require.Error(t, err)
	assert.Zero(t, reset)
	assert.Zero(t, abandoned)
	assert.NoError(t, mock.ExpectationsWereMet())
}
