package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/taskhive/notifier/internal/model"
	"github.com/taskhive/notifier/internal/repository"
	"github.com/taskhive/notifier/pkg/errors"
)

// subjectReader reads the external task/user tables. Strictly read-only;
// those tables belong to the CRUD application. Contact rows are cached
// briefly since channel preferences change far less often than rules fire.
type subjectReader struct {
	BaseRepository
	contacts *gocache.Cache
}

func NewSubjectReader(base BaseRepository, contactTTL time.Duration) repository.SubjectReader {
	return &subjectReader{
		BaseRepository: base,
		contacts:       gocache.New(contactTTL, 2*contactTTL),
	}
}

func (r *subjectReader) GetSubject(ctx context.Context, id uuid.UUID) (*model.Subject, error) {
	query := `
		SELECT id, owner_id, title, due_at
		FROM tasks
		WHERE id = $1 AND deleted_at IS NULL
	`
	var subject model.Subject
	if err := r.db.GetContext(ctx, &subject, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NewNotFound("subject", err)
		}
		return nil, fmt.Errorf("failed to get subject: %w", err)
	}
	return &subject, nil
}

func (r *subjectReader) GetOwnerContact(ctx context.Context, ownerID uuid.UUID) (*model.OwnerContact, error) {
	if cached, ok := r.contacts.Get(ownerID.String()); ok {
		return cached.(*model.OwnerContact), nil
	}

	query := `
		SELECT id, email, phone, push_token
		FROM users
		WHERE id = $1
	`
	var contact model.OwnerContact
	if err := r.db.GetContext(ctx, &contact, query, ownerID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NewNotFound("owner", err)
		}
		return nil, fmt.Errorf("failed to get owner contact: %w", err)
	}

	r.contacts.Set(ownerID.String(), &contact, gocache.DefaultExpiration)
	return &contact, nil
}
