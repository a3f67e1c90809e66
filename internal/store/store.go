// Package store persists jobs. The pipeline only sees the JobStore
// interface; the in-memory implementation backs tests and single-node
// deployments, the Postgres one survives restarts.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"docuvid/internal/models"
)

var ErrNotFound = errors.New("job not found")

type JobStore interface {
	Create(ctx context.Context, job *models.Job) error
	Get(ctx context.Context, id uuid.UUID) (*models.Job, error)
	// List returns jobs newest first. status filters when non-empty.
	List(ctx context.Context, status string, limit, offset int) ([]models.Job, error)
	Update(ctx context.Context, job *models.Job) error
	// Delete removes a job record, used when enqueueing is rejected
	// after the record was already written.
	Delete(ctx context.Context, id uuid.UUID) error
}
