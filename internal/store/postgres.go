package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"docuvid/internal/models"
)

// PostgresStore implements JobStore over a jobs table. Settings travel as
// JSONB through the models.JobSettings Valuer/Scanner; the output
// descriptor is marshalled here because it is nullable.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

const jobColumns = `
	id, title, status, progress, current_step, settings,
	error_kind, error_message, output, created_at, started_at, completed_at`

func (s *PostgresStore) Create(ctx context.Context, job *models.Job) error {
	query := `
		INSERT INTO jobs (
			id, title, status, progress, current_step, settings,
			error_kind, error_message, output, created_at, started_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	errKind, errMsg := splitError(job.Error)
	output, err := marshalOutput(job.Output)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(
		ctx, query,
		job.ID, job.Title, job.Status, job.Progress, job.CurrentStep,
		job.Settings, errKind, errMsg, output,
		job.CreatedAt, job.StartedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	query := `SELECT` + jobColumns + ` FROM jobs WHERE id = $1`

	job, err := scanJob(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) List(ctx context.Context, status string, limit, offset int) ([]models.Job, error) {
	query := `SELECT` + jobColumns + ` FROM jobs`
	args := []interface{}{}

	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	jobs := []models.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func (s *PostgresStore) Update(ctx context.Context, job *models.Job) error {
	query := `
		UPDATE jobs
		SET status = $1, progress = $2, current_step = $3, settings = $4,
			error_kind = $5, error_message = $6, output = $7,
			started_at = $8, completed_at = $9
		WHERE id = $10
	`

	errKind, errMsg := splitError(job.Error)
	output, err := marshalOutput(job.Output)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(
		ctx, query,
		job.Status, job.Progress, job.CurrentStep, job.Settings,
		errKind, errMsg, output, job.StartedAt, job.CompletedAt, job.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	job := &models.Job{}
	var errKind, errMsg sql.NullString
	var output []byte

	err := row.Scan(
		&job.ID, &job.Title, &job.Status, &job.Progress, &job.CurrentStep,
		&job.Settings, &errKind, &errMsg, &output,
		&job.CreatedAt, &job.StartedAt, &job.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	if errKind.Valid {
		job.Error = &models.JobError{
			Kind:    models.ErrorKind(errKind.String),
			Message: errMsg.String,
		}
	}
	if len(output) > 0 {
		job.Output = &models.OutputDescriptor{}
		if err := json.Unmarshal(output, job.Output); err != nil {
			return nil, fmt.Errorf("failed to unmarshal output: %w", err)
		}
	}
	return job, nil
}

func splitError(jobErr *models.JobError) (kind, msg sql.NullString) {
	if jobErr == nil {
		return
	}
	kind = sql.NullString{String: string(jobErr.Kind), Valid: true}
	msg = sql.NullString{String: jobErr.Message, Valid: true}
	return
}

func marshalOutput(out *models.OutputDescriptor) ([]byte, error) {
	if out == nil {
		return nil, nil
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal output: %w", err)
	}
	return data, nil
}
