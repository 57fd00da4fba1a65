package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/clipjobs/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const jobColumns = `
	job_id, job_type, video_url, s3_key, start_sec, end_sec,
	user_id, username, status, error_message, download_url,
	created_at, updated_at
`

const schema = `
	CREATE TABLE IF NOT EXISTS jobs (
		job_id        TEXT PRIMARY KEY,
		job_type      TEXT NOT NULL,
		video_url     TEXT,
		s3_key        TEXT,
		start_sec     DOUBLE PRECISION NOT NULL DEFAULT 0,
		end_sec       DOUBLE PRECISION NOT NULL DEFAULT 0,
		user_id       TEXT NOT NULL DEFAULT '',
		username      TEXT NOT NULL DEFAULT '',
		status        TEXT NOT NULL,
		error_message TEXT,
		download_url  TEXT,
		created_at    TIMESTAMPTZ NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS jobs_s3_key_idx ON jobs (s3_key);
	CREATE INDEX IF NOT EXISTS jobs_pending_idx ON jobs (status, job_type, created_at);
`

// PostgresStore handles all job persistence in PostgreSQL
type PostgresStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgresStore creates a new PostgresStore instance
func NewPostgresStore(db *sqlx.DB, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: logger,
	}
}

// EnsureSchema creates the jobs table and its indexes if they are missing
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return domain.NewPersistenceError(fmt.Sprintf("failed to create schema: %v", err), err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, in domain.NewJob) (*domain.Job, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	job := in.Build(uuid.NewString(), time.Now().UTC())

	query := `
		INSERT INTO jobs (` + jobColumns + `) VALUES (
			:job_id, :job_type, :video_url, :s3_key, :start_sec, :end_sec,
			:user_id, :username, :status, :error_message, :download_url,
			:created_at, :updated_at
		)
	`

	if _, err := s.db.NamedExecContext(ctx, query, job); err != nil {
		return nil, domain.NewPersistenceError(fmt.Sprintf("failed to create job: %v", err), err)
	}

	s.logger.Info("Job created",
		slog.String("job_id", job.JobID),
		slog.String("job_type", string(job.Type)),
	)

	return job, nil
}

// Update merges the update inside a row-locked transaction so concurrent writers serialize
func (s *PostgresStore) Update(ctx context.Context, jobID string, update domain.JobUpdate) (*domain.Job, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, domain.NewPersistenceError(fmt.Sprintf("failed to begin transaction: %v", err), err)
	}
	defer tx.Rollback() //nolint:errcheck

	var job domain.Job
	err = tx.GetContext(ctx, &job, `SELECT `+jobColumns+` FROM jobs WHERE job_id = $1 FOR UPDATE`, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("Update skipped - job not found",
				slog.String("job_id", jobID),
			)
			return nil, nil
		}
		return nil, domain.NewPersistenceError(fmt.Sprintf("failed to load job: %v", err), err)
	}

	if err := job.Apply(update, time.Now().UTC()); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE jobs
		SET status = $1,
		    error_message = $2,
		    download_url = $3,
		    s3_key = $4,
		    updated_at = $5
		WHERE job_id = $6
	`, job.Status, job.Error, job.DownloadURL, job.S3Key, job.UpdatedAt, job.JobID)
	if err != nil {
		return nil, domain.NewPersistenceError(fmt.Sprintf("failed to update job: %v", err), err)
	}

	if err := tx.Commit(); err != nil {
		return nil, domain.NewPersistenceError(fmt.Sprintf("failed to commit job update: %v", err), err)
	}

	s.logger.Info("Job updated",
		slog.String("job_id", jobID),
		slog.String("status", string(job.Status)),
	)

	return &job, nil
}

// Claim attempts to claim a job using optimistic locking on status
func (s *PostgresStore) Claim(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `
		UPDATE jobs
		SET status = $1,
		    updated_at = GREATEST(updated_at + INTERVAL '1 microsecond', $2)
		WHERE job_id = $3
		  AND status = $4
		RETURNING ` + jobColumns

	var job domain.Job
	err := s.db.GetContext(ctx, &job, query, domain.JobStatusProcessing, time.Now().UTC(), jobID, domain.JobStatusPending)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("Failed to claim job - already claimed or not found",
				slog.String("job_id", jobID),
			)
			return nil, domain.ErrJobAlreadyClaimed
		}
		return nil, domain.NewPersistenceError(fmt.Sprintf("failed to claim job: %v", err), err)
	}

	s.logger.Info("Job claimed successfully",
		slog.String("job_id", jobID),
		slog.String("job_type", string(job.Type)),
	)

	return &job, nil
}

func (s *PostgresStore) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	var job domain.Job
	err := s.db.GetContext(ctx, &job, `SELECT `+jobColumns+` FROM jobs WHERE job_id = $1`, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, domain.NewPersistenceError(fmt.Sprintf("failed to get job: %v", err), err)
	}
	return &job, nil
}

func (s *PostgresStore) ListAll(ctx context.Context) ([]domain.Job, error) {
	var jobs []domain.Job
	err := s.db.SelectContext(ctx, &jobs, `SELECT `+jobColumns+` FROM jobs ORDER BY created_at ASC, job_id ASC`)
	if err != nil {
		return nil, domain.NewPersistenceError(fmt.Sprintf("failed to list jobs: %v", err), err)
	}
	return jobs, nil
}

func (s *PostgresStore) ListPending(ctx context.Context, jobType domain.JobType) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE status = $1`
	args := []interface{}{domain.JobStatusPending}

	if jobType != "" {
		query += " AND job_type = $2"
		args = append(args, jobType)
	}
	query += " ORDER BY created_at ASC, job_id ASC"

	var jobs []domain.Job
	if err := s.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, domain.NewPersistenceError(fmt.Sprintf("failed to list pending jobs: %v", err), err)
	}
	return jobs, nil
}

func (s *PostgresStore) List(ctx context.Context, filter JobFilter) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.UserID != "" {
		query += fmt.Sprintf(" AND user_id = $%d", argIdx)
		args = append(args, filter.UserID)
		argIdx++
	}

	if filter.JobType != "" {
		query += fmt.Sprintf(" AND job_type = $%d", argIdx)
		args = append(args, filter.JobType)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, job_id DESC"

	// Fetch one extra to determine if there are more results
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.pageSize()+1)

	var jobs []domain.Job
	if err := s.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, domain.NewPersistenceError(fmt.Sprintf("failed to list jobs: %v", err), err)
	}
	return jobs, nil
}

func (s *PostgresStore) DeleteByS3Key(ctx context.Context, key string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE s3_key = $1`, key)
	if err != nil {
		return 0, domain.NewPersistenceError(fmt.Sprintf("failed to delete jobs: %v", err), err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, domain.NewPersistenceError(fmt.Sprintf("failed to get rows affected: %v", err), err)
	}

	s.logger.Info("Jobs deleted by s3 key",
		slog.String("s3_key", key),
		slog.Int64("removed", removed),
	)

	return removed, nil
}
