// Package storage persists job records. PostgreSQL, MongoDB and in-memory
// backends share one contract so the worker and API never depend on a driver.
package storage

import (
	"context"
	"time"

	"github.com/cuongbtq/clipjobs/internal/domain"
)

// Store is the job record store
type Store interface {
	// Create assigns a fresh job ID and persists a pending job
	Create(ctx context.Context, in domain.NewJob) (*domain.Job, error)

	// Update merges a partial update. Returns (nil, nil) when the job no longer exists.
	Update(ctx context.Context, jobID string, update domain.JobUpdate) (*domain.Job, error)

	// Claim atomically moves a pending job to processing.
	// Returns domain.ErrJobAlreadyClaimed when the job is not pending.
	Claim(ctx context.Context, jobID string) (*domain.Job, error)

	// Get returns (nil, nil) when the job does not exist
	Get(ctx context.Context, jobID string) (*domain.Job, error)

	ListAll(ctx context.Context) ([]domain.Job, error)

	// ListPending returns pending jobs oldest first. An empty type matches every type.
	ListPending(ctx context.Context, jobType domain.JobType) ([]domain.Job, error)

	// List returns at most filter.PageSize+1 jobs, newest first, so callers can detect a next page
	List(ctx context.Context, filter JobFilter) ([]domain.Job, error)

	// DeleteByS3Key removes every job referencing the blob key and returns how many were removed
	DeleteByS3Key(ctx context.Context, key string) (int64, error)
}

// JobFilter narrows List results
type JobFilter struct {
	UserID   string
	JobType  string
	Status   string
	PageSize int
	Cursor   *JobCursor
}

// JobCursor is the keyset position of the last job on the previous page
type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

// DefaultPageSize is used when a filter does not set one
const DefaultPageSize = 20

func (f JobFilter) pageSize() int {
	if f.PageSize <= 0 {
		return DefaultPageSize
	}
	return f.PageSize
}
