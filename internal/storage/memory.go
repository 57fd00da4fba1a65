package storage

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cuongbtq/clipjobs/internal/domain"
	"github.com/google/uuid"
)

// MemoryStore keeps jobs in process memory. Used for local runs and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	jobs   map[string]*domain.Job
	order  []string
	now    func() time.Time
	logger *slog.Logger
}

// MemoryOption configures a MemoryStore
type MemoryOption func(*MemoryStore)

// WithClock overrides the time source
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore(logger *slog.Logger, opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		jobs:   make(map[string]*domain.Job),
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Create(ctx context.Context, in domain.NewJob) (*domain.Job, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	jobID := uuid.NewString()
	for s.jobs[jobID] != nil {
		jobID = uuid.NewString()
	}

	job := in.Build(jobID, s.now().UTC())
	s.jobs[jobID] = job
	s.order = append(s.order, jobID)

	out := job.Clone()
	return &out, nil
}

func (s *MemoryStore) Update(ctx context.Context, jobID string, update domain.JobUpdate) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		s.logger.Warn("Update skipped - job not found",
			slog.String("job_id", jobID),
		)
		return nil, nil
	}

	if err := job.Apply(update, s.now().UTC()); err != nil {
		return nil, err
	}

	out := job.Clone()
	return &out, nil
}

func (s *MemoryStore) Claim(ctx context.Context, jobID string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok || job.Status != domain.JobStatusPending {
		return nil, domain.ErrJobAlreadyClaimed
	}

	if err := job.Apply(domain.StatusUpdate(domain.JobStatusProcessing), s.now().UTC()); err != nil {
		return nil, err
	}

	out := job.Clone()
	return &out, nil
}

func (s *MemoryStore) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, nil
	}

	out := job.Clone()
	return &out, nil
}

func (s *MemoryStore) ListAll(ctx context.Context) ([]domain.Job, error) {
	return s.collect(func(*domain.Job) bool { return true }), nil
}

func (s *MemoryStore) ListPending(ctx context.Context, jobType domain.JobType) ([]domain.Job, error) {
	return s.collect(func(j *domain.Job) bool {
		return j.Status == domain.JobStatusPending && (jobType == "" || j.Type == jobType)
	}), nil
}

func (s *MemoryStore) List(ctx context.Context, filter JobFilter) ([]domain.Job, error) {
	jobs := s.collect(func(j *domain.Job) bool {
		if filter.UserID != "" && j.UserID != filter.UserID {
			return false
		}
		if filter.JobType != "" && string(j.Type) != filter.JobType {
			return false
		}
		if filter.Status != "" && string(j.Status) != filter.Status {
			return false
		}
		if c := filter.Cursor; c != nil {
			if j.CreatedAt.After(c.CreatedAt) {
				return false
			}
			if j.CreatedAt.Equal(c.CreatedAt) && j.JobID >= c.JobID {
				return false
			}
		}
		return true
	})

	// created_at DESC, job_id DESC, matching the SQL backends
	sort.SliceStable(jobs, func(a, b int) bool {
		if !jobs[a].CreatedAt.Equal(jobs[b].CreatedAt) {
			return jobs[a].CreatedAt.After(jobs[b].CreatedAt)
		}
		return jobs[a].JobID > jobs[b].JobID
	})

	if limit := filter.pageSize() + 1; len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (s *MemoryStore) DeleteByS3Key(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	kept := s.order[:0]
	for _, id := range s.order {
		job := s.jobs[id]
		if job.S3Key != nil && *job.S3Key == key {
			delete(s.jobs, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept

	return removed, nil
}

// collect returns matching jobs in insertion order
func (s *MemoryStore) collect(match func(*domain.Job) bool) []domain.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]domain.Job, 0, len(s.order))
	for _, id := range s.order {
		job := s.jobs[id]
		if match(job) {
			jobs = append(jobs, job.Clone())
		}
	}
	return jobs
}
