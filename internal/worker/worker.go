// Package worker polls the job store for pending jobs, claims them and drives
// each one through the processing pipeline.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cuongbtq/clipjobs/internal/domain"
	"github.com/cuongbtq/clipjobs/shared/rabbitmq"
)

// DefaultPollInterval is used when no poll interval is configured
const DefaultPollInterval = 10 * time.Second

// JobQueue is the part of the job store the scheduler needs
type JobQueue interface {
	ListPending(ctx context.Context, jobType domain.JobType) ([]domain.Job, error)
	Claim(ctx context.Context, jobID string) (*domain.Job, error)
}

// JobProcessor handles one claimed job
type JobProcessor interface {
	Process(ctx context.Context, job *domain.Job)
}

// Config holds worker configuration
type Config struct {
	Logger        *slog.Logger
	Store         JobQueue
	Processor     JobProcessor
	JobType       domain.JobType // empty means any type
	PollInterval  time.Duration
	RabbitClient  *rabbitmq.Client // optional wake-up source
	PrefetchCount int
	WorkerID      string
}

// Worker represents the background job worker
type Worker struct {
	logger        *slog.Logger
	store         JobQueue
	processor     JobProcessor
	jobType       domain.JobType
	pollInterval  time.Duration
	rabbitClient  *rabbitmq.Client
	prefetchCount int
	workerID      string

	wakeChan chan struct{}
	stopChan chan struct{}
	mu       sync.Mutex
	stopped  bool
	wg       sync.WaitGroup
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	prefetchCount := cfg.PrefetchCount
	if prefetchCount <= 0 {
		prefetchCount = 1
	}

	workerID := cfg.WorkerID
	if workerID == "" {
		workerID = fmt.Sprintf("worker-%s", uuid.NewString()[:8])
	}

	return &Worker{
		logger:        cfg.Logger,
		store:         cfg.Store,
		processor:     cfg.Processor,
		jobType:       cfg.JobType,
		pollInterval:  pollInterval,
		rabbitClient:  cfg.RabbitClient,
		prefetchCount: prefetchCount,
		workerID:      workerID,
		wakeChan:      make(chan struct{}, 1),
		stopChan:      make(chan struct{}),
	}
}

// Start runs the poll loop until ctx is cancelled or Stop is called.
// It blocks for the lifetime of the worker.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.wg.Add(1)
	w.mu.Unlock()
	defer w.wg.Done()

	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.String("job_type", string(w.jobType)),
		slog.Duration("poll_interval", w.pollInterval),
	)

	if w.rabbitClient != nil {
		deliveries, err := w.setupConsumer(ctx)
		if err != nil {
			return fmt.Errorf("failed to set up wake-up consumer: %w", err)
		}

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.startMessageDispatcher(ctx, deliveries)
		}()
	}

	w.pollLoop(ctx)
	return nil
}

// Stop gracefully stops the worker. The job in flight is allowed to finish.
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")

	w.mu.Lock()
	if !w.stopped {
		w.stopped = true
		close(w.stopChan)
	}
	w.mu.Unlock()

	w.wg.Wait()
	w.logger.Info("Worker stopped")
}

// Wake requests an extra tick. Requests made while one is already queued
// are coalesced.
func (w *Worker) Wake() {
	select {
	case w.wakeChan <- struct{}{}:
	default:
	}
}

func (w *Worker) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Worker context canceled, poll loop exiting")
			return
		case <-w.stopChan:
			w.logger.Info("Worker stop requested, poll loop exiting")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		case <-w.wakeChan:
			w.logger.Debug("Wake-up received, polling now")
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single poll: list pending jobs, then claim and process
// each one in order. It returns the number of jobs processed.
func (w *Worker) RunOnce(ctx context.Context) int {
	jobs, err := w.store.ListPending(ctx, w.jobType)
	if err != nil {
		w.logger.Error("Failed to fetch pending jobs",
			slog.String("error", err.Error()),
		)
		return 0
	}

	if len(jobs) == 0 {
		return 0
	}

	w.logger.Info("Found pending jobs",
		slog.Int("count", len(jobs)),
	)

	processed := 0
	for i := range jobs {
		if w.stopping(ctx) {
			break
		}

		jobID := jobs[i].JobID
		job, err := w.store.Claim(ctx, jobID)
		if err != nil {
			if errors.Is(err, domain.ErrJobAlreadyClaimed) {
				w.logger.Warn("Job already claimed, skipping",
					slog.String("job_id", jobID),
				)
			} else {
				w.logger.Error("Failed to claim job",
					slog.String("job_id", jobID),
					slog.String("error", err.Error()),
				)
			}
			continue
		}

		w.processor.Process(ctx, job)
		processed++
	}

	return processed
}

func (w *Worker) stopping(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	select {
	case <-w.stopChan:
		return true
	default:
		return false
	}
}
