package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/clipjobs/internal/blob"
	"github.com/cuongbtq/clipjobs/internal/storage"
)

// Publisher sends wake-up messages to workers
type Publisher interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

// HealthChecker reports whether a backing service is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger       *slog.Logger
	Store        storage.Store
	Blobs        blob.Store               // optional; blob deletion is skipped when nil
	Publisher    Publisher                // optional
	HealthChecks map[string]HealthChecker // optional
	ServiceName  string
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger    *slog.Logger
	store     storage.Store
	blobs     blob.Store
	publisher Publisher
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:    deps.Logger,
		store:     deps.Store,
		blobs:     deps.Blobs,
		publisher: deps.Publisher,
	}
}
