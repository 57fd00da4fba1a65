package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cuongbtq/clipjobs/internal/api/dto"
	"github.com/cuongbtq/clipjobs/internal/domain"
	"github.com/cuongbtq/clipjobs/internal/storage"
)

const (
	maxPageSize    = 100
	publishTimeout = 5 * time.Second
)

// CreateJob handles POST /api/v1/jobs
// Creates a pending job and nudges the workers
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	job, err := h.store.Create(c.Request.Context(), req.ToNewJob())
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": err.Error(),
			})
			return
		}
		h.logger.Error("Failed to create job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create job",
		})
		return
	}

	h.logger.Info("Job created",
		slog.String("job_id", job.JobID),
		slog.String("job_type", string(job.Type)),
		slog.String("user_id", job.UserID),
	)

	h.publishWakeUp(c.Request.Context(), job.JobID)

	c.JSON(http.StatusCreated, dto.FromJob(job))
}

// publishWakeUp tells workers a job is waiting. Polling picks the job up
// regardless, so failures are only logged.
func (h *JobHandler) publishWakeUp(ctx context.Context, jobID string) {
	if h.publisher == nil {
		return
	}

	body, err := json.Marshal(map[string]string{"job_id": jobID})
	if err != nil {
		h.logger.Error("Failed to encode wake-up message", slog.String("error", err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := h.publisher.PublishWithRetry(ctx, body, "application/json"); err != nil {
		h.logger.Warn("Failed to publish wake-up message",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}

// GetJob handles GET /api/v1/jobs/:job_id
// Retrieves detailed information about a specific job
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")

	if _, err := uuid.Parse(jobID); err != nil {
		h.logger.Error("Invalid job_id format", slog.String("job_id", jobID), slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	job, err := h.store.Get(c.Request.Context(), jobID)
	if err != nil {
		h.logger.Error("Failed to get job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job",
		})
		return
	}

	if job == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": domain.ErrJobNotFound.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, dto.FromJob(job))
}

// ListJobs handles GET /api/v1/jobs
// Lists jobs with optional filtering and cursor pagination
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = storage.DefaultPageSize
	}

	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	if req.Status != "" && !domain.JobStatus(req.Status).Valid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid status",
		})
		return
	}

	cursor, err := storage.DecodeJobCursor(req.Cursor)
	if err != nil {
		h.logger.Error("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	filter := storage.JobFilter{
		UserID:   req.UserID,
		JobType:  req.Type,
		Status:   req.Status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	}

	jobs, err := h.store.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs",
		})
		return
	}

	// the store returns one extra row when another page exists
	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	jobResponse := make([]dto.JobDTO, len(jobs))
	for i := range jobs {
		jobResponse[i] = dto.FromJob(&jobs[i])
	}

	var nextCursor string
	if hasMore {
		last := jobs[len(jobs)-1]
		nextCursor = storage.EncodeJobCursor(&storage.JobCursor{
			CreatedAt: last.CreatedAt,
			JobID:     last.JobID,
		})
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       jobResponse,
		NextCursor: nextCursor,
	})
}

// DeleteBlob handles DELETE /api/v1/blobs?key=
// Removes a stored object and every job that references it
func (h *JobHandler) DeleteBlob(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "key is required",
		})
		return
	}

	if h.blobs != nil {
		if err := h.blobs.Delete(c.Request.Context(), key); err != nil {
			h.logger.Error("Failed to delete blob",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
			c.JSON(http.StatusBadGateway, gin.H{
				"error": "Failed to delete blob",
			})
			return
		}
	}

	deleted, err := h.store.DeleteByS3Key(c.Request.Context(), key)
	if err != nil {
		h.logger.Error("Failed to delete jobs by key",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to delete jobs",
		})
		return
	}

	h.logger.Info("Blob deleted",
		slog.String("key", key),
		slog.Int64("jobs_deleted", deleted),
	)

	c.JSON(http.StatusOK, dto.DeleteBlobResponse{
		Key:     key,
		Deleted: deleted,
	})
}
