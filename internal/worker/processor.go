package worker

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/cuongbtq/clipjobs/internal/domain"
	"github.com/cuongbtq/clipjobs/internal/transfer"
)

const (
	defaultContentType = "video/mp4"

	// terminal writes outlive a cancelled job context
	finalizeTimeout = 10 * time.Second
)

// JobUpdater records job outcomes
type JobUpdater interface {
	Update(ctx context.Context, jobID string, update domain.JobUpdate) (*domain.Job, error)
}

// Downloader fetches a remote source into a local file
type Downloader interface {
	Download(ctx context.Context, url, destPath string) error
}

// Uploader stores a finished artifact in blob storage
type Uploader interface {
	Upload(ctx context.Context, body []byte, contentType, userID, username string, metadata map[string]string) (*transfer.UploadResult, error)
}

// Transcoder trims media between two offsets
type Transcoder interface {
	Trim(ctx context.Context, inputPath, outputPath string, start, end float64) error
}

// ProcessorConfig holds processor dependencies
type ProcessorConfig struct {
	Logger           *slog.Logger
	Store            JobUpdater
	Downloader       Downloader
	Uploader         Uploader
	Transcoder       Transcoder
	ScratchDir       string
	DownloadTimeout  time.Duration
	TranscodeTimeout time.Duration
	UploadTimeout    time.Duration
}

type strategy func(ctx context.Context, job *domain.Job, logger *slog.Logger) (*transfer.UploadResult, error)

// Processor drives one claimed job to a terminal state
type Processor struct {
	logger           *slog.Logger
	store            JobUpdater
	downloader       Downloader
	uploader         Uploader
	transcoder       Transcoder
	scratchDir       string
	downloadTimeout  time.Duration
	transcodeTimeout time.Duration
	uploadTimeout    time.Duration
	strategies       map[domain.JobType]strategy
}

// NewProcessor creates a new processor
func NewProcessor(cfg *ProcessorConfig) *Processor {
	scratchDir := cfg.ScratchDir
	if scratchDir == "" {
		scratchDir = os.TempDir()
	}

	p := &Processor{
		logger:           cfg.Logger,
		store:            cfg.Store,
		downloader:       cfg.Downloader,
		uploader:         cfg.Uploader,
		transcoder:       cfg.Transcoder,
		scratchDir:       scratchDir,
		downloadTimeout:  cfg.DownloadTimeout,
		transcodeTimeout: cfg.TranscodeTimeout,
		uploadTimeout:    cfg.UploadTimeout,
	}
	p.strategies = map[domain.JobType]strategy{
		domain.JobTypeCrop: p.crop,
	}
	return p
}

// Process runs the strategy registered for job.Type and records the outcome.
// It never returns an error: every failure ends up on the job record.
func (p *Processor) Process(ctx context.Context, job *domain.Job) {
	logger := p.logger.With(
		slog.String("job_id", job.JobID),
		slog.String("job_type", string(job.Type)),
	)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job processing panicked",
				slog.Any("panic", r),
			)
			p.fail(ctx, logger, job.JobID, fmt.Sprintf("panic: %v", r))
		}
	}()

	logger.Info("Processing job")
	startedAt := time.Now()

	if strings.TrimSpace(job.UserID) == "" {
		p.fail(ctx, logger, job.JobID, domain.MsgUserIDRequired)
		return
	}

	run, ok := p.strategies[job.Type]
	if !ok {
		p.fail(ctx, logger, job.JobID, fmt.Sprintf("unsupported job type: %s", job.Type))
		return
	}

	result, err := run(ctx, job, logger)
	if err != nil {
		p.fail(ctx, logger, job.JobID, err.Error())
		return
	}

	p.complete(ctx, logger, job.JobID, result)
	logger.Info("Job completed",
		slog.String("download_url", result.URL),
		slog.Duration("duration", time.Since(startedAt)),
	)
}

// crop trims the source to [job.Start, job.End] and uploads the clip
func (p *Processor) crop(ctx context.Context, job *domain.Job, logger *slog.Logger) (*transfer.UploadResult, error) {
	if err := domain.ValidateWindow(job.Start, job.End); err != nil {
		return nil, err
	}

	inputPath := filepath.Join(p.scratchDir, job.JobID+"-input.mp4")
	outputPath := filepath.Join(p.scratchDir, job.JobID+"-output.mp4")
	defer p.cleanup(logger, inputPath, outputPath)

	if err := p.acquireInput(ctx, job, inputPath, logger); err != nil {
		return nil, err
	}

	if strings.TrimSpace(job.Username) == "" {
		return nil, domain.NewValidationError(domain.MsgUsernameRequired)
	}

	transcodeCtx, cancel := withTimeout(ctx, p.transcodeTimeout)
	err := p.transcoder.Trim(transcodeCtx, inputPath, outputPath, job.Start, job.End)
	cancel()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, domain.NewTranscodeError(fmt.Sprintf("failed to read transcoded output: %v", err), err)
	}

	uploadCtx, cancel := withTimeout(ctx, p.uploadTimeout)
	defer cancel()

	return p.uploader.Upload(uploadCtx, data, detectContentType(data), job.UserID, job.Username, map[string]string{
		"edited":   "true",
		"job_id":   job.JobID,
		"job_type": string(job.Type),
	})
}

// acquireInput materialises the job source at inputPath
func (p *Processor) acquireInput(ctx context.Context, job *domain.Job, inputPath string, logger *slog.Logger) error {
	switch {
	case job.VideoURL != nil && *job.VideoURL != "":
		logger.Info("Downloading source video",
			slog.String("video_url", *job.VideoURL),
		)

		downloadCtx, cancel := withTimeout(ctx, p.downloadTimeout)
		defer cancel()

		if err := p.downloader.Download(downloadCtx, *job.VideoURL, inputPath); err != nil {
			return err
		}
		if _, err := os.Stat(inputPath); err != nil {
			return domain.NewTransferError(domain.MsgInputMissing, err)
		}
		return nil

	case job.S3Key != nil && *job.S3Key != "":
		return domain.NewNotImplementedError(domain.MsgS3InputNotImpl)

	default:
		return domain.NewValidationError(domain.MsgNoInputSource)
	}
}

func (p *Processor) complete(ctx context.Context, logger *slog.Logger, jobID string, result *transfer.UploadResult) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	job, err := p.store.Update(writeCtx, jobID, domain.CompleteUpdate(result.URL, result.Key))
	if err != nil {
		logger.Error("Failed to record job completion",
			slog.String("error", err.Error()),
		)
		return
	}
	if job == nil {
		logger.Warn("Job vanished before completion was recorded")
	}
}

func (p *Processor) fail(ctx context.Context, logger *slog.Logger, jobID, message string) {
	if message == "" {
		message = "unknown error"
	}

	logger.Error("Job failed",
		slog.String("error", message),
	)

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	if _, err := p.store.Update(writeCtx, jobID, domain.FailUpdate(message)); err != nil {
		logger.Error("Failed to record job failure",
			slog.String("error", err.Error()),
		)
	}
}

func (p *Processor) cleanup(logger *slog.Logger, paths ...string) {
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warn("Failed to remove scratch file",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		}
	}
}

// detectContentType sniffs the media type of data, defaulting to video/mp4
func detectContentType(data []byte) string {
	if len(data) == 0 {
		return defaultContentType
	}

	detected := mimetype.Detect(data)
	if detected.Is("application/octet-stream") {
		return defaultContentType
	}

	mediaType, _, err := mime.ParseMediaType(detected.String())
	if err != nil || mediaType == "" {
		return defaultContentType
	}
	return mediaType
}

// withTimeout bounds ctx by d when d is positive
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
