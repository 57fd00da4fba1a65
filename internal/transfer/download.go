// Package transfer moves media between remote sources, local scratch files
// and blob storage.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/cuongbtq/clipjobs/internal/domain"
)

// HTTPDownloader streams remote resources to local files
type HTTPDownloader struct {
	client *http.Client
	logger *slog.Logger
}

// NewHTTPDownloader creates a new HTTPDownloader. A nil client uses a default
// client without an overall timeout; callers bound downloads with ctx.
func NewHTTPDownloader(client *http.Client, logger *slog.Logger) *HTTPDownloader {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPDownloader{
		client: client,
		logger: logger,
	}
}

// Download fetches url into destPath. On failure the partially written file
// is removed.
func (d *HTTPDownloader) Download(ctx context.Context, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.NewTransferError(fmt.Sprintf("failed to create request: %v", err), err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.NewTransferError("download timed out", err)
		}
		return domain.NewTransferError(fmt.Sprintf("failed to download video: %v", err), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.NewTransferError(fmt.Sprintf("Failed to download video: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode)), nil)
	}

	file, err := os.Create(destPath)
	if err != nil {
		return domain.NewTransferError(fmt.Sprintf("failed to create file %s: %v", destPath, err), err)
	}

	written, err := io.Copy(file, resp.Body)
	closeErr := file.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(destPath)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return domain.NewTransferError("download timed out", err)
		}
		return domain.NewTransferError(fmt.Sprintf("failed to write video file: %v", err), err)
	}

	d.logger.Debug("Download finished",
		slog.String("url", url),
		slog.String("path", destPath),
		slog.Int64("bytes", written),
	)
	return nil
}
