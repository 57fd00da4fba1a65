// Package transcode drives the external ffmpeg binary.
package transcode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/cuongbtq/clipjobs/internal/domain"
)

// DefaultBinary is used when no ffmpeg path is configured
const DefaultBinary = "ffmpeg"

// FFmpeg trims media with a stream copy
type FFmpeg struct {
	binary string
	logger *slog.Logger
}

// NewFFmpeg creates a new FFmpeg invoker
func NewFFmpeg(binary string, logger *slog.Logger) *FFmpeg {
	if binary == "" {
		binary = DefaultBinary
	}
	return &FFmpeg{
		binary: binary,
		logger: logger,
	}
}

// TrimArgs returns the ffmpeg argument vector for a trim
func TrimArgs(inputPath, outputPath string, start, end float64) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-ss", formatSeconds(start),
		"-to", formatSeconds(end),
		"-i", inputPath,
		"-c", "copy",
		"-avoid_negative_ts", "make_zero",
		outputPath,
	}
}

// Trim cuts [start, end) seconds of inputPath into outputPath
func (f *FFmpeg) Trim(ctx context.Context, inputPath, outputPath string, start, end float64) error {
	if err := domain.ValidateWindow(start, end); err != nil {
		return domain.NewTranscodeError(err.Error(), err)
	}

	args := TrimArgs(inputPath, outputPath, start, end)
	cmd := exec.CommandContext(ctx, f.binary, args...)
	cmd.WaitDelay = 5 * time.Second

	f.logger.Debug("Running ffmpeg",
		slog.String("binary", f.binary),
		slog.String("args", strings.Join(args, " ")),
	)

	startedAt := time.Now()
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				return domain.NewTranscodeError("transcode timed out", ctxErr)
			}
			return domain.NewTranscodeError("transcode cancelled", ctxErr)
		}

		output := strings.TrimSpace(string(out))
		if output == "" {
			return domain.NewTranscodeError(fmt.Sprintf("ffmpeg failed: %v", err), err)
		}
		return domain.NewTranscodeError(fmt.Sprintf("ffmpeg failed: %v: %s", err, output), err)
	}

	f.logger.Debug("ffmpeg finished",
		slog.String("output", outputPath),
		slog.Duration("duration", time.Since(startedAt)),
	)
	return nil
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
