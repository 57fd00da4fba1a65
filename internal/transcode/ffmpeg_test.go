package transcode

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/clipjobs/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeScript creates an executable shell script standing in for ffmpeg
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestTrimArgs(t *testing.T) {
	args := TrimArgs("/tmp/j-input.mp4", "/tmp/j-output.mp4", 1.5, 10)

	assert.Equal(t, []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-ss", "1.5",
		"-to", "10",
		"-i", "/tmp/j-input.mp4",
		"-c", "copy",
		"-avoid_negative_ts", "make_zero",
		"/tmp/j-output.mp4",
	}, args)
}

func TestFFmpeg_Trim(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects invalid window without spawning", func(t *testing.T) {
		f := NewFFmpeg(filepath.Join(t.TempDir(), "does-not-exist"), discardLogger())

		err := f.Trim(ctx, "in.mp4", "out.mp4", 5, 5)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrTranscode)
		assert.Contains(t, err.Error(), domain.MsgInvalidWindow)
	})

	t.Run("success writes output", func(t *testing.T) {
		bin := writeScript(t, `for a; do last="$a"; done; printf trimmed > "$last"`)
		out := filepath.Join(t.TempDir(), "out.mp4")

		require.NoError(t, NewFFmpeg(bin, discardLogger()).Trim(ctx, "in.mp4", out, 0, 5))

		data, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.Equal(t, "trimmed", string(data))
	})

	t.Run("non zero exit carries tool output", func(t *testing.T) {
		bin := writeScript(t, `echo "in.mp4: No such file or directory" >&2; exit 1`)

		err := NewFFmpeg(bin, discardLogger()).Trim(ctx, "in.mp4", "out.mp4", 0, 5)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrTranscode)
		assert.Contains(t, err.Error(), "in.mp4: No such file or directory")
	})

	t.Run("missing binary", func(t *testing.T) {
		f := NewFFmpeg(filepath.Join(t.TempDir(), "does-not-exist"), discardLogger())

		err := f.Trim(ctx, "in.mp4", "out.mp4", 0, 5)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrTranscode)
	})

	t.Run("deadline reports timeout", func(t *testing.T) {
		bin := writeScript(t, `exec sleep 5`)
		tctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		defer cancel()

		err := NewFFmpeg(bin, discardLogger()).Trim(tctx, "in.mp4", "out.mp4", 0, 5)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrTranscode)
		assert.Equal(t, "transcode timed out", err.Error())
	})
}
