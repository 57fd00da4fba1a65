package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func pendingJob(now time.Time) *Job {
	return NewJob{
		Type:     JobTypeCrop,
		VideoURL: strPtr("http://x/vid.mp4"),
		Start:    2,
		End:      5,
		UserID:   "u1",
		Username: "alice",
	}.Build("job-1", now)
}

func TestJobStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from JobStatus
		to   JobStatus
		want bool
	}{
		{JobStatusPending, JobStatusProcessing, true},
		{JobStatusPending, JobStatusFailed, true},
		{JobStatusProcessing, JobStatusCompleted, true},
		{JobStatusProcessing, JobStatusFailed, true},
		{JobStatusProcessing, JobStatusProcessing, true},
		{JobStatusProcessing, JobStatusPending, false},
		{JobStatusCompleted, JobStatusFailed, false},
		{JobStatusFailed, JobStatusCompleted, false},
		{JobStatusCompleted, JobStatusCompleted, false},
		{JobStatusFailed, JobStatusPending, false},
		{JobStatus("bogus"), JobStatusFailed, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestNewJob_Validate(t *testing.T) {
	tests := []struct {
		name    string
		job     NewJob
		wantErr bool
	}{
		{name: "valid crop", job: NewJob{Type: JobTypeCrop, Start: 2, End: 5}},
		{name: "missing type", job: NewJob{Start: 2, End: 5}, wantErr: true},
		{name: "end before start", job: NewJob{Type: JobTypeCrop, Start: 5, End: 2}, wantErr: true},
		{name: "empty window", job: NewJob{Type: JobTypeCrop, Start: 3, End: 3}, wantErr: true},
		{name: "negative start", job: NewJob{Type: JobTypeCrop, Start: -1, End: 3}, wantErr: true},
		{name: "missing user is accepted", job: NewJob{Type: JobTypeCrop, Start: 0, End: 1, Username: "bob"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.job.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrValidation))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestNewJob_Build(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	job := NewJob{Type: JobTypeCrop, VideoURL: strPtr("  "), S3Key: strPtr(" videos/a.mp4 "), End: 1}.Build("id", now)

	assert.Equal(t, JobStatusPending, job.Status)
	assert.Nil(t, job.VideoURL, "blank url is treated as absent")
	require.NotNil(t, job.S3Key)
	assert.Equal(t, "videos/a.mp4", *job.S3Key)
	assert.Nil(t, job.Error)
	assert.Nil(t, job.DownloadURL)
	assert.Equal(t, now, job.CreatedAt)
	assert.Equal(t, now, job.UpdatedAt)
}

func TestJob_Apply(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("complete sets url and key and clears error", func(t *testing.T) {
		job := pendingJob(now)
		require.NoError(t, job.Apply(StatusUpdate(JobStatusProcessing), now.Add(time.Second)))
		require.NoError(t, job.Apply(CompleteUpdate("https://blob/out.mp4", "videos/alice/out.mp4"), now.Add(2*time.Second)))

		assert.Equal(t, JobStatusCompleted, job.Status)
		require.NotNil(t, job.DownloadURL)
		assert.Equal(t, "https://blob/out.mp4", *job.DownloadURL)
		require.NotNil(t, job.S3Key)
		assert.Equal(t, "videos/alice/out.mp4", *job.S3Key)
		assert.Nil(t, job.Error)
		assert.Equal(t, now.Add(2*time.Second), job.UpdatedAt)
	})

	t.Run("fail records error", func(t *testing.T) {
		job := pendingJob(now)
		require.NoError(t, job.Apply(FailUpdate("boom"), now.Add(time.Second)))

		assert.Equal(t, JobStatusFailed, job.Status)
		require.NotNil(t, job.Error)
		assert.Equal(t, "boom", *job.Error)
		assert.Nil(t, job.DownloadURL)
	})

	t.Run("terminal state is never re-entered", func(t *testing.T) {
		job := pendingJob(now)
		require.NoError(t, job.Apply(FailUpdate("boom"), now.Add(time.Second)))

		err := job.Apply(CompleteUpdate("u", "k"), now.Add(2*time.Second))
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidTransition))
		assert.Equal(t, JobStatusFailed, job.Status)
		assert.Nil(t, job.DownloadURL)
	})

	t.Run("cannot go back to pending", func(t *testing.T) {
		job := pendingJob(now)
		require.NoError(t, job.Apply(StatusUpdate(JobStatusProcessing), now.Add(time.Second)))
		err := job.Apply(StatusUpdate(JobStatusPending), now.Add(2*time.Second))
		assert.True(t, errors.Is(err, ErrInvalidTransition))
		assert.Equal(t, JobStatusProcessing, job.Status)
	})

	t.Run("rejects error without failed status", func(t *testing.T) {
		job := pendingJob(now)
		err := job.Apply(JobUpdate{Error: strPtr("x")}, now.Add(time.Second))
		assert.True(t, errors.Is(err, ErrValidation))
	})

	t.Run("rejects failed without message", func(t *testing.T) {
		job := pendingJob(now)
		err := job.Apply(FailUpdate(""), now.Add(time.Second))
		assert.True(t, errors.Is(err, ErrValidation))
	})

	t.Run("rejects download url without completed status", func(t *testing.T) {
		job := pendingJob(now)
		err := job.Apply(JobUpdate{DownloadURL: strPtr("https://x")}, now.Add(time.Second))
		assert.True(t, errors.Is(err, ErrValidation))
	})

	t.Run("updated_at always moves forward", func(t *testing.T) {
		job := pendingJob(now)
		require.NoError(t, job.Apply(JobUpdate{S3Key: strPtr("k")}, now))
		assert.True(t, job.UpdatedAt.After(job.CreatedAt))
	})
}

func TestError_Kinds(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewTransferError("failed to download: connection refused", cause)

	assert.Equal(t, "failed to download: connection refused", err.Error())
	assert.True(t, errors.Is(err, ErrTransfer))
	assert.False(t, errors.Is(err, ErrTranscode))
	assert.True(t, errors.Is(err, cause))

	var domainErr *Error
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, ErrTransfer, domainErr.Kind)

	assert.True(t, errors.Is(NewNotImplementedError(MsgS3InputNotImpl), ErrNotImplemented))
	assert.Equal(t, MsgUserIDRequired, NewValidationError(MsgUserIDRequired).Error())
}
