package domain

import (
	"fmt"
	"strings"
	"time"
)

// Job is one unit of requested media work
type Job struct {
	JobID       string    `json:"job_id" db:"job_id" bson:"job_id"`
	Type        JobType   `json:"type" db:"job_type" bson:"type"`
	VideoURL    *string   `json:"video_url" db:"video_url" bson:"video_url"`
	S3Key       *string   `json:"s3_key" db:"s3_key" bson:"s3_key"`
	Start       float64   `json:"start" db:"start_sec" bson:"start"`
	End         float64   `json:"end" db:"end_sec" bson:"end"`
	UserID      string    `json:"user_id" db:"user_id" bson:"user_id"`
	Username    string    `json:"username" db:"username" bson:"username"`
	Status      JobStatus `json:"status" db:"status" bson:"status"`
	Error       *string   `json:"error" db:"error_message" bson:"error"`
	DownloadURL *string   `json:"download_url" db:"download_url" bson:"download_url"`
	CreatedAt   time.Time `json:"created_at" db:"created_at" bson:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at" bson:"updated_at"`
}

// NewJob holds the caller-supplied fields of a job about to be created
type NewJob struct {
	Type     JobType
	VideoURL *string
	S3Key    *string
	Start    float64
	End      float64
	UserID   string
	Username string
}

// Validate checks the fields every job type needs at creation time.
// userId and username are checked later by the processor so that such jobs
// end up failed with a readable reason instead of never existing.
func (n NewJob) Validate() error {
	if strings.TrimSpace(string(n.Type)) == "" {
		return NewValidationError("type is required")
	}
	if n.Type == JobTypeCrop {
		if err := ValidateWindow(n.Start, n.End); err != nil {
			return err
		}
	}
	return nil
}

// ValidateWindow checks a trim window in seconds
func ValidateWindow(start, end float64) error {
	if start < 0 || end <= start {
		return NewValidationError(fmt.Sprintf("%s: start=%g end=%g", MsgInvalidWindow, start, end))
	}
	return nil
}

// Build turns the creation input into a pending job record
func (n NewJob) Build(jobID string, now time.Time) *Job {
	return &Job{
		JobID:     jobID,
		Type:      n.Type,
		VideoURL:  nonEmpty(n.VideoURL),
		S3Key:     nonEmpty(n.S3Key),
		Start:     n.Start,
		End:       n.End,
		UserID:    n.UserID,
		Username:  n.Username,
		Status:    JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// JobUpdate is a typed partial update. Nil fields are left untouched.
type JobUpdate struct {
	Status      *JobStatus
	Error       *string
	DownloadURL *string
	S3Key       *string
}

// Validate checks the update on its own, before it is merged into a job
func (u JobUpdate) Validate() error {
	if u.Status != nil && !u.Status.Valid() {
		return NewValidationError(fmt.Sprintf("unknown status %q", *u.Status))
	}
	if u.Error != nil && (u.Status == nil || *u.Status != JobStatusFailed) {
		return NewValidationError("error can only be set together with status failed")
	}
	if u.Status != nil && *u.Status == JobStatusFailed && (u.Error == nil || *u.Error == "") {
		return NewValidationError("status failed requires an error message")
	}
	if u.DownloadURL != nil && (u.Status == nil || *u.Status != JobStatusCompleted) {
		return NewValidationError("download_url can only be set together with status completed")
	}
	return nil
}

// IsEmpty reports whether the update changes nothing
func (u JobUpdate) IsEmpty() bool {
	return u.Status == nil && u.Error == nil && u.DownloadURL == nil && u.S3Key == nil
}

// Apply merges u into the job, enforcing the state machine and refreshing UpdatedAt.
// The job is left untouched when an error is returned.
func (j *Job) Apply(u JobUpdate, now time.Time) error {
	if err := u.Validate(); err != nil {
		return err
	}

	next := *j
	if u.Status != nil {
		if !j.Status.CanTransitionTo(*u.Status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, *u.Status)
		}
		next.Status = *u.Status
	}
	if u.Error != nil {
		msg := *u.Error
		next.Error = &msg
	}
	if u.DownloadURL != nil {
		url := *u.DownloadURL
		next.DownloadURL = &url
	}
	if u.S3Key != nil {
		next.S3Key = nonEmpty(u.S3Key)
	}

	if next.Status != JobStatusFailed {
		next.Error = nil
	}
	if next.Status != JobStatusCompleted {
		next.DownloadURL = nil
	}

	if !now.After(j.UpdatedAt) {
		now = j.UpdatedAt.Add(time.Microsecond)
	}
	next.UpdatedAt = now

	*j = next
	return nil
}

// StatusUpdate builds an update that only moves the status
func StatusUpdate(status JobStatus) JobUpdate {
	return JobUpdate{Status: &status}
}

// FailUpdate builds the terminal update for a failed job
func FailUpdate(msg string) JobUpdate {
	status := JobStatusFailed
	return JobUpdate{Status: &status, Error: &msg}
}

// CompleteUpdate builds the terminal update for a successful job
func CompleteUpdate(downloadURL, key string) JobUpdate {
	status := JobStatusCompleted
	return JobUpdate{Status: &status, DownloadURL: &downloadURL, S3Key: &key}
}

func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

// Clone returns a deep copy so callers cannot mutate stored records through shared pointers
func (j Job) Clone() Job {
	c := j
	c.VideoURL = copyStr(j.VideoURL)
	c.S3Key = copyStr(j.S3Key)
	c.Error = copyStr(j.Error)
	c.DownloadURL = copyStr(j.DownloadURL)
	return c
}

func copyStr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
