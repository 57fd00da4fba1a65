package domain

// JobStatus is the lifecycle state of a job record
type JobStatus string

// Job status constants
const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// JobType selects the processing strategy for a job
type JobType string

// Job type constants
const (
	JobTypeCrop JobType = "crop"
)

// Failure messages recorded on jobs rejected before any media work starts
const (
	MsgUserIDRequired   = "userId is required for export"
	MsgUsernameRequired = "username is required for S3 upload"
	MsgInputMissing     = "Input file missing after download"
	MsgNoInputSource    = "No input source"
	MsgS3InputNotImpl   = "s3Key input is not implemented"
	MsgInvalidWindow    = "invalid trim window"
)

// rank orders statuses along the state machine; terminal states share a rank
func (s JobStatus) rank() int {
	switch s {
	case JobStatusPending:
		return 0
	case JobStatusProcessing:
		return 1
	case JobStatusCompleted, JobStatusFailed:
		return 2
	default:
		return -1
	}
}

// Valid reports whether s is a known status
func (s JobStatus) Valid() bool {
	return s.rank() >= 0
}

// Terminal reports whether no further transitions are allowed from s
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransitionTo reports whether moving from s to next keeps the state machine monotonic
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	if s == next {
		return !s.Terminal()
	}
	if s.Terminal() {
		return false
	}
	return next.rank() > s.rank()
}
