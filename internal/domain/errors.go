package domain

import "errors"

var (
	// ErrJobNotFound is returned when a job cannot be found in the store
	ErrJobNotFound = errors.New("job not found")

	// ErrJobAlreadyClaimed is returned when attempting to claim a job that's already claimed
	ErrJobAlreadyClaimed = errors.New("job already claimed or not in pending status")

	// ErrInvalidTransition is returned when an update would move a job backwards
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Error kinds. Compare with errors.Is.
var (
	ErrValidation     = errors.New("validation error")
	ErrTransfer       = errors.New("transfer error")
	ErrTranscode      = errors.New("transcode error")
	ErrStorage        = errors.New("storage error")
	ErrPersistence    = errors.New("persistence error")
	ErrNotImplemented = errors.New("not implemented")
)

// Error is a classified failure raised while handling a job.
// Error() returns the bare message so it can be recorded on the job verbatim.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" && e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the error kind so callers can write errors.Is(err, ErrTransfer)
func (e *Error) Is(target error) bool {
	return e.Kind == target
}

func newError(kind error, msg string, err error) error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// NewValidationError creates a validation error
func NewValidationError(msg string) error {
	return newError(ErrValidation, msg, nil)
}

// NewTransferError creates a download/upload transport error
func NewTransferError(msg string, err error) error {
	return newError(ErrTransfer, msg, err)
}

// NewTranscodeError creates an external tool error
func NewTranscodeError(msg string, err error) error {
	return newError(ErrTranscode, msg, err)
}

// NewStorageError creates a blob storage error
func NewStorageError(msg string, err error) error {
	return newError(ErrStorage, msg, err)
}

// NewPersistenceError creates a job store error
func NewPersistenceError(msg string, err error) error {
	return newError(ErrPersistence, msg, err)
}

// NewNotImplementedError creates an error for input paths that are not supported yet
func NewNotImplementedError(msg string) error {
	return newError(ErrNotImplemented, msg, nil)
}
