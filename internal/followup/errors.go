package followup

import "errors"

var (
	// ErrInvalidPhone is returned when a phone number has no digits left after
	// normalization
	ErrInvalidPhone = errors.New("phone number contains no digits")

	// ErrInvalidVariant is returned when a template variant index is outside
	// the configured range
	ErrInvalidVariant = errors.New("template variant out of range")

	// ErrJobGone is returned when a job row no longer exists or was claimed by
	// another worker; the reminder must not be sent
	ErrJobGone = errors.New("job canceled or already claimed")
)

// RetryableError wraps transient store errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}
