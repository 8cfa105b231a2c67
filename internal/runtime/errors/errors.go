package errors

import sterrors "errors"

var (
	ErrServiceRequired      = sterrors.New("pulseflow: event service is required")
	ErrHandlerRequired      = sterrors.New("pulseflow: handler function is required")
	ErrConsumeQueueRequired = sterrors.New("pulseflow: consume queue is required")
	ErrHandlerNameRequired  = sterrors.New("pulseflow: handler name is required")
	ErrPublisherRequired    = sterrors.New("pulseflow: publisher is required")
	ErrTopicRequired        = sterrors.New("pulseflow: topic is required")
	ErrConfigRequired       = sterrors.New("pulseflow: configuration is required")
	ErrLoggerRequired       = sterrors.New("pulseflow: logger is required")
	ErrQueueRequired        = sterrors.New("pulseflow: holding queue is required")
	ErrInserterRequired     = sterrors.New("pulseflow: row inserter is required")
	ErrUnknownDriver        = sterrors.New("pulseflow: unknown store driver")
)

// Sentinels matched by the typed errors in taxonomy.go.
var (
	ErrDecode         = sterrors.New("pulseflow: malformed input")
	ErrValidation     = sterrors.New("pulseflow: invalid envelope")
	ErrShape          = sterrors.New("pulseflow: invalid payload shape")
	ErrSinkWrite      = sterrors.New("pulseflow: sink write rejected")
	ErrLeaseExtension = sterrors.New("pulseflow: lease extension failed")
	ErrPublish        = sterrors.New("pulseflow: republish failed")
	ErrAcknowledge    = sterrors.New("pulseflow: acknowledge failed")
)

// ConfigValidationError wraps the joined errors returned by config validation.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return "pulseflow: invalid configuration: " + e.Err.Error()
}

func (e ConfigValidationError) Unwrap() error {
	return e.Err
}

// NewConfigValidationError returns nil when err is nil.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}
