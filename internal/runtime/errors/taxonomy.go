package errors

import (
	sterrors "errors"
	"fmt"
	"strings"
)

// DecodeError reports input that is empty, not JSON, or not a JSON object.
type DecodeError struct {
	Reason string
	Cause  error
}

func (e *DecodeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("decode: %s: %v", e.Reason, e.Cause)
	}
	return "decode: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Cause }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// ValidationError names the first required envelope field that is missing.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: missing required field %q", e.Field)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ShapeError reports a nested collection with the wrong structure.
type ShapeError struct {
	Path string
	Want string
	Got  string
}

func (e *ShapeError) Error() string {
	want := e.Want
	if want == "" {
		want = "a list"
	}
	return fmt.Sprintf("shape: %s must be %s, got %s", e.Path, want, e.Got)
}

func (e *ShapeError) Is(target error) bool { return target == ErrShape }

// SinkWriteError carries the destination and the errors it reported for one row or batch.
type SinkWriteError struct {
	Destination string
	Errors      []string
	Cause       error
}

func (e *SinkWriteError) Error() string {
	msg := "sink write to " + e.Destination + " failed"
	if len(e.Errors) > 0 {
		msg += ": " + strings.Join(e.Errors, "; ")
	}
	return msg
}

func (e *SinkWriteError) Unwrap() error { return e.Cause }

func (e *SinkWriteError) Is(target error) bool { return target == ErrSinkWrite }

// LeaseExtensionError is logged and otherwise ignored by the redrive worker.
type LeaseExtensionError struct {
	Queue string
	Count int
	Cause error
}

func (e *LeaseExtensionError) Error() string {
	return fmt.Sprintf("extend lease on %d messages from %s: %v", e.Count, e.Queue, e.Cause)
}

func (e *LeaseExtensionError) Unwrap() error { return e.Cause }

func (e *LeaseExtensionError) Is(target error) bool { return target == ErrLeaseExtension }

// PublishError leaves the message unacknowledged for a later attempt.
type PublishError struct {
	MessageID string
	Topic     string
	Cause     error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("republish %s to %s: %v", e.MessageID, e.Topic, e.Cause)
}

func (e *PublishError) Unwrap() error { return e.Cause }

func (e *PublishError) Is(target error) bool { return target == ErrPublish }

// AcknowledgeError means the republish succeeded but the original is still held.
type AcknowledgeError struct {
	MessageID string
	Cause     error
}

func (e *AcknowledgeError) Error() string {
	return fmt.Sprintf("acknowledge %s: %v", e.MessageID, e.Cause)
}

func (e *AcknowledgeError) Unwrap() error { return e.Cause }

func (e *AcknowledgeError) Is(target error) bool { return target == ErrAcknowledge }

// TypeName returns the taxonomy name of err, or its dynamic Go type when it is not
// one of ours.
func TypeName(err error) string {
	if err == nil {
		return ""
	}
	var (
		decodeErr     *DecodeError
		validationErr *ValidationError
		shapeErr      *ShapeError
		sinkErr       *SinkWriteError
		leaseErr      *LeaseExtensionError
		publishErr    *PublishError
		ackErr        *AcknowledgeError
	)
	switch {
	case sterrors.As(err, &decodeErr):
		return "DecodeError"
	case sterrors.As(err, &validationErr):
		return "ValidationError"
	case sterrors.As(err, &shapeErr):
		return "ShapeError"
	case sterrors.As(err, &sinkErr):
		return "SinkWriteError"
	case sterrors.As(err, &leaseErr):
		return "LeaseExtensionError"
	case sterrors.As(err, &publishErr):
		return "PublishError"
	case sterrors.As(err, &ackErr):
		return "AcknowledgeError"
	}
	name := fmt.Sprintf("%T", err)
	name = strings.TrimPrefix(name, "*")
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// IsStageFailure reports whether err is one that is captured as a dead-letter record
// rather than retried in place.
func IsStageFailure(err error) bool {
	return sterrors.Is(err, ErrDecode) ||
		sterrors.Is(err, ErrValidation) ||
		sterrors.Is(err, ErrShape)
}

// IsPermanent reports whether err, or an error it wraps, declares itself
// permanent through a Permanent() bool method. Permanent failures are not
// retried in place.
func IsPermanent(err error) bool {
	var p interface{ Permanent() bool }
	return sterrors.As(err, &p) && p.Permanent()
}
