package channel

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies a publish or generation failure for retry purposes.
type ErrorKind string

const (
	// ErrorKindTransient covers timeouts, platform 5xx and rate limits.
	// Eligible for bounded automatic retry.
	ErrorKindTransient ErrorKind = "transient"
	// ErrorKindPermanent covers platform validation and content policy
	// rejections. Never auto-retried.
	ErrorKindPermanent ErrorKind = "permanent"
	// ErrorKindAuthRequired means no usable credential exists. The OAuth
	// flow must be re-run before another attempt makes sense.
	ErrorKindAuthRequired ErrorKind = "auth_required"
)

// PublishError tags an underlying platform error with its retry class.
type PublishError struct {
	Kind ErrorKind
	Err  error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

func Transient(err error) *PublishError {
	return &PublishError{Kind: ErrorKindTransient, Err: err}
}

func Permanent(err error) *PublishError {
	return &PublishError{Kind: ErrorKindPermanent, Err: err}
}

func AuthRequired(err error) *PublishError {
	return &PublishError{Kind: ErrorKindAuthRequired, Err: err}
}

// KindOf extracts the retry class from err. untagged network and deadline
// errors count as transient; anything else untagged is permanent so that an
// unclassified bug never loops the retry machinery.
func KindOf(err error) ErrorKind {
	var pe *PublishError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorKindTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorKindTransient
	}
	return ErrorKindPermanent
}

// ValidationError marks a draft that violates its channel's rules.
type ValidationError struct {
	reason error
}

func (e ValidationError) Error() string {
	return e.reason.Error()
}

func (e ValidationError) Unwrap() error {
	return e.reason
}

func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}
