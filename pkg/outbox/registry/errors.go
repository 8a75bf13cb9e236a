package registry

import "github.com/lokrise/checkout/pkg/enums"

// NonRetryableError marks a row that will never publish; the publisher dead-letters it
// with Reason.
type NonRetryableError struct {
	Err    error
	Reason enums.OutboxDLQErrorReason
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err, Reason: enums.OutboxDLQReasonNonRetryable}
}

func unknownEvent(err error) NonRetryableError {
	return NonRetryableError{Err: err, Reason: enums.OutboxDLQReasonUnknownEvent}
}
