package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"

	CodeOrderCreation   Code = "ORDER_CREATION_FAILED"
	CodePayment         Code = "PAYMENT_FAILED"
	CodeCheckoutContext Code = "CHECKOUT_CONTEXT_MISSING"
)

// Metadata is the HTTP-facing behaviour of a Code.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

const (
	retry     = true
	noRetry   = false
	details   = true
	noDetails = false
)

var metadataByCode = map[Code]Metadata{
	CodeValidation:    {http.StatusBadRequest, noRetry, "validation failed", details},
	CodeUnauthorized:  {http.StatusUnauthorized, noRetry, "authentication required", noDetails},
	CodeForbidden:     {http.StatusForbidden, noRetry, "access denied", noDetails},
	CodeNotFound:      {http.StatusNotFound, noRetry, "resource not found", noDetails},
	CodeConflict:      {http.StatusConflict, noRetry, "conflict detected", noDetails},
	CodeStateConflict: {http.StatusUnprocessableEntity, noRetry, "state transition disallowed", details},
	CodeIdempotency:   {http.StatusConflict, noRetry, "idempotency key reused", details},
	CodeRateLimit:     {http.StatusTooManyRequests, noRetry, "rate limit exceeded", noDetails},
	CodeInternal:      {http.StatusInternalServerError, retry, "internal server error", noDetails},
	CodeDependency:    {http.StatusServiceUnavailable, retry, "dependency unavailable", details},

	// Payment failures keep the provider's reason out of the public message.
	CodeOrderCreation:   {http.StatusUnprocessableEntity, noRetry, "order creation failed", details},
	CodePayment:         {http.StatusPaymentRequired, retry, "payment failed, please try again", details},
	CodeCheckoutContext: {http.StatusConflict, noRetry, "checkout context missing", noDetails},
}

// MetadataFor treats unknown codes as internal errors.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code      Code
	message   string
	details   any
	cause     error
	retryable *bool
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap keeps err as the cause; a nil err behaves like New.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

// WithRetryable overrides the code level retry flag, e.g. a lost
// order-creation race is a CONFLICT the client may retry.
func (e *Error) WithRetryable(retryable bool) *Error {
	if e == nil {
		return nil
	}
	e.retryable = &retryable
	return e
}

func (e *Error) Retryable() bool {
	if e == nil {
		return false
	}
	if e.retryable != nil {
		return *e.retryable
	}
	return MetadataFor(e.code).Retryable
}

// Error leaves the cause out; Dump walks the chain for logs.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}

// Retryable reports whether the failure may succeed on a later attempt.
// Errors without a code are treated as internal failures.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if typed := As(err); typed != nil {
		return typed.Retryable()
	}
	return MetadataFor(CodeInternal).Retryable
}

// As returns the outermost *Error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if !stdErrors.As(err, &typed) {
		return nil
	}
	return typed
}
