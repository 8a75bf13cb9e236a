package marketplace

import (
	"errors"
	"fmt"
	"net/http"

	pkgerrors "github.com/lokrise/checkout/pkg/errors"
)

// APIError is a non-2xx answer from the marketplace backend.
type APIError struct {
	Operation string
	Status    int
	Message   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("marketplace %s: status %d: %s", e.Operation, e.Status, e.Message)
}

// IsClientError reports whether the backend rejected the request itself (4xx).
func (e *APIError) IsClientError() bool {
	return e.Status >= 400 && e.Status < 500
}

func (e *APIError) publicMessage() string {
	if e.Message != "" && e.IsClientError() {
		return e.Message
	}
	return fmt.Sprintf("marketplace %s returned %d", e.Operation, e.Status)
}

// AsAPIError extracts the backend rejection from err, if any.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsUnavailable reports whether err means the backend could not be reached or failed internally.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if apiErr, ok := AsAPIError(err); ok {
		return !apiErr.IsClientError()
	}
	return pkgerrors.IsCode(err, pkgerrors.CodeDependency)
}

func codeForStatus(status int) pkgerrors.Code {
	switch {
	case status == http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case status == http.StatusUnauthorized:
		return pkgerrors.CodeUnauthorized
	case status == http.StatusForbidden:
		return pkgerrors.CodeForbidden
	case status == http.StatusConflict:
		return pkgerrors.CodeConflict
	case status == http.StatusTooManyRequests:
		return pkgerrors.CodeRateLimit
	case status >= http.StatusInternalServerError:
		return pkgerrors.CodeDependency
	default:
		return pkgerrors.CodeValidation
	}
}
