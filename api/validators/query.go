package validators

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/lokrise/checkout/pkg/errors"
	"github.com/lokrise/checkout/pkg/pagination"
)

// maxPage bounds how deep a listing may be paged.
const maxPage = 100000

// QueryPage reads the page and limit of a listing. Missing values take the pagination
// defaults; values outside 1..maxPage and 1..pagination.MaxLimit are rejected.
func QueryPage(r *http.Request) (pagination.Params, error) {
	page, err := queryInt(r, "page", 1, 1, maxPage)
	if err != nil {
		return pagination.Params{}, err
	}
	limit, err := queryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{Page: page, Limit: limit}.Normalize(), nil
}

func QueryText(r *http.Request, key string, field TextField) string {
	return field.Clean(r.URL.Query().Get(key))
}

// QueryDate returns a date filter as sent. It must be a calendar date or an RFC 3339
// timestamp; an empty value means no bound.
func QueryDate(r *http.Request, key string) (string, error) {
	raw := DateText.Clean(r.URL.Query().Get(key))
	if raw == "" {
		return "", nil
	}
	if _, err := time.Parse(time.DateOnly, raw); err == nil {
		return raw, nil
	}
	if _, err := time.Parse(time.RFC3339, raw); err == nil {
		return raw, nil
	}
	return "", pkgerrors.New(pkgerrors.CodeValidation, "query parameter must be a date").
		WithDetails(map[string]any{"field": key, "format": time.DateOnly})
}

func queryInt(r *http.Request, key string, defaultVal, min, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return defaultVal, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter must be numeric").WithDetails(map[string]any{"field": key})
	}
	if value < min || value > max {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter out of range").WithDetails(map[string]any{"field": key, "min": min, "max": max})
	}
	return value, nil
}
