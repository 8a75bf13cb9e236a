package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	pkgerrors "github.com/lokrise/checkout/pkg/errors"
	"github.com/lokrise/checkout/pkg/logger"
	"github.com/lokrise/checkout/pkg/types"
)

// detailLogKeys are copied from error details into the log line when present.
var detailLogKeys = []string{"reason", "order_id", "session_id", "step"}

// clientFacing codes carry a message written for the caller. Every other code,
// payment failures included, answers with the generic public message.
var clientFacing = map[pkgerrors.Code]bool{
	pkgerrors.CodeValidation:      true,
	pkgerrors.CodeForbidden:       true,
	pkgerrors.CodeUnauthorized:    true,
	pkgerrors.CodeNotFound:        true,
	pkgerrors.CodeConflict:        true,
	pkgerrors.CodeStateConflict:   true,
	pkgerrors.CodeIdempotency:     true,
	pkgerrors.CodeRateLimit:       true,
	pkgerrors.CodeOrderCreation:   true,
	pkgerrors.CodeCheckoutContext: true,
}

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, types.SuccessEnvelope{Data: data})
}

// WriteSuccessMeta writes data with an accompanying meta block, e.g. pagination.
func WriteSuccessMeta(w http.ResponseWriter, data, meta any) {
	writeJSON(w, http.StatusOK, types.SuccessEnvelope{Data: data, Meta: meta})
}

// WriteError maps err onto its code's status and envelope. Untyped errors become
// INTERNAL_ERROR so nothing internal reaches the client.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	meta := pkgerrors.MetadataFor(typed.Code())

	apiErr := types.APIError{
		Code:      string(typed.Code()),
		Message:   meta.PublicMessage,
		Retryable: typed.Retryable(),
	}
	if clientFacing[typed.Code()] && typed.Message() != "" {
		apiErr.Message = typed.Message()
	}
	if meta.DetailsAllowed {
		apiErr.Details = typed.Details()
	}

	if logg != nil {
		logRejection(ctx, logg, err, typed, meta.HTTPStatus)
	}
	writeJSON(w, meta.HTTPStatus, types.ErrorEnvelope{Error: apiErr})
}

func logRejection(ctx context.Context, logg *logger.Logger, err error, typed *pkgerrors.Error, status int) {
	fields := pkgerrors.Dump(err).Fields()
	if details, ok := typed.Details().(map[string]any); ok {
		for _, key := range detailLogKeys {
			if v, ok := details[key]; ok {
				fields[key] = v
			}
		}
	}
	ctx = logg.WithFields(ctx, fields)
	if status >= http.StatusInternalServerError {
		logg.Error(ctx, "request.error", err)
		return
	}
	logg.Warn(ctx, "request.rejected")
}

// writeJSON ignores encode failures; the status line is already sent by then.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
