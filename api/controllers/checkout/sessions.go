package checkout

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/lokrise/checkout/api/middleware"
	"github.com/lokrise/checkout/api/responses"
	"github.com/lokrise/checkout/api/validators"
	checkoutsvc "github.com/lokrise/checkout/internal/checkout"
	"github.com/lokrise/checkout/pkg/enums"
	pkgerrors "github.com/lokrise/checkout/pkg/errors"
	"github.com/lokrise/checkout/pkg/logger"
	"github.com/lokrise/checkout/pkg/types"
)

type startRequest struct {
	ShippingAddress types.ShippingAddress `json:"shippingAddress"`
}

type methodRequest struct {
	Method enums.PaymentMethod `json:"method" validate:"required,oneof=card upi cod barter"`
}

// SessionStart snapshots the caller's cart into a new checkout session.
func SessionStart(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable())
			return
		}
		var payload startRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		session, err := svc.Start(r.Context(), middleware.UserIDFromContext(r.Context()), payload.ShippingAddress)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, session)
	}
}

func SessionFetch(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable())
			return
		}
		userID, sessionID, err := sessionScope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		session, err := svc.Get(r.Context(), userID, sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, session)
	}
}

func SessionChooseMethod(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable())
			return
		}
		userID, sessionID, err := sessionScope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload methodRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		session, err := svc.ChooseMethod(r.Context(), userID, sessionID, payload.Method)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, session)
	}
}

// SessionCreateOrders creates the backend orders of the session. Repeated calls
// return the already latched orders.
func SessionCreateOrders(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable())
			return
		}
		userID, sessionID, err := sessionScope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		session, err := svc.CreateOrders(r.Context(), userID, sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, session)
	}
}

func SessionConfirmation(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable())
			return
		}
		userID, sessionID, err := sessionScope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		confirmation, err := svc.Confirmation(r.Context(), userID, sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, confirmation)
	}
}

func sessionScope(r *http.Request) (string, uuid.UUID, error) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		return "", uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	sessionID, err := validators.PathUUID(r, "sessionId")
	if err != nil {
		return "", uuid.Nil, err
	}
	return userID, sessionID, nil
}

func unavailable() error {
	return pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable")
}
