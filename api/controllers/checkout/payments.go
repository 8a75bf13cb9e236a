package checkout

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/lokrise/checkout/api/responses"
	"github.com/lokrise/checkout/api/validators"
	checkoutsvc "github.com/lokrise/checkout/internal/checkout"
	"github.com/lokrise/checkout/internal/payments"
	pkgerrors "github.com/lokrise/checkout/pkg/errors"
	"github.com/lokrise/checkout/pkg/logger"
)

type upiAmountRequest struct {
	OrderID string          `json:"orderId" validate:"required,max=128"`
	Amount  decimal.Decimal `json:"amount"`
}

type upiVerifyRequest struct {
	OrderID string `json:"orderId" validate:"required,max=128"`
	UPIID   string `json:"upiId" validate:"required,max=128"`
}

// PayCard charges the unpaid orders with the submitted card. The card never leaves
// this handler except as a parsed value passed to the processor.
func PayCard(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
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
		var card payments.Card
		if err := validators.DecodeJSONBody(r, &card); err != nil {
			// The decoder error can echo the body; drop it so card data stays out of logs.
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid card details"))
			return
		}
		session, err := svc.PayCard(r.Context(), userID, sessionID, card)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, session)
	}
}

func PayCOD(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
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
		session, err := svc.PayCOD(r.Context(), userID, sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, session)
	}
}

// UPIInitiate returns the QR payload of every unpaid order.
func UPIInitiate(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
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
		upi, err := svc.InitiateUPI(r.Context(), userID, sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, upi)
	}
}

// UPIEnterAmount checks the amount the buyer typed against the locked order total.
// A mismatch keeps the QR and transaction ref and reports the error on the session.
func UPIEnterAmount(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
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
		var payload upiAmountRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		session, err := svc.EnterUPIAmount(r.Context(), userID, sessionID, payload.OrderID, payload.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, session)
	}
}

func UPIVerify(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
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
		var payload upiVerifyRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		session, err := svc.VerifyUPI(r.Context(), userID, sessionID, payload.OrderID, payload.UPIID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, session)
	}
}
