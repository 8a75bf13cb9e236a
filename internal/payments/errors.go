package payments

import (
	"github.com/shopspring/decimal"

	"github.com/lokrise/checkout/pkg/enums"
	pkgerrors "github.com/lokrise/checkout/pkg/errors"
	"github.com/lokrise/checkout/pkg/marketplace"
)

// OrderDue is one unpaid order a payment strategy settles.
type OrderDue struct {
	OrderID        string
	OrderNumber    string
	SellerID       string
	FirstProductID string
	Amount         decimal.Decimal
}

// Failure builds the PAYMENT_FAILED error. The public message stays generic; the typed
// reason travels in the details.
func Failure(reason enums.PaymentFailureReason, cause error) *pkgerrors.Error {
	details := map[string]any{"reason": reason}
	if cause == nil {
		return pkgerrors.New(pkgerrors.CodePayment, "payment failed").WithDetails(details)
	}
	return pkgerrors.Wrap(pkgerrors.CodePayment, cause, "payment failed").WithDetails(details)
}

// FailureReason extracts the typed reason of a payment failure, if any.
func FailureReason(err error) (enums.PaymentFailureReason, bool) {
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodePayment {
		return "", false
	}
	details, ok := typed.Details().(map[string]any)
	if !ok {
		return "", false
	}
	reason, ok := details["reason"].(enums.PaymentFailureReason)
	return reason, ok
}

// Classify maps a backend error onto a payment failure. Transport and 5xx problems are
// "unavailable"; a 4xx means the backend refused the payment.
func Classify(err error, refused enums.PaymentFailureReason) *pkgerrors.Error {
	if marketplace.IsUnavailable(err) {
		return Failure(enums.PaymentFailureUnavailable, err)
	}
	if apiErr, ok := marketplace.AsAPIError(err); ok && apiErr.IsClientError() {
		return Failure(refused, err)
	}
	if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeValidation {
		return typed
	}
	return Failure(enums.PaymentFailureUnavailable, err)
}

func amountOf(due OrderDue) float64 {
	f, _ := due.Amount.Round(2).Float64()
	return f
}
