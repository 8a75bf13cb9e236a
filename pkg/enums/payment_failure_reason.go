package enums

import "slices"

// PaymentFailureReason is the coarse reason exposed when a payment fails.
type PaymentFailureReason string

const (
	PaymentFailureDeclined           PaymentFailureReason = "declined"
	PaymentFailureRejected           PaymentFailureReason = "rejected"
	PaymentFailureVerificationFailed PaymentFailureReason = "verification_failed"
	PaymentFailureUnavailable        PaymentFailureReason = "unavailable"
)

var validPaymentFailureReasons = []PaymentFailureReason{
	PaymentFailureDeclined,
	PaymentFailureRejected,
	PaymentFailureVerificationFailed,
	PaymentFailureUnavailable,
}

func (p PaymentFailureReason) String() string {
	return string(p)
}

func (p PaymentFailureReason) IsValid() bool {
	return slices.Contains(validPaymentFailureReasons, p)
}
