package payloads

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/lokrise/checkout/pkg/enums"
)

// OrderRef summarises one marketplace order inside a checkout event.
type OrderRef struct {
	OrderID     string          `json:"order_id"`
	OrderNumber string          `json:"order_number,omitempty"`
	SellerID    string          `json:"seller_id"`
	Amount      decimal.Decimal `json:"amount"`
}

// CheckoutOrdersCreatedEvent is emitted once the per-seller orders of a session exist.
type CheckoutOrdersCreatedEvent struct {
	SessionID     string              `json:"session_id"`
	UserID        string              `json:"user_id"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	Orders        []OrderRef          `json:"orders"`
	Total         decimal.Decimal     `json:"total"`
}

// CheckoutSettledEvent is emitted when every order of a session is paid.
type CheckoutSettledEvent struct {
	SessionID     string              `json:"session_id"`
	UserID        string              `json:"user_id"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	Orders        []OrderRef          `json:"orders"`
	Total         decimal.Decimal     `json:"total"`
	SettledAt     time.Time           `json:"settled_at"`
}

// CheckoutPaymentFailedEvent is emitted when a payment attempt leaves the session failed.
type CheckoutPaymentFailedEvent struct {
	SessionID     string                     `json:"session_id"`
	UserID        string                     `json:"user_id"`
	PaymentMethod enums.PaymentMethod        `json:"payment_method"`
	Reason        enums.PaymentFailureReason `json:"reason"`
	UnpaidOrders  []string                   `json:"unpaid_order_ids"`
}

// CheckoutExpiredEvent is emitted by the abandoned-checkout job.
type CheckoutExpiredEvent struct {
	SessionID       string    `json:"session_id"`
	UserID          string    `json:"user_id"`
	CancelledOrders []string  `json:"cancelled_order_ids"`
	FailedCancels   []string  `json:"failed_cancel_order_ids,omitempty"`
	ExpiredAt       time.Time `json:"expired_at"`
}

// OrderStatusChangedEvent is emitted when a seller transition is applied by the backend.
type OrderStatusChangedEvent struct {
	OrderID    string            `json:"order_id"`
	SellerID   string            `json:"seller_id"`
	MutationID string            `json:"mutation_id"`
	From       enums.OrderStatus `json:"from"`
	To         enums.OrderStatus `json:"to"`
	Note       string            `json:"note,omitempty"`
}
