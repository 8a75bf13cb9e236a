package checkout

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lokrise/checkout/internal/cart"
	"github.com/lokrise/checkout/internal/payments"
	"github.com/lokrise/checkout/pkg/db/models"
	"github.com/lokrise/checkout/pkg/enums"
	"github.com/lokrise/checkout/pkg/outbox/payloads"
	"github.com/lokrise/checkout/pkg/types"
)

// Session is the checkout session as returned to the buyer.
type Session struct {
	ID              uuid.UUID             `json:"id"`
	State           enums.CheckoutState   `json:"state"`
	PaymentMethod   *enums.PaymentMethod  `json:"paymentMethod,omitempty"`
	ShippingAddress types.ShippingAddress `json:"shippingAddress"`
	Lines           []cart.Line           `json:"lines"`
	Totals          cart.Totals           `json:"totals"`
	Orders          []Order               `json:"orders"`
	FailureReason   *string               `json:"failureReason,omitempty"`
	SettledAt       *time.Time            `json:"settledAt,omitempty"`
	CreatedAt       time.Time             `json:"createdAt"`
}

// Order is one backend order latched to a session.
type Order struct {
	OrderID       string              `json:"orderId"`
	OrderNumber   string              `json:"orderNumber,omitempty"`
	SellerID      string              `json:"sellerId"`
	Amount        decimal.Decimal     `json:"amount"`
	PaymentStatus enums.PaymentStatus `json:"paymentStatus"`
	LastError     *string             `json:"lastError,omitempty"`
}

// Confirmation is the data the storefront shows once a session is settled.
type Confirmation struct {
	SessionID     uuid.UUID           `json:"sessionId"`
	Orders        []ConfirmedOrder    `json:"orders"`
	PaymentMethod enums.PaymentMethod `json:"paymentMethod"`
	Total         decimal.Decimal     `json:"total"`
	SettledAt     time.Time           `json:"settledAt"`
}

type ConfirmedOrder struct {
	OrderID     string          `json:"orderId"`
	OrderNumber string          `json:"orderNumber,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
}

// UPIPayment is the QR state of every order of a UPI checkout.
type UPIPayment struct {
	Session  *Session                   `json:"session"`
	Payments []*payments.PaymentSession `json:"payments"`
}

func toSession(m *models.CheckoutSession) *Session {
	orders := make([]Order, 0, len(m.Orders))
	for _, o := range m.Orders {
		orders = append(orders, Order{
			OrderID:       o.OrderID,
			OrderNumber:   o.OrderNumber,
			SellerID:      o.SellerID,
			Amount:        o.Amount,
			PaymentStatus: o.PaymentStatus,
			LastError:     o.LastError,
		})
	}
	return &Session{
		ID:              m.ID,
		State:           m.State,
		PaymentMethod:   m.PaymentMethod,
		ShippingAddress: m.ShippingAddress.Data(),
		Lines:           sessionLines(m),
		Totals: cart.Totals{
			Subtotal: m.Subtotal,
			Tax:      m.Tax,
			Shipping: m.Shipping,
			Total:    m.Total,
		},
		Orders:        orders,
		FailureReason: m.FailureReason,
		SettledAt:     m.SettledAt,
		CreatedAt:     m.CreatedAt,
	}
}

func sessionLines(m *models.CheckoutSession) []cart.Line {
	lines := make([]cart.Line, 0, len(m.CartLines))
	for _, snap := range m.CartLines {
		lines = append(lines, cart.FromSnapshot(snap))
	}
	return lines
}

func unpaidOrders(m *models.CheckoutSession) []payments.OrderDue {
	due := []payments.OrderDue{}
	for _, o := range m.Orders {
		if o.IsPaid() {
			continue
		}
		due = append(due, payments.OrderDue{
			OrderID:        o.OrderID,
			OrderNumber:    o.OrderNumber,
			SellerID:       o.SellerID,
			FirstProductID: o.FirstProduct,
			Amount:         o.Amount,
		})
	}
	return due
}

func orderRefs(m *models.CheckoutSession) []payloads.OrderRef {
	refs := make([]payloads.OrderRef, 0, len(m.Orders))
	for _, o := range m.Orders {
		refs = append(refs, payloads.OrderRef{
			OrderID:     o.OrderID,
			OrderNumber: o.OrderNumber,
			SellerID:    o.SellerID,
			Amount:      o.Amount,
		})
	}
	return refs
}

func findOrder(m *models.CheckoutSession, orderID string) *models.CheckoutSessionOrder {
	for idx := range m.Orders {
		if m.Orders[idx].OrderID == orderID {
			return &m.Orders[idx]
		}
	}
	return nil
}
