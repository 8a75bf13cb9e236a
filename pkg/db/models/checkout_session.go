package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/lokrise/checkout/pkg/enums"
	"github.com/lokrise/checkout/pkg/types"
)

// CartLineSnapshot is the cart line copied into a session when checkout starts.
type CartLineSnapshot struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Image     string          `json:"image,omitempty"`
	Price     decimal.Decimal `json:"price"`
	SellerID  string          `json:"sellerId,omitempty"`
	Quantity  int             `json:"quantity"`
}

// CheckoutSession stores the buyer-side checkout state machine.
type CheckoutSession struct {
	ID              uuid.UUID                                 `gorm:"column:id;type:uuid;primaryKey"`
	UserID          string                                    `gorm:"column:user_id;not null;index"`
	State           enums.CheckoutState                       `gorm:"column:state;not null;index"`
	PaymentMethod   *enums.PaymentMethod                      `gorm:"column:payment_method"`
	ShippingAddress datatypes.JSONType[types.ShippingAddress] `gorm:"column:shipping_address;not null"`
	CartLines       datatypes.JSONSlice[CartLineSnapshot]     `gorm:"column:cart_lines;not null"`
	CartFingerprint string                                    `gorm:"column:cart_fingerprint;not null"`
	Subtotal        decimal.Decimal                           `gorm:"column:subtotal;type:numeric(12,2);not null"`
	Tax             decimal.Decimal                           `gorm:"column:tax;type:numeric(12,2);not null"`
	Shipping        decimal.Decimal                           `gorm:"column:shipping;type:numeric(12,2);not null"`
	Total           decimal.Decimal                           `gorm:"column:total;type:numeric(12,2);not null"`
	FailureReason   *string                                   `gorm:"column:failure_reason"`
	SettledAt       *time.Time                                `gorm:"column:settled_at"`
	ExpiredAt       *time.Time                                `gorm:"column:expired_at"`
	CreatedAt       time.Time                                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time                                 `gorm:"column:updated_at;autoUpdateTime"`

	Orders []CheckoutSessionOrder `gorm:"foreignKey:SessionID;references:ID"`
}

func (CheckoutSession) TableName() string { return "checkout_sessions" }

func (s *CheckoutSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// CheckoutSessionOrder is one backend order latched to a checkout session, one per seller.
type CheckoutSessionOrder struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	SessionID     uuid.UUID           `gorm:"column:session_id;type:uuid;not null;index"`
	Position      int                 `gorm:"column:position;not null"`
	OrderID       string              `gorm:"column:order_id;not null;uniqueIndex"`
	OrderNumber   string              `gorm:"column:order_number"`
	SellerID      string              `gorm:"column:seller_id;not null"`
	FirstProduct  string              `gorm:"column:first_product_id;not null"`
	Amount        decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null"`
	PaymentStatus enums.PaymentStatus `gorm:"column:payment_status;not null"`
	LastError     *string             `gorm:"column:last_error"`
	PaidAt        *time.Time          `gorm:"column:paid_at"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (CheckoutSessionOrder) TableName() string { return "checkout_session_orders" }

func (o *CheckoutSessionOrder) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// IsPaid reports whether the order has been settled by a payment strategy.
func (o CheckoutSessionOrder) IsPaid() bool {
	return o.PaymentStatus == enums.PaymentStatusPaid
}
