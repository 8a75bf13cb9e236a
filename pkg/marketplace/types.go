package marketplace

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lokrise/checkout/pkg/enums"
	"github.com/lokrise/checkout/pkg/types"
)

// Ref is a reference the backend either sends as a bare id or as a populated document.
type Ref struct {
	ID   string `json:"_id"`
	Name string `json:"name,omitempty"`
}

// UnmarshalJSON accepts "id", {"_id": "id", ...} and null.
func (r *Ref) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] == '"' {
		return json.Unmarshal(trimmed, &r.ID)
	}
	type alias Ref
	var doc alias
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return err
	}
	*r = Ref(doc)
	return nil
}

// Product is the catalog document returned by GET /products/:id.
type Product struct {
	ID     string          `json:"_id"`
	Name   string          `json:"name"`
	Price  decimal.Decimal `json:"price"`
	Images []string        `json:"images"`
	Stock  *int            `json:"stock,omitempty"`
	Seller Ref             `json:"seller"`
}

// PrimaryImage returns the first product image, if any.
func (p Product) PrimaryImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

// InStock reports whether qty units can be ordered. Products without stock tracking are always in stock.
func (p Product) InStock(qty int) bool {
	return p.Stock == nil || *p.Stock >= qty
}

type productEnvelope struct {
	Product Product `json:"product"`
}

// OrderItem is one product line of a backend order.
type OrderItem struct {
	Product  Ref             `json:"product"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Name     string          `json:"name"`
	Image    string          `json:"image,omitempty"`
}

// StatusEntry is one element of an order's append-only status history.
type StatusEntry struct {
	Status enums.OrderStatus `json:"status"`
	Date   time.Time         `json:"date"`
	Note   string            `json:"note,omitempty"`
}

// Order is the marketplace order record.
type Order struct {
	ID              string                `json:"_id"`
	OrderNumber     string                `json:"orderNumber"`
	Buyer           Ref                   `json:"buyer"`
	Seller          Ref                   `json:"seller"`
	Products        []OrderItem           `json:"products"`
	SubTotal        decimal.Decimal       `json:"subTotal"`
	TotalAmount     decimal.Decimal       `json:"totalAmount"`
	ShippingAddress types.ShippingAddress `json:"shippingAddress"`
	PaymentMethod   enums.PaymentMethod   `json:"paymentMethod"`
	Status          enums.OrderStatus     `json:"status"`
	StatusHistory   []StatusEntry         `json:"statusHistory"`
	CreatedAt       time.Time             `json:"createdAt"`
}

type orderEnvelope struct {
	Order Order `json:"order"`
}

// CreateOrderItem is one line of a create-order request.
type CreateOrderItem struct {
	Product  string  `json:"product"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
	Name     string  `json:"name"`
	Image    string  `json:"image,omitempty"`
}

// CreateOrderRequest is the body of POST /orders for a single seller.
type CreateOrderRequest struct {
	Seller          string                `json:"seller"`
	Products        []CreateOrderItem     `json:"products"`
	ShippingAddress types.ShippingAddress `json:"shippingAddress"`
	SubTotal        float64               `json:"subTotal"`
	TotalAmount     float64               `json:"totalAmount"`
	PaymentMethod   enums.PaymentMethod   `json:"paymentMethod"`
	Status          enums.OrderStatus     `json:"status"`
}

// CreatedOrder is the acknowledgement returned for each created order.
type CreatedOrder struct {
	ID          string          `json:"_id"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Seller      Ref             `json:"seller"`
	OrderNumber string          `json:"orderNumber"`
}

type createOrdersResponse struct {
	Orders []CreatedOrder `json:"orders"`
}

// UpdateStatusRequest is the body of POST /orders/:id/update-status.
type UpdateStatusRequest struct {
	Status      enums.OrderStatus `json:"status"`
	Description string            `json:"description,omitempty"`
}

// SellerOrdersQuery carries the listing filters delegated to GET /orders/seller-orders.
type SellerOrdersQuery struct {
	Status    enums.OrderStatus
	Search    string
	StartDate string
	EndDate   string
	Sort      enums.SellerOrderSort
	Page      int
	Limit     int
}

// SellerOrdersPage is one page of the seller order listing.
type SellerOrdersPage struct {
	Orders      []Order `json:"orders"`
	TotalPages  int     `json:"totalPages"`
	TotalOrders int     `json:"totalOrders"`
}

// SellerStats is the backend's own aggregate over all seller orders.
type SellerStats struct {
	Pending      int             `json:"pending"`
	Confirmed    int             `json:"confirmed"`
	Shipped      int             `json:"shipped"`
	Delivered    int             `json:"delivered"`
	Cancelled    int             `json:"cancelled"`
	Total        int             `json:"total"`
	TotalRevenue decimal.Decimal `json:"totalRevenue"`
}

// UPIInitiateRequest asks the backend for a UPI QR code.
type UPIInitiateRequest struct {
	SellerID    string  `json:"sellerId"`
	Amount      float64 `json:"amount"`
	OrderID     string  `json:"orderId"`
	Description string  `json:"description"`
}

// UPIInitiateResponse carries the QR payload and reference of a UPI payment.
type UPIInitiateResponse struct {
	Success        bool   `json:"success"`
	QRCode         string `json:"qrCode"`
	TransactionRef string `json:"transactionRef"`
	Message        string `json:"message,omitempty"`
}

// UPIVerifyRequest correlates a transaction reference with the payer's UPI id.
type UPIVerifyRequest struct {
	TransactionRef string `json:"transactionRef"`
	OrderID        string `json:"orderId"`
	UPIID          string `json:"upiId"`
}

// CardPaymentRequest is the body of POST /payment/card/process.
type CardPaymentRequest struct {
	OrderID        string  `json:"orderId"`
	CardNumber     string  `json:"cardNumber"`
	CardHolderName string  `json:"cardHolderName"`
	ExpiryMonth    string  `json:"expiryMonth"`
	ExpiryYear     string  `json:"expiryYear"`
	CVV            string  `json:"cvv"`
	Amount         float64 `json:"amount"`
}

// CODRequest confirms cash on delivery for an order.
type CODRequest struct {
	OrderID string `json:"orderId"`
}

// PaymentResult is the common response of the payment endpoints.
type PaymentResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Order   *Order `json:"order,omitempty"`
}

// BarterPhoto is one photo forwarded in a barter submission.
type BarterPhoto struct {
	FileName    string
	ContentType string
	Data        []byte
}

// BarterSubmission is the multipart body of POST /payment/barter.
type BarterSubmission struct {
	OrderID        string
	Title          string
	Category       enums.BarterCategory
	Description    string
	EstimatedValue decimal.Decimal
	TopUpAmount    decimal.Decimal
	ExchangeMethod string
	ProposedDate   string
	Photos         []BarterPhoto
}

// BarterProposal is the backend record created by a barter submission.
type BarterProposal struct {
	ID     string `json:"_id"`
	Status string `json:"status,omitempty"`
}

// BarterResult is the response of POST /payment/barter.
type BarterResult struct {
	Success        bool            `json:"success"`
	Message        string          `json:"message,omitempty"`
	Order          *Order          `json:"order,omitempty"`
	BarterProposal *BarterProposal `json:"barterProposal,omitempty"`
}

// CartItem is one line of the authenticated cart stored by the backend.
type CartItem struct {
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
}

type cartEnvelope struct {
	Cart struct {
		Items []CartItem `json:"items"`
	} `json:"cart"`
}

type cartMutation struct {
	ProductID string `json:"productId,omitempty"`
	Quantity  int    `json:"quantity"`
}

type wishlistEnvelope struct {
	Wishlist []Product `json:"wishlist"`
}

type wishlistMutation struct {
	ProductID string `json:"productId"`
}

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}
