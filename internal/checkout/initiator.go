package checkout

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/lokrise/checkout/internal/cart"
	"github.com/lokrise/checkout/pkg/enums"
	pkgerrors "github.com/lokrise/checkout/pkg/errors"
	"github.com/lokrise/checkout/pkg/logger"
	"github.com/lokrise/checkout/pkg/marketplace"
	"github.com/lokrise/checkout/pkg/types"
)

const (
	defaultResolveConcurrency = 4
	rollbackNote              = "checkout order creation failed"
)

// OrderBackend is the part of the marketplace the initiator talks to.
type OrderBackend interface {
	GetProduct(ctx context.Context, productID string) (*marketplace.Product, error)
	CreateOrder(ctx context.Context, req marketplace.CreateOrderRequest) ([]marketplace.CreatedOrder, error)
	UpdateOrderStatus(ctx context.Context, orderID string, req marketplace.UpdateStatusRequest) (*marketplace.Order, error)
}

// CreatedOrder is one backend order created for a single seller.
type CreatedOrder struct {
	OrderID        string
	OrderNumber    string
	SellerID       string
	FirstProductID string
	Amount         decimal.Decimal
}

// SellerGroup is the slice of a cart that belongs to one seller.
type SellerGroup struct {
	SellerID string
	Lines    []cart.Line
	Totals   cart.Totals
}

// Initiator turns cart lines into one pending backend order per seller.
type Initiator struct {
	backend     OrderBackend
	concurrency int
	logg        *logger.Logger
}

func NewInitiator(backend OrderBackend, concurrency int, logg *logger.Logger) (*Initiator, error) {
	if backend == nil {
		return nil, fmt.Errorf("order backend required")
	}
	if concurrency <= 0 {
		concurrency = defaultResolveConcurrency
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Initiator{backend: backend, concurrency: concurrency, logg: logg}, nil
}

// CreateOrders groups lines by their resolved seller and creates one order per seller,
// in first-appearance order. Each order carries only its seller's lines and totals.
// When a later seller's order is rejected, the orders already created by this call are
// cancelled before the error is returned. The cart itself is left untouched.
func (i *Initiator) CreateOrders(ctx context.Context, lines []cart.Line, address types.ShippingAddress, method enums.PaymentMethod) ([]CreatedOrder, error) {
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeOrderCreation, "cart is empty")
	}
	if !method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}

	sellers, err := i.resolveSellers(ctx, lines)
	if err != nil {
		return nil, err
	}
	groups := GroupBySeller(lines, sellers)

	created := make([]CreatedOrder, 0, len(groups))
	for _, group := range groups {
		order, err := i.createOne(ctx, group, address, method)
		if err != nil {
			i.rollback(ctx, created)
			return nil, err
		}
		created = append(created, order)
	}
	return created, nil
}

// resolveSellers looks every distinct product up once, a few at a time.
func (i *Initiator) resolveSellers(ctx context.Context, lines []cart.Line) (map[string]string, error) {
	var (
		mu      sync.Mutex
		sellers = make(map[string]string, len(lines))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.concurrency)

	seen := map[string]struct{}{}
	for _, line := range lines {
		productID := line.ProductID
		if _, ok := seen[productID]; ok {
			continue
		}
		seen[productID] = struct{}{}
		g.Go(func() error {
			product, err := i.backend.GetProduct(gctx, productID)
			if err != nil {
				if marketplace.IsUnavailable(err) {
					return err
				}
				return pkgerrors.Wrap(pkgerrors.CodeOrderCreation, err, "product no longer available").
					WithDetails(map[string]any{"productId": productID})
			}
			sellerID := strings.TrimSpace(product.Seller.ID)
			if sellerID == "" {
				return pkgerrors.New(pkgerrors.CodeOrderCreation, "product has no seller").
					WithDetails(map[string]any{"productId": productID})
			}
			mu.Lock()
			sellers[productID] = sellerID
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sellers, nil
}

// GroupBySeller splits lines per seller, keeping the order in which sellers first appear.
func GroupBySeller(lines []cart.Line, sellers map[string]string) []SellerGroup {
	index := map[string]int{}
	groups := []SellerGroup{}
	for _, line := range lines {
		sellerID := sellers[line.ProductID]
		if sellerID == "" {
			sellerID = line.SellerID
		}
		pos, ok := index[sellerID]
		if !ok {
			pos = len(groups)
			index[sellerID] = pos
			groups = append(groups, SellerGroup{SellerID: sellerID})
		}
		groups[pos].Lines = append(groups[pos].Lines, line)
	}
	for idx := range groups {
		groups[idx].Totals = cart.ComputeTotals(groups[idx].Lines)
	}
	return groups
}

func (i *Initiator) createOne(ctx context.Context, group SellerGroup, address types.ShippingAddress, method enums.PaymentMethod) (CreatedOrder, error) {
	items := make([]marketplace.CreateOrderItem, 0, len(group.Lines))
	for _, line := range group.Lines {
		price, _ := line.Price.Float64()
		items = append(items, marketplace.CreateOrderItem{
			Product:  line.ProductID,
			Quantity: line.Quantity,
			Price:    price,
			Name:     line.Name,
			Image:    line.Image,
		})
	}
	subTotal, _ := group.Totals.Subtotal.Float64()
	total, _ := group.Totals.Total.Float64()

	orders, err := i.backend.CreateOrder(ctx, marketplace.CreateOrderRequest{
		Seller:          group.SellerID,
		Products:        items,
		ShippingAddress: address,
		SubTotal:        subTotal,
		TotalAmount:     total,
		PaymentMethod:   method,
		Status:          enums.OrderStatusPending,
	})
	if err != nil {
		if marketplace.IsUnavailable(err) {
			return CreatedOrder{}, err
		}
		return CreatedOrder{}, pkgerrors.Wrap(pkgerrors.CodeOrderCreation, err, "marketplace rejected the order").
			WithDetails(map[string]any{"sellerId": group.SellerID})
	}

	ack := orders[0]
	amount := ack.TotalAmount
	if amount.IsZero() {
		amount = group.Totals.Total
	}
	i.logg.Info(i.logg.WithFields(ctx, map[string]any{
		"order_id":  ack.ID,
		"seller_id": group.SellerID,
		"lines":     len(group.Lines),
	}), "checkout.order.created")

	return CreatedOrder{
		OrderID:        ack.ID,
		OrderNumber:    ack.OrderNumber,
		SellerID:       group.SellerID,
		FirstProductID: group.Lines[0].ProductID,
		Amount:         amount,
	}, nil
}

// rollback cancels orders created earlier in a failed call. Failures are only logged.
func (i *Initiator) rollback(ctx context.Context, created []CreatedOrder) {
	for _, order := range created {
		i.cancel(ctx, order.OrderID, rollbackNote)
	}
}

// cancel moves a pending order to cancelled, logging instead of failing.
func (i *Initiator) cancel(ctx context.Context, orderID, note string) bool {
	_, err := i.backend.UpdateOrderStatus(ctx, orderID, marketplace.UpdateStatusRequest{
		Status:      enums.OrderStatusCancelled,
		Description: note,
	})
	if err != nil {
		i.logg.Error(i.logg.WithField(ctx, "order_id", orderID), "checkout.order.cancel_failed", err)
		return false
	}
	return true
}

// CancelOrder cancels a pending order with a note and reports whether the backend accepted it.
func (i *Initiator) CancelOrder(ctx context.Context, orderID, note string) bool {
	return i.cancel(ctx, orderID, note)
}
