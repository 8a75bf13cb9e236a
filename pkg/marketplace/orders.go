package marketplace

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	pkgerrors "github.com/lokrise/checkout/pkg/errors"
)

// CreateOrder creates one order for a single seller. It is never retried.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) ([]CreatedOrder, error) {
	var resp createOrdersResponse
	if err := c.send(ctx, "create_order", http.MethodPost, "/orders", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Orders) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "marketplace returned no orders")
	}
	return resp.Orders, nil
}

// GetOrder reads the current order record, including its status history.
func (c *Client) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	var env orderEnvelope
	if err := c.get(ctx, "get_order", "/orders/"+url.PathEscape(orderID), nil, &env); err != nil {
		return nil, err
	}
	return &env.Order, nil
}

// UpdateOrderStatus moves an order to a new status and returns the updated record.
func (c *Client) UpdateOrderStatus(ctx context.Context, orderID string, req UpdateStatusRequest) (*Order, error) {
	var env orderEnvelope
	if err := c.send(ctx, "update_order_status", http.MethodPost, "/orders/"+url.PathEscape(orderID)+"/update-status", req, &env); err != nil {
		return nil, err
	}
	return &env.Order, nil
}

// ListSellerOrders delegates filtering, sorting and pagination to the backend.
func (c *Client) ListSellerOrders(ctx context.Context, q SellerOrdersQuery) (*SellerOrdersPage, error) {
	values := url.Values{}
	if q.Status != "" {
		values.Set("status", q.Status.String())
	}
	if q.Search != "" {
		values.Set("search", q.Search)
	}
	if q.StartDate != "" {
		values.Set("startDate", q.StartDate)
	}
	if q.EndDate != "" {
		values.Set("endDate", q.EndDate)
	}
	if q.Sort != "" {
		values.Set("sort", q.Sort.String())
	}
	if q.Page > 0 {
		values.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}

	var page SellerOrdersPage
	if err := c.get(ctx, "list_seller_orders", "/orders/seller-orders", values, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// SellerStats returns the backend aggregate counts for the calling seller.
func (c *Client) SellerStats(ctx context.Context) (*SellerStats, error) {
	var stats SellerStats
	if err := c.get(ctx, "seller_stats", "/orders/seller/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}
