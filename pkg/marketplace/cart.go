package marketplace

import (
	"context"
	"net/http"
	"net/url"
)

// GetCart returns the authenticated caller's backend cart.
func (c *Client) GetCart(ctx context.Context) ([]CartItem, error) {
	var env cartEnvelope
	if err := c.get(ctx, "get_cart", "/cart", nil, &env); err != nil {
		return nil, err
	}
	return env.Cart.Items, nil
}

// AddToCart adds quantity units of a product; the backend increments existing lines.
func (c *Client) AddToCart(ctx context.Context, productID string, quantity int) ([]CartItem, error) {
	var env cartEnvelope
	body := cartMutation{ProductID: productID, Quantity: quantity}
	if err := c.send(ctx, "add_to_cart", http.MethodPost, "/cart", body, &env); err != nil {
		return nil, err
	}
	return env.Cart.Items, nil
}

// UpdateCartItem sets the quantity of an existing line.
func (c *Client) UpdateCartItem(ctx context.Context, productID string, quantity int) ([]CartItem, error) {
	var env cartEnvelope
	body := cartMutation{Quantity: quantity}
	if err := c.send(ctx, "update_cart_item", http.MethodPut, "/cart/"+url.PathEscape(productID), body, &env); err != nil {
		return nil, err
	}
	return env.Cart.Items, nil
}

// RemoveCartItem deletes a line from the cart.
func (c *Client) RemoveCartItem(ctx context.Context, productID string) ([]CartItem, error) {
	var env cartEnvelope
	if err := c.send(ctx, "remove_cart_item", http.MethodDelete, "/cart/"+url.PathEscape(productID), nil, &env); err != nil {
		return nil, err
	}
	return env.Cart.Items, nil
}

// ClearCart removes every line of the caller's cart.
func (c *Client) ClearCart(ctx context.Context) error {
	return c.send(ctx, "clear_cart", http.MethodDelete, "/cart", nil, nil)
}
