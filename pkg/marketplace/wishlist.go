package marketplace

import (
	"context"
	"net/http"
	"net/url"
)

func (c *Client) GetWishlist(ctx context.Context) ([]Product, error) {
	var env wishlistEnvelope
	if err := c.get(ctx, "get_wishlist", "/wishlist", nil, &env); err != nil {
		return nil, err
	}
	return env.Wishlist, nil
}

func (c *Client) AddToWishlist(ctx context.Context, productID string) ([]Product, error) {
	var env wishlistEnvelope
	if err := c.send(ctx, "add_to_wishlist", http.MethodPost, "/wishlist", wishlistMutation{ProductID: productID}, &env); err != nil {
		return nil, err
	}
	return env.Wishlist, nil
}

func (c *Client) RemoveFromWishlist(ctx context.Context, productID string) ([]Product, error) {
	var env wishlistEnvelope
	if err := c.send(ctx, "remove_from_wishlist", http.MethodDelete, "/wishlist/"+url.PathEscape(productID), nil, &env); err != nil {
		return nil, err
	}
	return env.Wishlist, nil
}
