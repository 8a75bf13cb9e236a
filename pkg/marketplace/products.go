package marketplace

import (
	"context"
	"net/url"
	"strings"

	pkgerrors "github.com/lokrise/checkout/pkg/errors"
)

// GetProduct fetches a catalog product, including its seller reference.
func (c *Client) GetProduct(ctx context.Context, productID string) (*Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	var env productEnvelope
	if err := c.get(ctx, "get_product", "/products/"+url.PathEscape(productID), nil, &env); err != nil {
		return nil, err
	}
	if env.Product.ID == "" {
		env.Product.ID = productID
	}
	return &env.Product, nil
}
