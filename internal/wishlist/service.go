package wishlist

import (
	"context"
	"fmt"
	"strings"

	"github.com/lokrise/checkout/internal/cart"
	pkgerrors "github.com/lokrise/checkout/pkg/errors"
	"github.com/lokrise/checkout/pkg/logger"
	"github.com/lokrise/checkout/pkg/marketplace"
)

// Backend is the wishlist API of the marketplace. It acts for the bearer in the context.
type Backend interface {
	GetWishlist(ctx context.Context) ([]marketplace.Product, error)
	AddToWishlist(ctx context.Context, productID string) ([]marketplace.Product, error)
	RemoveFromWishlist(ctx context.Context, productID string) ([]marketplace.Product, error)
}

type cartAdder interface {
	Add(ctx context.Context, owner cart.Owner, productID string, qty int) ([]cart.Line, error)
}

// Item is one wishlisted product.
type Item struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Image     string `json:"image,omitempty"`
	Price     string `json:"price"`
	SellerID  string `json:"sellerId,omitempty"`
	InStock   bool   `json:"inStock"`
}

// MoveResult is the state after a product moved from the wishlist into the cart.
type MoveResult struct {
	Wishlist []Item      `json:"wishlist"`
	Cart     []cart.Line `json:"cart"`
}

// Service exposes the authenticated buyer's wishlist.
type Service interface {
	List(ctx context.Context, userID string) ([]Item, error)
	Add(ctx context.Context, userID, productID string) ([]Item, error)
	Remove(ctx context.Context, userID, productID string) ([]Item, error)
	MoveToCart(ctx context.Context, userID, productID string) (*MoveResult, error)
}

type ServiceParams struct {
	Backend Backend
	Carts   cartAdder
	Logger  *logger.Logger
}

type service struct {
	backend Backend
	carts   cartAdder
	logg    *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Backend == nil {
		return nil, fmt.Errorf("wishlist backend required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart service required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{backend: params.Backend, carts: params.Carts, logg: logg}, nil
}

func (s *service) List(ctx context.Context, userID string) ([]Item, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	products, err := s.backend.GetWishlist(ctx)
	if err != nil {
		return nil, err
	}
	return toItems(products), nil
}

func (s *service) Add(ctx context.Context, userID, productID string) ([]Item, error) {
	productID, err := validate(userID, productID)
	if err != nil {
		return nil, err
	}
	products, err := s.backend.AddToWishlist(ctx, productID)
	if err != nil {
		return nil, err
	}
	return toItems(products), nil
}

func (s *service) Remove(ctx context.Context, userID, productID string) ([]Item, error) {
	productID, err := validate(userID, productID)
	if err != nil {
		return nil, err
	}
	products, err := s.backend.RemoveFromWishlist(ctx, productID)
	if err != nil {
		return nil, err
	}
	return toItems(products), nil
}

// MoveToCart adds one unit to the cart first and only then drops the wishlist entry, so a
// failed add leaves the wishlist untouched.
func (s *service) MoveToCart(ctx context.Context, userID, productID string) (*MoveResult, error) {
	productID, err := validate(userID, productID)
	if err != nil {
		return nil, err
	}
	lines, err := s.carts.Add(ctx, cart.Owner{UserID: userID}, productID, 1)
	if err != nil {
		return nil, err
	}
	products, err := s.backend.RemoveFromWishlist(ctx, productID)
	if err != nil {
		s.logg.Error(s.logg.WithField(ctx, "product_id", productID), "wishlist.move.remove_failed", err)
		return nil, err
	}
	return &MoveResult{Wishlist: toItems(products), Cart: lines}, nil
}

func toItems(products []marketplace.Product) []Item {
	items := make([]Item, 0, len(products))
	for _, p := range products {
		items = append(items, Item{
			ProductID: p.ID,
			Name:      p.Name,
			Image:     p.PrimaryImage(),
			Price:     p.Price.StringFixed(2),
			SellerID:  p.Seller.ID,
			InStock:   p.InStock(1),
		})
	}
	return items
}

func requireUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return nil
}

func validate(userID, productID string) (string, error) {
	if err := requireUser(userID); err != nil {
		return "", err
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	return productID, nil
}
