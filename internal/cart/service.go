package cart

import (
	"context"
	"fmt"
	"strings"
	"time"

	pkgerrors "github.com/lokrise/checkout/pkg/errors"
	"github.com/lokrise/checkout/pkg/logger"
	"github.com/lokrise/checkout/pkg/marketplace"
)

// Catalog resolves product snapshots.
type Catalog interface {
	GetProduct(ctx context.Context, productID string) (*marketplace.Product, error)
}

// AccountCart is the backend cart of an authenticated user. The bearer token is read
// from the request context by the marketplace client.
type AccountCart interface {
	GetCart(ctx context.Context) ([]marketplace.CartItem, error)
	AddToCart(ctx context.Context, productID string, quantity int) ([]marketplace.CartItem, error)
	UpdateCartItem(ctx context.Context, productID string, quantity int) ([]marketplace.CartItem, error)
	RemoveCartItem(ctx context.Context, productID string) ([]marketplace.CartItem, error)
	ClearCart(ctx context.Context) error
}

// Service exposes cart operations for guests and authenticated users.
type Service interface {
	Lines(ctx context.Context, owner Owner) ([]Line, error)
	Add(ctx context.Context, owner Owner, productID string, qty int) ([]Line, error)
	SetQuantity(ctx context.Context, owner Owner, productID string, qty int) ([]Line, error)
	Remove(ctx context.Context, owner Owner, productID string) ([]Line, error)
	Clear(ctx context.Context, owner Owner) error
	Totals(ctx context.Context, owner Owner) (Totals, error)
	MigrateGuest(ctx context.Context, userID, guestToken string) (*MigrationResult, error)
}

type ServiceParams struct {
	Catalog   Catalog
	Account   AccountCart
	Guests    *GuestStore
	MarkerTTL time.Duration
	Logger    *logger.Logger
}

type service struct {
	catalog   Catalog
	account   AccountCart
	guests    *GuestStore
	markerTTL time.Duration
	logg      *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog required")
	}
	if params.Account == nil {
		return nil, fmt.Errorf("account cart required")
	}
	if params.Guests == nil {
		return nil, fmt.Errorf("guest store required")
	}
	markerTTL := params.MarkerTTL
	if markerTTL <= 0 {
		markerTTL = 24 * time.Hour
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		catalog:   params.Catalog,
		account:   params.Account,
		guests:    params.Guests,
		markerTTL: markerTTL,
		logg:      logg,
	}, nil
}

func (s *service) Lines(ctx context.Context, owner Owner) ([]Line, error) {
	if err := validateOwner(owner); err != nil {
		return nil, err
	}
	if owner.IsGuest() {
		return s.guests.Load(ctx, owner.GuestToken)
	}
	items, err := s.account.GetCart(ctx)
	if err != nil {
		return nil, err
	}
	return linesFromBackend(items), nil
}

func (s *service) Add(ctx context.Context, owner Owner, productID string, qty int) ([]Line, error) {
	if err := validateOwner(owner); err != nil {
		return nil, err
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if qty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	if !owner.IsGuest() {
		if !product.InStock(qty) {
			return nil, outOfStock(productID)
		}
		items, err := s.account.AddToCart(ctx, productID, qty)
		if err != nil {
			return nil, err
		}
		return linesFromBackend(items), nil
	}

	lines, err := s.guests.Load(ctx, owner.GuestToken)
	if err != nil {
		return nil, err
	}
	idx := indexOf(lines, productID)
	want := qty
	if idx >= 0 {
		want += lines[idx].Quantity
	}
	if !product.InStock(want) {
		return nil, outOfStock(productID)
	}
	if idx >= 0 {
		lines[idx].Quantity = want
	} else {
		lines = append(lines, lineFromProduct(*product, qty))
	}
	if err := s.guests.Save(ctx, owner.GuestToken, lines); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save guest cart")
	}
	return lines, nil
}

func (s *service) SetQuantity(ctx context.Context, owner Owner, productID string, qty int) ([]Line, error) {
	if qty <= 0 {
		return s.Remove(ctx, owner, productID)
	}
	if err := validateOwner(owner); err != nil {
		return nil, err
	}
	if !owner.IsGuest() {
		items, err := s.account.UpdateCartItem(ctx, productID, qty)
		if err != nil {
			return nil, err
		}
		return linesFromBackend(items), nil
	}

	lines, err := s.guests.Load(ctx, owner.GuestToken)
	if err != nil {
		return nil, err
	}
	idx := indexOf(lines, productID)
	if idx < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart line not found")
	}
	lines[idx].Quantity = qty
	if err := s.guests.Save(ctx, owner.GuestToken, lines); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save guest cart")
	}
	return lines, nil
}

func (s *service) Remove(ctx context.Context, owner Owner, productID string) ([]Line, error) {
	if err := validateOwner(owner); err != nil {
		return nil, err
	}
	if !owner.IsGuest() {
		items, err := s.account.RemoveCartItem(ctx, productID)
		if err != nil {
			return nil, err
		}
		return linesFromBackend(items), nil
	}

	lines, err := s.guests.Load(ctx, owner.GuestToken)
	if err != nil {
		return nil, err
	}
	if idx := indexOf(lines, productID); idx >= 0 {
		lines = append(lines[:idx], lines[idx+1:]...)
	}
	if err := s.guests.Save(ctx, owner.GuestToken, lines); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save guest cart")
	}
	return lines, nil
}

func (s *service) Clear(ctx context.Context, owner Owner) error {
	if err := validateOwner(owner); err != nil {
		return err
	}
	if owner.IsGuest() {
		if err := s.guests.Clear(ctx, owner.GuestToken); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear guest cart")
		}
		return nil
	}
	return s.account.ClearCart(ctx)
}

func (s *service) Totals(ctx context.Context, owner Owner) (Totals, error) {
	lines, err := s.Lines(ctx, owner)
	if err != nil {
		return Totals{}, err
	}
	return ComputeTotals(lines), nil
}

func validateOwner(owner Owner) error {
	if owner.IsGuest() && strings.TrimSpace(owner.GuestToken) == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "guest token or authentication required")
	}
	return nil
}

func indexOf(lines []Line, productID string) int {
	for i, l := range lines {
		if l.ProductID == productID {
			return i
		}
	}
	return -1
}

func outOfStock(productID string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "product is out of stock").
		WithDetails(map[string]any{"productId": productID})
}
