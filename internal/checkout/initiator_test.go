package checkout

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/lokrise/checkout/internal/cart"
	"github.com/lokrise/checkout/pkg/enums"
	pkgerrors "github.com/lokrise/checkout/pkg/errors"
	"github.com/lokrise/checkout/pkg/marketplace"
)

func TestGroupBySellerKeepsFirstAppearanceOrder(t *testing.T) {
	lines := []cart.Line{
		line("p-1", "", "100", 1),
		line("p-2", "", "200", 1),
		line("p-3", "", "300", 1),
	}
	sellers := map[string]string{"p-1": "seller-b", "p-2": "seller-a", "p-3": "seller-b"}

	groups := GroupBySeller(lines, sellers)
	require.Len(t, groups, 2)
	require.Equal(t, "seller-b", groups[0].SellerID)
	require.Len(t, groups[0].Lines, 2)
	require.True(t, groups[0].Totals.Subtotal.Equal(decimal.NewFromInt(400)))
	require.Equal(t, "seller-a", groups[1].SellerID)
	require.True(t, groups[1].Totals.Total.Equal(decimal.RequireFromString("336")))
}

func TestInitiatorUsesResolvedSellerOverSnapshot(t *testing.T) {
	backend := newFakeMarketplace()
	backend.sellers["p-1"] = "seller-current"
	initiator, err := NewInitiator(backend, 1, nil)
	require.NoError(t, err)

	orders, err := initiator.CreateOrders(context.Background(), []cart.Line{line("p-1", "seller-stale", "600", 1)}, testAddress(), enums.PaymentMethodCOD)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	require.Equal(t, "seller-current", orders[0].SellerID)
	require.Equal(t, "p-1", orders[0].FirstProductID)
	require.True(t, orders[0].Amount.Equal(decimal.NewFromInt(808)))
}

func TestInitiatorRollsBackOnRejection(t *testing.T) {
	backend := newFakeMarketplace()
	backend.sellers["p-1"] = "seller-a"
	backend.sellers["p-2"] = "seller-b"
	backend.sellers["p-3"] = "seller-c"
	backend.createErrAt = 2
	initiator, err := NewInitiator(backend, 2, nil)
	require.NoError(t, err)

	_, err = initiator.CreateOrders(context.Background(), []cart.Line{
		line("p-1", "", "100", 1),
		line("p-2", "", "100", 1),
		line("p-3", "", "100", 1),
	}, testAddress(), enums.PaymentMethodCard)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeOrderCreation))
	require.ElementsMatch(t, []string{"order-1:cancelled", "order-2:cancelled"}, backend.statusCalls)
}

func TestInitiatorPassesThroughUnavailableBackend(t *testing.T) {
	backend := newFakeMarketplace()
	backend.sellers["p-1"] = "seller-a"
	initiator, err := NewInitiator(&unavailableCreate{backend}, 1, nil)
	require.NoError(t, err)

	_, err = initiator.CreateOrders(context.Background(), []cart.Line{line("p-1", "", "100", 1)}, testAddress(), enums.PaymentMethodCOD)
	require.True(t, marketplace.IsUnavailable(err))
	require.False(t, pkgerrors.IsCode(err, pkgerrors.CodeOrderCreation))
}

func TestInitiatorRejectsEmptyCart(t *testing.T) {
	initiator, err := NewInitiator(newFakeMarketplace(), 1, nil)
	require.NoError(t, err)

	_, err = initiator.CreateOrders(context.Background(), nil, testAddress(), enums.PaymentMethodCOD)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeOrderCreation))
}

type unavailableCreate struct {
	*fakeMarketplace
}

func (u *unavailableCreate) CreateOrder(context.Context, marketplace.CreateOrderRequest) ([]marketplace.CreatedOrder, error) {
	return nil, &marketplace.APIError{Operation: "create_order", Status: 503, Message: "unavailable"}
}
