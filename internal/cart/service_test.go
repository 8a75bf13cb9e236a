package cart

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/lokrise/checkout/pkg/errors"
	"github.com/lokrise/checkout/pkg/marketplace"
	"github.com/lokrise/checkout/pkg/redis"
)

type stubCatalog struct {
	products map[string]marketplace.Product
}

func (s stubCatalog) GetProduct(_ context.Context, id string) (*marketplace.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return &p, nil
}

type fakeAccountCart struct {
	catalog  stubCatalog
	items    []marketplace.CartItem
	addCalls int
	failOn   string
}

func (f *fakeAccountCart) GetCart(context.Context) ([]marketplace.CartItem, error) {
	return f.items, nil
}

func (f *fakeAccountCart) AddToCart(_ context.Context, productID string, qty int) ([]marketplace.CartItem, error) {
	f.addCalls++
	if productID == f.failOn {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "backend unavailable")
	}
	for i := range f.items {
		if f.items[i].Product.ID == productID {
			f.items[i].Quantity += qty
			return f.items, nil
		}
	}
	f.items = append(f.items, marketplace.CartItem{Product: f.catalog.products[productID], Quantity: qty})
	return f.items, nil
}

func (f *fakeAccountCart) UpdateCartItem(_ context.Context, productID string, qty int) ([]marketplace.CartItem, error) {
	for i := range f.items {
		if f.items[i].Product.ID == productID {
			f.items[i].Quantity = qty
		}
	}
	return f.items, nil
}

func (f *fakeAccountCart) RemoveCartItem(_ context.Context, productID string) ([]marketplace.CartItem, error) {
	out := f.items[:0]
	for _, item := range f.items {
		if item.Product.ID != productID {
			out = append(out, item)
		}
	}
	f.items = out
	return f.items, nil
}

func (f *fakeAccountCart) ClearCart(context.Context) error {
	f.items = nil
	return nil
}

func intPtr(v int) *int { return &v }

func testCatalog() stubCatalog {
	return stubCatalog{products: map[string]marketplace.Product{
		"A": {ID: "A", Name: "Lamp", Price: decimal.NewFromInt(250), Images: []string{"a.jpg"}, Seller: marketplace.Ref{ID: "s1"}},
		"B": {ID: "B", Name: "Chair", Price: decimal.NewFromInt(900), Seller: marketplace.Ref{ID: "s2"}, Stock: intPtr(1)},
	}}
}

func newTestService(t *testing.T) (*service, *fakeAccountCart, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	kv := redis.NewWithClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	guests, err := NewGuestStore(kv, 0)
	require.NoError(t, err)

	catalog := testCatalog()
	account := &fakeAccountCart{catalog: catalog}
	svc, err := NewService(ServiceParams{Catalog: catalog, Account: account, Guests: guests})
	require.NoError(t, err)
	return svc.(*service), account, mr
}

func TestComputeTotalsBoundaries(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		subtotal int64
		shipping int64
	}{
		{name: "empty", subtotal: 0, shipping: 0},
		{name: "small", subtotal: 600, shipping: 100},
		{name: "at threshold", subtotal: 1000, shipping: 100},
		{name: "above threshold", subtotal: 1001, shipping: 0},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var lines []Line
			if tc.subtotal > 0 {
				lines = []Line{{ProductID: "x", Price: decimal.NewFromInt(tc.subtotal), Quantity: 1}}
			}
			totals := ComputeTotals(lines)
			wantTax := decimal.NewFromInt(tc.subtotal).Mul(TaxRate).Round(2)
			if !totals.Shipping.Equal(decimal.NewFromInt(tc.shipping)) {
				t.Fatalf("expected shipping %d, got %s", tc.shipping, totals.Shipping)
			}
			if !totals.Tax.Equal(wantTax) {
				t.Fatalf("expected tax %s, got %s", wantTax, totals.Tax)
			}
			want := decimal.NewFromInt(tc.subtotal).Add(wantTax).Add(decimal.NewFromInt(tc.shipping))
			if !totals.Total.Equal(want) {
				t.Fatalf("expected total %s, got %s", want, totals.Total)
			}
		})
	}
}

func TestComputeTotalsSingleLineCOD(t *testing.T) {
	t.Parallel()

	totals := ComputeTotals([]Line{{ProductID: "X", Price: decimal.NewFromInt(600), Quantity: 1}})
	if !totals.Total.Equal(decimal.NewFromInt(808)) {
		t.Fatalf("expected total 808, got %s", totals.Total)
	}
}

func TestFingerprintIgnoresLineOrder(t *testing.T) {
	t.Parallel()

	a := Line{ProductID: "A", Price: decimal.NewFromInt(10), Quantity: 1}
	b := Line{ProductID: "B", Price: decimal.NewFromInt(20), Quantity: 2}
	if Fingerprint([]Line{a, b}) != Fingerprint([]Line{b, a}) {
		t.Fatal("expected fingerprint to ignore order")
	}
	before := Fingerprint([]Line{a, b})
	b.Quantity = 3
	if Fingerprint([]Line{a, b}) == before {
		t.Fatal("expected a quantity change to change the fingerprint")
	}
}

func TestGuestAddIncrementsExistingLine(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	guest := Owner{GuestToken: "g-1"}

	_, err := svc.Add(ctx, guest, "A", 1)
	require.NoError(t, err)
	lines, err := svc.Add(ctx, guest, "A", 2)
	require.NoError(t, err)

	require.Len(t, lines, 1)
	require.Equal(t, 3, lines[0].Quantity)
	require.Equal(t, "Lamp", lines[0].Name)
	require.Equal(t, "s1", lines[0].SellerID)
	require.Equal(t, "a.jpg", lines[0].Image)
}

func TestGuestAddRejectsOutOfStock(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	guest := Owner{GuestToken: "g-2"}

	_, err := svc.Add(ctx, guest, "B", 1)
	require.NoError(t, err)
	_, err = svc.Add(ctx, guest, "B", 1)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "expected validation error, got %v", err)
}

func TestGuestSetQuantityZeroRemoves(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	guest := Owner{GuestToken: "g-3"}

	_, err := svc.Add(ctx, guest, "A", 1)
	require.NoError(t, err)
	lines, err := svc.SetQuantity(ctx, guest, "A", 0)
	require.NoError(t, err)
	require.Empty(t, lines)

	totals, err := svc.Totals(ctx, guest)
	require.NoError(t, err)
	require.True(t, totals.Total.IsZero())
}

func TestOwnerWithoutGuestTokenRejected(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)

	_, err := svc.Lines(context.Background(), Owner{})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}

func TestMigrateGuestReplayMigratesNothing(t *testing.T) {
	t.Parallel()
	svc, account, mr := newTestService(t)
	ctx := context.Background()
	guest := Owner{GuestToken: "g-4"}

	_, err := svc.Add(ctx, guest, "A", 2)
	require.NoError(t, err)

	first, err := svc.MigrateGuest(ctx, "user-1", "g-4")
	require.NoError(t, err)
	require.Equal(t, 1, first.Migrated)
	require.False(t, mr.Exists("lk:cart_migration:g-4"))

	second, err := svc.MigrateGuest(ctx, "user-1", "g-4")
	require.NoError(t, err)
	require.False(t, second.Skipped)
	require.Zero(t, second.Migrated)

	require.Equal(t, 1, account.addCalls)
	require.Len(t, account.items, 1)
	require.Equal(t, "A", account.items[0].Product.ID)
	require.Equal(t, 2, account.items[0].Quantity)
	require.False(t, mr.Exists("lk:guest_cart:g-4"))
}

func TestMigrateGuestSkipsWhileAnotherRuns(t *testing.T) {
	t.Parallel()
	svc, account, mr := newTestService(t)
	ctx := context.Background()

	_, err := svc.Add(ctx, Owner{GuestToken: "g-6"}, "A", 1)
	require.NoError(t, err)
	require.NoError(t, mr.Set("lk:cart_migration:g-6", "user-1"))

	result, err := svc.MigrateGuest(ctx, "user-1", "g-6")
	require.NoError(t, err)
	require.True(t, result.Skipped)
	require.Zero(t, account.addCalls)
	require.True(t, mr.Exists("lk:guest_cart:g-6"))
}

func TestMigrateGuestAgainAfterRelogin(t *testing.T) {
	t.Parallel()
	svc, account, mr := newTestService(t)
	ctx := context.Background()
	guest := Owner{GuestToken: "g-7"}

	_, err := svc.Add(ctx, guest, "A", 2)
	require.NoError(t, err)
	first, err := svc.MigrateGuest(ctx, "user-1", "g-7")
	require.NoError(t, err)
	require.Equal(t, 1, first.Migrated)

	// Logged out, kept shopping under the same guest token, logged back in.
	_, err = svc.Add(ctx, guest, "B", 1)
	require.NoError(t, err)
	second, err := svc.MigrateGuest(ctx, "user-1", "g-7")
	require.NoError(t, err)
	require.False(t, second.Skipped)
	require.Equal(t, 1, second.Migrated)
	require.Len(t, second.Lines, 2)

	require.Len(t, account.items, 2)
	require.Equal(t, "B", account.items[1].Product.ID)
	require.Equal(t, 1, account.items[1].Quantity)
	require.False(t, mr.Exists("lk:guest_cart:g-7"))
	require.False(t, mr.Exists("lk:cart_migration:g-7"))
}

func TestMigrateGuestPartialFailureRetriesRemainder(t *testing.T) {
	t.Parallel()
	svc, account, _ := newTestService(t)
	ctx := context.Background()
	guest := Owner{GuestToken: "g-5"}

	_, err := svc.Add(ctx, guest, "A", 1)
	require.NoError(t, err)
	_, err = svc.Add(ctx, guest, "B", 1)
	require.NoError(t, err)

	account.failOn = "B"
	_, err = svc.MigrateGuest(ctx, "user-1", "g-5")
	var typed *pkgerrors.Error
	require.True(t, errors.As(err, &typed))

	remaining, err := svc.guests.Load(ctx, "g-5")
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	require.Equal(t, "B", remaining[0].ProductID)

	account.failOn = ""
	result, err := svc.MigrateGuest(ctx, "user-1", "g-5")
	require.NoError(t, err)
	require.Equal(t, 1, result.Migrated)
	require.Len(t, account.items, 2)
	require.Equal(t, 1, account.items[0].Quantity)
}
