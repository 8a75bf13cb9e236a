package checkout

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/lokrise/checkout/internal/barter"
	"github.com/lokrise/checkout/internal/cart"
	"github.com/lokrise/checkout/internal/payments"
	"github.com/lokrise/checkout/pkg/db"
	"github.com/lokrise/checkout/pkg/db/models"
	"github.com/lokrise/checkout/pkg/enums"
	pkgerrors "github.com/lokrise/checkout/pkg/errors"
	"github.com/lokrise/checkout/pkg/marketplace"
	"github.com/lokrise/checkout/pkg/outbox"
	"github.com/lokrise/checkout/pkg/redis"
	"github.com/lokrise/checkout/pkg/types"
)

type fakeMarketplace struct {
	mu           sync.Mutex
	sellers      map[string]string
	creates      []marketplace.CreateOrderRequest
	createErrAt  int
	statusCalls  []string
	cardErr      error
	cardCalls    []string
	codCalls     []string
	verifyOK     bool
	verifyCalls  int
	barterCalls  int
	createDelay  time.Duration
	missingItems map[string]bool
}

func newFakeMarketplace() *fakeMarketplace {
	return &fakeMarketplace{sellers: map[string]string{}, createErrAt: -1, verifyOK: true, missingItems: map[string]bool{}}
}

func (f *fakeMarketplace) GetProduct(_ context.Context, id string) (*marketplace.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.missingItems[id] {
		return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, &marketplace.APIError{Operation: "get_product", Status: 404}, "product not found")
	}
	return &marketplace.Product{ID: id, Seller: marketplace.Ref{ID: f.sellers[id]}}, nil
}

func (f *fakeMarketplace) CreateOrder(_ context.Context, req marketplace.CreateOrderRequest) ([]marketplace.CreatedOrder, error) {
	if f.createDelay > 0 {
		time.Sleep(f.createDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErrAt == len(f.creates) {
		f.creates = append(f.creates, req)
		return nil, &marketplace.APIError{Operation: "create_order", Status: 400, Message: "price mismatch"}
	}
	f.creates = append(f.creates, req)
	n := len(f.creates)
	return []marketplace.CreatedOrder{{
		ID:          fmt.Sprintf("order-%d", n),
		OrderNumber: fmt.Sprintf("LK-%04d", n),
		TotalAmount: decimal.NewFromFloat(req.TotalAmount),
		Seller:      marketplace.Ref{ID: req.Seller},
	}}, nil
}

func (f *fakeMarketplace) UpdateOrderStatus(_ context.Context, orderID string, req marketplace.UpdateStatusRequest) (*marketplace.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls = append(f.statusCalls, orderID+":"+req.Status.String())
	return &marketplace.Order{ID: orderID, Status: req.Status}, nil
}

func (f *fakeMarketplace) ProcessCard(_ context.Context, req marketplace.CardPaymentRequest) (*marketplace.PaymentResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cardCalls = append(f.cardCalls, req.OrderID)
	if f.cardErr != nil {
		return nil, f.cardErr
	}
	return &marketplace.PaymentResult{Success: true}, nil
}

func (f *fakeMarketplace) ProcessCOD(_ context.Context, req marketplace.CODRequest) (*marketplace.PaymentResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codCalls = append(f.codCalls, req.OrderID)
	return &marketplace.PaymentResult{Success: true}, nil
}

func (f *fakeMarketplace) InitiateUPI(_ context.Context, req marketplace.UPIInitiateRequest) (*marketplace.UPIInitiateResponse, error) {
	return &marketplace.UPIInitiateResponse{Success: true, QRCode: "upi://pay?tr=" + req.OrderID, TransactionRef: "TX-" + req.OrderID}, nil
}

func (f *fakeMarketplace) VerifyUPI(_ context.Context, _ marketplace.UPIVerifyRequest) (*marketplace.PaymentResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifyCalls++
	return &marketplace.PaymentResult{Success: f.verifyOK}, nil
}

func (f *fakeMarketplace) SubmitBarter(_ context.Context, _ marketplace.BarterSubmission) (*marketplace.BarterResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.barterCalls++
	return &marketplace.BarterResult{Success: true, BarterProposal: &marketplace.BarterProposal{ID: "bp-1"}}, nil
}

func (f *fakeMarketplace) createCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.creates)
}

type fakeCarts struct {
	mu      sync.Mutex
	lines   []cart.Line
	cleared int
}

func (c *fakeCarts) Lines(context.Context, cart.Owner) ([]cart.Line, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]cart.Line(nil), c.lines...), nil
}

func (c *fakeCarts) Clear(context.Context, cart.Owner) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = nil
	c.cleared++
	return nil
}

type harness struct {
	svc     Service
	backend *fakeMarketplace
	carts   *fakeCarts
	conn    *gorm.DB
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(models.All()...))

	mr := miniredis.RunT(t)
	store := redis.NewWithClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))

	backend := newFakeMarketplace()
	carts := &fakeCarts{}

	initiator, err := NewInitiator(backend, 2, nil)
	require.NoError(t, err)
	card, err := payments.NewCardProcessor(backend, nil)
	require.NoError(t, err)
	cod, err := payments.NewCODProcessor(backend, nil)
	require.NoError(t, err)
	upi, err := payments.NewUPIProcessor(payments.UPIProcessorParams{Backend: backend, Store: store})
	require.NoError(t, err)
	barterSvc, err := barter.NewService(barter.ServiceParams{Repository: barter.NewRepository(conn), Backend: backend})
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Tx:         db.NewFromConn(conn),
		Repository: NewRepository(conn),
		Carts:      carts,
		Initiator:  initiator,
		Card:       card,
		COD:        cod,
		UPI:        upi,
		Barter:     barterSvc,
		Locks:      store,
		Outbox:     outbox.NewService(outbox.NewRepository(conn), nil),
	})
	require.NoError(t, err)
	return &harness{svc: svc, backend: backend, carts: carts, conn: conn}
}

func testAddress() types.ShippingAddress {
	return types.ShippingAddress{
		Name:         "Asha Rao",
		AddressLine1: "12 MG Road",
		City:         "Bengaluru",
		State:        "KA",
		PinCode:      "560001",
		Phone:        "9876543210",
		Email:        "asha@example.com",
	}
}

func line(productID, sellerID, price string, qty int) cart.Line {
	return cart.Line{ProductID: productID, Name: productID, Price: decimal.RequireFromString(price), SellerID: sellerID, Quantity: qty}
}

func (h *harness) startWith(t *testing.T, method enums.PaymentMethod, lines ...cart.Line) *Session {
	t.Helper()
	for _, l := range lines {
		h.backend.sellers[l.ProductID] = l.SellerID
	}
	h.carts.lines = lines
	ctx := context.Background()
	session, err := h.svc.Start(ctx, "user-1", testAddress())
	require.NoError(t, err)
	_, err = h.svc.ChooseMethod(ctx, "user-1", session.ID, method)
	require.NoError(t, err)
	return session
}

func (h *harness) eventTypes(t *testing.T) []enums.OutboxEventType {
	t.Helper()
	var rows []models.OutboxEvent
	require.NoError(t, h.conn.Order("created_at ASC").Find(&rows).Error)
	out := make([]enums.OutboxEventType, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.EventType)
	}
	return out
}

func TestCheckoutEndToEndCOD(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	session := h.startWith(t, enums.PaymentMethodCOD, line("product-x", "seller-1", "600", 1))

	created, err := h.svc.CreateOrders(ctx, "user-1", session.ID)
	require.NoError(t, err)
	require.Equal(t, enums.CheckoutStateOrderCreated, created.State)
	require.Len(t, created.Orders, 1)
	require.Len(t, h.backend.creates, 1)
	require.Equal(t, 808.0, h.backend.creates[0].TotalAmount)
	require.Equal(t, 600.0, h.backend.creates[0].SubTotal)
	require.Equal(t, enums.OrderStatusPending, h.backend.creates[0].Status)
	require.Equal(t, 0, h.carts.cleared)

	settled, err := h.svc.PayCOD(ctx, "user-1", session.ID)
	require.NoError(t, err)
	require.Equal(t, enums.CheckoutStateSettled, settled.State)
	require.Equal(t, []string{created.Orders[0].OrderID}, h.backend.codCalls)
	require.Equal(t, 1, h.carts.cleared)

	confirmation, err := h.svc.Confirmation(ctx, "user-1", session.ID)
	require.NoError(t, err)
	require.Equal(t, enums.PaymentMethodCOD, confirmation.PaymentMethod)
	require.Equal(t, created.Orders[0].OrderID, confirmation.Orders[0].OrderID)
	require.True(t, confirmation.Total.Equal(decimal.NewFromInt(808)))

	require.Equal(t, []enums.OutboxEventType{enums.EventCheckoutOrdersCreated, enums.EventCheckoutSettled}, h.eventTypes(t))
}

func TestCreateOrdersIsLatched(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	session := h.startWith(t, enums.PaymentMethodCard, line("p-1", "seller-1", "250", 2))

	first, err := h.svc.CreateOrders(ctx, "user-1", session.ID)
	require.NoError(t, err)
	second, err := h.svc.CreateOrders(ctx, "user-1", session.ID)
	require.NoError(t, err)

	require.Equal(t, 1, h.backend.createCount())
	require.Equal(t, first.Orders[0].OrderID, second.Orders[0].OrderID)
}

func TestCreateOrdersConcurrentCallersCreateOnce(t *testing.T) {
	h := newHarness(t)
	h.backend.createDelay = 20 * time.Millisecond
	session := h.startWith(t, enums.PaymentMethodCard, line("p-1", "seller-1", "250", 2))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.CreateOrders(context.Background(), "user-1", session.ID)
			if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, h.backend.createCount())
}

func TestCreateOrdersSplitsBySeller(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	session := h.startWith(t, enums.PaymentMethodCOD,
		line("p-a", "seller-a", "600", 1),
		line("p-b", "seller-b", "700", 2),
		line("p-c", "seller-a", "50", 2),
	)

	created, err := h.svc.CreateOrders(ctx, "user-1", session.ID)
	require.NoError(t, err)
	require.Len(t, created.Orders, 2)

	require.Equal(t, "seller-a", h.backend.creates[0].Seller)
	require.Len(t, h.backend.creates[0].Products, 2)
	require.Equal(t, 700.0, h.backend.creates[0].SubTotal)
	require.Equal(t, 926.0, h.backend.creates[0].TotalAmount)

	require.Equal(t, "seller-b", h.backend.creates[1].Seller)
	require.Equal(t, 1400.0, h.backend.creates[1].SubTotal)
	require.Equal(t, 1652.0, h.backend.creates[1].TotalAmount)

	settled, err := h.svc.PayCOD(ctx, "user-1", session.ID)
	require.NoError(t, err)
	require.Equal(t, enums.CheckoutStateSettled, settled.State)
	require.Len(t, h.backend.codCalls, 2)
}

func TestCreateOrdersRollsBackEarlierSellers(t *testing.T) {
	h := newHarness(t)
	h.backend.createErrAt = 1
	ctx := context.Background()
	session := h.startWith(t, enums.PaymentMethodCOD,
		line("p-a", "seller-a", "100", 1),
		line("p-b", "seller-b", "100", 1),
	)

	_, err := h.svc.CreateOrders(ctx, "user-1", session.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeOrderCreation), "got %v", err)
	require.Equal(t, []string{"order-1:cancelled"}, h.backend.statusCalls)

	current, err := h.svc.Get(ctx, "user-1", session.ID)
	require.NoError(t, err)
	require.Equal(t, enums.CheckoutStateMethodChosen, current.State)
}

func TestCreateOrdersUnresolvableProduct(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	session := h.startWith(t, enums.PaymentMethodCOD, line("p-gone", "seller-a", "100", 1))
	h.backend.missingItems["p-gone"] = true

	_, err := h.svc.CreateOrders(ctx, "user-1", session.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeOrderCreation), "got %v", err)
	require.Zero(t, h.backend.createCount())
}

func TestCreateOrdersRejectsChangedCart(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	session := h.startWith(t, enums.PaymentMethodCOD, line("p-1", "seller-1", "100", 1))
	h.carts.lines = []cart.Line{line("p-1", "seller-1", "100", 3)}

	_, err := h.svc.CreateOrders(ctx, "user-1", session.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeCheckoutContext), "got %v", err)
	require.Zero(t, h.backend.createCount())
}

func TestStartRequiresCartAndAddress(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Start(ctx, "user-1", testAddress())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeCheckoutContext))

	h.carts.lines = []cart.Line{line("p-1", "seller-1", "100", 1)}
	_, err = h.svc.Start(ctx, "user-1", types.ShippingAddress{})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeCheckoutContext))
}

func TestStateMachineGuards(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.carts.lines = []cart.Line{line("p-1", "seller-1", "100", 1)}
	h.backend.sellers["p-1"] = "seller-1"
	session, err := h.svc.Start(ctx, "user-1", testAddress())
	require.NoError(t, err)

	_, err = h.svc.CreateOrders(ctx, "user-1", session.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = h.svc.PayCOD(ctx, "user-1", session.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = h.svc.Get(ctx, "someone-else", session.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = h.svc.Confirmation(ctx, "user-1", session.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestFailedCardPaymentCanBeRetriedWithAnotherMethod(t *testing.T) {
	h := newHarness(t)
	h.backend.cardErr = &marketplace.APIError{Operation: "card_process", Status: 402, Message: "card declined"}
	ctx := context.Background()
	session := h.startWith(t, enums.PaymentMethodCard, line("p-1", "seller-1", "600", 1))
	_, err := h.svc.CreateOrders(ctx, "user-1", session.ID)
	require.NoError(t, err)

	card := payments.Card{Number: "4111111111111111", HolderName: "Asha Rao", Expiry: "12/30", CVV: "123"}
	_, err = h.svc.PayCard(ctx, "user-1", session.ID, card)
	reason, ok := payments.FailureReason(err)
	require.True(t, ok)
	require.Equal(t, enums.PaymentFailureDeclined, reason)

	failed, err := h.svc.Get(ctx, "user-1", session.ID)
	require.NoError(t, err)
	require.Equal(t, enums.CheckoutStateFailed, failed.State)
	require.NotNil(t, failed.FailureReason)
	require.Empty(t, h.backend.statusCalls)
	require.Equal(t, 0, h.carts.cleared)

	switched, err := h.svc.ChooseMethod(ctx, "user-1", session.ID, enums.PaymentMethodCOD)
	require.NoError(t, err)
	require.Equal(t, enums.CheckoutStateOrderCreated, switched.State)

	settled, err := h.svc.PayCOD(ctx, "user-1", session.ID)
	require.NoError(t, err)
	require.Equal(t, enums.CheckoutStateSettled, settled.State)
	require.Equal(t, 1, h.backend.createCount())
	require.Contains(t, h.eventTypes(t), enums.EventCheckoutPaymentFailed)
}

func TestInvalidCardDoesNotStartPayment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	session := h.startWith(t, enums.PaymentMethodCard, line("p-1", "seller-1", "600", 1))
	_, err := h.svc.CreateOrders(ctx, "user-1", session.ID)
	require.NoError(t, err)

	_, err = h.svc.PayCard(ctx, "user-1", session.ID, payments.Card{Number: "12", HolderName: "A", Expiry: "13", CVV: "1"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	require.Empty(t, h.backend.cardCalls)

	current, err := h.svc.Get(ctx, "user-1", session.ID)
	require.NoError(t, err)
	require.Equal(t, enums.CheckoutStateOrderCreated, current.State)
}

func TestUPIFlow(t *testing.T) {
	h := newHarness(t)
	h.backend.verifyOK = false
	ctx := context.Background()
	session := h.startWith(t, enums.PaymentMethodUPI, line("p-1", "seller-1", "499", 1))
	created, err := h.svc.CreateOrders(ctx, "user-1", session.ID)
	require.NoError(t, err)
	orderID := created.Orders[0].OrderID
	amount := created.Orders[0].Amount

	upi, err := h.svc.InitiateUPI(ctx, "user-1", session.ID)
	require.NoError(t, err)
	require.Len(t, upi.Payments, 1)
	require.Equal(t, enums.CheckoutStatePaymentInFlight, upi.Session.State)

	ps, err := h.svc.EnterUPIAmount(ctx, "user-1", session.ID, orderID, amount.Add(decimal.NewFromInt(1)))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	require.Equal(t, upi.Payments[0].TransactionRef, ps.TransactionRef)

	_, err = h.svc.EnterUPIAmount(ctx, "user-1", session.ID, orderID, amount)
	require.NoError(t, err)

	_, err = h.svc.VerifyUPI(ctx, "user-1", session.ID, orderID, "asha@okbank")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodePayment))

	retry, err := h.svc.InitiateUPI(ctx, "user-1", session.ID)
	require.NoError(t, err)
	require.Equal(t, upi.Payments[0].TransactionRef, retry.Payments[0].TransactionRef)

	h.backend.verifyOK = true
	settled, err := h.svc.VerifyUPI(ctx, "user-1", session.ID, orderID, "asha@okbank")
	require.NoError(t, err)
	require.Equal(t, enums.CheckoutStateSettled, settled.State)
	require.Equal(t, 2, h.backend.verifyCalls)
}

func TestUPIVerifyWithoutAmountEntry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	session := h.startWith(t, enums.PaymentMethodUPI, line("p-1", "seller-1", "499", 1))
	created, err := h.svc.CreateOrders(ctx, "user-1", session.ID)
	require.NoError(t, err)
	orderID := created.Orders[0].OrderID

	_, err = h.svc.InitiateUPI(ctx, "user-1", session.ID)
	require.NoError(t, err)

	settled, err := h.svc.VerifyUPI(ctx, "user-1", session.ID, orderID, "asha@okbank")
	require.NoError(t, err)
	require.Equal(t, enums.CheckoutStateSettled, settled.State)
	require.Equal(t, 1, h.backend.verifyCalls)
}

func TestBarterSettlesSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	session := h.startWith(t, enums.PaymentMethodBarter, line("p-1", "seller-1", "1000", 1))
	_, err := h.svc.CreateOrders(ctx, "user-1", session.ID)
	require.NoError(t, err)

	_, err = h.svc.SubmitBarter(ctx, "user-1", session.ID, nil)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = h.svc.StartBarter(ctx, "user-1", session.ID)
	require.NoError(t, err)
	_, err = h.svc.SetBarterItem(ctx, "user-1", session.ID, barter.Item{
		Title:          "Guitar",
		Category:       enums.BarterCategoryOther,
		Description:    "Acoustic, good condition",
		EstimatedValue: decimal.NewFromInt(900),
	})
	require.NoError(t, err)
	_, err = h.svc.ReviewBarter(ctx, "user-1", session.ID)
	require.NoError(t, err)
	draft, err := h.svc.SetBarterTopUp(ctx, "user-1", session.ID, decimal.NewFromInt(100))
	require.NoError(t, err)
	require.Equal(t, enums.BarterBalanceTopUpRecommended, draft.Balance)

	settled, err := h.svc.SubmitBarter(ctx, "user-1", session.ID, nil)
	require.NoError(t, err)
	require.Equal(t, enums.CheckoutStateSettled, settled.State)
	require.Equal(t, 1, h.backend.barterCalls)
}

func TestBarterRequiresSingleSeller(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.carts.lines = []cart.Line{line("p-a", "seller-a", "100", 1), line("p-b", "seller-b", "100", 1)}
	session, err := h.svc.Start(ctx, "user-1", testAddress())
	require.NoError(t, err)

	_, err = h.svc.ChooseMethod(ctx, "user-1", session.ID, enums.PaymentMethodBarter)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = h.svc.Get(ctx, "user-1", uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
