package checkout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/lokrise/checkout/internal/barter"
	"github.com/lokrise/checkout/internal/cart"
	"github.com/lokrise/checkout/internal/payments"
	"github.com/lokrise/checkout/pkg/db/models"
	"github.com/lokrise/checkout/pkg/enums"
	pkgerrors "github.com/lokrise/checkout/pkg/errors"
	"github.com/lokrise/checkout/pkg/logger"
	"github.com/lokrise/checkout/pkg/marketplace"
	"github.com/lokrise/checkout/pkg/metrics"
	"github.com/lokrise/checkout/pkg/outbox"
	"github.com/lokrise/checkout/pkg/outbox/payloads"
	"github.com/lokrise/checkout/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type cartReader interface {
	Lines(ctx context.Context, owner cart.Owner) ([]cart.Line, error)
	Clear(ctx context.Context, owner cart.Owner) error
}

type orderInitiator interface {
	CreateOrders(ctx context.Context, lines []cart.Line, address types.ShippingAddress, method enums.PaymentMethod) ([]CreatedOrder, error)
	CancelOrder(ctx context.Context, orderID, note string) bool
}

type cardCharger interface {
	Charge(ctx context.Context, due payments.OrderDue, card payments.ParsedCard) error
}

type codConfirmer interface {
	Confirm(ctx context.Context, due payments.OrderDue) error
}

type upiFlow interface {
	Initiate(ctx context.Context, sessionID string, due payments.OrderDue) (*payments.PaymentSession, error)
	EnterAmount(ctx context.Context, sessionID, orderID string, amount decimal.Decimal) (*payments.PaymentSession, error)
	Verify(ctx context.Context, sessionID, orderID, upiID string) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service is the payment dispatcher: it owns the checkout session state machine and
// routes a session to one payment strategy.
type Service interface {
	Start(ctx context.Context, userID string, address types.ShippingAddress) (*Session, error)
	Get(ctx context.Context, userID string, sessionID uuid.UUID) (*Session, error)
	ChooseMethod(ctx context.Context, userID string, sessionID uuid.UUID, method enums.PaymentMethod) (*Session, error)
	CreateOrders(ctx context.Context, userID string, sessionID uuid.UUID) (*Session, error)

	PayCard(ctx context.Context, userID string, sessionID uuid.UUID, card payments.Card) (*Session, error)
	PayCOD(ctx context.Context, userID string, sessionID uuid.UUID) (*Session, error)
	InitiateUPI(ctx context.Context, userID string, sessionID uuid.UUID) (*UPIPayment, error)
	EnterUPIAmount(ctx context.Context, userID string, sessionID uuid.UUID, orderID string, amount decimal.Decimal) (*payments.PaymentSession, error)
	VerifyUPI(ctx context.Context, userID string, sessionID uuid.UUID, orderID, upiID string) (*Session, error)

	Barter(ctx context.Context, userID string, sessionID uuid.UUID) (*barter.Draft, error)
	StartBarter(ctx context.Context, userID string, sessionID uuid.UUID) (*barter.Draft, error)
	SetBarterItem(ctx context.Context, userID string, sessionID uuid.UUID, item barter.Item) (*barter.Draft, error)
	ReviewBarter(ctx context.Context, userID string, sessionID uuid.UUID) (*barter.Draft, error)
	EditBarter(ctx context.Context, userID string, sessionID uuid.UUID) (*barter.Draft, error)
	SetBarterTopUp(ctx context.Context, userID string, sessionID uuid.UUID, amount decimal.Decimal) (*barter.Draft, error)
	SetBarterExchange(ctx context.Context, userID string, sessionID uuid.UUID, exchange barter.Exchange) (*barter.Draft, error)
	SubmitBarter(ctx context.Context, userID string, sessionID uuid.UUID, photos []marketplace.BarterPhoto) (*Session, error)

	Confirmation(ctx context.Context, userID string, sessionID uuid.UUID) (*Confirmation, error)
}

type ServiceParams struct {
	Tx         txRunner
	Repository Repository
	Carts      cartReader
	Initiator  orderInitiator
	Card       cardCharger
	COD        codConfirmer
	UPI        upiFlow
	Barter     barter.Service
	Locks      lockStore
	LatchTTL   time.Duration
	Outbox     outboxPublisher
	Metrics    *metrics.CheckoutMetrics
	Logger     *logger.Logger
	Now        func() time.Time
}

type service struct {
	tx        txRunner
	repo      Repository
	carts     cartReader
	initiator orderInitiator
	card      cardCharger
	cod       codConfirmer
	upi       upiFlow
	barter    barter.Service
	latch     *orderLatch
	outbox    outboxPublisher
	metrics   *metrics.CheckoutMetrics
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("checkout repository required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart service required")
	}
	if params.Initiator == nil {
		return nil, fmt.Errorf("order initiator required")
	}
	if params.Card == nil || params.COD == nil || params.UPI == nil {
		return nil, fmt.Errorf("payment processors required")
	}
	if params.Barter == nil {
		return nil, fmt.Errorf("barter service required")
	}
	if params.Locks == nil {
		return nil, fmt.Errorf("lock store required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		tx:        params.Tx,
		repo:      params.Repository,
		carts:     params.Carts,
		initiator: params.Initiator,
		card:      params.Card,
		cod:       params.COD,
		upi:       params.UPI,
		barter:    params.Barter,
		latch:     newOrderLatch(params.Locks, params.LatchTTL, logg),
		outbox:    params.Outbox,
		metrics:   params.Metrics,
		logg:      logg,
		now:       now,
	}, nil
}

// Start snapshots the caller's cart and shipping address into a new session.
// Missing cart or address context is fatal for the checkout screen.
func (s *service) Start(ctx context.Context, userID string, address types.ShippingAddress) (*Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	address = address.Normalize()
	if address.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeCheckoutContext, "shipping address missing")
	}

	lines, err := s.carts.Lines(ctx, cart.Owner{UserID: userID})
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeCheckoutContext, "cart is empty")
	}

	totals := cart.ComputeTotals(lines)
	snapshots := make([]models.CartLineSnapshot, 0, len(lines))
	for _, line := range lines {
		snapshots = append(snapshots, line.Snapshot())
	}
	record := &models.CheckoutSession{
		UserID:          userID,
		State:           enums.CheckoutStateUnselected,
		ShippingAddress: datatypes.NewJSONType(address),
		CartLines:       datatypes.JSONSlice[models.CartLineSnapshot](snapshots),
		CartFingerprint: cart.Fingerprint(lines),
		Subtotal:        totals.Subtotal,
		Tax:             totals.Tax,
		Shipping:        totals.Shipping,
		Total:           totals.Total,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create checkout session")
	}

	s.logg.Info(s.logg.WithSessionID(ctx, record.ID.String()), "checkout.session.started")
	return toSession(record), nil
}

func (s *service) Get(ctx context.Context, userID string, sessionID uuid.UUID) (*Session, error) {
	record, err := s.load(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	return toSession(record), nil
}

// ChooseMethod records the payment method. Once orders exist the method may still change,
// which is how a buyer retries a failed payment with another method.
func (s *service) ChooseMethod(ctx context.Context, userID string, sessionID uuid.UUID, method enums.PaymentMethod) (*Session, error) {
	if !method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}
	record, err := s.load(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	target, ok := methodTargets[record.State]
	if !ok {
		return nil, stateConflict(record.State, "choosing a payment method")
	}
	if method == enums.PaymentMethodBarter && sellerCount(record) > 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "barter is only available for single-seller carts")
	}

	moved, err := s.repo.TransitionState(ctx, record.ID, []enums.CheckoutState{record.State}, target, map[string]any{
		"payment_method": method,
	})
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, s.conflictAfterRace(ctx, record.ID, "choosing a payment method")
	}
	s.metrics.Transition(record.State.String(), target.String())
	return s.reload(ctx, record.ID)
}

// CreateOrders runs the order initiator at most once per session and returns the latched
// orders on every later call.
func (s *service) CreateOrders(ctx context.Context, userID string, sessionID uuid.UUID) (*Session, error) {
	record, err := s.load(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if record.State.HasOrders() {
		return toSession(record), nil
	}
	if record.State != enums.CheckoutStateMethodChosen {
		return nil, stateConflict(record.State, "order creation")
	}

	created, err := s.latch.do(ctx, record.ID, func() (*models.CheckoutSession, error) {
		return s.createOrdersOnce(ctx, record.ID)
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
			s.metrics.LatchConflict()
		}
		return nil, err
	}
	return toSession(created), nil
}

func (s *service) createOrdersOnce(ctx context.Context, sessionID uuid.UUID) (*models.CheckoutSession, error) {
	record, err := s.repo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if record.State.HasOrders() {
		return record, nil
	}
	if record.State != enums.CheckoutStateMethodChosen || record.PaymentMethod == nil {
		return nil, stateConflict(record.State, "order creation")
	}

	current, err := s.carts.Lines(ctx, cart.Owner{UserID: record.UserID})
	if err != nil {
		return nil, err
	}
	if len(current) == 0 || cart.Fingerprint(current) != record.CartFingerprint {
		return nil, pkgerrors.New(pkgerrors.CodeCheckoutContext, "cart changed since checkout started")
	}

	logCtx := s.logg.WithSessionID(ctx, record.ID.String())
	start := s.now()
	orders, err := s.initiator.CreateOrders(ctx, sessionLines(record), record.ShippingAddress.Data(), *record.PaymentMethod)
	if err != nil {
		s.metrics.ObserveOrderCreation("failed", s.now().Sub(start))
		s.logg.Warn(logCtx, "checkout.orders.create_failed")
		return nil, err
	}

	rows := make([]models.CheckoutSessionOrder, 0, len(orders))
	for idx, o := range orders {
		rows = append(rows, models.CheckoutSessionOrder{
			SessionID:     record.ID,
			Position:      idx,
			OrderID:       o.OrderID,
			OrderNumber:   o.OrderNumber,
			SellerID:      o.SellerID,
			FirstProduct:  o.FirstProductID,
			Amount:        o.Amount,
			PaymentStatus: enums.PaymentStatusUnpaid,
		})
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		moved, err := repo.TransitionState(ctx, record.ID, []enums.CheckoutState{enums.CheckoutStateMethodChosen}, enums.CheckoutStateOrderCreated, nil)
		if err != nil {
			return err
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeConflict, "checkout session changed during order creation")
		}
		if err := repo.InsertOrders(ctx, rows); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store session orders")
		}
		record.Orders = rows
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCheckoutOrdersCreated,
			AggregateType: enums.AggregateCheckoutSession,
			AggregateID:   record.ID.String(),
			Actor:         buyer(record.UserID),
			Data: payloads.CheckoutOrdersCreatedEvent{
				SessionID:     record.ID.String(),
				UserID:        record.UserID,
				PaymentMethod: *record.PaymentMethod,
				Orders:        orderRefs(record),
				Total:         record.Total,
			},
		})
	})
	if err != nil {
		for _, o := range orders {
			s.initiator.CancelOrder(ctx, o.OrderID, rollbackNote)
		}
		s.metrics.ObserveOrderCreation("failed", s.now().Sub(start))
		return nil, err
	}

	s.metrics.ObserveOrderCreation("created", s.now().Sub(start))
	s.metrics.Transition(enums.CheckoutStateMethodChosen.String(), enums.CheckoutStateOrderCreated.String())
	s.logg.Info(s.logg.WithField(logCtx, "orders", len(orders)), "checkout.orders.created")
	return s.repo.FindByID(ctx, record.ID)
}

func (s *service) Confirmation(ctx context.Context, userID string, sessionID uuid.UUID) (*Confirmation, error) {
	record, err := s.load(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if record.State != enums.CheckoutStateSettled || record.PaymentMethod == nil {
		return nil, stateConflict(record.State, "confirmation")
	}
	orders := make([]ConfirmedOrder, 0, len(record.Orders))
	for _, o := range record.Orders {
		orders = append(orders, ConfirmedOrder{OrderID: o.OrderID, OrderNumber: o.OrderNumber, Amount: o.Amount})
	}
	confirmation := &Confirmation{
		SessionID:     record.ID,
		Orders:        orders,
		PaymentMethod: *record.PaymentMethod,
		Total:         record.Total,
	}
	if record.SettledAt != nil {
		confirmation.SettledAt = *record.SettledAt
	}
	return confirmation, nil
}

// load returns the caller's session. Sessions of other users look like missing ones.
func (s *service) load(ctx context.Context, userID string, sessionID uuid.UUID) (*models.CheckoutSession, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if sessionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id required")
	}
	record, err := s.repo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if record.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found")
	}
	return record, nil
}

func (s *service) reload(ctx context.Context, sessionID uuid.UUID) (*Session, error) {
	record, err := s.repo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return toSession(record), nil
}

func (s *service) conflictAfterRace(ctx context.Context, sessionID uuid.UUID, op string) error {
	record, err := s.repo.FindByID(ctx, sessionID)
	if err != nil {
		return err
	}
	return stateConflict(record.State, op)
}

func sellerCount(record *models.CheckoutSession) int {
	if len(record.Orders) > 0 {
		return len(record.Orders)
	}
	sellers := map[string]struct{}{}
	for _, line := range record.CartLines {
		sellers[line.SellerID] = struct{}{}
	}
	return len(sellers)
}

func buyer(userID string) *outbox.ActorRef {
	return &outbox.ActorRef{UserID: userID, Role: enums.UserRoleBuyer.String()}
}
