package checkout

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/lokrise/checkout/internal/barter"
	"github.com/lokrise/checkout/internal/cart"
	"github.com/lokrise/checkout/internal/payments"
	"github.com/lokrise/checkout/pkg/db/models"
	"github.com/lokrise/checkout/pkg/enums"
	pkgerrors "github.com/lokrise/checkout/pkg/errors"
	"github.com/lokrise/checkout/pkg/marketplace"
	"github.com/lokrise/checkout/pkg/outbox"
	"github.com/lokrise/checkout/pkg/outbox/payloads"
)

// PayCard charges every unpaid order of the session with the same card.
func (s *service) PayCard(ctx context.Context, userID string, sessionID uuid.UUID, card payments.Card) (*Session, error) {
	parsed, err := payments.ParseCard(card)
	if err != nil {
		return nil, err
	}
	record, err := s.enterPayment(ctx, userID, sessionID, enums.PaymentMethodCard)
	if err != nil {
		return nil, err
	}
	return s.payEach(ctx, record, enums.PaymentMethodCard, func(due payments.OrderDue) error {
		return s.card.Charge(ctx, due, parsed)
	})
}

// PayCOD confirms cash on delivery for every unpaid order.
func (s *service) PayCOD(ctx context.Context, userID string, sessionID uuid.UUID) (*Session, error) {
	record, err := s.enterPayment(ctx, userID, sessionID, enums.PaymentMethodCOD)
	if err != nil {
		return nil, err
	}
	return s.payEach(ctx, record, enums.PaymentMethodCOD, func(due payments.OrderDue) error {
		return s.cod.Confirm(ctx, due)
	})
}

// InitiateUPI opens (or reopens after a failed verification) the UPI payment and returns
// one QR per unpaid order. QR codes already issued for the session are reused.
func (s *service) InitiateUPI(ctx context.Context, userID string, sessionID uuid.UUID) (*UPIPayment, error) {
	record, err := s.load(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if !inUPIFlight(record) {
		if record, err = s.enterPayment(ctx, userID, sessionID, enums.PaymentMethodUPI); err != nil {
			return nil, err
		}
	}

	sessionKey := record.ID.String()
	result := &UPIPayment{Payments: []*payments.PaymentSession{}}
	for _, due := range unpaidOrders(record) {
		ps, err := s.upi.Initiate(ctx, sessionKey, due)
		if err != nil {
			return nil, s.fail(ctx, record, enums.PaymentMethodUPI, due.OrderID, err)
		}
		result.Payments = append(result.Payments, ps)
	}
	result.Session = toSession(record)
	return result, nil
}

// EnterUPIAmount checks the amount typed for one order. A mismatch is a local validation
// error; it never touches the session state or the QR.
func (s *service) EnterUPIAmount(ctx context.Context, userID string, sessionID uuid.UUID, orderID string, amount decimal.Decimal) (*payments.PaymentSession, error) {
	record, err := s.load(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if _, err := requireUPIOrder(record, orderID); err != nil {
		return nil, err
	}
	return s.upi.EnterAmount(ctx, record.ID.String(), orderID, amount)
}

// VerifyUPI submits the buyer's UPI id for one order. The session settles once every
// order is verified; a failed verification fails the session but keeps the QR.
func (s *service) VerifyUPI(ctx context.Context, userID string, sessionID uuid.UUID, orderID, upiID string) (*Session, error) {
	record, err := s.load(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if _, err := requireUPIOrder(record, orderID); err != nil {
		return nil, err
	}

	if err := s.upi.Verify(ctx, record.ID.String(), orderID, upiID); err != nil {
		if !pkgerrors.IsCode(err, pkgerrors.CodePayment) {
			return nil, err
		}
		return nil, s.fail(ctx, record, enums.PaymentMethodUPI, orderID, err)
	}
	if err := s.markPaid(ctx, record, orderID); err != nil {
		return nil, err
	}
	return s.settleIfComplete(ctx, record.ID, enums.PaymentMethodUPI)
}

func (s *service) Barter(ctx context.Context, userID string, sessionID uuid.UUID) (*barter.Draft, error) {
	if _, err := s.load(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	return s.barter.Get(ctx, sessionID)
}

// StartBarter opens the barter wizard for the single order of a barter session.
func (s *service) StartBarter(ctx context.Context, userID string, sessionID uuid.UUID) (*barter.Draft, error) {
	record, err := s.load(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if !isPayable(record.State) {
		return nil, stateConflict(record.State, "barter")
	}
	if record.PaymentMethod == nil || *record.PaymentMethod != enums.PaymentMethodBarter {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "barter is not the chosen payment method")
	}
	if len(record.Orders) != 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "barter is only available for single-seller carts")
	}
	order := record.Orders[0]
	return s.barter.Start(ctx, record.ID, order.OrderID, order.Amount)
}

func (s *service) SetBarterItem(ctx context.Context, userID string, sessionID uuid.UUID, item barter.Item) (*barter.Draft, error) {
	if _, err := s.load(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	return s.barter.SetItem(ctx, sessionID, item)
}

func (s *service) ReviewBarter(ctx context.Context, userID string, sessionID uuid.UUID) (*barter.Draft, error) {
	if _, err := s.load(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	return s.barter.Review(ctx, sessionID)
}

func (s *service) EditBarter(ctx context.Context, userID string, sessionID uuid.UUID) (*barter.Draft, error) {
	if _, err := s.load(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	return s.barter.Edit(ctx, sessionID)
}

func (s *service) SetBarterTopUp(ctx context.Context, userID string, sessionID uuid.UUID, amount decimal.Decimal) (*barter.Draft, error) {
	if _, err := s.load(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	return s.barter.SetTopUp(ctx, sessionID, amount)
}

func (s *service) SetBarterExchange(ctx context.Context, userID string, sessionID uuid.UUID, exchange barter.Exchange) (*barter.Draft, error) {
	if _, err := s.load(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	return s.barter.SetExchange(ctx, sessionID, exchange)
}

// SubmitBarter sends the reviewed proposal. Acceptance settles the session; a rejection
// fails it while the draft returns to review with the error kept.
func (s *service) SubmitBarter(ctx context.Context, userID string, sessionID uuid.UUID, photos []marketplace.BarterPhoto) (*Session, error) {
	draft, err := s.Barter(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if draft.State != enums.BarterStateReviewing {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "barter proposal is not ready for submission").
			WithDetails(map[string]any{"state": draft.State})
	}

	record, err := s.enterPayment(ctx, userID, sessionID, enums.PaymentMethodBarter)
	if err != nil {
		return nil, err
	}
	if _, err := s.barter.Submit(ctx, record.ID, photos); err != nil {
		return nil, s.fail(ctx, record, enums.PaymentMethodBarter, draft.OrderID, err)
	}
	if err := s.markPaid(ctx, record, draft.OrderID); err != nil {
		return nil, err
	}
	return s.settleIfComplete(ctx, record.ID, enums.PaymentMethodBarter)
}

// enterPayment moves the session into payment_in_flight. The conditional update admits a
// single attempt per session at a time.
func (s *service) enterPayment(ctx context.Context, userID string, sessionID uuid.UUID, method enums.PaymentMethod) (*models.CheckoutSession, error) {
	record, err := s.load(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if !isPayable(record.State) {
		return nil, payEntryError(record.State)
	}
	if method == enums.PaymentMethodBarter && len(record.Orders) != 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "barter is only available for single-seller carts")
	}

	moved, err := s.repo.TransitionState(ctx, record.ID, payableStates, enums.CheckoutStatePaymentInFlight, map[string]any{
		"payment_method": method,
		"failure_reason": nil,
	})
	if err != nil {
		return nil, err
	}
	if !moved {
		current, err := s.repo.FindByID(ctx, record.ID)
		if err != nil {
			return nil, err
		}
		return nil, payEntryError(current.State)
	}
	s.metrics.Transition(record.State.String(), enums.CheckoutStatePaymentInFlight.String())
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"checkout_session_id": record.ID.String(),
		"payment_method":      method,
	}), "checkout.payment.started")

	return s.repo.FindByID(ctx, record.ID)
}

// payEach settles unpaid orders one by one and stops at the first failure. Orders paid
// before the failure stay paid and are skipped on retry.
func (s *service) payEach(ctx context.Context, record *models.CheckoutSession, method enums.PaymentMethod, pay func(payments.OrderDue) error) (*Session, error) {
	for _, due := range unpaidOrders(record) {
		if err := pay(due); err != nil {
			return nil, s.fail(ctx, record, method, due.OrderID, err)
		}
		if err := s.markPaid(ctx, record, due.OrderID); err != nil {
			return nil, err
		}
	}
	return s.settleIfComplete(ctx, record.ID, method)
}

func (s *service) markPaid(ctx context.Context, record *models.CheckoutSession, orderID string) error {
	if err := s.repo.MarkOrderPaid(ctx, record.ID, orderID, s.now()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark order paid")
	}
	return nil
}

// settleIfComplete settles the session once every order is paid, then clears the cart.
// A session with unpaid orders stays in flight (multi-order UPI).
func (s *service) settleIfComplete(ctx context.Context, sessionID uuid.UUID, method enums.PaymentMethod) (*Session, error) {
	record, err := s.repo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(unpaidOrders(record)) > 0 {
		return toSession(record), nil
	}

	settledAt := s.now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		moved, err := s.repo.WithTx(tx).TransitionState(ctx, record.ID, []enums.CheckoutState{enums.CheckoutStatePaymentInFlight}, enums.CheckoutStateSettled, map[string]any{
			"settled_at":     settledAt,
			"failure_reason": nil,
		})
		if err != nil {
			return err
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeConflict, "checkout session changed during payment")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCheckoutSettled,
			AggregateType: enums.AggregateCheckoutSession,
			AggregateID:   record.ID.String(),
			Actor:         buyer(record.UserID),
			Data: payloads.CheckoutSettledEvent{
				SessionID:     record.ID.String(),
				UserID:        record.UserID,
				PaymentMethod: method,
				Orders:        orderRefs(record),
				Total:         record.Total,
				SettledAt:     settledAt,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	s.metrics.Transition(enums.CheckoutStatePaymentInFlight.String(), enums.CheckoutStateSettled.String())
	s.metrics.Payment(method.String(), "succeeded")

	logCtx := s.logg.WithSessionID(ctx, record.ID.String())
	if err := s.carts.Clear(ctx, cart.Owner{UserID: record.UserID}); err != nil {
		s.logg.Error(logCtx, "checkout.cart.clear_failed", err)
	}
	s.logg.Info(logCtx, "checkout.settled")
	return s.reload(ctx, record.ID)
}

// fail moves an in-flight session to failed and returns cause for the caller. Orders stay
// pending at the marketplace so the buyer can retry.
func (s *service) fail(ctx context.Context, record *models.CheckoutSession, method enums.PaymentMethod, orderID string, cause error) error {
	reason, ok := payments.FailureReason(cause)
	if !ok {
		reason = enums.PaymentFailureUnavailable
	}
	logCtx := s.logg.WithFields(s.logg.WithSessionID(ctx, record.ID.String()), map[string]any{
		"order_id":       orderID,
		"payment_method": method,
		"reason":         reason,
	})

	var unpaid []string
	for _, due := range unpaidOrders(record) {
		unpaid = append(unpaid, due.OrderID)
	}
	reasonText := reason.String()

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if orderID != "" {
			if err := repo.SetOrderError(ctx, record.ID, orderID, reasonText); err != nil {
				return err
			}
		}
		moved, err := repo.TransitionState(ctx, record.ID, []enums.CheckoutState{enums.CheckoutStatePaymentInFlight}, enums.CheckoutStateFailed, map[string]any{
			"failure_reason": reasonText,
		})
		if err != nil {
			return err
		}
		if !moved {
			return nil
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCheckoutPaymentFailed,
			AggregateType: enums.AggregateCheckoutSession,
			AggregateID:   record.ID.String(),
			Actor:         buyer(record.UserID),
			Data: payloads.CheckoutPaymentFailedEvent{
				SessionID:     record.ID.String(),
				UserID:        record.UserID,
				PaymentMethod: method,
				Reason:        reason,
				UnpaidOrders:  unpaid,
			},
		})
	})
	if err != nil {
		s.logg.Error(logCtx, "checkout.payment.fail_record_failed", err)
	}

	s.metrics.Transition(enums.CheckoutStatePaymentInFlight.String(), enums.CheckoutStateFailed.String())
	s.metrics.Payment(method.String(), "failed")
	s.logg.Warn(logCtx, "checkout.payment.failed")
	return cause
}

func inUPIFlight(record *models.CheckoutSession) bool {
	return record.State == enums.CheckoutStatePaymentInFlight &&
		record.PaymentMethod != nil && *record.PaymentMethod == enums.PaymentMethodUPI
}

func requireUPIOrder(record *models.CheckoutSession, orderID string) (*models.CheckoutSessionOrder, error) {
	if !inUPIFlight(record) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "no upi payment in progress").
			WithDetails(map[string]any{"state": record.State})
	}
	order := findOrder(record, orderID)
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not part of this checkout")
	}
	if order.IsPaid() {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order already paid")
	}
	return order, nil
}
