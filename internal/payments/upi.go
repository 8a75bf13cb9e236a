package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lokrise/checkout/pkg/enums"
	pkgerrors "github.com/lokrise/checkout/pkg/errors"
	"github.com/lokrise/checkout/pkg/logger"
	"github.com/lokrise/checkout/pkg/marketplace"
	"github.com/lokrise/checkout/pkg/redis"
)

const defaultUPISessionTTL = 15 * time.Minute

var upiIDPattern = regexp.MustCompile(`^[a-zA-Z0-9.\-_]{2,256}@[a-zA-Z]{2,64}$`)

// PaymentSession is the in-progress UPI payment of one order.
type PaymentSession struct {
	SessionID      string          `json:"sessionId"`
	OrderID        string          `json:"orderId"`
	SellerID       string          `json:"sellerId"`
	QRCode         string          `json:"qrCode"`
	TransactionRef string          `json:"transactionRef"`
	Amount         decimal.Decimal `json:"amount"`
	EnteredAmount  *string         `json:"enteredAmount,omitempty"`
	AmountError    string          `json:"amountError,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

type UPIBackend interface {
	GetProduct(ctx context.Context, productID string) (*marketplace.Product, error)
	InitiateUPI(ctx context.Context, req marketplace.UPIInitiateRequest) (*marketplace.UPIInitiateResponse, error)
	VerifyUPI(ctx context.Context, req marketplace.UPIVerifyRequest) (*marketplace.PaymentResult, error)
}

type upiStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	UPISessionKey(sessionID, orderID string) string
}

type UPIProcessorParams struct {
	Backend UPIBackend
	Store   upiStore
	TTL     time.Duration
	Logger  *logger.Logger
	Now     func() time.Time
}

// UPIProcessor drives the QR → amount → manual verification flow.
type UPIProcessor struct {
	backend UPIBackend
	store   upiStore
	ttl     time.Duration
	logg    *logger.Logger
	now     func() time.Time
}

func NewUPIProcessor(params UPIProcessorParams) (*UPIProcessor, error) {
	if params.Backend == nil {
		return nil, fmt.Errorf("upi backend required")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("upi session store required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultUPISessionTTL
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &UPIProcessor{backend: params.Backend, store: params.Store, ttl: ttl, logg: logg, now: now}, nil
}

// Initiate returns the payment session of an order, requesting a QR from the backend only
// when none is stored yet. The payee is the seller of the order's first product.
func (p *UPIProcessor) Initiate(ctx context.Context, sessionID string, due OrderDue) (*PaymentSession, error) {
	existing, err := p.Session(ctx, sessionID, due.OrderID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	product, err := p.backend.GetProduct(ctx, due.FirstProductID)
	if err != nil {
		return nil, Classify(err, enums.PaymentFailureRejected)
	}
	sellerID := product.Seller.ID
	if sellerID == "" {
		sellerID = due.SellerID
	}

	description := "Lokrise order"
	if due.OrderNumber != "" {
		description = "Lokrise order " + due.OrderNumber
	}
	resp, err := p.backend.InitiateUPI(ctx, marketplace.UPIInitiateRequest{
		SellerID:    sellerID,
		Amount:      amountOf(due),
		OrderID:     due.OrderID,
		Description: description,
	})
	if err != nil {
		return nil, Classify(err, enums.PaymentFailureRejected)
	}
	if resp == nil || !resp.Success || resp.QRCode == "" || resp.TransactionRef == "" {
		return nil, Failure(enums.PaymentFailureRejected, nil)
	}

	session := &PaymentSession{
		SessionID:      sessionID,
		OrderID:        due.OrderID,
		SellerID:       sellerID,
		QRCode:         resp.QRCode,
		TransactionRef: resp.TransactionRef,
		Amount:         due.Amount.Round(2),
		CreatedAt:      p.now().UTC(),
	}
	if err := p.save(ctx, session); err != nil {
		return nil, err
	}
	p.logg.Info(p.logg.WithField(ctx, "order_id", due.OrderID), "payment.upi.initiated")
	return session, nil
}

// EnterAmount checks the amount the buyer typed against the order amount. A mismatch is
// recorded on the session and returned as a validation error; the QR stays valid.
func (p *UPIProcessor) EnterAmount(ctx context.Context, sessionID, orderID string, amount decimal.Decimal) (*PaymentSession, error) {
	session, err := p.require(ctx, sessionID, orderID)
	if err != nil {
		return nil, err
	}
	entered := amount.StringFixed(2)
	session.EnteredAmount = &entered

	var mismatch error
	if amount.Round(2).Equal(session.Amount) {
		session.AmountError = ""
	} else {
		session.AmountError = fmt.Sprintf("amount must be exactly %s", session.Amount.StringFixed(2))
		mismatch = pkgerrors.New(pkgerrors.CodeValidation, session.AmountError).
			WithDetails(map[string]any{"amount": session.Amount.StringFixed(2), "entered": entered})
	}
	if err := p.save(ctx, session); err != nil {
		return nil, err
	}
	return session, mismatch
}

// Verify asks the backend to confirm the transfer. The amount is locked to the order total,
// so verification needs no prior EnterAmount; only a recorded mismatch blocks it. On success
// the payment session is discarded; on failure it is kept so the buyer can retry with the same QR.
func (p *UPIProcessor) Verify(ctx context.Context, sessionID, orderID, upiID string) error {
	upiID = strings.TrimSpace(upiID)
	if !upiIDPattern.MatchString(upiID) {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid upi id")
	}
	session, err := p.require(ctx, sessionID, orderID)
	if err != nil {
		return err
	}
	if session.AmountError != "" {
		return pkgerrors.New(pkgerrors.CodeValidation, session.AmountError).
			WithDetails(map[string]any{"amount": session.Amount.StringFixed(2)})
	}

	logCtx := p.logg.WithField(ctx, "order_id", orderID)
	result, err := p.backend.VerifyUPI(ctx, marketplace.UPIVerifyRequest{
		TransactionRef: session.TransactionRef,
		OrderID:        orderID,
		UPIID:          upiID,
	})
	if err != nil {
		p.logg.Warn(logCtx, "payment.upi.verify_failed")
		return Classify(err, enums.PaymentFailureVerificationFailed)
	}
	if result == nil || !result.Success {
		p.logg.Warn(logCtx, "payment.upi.not_verified")
		return Failure(enums.PaymentFailureVerificationFailed, nil)
	}

	if err := p.Discard(ctx, sessionID, orderID); err != nil {
		p.logg.Error(logCtx, "payment.upi.discard_failed", err)
	}
	p.logg.Info(logCtx, "payment.upi.verified")
	return nil
}

// Session returns the stored payment session, or nil when there is none.
func (p *UPIProcessor) Session(ctx context.Context, sessionID, orderID string) (*PaymentSession, error) {
	raw, err := p.store.Get(ctx, p.store.UPISessionKey(sessionID, orderID))
	if err != nil {
		if errors.Is(err, redis.ErrNil) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load upi session")
	}
	var session PaymentSession
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode upi session")
	}
	return &session, nil
}

func (p *UPIProcessor) Discard(ctx context.Context, sessionID, orderID string) error {
	return p.store.Del(ctx, p.store.UPISessionKey(sessionID, orderID))
}

func (p *UPIProcessor) require(ctx context.Context, sessionID, orderID string) (*PaymentSession, error) {
	session, err := p.Session(ctx, sessionID, orderID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "upi payment not initiated for order")
	}
	return session, nil
}

func (p *UPIProcessor) save(ctx context.Context, session *PaymentSession) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode upi session")
	}
	if err := p.store.Set(ctx, p.store.UPISessionKey(session.SessionID, session.OrderID), payload, p.ttl); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save upi session")
	}
	return nil
}
