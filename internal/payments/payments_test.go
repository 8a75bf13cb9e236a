package payments

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/lokrise/checkout/pkg/enums"
	pkgerrors "github.com/lokrise/checkout/pkg/errors"
	"github.com/lokrise/checkout/pkg/marketplace"
	"github.com/lokrise/checkout/pkg/redis"
)

type fakeBackend struct {
	cardReqs     []marketplace.CardPaymentRequest
	cardResult   *marketplace.PaymentResult
	cardErr      error
	initiateReqs []marketplace.UPIInitiateRequest
	verifyReqs   []marketplace.UPIVerifyRequest
	verifyResult *marketplace.PaymentResult
	codReqs      []marketplace.CODRequest
	codErr       error
}

func (f *fakeBackend) ProcessCard(_ context.Context, req marketplace.CardPaymentRequest) (*marketplace.PaymentResult, error) {
	f.cardReqs = append(f.cardReqs, req)
	return f.cardResult, f.cardErr
}

func (f *fakeBackend) GetProduct(_ context.Context, id string) (*marketplace.Product, error) {
	return &marketplace.Product{ID: id, Seller: marketplace.Ref{ID: "seller-of-" + id}}, nil
}

func (f *fakeBackend) InitiateUPI(_ context.Context, req marketplace.UPIInitiateRequest) (*marketplace.UPIInitiateResponse, error) {
	f.initiateReqs = append(f.initiateReqs, req)
	return &marketplace.UPIInitiateResponse{Success: true, QRCode: "upi://pay?pa=x", TransactionRef: fmt.Sprintf("TX%d", len(f.initiateReqs))}, nil
}

func (f *fakeBackend) VerifyUPI(_ context.Context, req marketplace.UPIVerifyRequest) (*marketplace.PaymentResult, error) {
	f.verifyReqs = append(f.verifyReqs, req)
	return f.verifyResult, nil
}

func (f *fakeBackend) ProcessCOD(_ context.Context, req marketplace.CODRequest) (*marketplace.PaymentResult, error) {
	f.codReqs = append(f.codReqs, req)
	if f.codErr != nil {
		return nil, f.codErr
	}
	return &marketplace.PaymentResult{Success: true}, nil
}

func validCard() Card {
	return Card{Number: "4111 1111 1111 1111", HolderName: "Asha Rao", Expiry: "07/29", CVV: "123"}
}

func TestParseCardNormalizes(t *testing.T) {
	parsed, err := ParseCard(validCard())
	require.NoError(t, err)
	require.Equal(t, "4111111111111111", parsed.number)
	require.Equal(t, "07", parsed.month)
	require.Equal(t, "2029", parsed.year)
	require.Equal(t, "card(****1111)", fmt.Sprintf("%v", parsed))
	require.NotContains(t, fmt.Sprintf("%#v", parsed), "4111")
}

func TestParseCardRejectsFormatting(t *testing.T) {
	cases := []struct {
		name  string
		card  Card
		field string
	}{
		{name: "letters", card: Card{Number: "4111abcd11111111", HolderName: "A", Expiry: "01/30", CVV: "123"}, field: "cardNumber"},
		{name: "too short", card: Card{Number: "41111111111", HolderName: "A", Expiry: "01/30", CVV: "123"}, field: "cardNumber"},
		{name: "too long", card: Card{Number: "41111111111111111111", HolderName: "A", Expiry: "01/30", CVV: "123"}, field: "cardNumber"},
		{name: "cvv", card: Card{Number: "411111111111", HolderName: "A", Expiry: "01/30", CVV: "12"}, field: "cvv"},
		{name: "expiry shape", card: Card{Number: "411111111111", HolderName: "A", Expiry: "1/2030", CVV: "123"}, field: "expiry"},
		{name: "holder", card: Card{Number: "411111111111", Expiry: "01/30", CVV: "1234"}, field: "cardHolderName"},
	}
	for _, tc := range cases {
		_, err := ParseCard(tc.card)
		typed := pkgerrors.As(err)
		if typed == nil || typed.Code() != pkgerrors.CodeValidation {
			t.Fatalf("%s: expected validation error, got %v", tc.name, err)
		}
		details, _ := typed.Details().(map[string]string)
		if _, ok := details[tc.field]; !ok {
			t.Fatalf("%s: expected field %s in details %v", tc.name, tc.field, details)
		}
	}
}

func TestCardChargeDeclineIsGeneric(t *testing.T) {
	backend := &fakeBackend{cardErr: &marketplace.APIError{Operation: "card_process", Status: 402, Message: "insufficient funds on card 4111"}}
	proc, err := NewCardProcessor(backend, nil)
	require.NoError(t, err)
	parsed, err := ParseCard(validCard())
	require.NoError(t, err)

	err = proc.Charge(context.Background(), OrderDue{OrderID: "o-1", Amount: decimal.RequireFromString("808.00")}, parsed)
	reason, ok := FailureReason(err)
	require.True(t, ok)
	require.Equal(t, enums.PaymentFailureDeclined, reason)
	require.False(t, strings.Contains(err.Error(), "insufficient"))
	require.True(t, pkgerrors.Retryable(err))

	require.Len(t, backend.cardReqs, 1)
	require.Equal(t, "2029", backend.cardReqs[0].ExpiryYear)
	require.Equal(t, 808.0, backend.cardReqs[0].Amount)
}

func TestCardChargeUnavailable(t *testing.T) {
	backend := &fakeBackend{cardErr: pkgerrors.New(pkgerrors.CodeDependency, "marketplace timed out")}
	proc, err := NewCardProcessor(backend, nil)
	require.NoError(t, err)
	parsed, err := ParseCard(validCard())
	require.NoError(t, err)

	err = proc.Charge(context.Background(), OrderDue{OrderID: "o-1", Amount: decimal.NewFromInt(10)}, parsed)
	reason, ok := FailureReason(err)
	require.True(t, ok)
	require.Equal(t, enums.PaymentFailureUnavailable, reason)
}

func newUPIProcessor(t *testing.T, backend *fakeBackend) (*UPIProcessor, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := redis.NewWithClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	proc, err := NewUPIProcessor(UPIProcessorParams{Backend: backend, Store: store})
	require.NoError(t, err)
	return proc, mr
}

func TestUPIAmountLockKeepsQR(t *testing.T) {
	backend := &fakeBackend{}
	proc, _ := newUPIProcessor(t, backend)
	ctx := context.Background()
	due := OrderDue{OrderID: "o-1", OrderNumber: "LK-1", FirstProductID: "p-1", Amount: decimal.RequireFromString("499.00")}

	session, err := proc.Initiate(ctx, "s-1", due)
	require.NoError(t, err)
	require.Equal(t, "seller-of-p-1", backend.initiateReqs[0].SellerID)
	require.Equal(t, "Lokrise order LK-1", backend.initiateReqs[0].Description)

	locked, err := proc.EnterAmount(ctx, "s-1", "o-1", decimal.RequireFromString("500.00"))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	require.NotEmpty(t, locked.AmountError)
	require.Equal(t, session.QRCode, locked.QRCode)
	require.Equal(t, session.TransactionRef, locked.TransactionRef)

	stored, err := proc.Session(ctx, "s-1", "o-1")
	require.NoError(t, err)
	require.NotEmpty(t, stored.AmountError)
	require.Equal(t, session.TransactionRef, stored.TransactionRef)

	err = proc.Verify(ctx, "s-1", "o-1", "asha@okbank")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	require.Empty(t, backend.verifyReqs)

	cleared, err := proc.EnterAmount(ctx, "s-1", "o-1", decimal.RequireFromString("499"))
	require.NoError(t, err)
	require.Empty(t, cleared.AmountError)
}

func TestUPIInitiateReusesStoredSession(t *testing.T) {
	backend := &fakeBackend{}
	proc, _ := newUPIProcessor(t, backend)
	ctx := context.Background()
	due := OrderDue{OrderID: "o-1", FirstProductID: "p-1", Amount: decimal.NewFromInt(100)}

	first, err := proc.Initiate(ctx, "s-1", due)
	require.NoError(t, err)
	second, err := proc.Initiate(ctx, "s-1", due)
	require.NoError(t, err)
	require.Equal(t, first.TransactionRef, second.TransactionRef)
	require.Len(t, backend.initiateReqs, 1)
}

func TestUPIVerifyFailureKeepsSession(t *testing.T) {
	backend := &fakeBackend{verifyResult: &marketplace.PaymentResult{Success: false}}
	proc, _ := newUPIProcessor(t, backend)
	ctx := context.Background()
	due := OrderDue{OrderID: "o-1", FirstProductID: "p-1", Amount: decimal.NewFromInt(100)}

	_, err := proc.Initiate(ctx, "s-1", due)
	require.NoError(t, err)
	_, err = proc.EnterAmount(ctx, "s-1", "o-1", decimal.NewFromInt(100))
	require.NoError(t, err)

	err = proc.Verify(ctx, "s-1", "o-1", "asha@okbank")
	reason, ok := FailureReason(err)
	require.True(t, ok)
	require.Equal(t, enums.PaymentFailureVerificationFailed, reason)
	require.True(t, pkgerrors.Retryable(err))

	kept, err := proc.Session(ctx, "s-1", "o-1")
	require.NoError(t, err)
	require.NotNil(t, kept)

	backend.verifyResult = &marketplace.PaymentResult{Success: true}
	require.NoError(t, proc.Verify(ctx, "s-1", "o-1", "asha@okbank"))
	gone, err := proc.Session(ctx, "s-1", "o-1")
	require.NoError(t, err)
	require.Nil(t, gone)
	require.Equal(t, "TX1", backend.verifyReqs[1].TransactionRef)
}

func TestUPIVerifyWithoutAmountEntryUsesLockedAmount(t *testing.T) {
	backend := &fakeBackend{verifyResult: &marketplace.PaymentResult{Success: true}}
	proc, _ := newUPIProcessor(t, backend)
	ctx := context.Background()
	due := OrderDue{OrderID: "o-1", FirstProductID: "p-1", Amount: decimal.RequireFromString("250.00")}

	session, err := proc.Initiate(ctx, "s-1", due)
	require.NoError(t, err)
	require.Nil(t, session.EnteredAmount)

	require.NoError(t, proc.Verify(ctx, "s-1", "o-1", "asha@okbank"))
	require.Len(t, backend.verifyReqs, 1)
	require.Equal(t, session.TransactionRef, backend.verifyReqs[0].TransactionRef)
	require.Equal(t, "asha@okbank", backend.verifyReqs[0].UPIID)

	gone, err := proc.Session(ctx, "s-1", "o-1")
	require.NoError(t, err)
	require.Nil(t, gone)
}

func TestUPIVerifyRejectsMalformedID(t *testing.T) {
	proc, _ := newUPIProcessor(t, &fakeBackend{})
	err := proc.Verify(context.Background(), "s-1", "o-1", "not-an-upi-id")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestCODConfirm(t *testing.T) {
	backend := &fakeBackend{}
	proc, err := NewCODProcessor(backend, nil)
	require.NoError(t, err)

	require.NoError(t, proc.Confirm(context.Background(), OrderDue{OrderID: "o-9"}))
	require.Equal(t, "o-9", backend.codReqs[0].OrderID)

	backend.codErr = &marketplace.APIError{Operation: "cod_process", Status: 400, Message: "cod not available"}
	err = proc.Confirm(context.Background(), OrderDue{OrderID: "o-9"})
	reason, ok := FailureReason(err)
	require.True(t, ok)
	require.Equal(t, enums.PaymentFailureRejected, reason)
}
