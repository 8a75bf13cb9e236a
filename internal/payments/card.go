package payments

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/lokrise/checkout/pkg/enums"
	pkgerrors "github.com/lokrise/checkout/pkg/errors"
	"github.com/lokrise/checkout/pkg/logger"
	"github.com/lokrise/checkout/pkg/marketplace"
)

var (
	digitsOnly  = regexp.MustCompile(`^[0-9]+$`)
	expiryShape = regexp.MustCompile(`^([0-9]{2})/([0-9]{2})$`)
)

// Card is the raw card form as submitted by the buyer.
type Card struct {
	Number     string `json:"cardNumber" validate:"required"`
	HolderName string `json:"cardHolderName" validate:"required"`
	Expiry     string `json:"expiry" validate:"required"`
	CVV        string `json:"cvv" validate:"required"`
}

// ParsedCard is a card that passed format checks. Its fields are unexported and it
// formats as a masked value, so it cannot end up in logs by accident.
type ParsedCard struct {
	number string
	holder string
	month  string
	year   string
	cvv    string
}

func (c ParsedCard) String() string {
	if len(c.number) < 4 {
		return "card(****)"
	}
	return "card(****" + c.number[len(c.number)-4:] + ")"
}

func (c ParsedCard) GoString() string { return c.String() }

// ParseCard enforces formatting only: digits, length caps and the MM/YY shape.
// Spaces and dashes in the number are dropped. The two-digit year is prefixed with "20".
func ParseCard(card Card) (ParsedCard, error) {
	number := strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(card.Number))
	holder := strings.TrimSpace(card.HolderName)
	cvv := strings.TrimSpace(card.CVV)

	fieldErrors := map[string]string{}
	if !digitsOnly.MatchString(number) || len(number) < 12 || len(number) > 19 {
		fieldErrors["cardNumber"] = "must be 12 to 19 digits"
	}
	if holder == "" {
		fieldErrors["cardHolderName"] = "is required"
	}
	if !digitsOnly.MatchString(cvv) || len(cvv) < 3 || len(cvv) > 4 {
		fieldErrors["cvv"] = "must be 3 or 4 digits"
	}
	match := expiryShape.FindStringSubmatch(strings.TrimSpace(card.Expiry))
	if match == nil {
		fieldErrors["expiry"] = "must use MM/YY"
	}
	if len(fieldErrors) > 0 {
		return ParsedCard{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid card details").WithDetails(fieldErrors)
	}

	return ParsedCard{
		number: number,
		holder: holder,
		month:  match[1],
		year:   "20" + match[2],
		cvv:    cvv,
	}, nil
}

type CardBackend interface {
	ProcessCard(ctx context.Context, req marketplace.CardPaymentRequest) (*marketplace.PaymentResult, error)
}

// CardProcessor charges a parsed card for one order at a time.
type CardProcessor struct {
	backend CardBackend
	logg    *logger.Logger
}

func NewCardProcessor(backend CardBackend, logg *logger.Logger) (*CardProcessor, error) {
	if backend == nil {
		return nil, fmt.Errorf("card backend required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &CardProcessor{backend: backend, logg: logg}, nil
}

// Charge sends the card for one order. Decline text from the backend is never surfaced.
func (p *CardProcessor) Charge(ctx context.Context, due OrderDue, card ParsedCard) error {
	result, err := p.backend.ProcessCard(ctx, marketplace.CardPaymentRequest{
		OrderID:        due.OrderID,
		CardNumber:     card.number,
		CardHolderName: card.holder,
		ExpiryMonth:    card.month,
		ExpiryYear:     card.year,
		CVV:            card.cvv,
		Amount:         amountOf(due),
	})
	logCtx := p.logg.WithField(ctx, "order_id", due.OrderID)
	if err != nil {
		p.logg.Warn(logCtx, "payment.card.failed")
		return Classify(errorWithoutBody(err), enums.PaymentFailureDeclined)
	}
	if result == nil || !result.Success {
		p.logg.Warn(logCtx, "payment.card.declined")
		return Failure(enums.PaymentFailureDeclined, nil)
	}
	p.logg.Info(logCtx, "payment.card.succeeded")
	return nil
}

// errorWithoutBody keeps the status of a backend rejection but drops its message, which
// may carry card-specific decline text.
func errorWithoutBody(err error) error {
	if apiErr, ok := marketplace.AsAPIError(err); ok {
		return &marketplace.APIError{Operation: apiErr.Operation, Status: apiErr.Status}
	}
	return err
}
