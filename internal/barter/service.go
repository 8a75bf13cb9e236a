package barter

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lokrise/checkout/internal/payments"
	"github.com/lokrise/checkout/pkg/db/models"
	"github.com/lokrise/checkout/pkg/enums"
	pkgerrors "github.com/lokrise/checkout/pkg/errors"
	"github.com/lokrise/checkout/pkg/logger"
	"github.com/lokrise/checkout/pkg/marketplace"
)

const dateLayout = "2006-01-02"

// Item is the offered item entered in the first wizard step.
type Item struct {
	Title          string               `json:"title"`
	Category       enums.BarterCategory `json:"category"`
	Description    string               `json:"description"`
	EstimatedValue decimal.Decimal      `json:"estimatedValue"`
}

// Exchange carries the optional logistics of the review step.
type Exchange struct {
	Method       *enums.ExchangeMethod `json:"exchangeMethod,omitempty"`
	ProposedDate string                `json:"proposedDate,omitempty"`
}

// Draft is the wizard state as exposed to the buyer.
type Draft struct {
	SessionID      uuid.UUID             `json:"sessionId"`
	OrderID        string                `json:"orderId,omitempty"`
	OrderTotal     decimal.Decimal       `json:"orderTotal"`
	State          enums.BarterState     `json:"state"`
	Item           Item                  `json:"item"`
	TopUpAmount    decimal.Decimal       `json:"topUpAmount"`
	ExchangeMethod *enums.ExchangeMethod `json:"exchangeMethod,omitempty"`
	ProposedDate   string                `json:"proposedDate,omitempty"`
	Balance        enums.BarterBalance   `json:"balance"`
	LastError      *string               `json:"lastError,omitempty"`
	ProposalID     *string               `json:"proposalId,omitempty"`
	SubmittedAt    *time.Time            `json:"submittedAt,omitempty"`
}

type Backend interface {
	SubmitBarter(ctx context.Context, sub marketplace.BarterSubmission) (*marketplace.BarterResult, error)
}

// Service runs the barter wizard of a checkout session.
type Service interface {
	Get(ctx context.Context, sessionID uuid.UUID) (*Draft, error)
	Start(ctx context.Context, sessionID uuid.UUID, orderID string, orderTotal decimal.Decimal) (*Draft, error)
	SetItem(ctx context.Context, sessionID uuid.UUID, item Item) (*Draft, error)
	Review(ctx context.Context, sessionID uuid.UUID) (*Draft, error)
	Edit(ctx context.Context, sessionID uuid.UUID) (*Draft, error)
	SetTopUp(ctx context.Context, sessionID uuid.UUID, amount decimal.Decimal) (*Draft, error)
	SetExchange(ctx context.Context, sessionID uuid.UUID, exchange Exchange) (*Draft, error)
	Submit(ctx context.Context, sessionID uuid.UUID, photos []marketplace.BarterPhoto) (*Draft, error)
}

type ServiceParams struct {
	Repository    Repository
	Backend       Backend
	MaxPhotos     int
	MaxPhotoBytes int64
	Logger        *logger.Logger
	Now           func() time.Time
}

type service struct {
	repo          Repository
	backend       Backend
	maxPhotos     int
	maxPhotoBytes int64
	logg          *logger.Logger
	now           func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("barter repository required")
	}
	if params.Backend == nil {
		return nil, fmt.Errorf("barter backend required")
	}
	maxPhotos := params.MaxPhotos
	if maxPhotos <= 0 {
		maxPhotos = 5
	}
	maxBytes := params.MaxPhotoBytes
	if maxBytes <= 0 {
		maxBytes = 5 << 20
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
		repo:          params.Repository,
		backend:       params.Backend,
		maxPhotos:     maxPhotos,
		maxPhotoBytes: maxBytes,
		logg:          logg,
		now:           now,
	}, nil
}

// Get returns the draft, or an idle placeholder when the wizard was never started.
func (s *service) Get(ctx context.Context, sessionID uuid.UUID) (*Draft, error) {
	draft, err := s.repo.FindBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if draft == nil {
		return &Draft{SessionID: sessionID, State: enums.BarterStateIdle}, nil
	}
	return toDraft(draft), nil
}

// Start opens the wizard for the single order of a session. Starting again is a no-op.
func (s *service) Start(ctx context.Context, sessionID uuid.UUID, orderID string, orderTotal decimal.Decimal) (*Draft, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	draft, err := s.repo.FindBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if draft != nil {
		if draft.OrderID != orderID {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "barter draft belongs to another order")
		}
		if draft.State == enums.BarterStateIdle {
			draft.State = enums.BarterStateAddingItem
			if err := s.repo.Save(ctx, draft); err != nil {
				return nil, err
			}
		}
		return toDraft(draft), nil
	}

	draft = &models.BarterDraft{
		SessionID:      sessionID,
		OrderID:        orderID,
		OrderTotal:     orderTotal,
		State:          enums.BarterStateAddingItem,
		EstimatedValue: decimal.Zero,
		TopUpAmount:    decimal.Zero,
	}
	if err := s.repo.Create(ctx, draft); err != nil {
		return nil, err
	}
	return toDraft(draft), nil
}

func (s *service) SetItem(ctx context.Context, sessionID uuid.UUID, item Item) (*Draft, error) {
	return s.mutate(ctx, sessionID, enums.BarterStateAddingItem, func(draft *models.BarterDraft) error {
		if item.Category != "" && !item.Category.IsValid() {
			return pkgerrors.New(pkgerrors.CodeValidation, "invalid barter category")
		}
		if item.EstimatedValue.IsNegative() {
			return pkgerrors.New(pkgerrors.CodeValidation, "estimated value must not be negative")
		}
		draft.Title = strings.TrimSpace(item.Title)
		draft.Category = item.Category
		draft.Description = strings.TrimSpace(item.Description)
		draft.EstimatedValue = item.EstimatedValue
		return nil
	})
}

// Review moves to the review step once every item field is filled.
func (s *service) Review(ctx context.Context, sessionID uuid.UUID) (*Draft, error) {
	return s.mutate(ctx, sessionID, enums.BarterStateReviewing, func(draft *models.BarterDraft) error {
		missing := []string{}
		if draft.Title == "" {
			missing = append(missing, "title")
		}
		if draft.Category == "" {
			missing = append(missing, "category")
		}
		if draft.Description == "" {
			missing = append(missing, "description")
		}
		if !draft.EstimatedValue.IsPositive() {
			missing = append(missing, "estimatedValue")
		}
		if len(missing) > 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "barter item incomplete").
				WithDetails(map[string]any{"missing": missing})
		}
		return nil
	})
}

func (s *service) Edit(ctx context.Context, sessionID uuid.UUID) (*Draft, error) {
	return s.mutate(ctx, sessionID, enums.BarterStateAddingItem, func(*models.BarterDraft) error { return nil })
}

func (s *service) SetTopUp(ctx context.Context, sessionID uuid.UUID, amount decimal.Decimal) (*Draft, error) {
	return s.mutate(ctx, sessionID, enums.BarterStateReviewing, func(draft *models.BarterDraft) error {
		if !validTopUp(amount) {
			return pkgerrors.New(pkgerrors.CodeValidation, "top-up must be between 0 and 5000 in steps of 100")
		}
		draft.TopUpAmount = amount
		return nil
	})
}

func (s *service) SetExchange(ctx context.Context, sessionID uuid.UUID, exchange Exchange) (*Draft, error) {
	return s.mutate(ctx, sessionID, enums.BarterStateReviewing, func(draft *models.BarterDraft) error {
		if exchange.Method != nil && !exchange.Method.IsValid() {
			return pkgerrors.New(pkgerrors.CodeValidation, "invalid exchange method")
		}
		var proposed *time.Time
		if raw := strings.TrimSpace(exchange.ProposedDate); raw != "" {
			parsed, err := time.Parse(dateLayout, raw)
			if err != nil {
				return pkgerrors.New(pkgerrors.CodeValidation, "proposed date must use YYYY-MM-DD")
			}
			today := s.now().UTC().Truncate(24 * time.Hour)
			if parsed.Before(today) {
				return pkgerrors.New(pkgerrors.CodeValidation, "proposed date must not be in the past")
			}
			proposed = &parsed
		}
		draft.ExchangeMethod = exchange.Method
		draft.ProposedDate = proposed
		return nil
	})
}

// Submit sends the reviewed proposal with its photos. A failed submission keeps the draft
// in review with the error recorded.
func (s *service) Submit(ctx context.Context, sessionID uuid.UUID, photos []marketplace.BarterPhoto) (*Draft, error) {
	draft, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !canMove(draft.State, enums.BarterStateSubmitted) {
		return nil, stateConflict(draft.State, enums.BarterStateSubmitted)
	}
	if err := s.checkPhotos(photos); err != nil {
		return nil, err
	}

	sub := marketplace.BarterSubmission{
		OrderID:        draft.OrderID,
		Title:          draft.Title,
		Category:       draft.Category,
		Description:    draft.Description,
		EstimatedValue: draft.EstimatedValue,
		TopUpAmount:    draft.TopUpAmount,
		Photos:         photos,
	}
	if draft.ExchangeMethod != nil {
		sub.ExchangeMethod = draft.ExchangeMethod.String()
	}
	if draft.ProposedDate != nil {
		sub.ProposedDate = draft.ProposedDate.Format(dateLayout)
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{"order_id": draft.OrderID, "photos": len(photos)})
	result, err := s.backend.SubmitBarter(ctx, sub)
	if err == nil && (result == nil || !result.Success) {
		err = payments.Failure(enums.PaymentFailureRejected, nil)
	}
	if err != nil {
		failure := payments.Classify(err, enums.PaymentFailureRejected)
		msg := "barter proposal could not be submitted"
		if result != nil && result.Message != "" {
			msg = result.Message
		} else if apiErr, ok := marketplace.AsAPIError(err); ok && apiErr.IsClientError() && apiErr.Message != "" {
			msg = apiErr.Message
		}
		draft.LastError = &msg
		if saveErr := s.repo.Save(ctx, draft); saveErr != nil {
			s.logg.Error(logCtx, "barter.save_failed", saveErr)
		}
		s.logg.Warn(logCtx, "barter.submit_failed")
		return toDraft(draft), failure
	}

	now := s.now().UTC()
	draft.State = enums.BarterStateSubmitted
	draft.LastError = nil
	draft.SubmittedAt = &now
	if result.BarterProposal != nil && result.BarterProposal.ID != "" {
		draft.ProposalID = &result.BarterProposal.ID
	}
	if err := s.repo.Save(ctx, draft); err != nil {
		return nil, err
	}
	s.logg.Info(logCtx, "barter.submitted")
	return toDraft(draft), nil
}

func (s *service) checkPhotos(photos []marketplace.BarterPhoto) error {
	if len(photos) > s.maxPhotos {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("at most %d photos are allowed", s.maxPhotos))
	}
	for i, photo := range photos {
		if int64(len(photo.Data)) > s.maxPhotoBytes {
			return pkgerrors.New(pkgerrors.CodeValidation, "photo exceeds the size limit").
				WithDetails(map[string]any{"index": i, "maxBytes": s.maxPhotoBytes})
		}
		contentType := photo.ContentType
		if contentType == "" {
			contentType = http.DetectContentType(photo.Data)
		}
		if !strings.HasPrefix(contentType, "image/") {
			return pkgerrors.New(pkgerrors.CodeValidation, "photos must be images").
				WithDetails(map[string]any{"index": i})
		}
	}
	return nil
}

func (s *service) mutate(ctx context.Context, sessionID uuid.UUID, to enums.BarterState, apply func(*models.BarterDraft) error) (*Draft, error) {
	draft, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !canMove(draft.State, to) {
		return nil, stateConflict(draft.State, to)
	}
	if err := apply(draft); err != nil {
		return nil, err
	}
	draft.State = to
	if err := s.repo.Save(ctx, draft); err != nil {
		return nil, err
	}
	return toDraft(draft), nil
}

func (s *service) load(ctx context.Context, sessionID uuid.UUID) (*models.BarterDraft, error) {
	draft, err := s.repo.FindBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if draft == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "barter not started")
	}
	return draft, nil
}

func stateConflict(from, to enums.BarterState) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "barter step not allowed").
		WithDetails(map[string]any{"state": from, "requested": to})
}

func toDraft(m *models.BarterDraft) *Draft {
	d := &Draft{
		SessionID:  m.SessionID,
		OrderID:    m.OrderID,
		OrderTotal: m.OrderTotal,
		State:      m.State,
		Item: Item{
			Title:          m.Title,
			Category:       m.Category,
			Description:    m.Description,
			EstimatedValue: m.EstimatedValue,
		},
		TopUpAmount:    m.TopUpAmount,
		ExchangeMethod: m.ExchangeMethod,
		Balance:        Classify(m.EstimatedValue, m.TopUpAmount, m.OrderTotal),
		LastError:      m.LastError,
		ProposalID:     m.ProposalID,
		SubmittedAt:    m.SubmittedAt,
	}
	if m.ProposedDate != nil {
		d.ProposedDate = m.ProposedDate.Format(dateLayout)
	}
	return d
}
