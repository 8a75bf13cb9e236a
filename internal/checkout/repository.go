package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lokrise/checkout/pkg/db/models"
	"github.com/lokrise/checkout/pkg/enums"
	pkgerrors "github.com/lokrise/checkout/pkg/errors"
)

// Repository persists checkout sessions and the orders latched to them.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, session *models.CheckoutSession) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.CheckoutSession, error)
	TransitionState(ctx context.Context, id uuid.UUID, from []enums.CheckoutState, to enums.CheckoutState, updates map[string]any) (bool, error)
	InsertOrders(ctx context.Context, orders []models.CheckoutSessionOrder) error
	MarkOrderPaid(ctx context.Context, sessionID uuid.UUID, orderID string, paidAt time.Time) error
	SetOrderError(ctx context.Context, sessionID uuid.UUID, orderID, message string) error
	FindAbandoned(ctx context.Context, cutoff time.Time, limit int) ([]models.CheckoutSession, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, session *models.CheckoutSession) error {
	return r.db.WithContext(ctx).Omit("Orders").Create(session).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.CheckoutSession, error) {
	var session models.CheckoutSession
	err := r.db.WithContext(ctx).
		Preload("Orders", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("id = ?", id).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load checkout session")
	}
	return &session, nil
}

// TransitionState moves the session to `to` only while it is still in one of `from`.
// It reports false when another caller moved the session first.
func (r *repository) TransitionState(ctx context.Context, id uuid.UUID, from []enums.CheckoutState, to enums.CheckoutState, updates map[string]any) (bool, error) {
	values := map[string]any{"state": to, "updated_at": time.Now().UTC()}
	for k, v := range updates {
		values[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.CheckoutSession{}).
		Where("id = ? AND state IN ?", id, from).
		Updates(values)
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "update checkout state")
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) InsertOrders(ctx context.Context, orders []models.CheckoutSessionOrder) error {
	if len(orders) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&orders).Error
}

func (r *repository) MarkOrderPaid(ctx context.Context, sessionID uuid.UUID, orderID string, paidAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.CheckoutSessionOrder{}).
		Where("session_id = ? AND order_id = ?", sessionID, orderID).
		Updates(map[string]any{
			"payment_status": enums.PaymentStatusPaid,
			"paid_at":        paidAt.UTC(),
			"last_error":     nil,
		}).Error
}

func (r *repository) SetOrderError(ctx context.Context, sessionID uuid.UUID, orderID, message string) error {
	return r.db.WithContext(ctx).
		Model(&models.CheckoutSessionOrder{}).
		Where("session_id = ? AND order_id = ?", sessionID, orderID).
		Update("last_error", message).Error
}

// FindAbandoned lists unsettled sessions created before cutoff, oldest first.
func (r *repository) FindAbandoned(ctx context.Context, cutoff time.Time, limit int) ([]models.CheckoutSession, error) {
	if limit <= 0 {
		limit = 100
	}
	var sessions []models.CheckoutSession
	err := r.db.WithContext(ctx).
		Preload("Orders", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("state IN ? AND created_at < ?", expirableStates, cutoff.UTC()).
		Order("created_at ASC").
		Limit(limit).
		Find(&sessions).Error
	return sessions, err
}
