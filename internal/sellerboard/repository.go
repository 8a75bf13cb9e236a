package sellerboard

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lokrise/checkout/pkg/db"
	"github.com/lokrise/checkout/pkg/db/models"
	"github.com/lokrise/checkout/pkg/enums"
	pkgerrors "github.com/lokrise/checkout/pkg/errors"
)

// Repository persists the pending-mutation overlay.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreatePending(ctx context.Context, mutation *models.StatusMutation, staleBefore time.Time) error
	Resolve(ctx context.Context, id uuid.UUID, state enums.StatusMutationState, message *string, at time.Time) error
	PendingForOrders(ctx context.Context, orderIDs []string, since time.Time) ([]models.StatusMutation, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(conn *gorm.DB) Repository {
	return &repository{db: conn}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

const staleMutationError = "pending mutation expired before it was resolved"

// CreatePending records a pending mutation. Pending rows of the same order created before
// staleBefore were left behind by a failed resolve and are rolled back first; a zero
// staleBefore keeps them. The partial unique index admits one pending row per order, so
// a live one makes the insert a conflict.
func (r *repository) CreatePending(ctx context.Context, mutation *models.StatusMutation, staleBefore time.Time) error {
	mutation.State = enums.StatusMutationPending
	conn := r.db.WithContext(ctx)
	if !staleBefore.IsZero() {
		msg := staleMutationError
		at := mutation.CreatedAt
		if at.IsZero() {
			at = time.Now().UTC()
		}
		err := conn.Model(&models.StatusMutation{}).
			Where("order_id = ? AND state = ? AND created_at < ?", mutation.OrderID, enums.StatusMutationPending, staleBefore).
			Updates(map[string]any{
				"state":       enums.StatusMutationRolledBack,
				"error":       &msg,
				"resolved_at": at,
			}).Error
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "expire stale status mutations")
		}
	}
	if err := conn.Create(mutation).Error; err != nil {
		if db.IsUniqueViolation(err, "") {
			return pkgerrors.New(pkgerrors.CodeConflict, "a status change for this order is already in progress").
				WithDetails(map[string]any{"orderId": mutation.OrderID}).
				WithRetryable(true)
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record status mutation")
	}
	return nil
}

func (r *repository) Resolve(ctx context.Context, id uuid.UUID, state enums.StatusMutationState, message *string, at time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&models.StatusMutation{}).
		Where("id = ? AND state = ?", id, enums.StatusMutationPending).
		Updates(map[string]any{
			"state":       state,
			"error":       message,
			"resolved_at": at,
		}).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve status mutation")
	}
	return nil
}

// PendingForOrders loads the pending rows of the given orders created at or after since.
func (r *repository) PendingForOrders(ctx context.Context, orderIDs []string, since time.Time) ([]models.StatusMutation, error) {
	if len(orderIDs) == 0 {
		return nil, nil
	}
	query := r.db.WithContext(ctx).
		Where("order_id IN ? AND state = ?", orderIDs, enums.StatusMutationPending)
	if !since.IsZero() {
		query = query.Where("created_at >= ?", since)
	}
	var rows []models.StatusMutation
	err := query.Order("created_at ASC").Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load pending status mutations")
	}
	return rows, nil
}
