package barter

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lokrise/checkout/pkg/db/models"
)

// Repository persists barter drafts, one per checkout session.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindBySession(ctx context.Context, sessionID uuid.UUID) (*models.BarterDraft, error)
	Create(ctx context.Context, draft *models.BarterDraft) error
	Save(ctx context.Context, draft *models.BarterDraft) error
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

// FindBySession returns nil when the session has no draft yet.
func (r *repository) FindBySession(ctx context.Context, sessionID uuid.UUID) (*models.BarterDraft, error) {
	var draft models.BarterDraft
	err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&draft).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &draft, nil
}

func (r *repository) Create(ctx context.Context, draft *models.BarterDraft) error {
	return r.db.WithContext(ctx).Create(draft).Error
}

func (r *repository) Save(ctx context.Context, draft *models.BarterDraft) error {
	return r.db.WithContext(ctx).Save(draft).Error
}
