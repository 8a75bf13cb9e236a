package outbox

import (
	"context"
	"errors"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lokrise/checkout/pkg/db/models"
	"github.com/lokrise/checkout/pkg/enums"
)

const maxDLQErrorLen = 1024

type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	switch {
	case tx == nil:
		return errors.New("dlq insert: transaction required")
	case entry.EventID == uuid.Nil:
		return errors.New("dlq insert: event id required")
	}
	if msg := entry.ErrorMessage; msg != nil {
		short := truncateDLQError(*msg)
		entry.ErrorMessage = &short
	}
	return tx.Create(&entry).Error
}

// List returns the newest parked events, optionally narrowed to one event type.
func (r *DLQRepository) List(ctx context.Context, eventType enums.OutboxEventType, limit int) ([]models.OutboxDLQ, error) {
	if limit <= 0 {
		limit = 50
	}
	query := r.db.WithContext(ctx).Order("failed_at DESC").Limit(limit)
	if eventType != "" {
		query = query.Where("event_type = ?", eventType)
	}
	var rows []models.OutboxDLQ
	err := query.Find(&rows).Error
	return rows, err
}

// Requeue makes a parked event publishable again and drops its DLQ entry.
// It reports false when no entry exists for eventID.
func (r *DLQRepository) Requeue(ctx context.Context, eventID uuid.UUID) (bool, error) {
	found := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("event_id = ?", eventID).Delete(&models.OutboxDLQ{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		found = true
		return tx.Model(&models.OutboxEvent{}).
			Where("id = ? AND published_at IS NULL", eventID).
			Updates(map[string]any{
				"attempt_count":   0,
				"next_attempt_at": nil,
			}).Error
	})
	return found, err
}

// truncateDLQError cuts to maxDLQErrorLen bytes without splitting a rune.
func truncateDLQError(message string) string {
	if len(message) <= maxDLQErrorLen {
		return message
	}
	cut := maxDLQErrorLen
	for cut > 0 && !utf8.RuneStart(message[cut]) {
		cut--
	}
	return message[:cut]
}
