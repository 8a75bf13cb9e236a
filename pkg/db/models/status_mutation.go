package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lokrise/checkout/pkg/enums"
)

// PendingMutationIndex enforces one pending status mutation per order.
const PendingMutationIndex = "idx_status_mutations_pending"

// StatusMutation records a seller status change while the backend call is outstanding.
type StatusMutation struct {
	ID         uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	OrderID    string                    `gorm:"column:order_id;not null;index:idx_status_mutations_pending,unique,where:state = 'pending'"`
	SellerID   string                    `gorm:"column:seller_id;not null;index"`
	FromStatus enums.OrderStatus         `gorm:"column:from_status;not null"`
	ToStatus   enums.OrderStatus         `gorm:"column:to_status;not null"`
	Note       string                    `gorm:"column:note"`
	State      enums.StatusMutationState `gorm:"column:state;not null"`
	Error      *string                   `gorm:"column:error"`
	CreatedAt  time.Time                 `gorm:"column:created_at;autoCreateTime"`
	ResolvedAt *time.Time                `gorm:"column:resolved_at"`
}

func (StatusMutation) TableName() string { return "status_mutations" }

func (m *StatusMutation) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
