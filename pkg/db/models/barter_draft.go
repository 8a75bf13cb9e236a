package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/lokrise/checkout/pkg/enums"
)

// BarterDraft holds the barter wizard of a checkout session.
type BarterDraft struct {
	ID             uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	SessionID      uuid.UUID             `gorm:"column:session_id;type:uuid;not null;uniqueIndex"`
	OrderID        string                `gorm:"column:order_id;not null"`
	OrderTotal     decimal.Decimal       `gorm:"column:order_total;type:numeric(12,2);not null"`
	State          enums.BarterState     `gorm:"column:state;not null"`
	Title          string                `gorm:"column:title"`
	Category       enums.BarterCategory  `gorm:"column:category"`
	Description    string                `gorm:"column:description"`
	EstimatedValue decimal.Decimal       `gorm:"column:estimated_value;type:numeric(12,2);not null;default:0"`
	TopUpAmount    decimal.Decimal       `gorm:"column:top_up_amount;type:numeric(12,2);not null;default:0"`
	ExchangeMethod *enums.ExchangeMethod `gorm:"column:exchange_method"`
	ProposedDate   *time.Time            `gorm:"column:proposed_date"`
	LastError      *string               `gorm:"column:last_error"`
	ProposalID     *string               `gorm:"column:proposal_id"`
	SubmittedAt    *time.Time            `gorm:"column:submitted_at"`
	CreatedAt      time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (BarterDraft) TableName() string { return "barter_drafts" }

func (d *BarterDraft) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
