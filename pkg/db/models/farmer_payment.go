package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/farmlink-backend/pkg/enums"
)

// FarmerPayment is the per-order, per-farm amount owed to a farmer.
// Amount + Commission equals the farm's share of the order subtotal.
type FarmerPayment struct {
	ID                 uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID            uuid.UUID       `gorm:"column:order_id;type:uuid;not null"`
	FarmID             uuid.UUID       `gorm:"column:farm_id;type:uuid;not null"`
	FarmerID           uuid.UUID       `gorm:"column:farmer_id;type:uuid;not null;index"`
	Amount             decimal.Decimal `gorm:"column:amount;type:numeric(12,2);not null"`
	Commission         decimal.Decimal `gorm:"column:commission;type:numeric(12,2);not null"`
	CommissionConfigID uuid.UUID       `gorm:"column:commission_config_id;type:uuid;not null"`
	CommissionRate     decimal.Decimal `gorm:"column:commission_rate;type:numeric(6,4);not null"`
	IsPaid             bool            `gorm:"column:is_paid;not null;default:false"`
	PayoutID           *uuid.UUID      `gorm:"column:payout_id;type:uuid"`
	CreatedAt          time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// FarmerPayout settles a batch of farmer payments net of applied referral credit.
// Amount == OriginalAmount + CreditApplied.
type FarmerPayout struct {
	ID                uuid.UUID          `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	FarmerID          uuid.UUID          `gorm:"column:farmer_id;type:uuid;not null;index"`
	Amount            decimal.Decimal    `gorm:"column:amount;type:numeric(12,2);not null"`
	OriginalAmount    decimal.Decimal    `gorm:"column:original_amount;type:numeric(12,2);not null"`
	CreditApplied     decimal.Decimal    `gorm:"column:credit_applied;type:numeric(12,2);not null"`
	CommissionTotal   decimal.Decimal    `gorm:"column:commission_total;type:numeric(12,2);not null"`
	PaymentCount      int                `gorm:"column:payment_count;not null"`
	Status            enums.PayoutStatus `gorm:"column:status;not null"`
	TransferReference *string            `gorm:"column:transfer_reference"`
	FailureReason     *string            `gorm:"column:failure_reason"`
	CompletedAt       *time.Time         `gorm:"column:completed_at"`
	CreatedAt         time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
