package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/farmlink-backend/pkg/enums"
)

// ReferralInfo holds one user's referral relationship and credit pools.
type ReferralInfo struct {
	UserID                  uuid.UUID            `gorm:"column:user_id;type:uuid;primaryKey"`
	ReferredBy              *uuid.UUID           `gorm:"column:referred_by;type:uuid"`
	ReferralType            *enums.ReferralType  `gorm:"column:referral_type"`
	ReferralStatus          enums.ReferralStatus `gorm:"column:referral_status;not null"`
	FreeDeliveriesRemaining int                  `gorm:"column:free_deliveries_remaining;not null;default:0"`
	TotalFreeDeliveries     int                  `gorm:"column:total_free_deliveries;not null;default:0"`
	RemainingCredit         decimal.Decimal      `gorm:"column:remaining_credit;type:numeric(12,2);not null;default:0"`
	TotalEarnedCredit       decimal.Decimal      `gorm:"column:total_earned_credit;type:numeric(12,2);not null;default:0"`
	CreatedAt               time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt               time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

// ReferralHistory is the append-only audit row per referral.
type ReferralHistory struct {
	ID           uuid.UUID            `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ReferrerID   uuid.UUID            `gorm:"column:referrer_id;type:uuid;not null;index"`
	ReferredID   uuid.UUID            `gorm:"column:referred_id;type:uuid;not null;index"`
	ReferralCode string               `gorm:"column:referral_code;not null"`
	ReferralType enums.ReferralType   `gorm:"column:referral_type;not null"`
	Status       enums.ReferralStatus `gorm:"column:status;not null"`
	RewardType   *enums.RewardType    `gorm:"column:reward_type"`
	RewardAmount *decimal.Decimal     `gorm:"column:reward_amount;type:numeric(12,2)"`
	CreatedAt    time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (ReferralHistory) TableName() string { return "referral_history" }

func (ReferralInfo) TableName() string { return "referral_info" }
