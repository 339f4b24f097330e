package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DriverProfile carries the driver attributes used by satisfaction and retention bonuses.
type DriverProfile struct {
	UserID      uuid.UUID       `gorm:"column:user_id;type:uuid;primaryKey"`
	Rating      decimal.Decimal `gorm:"column:rating;type:numeric(3,2);not null;default:0"`
	ActiveSince time.Time       `gorm:"column:active_since;not null"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
