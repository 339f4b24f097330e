package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PricingConfiguration is an effective-dated customer fee rule set.
type PricingConfiguration struct {
	ID                       uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name                     string          `gorm:"column:name;not null"`
	EffectiveDate            time.Time       `gorm:"column:effective_date;not null"`
	ExpirationDate           *time.Time      `gorm:"column:expiration_date"`
	IsActive                 bool            `gorm:"column:is_active;not null"`
	PlatformFeeRate          decimal.Decimal `gorm:"column:platform_fee_rate;type:numeric(6,4);not null"`
	PaymentProcessingFeeRate decimal.Decimal `gorm:"column:payment_processing_fee_rate;type:numeric(6,4);not null"`
	DeliveryFeeFlat          decimal.Decimal `gorm:"column:delivery_fee_flat;type:numeric(12,2);not null"`
	FreeDeliveryThreshold    decimal.Decimal `gorm:"column:free_delivery_threshold;type:numeric(12,2);not null"`
	CreatedAt                time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt                time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// CompensationConfiguration is an effective-dated driver pay rule set.
// Surcharge rates are fractional premiums on base pay.
type CompensationConfiguration struct {
	ID                      uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name                    string          `gorm:"column:name;not null"`
	EffectiveDate           time.Time       `gorm:"column:effective_date;not null"`
	ExpirationDate          *time.Time      `gorm:"column:expiration_date"`
	IsActive                bool            `gorm:"column:is_active;not null"`
	BaseHourlyRate          decimal.Decimal `gorm:"column:base_hourly_rate;type:numeric(12,2);not null"`
	DeliveryCompletionBonus decimal.Decimal `gorm:"column:delivery_completion_bonus;type:numeric(12,2);not null"`
	MileageCompensation     decimal.Decimal `gorm:"column:mileage_compensation;type:numeric(12,2);not null"`
	WeekendHolidayRate      decimal.Decimal `gorm:"column:weekend_holiday_rate;type:numeric(6,4);not null;default:0"`
	AfterHoursRate          decimal.Decimal `gorm:"column:after_hours_rate;type:numeric(6,4);not null;default:0"`
	RemoteAreaRate          decimal.Decimal `gorm:"column:remote_area_rate;type:numeric(6,4);not null;default:0"`
	DifficultAccessRate     decimal.Decimal `gorm:"column:difficult_access_rate;type:numeric(6,4);not null;default:0"`

	EfficiencyDeliveriesPerHour decimal.Decimal `gorm:"column:efficiency_deliveries_per_hour;type:numeric(6,2);not null;default:0"`
	EfficiencyBonus             decimal.Decimal `gorm:"column:efficiency_bonus;type:numeric(12,2);not null;default:0"`
	BatchMinDeliveries          int             `gorm:"column:batch_min_deliveries;not null;default:0"`
	BatchBonus                  decimal.Decimal `gorm:"column:batch_bonus;type:numeric(12,2);not null;default:0"`
	SatisfactionMinRating       decimal.Decimal `gorm:"column:satisfaction_min_rating;type:numeric(3,2);not null;default:0"`
	SatisfactionBonus           decimal.Decimal `gorm:"column:satisfaction_bonus;type:numeric(12,2);not null;default:0"`
	RetentionMinMonths          int             `gorm:"column:retention_min_months;not null;default:0"`
	RetentionBonus              decimal.Decimal `gorm:"column:retention_bonus;type:numeric(12,2);not null;default:0"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// CommissionConfiguration is an effective-dated platform commission rate.
type CommissionConfiguration struct {
	ID             uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name           string          `gorm:"column:name;not null"`
	EffectiveDate  time.Time       `gorm:"column:effective_date;not null"`
	ExpirationDate *time.Time      `gorm:"column:expiration_date"`
	IsActive       bool            `gorm:"column:is_active;not null"`
	Rate           decimal.Decimal `gorm:"column:rate;type:numeric(6,4);not null"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
