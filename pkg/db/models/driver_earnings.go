package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/farmlink-backend/pkg/enums"
)

// DeliveryBatch is a group of deliveries run by one driver.
type DeliveryBatch struct {
	ID                    uuid.UUID         `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	DriverID              uuid.UUID         `gorm:"column:driver_id;type:uuid;not null;index"`
	Status                enums.BatchStatus `gorm:"column:status;not null"`
	CompletedAt           *time.Time        `gorm:"column:completed_at"`
	ActualDurationMinutes int               `gorm:"column:actual_duration_minutes;not null;default:0"`
	DeliveryCount         int               `gorm:"column:delivery_count;not null;default:0"`
	TotalDistanceKm       decimal.Decimal   `gorm:"column:total_distance_km;type:numeric(10,2);not null;default:0"`
	RemoteArea            bool              `gorm:"column:remote_area;not null;default:false"`
	DifficultAccess       bool              `gorm:"column:difficult_access;not null;default:false"`
	CreatedAt             time.Time         `gorm:"column:created_at;autoCreateTime"`
}

// DriverEarnings is one driver's pay for one period. TotalEarnings is the
// component sum rounded once.
type DriverEarnings struct {
	ID                          uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	DriverID                    uuid.UUID       `gorm:"column:driver_id;type:uuid;not null;uniqueIndex:driver_earnings_driver_period_key"`
	CompensationConfigurationID uuid.UUID       `gorm:"column:compensation_configuration_id;type:uuid;not null"`
	PeriodStart                 time.Time       `gorm:"column:period_start;not null;uniqueIndex:driver_earnings_driver_period_key"`
	PeriodEnd                   time.Time       `gorm:"column:period_end;not null;uniqueIndex:driver_earnings_driver_period_key"`
	HoursWorked                 decimal.Decimal `gorm:"column:hours_worked;type:numeric(8,2);not null"`
	DeliveryCount               int             `gorm:"column:delivery_count;not null"`
	DistanceKm                  decimal.Decimal `gorm:"column:distance_km;type:numeric(10,2);not null"`
	BaseHourlyPay               decimal.Decimal `gorm:"column:base_hourly_pay;type:numeric(12,2);not null"`
	DeliveryBonusAmount         decimal.Decimal `gorm:"column:delivery_bonus_amount;type:numeric(12,2);not null"`
	MileageAmount               decimal.Decimal `gorm:"column:mileage_amount;type:numeric(12,2);not null"`
	EfficiencyBonusAmount       decimal.Decimal `gorm:"column:efficiency_bonus_amount;type:numeric(12,2);not null"`
	BatchBonusAmount            decimal.Decimal `gorm:"column:batch_bonus_amount;type:numeric(12,2);not null"`
	SatisfactionBonusAmount     decimal.Decimal `gorm:"column:satisfaction_bonus_amount;type:numeric(12,2);not null"`
	RetentionBonusAmount        decimal.Decimal `gorm:"column:retention_bonus_amount;type:numeric(12,2);not null"`
	SpecialConditionAmount      decimal.Decimal `gorm:"column:special_condition_amount;type:numeric(12,2);not null"`
	TotalEarnings               decimal.Decimal `gorm:"column:total_earnings;type:numeric(12,2);not null"`
	IsWeekendHoliday            bool            `gorm:"column:is_weekend_holiday;not null;default:false"`
	IsAfterHours                bool            `gorm:"column:is_after_hours;not null;default:false"`
	IsRemoteArea                bool            `gorm:"column:is_remote_area;not null;default:false"`
	IsDifficultAccess           bool            `gorm:"column:is_difficult_access;not null;default:false"`
	IsPaid                      bool            `gorm:"column:is_paid;not null;default:false"`
	PaymentReference            *string         `gorm:"column:payment_reference"`
	PaidAt                      *time.Time      `gorm:"column:paid_at"`
	CreatedAt                   time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt                   time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (DeliveryBatch) TableName() string { return "delivery_batches" }

func (DriverEarnings) TableName() string { return "driver_earnings" }
