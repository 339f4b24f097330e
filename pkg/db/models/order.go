package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/farmlink-backend/pkg/enums"
)

// Order is a consumer purchase spanning one or more farms.
type Order struct {
	ID                  uuid.UUID            `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID              uuid.UUID            `gorm:"column:user_id;type:uuid;not null"`
	Status              enums.OrderStatus    `gorm:"column:status;not null"`
	DeliveryMethod      enums.DeliveryMethod `gorm:"column:delivery_method;not null"`
	Jurisdiction        string               `gorm:"column:jurisdiction;not null"`
	FreeDeliveryApplied bool                 `gorm:"column:free_delivery_applied;not null;default:false"`
	PaidAt              *time.Time           `gorm:"column:paid_at"`
	Items               []OrderItem          `gorm:"foreignKey:OrderID"`
	CreatedAt           time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

// OrderItem is a single product line; Subtotal is price x quantity.
type OrderItem struct {
	ID        uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID   uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	FarmID    uuid.UUID       `gorm:"column:farm_id;type:uuid;not null"`
	ProductID uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	Quantity  int             `gorm:"column:quantity;not null"`
	Price     decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	Subtotal  decimal.Decimal `gorm:"column:subtotal;type:numeric(12,2);not null"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
}

// OrderCharges is the persisted customer-facing breakdown, one row per order.
type OrderCharges struct {
	ID                     uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID                uuid.UUID       `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	PricingConfigurationID uuid.UUID       `gorm:"column:pricing_configuration_id;type:uuid;not null"`
	ProductSubtotal        decimal.Decimal `gorm:"column:product_subtotal;type:numeric(12,2);not null"`
	CustomerDeliveryFee    decimal.Decimal `gorm:"column:customer_delivery_fee;type:numeric(12,2);not null"`
	CustomerPlatformFee    decimal.Decimal `gorm:"column:customer_platform_fee;type:numeric(12,2);not null"`
	PaymentProcessingFee   decimal.Decimal `gorm:"column:payment_processing_fee;type:numeric(12,2);not null"`
	GSTAmount              decimal.Decimal `gorm:"column:gst_amount;type:numeric(12,2);not null"`
	PSTAmount              decimal.Decimal `gorm:"column:pst_amount;type:numeric(12,2);not null"`
	TaxAmount              decimal.Decimal `gorm:"column:tax_amount;type:numeric(12,2);not null"`
	FinalTotal             decimal.Decimal `gorm:"column:final_total;type:numeric(12,2);not null"`
	CreatedAt              time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// Farm is owned by exactly one farmer.
type Farm struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	FarmerID  uuid.UUID `gorm:"column:farmer_id;type:uuid;not null;index"`
	Name      string    `gorm:"column:name;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (OrderCharges) TableName() string { return "order_charges" }
