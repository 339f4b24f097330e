package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
)

// Repository defines persistence operations for orders, their charges and the
// farmer payments produced when an order is paid.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) error
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	LockOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	UpdateOrder(ctx context.Context, orderID uuid.UUID, updates map[string]any) error
	CreateCharges(ctx context.Context, charges *models.OrderCharges) error
	FindCharges(ctx context.Context, orderID uuid.UUID) (*models.OrderCharges, error)
	LockCharges(ctx context.Context, orderID uuid.UUID) (*models.OrderCharges, error)
	UpdateCharges(ctx context.Context, orderID uuid.UUID, updates map[string]any) error
	FarmerIDsByFarm(ctx context.Context, farmIDs []uuid.UUID) (map[uuid.UUID]uuid.UUID, error)
	CreateFarmerPayments(ctx context.Context, payments []models.FarmerPayment) error
	FindFarmerPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]models.FarmerPayment, error)
}
