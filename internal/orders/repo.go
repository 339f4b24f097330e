package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	for i := range order.Items {
		if order.Items[i].ID == uuid.Nil {
			order.Items[i].ID = uuid.New()
		}
		order.Items[i].OrderID = order.ID
	}
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) LockOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	var items []models.OrderItem
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC, id ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	order.Items = items
	return &order, nil
}

func (r *repository) UpdateOrder(ctx context.Context, orderID uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Updates(updates).Error
}

func (r *repository) CreateCharges(ctx context.Context, charges *models.OrderCharges) error {
	if charges.ID == uuid.Nil {
		charges.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(charges).Error
}

func (r *repository) FindCharges(ctx context.Context, orderID uuid.UUID) (*models.OrderCharges, error) {
	var charges models.OrderCharges
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		First(&charges).Error
	if err != nil {
		return nil, err
	}
	return &charges, nil
}

func (r *repository) LockCharges(ctx context.Context, orderID uuid.UUID) (*models.OrderCharges, error) {
	var charges models.OrderCharges
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_id = ?", orderID).
		First(&charges).Error
	if err != nil {
		return nil, err
	}
	return &charges, nil
}

func (r *repository) UpdateCharges(ctx context.Context, orderID uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.OrderCharges{}).
		Where("order_id = ?", orderID).
		Updates(updates).Error
}

func (r *repository) FarmerIDsByFarm(ctx context.Context, farmIDs []uuid.UUID) (map[uuid.UUID]uuid.UUID, error) {
	out := make(map[uuid.UUID]uuid.UUID, len(farmIDs))
	if len(farmIDs) == 0 {
		return out, nil
	}
	var farms []models.Farm
	if err := r.db.WithContext(ctx).
		Where("id IN ?", farmIDs).
		Find(&farms).Error; err != nil {
		return nil, err
	}
	for _, farm := range farms {
		out[farm.ID] = farm.FarmerID
	}
	return out, nil
}

func (r *repository) CreateFarmerPayments(ctx context.Context, payments []models.FarmerPayment) error {
	if len(payments) == 0 {
		return nil
	}
	for i := range payments {
		if payments[i].ID == uuid.Nil {
			payments[i].ID = uuid.New()
		}
	}
	return r.db.WithContext(ctx).Create(&payments).Error
}

func (r *repository) FindFarmerPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]models.FarmerPayment, error) {
	var payments []models.FarmerPayment
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("farm_id ASC").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}
