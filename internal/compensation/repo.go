package compensation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
)

// Repository persists driver activity reads and earnings rows.
type Repository interface {
	ActivityReader
	WithTx(tx *gorm.DB) Repository
	DriversWithCompletedBatches(ctx context.Context, start, end time.Time) ([]uuid.UUID, error)
	CreateEarnings(ctx context.Context, earnings *models.DriverEarnings) error
	FindEarnings(ctx context.Context, id uuid.UUID) (*models.DriverEarnings, error)
	LockEarnings(ctx context.Context, id uuid.UUID) (*models.DriverEarnings, error)
	FindEarningsForPeriod(ctx context.Context, driverID uuid.UUID, start, end time.Time) (*models.DriverEarnings, error)
	MarkEarningsPaid(ctx context.Context, id uuid.UUID, reference string, paidAt time.Time) (bool, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CompletedBatches(ctx context.Context, driverID uuid.UUID, start, end time.Time) ([]models.DeliveryBatch, error) {
	var batches []models.DeliveryBatch
	err := r.db.WithContext(ctx).
		Where("driver_id = ?", driverID).
		Where("status = ?", enums.BatchStatusCompleted).
		Where("completed_at >= ? AND completed_at <= ?", start.UTC(), end.UTC()).
		Order("completed_at ASC").
		Find(&batches).Error
	if err != nil {
		return nil, err
	}
	return batches, nil
}

func (r *repository) DriverProfile(ctx context.Context, driverID uuid.UUID) (*models.DriverProfile, error) {
	var profile models.DriverProfile
	if err := r.db.WithContext(ctx).Where("user_id = ?", driverID).First(&profile).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *repository) DriversWithCompletedBatches(ctx context.Context, start, end time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.DeliveryBatch{}).
		Distinct("driver_id").
		Where("status = ?", enums.BatchStatusCompleted).
		Where("completed_at >= ? AND completed_at <= ?", start.UTC(), end.UTC()).
		Order("driver_id ASC").
		Pluck("driver_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repository) CreateEarnings(ctx context.Context, earnings *models.DriverEarnings) error {
	if earnings.ID == uuid.Nil {
		earnings.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(earnings).Error
}

func (r *repository) FindEarnings(ctx context.Context, id uuid.UUID) (*models.DriverEarnings, error) {
	var earnings models.DriverEarnings
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&earnings).Error; err != nil {
		return nil, err
	}
	return &earnings, nil
}

func (r *repository) LockEarnings(ctx context.Context, id uuid.UUID) (*models.DriverEarnings, error) {
	var earnings models.DriverEarnings
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&earnings).Error
	if err != nil {
		return nil, err
	}
	return &earnings, nil
}

func (r *repository) FindEarningsForPeriod(ctx context.Context, driverID uuid.UUID, start, end time.Time) (*models.DriverEarnings, error) {
	var earnings models.DriverEarnings
	err := r.db.WithContext(ctx).
		Where("driver_id = ? AND period_start = ? AND period_end = ?", driverID, start.UTC(), end.UTC()).
		First(&earnings).Error
	if err != nil {
		return nil, err
	}
	return &earnings, nil
}

// MarkEarningsPaid flips is_paid only if it is still false and reports whether
// this call did the flip.
func (r *repository) MarkEarningsPaid(ctx context.Context, id uuid.UUID, reference string, paidAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.DriverEarnings{}).
		Where("id = ? AND is_paid = ?", id, false).
		Updates(map[string]any{
			"is_paid":           true,
			"payment_reference": reference,
			"paid_at":           paidAt.UTC(),
			"updated_at":        paidAt.UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
