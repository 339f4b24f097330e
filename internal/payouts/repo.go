package payouts

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
)

// Repository persists farmer payouts and claims the payments they settle.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FarmersWithUnpaidPayments(ctx context.Context) ([]uuid.UUID, error)
	LockUnpaidPayments(ctx context.Context, farmerID uuid.UUID) ([]models.FarmerPayment, error)
	MarkPaymentsPaid(ctx context.Context, paymentIDs []uuid.UUID, payoutID uuid.UUID) (int64, error)
	CreatePayout(ctx context.Context, payout *models.FarmerPayout) error
	FindPayout(ctx context.Context, id uuid.UUID) (*models.FarmerPayout, error)
	LockPayout(ctx context.Context, id uuid.UUID) (*models.FarmerPayout, error)
	TransitionPayout(ctx context.Context, id uuid.UUID, from enums.PayoutStatus, updates map[string]any) (bool, error)
	PaymentsForPayout(ctx context.Context, payoutID uuid.UUID) ([]models.FarmerPayment, error)
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

func (r *repository) FarmersWithUnpaidPayments(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.FarmerPayment{}).
		Distinct("farmer_id").
		Where("is_paid = ?", false).
		Order("farmer_id ASC").
		Pluck("farmer_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// LockUnpaidPayments claims a farmer's unpaid rows with SELECT ... FOR UPDATE
// so a concurrent run blocks until this one commits.
func (r *repository) LockUnpaidPayments(ctx context.Context, farmerID uuid.UUID) ([]models.FarmerPayment, error) {
	var payments []models.FarmerPayment
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("farmer_id = ? AND is_paid = ?", farmerID, false).
		Order("created_at ASC").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

// MarkPaymentsPaid flips only rows that are still unpaid and reports how many changed.
func (r *repository) MarkPaymentsPaid(ctx context.Context, paymentIDs []uuid.UUID, payoutID uuid.UUID) (int64, error) {
	if len(paymentIDs) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.FarmerPayment{}).
		Where("id IN ? AND is_paid = ?", paymentIDs, false).
		Updates(map[string]any{
			"is_paid":    true,
			"payout_id":  payoutID,
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

func (r *repository) CreatePayout(ctx context.Context, payout *models.FarmerPayout) error {
	if payout.ID == uuid.Nil {
		payout.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(payout).Error
}

func (r *repository) FindPayout(ctx context.Context, id uuid.UUID) (*models.FarmerPayout, error) {
	var payout models.FarmerPayout
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&payout).Error; err != nil {
		return nil, err
	}
	return &payout, nil
}

func (r *repository) LockPayout(ctx context.Context, id uuid.UUID) (*models.FarmerPayout, error) {
	var payout models.FarmerPayout
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&payout).Error
	if err != nil {
		return nil, err
	}
	return &payout, nil
}

// TransitionPayout applies updates only while the payout is still in status from.
func (r *repository) TransitionPayout(ctx context.Context, id uuid.UUID, from enums.PayoutStatus, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.FarmerPayout{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) PaymentsForPayout(ctx context.Context, payoutID uuid.UUID) ([]models.FarmerPayment, error) {
	var payments []models.FarmerPayment
	err := r.db.WithContext(ctx).
		Where("payout_id = ?", payoutID).
		Order("created_at ASC").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}
