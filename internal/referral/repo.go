package referral

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
)

// Repository persists referral info rows and their audit history.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindInfo(ctx context.Context, userID uuid.UUID) (*models.ReferralInfo, error)
	LockInfo(ctx context.Context, userID uuid.UUID) (*models.ReferralInfo, error)
	CreateInfo(ctx context.Context, info *models.ReferralInfo) error
	SaveInfo(ctx context.Context, info *models.ReferralInfo) error
	CreateHistory(ctx context.Context, history *models.ReferralHistory) error
	LatestHistory(ctx context.Context, referrerID, referredID uuid.UUID) (*models.ReferralHistory, error)
	UpdateHistory(ctx context.Context, id uuid.UUID, updates map[string]any) error
	CountReferrals(ctx context.Context, referrerID uuid.UUID) (total int64, completed int64, err error)
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

func (r *repository) FindInfo(ctx context.Context, userID uuid.UUID) (*models.ReferralInfo, error) {
	var info models.ReferralInfo
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&info).Error; err != nil {
		return nil, err
	}
	return &info, nil
}

func (r *repository) LockInfo(ctx context.Context, userID uuid.UUID) (*models.ReferralInfo, error) {
	var info models.ReferralInfo
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&info).Error
	if err != nil {
		return nil, err
	}
	return &info, nil
}

func (r *repository) CreateInfo(ctx context.Context, info *models.ReferralInfo) error {
	return r.db.WithContext(ctx).Create(info).Error
}

// SaveInfo writes every mutable column, including zero values.
func (r *repository) SaveInfo(ctx context.Context, info *models.ReferralInfo) error {
	return r.db.WithContext(ctx).
		Model(&models.ReferralInfo{}).
		Where("user_id = ?", info.UserID).
		Updates(map[string]any{
			"referred_by":               info.ReferredBy,
			"referral_type":             info.ReferralType,
			"referral_status":           info.ReferralStatus,
			"free_deliveries_remaining": info.FreeDeliveriesRemaining,
			"total_free_deliveries":     info.TotalFreeDeliveries,
			"remaining_credit":          info.RemainingCredit,
			"total_earned_credit":       info.TotalEarnedCredit,
		}).Error
}

func (r *repository) CreateHistory(ctx context.Context, history *models.ReferralHistory) error {
	if history.ID == uuid.Nil {
		history.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(history).Error
}

func (r *repository) LatestHistory(ctx context.Context, referrerID, referredID uuid.UUID) (*models.ReferralHistory, error) {
	var history models.ReferralHistory
	err := r.db.WithContext(ctx).
		Where("referrer_id = ? AND referred_id = ?", referrerID, referredID).
		Order("created_at DESC").
		First(&history).Error
	if err != nil {
		return nil, err
	}
	return &history, nil
}

func (r *repository) UpdateHistory(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.ReferralHistory{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) CountReferrals(ctx context.Context, referrerID uuid.UUID) (int64, int64, error) {
	var total, completed int64
	base := r.db.WithContext(ctx).
		Model(&models.ReferralHistory{}).
		Where("referrer_id = ?", referrerID).
		Session(&gorm.Session{})
	if err := base.Count(&total).Error; err != nil {
		return 0, 0, err
	}
	if err := base.Where("status = ?", enums.ReferralStatusCompleted).Count(&completed).Error; err != nil {
		return 0, 0, err
	}
	return total, completed, nil
}
