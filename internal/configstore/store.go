package configstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/farmlink-backend/pkg/errors"
)

// Store resolves effective-dated configuration rows. A row is active at an
// instant when is_active is set, effective_date <= at and expiration_date is
// unset or later than at; the most recently effective row wins.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) WithTx(tx *gorm.DB) *Store {
	if tx == nil {
		return s
	}
	return &Store{db: tx}
}

func (s *Store) ActivePricing(ctx context.Context, at time.Time) (*models.PricingConfiguration, error) {
	return active[models.PricingConfiguration](ctx, s.db, at, "pricing")
}

func (s *Store) ActiveCompensation(ctx context.Context, at time.Time) (*models.CompensationConfiguration, error) {
	return active[models.CompensationConfiguration](ctx, s.db, at, "compensation")
}

func (s *Store) ActiveCommission(ctx context.Context, at time.Time) (*models.CommissionConfiguration, error) {
	return active[models.CommissionConfiguration](ctx, s.db, at, "commission")
}

func active[T any](ctx context.Context, db *gorm.DB, at time.Time, kind string) (*T, error) {
	at = at.UTC()
	var row T
	err := db.WithContext(ctx).
		Where("is_active = ?", true).
		Where("effective_date <= ?", at).
		Where("expiration_date IS NULL OR expiration_date > ?", at).
		Order("effective_date DESC").
		Order("created_at DESC").
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeConfigurationNotFound, fmt.Sprintf("no active %s configuration", kind))
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("load active %s configuration", kind))
	}
	return &row, nil
}

func (s *Store) CreatePricing(ctx context.Context, cfg *models.PricingConfiguration) error {
	if err := validateWindow(cfg.Name, cfg.EffectiveDate, cfg.ExpirationDate); err != nil {
		return err
	}
	if err := nonNegative(map[string]decimal.Decimal{
		"platformFeeRate":          cfg.PlatformFeeRate,
		"paymentProcessingFeeRate": cfg.PaymentProcessingFeeRate,
		"deliveryFeeFlat":          cfg.DeliveryFeeFlat,
		"freeDeliveryThreshold":    cfg.FreeDeliveryThreshold,
	}); err != nil {
		return err
	}
	normalizeWindow(&cfg.EffectiveDate, cfg.ExpirationDate)
	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}
	return create(ctx, s.db, cfg, "pricing")
}

func (s *Store) CreateCompensation(ctx context.Context, cfg *models.CompensationConfiguration) error {
	if err := validateWindow(cfg.Name, cfg.EffectiveDate, cfg.ExpirationDate); err != nil {
		return err
	}
	if err := nonNegative(map[string]decimal.Decimal{
		"baseHourlyRate":          cfg.BaseHourlyRate,
		"deliveryCompletionBonus": cfg.DeliveryCompletionBonus,
		"mileageCompensation":     cfg.MileageCompensation,
		"weekendHolidayRate":      cfg.WeekendHolidayRate,
		"afterHoursRate":          cfg.AfterHoursRate,
		"remoteAreaRate":          cfg.RemoteAreaRate,
		"difficultAccessRate":     cfg.DifficultAccessRate,
		"efficiencyBonus":         cfg.EfficiencyBonus,
		"batchBonus":              cfg.BatchBonus,
		"satisfactionBonus":       cfg.SatisfactionBonus,
		"retentionBonus":          cfg.RetentionBonus,
	}); err != nil {
		return err
	}
	normalizeWindow(&cfg.EffectiveDate, cfg.ExpirationDate)
	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}
	return create(ctx, s.db, cfg, "compensation")
}

func (s *Store) CreateCommission(ctx context.Context, cfg *models.CommissionConfiguration) error {
	if err := validateWindow(cfg.Name, cfg.EffectiveDate, cfg.ExpirationDate); err != nil {
		return err
	}
	if cfg.Rate.IsNegative() || cfg.Rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return pkgerrors.New(pkgerrors.CodeValidation, "commission rate must be in [0, 1)")
	}
	normalizeWindow(&cfg.EffectiveDate, cfg.ExpirationDate)
	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}
	return create(ctx, s.db, cfg, "commission")
}

// Expire closes a configuration's window at the given instant. Rows are never
// deleted so historical calculations stay reproducible.
func (s *Store) Expire(ctx context.Context, table string, id uuid.UUID, at time.Time) error {
	switch table {
	case "pricing_configurations", "compensation_configurations", "commission_configurations":
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown configuration table %q", table))
	}
	res := s.db.WithContext(ctx).Table(table).
		Where("id = ?", id).
		Updates(map[string]any{"expiration_date": at.UTC(), "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "expire configuration")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "configuration not found")
	}
	return nil
}

func create(ctx context.Context, db *gorm.DB, row any, kind string) error {
	if err := db.WithContext(ctx).Create(row).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("create %s configuration", kind))
	}
	return nil
}

func validateWindow(name string, effective time.Time, expiration *time.Time) error {
	if strings.TrimSpace(name) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if effective.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "effective date is required")
	}
	if expiration != nil && !expiration.After(effective) {
		return pkgerrors.New(pkgerrors.CodeValidation, "expiration date must be after effective date")
	}
	return nil
}

func normalizeWindow(effective *time.Time, expiration *time.Time) {
	*effective = effective.UTC()
	if expiration != nil {
		*expiration = expiration.UTC()
	}
}

func nonNegative(values map[string]decimal.Decimal) error {
	for field, v := range values {
		if v.IsNegative() {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s must not be negative", field)).
				WithDetails(map[string]any{"field": field})
		}
	}
	return nil
}
