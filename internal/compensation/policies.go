package compensation

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
)

// BatchActivity is one completed batch inside a pay period.
type BatchActivity struct {
	ID              uuid.UUID
	CompletedAt     time.Time
	DurationMinutes int
	Deliveries      int
	DistanceKm      decimal.Decimal
	RemoteArea      bool
	DifficultAccess bool
}

// Activity is a driver's aggregated work for a period. Rating is nil when the
// driver has no profile yet.
type Activity struct {
	Hours        decimal.Decimal
	Deliveries   int
	DistanceKm   decimal.Decimal
	Batches      []BatchActivity
	Rating       *decimal.Decimal
	TenureMonths int
	Conditions   Conditions
}

// BonusPolicy computes one bonus component from a period's activity.
type BonusPolicy interface {
	Bonus(activity Activity, cfg *models.CompensationConfiguration) decimal.Decimal
}

// BonusPolicyFunc adapts a plain function to BonusPolicy.
type BonusPolicyFunc func(activity Activity, cfg *models.CompensationConfiguration) decimal.Decimal

func (f BonusPolicyFunc) Bonus(activity Activity, cfg *models.CompensationConfiguration) decimal.Decimal {
	return f(activity, cfg)
}

// Policies groups the pluggable bonus rules. A nil policy contributes zero.
type Policies struct {
	Efficiency   BonusPolicy
	Batch        BonusPolicy
	Satisfaction BonusPolicy
	Retention    BonusPolicy
}

// DefaultPolicies reads every threshold and amount from the configuration.
func DefaultPolicies() Policies {
	return Policies{
		Efficiency:   BonusPolicyFunc(efficiencyBonus),
		Batch:        BonusPolicyFunc(batchBonus),
		Satisfaction: BonusPolicyFunc(satisfactionBonus),
		Retention:    BonusPolicyFunc(retentionBonus),
	}
}

func (p Policies) apply(policy BonusPolicy, activity Activity, cfg *models.CompensationConfiguration) decimal.Decimal {
	if policy == nil {
		return decimal.Zero
	}
	bonus := policy.Bonus(activity, cfg)
	if bonus.IsNegative() {
		return decimal.Zero
	}
	return bonus
}

// efficiencyBonus pays a flat amount when deliveries per hour meets the target.
func efficiencyBonus(a Activity, cfg *models.CompensationConfiguration) decimal.Decimal {
	if !cfg.EfficiencyDeliveriesPerHour.IsPositive() || !cfg.EfficiencyBonus.IsPositive() || !a.Hours.IsPositive() {
		return decimal.Zero
	}
	rate := decimal.NewFromInt(int64(a.Deliveries)).Div(a.Hours)
	if rate.GreaterThanOrEqual(cfg.EfficiencyDeliveriesPerHour) {
		return cfg.EfficiencyBonus
	}
	return decimal.Zero
}

// batchBonus pays per batch that carried at least the configured deliveries.
func batchBonus(a Activity, cfg *models.CompensationConfiguration) decimal.Decimal {
	if cfg.BatchMinDeliveries <= 0 || !cfg.BatchBonus.IsPositive() {
		return decimal.Zero
	}
	qualifying := 0
	for _, b := range a.Batches {
		if b.Deliveries >= cfg.BatchMinDeliveries {
			qualifying++
		}
	}
	return cfg.BatchBonus.Mul(decimal.NewFromInt(int64(qualifying)))
}

func satisfactionBonus(a Activity, cfg *models.CompensationConfiguration) decimal.Decimal {
	if a.Rating == nil || !cfg.SatisfactionMinRating.IsPositive() || !cfg.SatisfactionBonus.IsPositive() {
		return decimal.Zero
	}
	if a.Rating.GreaterThanOrEqual(cfg.SatisfactionMinRating) {
		return cfg.SatisfactionBonus
	}
	return decimal.Zero
}

func retentionBonus(a Activity, cfg *models.CompensationConfiguration) decimal.Decimal {
	if cfg.RetentionMinMonths <= 0 || !cfg.RetentionBonus.IsPositive() {
		return decimal.Zero
	}
	if a.TenureMonths >= cfg.RetentionMinMonths {
		return cfg.RetentionBonus
	}
	return decimal.Zero
}
