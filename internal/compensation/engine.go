package compensation

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/farmlink-backend/pkg/errors"
	"github.com/angelmondragon/farmlink-backend/pkg/money"
)

var minutesPerHour = decimal.NewFromInt(60)

// ConfigSource resolves the compensation configuration in force at an instant.
type ConfigSource interface {
	ActiveCompensation(ctx context.Context, at time.Time) (*models.CompensationConfiguration, error)
}

// ActivityReader reads the delivery activity a pay period is computed from.
type ActivityReader interface {
	CompletedBatches(ctx context.Context, driverID uuid.UUID, start, end time.Time) ([]models.DeliveryBatch, error)
	DriverProfile(ctx context.Context, driverID uuid.UUID) (*models.DriverProfile, error)
}

// Engine computes driver pay. It never writes.
type Engine struct {
	configs  ConfigSource
	activity ActivityReader
	policies Policies
	calendar Calendar
	validate *validator.Validate
	now      func() time.Time
}

type Deps struct {
	Configs  ConfigSource
	Activity ActivityReader
	Policies *Policies
	Calendar Calendar
	Validate *validator.Validate
	Now      func() time.Time
}

func NewEngine(deps Deps) (*Engine, error) {
	if deps.Configs == nil {
		return nil, errors.New("compensation config source required")
	}
	if deps.Activity == nil {
		return nil, errors.New("activity reader required")
	}
	policies := DefaultPolicies()
	if deps.Policies != nil {
		policies = *deps.Policies
	}
	v := deps.Validate
	if v == nil {
		v = validator.New(validator.WithRequiredStructEnabled())
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		configs:  deps.Configs,
		activity: deps.Activity,
		policies: policies,
		calendar: deps.Calendar,
		validate: v,
		now:      func() time.Time { return now().UTC() },
	}, nil
}

type periodInput struct {
	DriverID uuid.UUID `validate:"required"`
	Start    time.Time `validate:"required"`
	End      time.Time `validate:"required,gtefield=Start"`
}

// CalculatePeriodEarnings returns an unsaved earnings draft for batches
// completed in [start, end]. Components are computed unrounded; each stored
// component is rounded and the total is the unrounded sum rounded once.
func (e *Engine) CalculatePeriodEarnings(ctx context.Context, driverID uuid.UUID, start, end time.Time) (*models.DriverEarnings, error) {
	start, end = start.UTC(), end.UTC()
	if err := e.validate.Struct(periodInput{DriverID: driverID, Start: start, End: end}); err != nil {
		return nil, validationError(err, "invalid pay period")
	}

	cfg, err := e.configs.ActiveCompensation(ctx, e.now())
	if err != nil {
		return nil, err
	}
	activity, err := e.aggregate(ctx, driverID, start, end)
	if err != nil {
		return nil, err
	}

	hourly := activity.Hours.Mul(cfg.BaseHourlyRate)
	delivery := decimal.NewFromInt(int64(activity.Deliveries)).Mul(cfg.DeliveryCompletionBonus)
	mileage := activity.DistanceKm.Mul(cfg.MileageCompensation)
	efficiency := e.policies.apply(e.policies.Efficiency, activity, cfg)
	batch := e.policies.apply(e.policies.Batch, activity, cfg)
	satisfaction := e.policies.apply(e.policies.Satisfaction, activity, cfg)
	retention := e.policies.apply(e.policies.Retention, activity, cfg)
	special := money.Sum(hourly, delivery, mileage).Mul(activity.Conditions.SurchargeRate(cfg))

	return &models.DriverEarnings{
		DriverID:                    driverID,
		CompensationConfigurationID: cfg.ID,
		PeriodStart:                 start,
		PeriodEnd:                   end,
		HoursWorked:                 money.Round(activity.Hours),
		DeliveryCount:               activity.Deliveries,
		DistanceKm:                  money.Round(activity.DistanceKm),
		BaseHourlyPay:               money.Round(hourly),
		DeliveryBonusAmount:         money.Round(delivery),
		MileageAmount:               money.Round(mileage),
		EfficiencyBonusAmount:       money.Round(efficiency),
		BatchBonusAmount:            money.Round(batch),
		SatisfactionBonusAmount:     money.Round(satisfaction),
		RetentionBonusAmount:        money.Round(retention),
		SpecialConditionAmount:      money.Round(special),
		TotalEarnings:               money.Round(money.Sum(hourly, delivery, mileage, efficiency, batch, satisfaction, retention, special)),
		IsWeekendHoliday:            activity.Conditions.WeekendHoliday,
		IsAfterHours:                activity.Conditions.AfterHours,
		IsRemoteArea:                activity.Conditions.RemoteArea,
		IsDifficultAccess:           activity.Conditions.DifficultAccess,
	}, nil
}

func (e *Engine) aggregate(ctx context.Context, driverID uuid.UUID, start, end time.Time) (Activity, error) {
	batches, err := e.activity.CompletedBatches(ctx, driverID, start, end)
	if err != nil {
		return Activity{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load completed batches")
	}

	activity := Activity{DistanceKm: decimal.Zero, Batches: make([]BatchActivity, 0, len(batches))}
	minutes := int64(0)
	for _, b := range batches {
		if b.CompletedAt == nil {
			continue
		}
		minutes += int64(b.ActualDurationMinutes)
		activity.Deliveries += b.DeliveryCount
		activity.DistanceKm = activity.DistanceKm.Add(b.TotalDistanceKm)
		activity.Batches = append(activity.Batches, BatchActivity{
			ID:              b.ID,
			CompletedAt:     *b.CompletedAt,
			DurationMinutes: b.ActualDurationMinutes,
			Deliveries:      b.DeliveryCount,
			DistanceKm:      b.TotalDistanceKm,
			RemoteArea:      b.RemoteArea,
			DifficultAccess: b.DifficultAccess,
		})
		if e.calendar.IsWeekendOrHoliday(*b.CompletedAt) {
			activity.Conditions.WeekendHoliday = true
		}
		if e.calendar.IsAfterHours(*b.CompletedAt) {
			activity.Conditions.AfterHours = true
		}
		activity.Conditions.RemoteArea = activity.Conditions.RemoteArea || b.RemoteArea
		activity.Conditions.DifficultAccess = activity.Conditions.DifficultAccess || b.DifficultAccess
	}
	activity.Hours = decimal.NewFromInt(minutes).Div(minutesPerHour)

	profile, err := e.activity.DriverProfile(ctx, driverID)
	switch {
	case err == nil:
		rating := profile.Rating
		activity.Rating = &rating
		activity.TenureMonths = monthsBetween(profile.ActiveSince, end)
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return Activity{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load driver profile")
	}
	return activity, nil
}

// EstimateInput describes a single delivery offered to a driver.
type EstimateInput struct {
	OrderID     *uuid.UUID      `json:"orderId,omitempty"`
	DriverID    uuid.UUID       `json:"driverId" validate:"required"`
	DistanceKm  decimal.Decimal `json:"distanceKm"`
	TimeMinutes int             `json:"timeMinutes" validate:"gte=0"`
	Flags       Conditions      `json:"flags"`
}

type Estimate struct {
	OrderID                     *uuid.UUID      `json:"orderId,omitempty"`
	DriverID                    uuid.UUID       `json:"driverId"`
	CompensationConfigurationID uuid.UUID       `json:"compensationConfigurationId"`
	HourlyPay                   decimal.Decimal `json:"hourlyPay"`
	DeliveryBonus               decimal.Decimal `json:"deliveryBonus"`
	Mileage                     decimal.Decimal `json:"mileage"`
	SpecialCondition            decimal.Decimal `json:"specialCondition"`
	Total                       decimal.Decimal `json:"total"`
	Flags                       Conditions      `json:"flags"`
}

// EstimateDeliveryEarnings projects one delivery's pay with the period
// formulas. Period-level bonuses are excluded. Nothing is persisted.
func (e *Engine) EstimateDeliveryEarnings(ctx context.Context, in EstimateInput) (*Estimate, error) {
	if err := e.validate.Struct(in); err != nil {
		return nil, validationError(err, "invalid estimate input")
	}
	if in.DistanceKm.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "distance must not be negative")
	}
	cfg, err := e.configs.ActiveCompensation(ctx, e.now())
	if err != nil {
		return nil, err
	}

	hours := decimal.NewFromInt(int64(in.TimeMinutes)).Div(minutesPerHour)
	hourly := hours.Mul(cfg.BaseHourlyRate)
	delivery := cfg.DeliveryCompletionBonus
	mileage := in.DistanceKm.Mul(cfg.MileageCompensation)
	special := money.Sum(hourly, delivery, mileage).Mul(in.Flags.SurchargeRate(cfg))

	return &Estimate{
		OrderID:                     in.OrderID,
		DriverID:                    in.DriverID,
		CompensationConfigurationID: cfg.ID,
		HourlyPay:                   money.Round(hourly),
		DeliveryBonus:               money.Round(delivery),
		Mileage:                     money.Round(mileage),
		SpecialCondition:            money.Round(special),
		Total:                       money.Round(money.Sum(hourly, delivery, mileage, special)),
		Flags:                       in.Flags,
	}, nil
}

// monthsBetween counts whole calendar months from since to at.
func monthsBetween(since, at time.Time) int {
	if since.IsZero() || at.Before(since) {
		return 0
	}
	since, at = since.UTC(), at.UTC()
	months := (at.Year()-since.Year())*12 + int(at.Month()-since.Month())
	if at.Day() < since.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}

func validationError(err error, msg string) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		details := make(map[string]string, len(fieldErrs))
		for _, fe := range fieldErrs {
			details[fe.Namespace()] = fe.Tag()
		}
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, msg).WithDetails(details)
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, msg)
}
