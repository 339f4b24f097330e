package compensation

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/farmlink-backend/internal/configstore"
	"github.com/angelmondragon/farmlink-backend/internal/testdb"
	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmlink-backend/pkg/errors"
)

var (
	testNow     = time.Date(2026, 4, 13, 9, 0, 0, 0, time.UTC)
	periodStart = time.Date(2026, 4, 6, 0, 0, 0, 0, time.UTC)
	periodEnd   = time.Date(2026, 4, 12, 23, 59, 59, 0, time.UTC)
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func baseConfig() *models.CompensationConfiguration {
	return &models.CompensationConfiguration{
		Name:                    "standard",
		EffectiveDate:           testNow.AddDate(0, -2, 0),
		IsActive:                true,
		BaseHourlyRate:          dec("18.00"),
		DeliveryCompletionBonus: dec("1.50"),
		MileageCompensation:     dec("0.40"),
	}
}

func newEngine(t *testing.T, conn *gorm.DB, cfg *models.CompensationConfiguration, deps Deps) *Engine {
	t.Helper()
	store := configstore.New(conn)
	if cfg != nil {
		require.NoError(t, store.CreateCompensation(context.Background(), cfg))
	}
	deps.Configs = store
	deps.Activity = NewRepository(conn)
	deps.Now = func() time.Time { return testNow }
	engine, err := NewEngine(deps)
	require.NoError(t, err)
	return engine
}

func seedBatch(t *testing.T, conn *gorm.DB, driverID uuid.UUID, completedAt time.Time, minutes, deliveries int, km string, mutate ...func(*models.DeliveryBatch)) {
	t.Helper()
	at := completedAt.UTC()
	batch := models.DeliveryBatch{
		ID:                    uuid.New(),
		DriverID:              driverID,
		Status:                enums.BatchStatusCompleted,
		CompletedAt:           &at,
		ActualDurationMinutes: minutes,
		DeliveryCount:         deliveries,
		TotalDistanceKm:       dec(km),
	}
	for _, fn := range mutate {
		fn(&batch)
	}
	require.NoError(t, conn.Create(&batch).Error)
}

func TestPeriodEarningsBaseComponents(t *testing.T) {
	conn := testdb.Open(t)
	engine := newEngine(t, conn, baseConfig(), Deps{})
	driver := uuid.New()
	seedBatch(t, conn, driver, time.Date(2026, 4, 8, 12, 0, 0, 0, time.UTC), 240, 12, "30")
	seedBatch(t, conn, driver, time.Date(2026, 4, 8, 16, 0, 0, 0, time.UTC), 240, 8, "20")

	earnings, err := engine.CalculatePeriodEarnings(context.Background(), driver, periodStart, periodEnd)
	require.NoError(t, err)

	assert.Equal(t, "8.00", earnings.HoursWorked.StringFixed(2))
	assert.Equal(t, 20, earnings.DeliveryCount)
	assert.Equal(t, "144.00", earnings.BaseHourlyPay.StringFixed(2))
	assert.Equal(t, "30.00", earnings.DeliveryBonusAmount.StringFixed(2))
	assert.Equal(t, "20.00", earnings.MileageAmount.StringFixed(2))
	assert.True(t, earnings.EfficiencyBonusAmount.IsZero())
	assert.True(t, earnings.BatchBonusAmount.IsZero())
	assert.True(t, earnings.SatisfactionBonusAmount.IsZero())
	assert.True(t, earnings.RetentionBonusAmount.IsZero())
	assert.True(t, earnings.SpecialConditionAmount.IsZero())
	assert.Equal(t, "194.00", earnings.TotalEarnings.StringFixed(2))
	assert.False(t, earnings.IsWeekendHoliday)
	assert.False(t, earnings.IsAfterHours)
	assert.False(t, earnings.IsPaid)

	var rows int64
	require.NoError(t, conn.Model(&models.DriverEarnings{}).Count(&rows).Error)
	assert.Zero(t, rows)
}

func TestPeriodEarningsBonusesAndSurcharges(t *testing.T) {
	conn := testdb.Open(t)
	cfg := baseConfig()
	cfg.WeekendHolidayRate = dec("0.10")
	cfg.AfterHoursRate = dec("0.05")
	cfg.EfficiencyDeliveriesPerHour = dec("2")
	cfg.EfficiencyBonus = dec("10")
	cfg.BatchMinDeliveries = 5
	cfg.BatchBonus = dec("3")
	cfg.SatisfactionMinRating = dec("4.5")
	cfg.SatisfactionBonus = dec("5")
	cfg.RetentionMinMonths = 6
	cfg.RetentionBonus = dec("20")
	engine := newEngine(t, conn, cfg, Deps{})

	driver := uuid.New()
	require.NoError(t, conn.Create(&models.DriverProfile{
		UserID:      driver,
		Rating:      dec("4.80"),
		ActiveSince: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}).Error)
	// Saturday 21:00 UTC: weekend and after hours.
	seedBatch(t, conn, driver, time.Date(2026, 4, 11, 21, 0, 0, 0, time.UTC), 120, 5, "10")

	earnings, err := engine.CalculatePeriodEarnings(context.Background(), driver, periodStart, periodEnd)
	require.NoError(t, err)

	assert.True(t, earnings.IsWeekendHoliday)
	assert.True(t, earnings.IsAfterHours)
	assert.Equal(t, "10.00", earnings.EfficiencyBonusAmount.StringFixed(2))
	assert.Equal(t, "3.00", earnings.BatchBonusAmount.StringFixed(2))
	assert.Equal(t, "5.00", earnings.SatisfactionBonusAmount.StringFixed(2))
	assert.Equal(t, "20.00", earnings.RetentionBonusAmount.StringFixed(2))
	// base 36 + 7.50 + 4.00 = 47.50; 15% surcharge = 7.125
	assert.Equal(t, "7.13", earnings.SpecialConditionAmount.StringFixed(2))
	assert.Equal(t, "92.63", earnings.TotalEarnings.StringFixed(2))
}

func TestPeriodEarningsCustomPolicies(t *testing.T) {
	conn := testdb.Open(t)
	policies := Policies{
		Efficiency: BonusPolicyFunc(func(a Activity, _ *models.CompensationConfiguration) decimal.Decimal {
			return decimal.NewFromInt(int64(a.Deliveries)).Mul(dec("0.1234"))
		}),
		Retention: BonusPolicyFunc(func(Activity, *models.CompensationConfiguration) decimal.Decimal {
			return dec("-5")
		}),
	}
	engine := newEngine(t, conn, baseConfig(), Deps{Policies: &policies})
	driver := uuid.New()
	seedBatch(t, conn, driver, time.Date(2026, 4, 7, 10, 0, 0, 0, time.UTC), 60, 10, "0")

	earnings, err := engine.CalculatePeriodEarnings(context.Background(), driver, periodStart, periodEnd)
	require.NoError(t, err)
	assert.Equal(t, "1.23", earnings.EfficiencyBonusAmount.StringFixed(2))
	assert.True(t, earnings.RetentionBonusAmount.IsZero())
	// 18 + 15 + 1.234 rounded once
	assert.Equal(t, "34.23", earnings.TotalEarnings.StringFixed(2))
}

func TestPeriodWindowIsInclusiveAndCompletedOnly(t *testing.T) {
	conn := testdb.Open(t)
	engine := newEngine(t, conn, baseConfig(), Deps{})
	driver := uuid.New()

	seedBatch(t, conn, driver, periodStart, 60, 1, "1")
	seedBatch(t, conn, driver, periodEnd, 60, 1, "1")
	seedBatch(t, conn, driver, periodEnd.Add(time.Second), 60, 1, "1")
	seedBatch(t, conn, driver, periodStart.Add(-time.Second), 60, 1, "1")
	seedBatch(t, conn, driver, time.Date(2026, 4, 9, 12, 0, 0, 0, time.UTC), 60, 1, "1", func(b *models.DeliveryBatch) {
		b.Status = enums.BatchStatusCancelled
	})
	seedBatch(t, conn, uuid.New(), time.Date(2026, 4, 9, 12, 0, 0, 0, time.UTC), 60, 1, "1")

	earnings, err := engine.CalculatePeriodEarnings(context.Background(), driver, periodStart, periodEnd)
	require.NoError(t, err)
	assert.Equal(t, 2, earnings.DeliveryCount)
	assert.Equal(t, "2.00", earnings.HoursWorked.StringFixed(2))
}

func TestPeriodEarningsRemoteAndHolidayFlags(t *testing.T) {
	conn := testdb.Open(t)
	cfg := baseConfig()
	cfg.WeekendHolidayRate = dec("0.10")
	cfg.RemoteAreaRate = dec("0.20")
	cfg.DifficultAccessRate = dec("0.05")
	engine := newEngine(t, conn, cfg, Deps{Calendar: Calendar{
		Location: time.UTC,
		Holidays: []time.Time{time.Date(2026, 4, 8, 0, 0, 0, 0, time.UTC)},
	}})
	driver := uuid.New()
	seedBatch(t, conn, driver, time.Date(2026, 4, 8, 12, 0, 0, 0, time.UTC), 60, 2, "5", func(b *models.DeliveryBatch) {
		b.RemoteArea = true
	})
	seedBatch(t, conn, driver, time.Date(2026, 4, 9, 12, 0, 0, 0, time.UTC), 60, 2, "5", func(b *models.DeliveryBatch) {
		b.DifficultAccess = true
	})

	earnings, err := engine.CalculatePeriodEarnings(context.Background(), driver, periodStart, periodEnd)
	require.NoError(t, err)
	assert.True(t, earnings.IsWeekendHoliday)
	assert.True(t, earnings.IsRemoteArea)
	assert.True(t, earnings.IsDifficultAccess)
	assert.False(t, earnings.IsAfterHours)
	// base 36 + 6 + 4 = 46; 35% = 16.10
	assert.Equal(t, "16.10", earnings.SpecialConditionAmount.StringFixed(2))
	assert.Equal(t, "62.10", earnings.TotalEarnings.StringFixed(2))
}

func TestPeriodEarningsErrors(t *testing.T) {
	conn := testdb.Open(t)
	engine := newEngine(t, conn, nil, Deps{})

	_, err := engine.CalculatePeriodEarnings(context.Background(), uuid.New(), periodStart, periodEnd)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConfigurationNotFound))

	_, err = engine.CalculatePeriodEarnings(context.Background(), uuid.New(), periodEnd, periodStart)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = engine.CalculatePeriodEarnings(context.Background(), uuid.Nil, periodStart, periodEnd)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestEstimateDeliveryEarnings(t *testing.T) {
	conn := testdb.Open(t)
	cfg := baseConfig()
	cfg.WeekendHolidayRate = dec("0.10")
	cfg.AfterHoursRate = dec("0.05")
	cfg.RemoteAreaRate = dec("0.20")
	cfg.DifficultAccessRate = dec("0.15")
	engine := newEngine(t, conn, cfg, Deps{})
	orderID := uuid.New()
	in := EstimateInput{OrderID: &orderID, DriverID: uuid.New(), DistanceKm: dec("10"), TimeMinutes: 30}

	plain, err := engine.EstimateDeliveryEarnings(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "9.00", plain.HourlyPay.StringFixed(2))
	assert.Equal(t, "1.50", plain.DeliveryBonus.StringFixed(2))
	assert.Equal(t, "4.00", plain.Mileage.StringFixed(2))
	assert.Equal(t, "14.50", plain.Total.StringFixed(2))

	in.Flags = Conditions{WeekendHoliday: true, AfterHours: true, RemoteArea: true, DifficultAccess: true}
	flagged, err := engine.EstimateDeliveryEarnings(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "7.25", flagged.SpecialCondition.StringFixed(2))
	assert.Equal(t, "21.75", flagged.Total.StringFixed(2))

	in.Flags = Conditions{RemoteArea: true}
	remote, err := engine.EstimateDeliveryEarnings(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "2.90", remote.SpecialCondition.StringFixed(2))

	in.DistanceKm = dec("-1")
	_, err = engine.EstimateDeliveryEarnings(context.Background(), in)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	var rows int64
	require.NoError(t, conn.Model(&models.DriverEarnings{}).Count(&rows).Error)
	assert.Zero(t, rows)
}

func TestCalendar(t *testing.T) {
	vancouver, err := time.LoadLocation("America/Vancouver")
	require.NoError(t, err)
	cal := Calendar{Location: vancouver}

	// 02:00 UTC Monday is 19:00 Sunday in Vancouver.
	mondayUTC := time.Date(2026, 4, 13, 2, 0, 0, 0, time.UTC)
	assert.True(t, cal.IsWeekendOrHoliday(mondayUTC))
	assert.False(t, cal.IsAfterHours(mondayUTC))

	// 03:30 UTC is 20:30 local.
	assert.True(t, cal.IsAfterHours(time.Date(2026, 4, 14, 3, 30, 0, 0, time.UTC)))
	assert.True(t, cal.IsAfterHours(time.Date(2026, 4, 14, 14, 59, 0, 0, time.UTC)))
	assert.False(t, cal.IsAfterHours(time.Date(2026, 4, 14, 15, 0, 0, 0, time.UTC)))
}

func TestMonthsBetween(t *testing.T) {
	since := time.Date(2025, 10, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 5, monthsBetween(since, time.Date(2026, 4, 14, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 6, monthsBetween(since, time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 0, monthsBetween(since, since.AddDate(0, 0, -1)))
}
