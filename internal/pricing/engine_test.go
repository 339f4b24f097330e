package pricing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/farmlink-backend/internal/tax"
	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmlink-backend/pkg/errors"
	"github.com/angelmondragon/farmlink-backend/pkg/money"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type stubConfigs struct {
	cfg *models.PricingConfiguration
	err error
	at  time.Time
}

func (s *stubConfigs) ActivePricing(ctx context.Context, at time.Time) (*models.PricingConfiguration, error) {
	s.at = at
	return s.cfg, s.err
}

type stubFreeDelivery struct {
	available bool
	err       error
	calls     int
}

func (s *stubFreeDelivery) FreeDeliveryAvailable(ctx context.Context, userID uuid.UUID) (bool, error) {
	s.calls++
	return s.available, s.err
}

func defaultConfig() *models.PricingConfiguration {
	return &models.PricingConfiguration{
		ID:                       uuid.New(),
		Name:                     "standard",
		IsActive:                 true,
		PlatformFeeRate:          dec("0.05"),
		PaymentProcessingFeeRate: dec("0.03"),
		DeliveryFeeFlat:          dec("5.99"),
		FreeDeliveryThreshold:    dec("150"),
	}
}

func newEngine(t *testing.T, cfg *models.PricingConfiguration, free FreeDeliveryChecker) *Engine {
	t.Helper()
	calc, err := tax.NewDefaultCalculator("BC")
	require.NoError(t, err)
	engine, err := NewEngine(Deps{
		Configs:      &stubConfigs{cfg: cfg},
		Tax:          calc,
		FreeDelivery: free,
		Now:          func() time.Time { return time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return engine
}

func draftOf(prices ...string) OrderDraft {
	farm := uuid.New()
	items := make([]LineItem, 0, len(prices))
	for _, p := range prices {
		items = append(items, LineItem{FarmID: farm, ProductID: uuid.New(), Quantity: 1, Price: dec(p)})
	}
	return OrderDraft{Items: items}
}

func assertBalanced(t *testing.T, c *Charges) {
	t.Helper()
	sum := money.Sum(c.ProductSubtotal, c.DeliveryFee, c.PlatformFee, c.PaymentProcessingFee, c.TaxAmount)
	require.True(t, money.WithinCent(sum, c.FinalTotal), "sum %s vs total %s", sum, c.FinalTotal)
}

func TestCalculateOrderChargesBCBelowThreshold(t *testing.T) {
	engine := newEngine(t, defaultConfig(), nil)
	draft := OrderDraft{Items: []LineItem{
		{FarmID: uuid.New(), ProductID: uuid.New(), Quantity: 4, Price: dec("12.50")},
		{FarmID: uuid.New(), ProductID: uuid.New(), Quantity: 2, Price: dec("25.00")},
	}}

	got, err := engine.CalculateOrderCharges(context.Background(), draft, nil, DeliveryDetails{
		Method:       enums.DeliveryMethodDelivery,
		Jurisdiction: "BC",
	})
	require.NoError(t, err)
	require.Equal(t, "100.00", got.ProductSubtotal.StringFixed(2))
	require.Equal(t, "5.99", got.DeliveryFee.StringFixed(2))
	require.Equal(t, "5.00", got.PlatformFee.StringFixed(2))
	require.Equal(t, "3.15", got.PaymentProcessingFee.StringFixed(2))
	require.Equal(t, "12.00", got.TaxAmount.StringFixed(2))
	require.Equal(t, "5.00", got.Tax.GSTAmount.StringFixed(2))
	require.Equal(t, "7.00", got.Tax.PSTAmount.StringFixed(2))
	require.Equal(t, "126.14", got.FinalTotal.StringFixed(2))
	require.False(t, got.FreeDeliveryWaived)
	assertBalanced(t, got)
}

func TestTaxIsChargedOnGoodsOnly(t *testing.T) {
	engine := newEngine(t, defaultConfig(), nil)
	got, err := engine.CalculateOrderCharges(context.Background(), draftOf("50.00"), nil, DeliveryDetails{Jurisdiction: "ON"})
	require.NoError(t, err)
	// 13% of 50 only, fees and delivery excluded.
	require.Equal(t, "6.50", got.TaxAmount.StringFixed(2))
}

func TestDeliveryFeeWaivedAtThreshold(t *testing.T) {
	engine := newEngine(t, defaultConfig(), nil)
	got, err := engine.CalculateOrderCharges(context.Background(), draftOf("100.00", "50.00"), nil, DeliveryDetails{Jurisdiction: "BC"})
	require.NoError(t, err)
	require.True(t, got.DeliveryFee.IsZero())
	require.True(t, got.ThresholdWaived)
	assertBalanced(t, got)
}

func TestZeroThresholdWaivesEveryDelivery(t *testing.T) {
	cfg := defaultConfig()
	cfg.FreeDeliveryThreshold = decimal.Zero
	free := &stubFreeDelivery{available: true}
	engine := newEngine(t, cfg, free)
	userID := uuid.New()
	got, err := engine.CalculateOrderCharges(context.Background(), draftOf("0.50"), &userID, DeliveryDetails{Jurisdiction: "BC"})
	require.NoError(t, err)
	require.True(t, got.DeliveryFee.IsZero())
	require.True(t, got.ThresholdWaived)
	require.False(t, got.FreeDeliveryWaived)
	require.Zero(t, free.calls)
	assertBalanced(t, got)
}

func TestPickupAlwaysFree(t *testing.T) {
	free := &stubFreeDelivery{available: true}
	engine := newEngine(t, defaultConfig(), free)
	userID := uuid.New()
	got, err := engine.CalculateOrderCharges(context.Background(), draftOf("10.00"), &userID, DeliveryDetails{
		Method:       enums.DeliveryMethodPickup,
		Jurisdiction: "BC",
	})
	require.NoError(t, err)
	require.True(t, got.DeliveryFee.IsZero())
	require.False(t, got.FreeDeliveryWaived)
	require.Zero(t, free.calls, "pickup must not consume referral checks")
}

func TestReferralFreeDelivery(t *testing.T) {
	free := &stubFreeDelivery{available: true}
	engine := newEngine(t, defaultConfig(), free)
	userID := uuid.New()

	got, err := engine.CalculateOrderCharges(context.Background(), draftOf("20.00"), &userID, DeliveryDetails{Jurisdiction: "BC"})
	require.NoError(t, err)
	require.True(t, got.DeliveryFee.IsZero())
	require.True(t, got.FreeDeliveryWaived)
	require.Equal(t, 1, free.calls)

	signaled, err := newEngine(t, defaultConfig(), nil).CalculateOrderCharges(context.Background(), draftOf("20.00"), nil, DeliveryDetails{
		Jurisdiction:          "BC",
		FreeDeliveryAvailable: true,
	})
	require.NoError(t, err)
	require.True(t, signaled.FreeDeliveryWaived)
}

func TestFreeDeliveryCheckFailurePropagates(t *testing.T) {
	engine := newEngine(t, defaultConfig(), &stubFreeDelivery{err: errors.New("db down")})
	userID := uuid.New()
	_, err := engine.CalculateOrderCharges(context.Background(), draftOf("20.00"), &userID, DeliveryDetails{Jurisdiction: "BC"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestNoActiveConfiguration(t *testing.T) {
	calc, err := tax.NewDefaultCalculator("")
	require.NoError(t, err)
	engine, err := NewEngine(Deps{
		Configs: &stubConfigs{err: pkgerrors.New(pkgerrors.CodeConfigurationNotFound, "no active pricing configuration")},
		Tax:     calc,
	})
	require.NoError(t, err)

	_, err = engine.CalculateOrderCharges(context.Background(), draftOf("20.00"), nil, DeliveryDetails{})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConfigurationNotFound))
}

func TestDraftValidation(t *testing.T) {
	engine := newEngine(t, defaultConfig(), nil)
	ctx := context.Background()

	_, err := engine.CalculateOrderCharges(ctx, OrderDraft{}, nil, DeliveryDetails{})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	bad := OrderDraft{Items: []LineItem{{FarmID: uuid.New(), ProductID: uuid.New(), Quantity: 0, Price: dec("1")}}}
	_, err = engine.CalculateOrderCharges(ctx, bad, nil, DeliveryDetails{})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	negative := OrderDraft{Items: []LineItem{{FarmID: uuid.New(), ProductID: uuid.New(), Quantity: 1, Price: dec("-1")}}}
	_, err = engine.CalculateOrderCharges(ctx, negative, nil, DeliveryDetails{})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = engine.CalculateOrderCharges(ctx, draftOf("1.00"), nil, DeliveryDetails{Method: "drone"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestFinalTotalBalancesAcrossPrices(t *testing.T) {
	engine := newEngine(t, defaultConfig(), nil)
	for _, price := range []string{"0.01", "0.99", "3.33", "17.77", "49.95", "99.99", "149.99", "333.33"} {
		for _, j := range []string{"BC", "QC", "ON", "AB"} {
			got, err := engine.CalculateOrderCharges(context.Background(), draftOf(price, price), nil, DeliveryDetails{Jurisdiction: j})
			require.NoError(t, err)
			assertBalanced(t, got)
		}
	}
}

func TestToModel(t *testing.T) {
	engine := newEngine(t, defaultConfig(), nil)
	got, err := engine.CalculateOrderCharges(context.Background(), draftOf("100.00"), nil, DeliveryDetails{Jurisdiction: "BC"})
	require.NoError(t, err)

	orderID := uuid.New()
	row := got.ToModel(orderID)
	require.Equal(t, orderID, row.OrderID)
	require.Equal(t, got.PricingConfigurationID, row.PricingConfigurationID)
	require.True(t, row.FinalTotal.Equal(got.FinalTotal))
	require.True(t, row.GSTAmount.Add(row.PSTAmount).Equal(row.TaxAmount))
}
