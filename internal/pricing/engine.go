package pricing

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/farmlink-backend/internal/tax"
	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmlink-backend/pkg/errors"
	"github.com/angelmondragon/farmlink-backend/pkg/money"
)

// ConfigSource resolves the pricing configuration in force at an instant.
type ConfigSource interface {
	ActivePricing(ctx context.Context, at time.Time) (*models.PricingConfiguration, error)
}

// TaxCalculator computes the tax owed on goods.
type TaxCalculator interface {
	CalculateTaxes(amount decimal.Decimal, jurisdiction string) tax.Breakdown
}

// FreeDeliveryChecker reports whether a user has a referral free delivery left.
type FreeDeliveryChecker interface {
	FreeDeliveryAvailable(ctx context.Context, userID uuid.UUID) (bool, error)
}

// Engine computes customer-facing order charges. It never writes.
type Engine struct {
	configs      ConfigSource
	tax          TaxCalculator
	freeDelivery FreeDeliveryChecker
	validate     *validator.Validate
	now          func() time.Time
}

type Deps struct {
	Configs      ConfigSource
	Tax          TaxCalculator
	FreeDelivery FreeDeliveryChecker
	Validate     *validator.Validate
	Now          func() time.Time
}

func NewEngine(deps Deps) (*Engine, error) {
	if deps.Configs == nil {
		return nil, errors.New("pricing config source required")
	}
	if deps.Tax == nil {
		return nil, errors.New("tax calculator required")
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
		configs:      deps.Configs,
		tax:          deps.Tax,
		freeDelivery: deps.FreeDelivery,
		validate:     v,
		now:          func() time.Time { return now().UTC() },
	}, nil
}

type LineItem struct {
	FarmID    uuid.UUID       `json:"farmId" validate:"required"`
	ProductID uuid.UUID       `json:"productId" validate:"required"`
	Quantity  int             `json:"quantity" validate:"gt=0"`
	Price     decimal.Decimal `json:"price"`
}

// Subtotal is price x quantity.
func (i LineItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type OrderDraft struct {
	Items []LineItem `json:"items" validate:"required,min=1,dive"`
}

// DeliveryDetails carries the delivery context of a quote. FreeDeliveryAvailable
// lets a caller signal a referral free delivery it has already checked.
type DeliveryDetails struct {
	Method                enums.DeliveryMethod `json:"method"`
	Jurisdiction          string               `json:"jurisdiction"`
	FreeDeliveryAvailable bool                 `json:"freeDeliveryAvailable"`
}

type Charges struct {
	PricingConfigurationID uuid.UUID       `json:"pricingConfigurationId"`
	ProductSubtotal        decimal.Decimal `json:"productSubtotal"`
	DeliveryFee            decimal.Decimal `json:"customerDeliveryFee"`
	PlatformFee            decimal.Decimal `json:"customerPlatformFee"`
	PaymentProcessingFee   decimal.Decimal `json:"paymentProcessingFee"`
	Tax                    tax.Breakdown   `json:"tax"`
	TaxAmount              decimal.Decimal `json:"taxAmount"`
	FinalTotal             decimal.Decimal `json:"finalTotal"`
	FreeDeliveryWaived     bool            `json:"freeDeliveryWaived"`
	ThresholdWaived        bool            `json:"thresholdWaived"`
}

// CalculateOrderCharges prices an order draft. The processing fee is charged on
// subtotal plus platform fee; tax is charged on the goods subtotal only. Fees
// stay unrounded until the final total is rounded once.
func (e *Engine) CalculateOrderCharges(ctx context.Context, draft OrderDraft, userID *uuid.UUID, delivery DeliveryDetails) (*Charges, error) {
	if err := e.validateDraft(draft); err != nil {
		return nil, err
	}
	method := delivery.Method
	if method == "" {
		method = enums.DeliveryMethodDelivery
	}
	if !method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid delivery method")
	}

	cfg, err := e.configs.ActivePricing(ctx, e.now())
	if err != nil {
		return nil, err
	}

	subtotal := decimal.Zero
	for _, item := range draft.Items {
		subtotal = subtotal.Add(item.Subtotal())
	}
	subtotal = money.Round(subtotal)

	charges := &Charges{
		PricingConfigurationID: cfg.ID,
		ProductSubtotal:        subtotal,
		DeliveryFee:            decimal.Zero,
	}

	if method == enums.DeliveryMethodDelivery {
		switch {
		case subtotal.GreaterThanOrEqual(cfg.FreeDeliveryThreshold):
			charges.ThresholdWaived = true
		default:
			free, err := e.freeDeliverySignaled(ctx, userID, delivery)
			if err != nil {
				return nil, err
			}
			if free {
				charges.FreeDeliveryWaived = true
			} else {
				charges.DeliveryFee = money.Round(cfg.DeliveryFeeFlat)
			}
		}
	}

	platformFee := subtotal.Mul(cfg.PlatformFeeRate)
	processingFee := subtotal.Add(platformFee).Mul(cfg.PaymentProcessingFeeRate)
	breakdown := e.tax.CalculateTaxes(subtotal, delivery.Jurisdiction)

	charges.PlatformFee = money.Round(platformFee)
	charges.PaymentProcessingFee = money.Round(processingFee)
	charges.Tax = breakdown
	charges.TaxAmount = breakdown.TotalTaxAmount
	charges.FinalTotal = money.Round(money.Sum(
		subtotal,
		charges.DeliveryFee,
		platformFee,
		processingFee,
		breakdown.TotalTaxAmount,
	))
	return charges, nil
}

func (e *Engine) freeDeliverySignaled(ctx context.Context, userID *uuid.UUID, delivery DeliveryDetails) (bool, error) {
	if delivery.FreeDeliveryAvailable {
		return true, nil
	}
	if userID == nil || e.freeDelivery == nil {
		return false, nil
	}
	ok, err := e.freeDelivery.FreeDeliveryAvailable(ctx, *userID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check free delivery")
	}
	return ok, nil
}

func (e *Engine) validateDraft(draft OrderDraft) error {
	if err := e.validate.Struct(draft); err != nil {
		return validationError(err)
	}
	for _, item := range draft.Items {
		if item.Price.IsNegative() {
			return pkgerrors.New(pkgerrors.CodeValidation, "line item price must not be negative").
				WithDetails(map[string]any{"productId": item.ProductID})
		}
	}
	return nil
}

// ToModel maps charges onto the persisted order_charges row.
func (c *Charges) ToModel(orderID uuid.UUID) *models.OrderCharges {
	return &models.OrderCharges{
		OrderID:                orderID,
		PricingConfigurationID: c.PricingConfigurationID,
		ProductSubtotal:        c.ProductSubtotal,
		CustomerDeliveryFee:    c.DeliveryFee,
		CustomerPlatformFee:    c.PlatformFee,
		PaymentProcessingFee:   c.PaymentProcessingFee,
		GSTAmount:              c.Tax.GSTAmount,
		PSTAmount:              c.Tax.PSTAmount,
		TaxAmount:              c.TaxAmount,
		FinalTotal:             c.FinalTotal,
	}
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		details := make(map[string]string, len(fieldErrs))
		for _, fe := range fieldErrs {
			details[fe.Namespace()] = fe.Tag()
		}
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order draft").WithDetails(details)
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order draft")
}
