package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/farmlink-backend/internal/commission"
	"github.com/angelmondragon/farmlink-backend/internal/pricing"
	dbpkg "github.com/angelmondragon/farmlink-backend/pkg/db"
	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmlink-backend/pkg/errors"
	"github.com/angelmondragon/farmlink-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ChargeCalculator prices an order draft.
type ChargeCalculator interface {
	CalculateOrderCharges(ctx context.Context, draft pricing.OrderDraft, userID *uuid.UUID, delivery pricing.DeliveryDetails) (*pricing.Charges, error)
}

// CommissionSource resolves the commission rate in force at an instant.
type CommissionSource interface {
	ActiveCommission(ctx context.Context, at time.Time) (*models.CommissionConfiguration, error)
}

// Service covers the order money flow: quote, persist charges, settle payment.
type Service interface {
	QuoteOrder(ctx context.Context, orderID uuid.UUID) (*pricing.Charges, error)
	SaveCharges(ctx context.Context, orderID uuid.UUID, charges *pricing.Charges) (*models.OrderCharges, error)
	FinalizeCharges(ctx context.Context, orderID uuid.UUID) (*models.OrderCharges, error)
	SettleOrderPayment(ctx context.Context, orderID uuid.UUID) (*Settlement, error)
}

type service struct {
	repo        Repository
	tx          txRunner
	outbox      outboxPublisher
	pricing     ChargeCalculator
	commissions CommissionSource
	now         func() time.Time
}

// Settlement is the outcome of marking an order paid.
type Settlement struct {
	OrderID            uuid.UUID              `json:"orderId"`
	CommissionConfigID uuid.UUID              `json:"commissionConfigId"`
	CommissionRate     decimal.Decimal        `json:"commissionRate"`
	Payments           []models.FarmerPayment `json:"payments"`
}

// OrderPaymentSettledEvent is emitted when an order's farmer payments are recorded.
type OrderPaymentSettledEvent struct {
	OrderID         uuid.UUID       `json:"orderId"`
	ProductSubtotal decimal.Decimal `json:"productSubtotal"`
	CommissionTotal decimal.Decimal `json:"commissionTotal"`
	FarmerTotal     decimal.Decimal `json:"farmerTotal"`
	PaymentCount    int             `json:"paymentCount"`
}

type Deps struct {
	Repo        Repository
	Tx          txRunner
	Outbox      outboxPublisher
	Pricing     ChargeCalculator
	Commissions CommissionSource
	Now         func() time.Time
}

// NewService builds the order money service with the required dependencies.
func NewService(deps Deps) (Service, error) {
	if deps.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if deps.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if deps.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if deps.Pricing == nil {
		return nil, fmt.Errorf("pricing engine required")
	}
	if deps.Commissions == nil {
		return nil, fmt.Errorf("commission source required")
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:        deps.Repo,
		tx:          deps.Tx,
		outbox:      deps.Outbox,
		pricing:     deps.Pricing,
		commissions: deps.Commissions,
		now:         func() time.Time { return now().UTC() },
	}, nil
}

// QuoteOrder prices the order for display. It may preview a referral free
// delivery; that waiver is never persisted from a quote.
func (s *service) QuoteOrder(ctx context.Context, orderID uuid.UUID) (*pricing.Charges, error) {
	return s.quote(ctx, orderID, true)
}

func (s *service) quote(ctx context.Context, orderID uuid.UUID, withReferral bool) (*pricing.Charges, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		return nil, mapLoadErr(err, "order")
	}
	draft := pricing.OrderDraft{Items: make([]pricing.LineItem, 0, len(order.Items))}
	for _, item := range order.Items {
		draft.Items = append(draft.Items, pricing.LineItem{
			FarmID:    item.FarmID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}
	var userID *uuid.UUID
	if withReferral {
		userID = &order.UserID
	}
	return s.pricing.CalculateOrderCharges(ctx, draft, userID, pricing.DeliveryDetails{
		Method:       order.DeliveryMethod,
		Jurisdiction: order.Jurisdiction,
	})
}

// SaveCharges persists charges once per order; a second save is a conflict.
// Referral free deliveries are consumed by the referral ledger against saved
// charges, so charges that already waive one are rejected.
func (s *service) SaveCharges(ctx context.Context, orderID uuid.UUID, charges *pricing.Charges) (*models.OrderCharges, error) {
	if orderID == uuid.Nil || charges == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id and charges required")
	}
	if charges.FreeDeliveryWaived {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "referral free delivery must be applied after charges are saved")
	}
	row := charges.ToModel(orderID)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.FindOrder(ctx, orderID); err != nil {
			return mapLoadErr(err, "order")
		}
		if _, err := repo.FindCharges(ctx, orderID); err == nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "charges already saved for order")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order charges")
		}
		if err := repo.CreateCharges(ctx, row); err != nil {
			if dbpkg.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "charges already saved for order")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save order charges")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

// FinalizeCharges saves charges priced with the flat delivery fee. A referral
// free delivery is applied afterwards by the referral ledger.
func (s *service) FinalizeCharges(ctx context.Context, orderID uuid.UUID) (*models.OrderCharges, error) {
	charges, err := s.quote(ctx, orderID, false)
	if err != nil {
		return nil, err
	}
	return s.SaveCharges(ctx, orderID, charges)
}

// SettleOrderPayment marks the order paid and records one farmer payment per
// farm at the commission rate in force, all in one transaction.
func (s *service) SettleOrderPayment(ctx context.Context, orderID uuid.UUID) (*Settlement, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	now := s.now()
	cfg, err := s.commissions.ActiveCommission(ctx, now)
	if err != nil {
		return nil, err
	}
	splitter, err := commission.NewSplitter(cfg.Rate)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid commission configuration")
	}

	settlement := &Settlement{
		OrderID:            orderID,
		CommissionConfigID: cfg.ID,
		CommissionRate:     cfg.Rate,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.LockOrder(ctx, orderID)
		if err != nil {
			return mapLoadErr(err, "order")
		}
		switch order.Status {
		case enums.OrderStatusPaid:
			return pkgerrors.New(pkgerrors.CodeAlreadyPaid, "order already paid")
		case enums.OrderStatusPendingPayment:
		default:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting payment")
		}

		charges, err := repo.FindCharges(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "order charges not saved")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order charges")
		}

		items := make([]commission.Item, 0, len(order.Items))
		farmIDs := make([]uuid.UUID, 0, len(order.Items))
		seen := map[uuid.UUID]bool{}
		subtotal := decimal.Zero
		for _, item := range order.Items {
			items = append(items, commission.Item{
				ID:        item.ID,
				FarmID:    item.FarmID,
				ProductID: item.ProductID,
				Subtotal:  item.Subtotal,
			})
			subtotal = subtotal.Add(item.Subtotal)
			if !seen[item.FarmID] {
				seen[item.FarmID] = true
				farmIDs = append(farmIDs, item.FarmID)
			}
		}
		if !subtotal.Equal(charges.ProductSubtotal) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order items do not match saved charges").
				WithDetails(map[string]any{"items": subtotal.StringFixed(2), "charges": charges.ProductSubtotal.StringFixed(2)})
		}

		farmers, err := repo.FarmerIDsByFarm(ctx, farmIDs)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load farm owners")
		}

		shares := commission.Ordered(splitter.SplitByFarm(items))
		payments := make([]models.FarmerPayment, 0, len(shares))
		event := OrderPaymentSettledEvent{OrderID: orderID, ProductSubtotal: subtotal}
		for _, share := range shares {
			farmerID, ok := farmers[share.FarmID]
			if !ok {
				return pkgerrors.New(pkgerrors.CodeNotFound, "farm not found").
					WithDetails(map[string]any{"farmId": share.FarmID})
			}
			payments = append(payments, models.FarmerPayment{
				OrderID:            orderID,
				FarmID:             share.FarmID,
				FarmerID:           farmerID,
				Amount:             share.Amount,
				Commission:         share.Commission,
				CommissionConfigID: cfg.ID,
				CommissionRate:     cfg.Rate,
			})
			event.CommissionTotal = event.CommissionTotal.Add(share.Commission)
			event.FarmerTotal = event.FarmerTotal.Add(share.Amount)
		}
		event.PaymentCount = len(payments)

		if err := repo.CreateFarmerPayments(ctx, payments); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create farmer payments")
		}
		if err := repo.UpdateOrder(ctx, orderID, map[string]any{
			"status":     enums.OrderStatusPaid,
			"paid_at":    now,
			"updated_at": now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
		}
		settlement.Payments = payments

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaymentSettled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Data:          event,
		})
	})
	if err != nil {
		return nil, err
	}
	return settlement, nil
}

func mapLoadErr(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, what+" not found")
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load "+what)
}
