package compensation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/farmlink-backend/pkg/db"
	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmlink-backend/pkg/errors"
	"github.com/angelmondragon/farmlink-backend/pkg/logger"
	"github.com/angelmondragon/farmlink-backend/pkg/money"
	"github.com/angelmondragon/farmlink-backend/pkg/outbox"
	"github.com/angelmondragon/farmlink-backend/pkg/stripe"
)

// ManualReference marks earnings paid outside the payment provider.
const ManualReference = "manual"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// PaymentProvider moves money to a driver's connected account.
type PaymentProvider interface {
	Transfer(ctx context.Context, req stripe.TransferRequest) (*stripe.TransferResult, error)
}

// DestinationResolver returns the payout account of a payee.
type DestinationResolver interface {
	PayoutDestination(ctx context.Context, userID uuid.UUID) (string, error)
}

type Service struct {
	repo         Repository
	engine       *Engine
	tx           txRunner
	outbox       outboxPublisher
	provider     PaymentProvider
	destinations DestinationResolver
	currency     string
	logg         *logger.Logger
	now          func() time.Time
}

type ServiceDeps struct {
	Repo         Repository
	Engine       *Engine
	Tx           txRunner
	Outbox       outboxPublisher
	Provider     PaymentProvider
	Destinations DestinationResolver
	Currency     string
	Logger       *logger.Logger
	Now          func() time.Time
}

func NewService(deps ServiceDeps) (*Service, error) {
	if deps.Repo == nil {
		return nil, fmt.Errorf("compensation repository required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("compensation engine required")
	}
	if deps.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if deps.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	logg := deps.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	currency := strings.ToLower(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "cad"
	}
	return &Service{
		repo:         deps.Repo,
		engine:       deps.Engine,
		tx:           deps.Tx,
		outbox:       deps.Outbox,
		provider:     deps.Provider,
		destinations: deps.Destinations,
		currency:     currency,
		logg:         logg,
		now:          func() time.Time { return now().UTC() },
	}, nil
}

// SaveEarnings persists a draft; a second save for the same period conflicts.
func (s *Service) SaveEarnings(ctx context.Context, earnings *models.DriverEarnings) error {
	if earnings == nil || earnings.DriverID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "earnings draft required")
	}
	if earnings.IsPaid {
		return pkgerrors.New(pkgerrors.CodeValidation, "earnings draft must be unpaid")
	}
	if err := s.repo.CreateEarnings(ctx, earnings); err != nil {
		if dbpkg.IsUniqueViolation(err, "driver_earnings_driver_period_key") {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "earnings already saved for period")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save driver earnings")
	}
	return nil
}

// DriverEarningsPaidEvent is emitted once per earnings record.
type DriverEarningsPaidEvent struct {
	EarningsID  uuid.UUID       `json:"earningsId"`
	DriverID    uuid.UUID       `json:"driverId"`
	Amount      decimal.Decimal `json:"amount"`
	AmountMinor int64           `json:"amountMinor"`
	Reference   string          `json:"reference"`
	Manual      bool            `json:"manual"`
}

// ProcessDriverPayment pays one earnings record. "manual" records the payment
// without a transfer; anything else transfers totalEarnings to the driver's
// connected account and marks the record paid only once the transfer succeeds.
// A record with nothing owed is closed without a transfer.
func (s *Service) ProcessDriverPayment(ctx context.Context, earningsID uuid.UUID, reference string) (*models.DriverEarnings, error) {
	if earningsID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "earnings id required")
	}
	reference = strings.TrimSpace(reference)
	manual := strings.EqualFold(reference, ManualReference)

	current, err := s.repo.FindEarnings(ctx, earningsID)
	if err != nil {
		return nil, mapLoadErr(err)
	}
	if current.IsPaid {
		return nil, alreadyPaid(earningsID)
	}

	var destination string
	if !manual && money.ToMinorUnits(current.TotalEarnings) > 0 {
		if s.provider == nil || s.destinations == nil {
			return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment provider not configured")
		}
		destination, err = s.destinations.PayoutDestination(ctx, current.DriverID)
		if err != nil {
			return nil, err
		}
	}

	ctx = s.logg.WithDriverID(ctx, current.DriverID.String())
	var paid *models.DriverEarnings
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		earnings, err := repo.LockEarnings(ctx, earningsID)
		if err != nil {
			return mapLoadErr(err)
		}
		if earnings.IsPaid {
			return alreadyPaid(earningsID)
		}

		now := s.now()
		amountMinor := money.ToMinorUnits(earnings.TotalEarnings)
		paymentRef := fmt.Sprintf("manual-%s-%d", earningsID, now.Unix())
		transfer := !manual && amountMinor > 0
		if !manual && !transfer {
			paymentRef = fmt.Sprintf("zero-%s-%d", earningsID, now.Unix())
		}
		if transfer && destination == "" {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "earnings changed while paying, retry")
		}
		if transfer {
			metadata := map[string]string{
				"earnings_id":  earningsID.String(),
				"driver_id":    earnings.DriverID.String(),
				"period_start": earnings.PeriodStart.Format(time.DateOnly),
				"period_end":   earnings.PeriodEnd.Format(time.DateOnly),
			}
			if reference != "" {
				metadata["reference"] = reference
			}
			result, err := s.provider.Transfer(ctx, stripe.TransferRequest{
				AmountMinor:    amountMinor,
				Currency:       s.currency,
				Destination:    destination,
				Metadata:       metadata,
				IdempotencyKey: "driver-earnings-" + earningsID.String(),
			})
			if err != nil {
				return err
			}
			paymentRef = result.ID
		}

		flipped, err := repo.MarkEarningsPaid(ctx, earningsID, paymentRef, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark earnings paid")
		}
		if !flipped {
			return alreadyPaid(earningsID)
		}
		earnings.IsPaid = true
		earnings.PaymentReference = &paymentRef
		earnings.PaidAt = &now
		paid = earnings

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDriverEarningsPaid,
			AggregateType: enums.AggregateDriverEarnings,
			AggregateID:   earningsID,
			Data: DriverEarningsPaidEvent{
				EarningsID:  earningsID,
				DriverID:    earnings.DriverID,
				Amount:      earnings.TotalEarnings,
				AmountMinor: amountMinor,
				Reference:   paymentRef,
				Manual:      !transfer,
			},
		})
	})
	if err != nil {
		if !pkgerrors.IsCode(err, pkgerrors.CodeAlreadyPaid) {
			s.logg.Error(ctx, "driver payment failed", err)
		}
		return nil, err
	}
	s.logg.Info(ctx, fmt.Sprintf("driver earnings %s paid (%s)", earningsID, paid.TotalEarnings.StringFixed(2)))
	return paid, nil
}

// PaymentOutcome is the per-record result of a batch payment.
type PaymentOutcome struct {
	EarningsID uuid.UUID              `json:"earningsId"`
	Earnings   *models.DriverEarnings `json:"earnings,omitempty"`
	Err        error                  `json:"-"`
}

type BatchPaymentResult struct {
	Outcomes  []PaymentOutcome `json:"outcomes"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
}

// Err combines the per-record failures, or nil when all succeeded.
func (r *BatchPaymentResult) Err() error {
	var combined error
	for _, o := range r.Outcomes {
		if o.Err != nil {
			combined = multierr.Append(combined, fmt.Errorf("earnings %s: %w", o.EarningsID, o.Err))
		}
	}
	return combined
}

// ProcessDriverPayments runs the single-record path for each id. Failures are
// collected per record; one failure does not stop the rest.
func (s *Service) ProcessDriverPayments(ctx context.Context, earningsIDs []uuid.UUID, reference string) *BatchPaymentResult {
	result := &BatchPaymentResult{Outcomes: make([]PaymentOutcome, 0, len(earningsIDs))}
	for _, id := range earningsIDs {
		paid, err := s.ProcessDriverPayment(ctx, id, reference)
		result.Outcomes = append(result.Outcomes, PaymentOutcome{EarningsID: id, Earnings: paid, Err: err})
		if err != nil {
			result.Failed++
			continue
		}
		result.Succeeded++
	}
	return result
}

type GenerationResult struct {
	PeriodStart time.Time               `json:"periodStart"`
	PeriodEnd   time.Time               `json:"periodEnd"`
	Created     []models.DriverEarnings `json:"created"`
	Skipped     []uuid.UUID             `json:"skipped"`
	Errors      error                   `json:"-"`
}

// GeneratePeriodEarnings computes and saves earnings for every driver with
// completed batches in the window. Drivers already saved for it are skipped.
func (s *Service) GeneratePeriodEarnings(ctx context.Context, start, end time.Time) (*GenerationResult, error) {
	start, end = start.UTC(), end.UTC()
	drivers, err := s.repo.DriversWithCompletedBatches(ctx, start, end)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list drivers with completed batches")
	}

	result := &GenerationResult{PeriodStart: start, PeriodEnd: end}
	for _, driverID := range drivers {
		if _, err := s.repo.FindEarningsForPeriod(ctx, driverID, start, end); err == nil {
			result.Skipped = append(result.Skipped, driverID)
			continue
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			result.Errors = multierr.Append(result.Errors, fmt.Errorf("driver %s: %w", driverID, err))
			continue
		}

		draft, err := s.engine.CalculatePeriodEarnings(ctx, driverID, start, end)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeConfigurationNotFound) {
				return result, err
			}
			result.Errors = multierr.Append(result.Errors, fmt.Errorf("driver %s: %w", driverID, err))
			continue
		}
		if err := s.SaveEarnings(ctx, draft); err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
				result.Skipped = append(result.Skipped, driverID)
				continue
			}
			result.Errors = multierr.Append(result.Errors, fmt.Errorf("driver %s: %w", driverID, err))
			continue
		}
		result.Created = append(result.Created, *draft)
	}

	s.logg.Info(ctx, fmt.Sprintf("driver earnings generated: created=%d skipped=%d", len(result.Created), len(result.Skipped)))
	return result, result.Errors
}

func alreadyPaid(id uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeAlreadyPaid, "driver earnings already paid").
		WithDetails(map[string]any{"earningsId": id})
}

func mapLoadErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "driver earnings not found")
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load driver earnings")
}
