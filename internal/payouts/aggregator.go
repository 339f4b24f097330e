package payouts

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

	"github.com/angelmondragon/farmlink-backend/internal/referral"
	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmlink-backend/pkg/errors"
	"github.com/angelmondragon/farmlink-backend/pkg/logger"
	"github.com/angelmondragon/farmlink-backend/pkg/metrics"
	"github.com/angelmondragon/farmlink-backend/pkg/money"
	"github.com/angelmondragon/farmlink-backend/pkg/outbox"
	"github.com/angelmondragon/farmlink-backend/pkg/stripe"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// PaymentProvider moves money to a farmer's connected account.
type PaymentProvider interface {
	Transfer(ctx context.Context, req stripe.TransferRequest) (*stripe.TransferResult, error)
}

// DestinationResolver returns the payout account of a payee.
type DestinationResolver interface {
	PayoutDestination(ctx context.Context, userID uuid.UUID) (string, error)
}

// Aggregator batches unpaid farmer payments into payouts, applies referral
// credit against them and settles payouts through the payment provider.
type Aggregator struct {
	repo         Repository
	credits      referral.Repository
	tx           txRunner
	outbox       outboxPublisher
	provider     PaymentProvider
	destinations DestinationResolver
	currency     string
	metrics      *metrics.PayoutMetrics
	logg         *logger.Logger
	now          func() time.Time
}

type Deps struct {
	Repo         Repository
	Credits      referral.Repository
	Tx           txRunner
	Outbox       outboxPublisher
	Provider     PaymentProvider
	Destinations DestinationResolver
	Currency     string
	Metrics      *metrics.PayoutMetrics
	Logger       *logger.Logger
	Now          func() time.Time
}

func NewAggregator(deps Deps) (*Aggregator, error) {
	if deps.Repo == nil {
		return nil, fmt.Errorf("payout repository required")
	}
	if deps.Credits == nil {
		return nil, fmt.Errorf("referral repository required")
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
	return &Aggregator{
		repo:         deps.Repo,
		credits:      deps.Credits,
		tx:           deps.Tx,
		outbox:       deps.Outbox,
		provider:     deps.Provider,
		destinations: deps.Destinations,
		currency:     currency,
		metrics:      deps.Metrics,
		logg:         logg,
		now:          func() time.Time { return now().UTC() },
	}, nil
}

// FarmerFailure records a farmer whose payout transaction rolled back.
type FarmerFailure struct {
	FarmerID uuid.UUID `json:"farmerId"`
	Err      error     `json:"-"`
}

// RunResult summarizes one payout run.
type RunResult struct {
	RunID       string                `json:"runId"`
	PayoutCount int                   `json:"payoutCount"`
	Payouts     []models.FarmerPayout `json:"payouts"`
	Failures    []FarmerFailure       `json:"failures,omitempty"`
}

// Err combines the per-farmer failures, or nil when every farmer succeeded.
func (r *RunResult) Err() error {
	var combined error
	for _, f := range r.Failures {
		combined = multierr.Append(combined, fmt.Errorf("farmer %s: %w", f.FarmerID, f.Err))
	}
	return combined
}

// FarmerPayoutCreatedEvent is emitted with each new payout.
type FarmerPayoutCreatedEvent struct {
	PayoutID        uuid.UUID       `json:"payoutId"`
	FarmerID        uuid.UUID       `json:"farmerId"`
	Amount          decimal.Decimal `json:"amount"`
	OriginalAmount  decimal.Decimal `json:"originalAmount"`
	CreditApplied   decimal.Decimal `json:"creditApplied"`
	CommissionTotal decimal.Decimal `json:"commissionTotal"`
	PaymentIDs      []uuid.UUID     `json:"paymentIds"`
}

// ProcessWeeklyPayouts creates one pending payout per farmer with unpaid
// payments. Each farmer runs in its own transaction: a failing farmer is
// reported in the result and does not undo payouts already committed.
func (a *Aggregator) ProcessWeeklyPayouts(ctx context.Context) (*RunResult, error) {
	farmers, err := a.repo.FarmersWithUnpaidPayments(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list farmers with unpaid payments")
	}

	result := &RunResult{RunID: uuid.NewString(), Payouts: []models.FarmerPayout{}}
	ctx = a.logg.WithPayoutRunID(ctx, result.RunID)
	for _, farmerID := range farmers {
		farmerCtx := a.logg.WithFarmerID(ctx, farmerID.String())
		payout, err := a.payFarmer(farmerCtx, farmerID)
		if err != nil {
			a.logg.Error(farmerCtx, "farmer payout failed", err)
			a.metrics.IncFailure()
			result.Failures = append(result.Failures, FarmerFailure{FarmerID: farmerID, Err: err})
			continue
		}
		if payout == nil {
			continue
		}
		a.metrics.RecordCreated(payout.CreditApplied)
		result.Payouts = append(result.Payouts, *payout)
		result.PayoutCount++
	}

	a.logg.Info(ctx, fmt.Sprintf("payout run complete: payouts=%d failures=%d", result.PayoutCount, len(result.Failures)))
	return result, nil
}

// payFarmer claims the farmer's unpaid payments and settles them into one
// payout. It returns nil when another run already claimed everything.
func (a *Aggregator) payFarmer(ctx context.Context, farmerID uuid.UUID) (*models.FarmerPayout, error) {
	var created *models.FarmerPayout
	err := a.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := a.repo.WithTx(tx)
		payments, err := repo.LockUnpaidPayments(ctx, farmerID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock unpaid payments")
		}
		if len(payments) == 0 {
			return nil
		}

		ids := make([]uuid.UUID, 0, len(payments))
		amounts := make([]decimal.Decimal, 0, len(payments))
		commissions := make([]decimal.Decimal, 0, len(payments))
		for _, p := range payments {
			ids = append(ids, p.ID)
			amounts = append(amounts, p.Amount)
			commissions = append(commissions, p.Commission)
		}
		total := money.Sum(amounts...)
		commissionTotal := money.Sum(commissions...)

		applied, err := a.applyCredit(ctx, a.credits.WithTx(tx), farmerID, commissionTotal)
		if err != nil {
			return err
		}

		payout := &models.FarmerPayout{
			FarmerID:        farmerID,
			Amount:          money.Round(total.Add(applied)),
			OriginalAmount:  money.Round(total),
			CreditApplied:   money.Round(applied),
			CommissionTotal: money.Round(commissionTotal),
			PaymentCount:    len(payments),
			Status:          enums.PayoutStatusPending,
		}
		if err := repo.CreatePayout(ctx, payout); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payout")
		}
		marked, err := repo.MarkPaymentsPaid(ctx, ids, payout.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payments paid")
		}
		if marked != int64(len(ids)) {
			return pkgerrors.New(pkgerrors.CodeConflict, "farmer payments claimed by another run").
				WithDetails(map[string]any{"expected": len(ids), "marked": marked})
		}

		created = payout
		return a.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventFarmerPayoutCreated,
			AggregateType: enums.AggregateFarmerPayout,
			AggregateID:   payout.ID,
			Data: FarmerPayoutCreatedEvent{
				PayoutID:        payout.ID,
				FarmerID:        farmerID,
				Amount:          payout.Amount,
				OriginalAmount:  payout.OriginalAmount,
				CreditApplied:   payout.CreditApplied,
				CommissionTotal: payout.CommissionTotal,
				PaymentIDs:      ids,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// applyCredit consumes referral credit up to the commission collected. The
// info row is locked so the balance check and decrement cannot interleave.
func (a *Aggregator) applyCredit(ctx context.Context, credits referral.Repository, farmerID uuid.UUID, commissionTotal decimal.Decimal) (decimal.Decimal, error) {
	info, err := credits.LockInfo(ctx, farmerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock referral credit")
	}
	applied := money.Round(money.Min(money.NonNegative(info.RemainingCredit), money.NonNegative(commissionTotal)))
	if !applied.IsPositive() {
		return decimal.Zero, nil
	}
	info.RemainingCredit = info.RemainingCredit.Sub(applied)
	if err := credits.SaveInfo(ctx, info); err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement referral credit")
	}
	return applied, nil
}

// FarmerPayoutStatusChangedEvent is emitted on every payout transition.
type FarmerPayoutStatusChangedEvent struct {
	PayoutID          uuid.UUID          `json:"payoutId"`
	FarmerID          uuid.UUID          `json:"farmerId"`
	From              enums.PayoutStatus `json:"from"`
	To                enums.PayoutStatus `json:"to"`
	TransferReference string             `json:"transferReference,omitempty"`
	FailureReason     string             `json:"failureReason,omitempty"`
}

// SubmitPayout sends a pending payout to the farmer's connected account. The
// payout moves to processing before the transfer and to completed or failed
// after it. A failed transfer is recorded and its error returned.
func (a *Aggregator) SubmitPayout(ctx context.Context, payoutID uuid.UUID) (*models.FarmerPayout, error) {
	if payoutID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout id required")
	}
	current, err := a.repo.FindPayout(ctx, payoutID)
	if err != nil {
		return nil, mapPayoutErr(err)
	}
	if current.Status != enums.PayoutStatusPending {
		return nil, invalidTransition(current, enums.PayoutStatusProcessing)
	}
	if a.provider == nil || a.destinations == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment provider not configured")
	}
	destination, err := a.destinations.PayoutDestination(ctx, current.FarmerID)
	if err != nil {
		return nil, err
	}

	ctx = a.logg.WithFarmerID(ctx, current.FarmerID.String())
	var payout *models.FarmerPayout
	err = a.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		payout, err = a.transition(ctx, tx, payoutID, enums.PayoutStatusProcessing, nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	amountMinor := money.ToMinorUnits(payout.Amount)
	updates := map[string]any{"completed_at": a.now()}
	next := enums.PayoutStatusCompleted
	var transferErr error
	if amountMinor > 0 {
		res, err := a.provider.Transfer(ctx, stripe.TransferRequest{
			AmountMinor: amountMinor,
			Currency:    a.currency,
			Destination: destination,
			Metadata: map[string]string{
				"payout_id":      payout.ID.String(),
				"farmer_id":      payout.FarmerID.String(),
				"credit_applied": payout.CreditApplied.StringFixed(2),
			},
			IdempotencyKey: "farmer-payout-" + payout.ID.String(),
		})
		if err != nil {
			transferErr = err
			next = enums.PayoutStatusFailed
			updates = map[string]any{"failure_reason": err.Error()}
		} else {
			updates["transfer_reference"] = res.ID
		}
	}

	err = a.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		payout, err = a.transition(ctx, tx, payoutID, next, updates)
		return err
	})
	if err != nil {
		return nil, err
	}
	a.metrics.IncSubmission(string(next))
	if transferErr != nil {
		a.logg.Error(ctx, "farmer payout transfer failed", transferErr)
		return payout, transferErr
	}
	a.logg.Info(ctx, fmt.Sprintf("farmer payout %s completed (%s)", payout.ID, payout.Amount.StringFixed(2)))
	return payout, nil
}

// SubmitPendingPayouts submits each payout of a run, collecting failures.
func (a *Aggregator) SubmitPendingPayouts(ctx context.Context, payouts []models.FarmerPayout) error {
	var combined error
	for _, p := range payouts {
		if _, err := a.SubmitPayout(ctx, p.ID); err != nil {
			combined = multierr.Append(combined, fmt.Errorf("payout %s: %w", p.ID, err))
		}
	}
	return combined
}

func (a *Aggregator) transition(ctx context.Context, tx *gorm.DB, payoutID uuid.UUID, next enums.PayoutStatus, updates map[string]any) (*models.FarmerPayout, error) {
	repo := a.repo.WithTx(tx)
	payout, err := repo.LockPayout(ctx, payoutID)
	if err != nil {
		return nil, mapPayoutErr(err)
	}
	from := payout.Status
	if !from.CanTransitionTo(next) {
		return nil, invalidTransition(payout, next)
	}
	fields := map[string]any{"status": next}
	for k, v := range updates {
		fields[k] = v
	}
	ok, err := repo.TransitionPayout(ctx, payoutID, from, fields)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payout status")
	}
	if !ok {
		return nil, invalidTransition(payout, next)
	}
	updated, err := repo.FindPayout(ctx, payoutID)
	if err != nil {
		return nil, mapPayoutErr(err)
	}

	event := FarmerPayoutStatusChangedEvent{
		PayoutID: payoutID,
		FarmerID: updated.FarmerID,
		From:     from,
		To:       next,
	}
	if updated.TransferReference != nil {
		event.TransferReference = *updated.TransferReference
	}
	if updated.FailureReason != nil {
		event.FailureReason = *updated.FailureReason
	}
	if err := a.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventFarmerPayoutStatusChanged,
		AggregateType: enums.AggregateFarmerPayout,
		AggregateID:   payoutID,
		Data:          event,
	}); err != nil {
		return nil, err
	}
	return updated, nil
}

func invalidTransition(payout *models.FarmerPayout, next enums.PayoutStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "invalid payout status transition").
		WithDetails(map[string]any{
			"payoutId": payout.ID,
			"from":     payout.Status,
			"to":       next,
		})
}

func mapPayoutErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "farmer payout not found")
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load farmer payout")
}
