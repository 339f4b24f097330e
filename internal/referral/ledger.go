package referral

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/farmlink-backend/internal/orders"
	"github.com/angelmondragon/farmlink-backend/pkg/config"
	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmlink-backend/pkg/errors"
	"github.com/angelmondragon/farmlink-backend/pkg/logger"
	"github.com/angelmondragon/farmlink-backend/pkg/money"
	"github.com/angelmondragon/farmlink-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// UserDirectory resolves users by id or by either referral code slot.
type UserDirectory interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindByReferralCode(ctx context.Context, code string) (*models.User, error)
}

// Ledger owns referral relationships and the two capped credit pools per
// user: free deliveries for consumers and cashback credit for farmers.
type Ledger struct {
	repo   Repository
	users  UserDirectory
	orders orders.Repository
	tx     txRunner
	outbox outboxPublisher
	caps   config.ReferralConfig
	logg   *logger.Logger
}

type Deps struct {
	Repo   Repository
	Users  UserDirectory
	Orders orders.Repository
	Tx     txRunner
	Outbox outboxPublisher
	Config config.ReferralConfig
	Logger *logger.Logger
}

func NewLedger(deps Deps) (*Ledger, error) {
	if deps.Repo == nil {
		return nil, fmt.Errorf("referral repository required")
	}
	if deps.Users == nil {
		return nil, fmt.Errorf("user directory required")
	}
	if deps.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
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
	return &Ledger{
		repo:   deps.Repo,
		users:  deps.Users,
		orders: deps.Orders,
		tx:     deps.Tx,
		outbox: deps.Outbox,
		caps:   deps.Config,
		logg:   logg,
	}, nil
}

// Result is the outcome of a referral operation. Business-rule rejections
// come back as Success=false with a Code; only infrastructure failures are
// returned as errors.
type Result struct {
	Success                       bool                 `json:"success"`
	Code                          pkgerrors.Code       `json:"code,omitempty"`
	Reason                        string               `json:"reason,omitempty"`
	ReferrerID                    uuid.UUID            `json:"referrerId"`
	ReferredID                    uuid.UUID            `json:"referredId"`
	ReferralType                  enums.ReferralType   `json:"referralType,omitempty"`
	Status                        enums.ReferralStatus `json:"status,omitempty"`
	FreeDeliveriesGranted         int                  `json:"freeDeliveriesGranted"`
	ReferrerFreeDeliveriesGranted int                  `json:"referrerFreeDeliveriesGranted"`
	CashbackGranted               decimal.Decimal      `json:"cashbackGranted"`
	ReferrerCashbackGranted       decimal.Decimal      `json:"referrerCashbackGranted"`
}

func failure(code pkgerrors.Code, reason string) *Result {
	return &Result{Code: code, Reason: reason}
}

// rejected aborts a transaction with a structured result.
type rejected struct {
	result *Result
}

func (r *rejected) Error() string {
	return fmt.Sprintf("%s: %s", r.result.Code, r.result.Reason)
}

func reject(code pkgerrors.Code, reason string) error {
	return &rejected{result: failure(code, reason)}
}

func asRejected(err error) (*Result, bool) {
	var r *rejected
	if errors.As(err, &r) {
		return r.result, true
	}
	return nil, false
}

// EnsureReferralInfo returns the user's info row, creating a pending one when missing.
func (l *Ledger) EnsureReferralInfo(ctx context.Context, userID uuid.UUID) (*models.ReferralInfo, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	var info *models.ReferralInfo
	err := l.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		info, err = lockOrCreate(ctx, l.repo.WithTx(tx), userID)
		return err
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure referral info")
	}
	return info, nil
}

// ReferralProcessedEvent is emitted when a referral relationship is recorded.
type ReferralProcessedEvent struct {
	ReferrerID                    uuid.UUID            `json:"referrerId"`
	ReferredID                    uuid.UUID            `json:"referredId"`
	ReferralCode                  string               `json:"referralCode"`
	ReferralType                  enums.ReferralType   `json:"referralType"`
	Status                        enums.ReferralStatus `json:"status"`
	FreeDeliveriesGranted         int                  `json:"freeDeliveriesGranted"`
	ReferrerFreeDeliveriesGranted int                  `json:"referrerFreeDeliveriesGranted"`
}

// ProcessReferral links a newly registered user to the owner of code. The
// first referrer wins. Referrals of consumers grant free deliveries to both
// sides at once; referrals of farmers wait for ApplyFarmerReferralCashback.
func (l *Ledger) ProcessReferral(ctx context.Context, code string, newUserID uuid.UUID, newUserRole enums.UserRole) (*Result, error) {
	if newUserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "new user id required")
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return failure(pkgerrors.CodeInvalidReferralCode, "referral code required"), nil
	}
	referrer, err := l.users.FindByReferralCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return failure(pkgerrors.CodeInvalidReferralCode, "no user matches referral code"), nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve referral code")
	}
	if referrer.ID == newUserID {
		return failure(pkgerrors.CodeValidation, "users cannot refer themselves"), nil
	}
	refType, err := enums.ClassifyReferral(referrer.Role, newUserRole)
	if err != nil {
		return failure(pkgerrors.CodeValidation, err.Error()), nil
	}

	result := &Result{
		Success:      true,
		ReferrerID:   referrer.ID,
		ReferredID:   newUserID,
		ReferralType: refType,
	}
	err = l.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := l.repo.WithTx(tx)
		referred, referrerInfo, err := lockPair(ctx, repo, newUserID, referrer.ID)
		if err != nil {
			return err
		}
		if referred.ReferredBy != nil {
			return reject(pkgerrors.CodeAlreadyReferred, "user already has a referrer")
		}

		referred.ReferredBy = &referrer.ID
		referred.ReferralType = &refType
		history := &models.ReferralHistory{
			ReferrerID:   referrer.ID,
			ReferredID:   newUserID,
			ReferralCode: code,
			ReferralType: refType,
		}

		if refType.ReferredConsumer() {
			result.FreeDeliveriesGranted = l.grantFreeDeliveries(referred)
			result.ReferrerFreeDeliveriesGranted = l.grantFreeDeliveries(referrerInfo)
			advance(referred, enums.ReferralStatusCompleted)
			reward := enums.RewardFreeDelivery
			amount := decimal.NewFromInt(int64(result.FreeDeliveriesGranted))
			history.RewardType = &reward
			history.RewardAmount = &amount
		} else {
			advance(referred, enums.ReferralStatusActive)
		}
		history.Status = referred.ReferralStatus
		result.Status = referred.ReferralStatus

		if err := repo.SaveInfo(ctx, referred); err != nil {
			return err
		}
		if err := repo.SaveInfo(ctx, referrerInfo); err != nil {
			return err
		}
		if err := repo.CreateHistory(ctx, history); err != nil {
			return err
		}
		return l.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventReferralProcessed,
			AggregateType: enums.AggregateReferral,
			AggregateID:   newUserID,
			Data: ReferralProcessedEvent{
				ReferrerID:                    referrer.ID,
				ReferredID:                    newUserID,
				ReferralCode:                  code,
				ReferralType:                  refType,
				Status:                        result.Status,
				FreeDeliveriesGranted:         result.FreeDeliveriesGranted,
				ReferrerFreeDeliveriesGranted: result.ReferrerFreeDeliveriesGranted,
			},
		})
	})
	if err != nil {
		if res, ok := asRejected(err); ok {
			res.ReferrerID, res.ReferredID, res.ReferralType = referrer.ID, newUserID, refType
			return res, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "process referral")
	}
	l.logg.Info(ctx, fmt.Sprintf("referral %s recorded: %s -> %s", refType, referrer.ID, newUserID))
	return result, nil
}

// ReferralRewardEvent is emitted when farmer cashback is granted.
type ReferralRewardEvent struct {
	ReferrerID              uuid.UUID        `json:"referrerId"`
	ReferredID              uuid.UUID        `json:"referredId"`
	RewardType              enums.RewardType `json:"rewardType"`
	CashbackGranted         decimal.Decimal  `json:"cashbackGranted"`
	ReferrerCashbackGranted decimal.Decimal  `json:"referrerCashbackGranted"`
}

// ApplyFarmerReferralCashback grants the deferred cashback of a referred
// farmer, typically on their first sale. The referrer receives the same
// capped amount only when they are a farmer too.
func (l *Ledger) ApplyFarmerReferralCashback(ctx context.Context, farmerID uuid.UUID) (*Result, error) {
	if farmerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "farmer id required")
	}
	info, err := l.repo.FindInfo(ctx, farmerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return failure(pkgerrors.CodeNotFound, "no referral info for farmer"), nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load referral info")
	}
	if info.ReferredBy == nil {
		return failure(pkgerrors.CodeNotFound, "farmer has no referrer"), nil
	}
	if info.ReferralStatus == enums.ReferralStatusCompleted {
		return failure(pkgerrors.CodeAlreadyCompleted, "referral already completed"), nil
	}
	if info.ReferralType != nil && info.ReferralType.ReferredConsumer() {
		return failure(pkgerrors.CodeValidation, "referral does not earn farmer cashback"), nil
	}
	referrer, err := l.users.FindByID(ctx, *info.ReferredBy)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return failure(pkgerrors.CodeNotFound, "referrer not found"), nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load referrer")
	}

	result := &Result{
		Success:    true,
		ReferrerID: referrer.ID,
		ReferredID: farmerID,
		Status:     enums.ReferralStatusCompleted,
	}
	if info.ReferralType != nil {
		result.ReferralType = *info.ReferralType
	}
	err = l.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := l.repo.WithTx(tx)
		farmerInfo, referrerInfo, err := lockPair(ctx, repo, farmerID, referrer.ID)
		if err != nil {
			return err
		}
		if farmerInfo.ReferralStatus == enums.ReferralStatusCompleted {
			return reject(pkgerrors.CodeAlreadyCompleted, "referral already completed")
		}
		if farmerInfo.TotalEarnedCredit.GreaterThanOrEqual(l.caps.MaxLifetimeCashback) {
			return reject(pkgerrors.CodeCapReached, "lifetime cashback cap reached")
		}

		result.CashbackGranted = l.grantCashback(farmerInfo)
		advance(farmerInfo, enums.ReferralStatusCompleted)
		if referrer.Role == enums.UserRoleFarmer {
			result.ReferrerCashbackGranted = l.grantCashback(referrerInfo)
		} else {
			result.ReferrerCashbackGranted = decimal.Zero
		}

		if err := repo.SaveInfo(ctx, farmerInfo); err != nil {
			return err
		}
		if err := repo.SaveInfo(ctx, referrerInfo); err != nil {
			return err
		}

		reward := enums.RewardCashback
		history, err := repo.LatestHistory(ctx, referrer.ID, farmerID)
		switch {
		case err == nil:
			if err := repo.UpdateHistory(ctx, history.ID, map[string]any{
				"status":        enums.ReferralStatusCompleted,
				"reward_type":   reward,
				"reward_amount": result.CashbackGranted,
			}); err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			amount := result.CashbackGranted
			if err := repo.CreateHistory(ctx, &models.ReferralHistory{
				ReferrerID:   referrer.ID,
				ReferredID:   farmerID,
				ReferralType: result.ReferralType,
				Status:       enums.ReferralStatusCompleted,
				RewardType:   &reward,
				RewardAmount: &amount,
			}); err != nil {
				return err
			}
		default:
			return err
		}

		return l.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventReferralRewardGranted,
			AggregateType: enums.AggregateReferral,
			AggregateID:   farmerID,
			Data: ReferralRewardEvent{
				ReferrerID:              referrer.ID,
				ReferredID:              farmerID,
				RewardType:              reward,
				CashbackGranted:         result.CashbackGranted,
				ReferrerCashbackGranted: result.ReferrerCashbackGranted,
			},
		})
	})
	if err != nil {
		if res, ok := asRejected(err); ok {
			res.ReferrerID, res.ReferredID, res.ReferralType = referrer.ID, farmerID, result.ReferralType
			return res, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply farmer cashback")
	}
	ctx = l.logg.WithFarmerID(ctx, farmerID.String())
	l.logg.Info(ctx, fmt.Sprintf("farmer referral cashback granted: %s", result.CashbackGranted.StringFixed(2)))
	return result, nil
}

// FreeDeliveryResult reports whether an order's delivery fee was waived.
type FreeDeliveryResult struct {
	OrderID                 uuid.UUID       `json:"orderId"`
	FreeDeliveryApplied     bool            `json:"freeDeliveryApplied"`
	DeliveryFeeWaived       decimal.Decimal `json:"deliveryFeeWaived"`
	FreeDeliveriesRemaining int             `json:"freeDeliveriesRemaining"`
	Reason                  string          `json:"reason,omitempty"`
}

// FreeDeliveryAppliedEvent is emitted when a free delivery is consumed.
type FreeDeliveryAppliedEvent struct {
	OrderID                 uuid.UUID       `json:"orderId"`
	UserID                  uuid.UUID       `json:"userId"`
	DeliveryFeeWaived       decimal.Decimal `json:"deliveryFeeWaived"`
	FinalTotal              decimal.Decimal `json:"finalTotal"`
	FreeDeliveriesRemaining int             `json:"freeDeliveriesRemaining"`
}

// ApplyFreeDeliveryIfAvailable consumes one free delivery against an unpaid
// order: the counter, the order's delivery fee and its final total change in
// one transaction. With nothing to apply it succeeds without changes.
func (l *Ledger) ApplyFreeDeliveryIfAvailable(ctx context.Context, orderID, userID uuid.UUID) (*FreeDeliveryResult, error) {
	if orderID == uuid.Nil || userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id and user id required")
	}
	result := &FreeDeliveryResult{OrderID: orderID, DeliveryFeeWaived: decimal.Zero}
	skip := func(reason string) error {
		result.Reason = reason
		return nil
	}

	err := l.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := l.repo.WithTx(tx)
		info, err := repo.LockInfo(ctx, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return skip("no referral info")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock referral info")
		}
		result.FreeDeliveriesRemaining = info.FreeDeliveriesRemaining
		if info.FreeDeliveriesRemaining <= 0 {
			return skip("no free deliveries remaining")
		}

		orderRepo := l.orders.WithTx(tx)
		order, err := orderRepo.LockOrder(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order")
		}
		if order.UserID != userID {
			return pkgerrors.New(pkgerrors.CodeValidation, "order does not belong to user")
		}
		if order.FreeDeliveryApplied {
			return skip("free delivery already applied")
		}
		if order.Status != enums.OrderStatusPendingPayment {
			return skip("order is not awaiting payment")
		}
		charges, err := orderRepo.LockCharges(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return skip("order charges not saved")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order charges")
		}
		fee := charges.CustomerDeliveryFee
		if !fee.IsPositive() {
			return skip("no delivery fee to waive")
		}

		info.FreeDeliveriesRemaining--
		finalTotal := money.Round(charges.FinalTotal.Sub(fee))
		if err := repo.SaveInfo(ctx, info); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement free deliveries")
		}
		if err := orderRepo.UpdateCharges(ctx, orderID, map[string]any{
			"customer_delivery_fee": decimal.Zero,
			"final_total":           finalTotal,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "waive delivery fee")
		}
		if err := orderRepo.UpdateOrder(ctx, orderID, map[string]any{"free_delivery_applied": true}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "flag free delivery")
		}

		result.FreeDeliveryApplied = true
		result.DeliveryFeeWaived = fee
		result.FreeDeliveriesRemaining = info.FreeDeliveriesRemaining
		return l.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventFreeDeliveryApplied,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Data: FreeDeliveryAppliedEvent{
				OrderID:                 orderID,
				UserID:                  userID,
				DeliveryFeeWaived:       fee,
				FinalTotal:              finalTotal,
				FreeDeliveriesRemaining: info.FreeDeliveriesRemaining,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// FreeDeliveryAvailable reports whether the user has a free delivery left.
func (l *Ledger) FreeDeliveryAvailable(ctx context.Context, userID uuid.UUID) (bool, error) {
	info, err := l.repo.FindInfo(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return info.FreeDeliveriesRemaining > 0, nil
}

// Stats is a read-only projection of a user's referral activity.
type Stats struct {
	UserID                  uuid.UUID            `json:"userId"`
	Status                  enums.ReferralStatus `json:"status"`
	ReferredBy              *uuid.UUID           `json:"referredBy,omitempty"`
	ReferralCount           int64                `json:"referralCount"`
	CompletedReferrals      int64                `json:"completedReferrals"`
	FreeDeliveriesEarned    int                  `json:"freeDeliveriesEarned"`
	FreeDeliveriesRemaining int                  `json:"freeDeliveriesRemaining"`
	CreditEarned            decimal.Decimal      `json:"creditEarned"`
	CreditRemaining         decimal.Decimal      `json:"creditRemaining"`
}

func (l *Ledger) Stats(ctx context.Context, userID uuid.UUID) (*Stats, error) {
	stats := &Stats{
		UserID:          userID,
		Status:          enums.ReferralStatusPending,
		CreditEarned:    decimal.Zero,
		CreditRemaining: decimal.Zero,
	}
	info, err := l.repo.FindInfo(ctx, userID)
	switch {
	case err == nil:
		stats.Status = info.ReferralStatus
		stats.ReferredBy = info.ReferredBy
		stats.FreeDeliveriesEarned = info.TotalFreeDeliveries
		stats.FreeDeliveriesRemaining = info.FreeDeliveriesRemaining
		stats.CreditEarned = info.TotalEarnedCredit
		stats.CreditRemaining = info.RemainingCredit
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load referral info")
	}
	total, completed, err := l.repo.CountReferrals(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count referrals")
	}
	stats.ReferralCount = total
	stats.CompletedReferrals = completed
	return stats, nil
}

// grantFreeDeliveries adds the per-referral grant clipped to the lifetime cap.
func (l *Ledger) grantFreeDeliveries(info *models.ReferralInfo) int {
	grant := l.caps.FreeDeliveriesPerReferral
	if room := l.caps.MaxLifetimeFreeDeliveries - info.TotalFreeDeliveries; room < grant {
		grant = room
	}
	if grant <= 0 {
		return 0
	}
	info.FreeDeliveriesRemaining += grant
	info.TotalFreeDeliveries += grant
	return grant
}

func (l *Ledger) grantCashback(info *models.ReferralInfo) decimal.Decimal {
	room := money.NonNegative(l.caps.MaxLifetimeCashback.Sub(info.TotalEarnedCredit))
	grant := money.Min(l.caps.CashbackPerFarmerReferral, room)
	if !grant.IsPositive() {
		return decimal.Zero
	}
	info.RemainingCredit = info.RemainingCredit.Add(grant)
	info.TotalEarnedCredit = info.TotalEarnedCredit.Add(grant)
	return grant
}

func advance(info *models.ReferralInfo, next enums.ReferralStatus) {
	if info.ReferralStatus.CanTransitionTo(next) {
		info.ReferralStatus = next
	}
}

func newInfo(userID uuid.UUID) *models.ReferralInfo {
	return &models.ReferralInfo{
		UserID:            userID,
		ReferralStatus:    enums.ReferralStatusPending,
		RemainingCredit:   decimal.Zero,
		TotalEarnedCredit: decimal.Zero,
	}
}

func lockOrCreate(ctx context.Context, repo Repository, userID uuid.UUID) (*models.ReferralInfo, error) {
	info, err := repo.LockInfo(ctx, userID)
	if err == nil {
		return info, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	info = newInfo(userID)
	if err := repo.CreateInfo(ctx, info); err != nil {
		return nil, err
	}
	return info, nil
}

// lockPair locks two info rows in a stable order so concurrent operations on
// the same pair cannot deadlock. Results come back in argument order.
func lockPair(ctx context.Context, repo Repository, a, b uuid.UUID) (*models.ReferralInfo, *models.ReferralInfo, error) {
	first, second := a, b
	swapped := b.String() < a.String()
	if swapped {
		first, second = b, a
	}
	x, err := lockOrCreate(ctx, repo, first)
	if err != nil {
		return nil, nil, err
	}
	y, err := lockOrCreate(ctx, repo, second)
	if err != nil {
		return nil, nil, err
	}
	if swapped {
		return y, x, nil
	}
	return x, y, nil
}
