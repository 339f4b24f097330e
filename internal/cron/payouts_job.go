package cron

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/angelmondragon/farmlink-backend/internal/payouts"
	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
	"github.com/angelmondragon/farmlink-backend/pkg/logger"
)

const FarmerPayoutsJobName = "farmer-weekly-payouts"

type payoutRunner interface {
	ProcessWeeklyPayouts(ctx context.Context) (*payouts.RunResult, error)
	SubmitPendingPayouts(ctx context.Context, payouts []models.FarmerPayout) error
}

type FarmerPayoutsJobParams struct {
	Logger     *logger.Logger
	Payouts    payoutRunner
	AutoSubmit bool
}

func NewFarmerPayoutsJob(params FarmerPayoutsJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payouts == nil {
		return nil, fmt.Errorf("payout aggregator required")
	}
	return &farmerPayoutsJob{
		logg:       params.Logger,
		payouts:    params.Payouts,
		autoSubmit: params.AutoSubmit,
	}, nil
}

type farmerPayoutsJob struct {
	logg       *logger.Logger
	payouts    payoutRunner
	autoSubmit bool
}

func (j *farmerPayoutsJob) Name() string { return FarmerPayoutsJobName }

// Run aggregates unpaid farmer payments and, when enabled, submits the new
// payouts. Per-farmer failures are returned together after the run finishes.
func (j *farmerPayoutsJob) Run(ctx context.Context) error {
	result, err := j.payouts.ProcessWeeklyPayouts(ctx)
	if err != nil {
		return fmt.Errorf("farmer payouts: %w", err)
	}
	errs := result.Err()
	submitted := 0
	if j.autoSubmit && len(result.Payouts) > 0 {
		if err := j.payouts.SubmitPendingPayouts(ctx, result.Payouts); err != nil {
			errs = multierr.Append(errs, err)
		}
		submitted = len(result.Payouts)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"payout_run_id": result.RunID,
		"payouts":       result.PayoutCount,
		"failures":      len(result.Failures),
		"submitted":     submitted,
	})
	j.logg.Info(logCtx, "farmer payout run complete")
	return errs
}
