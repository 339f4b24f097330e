package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/farmlink-backend/internal/compensation"
	"github.com/angelmondragon/farmlink-backend/pkg/logger"
)

const DriverEarningsJobName = "driver-period-earnings"

type earningsGenerator interface {
	GeneratePeriodEarnings(ctx context.Context, start, end time.Time) (*compensation.GenerationResult, error)
}

type DriverEarningsJobParams struct {
	Logger   *logger.Logger
	Earnings earningsGenerator
	Location *time.Location
}

func NewDriverEarningsJob(params DriverEarningsJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Earnings == nil {
		return nil, fmt.Errorf("earnings generator required")
	}
	location := params.Location
	if location == nil {
		location = time.UTC
	}
	return &driverEarningsJob{
		logg:     params.Logger,
		earnings: params.Earnings,
		location: location,
		now:      time.Now,
	}, nil
}

type driverEarningsJob struct {
	logg     *logger.Logger
	earnings earningsGenerator
	location *time.Location
	now      func() time.Time
}

func (j *driverEarningsJob) Name() string { return DriverEarningsJobName }

func (j *driverEarningsJob) Run(ctx context.Context) error {
	start, end := previousWeek(j.now(), j.location)
	result, err := j.earnings.GeneratePeriodEarnings(ctx, start, end)
	if result != nil {
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"period_start": start,
			"period_end":   end,
			"created":      len(result.Created),
			"skipped":      len(result.Skipped),
		})
		j.logg.Info(logCtx, "driver period earnings generated")
	}
	if err != nil {
		return fmt.Errorf("driver earnings: %w", err)
	}
	return nil
}

// previousWeek returns the Monday 00:00 to Sunday 23:59:59.999999999 window,
// in loc, of the week before the one containing now.
func previousWeek(now time.Time, loc *time.Location) (time.Time, time.Time) {
	local := now.In(loc)
	offset := (int(local.Weekday()) + 6) % 7
	thisMonday := time.Date(local.Year(), local.Month(), local.Day()-offset, 0, 0, 0, 0, loc)
	start := thisMonday.AddDate(0, 0, -7)
	end := thisMonday.Add(-time.Nanosecond)
	return start, end
}
