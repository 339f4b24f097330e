package cron

import (
	"context"
	"fmt"
	"time"

	robfig "github.com/robfig/cron/v3"

	pkgerrors "github.com/angelmondragon/farmlink-backend/pkg/errors"
	"github.com/angelmondragon/farmlink-backend/pkg/logger"
	"github.com/angelmondragon/farmlink-backend/pkg/metrics"
)

// RunRecorder remembers when each job last completed successfully.
type RunRecorder interface {
	MarkRun(ctx context.Context, job string, at time.Time) error
}

// ServiceParams configure the cron service.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Location *time.Location
	Runs     RunRecorder
}

// Service executes registered jobs on their cron schedules.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.CronJobMetrics
	location *time.Location
	runs     RunRecorder
	now      func() time.Time
}

// NewService builds a cron service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	location := params.Location
	if location == nil {
		location = time.UTC
	}
	return &Service{
		logg:     params.Logger,
		registry: registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		location: location,
		runs:     params.Runs,
		now:      time.Now,
	}, nil
}

// Run schedules every registered job and blocks until the context is
// canceled. In-flight jobs finish before Run returns.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	scheduler := robfig.New(robfig.WithLocation(s.location))
	for _, entry := range s.registry.Entries() {
		job := entry.Job
		scheduler.Schedule(entry.Schedule, robfig.FuncJob(func() {
			if err := s.runLocked(ctx, job); err != nil {
				s.logg.Error(ctx, "scheduled run failed", err)
			}
		}))
		entryCtx := s.logg.WithFields(ctx, map[string]any{
			"job":      job.Name(),
			"schedule": entry.Spec,
			"next_run": entry.Schedule.Next(s.now().In(s.location)),
		})
		s.logg.Info(entryCtx, "job scheduled")
	}

	scheduler.Start()
	<-ctx.Done()
	s.logg.Info(ctx, "cron service context canceled")
	<-scheduler.Stop().Done()
	return ctx.Err()
}

// RunNow runs one registered job immediately under the same lock as its
// scheduled runs.
func (s *Service) RunNow(ctx context.Context, name string) error {
	job, ok := s.registry.Lookup(name)
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	return s.runLocked(ctx, job)
}

func (s *Service) runLocked(ctx context.Context, job Job) error {
	locked, err := s.lock.Acquire(ctx, job.Name())
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.metrics.IncSkipped(job.Name())
		s.logg.Info(s.logg.WithField(ctx, "job", job.Name()), "another cron instance is running this job; skipping")
		return nil
	}
	defer func() {
		if relErr := s.lock.Release(ctx, job.Name()); relErr != nil {
			s.logg.Error(ctx, "failed to release cron lock", relErr)
		}
	}()
	return s.runJob(ctx, job)
}

func (s *Service) runJob(ctx context.Context, job Job) error {
	jobCtx := s.logg.WithField(ctx, "job", job.Name())
	jobCtx = s.logg.WithField(jobCtx, "event", "cron.job")
	s.logg.Info(jobCtx, "job start")
	start := s.now()
	err := job.Run(jobCtx)
	duration := s.now().Sub(start)
	s.metrics.ObserveDuration(job.Name(), duration)
	jobCtx = s.logg.WithField(jobCtx, "duration_ms", duration.Milliseconds())
	if err != nil {
		jobCtx = s.logg.WithField(jobCtx, "error_dump", pkgerrors.Dump(err))
		s.logg.Error(jobCtx, "job failed", err)
		s.metrics.IncFailure(job.Name())
		return err
	}
	s.logg.Info(jobCtx, "job completed")
	s.metrics.IncSuccess(job.Name())
	if s.runs != nil {
		if markErr := s.runs.MarkRun(ctx, job.Name(), start); markErr != nil {
			s.logg.Warn(s.logg.WithField(jobCtx, "error", markErr.Error()), "failed to record last run")
		}
	}
	return nil
}
