package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/farmlink-backend/internal/compensation"
	"github.com/angelmondragon/farmlink-backend/internal/configstore"
	"github.com/angelmondragon/farmlink-backend/internal/cron"
	"github.com/angelmondragon/farmlink-backend/internal/payouts"
	"github.com/angelmondragon/farmlink-backend/internal/referral"
	"github.com/angelmondragon/farmlink-backend/internal/users"
	"github.com/angelmondragon/farmlink-backend/pkg/config"
	"github.com/angelmondragon/farmlink-backend/pkg/db"
	"github.com/angelmondragon/farmlink-backend/pkg/logger"
	"github.com/angelmondragon/farmlink-backend/pkg/metrics"
	"github.com/angelmondragon/farmlink-backend/pkg/migrate"
	"github.com/angelmondragon/farmlink-backend/pkg/outbox"
	"github.com/angelmondragon/farmlink-backend/pkg/redis"
	pkgstripe "github.com/angelmondragon/farmlink-backend/pkg/stripe"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	location, err := cfg.Compensation.Location()
	requireResource(logg, "compensation timezone", err)
	holidays, err := cfg.Compensation.HolidayDates()
	requireResource(logg, "compensation holidays", err)

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	requireResource(logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	requireResource(logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	var provider *pkgstripe.Provider
	if cfg.Stripe.APIKey != "" {
		stripeClient, err := pkgstripe.NewClient(context.Background(), cfg.Stripe, logg)
		requireResource(logg, "stripe", err)
		provider, err = pkgstripe.NewProvider(stripeClient, cfg.Stripe)
		requireResource(logg, "stripe provider", err)
	} else {
		logg.Warn(context.Background(), "stripe api key not set, payout submission disabled")
	}

	conn := dbClient.DB()
	outboxService := outbox.NewService(outbox.NewRepository(conn), logg)
	configs := configstore.New(conn)
	usersRepo := users.NewRepository(conn)

	compensationRepo := compensation.NewRepository(conn)
	engine, err := compensation.NewEngine(compensation.Deps{
		Configs:  configs,
		Activity: compensationRepo,
		Calendar: compensation.Calendar{Location: location, Holidays: holidays},
	})
	requireResource(logg, "compensation engine", err)

	compensationDeps := compensation.ServiceDeps{
		Repo:     compensationRepo,
		Engine:   engine,
		Tx:       dbClient,
		Outbox:   outboxService,
		Currency: cfg.Stripe.Currency,
		Logger:   logg,
	}
	payoutDeps := payouts.Deps{
		Repo:     payouts.NewRepository(conn),
		Credits:  referral.NewRepository(conn),
		Tx:       dbClient,
		Outbox:   outboxService,
		Currency: cfg.Stripe.Currency,
		Metrics:  metrics.NewPayoutMetrics(prometheus.DefaultRegisterer),
		Logger:   logg,
	}
	if provider != nil {
		destinations, err := users.NewService(usersRepo, provider)
		requireResource(logg, "users service", err)
		compensationDeps.Provider = provider
		compensationDeps.Destinations = destinations
		payoutDeps.Provider = provider
		payoutDeps.Destinations = destinations
	}

	earnings, err := compensation.NewService(compensationDeps)
	requireResource(logg, "compensation service", err)
	aggregator, err := payouts.NewAggregator(payoutDeps)
	requireResource(logg, "payout aggregator", err)

	registry := cron.NewRegistry()
	payoutsJob, err := cron.NewFarmerPayoutsJob(cron.FarmerPayoutsJobParams{
		Logger:     logg,
		Payouts:    aggregator,
		AutoSubmit: cfg.Payouts.AutoSubmit && provider != nil,
	})
	requireResource(logg, "farmer payouts job", err)
	requireResource(logg, "farmer payouts schedule", registry.Register(cfg.Payouts.FarmerSchedule, payoutsJob))

	earningsJob, err := cron.NewDriverEarningsJob(cron.DriverEarningsJobParams{
		Logger:   logg,
		Earnings: earnings,
		Location: location,
	})
	requireResource(logg, "driver earnings job", err)
	requireResource(logg, "driver earnings schedule", registry.Register(cfg.Payouts.EarningsSchedule, earningsJob))

	lock, err := cron.NewRedisLock(redisClient, cfg.Payouts.LockTTL)
	requireResource(logg, "cron lock", err)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Location: location,
		Runs:     redisClient,
	})
	requireResource(logg, "cron service", err)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"timezone":    location.String(),
	})
	for _, job := range registry.Jobs() {
		jobCtx := logg.WithField(ctx, "job", job.Name())
		lastRun, ok, err := redisClient.LastRun(ctx, job.Name())
		switch {
		case err != nil:
			logg.Warn(logg.WithField(jobCtx, "error", err.Error()), "failed to read last run")
		case ok:
			logg.Info(logg.WithField(jobCtx, "last_run", lastRun), "job previously completed")
		default:
			logg.Info(jobCtx, "job has no recorded run")
		}
	}
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func requireResource(logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), "resource not working: "+resource, err)
	os.Exit(1)
}
