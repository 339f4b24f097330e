// Package testdb opens isolated in-memory sqlite databases carrying the ledger
// schema, for repository and service tests.
package testdb

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/farmlink-backend/pkg/db"
)

var schema = []string{
	`CREATE TABLE users (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  first_name TEXT NOT NULL,
  last_name TEXT NOT NULL,
  role TEXT NOT NULL,
  referral_code TEXT NOT NULL UNIQUE,
  custom_referral_code TEXT UNIQUE,
  stripe_account_id TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE driver_profiles (
  user_id TEXT PRIMARY KEY,
  rating TEXT NOT NULL DEFAULT '0',
  active_since DATETIME NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE farms (
  id TEXT PRIMARY KEY,
  farmer_id TEXT NOT NULL,
  name TEXT NOT NULL,
  created_at DATETIME
);`,
	`CREATE TABLE pricing_configurations (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  effective_date DATETIME NOT NULL,
  expiration_date DATETIME,
  is_active INTEGER NOT NULL DEFAULT 1,
  platform_fee_rate TEXT NOT NULL,
  payment_processing_fee_rate TEXT NOT NULL,
  delivery_fee_flat TEXT NOT NULL,
  free_delivery_threshold TEXT NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE compensation_configurations (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  effective_date DATETIME NOT NULL,
  expiration_date DATETIME,
  is_active INTEGER NOT NULL DEFAULT 1,
  base_hourly_rate TEXT NOT NULL,
  delivery_completion_bonus TEXT NOT NULL,
  mileage_compensation TEXT NOT NULL,
  weekend_holiday_rate TEXT NOT NULL DEFAULT '0',
  after_hours_rate TEXT NOT NULL DEFAULT '0',
  remote_area_rate TEXT NOT NULL DEFAULT '0',
  difficult_access_rate TEXT NOT NULL DEFAULT '0',
  efficiency_deliveries_per_hour TEXT NOT NULL DEFAULT '0',
  efficiency_bonus TEXT NOT NULL DEFAULT '0',
  batch_min_deliveries INTEGER NOT NULL DEFAULT 0,
  batch_bonus TEXT NOT NULL DEFAULT '0',
  satisfaction_min_rating TEXT NOT NULL DEFAULT '0',
  satisfaction_bonus TEXT NOT NULL DEFAULT '0',
  retention_min_months INTEGER NOT NULL DEFAULT 0,
  retention_bonus TEXT NOT NULL DEFAULT '0',
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE commission_configurations (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  effective_date DATETIME NOT NULL,
  expiration_date DATETIME,
  is_active INTEGER NOT NULL DEFAULT 1,
  rate TEXT NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE orders (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  status TEXT NOT NULL,
  delivery_method TEXT NOT NULL,
  jurisdiction TEXT NOT NULL,
  free_delivery_applied INTEGER NOT NULL DEFAULT 0,
  paid_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  farm_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  price TEXT NOT NULL,
  subtotal TEXT NOT NULL,
  created_at DATETIME
);`,
	`CREATE TABLE order_charges (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL UNIQUE,
  pricing_configuration_id TEXT NOT NULL,
  product_subtotal TEXT NOT NULL,
  customer_delivery_fee TEXT NOT NULL,
  customer_platform_fee TEXT NOT NULL,
  payment_processing_fee TEXT NOT NULL,
  gst_amount TEXT NOT NULL,
  pst_amount TEXT NOT NULL,
  tax_amount TEXT NOT NULL,
  final_total TEXT NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE farmer_payments (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  farm_id TEXT NOT NULL,
  farmer_id TEXT NOT NULL,
  amount TEXT NOT NULL,
  commission TEXT NOT NULL,
  commission_config_id TEXT NOT NULL,
  commission_rate TEXT NOT NULL,
  is_paid INTEGER NOT NULL DEFAULT 0,
  payout_id TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE farmer_payouts (
  id TEXT PRIMARY KEY,
  farmer_id TEXT NOT NULL,
  amount TEXT NOT NULL,
  original_amount TEXT NOT NULL,
  credit_applied TEXT NOT NULL,
  commission_total TEXT NOT NULL,
  payment_count INTEGER NOT NULL,
  status TEXT NOT NULL,
  transfer_reference TEXT,
  failure_reason TEXT,
  completed_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE delivery_batches (
  id TEXT PRIMARY KEY,
  driver_id TEXT NOT NULL,
  status TEXT NOT NULL,
  completed_at DATETIME,
  actual_duration_minutes INTEGER NOT NULL DEFAULT 0,
  delivery_count INTEGER NOT NULL DEFAULT 0,
  total_distance_km TEXT NOT NULL DEFAULT '0',
  remote_area INTEGER NOT NULL DEFAULT 0,
  difficult_access INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME
);`,
	`CREATE TABLE driver_earnings (
  id TEXT PRIMARY KEY,
  driver_id TEXT NOT NULL,
  compensation_configuration_id TEXT NOT NULL,
  period_start DATETIME NOT NULL,
  period_end DATETIME NOT NULL,
  hours_worked TEXT NOT NULL,
  delivery_count INTEGER NOT NULL,
  distance_km TEXT NOT NULL,
  base_hourly_pay TEXT NOT NULL,
  delivery_bonus_amount TEXT NOT NULL,
  mileage_amount TEXT NOT NULL,
  efficiency_bonus_amount TEXT NOT NULL,
  batch_bonus_amount TEXT NOT NULL,
  satisfaction_bonus_amount TEXT NOT NULL,
  retention_bonus_amount TEXT NOT NULL,
  special_condition_amount TEXT NOT NULL,
  total_earnings TEXT NOT NULL,
  is_weekend_holiday INTEGER NOT NULL DEFAULT 0,
  is_after_hours INTEGER NOT NULL DEFAULT 0,
  is_remote_area INTEGER NOT NULL DEFAULT 0,
  is_difficult_access INTEGER NOT NULL DEFAULT 0,
  is_paid INTEGER NOT NULL DEFAULT 0,
  payment_reference TEXT,
  paid_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME,
  CONSTRAINT driver_earnings_driver_period_key UNIQUE (driver_id, period_start, period_end)
);`,
	`CREATE TABLE referral_info (
  user_id TEXT PRIMARY KEY,
  referred_by TEXT,
  referral_type TEXT,
  referral_status TEXT NOT NULL,
  free_deliveries_remaining INTEGER NOT NULL DEFAULT 0,
  total_free_deliveries INTEGER NOT NULL DEFAULT 0,
  remaining_credit TEXT NOT NULL DEFAULT '0',
  total_earned_credit TEXT NOT NULL DEFAULT '0',
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE referral_history (
  id TEXT PRIMARY KEY,
  referrer_id TEXT NOT NULL,
  referred_id TEXT NOT NULL,
  referral_code TEXT NOT NULL,
  referral_type TEXT NOT NULL,
  status TEXT NOT NULL,
  reward_type TEXT,
  reward_amount TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME
);`,
}

// Open returns a fresh database with the full schema. Each call gets its own
// named in-memory database, so tests do not share rows.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		require.NoError(t, conn.Exec(stmt).Error)
	}
	return conn
}

// Client wraps Open in a db.Client for services that take a transaction runner.
func Client(t *testing.T) (*db.Client, *gorm.DB) {
	t.Helper()
	conn := Open(t)
	return db.Wrap(conn), conn
}
