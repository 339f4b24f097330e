package migrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const moneyCoreMigration = "20260301000000_money_core.sql"

func TestMoneyCoreMigrationCreatesTables(t *testing.T) {
	content := readMigration(t, moneyCoreMigration)

	tables := []string{
		"users", "driver_profiles", "farms",
		"pricing_configurations", "compensation_configurations", "commission_configurations",
		"orders", "order_items", "order_charges",
		"farmer_payments", "farmer_payouts",
		"delivery_batches", "driver_earnings",
		"referral_info", "referral_history",
		"outbox_events",
	}
	for _, table := range tables {
		require.Contains(t, content, "CREATE TABLE IF NOT EXISTS "+table+" (", table)
		require.Contains(t, content, "DROP TABLE IF EXISTS "+table+";", table)
	}
}

func TestMoneyCoreMigrationConstraints(t *testing.T) {
	content := readMigration(t, moneyCoreMigration)

	expected := []string{
		"order_id uuid NOT NULL UNIQUE REFERENCES orders(id)",
		"CONSTRAINT driver_earnings_driver_period_key UNIQUE (driver_id, period_start, period_end)",
		"CONSTRAINT farmer_payments_order_farm_key UNIQUE (order_id, farm_id)",
		"CONSTRAINT farmer_payouts_amount_check CHECK (amount = original_amount + credit_applied)",
		"CONSTRAINT farmer_payouts_credit_cap_check CHECK (credit_applied <= commission_total)",
		"CONSTRAINT referral_info_credit_check CHECK (remaining_credit >= 0 AND remaining_credit <= total_earned_credit)",
		"CREATE INDEX IF NOT EXISTS idx_farmer_payments_unpaid ON farmer_payments (farmer_id) WHERE is_paid = false;",
		"payload jsonb NOT NULL",
	}
	for _, fragment := range expected {
		require.Contains(t, content, fragment)
	}
}

func TestMoneyCoreMigrationSeedsCommission(t *testing.T) {
	content := readMigration(t, moneyCoreMigration)

	require.Contains(t, content, "INSERT INTO commission_configurations (name, effective_date, is_active, rate)")
	require.Contains(t, content, "0.0500")
}

func TestMoneyCoreMigrationDropsInDependencyOrder(t *testing.T) {
	content := readMigration(t, moneyCoreMigration)
	down := content[strings.Index(content, "-- +goose Down"):]

	// children before parents
	require.Less(t, strings.Index(down, "DROP TABLE IF EXISTS farmer_payments;"), strings.Index(down, "DROP TABLE IF EXISTS farmer_payouts;"))
	require.Less(t, strings.Index(down, "DROP TABLE IF EXISTS order_charges;"), strings.Index(down, "DROP TABLE IF EXISTS orders;"))
	require.Less(t, strings.Index(down, "DROP TABLE IF EXISTS referral_info;"), strings.Index(down, "DROP TABLE IF EXISTS users;"))
}

func TestValidateDirAcceptsRepoMigrations(t *testing.T) {
	require.NoError(t, ValidateDir("migrations"))
}

func TestValidateDirRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}

	write("20260101000000_bad.sql", "-- +goose Up\n-- +goose StatementBegin\nSELECT 1;\n-- +goose Down\n")
	err := ValidateDir(dir)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unterminated StatementBegin")

	require.NoError(t, os.Remove(filepath.Join(dir, "20260101000000_bad.sql")))
	write("not_a_migration.sql", "-- +goose Up\n-- +goose Down\n")
	err = ValidateDir(dir)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid migration filename")
}

func TestCreateSQLMigrationWritesValidTemplate(t *testing.T) {
	dir := t.TempDir()

	path, err := CreateSQLMigration(dir, "Add Payout Index!")
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(path, "_add_payout_index.sql"))
	require.NoError(t, ValidateDir(dir))

	_, err = CreateSQLMigration(dir, "  !!  ")
	require.Error(t, err)
}

func TestCreateSQLMigrationRejectsReusedVersion(t *testing.T) {
	dir := t.TempDir()
	fixed := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	prev := nowUTC
	nowUTC = func() time.Time { return fixed }
	t.Cleanup(func() { nowUTC = prev })

	path, err := CreateSQLMigration(dir, "payout_index")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "20260302093000_payout_index.sql"), path)

	_, err = CreateSQLMigration(dir, "referral_index")
	require.Error(t, err)
	require.Contains(t, err.Error(), "already used")
}

func TestDialectFor(t *testing.T) {
	for driver, want := range map[string]string{
		"":         DialectPostgres,
		"postgres": DialectPostgres,
		"pgx":      DialectPostgres,
		"sqlite":   DialectSQLite,
		"SQLite3":  DialectSQLite,
	} {
		got, err := DialectFor(driver)
		require.NoError(t, err, driver)
		require.Equal(t, want, got, driver)
	}

	_, err := DialectFor("mysql")
	require.Error(t, err)
}

func readMigration(t *testing.T, name string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("migrations", name))
	require.NoError(t, err)
	return string(b)
}
