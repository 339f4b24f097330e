package payouts

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newMockRepo(t *testing.T) (Repository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	conn, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	return NewRepository(conn), mock
}

func TestLockUnpaidPaymentsSelectsForUpdate(t *testing.T) {
	repo, mock := newMockRepo(t)
	farmerID := uuid.New()
	paymentID := uuid.New()

	mock.ExpectQuery(`SELECT \* FROM "farmer_payments" WHERE .*farmer_id = \$1 AND is_paid = \$2.* ORDER BY created_at ASC FOR UPDATE`).
		WithArgs(sqlmock.AnyArg(), false).
		WillReturnRows(sqlmock.NewRows([]string{"id", "farmer_id", "amount", "commission", "is_paid"}).
			AddRow(paymentID.String(), farmerID.String(), "95.00", "5.00", false))

	payments, err := repo.LockUnpaidPayments(context.Background(), farmerID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	require.Equal(t, paymentID, payments[0].ID)
	require.Equal(t, "5.00", payments[0].Commission.StringFixed(2))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLockPayoutSelectsForUpdate(t *testing.T) {
	repo, mock := newMockRepo(t)
	payoutID := uuid.New()

	mock.ExpectQuery(`SELECT \* FROM "farmer_payouts" WHERE id = \$1 ORDER BY .* LIMIT .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).AddRow(payoutID.String(), "pending"))

	payout, err := repo.LockPayout(context.Background(), payoutID)
	require.NoError(t, err)
	require.Equal(t, payoutID, payout.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkPaymentsPaidOnlyTouchesUnpaidRows(t *testing.T) {
	repo, mock := newMockRepo(t)
	ids := []uuid.UUID{uuid.New(), uuid.New()}

	mock.ExpectExec(`UPDATE "farmer_payments" SET .*"is_paid"=\$.*WHERE .*id IN \(\$\d+,\$\d+\) AND is_paid = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	marked, err := repo.MarkPaymentsPaid(context.Background(), ids, uuid.New())
	require.NoError(t, err)
	require.EqualValues(t, 1, marked)
	require.NoError(t, mock.ExpectationsWereMet())
}
