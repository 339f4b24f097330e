package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeConfigurationNotFound, status: http.StatusServiceUnavailable, publicMsg: "no active configuration"},
		{code: CodeAlreadyPaid, status: http.StatusConflict, publicMsg: "already paid"},
		{code: CodeInvalidReferralCode, status: http.StatusBadRequest, publicMsg: "invalid referral code", detailsOK: true},
		{code: CodeProviderError, status: http.StatusBadGateway, publicMsg: "payment provider error", retryable: true, detailsOK: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		require.Equal(t, tt.status, meta.HTTPStatus, tt.code)
		require.Equal(t, tt.publicMsg, meta.PublicMessage, tt.code)
		require.Equal(t, tt.retryable, meta.Retryable, tt.code)
		require.Equal(t, tt.detailsOK, meta.DetailsAllowed, tt.code)
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	require.Equal(t, http.StatusInternalServerError, meta.HTTPStatus)
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing farm id")
	require.Equal(t, CodeValidation, base.Code())
	require.Equal(t, "missing farm id", base.Message())
	require.Nil(t, base.Details())

	base.WithDetails(map[string]any{"field": "farmId"})
	require.NotNil(t, base.Details())

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeProviderError, cause, "transfer failed")
	require.ErrorIs(t, wrapped, cause)
	require.Equal(t, CodeProviderError, wrapped.Code())
	require.Contains(t, wrapped.Error(), "boom")
}

func TestCodeOfWalksChain(t *testing.T) {
	err := fmt.Errorf("settle order: %w", New(CodeAlreadyPaid, "order already paid"))
	require.Equal(t, CodeAlreadyPaid, CodeOf(err))
	require.True(t, IsCode(err, CodeAlreadyPaid))
	require.False(t, IsCode(err, CodeConflict))
	require.Equal(t, CodeInternal, CodeOf(stdErrors.New("plain")))
	require.Nil(t, As(nil))
}

func TestDumpCarriesCodeAndPostgresFields(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:           "23505",
		ConstraintName: "driver_earnings_driver_period_key",
		TableName:      "driver_earnings",
		Message:        "duplicate key value violates unique constraint",
	}
	err := Wrap(CodeDependency, fmt.Errorf("insert earnings: %w", pgErr), "save earnings").
		WithDetails(map[string]any{"driverId": "d-1"})

	d := Dump(err)
	require.Equal(t, CodeDependency, d.Code)
	require.True(t, d.Retryable)
	require.Equal(t, map[string]any{"driverId": "d-1"}, d.Details)
	require.Equal(t, "23505", d.PGCode)
	require.Equal(t, "driver_earnings_driver_period_key", d.PGConstraint)
	require.Equal(t, "driver_earnings", d.PGTable)
	require.Len(t, d.Chain, 3)
}

func TestDumpReadsLibPQErrors(t *testing.T) {
	err := fmt.Errorf("mark paid: %w", &pq.Error{Code: "40001", Table: "farmer_payments", Message: "could not serialize access"})

	d := Dump(err)
	require.Empty(t, d.Code)
	require.Equal(t, "40001", d.PGCode)
	require.Equal(t, "farmer_payments", d.PGTable)
	require.Equal(t, "could not serialize access", d.PGMessage)
}

func TestDumpNil(t *testing.T) {
	require.Equal(t, ErrorDump{}, Dump(nil))
}
