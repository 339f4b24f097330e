package tax

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newCalculator(t *testing.T) *Calculator {
	t.Helper()
	calc, err := NewDefaultCalculator("")
	require.NoError(t, err)
	return calc
}

func TestCalculateTaxesBC(t *testing.T) {
	got := newCalculator(t).CalculateTaxes(dec("100"), "BC")
	require.Equal(t, "BC", got.Jurisdiction)
	require.Equal(t, "5.00", got.GSTAmount.StringFixed(2))
	require.Equal(t, "7.00", got.PSTAmount.StringFixed(2))
	require.Equal(t, "12.00", got.TotalTaxAmount.StringFixed(2))
}

func TestCalculateTaxesNormalizesCode(t *testing.T) {
	got := newCalculator(t).CalculateTaxes(dec("40"), " ab ")
	require.Equal(t, "AB", got.Jurisdiction)
	require.Equal(t, "2.00", got.TotalTaxAmount.StringFixed(2))
	require.True(t, got.PSTAmount.IsZero())
}

func TestCalculateTaxesUnknownFallsBackToDefault(t *testing.T) {
	calc := newCalculator(t)
	got := calc.CalculateTaxes(dec("100"), "ZZ")
	require.Equal(t, "BC", got.Jurisdiction)
	require.Equal(t, "12.00", got.TotalTaxAmount.StringFixed(2))

	empty := calc.CalculateTaxes(dec("100"), "")
	require.Equal(t, "BC", empty.Jurisdiction)
}

func TestCalculateTaxesRoundsEachOutput(t *testing.T) {
	// 9.99 in QC: gst 0.4995, pst 0.99650... total 1.49600...
	got := newCalculator(t).CalculateTaxes(dec("9.99"), "QC")
	require.Equal(t, "0.50", got.GSTAmount.StringFixed(2))
	require.Equal(t, "1.00", got.PSTAmount.StringFixed(2))
	require.Equal(t, "1.50", got.TotalTaxAmount.StringFixed(2))
}

func TestDefaultOverride(t *testing.T) {
	calc, err := NewDefaultCalculator("on")
	require.NoError(t, err)
	got := calc.CalculateTaxes(dec("100"), "XX")
	require.Equal(t, "ON", got.Jurisdiction)
	require.Equal(t, "13.00", got.TotalTaxAmount.StringFixed(2))

	_, err = NewDefaultCalculator("XX")
	require.Error(t, err)
}

func TestParseRejectsBadRates(t *testing.T) {
	_, err := Parse([]byte("default: AA\njurisdictions:\n  AA: { gst: \"abc\", pst: \"0\" }\n"), "")
	require.Error(t, err)

	_, err = Parse([]byte("default: AA\njurisdictions:\n  AA: { gst: \"-0.1\", pst: \"0\" }\n"), "")
	require.Error(t, err)
}

func TestJurisdictionsSorted(t *testing.T) {
	codes := newCalculator(t).Jurisdictions()
	require.Len(t, codes, 13)
	require.Equal(t, "AB", codes[0])
	require.Equal(t, "YT", codes[len(codes)-1])
}
