package currency

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-posting/internal/shared"
)

func TestValidateSameCurrency(t *testing.T) {
	res, err := Validate(" myr", "MYR ")
	require.NoError(t, err)
	require.False(t, res.RequiresFXRate)
	require.Equal(t, "MYR", res.NormalizedBase)
	require.Equal(t, "MYR", res.NormalizedTransaction)
}

func TestValidateForeignCurrency(t *testing.T) {
	res, err := Validate("MYR", "usd")
	require.NoError(t, err)
	require.True(t, res.RequiresFXRate)
	require.Equal(t, "USD", res.NormalizedTransaction)
}

func TestValidateRejectsMalformed(t *testing.T) {
	for _, code := range []string{"", "US", "USDX", "U5D", "€UR"} {
		_, err := Validate("MYR", code)
		require.Error(t, err, code)
		require.Equal(t, shared.CodeInvalidCurrencyFormat, shared.CodeOf(err), code)
		require.False(t, shared.IsRetryable(err))
	}
}

func TestValidateRejectsUnknown(t *testing.T) {
	_, err := Validate("ABC", "MYR")
	require.Error(t, err)
	require.Equal(t, shared.CodeUnknownCurrency, shared.CodeOf(err))
}

func TestValidateNormalizationIdempotent(t *testing.T) {
	pairs := [][2]string{{" sgd ", "Usd"}, {"eur", "EUR"}, {"xx", "MYR"}, {"idr", "zzz"}}
	for _, p := range pairs {
		raw, rawErr := Validate(p[0], p[1])
		norm, normErr := Validate(Normalize(p[0]), Normalize(p[1]))
		require.Equal(t, raw, norm)
		require.Equal(t, shared.CodeOf(rawErr), shared.CodeOf(normErr))
	}
}
