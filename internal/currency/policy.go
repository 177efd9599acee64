// Package currency validates ISO-4217 codes and decides when a transaction
// needs a foreign-exchange rate.
package currency

import (
	"strings"

	"golang.org/x/text/currency"

	"github.com/odyssey-erp/odyssey-posting/internal/shared"
)

// Result is the outcome of comparing a base and a transaction currency.
type Result struct {
	RequiresFXRate        bool   `json:"requiresFxRate"`
	NormalizedBase        string `json:"normalizedBase"`
	NormalizedTransaction string `json:"normalizedTransaction"`
}

// Normalize trims surrounding whitespace and upper-cases code.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// WellFormed reports whether the normalized code is exactly three ASCII letters.
func WellFormed(code string) bool {
	if len(code) != 3 {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if c < 'A' || c > 'Z' {
			return false
		}
	}
	return true
}

// ValidateCode normalizes code and checks it against the ISO-4217 registry.
func ValidateCode(code string) (string, error) {
	normalized := Normalize(code)
	if !WellFormed(normalized) {
		return "", shared.NewError(shared.CodeInvalidCurrencyFormat, "currency code must be exactly 3 letters", map[string]any{
			"currency": code,
		})
	}
	if _, err := currency.ParseISO(normalized); err != nil {
		return "", shared.NewError(shared.CodeUnknownCurrency, "currency code is not a recognised ISO-4217 currency", map[string]any{
			"currency": normalized,
		})
	}
	return normalized, nil
}

// Validate normalizes both codes and reports whether an FX rate is required.
func Validate(base, transaction string) (Result, error) {
	nb, err := ValidateCode(base)
	if err != nil {
		return Result{}, err
	}
	nt, err := ValidateCode(transaction)
	if err != nil {
		return Result{}, err
	}
	return Result{
		RequiresFXRate:        nb != nt,
		NormalizedBase:        nb,
		NormalizedTransaction: nt,
	}, nil
}
