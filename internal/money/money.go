// Package money holds the 2-decimal arithmetic used by every posting path.
// Amounts cross package boundaries as float64 and are computed through
// shopspring/decimal so that each intermediate is a bankable figure.
package money

import "github.com/shopspring/decimal"

// Tolerance is the largest debit/credit difference treated as balanced.
const Tolerance = 0.01

var tolerance = decimal.NewFromFloat(Tolerance)

// Round2 rounds half away from zero to two decimal places.
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// Mul multiplies and rounds the product to two decimals.
func Mul(a, b float64) float64 {
	return decimal.NewFromFloat(a).Mul(decimal.NewFromFloat(b)).Round(2).InexactFloat64()
}

// Add returns the rounded sum of the given amounts.
func Add(values ...float64) float64 {
	return Sum(values).InexactFloat64()
}

// Sub returns a-b rounded to two decimals.
func Sub(a, b float64) float64 {
	return decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).Round(2).InexactFloat64()
}

// Sum adds amounts exactly and rounds the total to two decimals.
func Sum(values []float64) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(decimal.NewFromFloat(v))
	}
	return total.Round(2)
}

// Within reports whether |a-b| is inside the balancing tolerance.
func Within(a, b float64) bool {
	return WithinDecimal(decimal.NewFromFloat(a), decimal.NewFromFloat(b), tolerance)
}

// WithinDecimal reports whether |a-b| <= tol.
func WithinDecimal(a, b, tol decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tol)
}

// IsZero reports whether v rounds to zero cents.
func IsZero(v float64) bool {
	return decimal.NewFromFloat(v).Round(2).IsZero()
}
