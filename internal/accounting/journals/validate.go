// Package journals holds side-effect-free structural and balance checks for
// journal line sets.
package journals

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-posting/internal/money"
	"github.com/odyssey-erp/odyssey-posting/internal/shared"
)

// ValidateLines rejects empty or oversized line sets and lines that are not
// exactly one of debit or credit.
func ValidateLines(lines []Line) error {
	if len(lines) == 0 {
		return shared.NewError(shared.CodeNoLines, "journal requires at least one line", nil)
	}
	if len(lines) > MaxLines {
		return shared.NewError(shared.CodeTooManyLines, "journal exceeds the maximum number of lines", map[string]any{
			"lineCount": len(lines),
			"maxLines":  MaxLines,
		})
	}
	var invalid, zero []int
	for idx, line := range lines {
		switch {
		case line.Debit < 0 || line.Credit < 0:
			invalid = append(invalid, idx)
		case !money.IsZero(line.Debit) && !money.IsZero(line.Credit):
			invalid = append(invalid, idx)
		case money.IsZero(line.Debit) && money.IsZero(line.Credit):
			zero = append(zero, idx)
		}
	}
	if len(invalid) > 0 {
		return shared.NewError(shared.CodeInvalidLineAmounts, "each line must carry either a debit or a credit, not both, and never a negative amount", map[string]any{
			"lineIndexes": invalid,
		})
	}
	if len(zero) > 0 {
		return shared.NewError(shared.CodeZeroAmounts, "each line must carry a non-zero amount", map[string]any{
			"lineIndexes": zero,
		})
	}
	return nil
}

// Sum totals the debit and credit columns separately.
func Sum(lines []Line) Totals {
	debits := make([]float64, 0, len(lines))
	credits := make([]float64, 0, len(lines))
	for _, line := range lines {
		debits = append(debits, line.Debit)
		credits = append(credits, line.Credit)
	}
	debit := money.Sum(debits)
	credit := money.Sum(credits)
	return Totals{
		Debit:      debit.InexactFloat64(),
		Credit:     credit.InexactFloat64(),
		Difference: debit.Sub(credit).Abs().InexactFloat64(),
	}
}

// ValidateBalanced fails when the debit and credit totals differ by more than
// the balancing tolerance.
func ValidateBalanced(lines []Line) (Totals, error) {
	totals := Sum(lines)
	if !money.WithinDecimal(decimal.NewFromFloat(totals.Debit), decimal.NewFromFloat(totals.Credit), decimal.NewFromFloat(money.Tolerance)) {
		return totals, shared.NewError(shared.CodeUnbalancedJournal, "journal debits and credits do not balance", map[string]any{
			"totalDebit":  totals.Debit,
			"totalCredit": totals.Credit,
			"difference":  totals.Difference,
		})
	}
	return totals, nil
}
