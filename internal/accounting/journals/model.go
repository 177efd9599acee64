package journals

// MaxLines bounds the number of lines accepted in a single journal.
const MaxLines = 100

// Line stores a debit or credit amount for an account.
type Line struct {
	AccountID   string  `json:"accountId" validate:"required"`
	Debit       float64 `json:"debit"`
	Credit      float64 `json:"credit"`
	Description string  `json:"description,omitempty"`
	Reference   string  `json:"reference,omitempty"`
}

// Totals reports the rounded sums of a line set.
type Totals struct {
	Debit      float64 `json:"totalDebit"`
	Credit     float64 `json:"totalCredit"`
	Difference float64 `json:"difference"`
}

// AccountIDs returns the distinct account ids referenced by lines, in first-seen order.
func AccountIDs(lines []Line) []string {
	seen := make(map[string]struct{}, len(lines))
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.AccountID]; ok {
			continue
		}
		seen[line.AccountID] = struct{}{}
		ids = append(ids, line.AccountID)
	}
	return ids
}
