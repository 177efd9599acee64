package posting

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-posting/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-posting/internal/accounting/coa"
	"github.com/odyssey-erp/odyssey-posting/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-posting/internal/shared"
	"github.com/odyssey-erp/odyssey-posting/internal/sod"
)

type memAccounts map[string]accounts.AccountInfo

func (m memAccounts) GetAccountsInfo(_ context.Context, _ shared.Scope, ids []string) (map[string]accounts.AccountInfo, error) {
	out := make(map[string]accounts.AccountInfo)
	for _, id := range ids {
		if a, ok := m[id]; ok {
			out[id] = a
		}
	}
	return out, nil
}

func (m memAccounts) ListAccountsInfo(context.Context, shared.Scope) ([]accounts.AccountInfo, error) {
	out := make([]accounts.AccountInfo, 0, len(m))
	for _, a := range m {
		out = append(out, a)
	}
	return out, nil
}

type countingCOA struct {
	calls int
	inner COAValidator
}

func (c *countingCOA) Validate(ctx context.Context, scope shared.Scope, lines []journals.Line, cur string, also ...string) (coa.Result, error) {
	c.calls++
	return c.inner.Validate(ctx, scope, lines, cur, also...)
}

var fixedNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func newService(t *testing.T) (*Service, *countingCOA) {
	t.Helper()
	store := memAccounts{
		"A": {ID: "A", Code: "1000", Name: "Cash", IsActive: true},
		"B": {ID: "B", Code: "4000", Name: "Sales", IsActive: true},
		"C": {ID: "C", Code: "1100", Name: "Receivables", IsActive: true, IsControl: true},
		"D": {ID: "D", Code: "1010", Name: "Bank USD", Currency: "USD", IsActive: true},
	}
	counter := &countingCOA{inner: coa.NewValidator(store)}
	svc := NewService(nil, counter)
	svc.WithNow(func() time.Time { return fixedNow })
	return svc, counter
}

func request(credit float64) Request {
	return Request{
		JournalNumber: "JV-0001",
		JournalDate:   fixedNow,
		Currency:      "MYR",
		Lines: []journals.Line{
			{AccountID: "A", Debit: 100},
			{AccountID: "B", Credit: credit},
		},
		Context: Context{TenantID: "t1", CompanyID: "c1", UserID: "u1", UserRole: sod.RoleAccountant},
	}
}

func TestValidatePostingBalancedJournal(t *testing.T) {
	svc, _ := newService(t)
	verdict, err := svc.ValidatePosting(context.Background(), request(100))
	require.NoError(t, err)
	require.True(t, verdict.Validated)
	require.Equal(t, 100.0, verdict.TotalDebit)
	require.Equal(t, 100.0, verdict.TotalCredit)
	require.False(t, verdict.RequiresApproval)
}

func TestValidatePostingUnbalanced(t *testing.T) {
	svc, counter := newService(t)
	_, err := svc.ValidatePosting(context.Background(), request(99))
	require.Error(t, err)
	require.Equal(t, shared.CodeUnbalancedJournal, shared.CodeOf(err))
	require.Equal(t, 1.0, shared.DetailsOf(err)["difference"])
	require.Zero(t, counter.calls, "balance failures stop before any lookup")

	_, err = svc.ValidatePosting(context.Background(), request(99.99))
	require.NoError(t, err, "a one cent difference is within tolerance")
}

func TestValidatePostingSoDViolation(t *testing.T) {
	svc, counter := newService(t)
	req := request(100)
	req.Context.UserRole = sod.RoleViewer
	_, err := svc.ValidatePosting(context.Background(), req)
	require.Equal(t, shared.CodeSoDViolation, shared.CodeOf(err))
	require.Equal(t, shared.KindPolicy, shared.KindOf(shared.CodeOf(err)))
	require.Zero(t, counter.calls)
}

func TestValidatePostingStepOrder(t *testing.T) {
	svc, _ := newService(t)

	req := request(100)
	req.Lines = nil
	req.Currency = "bad"
	_, err := svc.ValidatePosting(context.Background(), req)
	require.Equal(t, shared.CodeNoLines, shared.CodeOf(err), "structure is checked before currency")

	req = request(100)
	req.Currency = "RM"
	req.JournalDate = fixedNow.AddDate(0, 0, 3)
	_, err = svc.ValidatePosting(context.Background(), req)
	require.Equal(t, shared.CodeInvalidCurrency, shared.CodeOf(err), "currency is checked before date")

	req = request(100)
	req.JournalDate = fixedNow.AddDate(0, 0, 1)
	_, err = svc.ValidatePosting(context.Background(), req)
	require.Equal(t, shared.CodeFutureDate, shared.CodeOf(err))
}

func TestValidatePostingLaterToday(t *testing.T) {
	svc, _ := newService(t)
	req := request(100)
	req.JournalDate = time.Date(2025, 3, 14, 23, 0, 0, 0, time.UTC)
	_, err := svc.ValidatePosting(context.Background(), req)
	require.NoError(t, err)
}

func TestValidatePostingCOAErrorsVerbatim(t *testing.T) {
	svc, _ := newService(t)
	req := request(100)
	req.Lines[1].AccountID = "Z"
	_, err := svc.ValidatePosting(context.Background(), req)
	require.Equal(t, shared.CodeAccountsNotFound, shared.CodeOf(err))
	require.Equal(t, []string{"Z"}, shared.DetailsOf(err)["missingAccountIds"])
}

func TestValidatePostingTransactionCurrencyAccount(t *testing.T) {
	svc, counter := newService(t)
	req := request(100)
	req.Lines[0].AccountID = "D"
	_, err := svc.ValidatePosting(context.Background(), req)
	require.Equal(t, shared.CodeAccountCurrencyMismatch, shared.CodeOf(err))

	req.TransactionCurrency = "usd"
	verdict, err := svc.ValidatePosting(context.Background(), req)
	require.NoError(t, err)
	require.True(t, verdict.Validated)

	calls := counter.calls
	req.TransactionCurrency = "US"
	_, err = svc.ValidatePosting(context.Background(), req)
	require.Equal(t, shared.CodeInvalidCurrency, shared.CodeOf(err))
	require.Equal(t, calls, counter.calls)
}

func TestValidatePostingCarriesCOAWarnings(t *testing.T) {
	svc, _ := newService(t)
	req := request(100)
	req.Lines[1].AccountID = "C"
	verdict, err := svc.ValidatePosting(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, verdict.COAWarnings, 1)
	require.Equal(t, "C", verdict.COAWarnings[0].AccountID)
}

func TestValidatePostingIsRepeatable(t *testing.T) {
	svc, _ := newService(t)
	req := request(100)
	first, err := svc.ValidatePosting(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.ValidatePosting(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

type closedPeriods struct{ calls int }

func (g *closedPeriods) EnsureOpen(_ context.Context, _ shared.Scope, date time.Time) error {
	g.calls++
	return shared.NewError(shared.CodePeriodNotOpen, "fiscal period is not open for posting", map[string]any{
		"journalDate": date.Format(time.DateOnly),
	})
}

func TestValidatePostingClosedPeriodStopsBeforeCOA(t *testing.T) {
	svc, counter := newService(t)
	guard := &closedPeriods{}
	svc.WithPeriodGuard(guard)

	_, err := svc.ValidatePosting(context.Background(), request(100))
	require.Equal(t, shared.CodePeriodNotOpen, shared.CodeOf(err))
	require.Equal(t, 1, guard.calls)
	require.Zero(t, counter.calls)

	_, err = svc.ValidatePosting(context.Background(), request(90))
	require.Equal(t, shared.CodeUnbalancedJournal, shared.CodeOf(err))
	require.Equal(t, 1, guard.calls, "balance failures short-circuit the period lookup")
}
