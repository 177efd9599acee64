package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-posting/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-posting/internal/accounting/coa"
	"github.com/odyssey-erp/odyssey-posting/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-posting/internal/accounting/mappings"
	accounting "github.com/odyssey-erp/odyssey-posting/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-posting/internal/partners"
	"github.com/odyssey-erp/odyssey-posting/internal/posting"
	"github.com/odyssey-erp/odyssey-posting/internal/shared"
	"github.com/odyssey-erp/odyssey-posting/internal/sod"
)

type memLedger struct {
	accounts map[string]accounts.AccountInfo
	banks    map[string]accounts.BankAccount
	advances int
}

func newLedger() *memLedger {
	l := &memLedger{
		accounts: map[string]accounts.AccountInfo{},
		banks: map[string]accounts.BankAccount{
			"bank-myr": {ID: "bank-myr", AccountID: "gl-bank", Currency: "MYR", IsActive: true},
			"bank-usd": {ID: "bank-usd", AccountID: "gl-bank-usd", Currency: "USD", IsActive: true},
		},
	}
	for _, id := range []string{"gl-bank", "gl-bank-usd", "gl-ar", "gl-ar-cust", "gl-ap", "gl-charges", "gl-wht", "gl-fx-gain", "gl-fx-loss"} {
		l.accounts[id] = accounts.AccountInfo{ID: id, Code: id, Name: id, IsActive: true}
	}
	return l
}

func (l *memLedger) GetAccountsInfo(_ context.Context, _ shared.Scope, ids []string) (map[string]accounts.AccountInfo, error) {
	out := make(map[string]accounts.AccountInfo)
	for _, id := range ids {
		if a, ok := l.accounts[id]; ok {
			out[id] = a
		}
	}
	return out, nil
}

func (l *memLedger) ListAccountsInfo(context.Context, shared.Scope) ([]accounts.AccountInfo, error) {
	out := make([]accounts.AccountInfo, 0, len(l.accounts))
	for _, a := range l.accounts {
		out = append(out, a)
	}
	return out, nil
}

func (l *memLedger) GetBankAccountByID(_ context.Context, _ shared.Scope, id string) (accounts.BankAccount, error) {
	b, ok := l.banks[id]
	if !ok {
		return accounts.BankAccount{}, accounting.ErrBankAccountNotFound
	}
	return b, nil
}

func (l *memLedger) GetOrCreateAdvanceAccount(_ context.Context, _ shared.Scope, kind accounts.AdvanceKind, cur string) (accounts.AccountInfo, error) {
	id := "adv-" + string(kind) + "-" + cur
	if a, ok := l.accounts[id]; ok {
		return a, nil
	}
	l.advances++
	a := accounts.AccountInfo{ID: id, Code: id, Name: id, Currency: cur, IsActive: true}
	l.accounts[id] = a
	return a, nil
}

type memParties struct{}

func (memParties) GetCustomerByID(_ context.Context, _ shared.Scope, id string) (partners.Customer, error) {
	switch id {
	case "cust-own":
		acct := "gl-ar-cust"
		return partners.Customer{ID: id, ARAccountID: &acct}, nil
	case "cust-plain":
		return partners.Customer{ID: id}, nil
	}
	return partners.Customer{}, accounting.ErrPartyNotFound
}

func (memParties) GetSupplierByID(_ context.Context, _ shared.Scope, id string) (partners.Supplier, error) {
	if id == "sup-1" {
		return partners.Supplier{ID: id}, nil
	}
	return partners.Supplier{}, accounting.ErrPartyNotFound
}

var paymentDate = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

func newCompiler(t *testing.T) (*Compiler, *memLedger) {
	t.Helper()
	ledger := newLedger()
	poster := posting.NewService(nil, coa.NewValidator(ledger))
	poster.WithNow(func() time.Time { return paymentDate.Add(10 * time.Hour) })
	compiler := NewCompiler(Deps{
		Banks:    ledger,
		Advances: ledger,
		Parties:  memParties{},
		Mappings: mappings.Static{
			"PAYMENTS.ar_control": "gl-ar",
			"PAYMENTS.ap_control": "gl-ap",
			"PAYMENTS.fx_gain":    "gl-fx-gain",
			"PAYMENTS.fx_loss":    "gl-fx-loss",
		},
		Poster: poster,
	})
	return compiler, ledger
}

func customerPayment(amount float64, allocations ...float64) Input {
	in := Input{
		TenantID:      "t1",
		CompanyID:     "c1",
		PaymentID:     "p-1",
		PaymentNumber: "RCPT-0001",
		PaymentDate:   paymentDate,
		Method:        MethodBankTransfer,
		BankAccountID: "bank-myr",
		Currency:      "MYR",
		Amount:        amount,
	}
	for i, a := range allocations {
		in.Allocations = append(in.Allocations, Allocation{
			Type:            AllocationInvoice,
			DocumentID:      "inv-" + string(rune('a'+i)),
			DocumentNumber:  "INV-" + string(rune('A'+i)),
			AllocatedAmount: a,
		})
	}
	return in
}

func compile(t *testing.T, c *Compiler, in Input) (Result, error) {
	t.Helper()
	return c.Compile(context.Background(), in, "user-1", sod.RoleAccountant, "MYR")
}

func requireBalanced(t *testing.T, res Result) {
	t.Helper()
	totals := journals.Sum(res.JournalLines())
	require.InDelta(t, totals.Debit, totals.Credit, 0.0001)
}

func TestCompileExactCustomerPayment(t *testing.T) {
	c, _ := newCompiler(t)
	res, err := compile(t, c, customerPayment(1000, 1000))
	require.NoError(t, err)
	require.Equal(t, "PAY-RCPT-0001", res.JournalNumber)
	require.Len(t, res.Lines, 2)
	require.Equal(t, RoleBank, res.Lines[0].Role)
	require.Equal(t, "gl-bank", res.Lines[0].AccountID)
	require.Equal(t, 1000.0, res.Lines[0].Debit)
	require.Equal(t, RoleReceivable, res.Lines[1].Role)
	require.Equal(t, "gl-ar", res.Lines[1].AccountID)
	require.Equal(t, 1000.0, res.Lines[1].Credit)
	require.Nil(t, res.FX)
	require.True(t, res.Verdict.Validated)
	require.Equal(t, 1000.0, res.TotalAmount)
}

func TestCompileCustomerOverpaymentCreatesAdvance(t *testing.T) {
	c, ledger := newCompiler(t)
	res, err := compile(t, c, customerPayment(1200, 1000))
	require.NoError(t, err)
	require.Len(t, res.Lines, 3)
	adv := res.Lines[2]
	require.Equal(t, RoleAdvance, adv.Role)
	require.Equal(t, 200.0, adv.Credit)
	require.Equal(t, 200.0, res.Remainder)
	require.Equal(t, 1200.0, res.Verdict.TotalDebit)
	require.Equal(t, 1200.0, res.Verdict.TotalCredit)
	require.Equal(t, 1, ledger.advances)
}

func TestCompileCustomerUnderpaymentFails(t *testing.T) {
	c, _ := newCompiler(t)
	_, err := compile(t, c, customerPayment(800, 1000))
	require.Error(t, err)
	require.Equal(t, shared.CodeInvalidAmount, shared.CodeOf(err))
	require.Equal(t, 200.0, shared.DetailsOf(err)["shortfall"])
}

func TestCompileSupplierPaymentWithPrepayment(t *testing.T) {
	c, _ := newCompiler(t)
	in := customerPayment(500)
	in.Allocations = []Allocation{{Type: AllocationBill, DocumentID: "bill-1", AllocatedAmount: 420, SupplierID: "sup-1"}}
	in.BankCharges = []BankCharge{{AccountID: "gl-charges", Amount: 5}}
	in.WithholdingTaxes = []WithholdingTax{{AccountID: "gl-wht", Amount: 25, TaxCode: "WHT10"}}

	res, err := compile(t, c, in)
	require.NoError(t, err)
	require.Equal(t, PartySupplier, res.PartyType)
	require.Equal(t, 50.0, res.Remainder)

	roles := map[LineRole]Line{}
	for _, l := range res.Lines {
		roles[l.Role] = l
	}
	require.Equal(t, 420.0, roles[RolePayable].Debit)
	require.Equal(t, "gl-ap", roles[RolePayable].AccountID)
	require.Equal(t, 500.0, roles[RoleBank].Credit)
	require.Equal(t, 5.0, roles[RoleBankCharge].Debit)
	require.Equal(t, 25.0, roles[RoleWithholdingTax].Debit)
	require.Equal(t, 50.0, roles[RolePrepayment].Debit)
	require.Equal(t, 1, res.BankCharges.Count)
	require.Equal(t, []string{"WHT10"}, res.WithholdingTax.TaxCodes)
	requireBalanced(t, res)
}

func TestCompileCustomerWithChargesBalances(t *testing.T) {
	c, _ := newCompiler(t)
	in := customerPayment(990, 1000)
	in.BankCharges = []BankCharge{{AccountID: "gl-charges", Amount: 10}}
	res, err := compile(t, c, in)
	require.NoError(t, err)
	require.Len(t, res.Lines, 3)
	require.Zero(t, res.Remainder)
	requireBalanced(t, res)
}

func TestCompileForeignCurrency(t *testing.T) {
	c, _ := newCompiler(t)
	in := customerPayment(100.5, 100.5)
	in.Currency = "usd"
	in.BankAccountID = "bank-usd"
	c.banks.(*memLedger).accounts["gl-bank-usd"] = accounts.AccountInfo{ID: "gl-bank-usd", Code: "1010", Name: "Bank USD", Currency: "USD", IsActive: true}

	_, err := compile(t, c, in)
	require.Equal(t, shared.CodeExchangeRateRequired, shared.CodeOf(err))

	rate := 4.7215
	in.ExchangeRate = &rate
	in.ExchangeRateSource = RatePrimary
	res, err := compile(t, c, in)
	require.NoError(t, err)
	require.Equal(t, 474.51, res.TotalAmount)
	require.NotNil(t, res.FX)
	require.Equal(t, "USD", res.FX.FromCurrency)
	require.Equal(t, "MYR", res.FX.ToCurrency)
	require.False(t, res.RequiresApproval)
	requireBalanced(t, res)

	in.ExchangeRateSource = RateFallback
	res, err = compile(t, c, in)
	require.NoError(t, err)
	require.True(t, res.RequiresApproval)
	require.Contains(t, res.ApproverRoles, sod.RoleFinanceManager)
}

func TestCompileRoundingLine(t *testing.T) {
	c, _ := newCompiler(t)
	res, err := compile(t, c, customerPayment(1000.01, 1000))
	require.NoError(t, err)
	last := res.Lines[len(res.Lines)-1]
	require.Equal(t, RoleFXRounding, last.Role)
	require.Equal(t, "gl-fx-gain", last.AccountID)
	require.Equal(t, 0.01, last.Credit)
	requireBalanced(t, res)

	res, err = compile(t, c, customerPayment(999.99, 1000))
	require.NoError(t, err)
	last = res.Lines[len(res.Lines)-1]
	require.Equal(t, "gl-fx-loss", last.AccountID)
	require.Equal(t, 0.01, last.Debit)
	requireBalanced(t, res)
}

func TestCompileAccountPriority(t *testing.T) {
	c, _ := newCompiler(t)
	override := "gl-charges"
	in := customerPayment(300, 100, 100, 100)
	in.Allocations[0].ARAccountID = &override
	in.Allocations[1].CustomerID = "cust-own"
	in.Allocations[2].CustomerID = "cust-plain"
	c.banks.(*memLedger).accounts["gl-charges"] = accounts.AccountInfo{ID: "gl-charges", Code: "6100", Name: "Charges", IsActive: true}

	res, err := compile(t, c, in)
	require.NoError(t, err)
	require.Equal(t, "gl-charges", res.Lines[1].AccountID)
	require.Equal(t, "gl-ar-cust", res.Lines[2].AccountID)
	require.Equal(t, "gl-ar", res.Lines[3].AccountID)
}

func TestCompileInputFailures(t *testing.T) {
	c, _ := newCompiler(t)

	in := customerPayment(100, 50, 50)
	in.Allocations[1].Type = AllocationBill
	_, err := compile(t, c, in)
	require.Equal(t, shared.CodeMixedAllocationTypes, shared.CodeOf(err))

	in = customerPayment(100, 50, 50)
	in.Allocations[1].Currency = "SGD"
	_, err = compile(t, c, in)
	require.Equal(t, shared.CodeCurrencyMismatch, shared.CodeOf(err))

	in = customerPayment(100)
	_, err = compile(t, c, in)
	require.Equal(t, shared.CodePartyRequired, shared.CodeOf(err))

	in = customerPayment(100, 100)
	in.BankAccountID = "nope"
	_, err = compile(t, c, in)
	require.Equal(t, shared.CodeBankAccountNotFound, shared.CodeOf(err))

	in = customerPayment(0, 100)
	_, err = compile(t, c, in)
	require.Equal(t, shared.CodeInvalidAmount, shared.CodeOf(err))

	in = customerPayment(100, 100)
	in.Allocations[0].CustomerID = "ghost"
	_, err = compile(t, c, in)
	require.Equal(t, shared.CodePartyNotFound, shared.CodeOf(err))
}

func TestCompileNoAllocationsIsAdvance(t *testing.T) {
	c, _ := newCompiler(t)
	in := customerPayment(250)
	in.PartyType = PartyCustomer
	res, err := compile(t, c, in)
	require.NoError(t, err)
	require.Len(t, res.Lines, 2)
	require.Equal(t, RoleAdvance, res.Lines[1].Role)
	require.Equal(t, 250.0, res.Lines[1].Credit)
}

func TestCompileSurfacesOrchestratorFailure(t *testing.T) {
	c, _ := newCompiler(t)
	_, err := c.Compile(context.Background(), customerPayment(1000, 1000), "user-1", sod.RoleViewer, "MYR")
	require.Error(t, err)
	require.Equal(t, shared.CodeJournalValidationFailed, shared.CodeOf(err))
	require.Equal(t, string(shared.CodeSoDViolation), shared.DetailsOf(err)["code"])
}

type failingBanks struct{}

func (failingBanks) GetBankAccountByID(context.Context, shared.Scope, string) (accounts.BankAccount, error) {
	return accounts.BankAccount{}, errors.New("pool closed")
}

func TestCompileWrapsUnexpectedErrors(t *testing.T) {
	c, _ := newCompiler(t)
	c.banks = failingBanks{}
	_, err := compile(t, c, customerPayment(100, 100))
	require.Equal(t, shared.CodeInternal, shared.CodeOf(err))
	require.NotContains(t, err.Error(), "pool closed")
}
