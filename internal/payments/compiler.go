// Package payments turns a payment and its document allocations into a
// balanced journal and hands it to the posting orchestrator for validation.
package payments

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/odyssey-erp/odyssey-posting/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-posting/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-posting/internal/accounting/mappings"
	accounting "github.com/odyssey-erp/odyssey-posting/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-posting/internal/currency"
	"github.com/odyssey-erp/odyssey-posting/internal/money"
	"github.com/odyssey-erp/odyssey-posting/internal/partners"
	"github.com/odyssey-erp/odyssey-posting/internal/posting"
	"github.com/odyssey-erp/odyssey-posting/internal/shared"
	"github.com/odyssey-erp/odyssey-posting/internal/sod"
)

// RoundingTolerance is the largest post-assembly imbalance absorbed into an
// FX rounding line. Anything larger fails the compilation.
const RoundingTolerance = 1.00

// BankAccounts resolves the paying or receiving bank account.
type BankAccounts interface {
	GetBankAccountByID(ctx context.Context, scope shared.Scope, id string) (accounts.BankAccount, error)
}

// AdvanceAccounts resolves the account that absorbs overpayments.
type AdvanceAccounts interface {
	GetOrCreateAdvanceAccount(ctx context.Context, scope shared.Scope, kind accounts.AdvanceKind, currency string) (accounts.AccountInfo, error)
}

// Mappings resolves default control and FX accounts.
type Mappings interface {
	Get(ctx context.Context, scope shared.Scope, module, key string) (mappings.AccountMapping, error)
}

// Poster validates the assembled journal.
type Poster interface {
	ValidatePosting(ctx context.Context, req posting.Request) (posting.Verdict, error)
}

// Deps groups the collaborators of a Compiler.
type Deps struct {
	Banks    BankAccounts
	Advances AdvanceAccounts
	Parties  partners.Repository
	Mappings Mappings
	Poster   Poster
	Engine   *sod.Engine
}

// Compiler builds payment journals.
type Compiler struct {
	banks    BankAccounts
	advances AdvanceAccounts
	parties  partners.Repository
	mappings Mappings
	poster   Poster
	engine   *sod.Engine
	tracer   trace.Tracer
}

// NewCompiler constructs a Compiler.
func NewCompiler(deps Deps) *Compiler {
	engine := deps.Engine
	if engine == nil {
		engine = sod.NewEngine(nil)
	}
	return &Compiler{
		banks:    deps.Banks,
		advances: deps.Advances,
		parties:  deps.Parties,
		mappings: deps.Mappings,
		poster:   deps.Poster,
		engine:   engine,
		tracer:   otel.Tracer("github.com/odyssey-erp/odyssey-posting/internal/payments"),
	}
}

// Compile assembles and validates the journal for one payment.
func (c *Compiler) Compile(ctx context.Context, in Input, userID string, userRole sod.Role, baseCurrency string) (res Result, err error) {
	ctx, span := c.tracer.Start(ctx, "payments.compile", trace.WithAttributes(
		attribute.String("payment.id", in.PaymentID),
		attribute.String("payment.currency", in.Currency),
		attribute.Int("payment.allocations", len(in.Allocations)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(shared.CodeOf(err)))
		}
		span.End()
	}()

	res, err = c.compile(ctx, in, userID, userRole, baseCurrency)
	if err != nil {
		return Result{}, shared.Internal(err)
	}
	return res, nil
}

func (c *Compiler) compile(ctx context.Context, in Input, userID string, userRole sod.Role, baseCurrency string) (Result, error) {
	if err := validateAmounts(in); err != nil {
		return Result{}, err
	}
	scope := shared.Scope{TenantID: in.TenantID, CompanyID: in.CompanyID}

	cur, err := currency.Validate(baseCurrency, in.Currency)
	if err != nil {
		return Result{}, shared.NewError(shared.CodeInvalidCurrency, "payment or base currency is not a valid ISO-4217 code", map[string]any{
			"baseCurrency":    baseCurrency,
			"paymentCurrency": in.Currency,
			"cause":           string(shared.CodeOf(err)),
		})
	}

	rate := 1.0
	rateSource := RateManual
	if cur.RequiresFXRate {
		if in.ExchangeRate == nil {
			return Result{}, shared.NewError(shared.CodeExchangeRateRequired, "an exchange rate is required for foreign currency payments", map[string]any{
				"paymentCurrency": cur.NormalizedTransaction,
				"baseCurrency":    cur.NormalizedBase,
			})
		}
		if *in.ExchangeRate <= 0 || math.IsNaN(*in.ExchangeRate) || math.IsInf(*in.ExchangeRate, 0) {
			return Result{}, shared.NewError(shared.CodeInvalidExchangeRate, "exchange rate must be a positive number", map[string]any{
				"exchangeRate": *in.ExchangeRate,
			})
		}
		rate = *in.ExchangeRate
		if in.ExchangeRateSource != "" {
			rateSource = in.ExchangeRateSource
		}
	}

	if err := checkAllocationCurrencies(in.Allocations, cur.NormalizedTransaction); err != nil {
		return Result{}, err
	}
	party, err := resolvePartyType(in)
	if err != nil {
		return Result{}, err
	}

	bank, err := c.banks.GetBankAccountByID(ctx, scope, in.BankAccountID)
	if err != nil {
		if errors.Is(err, accounting.ErrBankAccountNotFound) {
			return Result{}, shared.NewError(shared.CodeBankAccountNotFound, "bank account does not exist for this company", map[string]any{
				"bankAccountId": in.BankAccountID,
			})
		}
		return Result{}, err
	}
	if bank.Currency != "" && currency.Normalize(bank.Currency) != cur.NormalizedTransaction {
		return Result{}, shared.NewError(shared.CodeCurrencyMismatch, "bank account currency does not match the payment currency", map[string]any{
			"bankAccountId":   bank.ID,
			"bankCurrency":    currency.Normalize(bank.Currency),
			"paymentCurrency": cur.NormalizedTransaction,
		})
	}

	converted := money.Mul(in.Amount, rate)
	b := &builder{}

	resolver := &accountResolver{c: c, scope: scope, party: party, fallbackPartyID: in.PartyID}
	allocated := make([]float64, 0, len(in.Allocations))
	switch party {
	case PartyCustomer:
		b.debit(RoleBank, bank.AccountID, converted, "Payment received "+in.PaymentNumber, in.PaymentNumber)
		for _, a := range in.Allocations {
			accountID, err := resolver.receivable(ctx, a)
			if err != nil {
				return Result{}, err
			}
			amount := money.Mul(a.AllocatedAmount, rate)
			allocated = append(allocated, amount)
			b.credit(RoleReceivable, accountID, amount, "Settlement of "+documentLabel(a), a.DocumentNumber)
		}
	case PartySupplier:
		for _, a := range in.Allocations {
			accountID, err := resolver.payable(ctx, a)
			if err != nil {
				return Result{}, err
			}
			amount := money.Mul(a.AllocatedAmount, rate)
			allocated = append(allocated, amount)
			b.debit(RolePayable, accountID, amount, "Settlement of "+documentLabel(a), a.DocumentNumber)
		}
		b.credit(RoleBank, bank.AccountID, converted, "Payment made "+in.PaymentNumber, in.PaymentNumber)
	}

	var chargeSummary *ChargeSummary
	charges := make([]float64, 0, len(in.BankCharges))
	if len(in.BankCharges) > 0 {
		original := make([]float64, 0, len(in.BankCharges))
		for _, ch := range in.BankCharges {
			amount := money.Mul(ch.Amount, rate)
			charges = append(charges, amount)
			original = append(original, ch.Amount)
			b.debit(RoleBankCharge, ch.AccountID, amount, describe(ch.Description, "Bank charge"), in.PaymentNumber)
		}
		chargeSummary = &ChargeSummary{
			Count:          len(in.BankCharges),
			OriginalTotal:  money.Add(original...),
			ConvertedTotal: money.Add(charges...),
		}
	}

	var taxSummary *TaxSummary
	taxes := make([]float64, 0, len(in.WithholdingTaxes))
	if len(in.WithholdingTaxes) > 0 {
		original := make([]float64, 0, len(in.WithholdingTaxes))
		var taxCodes []string
		for _, tx := range in.WithholdingTaxes {
			amount := money.Mul(tx.Amount, rate)
			taxes = append(taxes, amount)
			original = append(original, tx.Amount)
			if tx.TaxCode != "" {
				taxCodes = append(taxCodes, tx.TaxCode)
			}
			b.debit(RoleWithholdingTax, tx.AccountID, amount, describe(tx.Description, "Withholding tax "+tx.TaxCode), in.PaymentNumber)
		}
		taxSummary = &TaxSummary{
			Count:          len(in.WithholdingTaxes),
			TaxCodes:       taxCodes,
			OriginalTotal:  money.Add(original...),
			ConvertedTotal: money.Add(taxes...),
		}
	}

	totalAllocated := money.Add(allocated...)
	totalCharges := money.Add(charges...)
	totalTax := money.Add(taxes...)

	var remainder float64
	if party == PartySupplier {
		remainder = money.Sub(converted, money.Add(totalAllocated, totalCharges, totalTax))
	} else {
		// Charges and withheld tax reduce what the customer had to remit.
		remainder = money.Sub(money.Add(converted, totalCharges, totalTax), totalAllocated)
	}
	switch {
	case remainder < -money.Tolerance:
		return Result{}, shared.NewError(shared.CodeInvalidAmount, "payment amount does not cover the allocated documents", map[string]any{
			"shortfall":       money.Round2(-remainder),
			"paymentAmount":   converted,
			"allocatedAmount": totalAllocated,
			"bankCharges":     totalCharges,
			"withholdingTax":  totalTax,
		})
	case remainder > money.Tolerance:
		kind, role := accounts.AdvanceCustomer, RoleAdvance
		if party == PartySupplier {
			kind, role = accounts.AdvanceSupplier, RolePrepayment
		}
		advance, err := c.advances.GetOrCreateAdvanceAccount(ctx, scope, kind, cur.NormalizedBase)
		if err != nil {
			return Result{}, err
		}
		if party == PartySupplier {
			b.debit(role, advance.ID, remainder, "Supplier prepayment "+in.PaymentNumber, in.PaymentNumber)
		} else {
			b.credit(role, advance.ID, remainder, "Customer advance "+in.PaymentNumber, in.PaymentNumber)
		}
	}

	totals := journals.Sum(b.journalLines())
	residual := money.Sub(totals.Debit, totals.Credit)
	if math.Abs(residual) > RoundingTolerance {
		return Result{}, shared.NewError(shared.CodeJournalUnbalanced, "compiled payment journal does not balance", map[string]any{
			"totalDebit":  totals.Debit,
			"totalCredit": totals.Credit,
			"difference":  math.Abs(residual),
			"tolerance":   RoundingTolerance,
		})
	}
	if !money.IsZero(residual) {
		if err := c.addRounding(ctx, scope, b, residual, in.PaymentNumber); err != nil {
			return Result{}, err
		}
	}

	req := posting.Request{
		JournalNumber:       "PAY-" + in.PaymentNumber,
		Description:         describe(in.Description, fmt.Sprintf("%s payment %s", partyLabel(party), in.PaymentNumber)),
		JournalDate:         in.PaymentDate,
		Currency:            cur.NormalizedBase,
		TransactionCurrency: cur.NormalizedTransaction,
		Lines:               b.journalLines(),
		Context: posting.Context{
			TenantID:  in.TenantID,
			CompanyID: in.CompanyID,
			UserID:    userID,
			UserRole:  userRole,
		},
	}
	verdict, err := c.poster.ValidatePosting(ctx, req)
	if err != nil {
		failure := shared.Wrap(shared.CodeJournalValidationFailed, "compiled payment journal failed validation", err)
		failure.Details = map[string]any{
			"code":    string(shared.CodeOf(err)),
			"message": messageOf(err),
			"details": shared.DetailsOf(err),
		}
		return Result{}, failure
	}

	res := Result{
		JournalNumber:    req.JournalNumber,
		PaymentID:        in.PaymentID,
		PartyType:        party,
		Currency:         cur.NormalizedBase,
		TotalAmount:      converted,
		TotalAllocated:   totalAllocated,
		Remainder:        remainder,
		Lines:            b.lines,
		BankCharges:      chargeSummary,
		WithholdingTax:   taxSummary,
		Verdict:          verdict,
		RequiresApproval: verdict.RequiresApproval,
		ApproverRoles:    verdict.ApproverRoles,
	}
	if cur.RequiresFXRate {
		res.FX = &FXSummary{
			FromCurrency:    cur.NormalizedTransaction,
			ToCurrency:      cur.NormalizedBase,
			Rate:            rate,
			Source:          rateSource,
			OriginalAmount:  in.Amount,
			ConvertedAmount: converted,
			RoundingAmount:  b.rounding,
		}
		if rateSource == RateFallback {
			res.RequiresApproval = true
			if rule, ok := c.engine.Rule(sod.ActionPaymentApprove); ok {
				res.ApproverRoles = mergeRoles(res.ApproverRoles, rule.ApproverRoles)
			}
		}
	}
	return res, nil
}

// addRounding posts a non-zero residual to FX gain (debits exceed credits)
// or FX loss (credits exceed debits).
func (c *Compiler) addRounding(ctx context.Context, scope shared.Scope, b *builder, residual float64, ref string) error {
	key := mappings.KeyFXGain
	if residual < 0 {
		key = mappings.KeyFXLoss
	}
	mapping, err := c.mappings.Get(ctx, scope, mappings.ModulePayments, key)
	if err != nil {
		return mappingError(err, key)
	}
	amount := math.Abs(residual)
	if residual > 0 {
		b.credit(RoleFXRounding, mapping.AccountID, amount, "FX rounding gain", ref)
	} else {
		b.debit(RoleFXRounding, mapping.AccountID, amount, "FX rounding loss", ref)
	}
	b.rounding = residual
	return nil
}

func validateAmounts(in Input) error {
	if !in.Method.Valid() {
		return shared.NewError(shared.CodeInvalidRequest, "unsupported payment method", map[string]any{"paymentMethod": string(in.Method)})
	}
	if in.Amount <= 0 || money.IsZero(in.Amount) {
		return shared.NewError(shared.CodeInvalidAmount, "payment amount must be positive", map[string]any{"amount": in.Amount})
	}
	for i, a := range in.Allocations {
		if a.AllocatedAmount <= 0 || money.IsZero(a.AllocatedAmount) {
			return shared.NewError(shared.CodeInvalidAmount, "allocated amounts must be positive", map[string]any{
				"allocationIndex": i,
				"documentId":      a.DocumentID,
			})
		}
	}
	for i, ch := range in.BankCharges {
		if ch.Amount <= 0 || money.IsZero(ch.Amount) {
			return shared.NewError(shared.CodeInvalidAmount, "bank charges must be positive", map[string]any{"chargeIndex": i})
		}
	}
	for i, tx := range in.WithholdingTaxes {
		if tx.Amount <= 0 || money.IsZero(tx.Amount) {
			return shared.NewError(shared.CodeInvalidAmount, "withholding tax amounts must be positive", map[string]any{"taxIndex": i})
		}
	}
	return nil
}

// checkAllocationCurrencies requires one effective allocation currency equal
// to the payment currency. An empty allocation currency inherits the payment's.
func checkAllocationCurrencies(allocs []Allocation, paymentCurrency string) error {
	seen := make(map[string]struct{})
	for _, a := range allocs {
		code := currency.Normalize(a.Currency)
		if code == "" {
			code = paymentCurrency
		}
		seen[code] = struct{}{}
	}
	if len(seen) == 0 {
		return nil
	}
	codes := make([]string, 0, len(seen))
	for code := range seen {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	if len(codes) > 1 {
		return shared.NewError(shared.CodeCurrencyMismatch, "all allocations must share one currency", map[string]any{
			"currencies": codes,
		})
	}
	if codes[0] != paymentCurrency {
		return shared.NewError(shared.CodeCurrencyMismatch, "allocation currency does not match the payment currency", map[string]any{
			"allocationCurrency": codes[0],
			"paymentCurrency":    paymentCurrency,
		})
	}
	return nil
}

func resolvePartyType(in Input) (PartyType, error) {
	if len(in.Allocations) == 0 {
		switch in.PartyType {
		case PartyCustomer, PartySupplier:
			return in.PartyType, nil
		}
		return "", shared.NewError(shared.CodePartyRequired, "a party type is required when the payment has no allocations", nil)
	}
	var party PartyType
	for i, a := range in.Allocations {
		p, ok := PartyFor(a.Type)
		if !ok {
			return "", shared.NewError(shared.CodeInvalidRequest, "unsupported allocation type", map[string]any{
				"allocationIndex": i,
				"type":            string(a.Type),
			})
		}
		if party != "" && p != party {
			return "", shared.NewError(shared.CodeMixedAllocationTypes, "a payment cannot settle both invoices and bills", nil)
		}
		party = p
	}
	if in.PartyType != "" && in.PartyType != party {
		return "", shared.NewError(shared.CodeMixedAllocationTypes, "party type does not match the allocation types", map[string]any{
			"partyType":           string(in.PartyType),
			"allocationPartyType": string(party),
		})
	}
	return party, nil
}

type builder struct {
	lines    []Line
	rounding float64
}

func (b *builder) debit(role LineRole, accountID string, amount float64, description, reference string) {
	b.lines = append(b.lines, Line{Role: role, Line: journals.Line{
		AccountID: accountID, Debit: amount, Description: description, Reference: reference,
	}})
}

func (b *builder) credit(role LineRole, accountID string, amount float64, description, reference string) {
	b.lines = append(b.lines, Line{Role: role, Line: journals.Line{
		AccountID: accountID, Credit: amount, Description: description, Reference: reference,
	}})
}

func (b *builder) journalLines() []journals.Line {
	out := make([]journals.Line, len(b.lines))
	for i, l := range b.lines {
		out[i] = l.Line
	}
	return out
}

func documentLabel(a Allocation) string {
	if a.DocumentNumber != "" {
		return a.DocumentNumber
	}
	return a.DocumentID
}

func describe(given, fallback string) string {
	if given != "" {
		return given
	}
	return fallback
}

func partyLabel(p PartyType) string {
	if p == PartySupplier {
		return "Supplier"
	}
	return "Customer"
}

func messageOf(err error) string {
	var coded *shared.Error
	if errors.As(err, &coded) {
		return coded.Message
	}
	return err.Error()
}

func mergeRoles(a, b []sod.Role) []sod.Role {
	seen := make(map[sod.Role]struct{}, len(a)+len(b))
	out := make([]sod.Role, 0, len(a)+len(b))
	for _, r := range append(append([]sod.Role{}, a...), b...) {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}
