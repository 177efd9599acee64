package payments

import (
	"time"

	"github.com/odyssey-erp/odyssey-posting/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-posting/internal/posting"
	"github.com/odyssey-erp/odyssey-posting/internal/sod"
)

// Method enumerates payment instruments.
type Method string

const (
	MethodCash         Method = "CASH"
	MethodBankTransfer Method = "BANK_TRANSFER"
	MethodCheque       Method = "CHEQUE"
	MethodCard         Method = "CARD"
	MethodOnline       Method = "ONLINE"
)

// Valid reports whether m is a known method.
func (m Method) Valid() bool {
	switch m {
	case MethodCash, MethodBankTransfer, MethodCheque, MethodCard, MethodOnline:
		return true
	}
	return false
}

// AllocationType is the kind of document a payment settles.
type AllocationType string

const (
	AllocationBill    AllocationType = "BILL"
	AllocationInvoice AllocationType = "INVOICE"
)

// PartyType selects the posting template.
type PartyType string

const (
	PartyCustomer PartyType = "CUSTOMER"
	PartySupplier PartyType = "SUPPLIER"
)

// PartyFor maps an allocation type to the party it settles.
func PartyFor(t AllocationType) (PartyType, bool) {
	switch t {
	case AllocationInvoice:
		return PartyCustomer, true
	case AllocationBill:
		return PartySupplier, true
	}
	return "", false
}

// LineRole tags each generated line with the purpose it serves.
type LineRole string

const (
	RoleBank           LineRole = "BANK"
	RoleReceivable     LineRole = "RECEIVABLE"
	RolePayable        LineRole = "PAYABLE"
	RoleAdvance        LineRole = "ADVANCE"
	RolePrepayment     LineRole = "PREPAYMENT"
	RoleBankCharge     LineRole = "BANK_CHARGE"
	RoleWithholdingTax LineRole = "WITHHOLDING_TAX"
	RoleFXRounding     LineRole = "FX_ROUNDING"
)

// RateSource records where an exchange rate came from.
type RateSource string

const (
	RateManual   RateSource = "manual"
	RatePrimary  RateSource = "primary"
	RateFallback RateSource = "fallback"
)

// Allocation settles part of the payment against one document.
type Allocation struct {
	Type            AllocationType `json:"type" validate:"required,oneof=BILL INVOICE"`
	DocumentID      string         `json:"documentId" validate:"required"`
	DocumentNumber  string         `json:"documentNumber"`
	AllocatedAmount float64        `json:"allocatedAmount"`
	APAccountID     *string        `json:"apAccountId,omitempty"`
	ARAccountID     *string        `json:"arAccountId,omitempty"`
	CustomerID      string         `json:"customerId,omitempty"`
	SupplierID      string         `json:"supplierId,omitempty"`
	Currency        string         `json:"currency,omitempty"`
}

// BankCharge is a fee deducted by the bank, posted to an expense account.
type BankCharge struct {
	AccountID   string  `json:"accountId" validate:"required"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description,omitempty"`
}

// WithholdingTax is tax withheld at source, posted to a tax account.
type WithholdingTax struct {
	AccountID   string   `json:"accountId" validate:"required"`
	Amount      float64  `json:"amount"`
	TaxCode     string   `json:"taxCode,omitempty"`
	Rate        *float64 `json:"rate,omitempty"`
	Description string   `json:"description,omitempty"`
}

// Input is one payment to compile. Amounts are in the payment currency.
type Input struct {
	TenantID           string           `json:"tenantId" validate:"required"`
	CompanyID          string           `json:"companyId" validate:"required"`
	PaymentID          string           `json:"paymentId" validate:"required"`
	PaymentNumber      string           `json:"paymentNumber" validate:"required"`
	PaymentDate        time.Time        `json:"paymentDate" validate:"required"`
	Method             Method           `json:"paymentMethod" validate:"required"`
	BankAccountID      string           `json:"bankAccountId" validate:"required"`
	Currency           string           `json:"currency" validate:"required"`
	ExchangeRate       *float64         `json:"exchangeRate,omitempty"`
	ExchangeRateSource RateSource       `json:"exchangeRateSource,omitempty"`
	Amount             float64          `json:"amount"`
	Allocations        []Allocation     `json:"allocations" validate:"dive"`
	BankCharges        []BankCharge     `json:"bankCharges,omitempty" validate:"dive"`
	WithholdingTaxes   []WithholdingTax `json:"withholdingTax,omitempty" validate:"dive"`
	PartyType          PartyType        `json:"partyType,omitempty"`
	PartyID            string           `json:"partyId,omitempty"`
	Description        string           `json:"description,omitempty"`
}

// Line is a generated journal line in base currency.
type Line struct {
	journals.Line
	Role LineRole `json:"role"`
}

// FXSummary describes the conversion applied to the payment.
type FXSummary struct {
	FromCurrency    string     `json:"fromCurrency"`
	ToCurrency      string     `json:"toCurrency"`
	Rate            float64    `json:"rate"`
	Source          RateSource `json:"source"`
	OriginalAmount  float64    `json:"originalAmount"`
	ConvertedAmount float64    `json:"convertedAmount"`
	RoundingAmount  float64    `json:"roundingAmount,omitempty"`
}

// ChargeSummary totals bank charges.
type ChargeSummary struct {
	Count          int     `json:"count"`
	OriginalTotal  float64 `json:"originalTotal"`
	ConvertedTotal float64 `json:"convertedTotal"`
}

// TaxSummary totals withholding tax.
type TaxSummary struct {
	Count          int      `json:"count"`
	TaxCodes       []string `json:"taxCodes,omitempty"`
	OriginalTotal  float64  `json:"originalTotal"`
	ConvertedTotal float64  `json:"convertedTotal"`
}

// Result is a compiled, validated payment journal.
type Result struct {
	JournalNumber    string          `json:"journalNumber"`
	PaymentID        string          `json:"paymentId"`
	PartyType        PartyType       `json:"partyType"`
	Currency         string          `json:"currency"`
	TotalAmount      float64         `json:"totalAmount"`
	TotalAllocated   float64         `json:"totalAllocated"`
	Remainder        float64         `json:"remainder"`
	Lines            []Line          `json:"lines"`
	FX               *FXSummary      `json:"fx,omitempty"`
	BankCharges      *ChargeSummary  `json:"bankCharges,omitempty"`
	WithholdingTax   *TaxSummary     `json:"withholdingTax,omitempty"`
	Verdict          posting.Verdict `json:"verdict"`
	RequiresApproval bool            `json:"requiresApproval"`
	ApproverRoles    []sod.Role      `json:"approverRoles,omitempty"`
}

// JournalLines strips roles from the generated lines.
func (r Result) JournalLines() []journals.Line {
	out := make([]journals.Line, len(r.Lines))
	for i, l := range r.Lines {
		out[i] = l.Line
	}
	return out
}
