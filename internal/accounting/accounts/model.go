package accounts

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// AccountInfo is the posting-relevant view of a chart of accounts node.
type AccountInfo struct {
	ID           string      `json:"id"`
	Code         string      `json:"code"`
	Name         string      `json:"name"`
	Type         AccountType `json:"type"`
	Currency     string      `json:"currency,omitempty"`
	ParentID     *string     `json:"parentId,omitempty"`
	IsActive     bool        `json:"isActive"`
	IsRestricted bool        `json:"isRestricted"`
	IsControl    bool        `json:"isControl"`
}

// BankAccount links a bank or cash account to its ledger account.
type BankAccount struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AccountID string `json:"accountId"`
	Currency  string `json:"currency"`
	IsActive  bool   `json:"isActive"`
}

// AdvanceKind selects which side an unallocated payment remainder lands on.
type AdvanceKind string

const (
	AdvanceCustomer AdvanceKind = "CUSTOMER_ADVANCE"
	AdvanceSupplier AdvanceKind = "SUPPLIER_PREPAYMENT"
)

type advanceTemplate struct {
	code string
	name string
	typ  AccountType
}

var advanceTemplates = map[AdvanceKind]advanceTemplate{
	AdvanceCustomer: {code: "2150", name: "Customer Advances", typ: AccountTypeLiability},
	AdvanceSupplier: {code: "1450", name: "Supplier Prepayments", typ: AccountTypeAsset},
}
