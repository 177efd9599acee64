package partners

// Customer is the receivable-side counterparty.
type Customer struct {
	ID          string  `json:"id"`
	Code        string  `json:"code"`
	Name        string  `json:"name"`
	ARAccountID *string `json:"arAccountId,omitempty"`
	Currency    string  `json:"currency,omitempty"`
	IsActive    bool    `json:"isActive"`
}

// Supplier is the payable-side counterparty.
type Supplier struct {
	ID          string  `json:"id"`
	Code        string  `json:"code"`
	Name        string  `json:"name"`
	APAccountID *string `json:"apAccountId,omitempty"`
	Currency    string  `json:"currency,omitempty"`
	IsActive    bool    `json:"isActive"`
}
