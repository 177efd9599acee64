package mappings

import "time"

// Module names used as mapping namespaces.
const (
	ModulePayments = "PAYMENTS"
)

// Keys resolved by the payment compiler.
const (
	KeyARControl = "ar_control"
	KeyAPControl = "ap_control"
	KeyFXGain    = "fx_gain"
	KeyFXLoss    = "fx_loss"
)

// AccountMapping links integration keys to ledger accounts.
type AccountMapping struct {
	Module    string
	Key       string
	AccountID string
	UpdatedAt time.Time
}
