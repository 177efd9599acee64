package sod

// Action names an operation guarded by the decision engine.
type Action string

const (
	ActionJournalCreate  Action = "journal:create"
	ActionJournalPost    Action = "journal:post"
	ActionJournalApprove Action = "journal:approve"
	ActionJournalReverse Action = "journal:reverse"
	ActionPaymentCreate  Action = "payment:create"
	ActionPaymentApprove Action = "payment:approve"
	ActionPaymentPost    Action = "payment:post"
	ActionInvoiceApprove Action = "invoice:approve"
	ActionBillApprove    Action = "bill:approve"
	ActionPeriodClose    Action = "period:close"
	ActionCOAModify      Action = "coa:modify"
	ActionFXOverride     Action = "fx:override"
)

// Role is a tenant-level job function.
type Role string

const (
	RoleAdmin          Role = "admin"
	RoleCFO            Role = "cfo"
	RoleFinanceManager Role = "finance_manager"
	RoleAccountant     Role = "accountant"
	RoleAPClerk        Role = "ap_clerk"
	RoleARClerk        Role = "ar_clerk"
	RoleClerk          Role = "clerk"
	RoleAuditor        Role = "auditor"
	RoleViewer         Role = "viewer"
)

// Feature flag keys referenced by rules.
const (
	FeatureAP            = "ap"
	FeatureAR            = "ar"
	FeatureJE            = "je"
	FeatureRegulatedMode = "regulated_mode"
)

// Rule is the authorization contract for one action.
type Rule struct {
	Action           Action   `json:"action"`
	RequiredRoles    []Role   `json:"requiredRoles"`
	ConflictingRoles []Role   `json:"conflictingRoles,omitempty"`
	RequiresApproval bool     `json:"requiresApproval"`
	ApproverRoles    []Role   `json:"approverRoles,omitempty"`
	AmountThreshold  *float64 `json:"amountThreshold,omitempty"`
	RequiresFeature  string   `json:"requiresFeature,omitempty"`
}

// Rules is a rule table keyed by action.
type Rules map[Action]Rule

func threshold(v float64) *float64 { return &v }

// DefaultRules returns the built-in rule table. Callers may extend the copy.
func DefaultRules() Rules {
	rules := []Rule{
		{
			Action:          ActionJournalCreate,
			RequiredRoles:   []Role{RoleClerk, RoleAPClerk, RoleARClerk, RoleAccountant, RoleFinanceManager, RoleCFO, RoleAdmin},
			RequiresFeature: FeatureJE,
		},
		{
			Action:          ActionJournalPost,
			RequiredRoles:   []Role{RoleAccountant, RoleFinanceManager, RoleCFO, RoleAdmin},
			RequiresFeature: FeatureJE,
		},
		{
			Action:           ActionJournalApprove,
			RequiredRoles:    []Role{RoleFinanceManager, RoleCFO, RoleAdmin},
			ConflictingRoles: []Role{RoleClerk, RoleAccountant},
			ApproverRoles:    []Role{RoleCFO, RoleAdmin},
			AmountThreshold:  threshold(50000),
			RequiresFeature:  FeatureJE,
		},
		{
			Action:           ActionJournalReverse,
			RequiredRoles:    []Role{RoleAccountant, RoleFinanceManager, RoleCFO, RoleAdmin},
			RequiresApproval: true,
			ApproverRoles:    []Role{RoleFinanceManager, RoleCFO, RoleAdmin},
			RequiresFeature:  FeatureJE,
		},
		{
			Action:           ActionPaymentCreate,
			RequiredRoles:    []Role{RoleClerk, RoleAPClerk, RoleARClerk, RoleAccountant, RoleFinanceManager, RoleAdmin},
			RequiresApproval: true,
			ApproverRoles:    []Role{RoleFinanceManager, RoleCFO, RoleAdmin},
		},
		{
			Action:           ActionPaymentApprove,
			RequiredRoles:    []Role{RoleClerk, RoleAccountant, RoleFinanceManager, RoleCFO, RoleAdmin},
			ConflictingRoles: []Role{RoleAPClerk, RoleARClerk},
			ApproverRoles:    []Role{RoleFinanceManager, RoleCFO, RoleAdmin},
			AmountThreshold:  threshold(10000),
			RequiresFeature:  FeatureAP,
		},
		{
			Action:          ActionPaymentPost,
			RequiredRoles:   []Role{RoleAccountant, RoleFinanceManager, RoleCFO, RoleAdmin},
			RequiresFeature: FeatureAP,
		},
		{
			Action:           ActionInvoiceApprove,
			RequiredRoles:    []Role{RoleAccountant, RoleFinanceManager, RoleCFO, RoleAdmin},
			ConflictingRoles: []Role{RoleARClerk},
			ApproverRoles:    []Role{RoleFinanceManager, RoleCFO, RoleAdmin},
			AmountThreshold:  threshold(25000),
			RequiresFeature:  FeatureAR,
		},
		{
			Action:           ActionBillApprove,
			RequiredRoles:    []Role{RoleAccountant, RoleFinanceManager, RoleCFO, RoleAdmin},
			ConflictingRoles: []Role{RoleAPClerk},
			ApproverRoles:    []Role{RoleFinanceManager, RoleCFO, RoleAdmin},
			AmountThreshold:  threshold(25000),
			RequiresFeature:  FeatureAP,
		},
		{
			Action:           ActionPeriodClose,
			RequiredRoles:    []Role{RoleFinanceManager, RoleCFO, RoleAdmin},
			ConflictingRoles: []Role{RoleClerk},
			RequiresApproval: true,
			ApproverRoles:    []Role{RoleCFO, RoleAdmin},
			RequiresFeature:  FeatureJE,
		},
		{
			Action:        ActionCOAModify,
			RequiredRoles: []Role{RoleCFO, RoleAdmin},
		},
		{
			Action:           ActionFXOverride,
			RequiredRoles:    []Role{RoleFinanceManager, RoleCFO, RoleAdmin},
			RequiresApproval: true,
			ApproverRoles:    []Role{RoleCFO, RoleAdmin},
			RequiresFeature:  FeatureRegulatedMode,
		},
	}
	table := make(Rules, len(rules))
	for _, rule := range rules {
		table[rule.Action] = rule
	}
	return table
}
