// Package sod decides whether a user may perform a guarded action, applying
// explicit per-user grants, segregation-of-duties conflicts and amount
// thresholds in a fixed order.
package sod

import (
	"fmt"
	"strings"
	"time"
)

// Outcome is the tri-state result of a decision.
type Outcome string

const (
	OutcomeAllow            Outcome = "allow"
	OutcomeDeny             Outcome = "deny"
	OutcomeRequiresApproval Outcome = "requires_approval"
)

// ReasonCode classifies why a decision was reached.
type ReasonCode string

const (
	ReasonUnknownAction      ReasonCode = "UNKNOWN_ACTION"
	ReasonFeatureDisabled    ReasonCode = "FEATURE_DISABLED"
	ReasonExplicitDeny       ReasonCode = "EXPLICIT_DENY"
	ReasonRoleMismatch       ReasonCode = "ROLE_MISMATCH"
	ReasonConflictOfInterest ReasonCode = "CONFLICT_OF_INTEREST"
	ReasonOverThreshold      ReasonCode = "OVER_THRESHOLD"
	ReasonAllowed            ReasonCode = "ALLOWED"
)

// ThresholdSource records which level supplied the effective threshold.
type ThresholdSource string

const (
	ThresholdFromUser   ThresholdSource = "user_override"
	ThresholdFromPolicy ThresholdSource = "tenant_policy"
	ThresholdFromRule   ThresholdSource = "rule_default"
)

// Overrides carries per-user numeric overrides.
type Overrides struct {
	ApprovalThreshold *float64 `json:"approvalThreshold,omitempty"`
}

// Permissions holds explicit per-user grants that override role defaults.
type Permissions struct {
	Allow     []string  `json:"allow,omitempty"`
	Deny      []string  `json:"deny,omitempty"`
	Overrides Overrides `json:"overrides"`
}

// UserContext is the decision-time view of the acting user.
type UserContext struct {
	ID          string       `json:"id"`
	TenantID    string       `json:"tenantId"`
	CompanyID   string       `json:"companyId"`
	Roles       []Role       `json:"roles"`
	Permissions *Permissions `json:"permissions,omitempty"`
}

// ActionContext is supplied per decision call.
type ActionContext struct {
	Amount      *float64 `json:"amount,omitempty"`
	Module      string   `json:"module,omitempty"`
	CreatorRole Role     `json:"creatorRole,omitempty"`
}

// FeatureFlags are tenant toggles. A nil map enables every feature; otherwise
// a missing key is treated as disabled.
type FeatureFlags map[string]bool

// Enabled reports whether feature is switched on.
func (f FeatureFlags) Enabled(feature string) bool {
	if f == nil {
		return true
	}
	return f[feature]
}

// PolicySettings are numeric tenant policy knobs.
type PolicySettings struct {
	ApprovalThreshold *float64           `json:"approvalThreshold,omitempty"`
	ActionThresholds  map[Action]float64 `json:"actionThresholds,omitempty"`
	SessionTimeout    time.Duration      `json:"sessionTimeout,omitempty"`
}

// Decision is the result of evaluating one action for one user.
type Decision struct {
	Allowed            bool            `json:"allowed"`
	RequiresApproval   bool            `json:"requiresApproval"`
	Outcome            Outcome         `json:"outcome"`
	Reason             string          `json:"reason,omitempty"`
	ReasonCode         ReasonCode      `json:"reasonCode"`
	Action             Action          `json:"action"`
	ApproverRoles      []Role          `json:"approverRoles,omitempty"`
	EffectiveThreshold *float64        `json:"effectiveThreshold,omitempty"`
	ThresholdSource    ThresholdSource `json:"thresholdSource,omitempty"`
}

// Engine evaluates decisions against a rule table.
type Engine struct {
	rules Rules
}

// NewEngine builds an engine. A nil table falls back to DefaultRules.
func NewEngine(rules Rules) *Engine {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Engine{rules: rules}
}

var defaultEngine = NewEngine(nil)

// Decide evaluates action with the default rule table.
func Decide(user UserContext, action Action, ctx ActionContext, flags FeatureFlags, policy *PolicySettings) Decision {
	return defaultEngine.Decide(user, action, ctx, flags, policy)
}

// CheckCompliance is the single-role entry point: it evaluates action for a
// user holding only role, with every feature enabled and no tenant policy.
func CheckCompliance(action Action, role Role, creatorRole Role) Decision {
	return defaultEngine.CheckCompliance(action, role, creatorRole)
}

// Rule returns a copy of the rule registered for action. The action name is
// matched the way Decide matches it.
func (e *Engine) Rule(action Action) (Rule, bool) {
	rule, ok := e.rules[normalizeAction(action)]
	if !ok {
		return Rule{}, false
	}
	rule.RequiredRoles = cloneRoles(rule.RequiredRoles)
	rule.ConflictingRoles = cloneRoles(rule.ConflictingRoles)
	rule.ApproverRoles = cloneRoles(rule.ApproverRoles)
	if rule.AmountThreshold != nil {
		limit := *rule.AmountThreshold
		rule.AmountThreshold = &limit
	}
	return rule, true
}

// CheckCompliance evaluates action for a degenerate single-role user.
func (e *Engine) CheckCompliance(action Action, role Role, creatorRole Role) Decision {
	user := UserContext{Roles: []Role{role}}
	return e.Decide(user, action, ActionContext{CreatorRole: creatorRole}, nil, nil)
}

// Decide applies, in order: unknown action, feature flag, explicit deny,
// explicit allow (skips the role check), role match, conflict of interest,
// amount threshold.
func (e *Engine) Decide(user UserContext, action Action, ctx ActionContext, flags FeatureFlags, policy *PolicySettings) Decision {
	action = normalizeAction(action)
	rule, ok := e.rules[action]
	if !ok {
		return deny(action, ReasonUnknownAction, fmt.Sprintf("unknown action %q", action))
	}
	if rule.RequiresFeature != "" && !flags.Enabled(rule.RequiresFeature) {
		return deny(action, ReasonFeatureDisabled, fmt.Sprintf("feature %q is disabled for this tenant", rule.RequiresFeature))
	}

	perms := user.Permissions
	if perms == nil {
		perms = &Permissions{}
	}
	if matchesAction(perms.Deny, action) {
		return deny(action, ReasonExplicitDeny, fmt.Sprintf("user is explicitly denied %q", action))
	}
	explicitAllow := matchesAction(perms.Allow, action)
	roles := normalizeRoles(user.Roles)
	if !explicitAllow && !hasAnyRole(roles, rule.RequiredRoles) {
		return deny(action, ReasonRoleMismatch, fmt.Sprintf("none of the user's roles may perform %q (requires one of %s)", action, joinRoles(rule.RequiredRoles)))
	}

	if creator := normalizeRole(ctx.CreatorRole); creator != "" && hasAnyRole([]Role{creator}, rule.ConflictingRoles) {
		return deny(action, ReasonConflictOfInterest, fmt.Sprintf("role %q created this record and cannot also %s it", creator, verb(action)))
	}

	decision := Decision{
		Allowed:          true,
		RequiresApproval: rule.RequiresApproval,
		Outcome:          OutcomeAllow,
		ReasonCode:       ReasonAllowed,
		Action:           action,
	}
	if rule.RequiresApproval {
		decision.Outcome = OutcomeRequiresApproval
		decision.ApproverRoles = cloneRoles(rule.ApproverRoles)
	}

	if ctx.Amount != nil && rule.AmountThreshold != nil {
		limit, source := resolveThreshold(rule, action, perms, policy)
		decision.EffectiveThreshold = &limit
		decision.ThresholdSource = source
		if *ctx.Amount > limit && !hasAnyRole(roles, rule.ApproverRoles) {
			denied := deny(action, ReasonOverThreshold, fmt.Sprintf("amount %.2f exceeds the approval threshold of %.2f; requires one of %s", *ctx.Amount, limit, joinRoles(rule.ApproverRoles)))
			denied.ApproverRoles = cloneRoles(rule.ApproverRoles)
			denied.EffectiveThreshold = &limit
			denied.ThresholdSource = source
			return denied
		}
	}
	return decision
}

func resolveThreshold(rule Rule, action Action, perms *Permissions, policy *PolicySettings) (float64, ThresholdSource) {
	if perms != nil && perms.Overrides.ApprovalThreshold != nil {
		return *perms.Overrides.ApprovalThreshold, ThresholdFromUser
	}
	if policy != nil {
		if v, ok := policy.ActionThresholds[action]; ok {
			return v, ThresholdFromPolicy
		}
		if policy.ApprovalThreshold != nil {
			return *policy.ApprovalThreshold, ThresholdFromPolicy
		}
	}
	return *rule.AmountThreshold, ThresholdFromRule
}

func deny(action Action, code ReasonCode, reason string) Decision {
	return Decision{
		Allowed:    false,
		Outcome:    OutcomeDeny,
		Reason:     reason,
		ReasonCode: code,
		Action:     action,
	}
}

// matchesAction supports exact names, "module:*" and "*".
func matchesAction(granted []string, action Action) bool {
	name := string(action)
	module, _, _ := strings.Cut(name, ":")
	for _, g := range granted {
		g = strings.ToLower(strings.TrimSpace(g))
		if g == name || g == "*" || g == module+":*" {
			return true
		}
	}
	return false
}

func normalizeAction(a Action) Action {
	return Action(strings.ToLower(strings.TrimSpace(string(a))))
}

func cloneRoles(roles []Role) []Role {
	if roles == nil {
		return nil
	}
	return append([]Role(nil), roles...)
}

func normalizeRole(r Role) Role {
	return Role(strings.ToLower(strings.TrimSpace(string(r))))
}

func normalizeRoles(roles []Role) []Role {
	out := make([]Role, 0, len(roles))
	for _, r := range roles {
		if n := normalizeRole(r); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func hasAnyRole(granted, required []Role) bool {
	set := make(map[Role]struct{}, len(granted))
	for _, r := range granted {
		set[r] = struct{}{}
	}
	for _, r := range required {
		if _, ok := set[r]; ok {
			return true
		}
	}
	return false
}

func joinRoles(roles []Role) string {
	parts := make([]string, len(roles))
	for i, r := range roles {
		parts[i] = string(r)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func verb(action Action) string {
	_, v, ok := strings.Cut(string(action), ":")
	if !ok {
		return string(action)
	}
	return v
}
