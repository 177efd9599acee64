package sod

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func amount(v float64) *float64 { return &v }

func TestDecideUnknownAction(t *testing.T) {
	d := Decide(UserContext{Roles: []Role{RoleAdmin}}, "ledger:explode", ActionContext{}, nil, nil)
	require.False(t, d.Allowed)
	require.Equal(t, ReasonUnknownAction, d.ReasonCode)
	require.Contains(t, d.Reason, "unknown action")
}

func TestDecideFeatureFlag(t *testing.T) {
	user := UserContext{Roles: []Role{RoleAccountant}}
	d := Decide(user, ActionJournalPost, ActionContext{}, FeatureFlags{"ap": true}, nil)
	require.False(t, d.Allowed)
	require.Equal(t, ReasonFeatureDisabled, d.ReasonCode)

	d = Decide(user, ActionJournalPost, ActionContext{}, FeatureFlags{"je": true}, nil)
	require.True(t, d.Allowed)

	d = Decide(user, ActionJournalPost, ActionContext{}, nil, nil)
	require.True(t, d.Allowed, "nil flags enable everything")
}

func TestDecideDenyBeatsAllow(t *testing.T) {
	user := UserContext{
		Roles:       []Role{RoleAdmin},
		Permissions: &Permissions{Allow: []string{"payment:approve"}, Deny: []string{"payment:approve"}},
	}
	d := Decide(user, ActionPaymentApprove, ActionContext{}, nil, nil)
	require.False(t, d.Allowed)
	require.Equal(t, ReasonExplicitDeny, d.ReasonCode)
}

func TestDecideExplicitAllowBypassesRoleCheckOnly(t *testing.T) {
	user := UserContext{
		Roles:       []Role{RoleViewer},
		Permissions: &Permissions{Allow: []string{"journal:*"}},
	}
	d := Decide(user, ActionJournalPost, ActionContext{}, nil, nil)
	require.True(t, d.Allowed)

	d = Decide(user, ActionJournalApprove, ActionContext{CreatorRole: RoleAccountant}, nil, nil)
	require.False(t, d.Allowed)
	require.Equal(t, ReasonConflictOfInterest, d.ReasonCode)

	d = Decide(user, ActionJournalApprove, ActionContext{Amount: amount(60000)}, nil, nil)
	require.False(t, d.Allowed)
	require.Equal(t, ReasonOverThreshold, d.ReasonCode)
}

func TestDecideRoleMismatch(t *testing.T) {
	d := Decide(UserContext{Roles: []Role{RoleViewer}}, ActionJournalPost, ActionContext{}, nil, nil)
	require.False(t, d.Allowed)
	require.Equal(t, ReasonRoleMismatch, d.ReasonCode)
	require.Equal(t, OutcomeDeny, d.Outcome)
}

func TestDecideConflictOfInterestEvenWithRole(t *testing.T) {
	d := Decide(UserContext{Roles: []Role{RoleFinanceManager}}, ActionPaymentApprove, ActionContext{CreatorRole: "AP_CLERK"}, nil, nil)
	require.False(t, d.Allowed)
	require.Equal(t, ReasonConflictOfInterest, d.ReasonCode)
}

func TestDecideThresholdPrecedence(t *testing.T) {
	ctx := ActionContext{Amount: amount(7000)}
	clerk := UserContext{Roles: []Role{RoleClerk}}

	d := Decide(clerk, ActionPaymentApprove, ctx, nil, nil)
	require.True(t, d.Allowed, "rule default of 10000 admits 7000")
	require.Equal(t, ThresholdFromRule, d.ThresholdSource)

	policy := &PolicySettings{ApprovalThreshold: amount(5000)}
	d = Decide(clerk, ActionPaymentApprove, ctx, nil, policy)
	require.False(t, d.Allowed)
	require.Equal(t, ReasonOverThreshold, d.ReasonCode)
	require.Equal(t, ThresholdFromPolicy, d.ThresholdSource)
	require.Equal(t, 5000.0, *d.EffectiveThreshold)

	clerk.Permissions = &Permissions{Overrides: Overrides{ApprovalThreshold: amount(8000)}}
	d = Decide(clerk, ActionPaymentApprove, ctx, nil, policy)
	require.True(t, d.Allowed, "user override wins over tenant policy")
	require.Equal(t, ThresholdFromUser, d.ThresholdSource)
}

func TestDecidePolicyActionThreshold(t *testing.T) {
	policy := &PolicySettings{
		ApprovalThreshold: amount(50000),
		ActionThresholds:  map[Action]float64{ActionPaymentApprove: 100},
	}
	d := Decide(UserContext{Roles: []Role{RoleClerk}}, ActionPaymentApprove, ActionContext{Amount: amount(500)}, nil, policy)
	require.False(t, d.Allowed)
	require.Equal(t, 100.0, *d.EffectiveThreshold)
}

func TestDecideClerkOverThresholdCitesThreshold(t *testing.T) {
	d := Decide(UserContext{Roles: []Role{RoleClerk}}, ActionPaymentApprove, ActionContext{Amount: amount(15000)}, nil, nil)
	require.False(t, d.Allowed)
	require.Equal(t, ReasonOverThreshold, d.ReasonCode)
	require.Contains(t, d.Reason, "threshold")
	require.ElementsMatch(t, []Role{RoleFinanceManager, RoleCFO, RoleAdmin}, d.ApproverRoles)

	d = Decide(UserContext{Roles: []Role{RoleClerk, RoleFinanceManager}}, ActionPaymentApprove, ActionContext{Amount: amount(15000)}, nil, nil)
	require.True(t, d.Allowed)
}

func TestDecideRequiresApprovalIndependentOfThreshold(t *testing.T) {
	d := Decide(UserContext{Roles: []Role{RoleClerk}}, ActionPaymentCreate, ActionContext{Amount: amount(1)}, nil, nil)
	require.True(t, d.Allowed)
	require.True(t, d.RequiresApproval)
	require.Equal(t, OutcomeRequiresApproval, d.Outcome)

	d = Decide(UserContext{Roles: []Role{RoleAccountant}}, ActionJournalPost, ActionContext{Amount: amount(1e9)}, nil, nil)
	require.True(t, d.Allowed)
	require.False(t, d.RequiresApproval)
}

func TestCheckCompliance(t *testing.T) {
	require.True(t, CheckCompliance(ActionJournalPost, RoleAccountant, "").Allowed)
	require.False(t, CheckCompliance(ActionJournalPost, RoleViewer, "").Allowed)

	d := CheckCompliance(ActionJournalApprove, RoleFinanceManager, RoleAccountant)
	require.False(t, d.Allowed)
	require.Equal(t, ReasonConflictOfInterest, d.ReasonCode)

	require.True(t, CheckCompliance(ActionFXOverride, RoleCFO, "").Allowed, "shim enables every feature")
}

func TestEngineCustomRules(t *testing.T) {
	rules := DefaultRules()
	rules["expense:approve"] = Rule{Action: "expense:approve", RequiredRoles: []Role{RoleAccountant}}
	engine := NewEngine(rules)

	require.True(t, engine.CheckCompliance("expense:approve", RoleAccountant, "").Allowed)
	require.Equal(t, ReasonUnknownAction, CheckCompliance("expense:approve", RoleAccountant, "").ReasonCode)
}

func TestDecisionRolesDoNotAliasRuleTable(t *testing.T) {
	engine := NewEngine(nil)

	d := engine.Decide(UserContext{Roles: []Role{RoleClerk}}, ActionPaymentApprove, ActionContext{Amount: amount(15000)}, nil, nil)
	require.False(t, d.Allowed)
	d.ApproverRoles[0] = RoleViewer

	d = engine.Decide(UserContext{Roles: []Role{RoleClerk}}, ActionPaymentCreate, ActionContext{}, nil, nil)
	require.True(t, d.RequiresApproval)
	d.ApproverRoles[0] = RoleViewer

	rule, ok := engine.Rule(ActionPaymentApprove)
	require.True(t, ok)
	require.Equal(t, RoleFinanceManager, rule.ApproverRoles[0])
	rule.ApproverRoles[0] = RoleViewer

	again, _ := engine.Rule(ActionPaymentApprove)
	require.Equal(t, RoleFinanceManager, again.ApproverRoles[0])
	create, _ := engine.Rule(ActionPaymentCreate)
	require.Equal(t, RoleFinanceManager, create.ApproverRoles[0])
}

func TestRuleNormalizesActionName(t *testing.T) {
	rule, ok := NewEngine(nil).Rule(" Journal:Post ")
	require.True(t, ok)
	require.Equal(t, ActionJournalPost, rule.Action)
}
