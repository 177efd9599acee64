package observability

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type alertRule struct {
	Alert       string            `yaml:"alert"`
	Expr        string            `yaml:"expr"`
	For         string            `yaml:"for"`
	Labels      map[string]string `yaml:"labels"`
	Annotations map[string]string `yaml:"annotations"`
}

type alertGroup struct {
	Name  string      `yaml:"name"`
	Rules []alertRule `yaml:"rules"`
}

type alertSpec struct {
	Groups []alertGroup `yaml:"groups"`
}

func TestPostingAlertRules(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("..", "..", "deploy", "prometheus", "alerts", "posting.yml"))
	require.NoError(t, err)

	var spec alertSpec
	require.NoError(t, yaml.Unmarshal(data, &spec))
	require.Len(t, spec.Groups, 1)
	require.Equal(t, "posting", spec.Groups[0].Name)

	expected := map[string]struct {
		severity string
		metric   string
	}{
		"FXAllSourcesFailing":    {severity: "critical", metric: "odyssey_fx_ingestions_total"},
		"FXRatesStale":           {severity: "warning", metric: "odyssey_fx_rate_age_minutes"},
		"SoDDenialSpike":         {severity: "warning", metric: "odyssey_sod_decisions_total"},
		"PostingUnbalancedSpike": {severity: "warning", metric: "odyssey_posting_validations_total"},
	}

	rules := spec.Groups[0].Rules
	require.Len(t, rules, len(expected))

	runbook, err := os.ReadFile(filepath.Join("..", "..", "docs", "runbook-posting.md"))
	require.NoError(t, err)

	for _, rule := range rules {
		want, ok := expected[rule.Alert]
		require.True(t, ok, "unexpected rule %q", rule.Alert)
		require.Equal(t, want.severity, rule.Labels["severity"], rule.Alert)
		require.Contains(t, rule.Expr, want.metric, rule.Alert)
		require.NotEmpty(t, rule.Annotations["summary"], rule.Alert)
		require.NotEmpty(t, rule.Annotations["description"], rule.Alert)

		link := rule.Annotations["runbook"]
		require.True(t, strings.HasPrefix(link, "docs/runbook-posting.md#"), rule.Alert)
		anchor := strings.TrimPrefix(link, "docs/runbook-posting.md#")
		require.Contains(t, string(runbook), "## "+anchor, rule.Alert)
	}
}
