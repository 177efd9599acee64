package observability

import "strings"

// ResultOK labels a validation that passed.
const ResultOK = "OK"

// ObserveSoDDecision counts a segregation-of-duties outcome.
func (m *Metrics) ObserveSoDDecision(action, outcome string) {
	if m == nil {
		return
	}
	m.sodDecisions.WithLabelValues(action, strings.ToLower(outcome)).Inc()
}

// ObservePostingValidation counts a validation run. An empty code means it
// passed.
func (m *Metrics) ObservePostingValidation(operation, code string) {
	if m == nil {
		return
	}
	if code == "" {
		code = ResultOK
	}
	m.postingValidations.WithLabelValues(operation, code).Inc()
}

// ObserveFXIngestion satisfies fx.Observer.
func (m *Metrics) ObserveFXIngestion(source, result string) {
	if m == nil {
		return
	}
	m.fxIngestions.WithLabelValues(source, result).Inc()
}

// ObserveFXRateAge satisfies fx.Observer.
func (m *Metrics) ObserveFXRateAge(base string, ageMinutes float64) {
	if m == nil {
		return
	}
	m.fxRateAge.WithLabelValues(base).Set(ageMinutes)
}
