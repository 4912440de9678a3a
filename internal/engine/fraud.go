package engine

import (
	"github.com/opensource-finance/kestrel/internal/catalog"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// EvaluateFraud applies every catalog-defined fraud rule to the metrics
// snapshot. A rule whose comparison holds emits a severity-tagged
// indicator. Any non-empty result set overrides eligibility: callers must
// report the applicant ineligible regardless of the metric chain.
func EvaluateFraud(m *domain.DerivedMetrics, snap *catalog.Snapshot) []domain.FraudIndicator {
	var indicators []domain.FraudIndicator

	for _, rule := range snap.FraudRules {
		actual := catalog.Resolve(m, rule.Metric)
		if !rule.Op.Compare(actual, rule.Threshold) {
			continue
		}
		indicators = append(indicators, domain.FraudIndicator{
			RuleID:      rule.ID,
			Severity:    rule.Severity,
			Action:      rule.Action,
			Explanation: rule.Explanation,
			Actual:      actual,
			Threshold:   rule.Threshold,
		})
	}

	return indicators
}
