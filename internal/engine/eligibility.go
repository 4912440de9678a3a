package engine

import (
	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/catalog"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Failure reason used when fraud indicators override the metric chain.
const (
	FraudFailureReason         = "suspicious pattern detected"
	FraudFailureRecommendation = "resolve the flagged fraud indicators before reapplying"
)

// EvaluateEligibility runs the catalog's ordered AND-chain of threshold
// rules. Every rule is evaluated with no short-circuit so the trace is a
// complete audit record; overall eligibility is the AND of all outcomes.
// The reported failure reason is the first failing rule in catalog order. A
// non-zero fraudCount is a higher-priority failure that overrides the
// metric chain's verdict.
func EvaluateEligibility(m *domain.DerivedMetrics, fraudCount int, snap *catalog.Snapshot) *domain.EligibilityResult {
	result := &domain.EligibilityResult{
		Eligible:       true,
		CatalogVersion: snap.Version,
		Trace:          make([]domain.RuleTrace, 0, len(snap.Eligibility)),
	}

	for _, rule := range snap.Eligibility {
		actual := resolveEligibilityMetric(m, fraudCount, rule.Metric)
		passed := rule.Op.Compare(actual, rule.Threshold)

		result.Trace = append(result.Trace, domain.RuleTrace{
			RuleID:    rule.ID,
			Metric:    rule.Metric,
			Operator:  rule.Op,
			Threshold: rule.Threshold,
			Actual:    actual,
			Passed:    passed,
		})

		result.RulesChecked++
		if passed {
			result.RulesPassed++
			continue
		}

		if result.Eligible {
			// First failure in catalog order carries the caller-facing reason.
			result.FailureReason = rule.FailureMessage
			result.Recommendation = rule.Recommendation
		}
		result.Eligible = false
	}

	if fraudCount > 0 {
		result.Eligible = false
		result.FailureReason = FraudFailureReason
		result.Recommendation = FraudFailureRecommendation
	}

	return result
}

// resolveEligibilityMetric resolves a rule metric, including the
// caller-supplied fraud indicator count the snapshot cannot know.
func resolveEligibilityMetric(m *domain.DerivedMetrics, fraudCount int, key string) decimal.Decimal {
	if key == catalog.MetricFraudIndicatorCount {
		return decimal.NewFromInt(int64(fraudCount))
	}
	return catalog.Resolve(m, key)
}
