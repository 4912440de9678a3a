package catalog

import (
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Accessor resolves one metric key against a metrics snapshot.
type Accessor func(m *domain.DerivedMetrics) decimal.Decimal

// MetricFraudIndicatorCount is supplied by the caller at evaluation time,
// not derived from the metrics snapshot. The registry knows the key so
// catalogs referencing it validate cleanly.
const MetricFraudIndicatorCount = "fraud_indicator_count"

// metricAccessors is the closed registry of metric keys a catalog may
// reference. Built once; never re-interpreted per evaluation.
var metricAccessors = map[string]Accessor{
	"avg_monthly_volume": func(m *domain.DerivedMetrics) decimal.Decimal { return m.AvgMonthlyVolume },
	"volume_3m":          func(m *domain.DerivedMetrics) decimal.Decimal { return m.Volume3M },
	"volume_6m":          func(m *domain.DerivedMetrics) decimal.Decimal { return m.Volume6M },
	"volume_12m":         func(m *domain.DerivedMetrics) decimal.Decimal { return m.Volume12M },
	"prev_volume_3m":     func(m *domain.DerivedMetrics) decimal.Decimal { return m.PrevVolume3M },
	"avg_transaction_value": func(m *domain.DerivedMetrics) decimal.Decimal {
		return m.AvgTransactionValue
	},
	"transaction_count": func(m *domain.DerivedMetrics) decimal.Decimal {
		return decimal.NewFromInt(int64(m.TotalTransactions))
	},
	"successful_credits": func(m *domain.DerivedMetrics) decimal.Decimal {
		return decimal.NewFromInt(int64(m.SuccessfulCredits))
	},
	"failed_transactions": func(m *domain.DerivedMetrics) decimal.Decimal {
		return decimal.NewFromInt(int64(m.FailedTransactions))
	},
	"unique_customers": func(m *domain.DerivedMetrics) decimal.Decimal {
		return decimal.NewFromInt(int64(m.UniqueCounterparties))
	},
	"monthly_buckets": func(m *domain.DerivedMetrics) decimal.Decimal {
		return decimal.NewFromInt(int64(len(m.MonthlyBreakdown)))
	},
	"consistency_score": func(m *domain.DerivedMetrics) decimal.Decimal { return m.ConsistencyScore },
	"growth_rate":       func(m *domain.DerivedMetrics) decimal.Decimal { return m.GrowthRate },
	"bounce_rate":       func(m *domain.DerivedMetrics) decimal.Decimal { return m.BounceRate },
	"customer_concentration": func(m *domain.DerivedMetrics) decimal.Decimal {
		return m.CustomerConcentration
	},
	"top_counterparty_volume": func(m *domain.DerivedMetrics) decimal.Decimal {
		return m.TopCounterpartyVolume
	},
	"cv": func(m *domain.DerivedMetrics) decimal.Decimal { return m.CoefficientOfVariation },
	"coefficient_of_variation": func(m *domain.DerivedMetrics) decimal.Decimal {
		return m.CoefficientOfVariation
	},
}

// KnownMetric reports whether key resolves in the registry.
func KnownMetric(key string) bool {
	if key == MetricFraudIndicatorCount {
		return true
	}
	_, ok := metricAccessors[key]
	return ok
}

// Resolve returns the metric value for key, or zero for an unknown key.
// Unknown keys are logged rather than failing: a catalog authored against a
// newer engine must degrade, not crash. Load-time validation surfaces the
// same condition as a warning.
func Resolve(m *domain.DerivedMetrics, key string) decimal.Decimal {
	acc, ok := metricAccessors[key]
	if !ok {
		slog.Warn("unknown metric key resolves to zero", "metric", key)
		return decimal.Zero
	}
	return acc(m)
}
