package catalog

import (
	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// DefaultVersion tags the built-in fallback catalog so degraded operation is
// distinguishable in every decision's audit trail.
const DefaultVersion = "builtin-default"

func dec(v string) decimal.Decimal {
	d, _ := decimal.NewFromString(v)
	return d
}

func decPtr(v string) *decimal.Decimal {
	d := dec(v)
	return &d
}

// DefaultCatalog returns the minimal built-in catalog used when no document
// can be loaded: a single volume-weighted component, the standard band
// table, a conservative eligibility chain, one fraud rule, and the default
// loan tables.
func DefaultCatalog() *domain.Catalog {
	return &domain.Catalog{
		Version: DefaultVersion,
		Components: []domain.ScoringComponent{
			{
				Name:   "volume",
				Weight: decimal.NewFromInt(1),
				Metric: "avg_monthly_volume",
				Tiers: []domain.Tier{
					{Min: dec("0"), Max: decPtr("25000"), Score: dec("20"), Label: "minimal"},
					{Min: dec("25000"), Max: decPtr("75000"), Score: dec("45"), Label: "developing"},
					{Min: dec("75000"), Max: decPtr("150000"), Score: dec("65"), Label: "steady"},
					{Min: dec("150000"), Max: decPtr("300000"), Score: dec("80"), Label: "strong"},
					{Min: dec("300000"), Score: dec("95"), Label: "excellent"},
				},
			},
		},
		RiskBands: []domain.RiskBand{
			{Label: domain.RiskBandLow, Min: 80, Max: 100},
			{Label: domain.RiskBandMedium, Min: 60, Max: 79},
			{Label: domain.RiskBandHigh, Min: 0, Max: 59},
		},
		Eligibility: []domain.EligibilityRule{
			{
				ID:             "min-monthly-volume",
				Metric:         "avg_monthly_volume",
				Op:             domain.OpGTE,
				Threshold:      dec("50000"),
				FailureMessage: "average monthly volume below minimum",
				Recommendation: "maintain higher monthly credit volume for at least three months",
			},
			{
				ID:             "max-bounce-rate",
				Metric:         "bounce_rate",
				Op:             domain.OpLTE,
				Threshold:      dec("15"),
				FailureMessage: "transaction failure rate too high",
				Recommendation: "reduce failed transactions below 15%",
			},
		},
		FraudRules: []domain.FraudRule{
			{
				ID:          "extreme-concentration",
				Metric:      "customer_concentration",
				Op:          domain.OpGT,
				Threshold:   dec("90"),
				Severity:    domain.SeverityHigh,
				Action:      "manual_review",
				Explanation: "over 90% of volume comes from ten or fewer counterparties",
			},
		},
		Loan: DefaultLoanParameters(),
	}
}

// DefaultLoanParameters returns the built-in per-band loan tables, also used
// when a loaded catalog omits the loan_parameters section.
func DefaultLoanParameters() domain.LoanParameters {
	return domain.LoanParameters{
		ByBand: map[string]domain.LoanBandParams{
			domain.RiskBandLow:    {Multiplier: dec("3"), MaxTenureDays: 180, AnnualRate: dec("14")},
			domain.RiskBandMedium: {Multiplier: dec("2"), MaxTenureDays: 120, AnnualRate: dec("18")},
			domain.RiskBandHigh:   {Multiplier: dec("1"), MaxTenureDays: 90, AnnualRate: dec("24")},
		},
		MinAmount: dec("10000"),
		MaxAmount: dec("5000000"),
		ConsistencyAdjustment: domain.ConsistencyAdjustment{
			Enabled:         true,
			Threshold:       dec("40"),
			ReductionFactor: dec("0.5"),
		},
	}
}

// DefaultSnapshot compiles the default catalog. The default contains no
// formula components, so compilation cannot fail.
func DefaultSnapshot() *Snapshot {
	snap, err := compile(DefaultCatalog())
	if err != nil {
		// Unreachable: the built-in catalog is tier-only.
		panic(err)
	}
	return snap
}
