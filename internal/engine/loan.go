package engine

import (
	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/catalog"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// ComputeLoanTerms derives the loan offer for a risk band from the
// catalog's loan tables: amount = average monthly volume x band multiplier,
// clamped to the global limits; tenure from the band table, optionally
// reduced for low consistency; interest rate from the band table. Missing
// catalog sections fall back per-field to the built-in defaults, the same
// graceful degradation as catalog loading.
func ComputeLoanTerms(band string, avgMonthlyVolume, consistency decimal.Decimal, snap *catalog.Snapshot) *domain.LoanTerms {
	defaults := catalog.DefaultLoanParameters()

	params, ok := snap.Loan.ByBand[band]
	if !ok {
		params = defaults.ByBand[band]
	}
	fallback, haveFallback := defaults.ByBand[band]
	if !haveFallback {
		// Unknown band: treat as the most conservative.
		fallback = defaults.ByBand[domain.RiskBandHigh]
	}

	if params.Multiplier.Sign() <= 0 {
		params.Multiplier = fallback.Multiplier
	}
	if params.MaxTenureDays <= 0 {
		params.MaxTenureDays = fallback.MaxTenureDays
	}
	if params.AnnualRate.Sign() <= 0 {
		params.AnnualRate = fallback.AnnualRate
	}

	minAmount, maxAmount := snap.Loan.MinAmount, snap.Loan.MaxAmount
	if maxAmount.Sign() <= 0 {
		minAmount, maxAmount = defaults.MinAmount, defaults.MaxAmount
	}

	amount := avgMonthlyVolume.Mul(params.Multiplier).Round(2)
	if amount.LessThan(minAmount) {
		amount = minAmount
	}
	if amount.GreaterThan(maxAmount) {
		amount = maxAmount
	}

	tenure := params.MaxTenureDays
	adj := snap.Loan.ConsistencyAdjustment
	if len(snap.Loan.ByBand) == 0 {
		adj = defaults.ConsistencyAdjustment
	}
	if adj.Enabled && consistency.LessThan(adj.Threshold) {
		// Rounded toward zero, never reduced to nothing.
		reduced := decimal.NewFromInt(int64(tenure)).Mul(adj.ReductionFactor)
		tenure = int(reduced.IntPart())
		if tenure < 1 {
			tenure = 1
		}
	}

	return &domain.LoanTerms{
		EligibleAmount:     amount,
		MaxTenureDays:      tenure,
		AnnualInterestRate: params.AnnualRate,
		MultiplierApplied:  params.Multiplier,
		RiskBand:           band,
		CatalogVersion:     snap.Version,
	}
}
