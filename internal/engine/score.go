// Package engine holds the pure evaluators: composite score, eligibility,
// fraud screen, and loan terms. Every function here is total and side-effect
// free over an immutable metrics snapshot and an immutable catalog snapshot,
// so arbitrarily many evaluations may run concurrently.
package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/catalog"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Component-score cutoffs for warning and strength annotations.
var (
	warningCutoff  = decimal.NewFromInt(40)
	strengthCutoff = decimal.NewFromInt(85)
	hundred        = decimal.NewFromInt(100)
)

func clamp100(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	if v.GreaterThan(hundred) {
		return hundred
	}
	return v
}

// EvaluateScore applies every catalog-defined scoring component to the
// metrics snapshot and produces the composite score, risk band, and
// per-component breakdown. The component set is entirely catalog-driven.
func EvaluateScore(m *domain.DerivedMetrics, snap *catalog.Snapshot) *domain.ScoreResult {
	result := &domain.ScoreResult{
		CatalogVersion: snap.Version,
		Breakdown:      make([]domain.ComponentScore, 0, len(snap.Components)),
	}

	total := decimal.Zero

	for _, comp := range snap.Components {
		score, label := componentScore(m, snap, &comp)
		weighted := score.Mul(comp.Weight)
		total = total.Add(weighted)

		line := domain.ComponentScore{
			Component: comp.Name,
			Metric:    comp.Metric,
			Score:     score,
			Weight:    comp.Weight,
			Weighted:  weighted,
			Label:     label,
		}

		if score.LessThanOrEqual(warningCutoff) {
			line.Warning = true
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("%s score is weak (%s)", comp.Name, score.String()))
		} else if score.GreaterThanOrEqual(strengthCutoff) {
			line.Strength = true
			result.Strengths = append(result.Strengths,
				fmt.Sprintf("%s score is strong (%s)", comp.Name, score.String()))
		}

		result.Breakdown = append(result.Breakdown, line)
	}

	composite := clamp100(total.Round(0))
	result.Score = int(composite.IntPart())
	result.RiskBand = snap.Band(result.Score)

	return result
}

// componentScore resolves one component to a clamped [0,100] score.
func componentScore(m *domain.DerivedMetrics, snap *catalog.Snapshot, comp *domain.ScoringComponent) (decimal.Decimal, string) {
	if comp.Calculation != "" {
		raw, ok := snap.EvalFormula(comp.Name, m)
		if !ok {
			return decimal.Zero, "formula error"
		}
		raw = applySeasonalBonus(raw, m, &comp.Seasonal)
		return clamp100(raw), "calculated"
	}

	if len(comp.Tiers) == 0 {
		return decimal.Zero, ""
	}

	value := catalog.Resolve(m, comp.Metric)

	// First tier whose half-open [min,max) interval contains the value;
	// none matching falls back to the last tier. Tier authors encode
	// "lower is better" metrics by descending scores, so no sign
	// inversion happens here.
	for i := range comp.Tiers {
		if comp.Tiers[i].Contains(value) {
			return clamp100(comp.Tiers[i].Score), comp.Tiers[i].Label
		}
	}
	last := &comp.Tiers[len(comp.Tiers)-1]
	return clamp100(last.Score), last.Label
}

// applySeasonalBonus grants the configured bonus when the adjustment is
// enabled and the snapshot's volatility crosses the catalog threshold (or
// the seasonal flag is set when no threshold is given).
func applySeasonalBonus(score decimal.Decimal, m *domain.DerivedMetrics, adj *domain.SeasonalAdjustment) decimal.Decimal {
	if !adj.Enabled {
		return score
	}
	seasonal := m.Seasonal
	if adj.Threshold.Sign() > 0 {
		seasonal = m.CoefficientOfVariation.GreaterThan(adj.Threshold)
	}
	if seasonal {
		return score.Add(adj.Bonus)
	}
	return score
}
