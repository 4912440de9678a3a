package catalog

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// The externally editable catalog document schema. Parsing is strict about
// structure but tolerant about omitted sections; missing sections degrade to
// built-in defaults at evaluation time.

type document struct {
	Version        string                      `json:"version"`
	Scoring        documentScoring             `json:"scoring"`
	RiskCategories map[string]documentRange    `json:"risk_categories"`
	Eligibility    documentEligibility         `json:"eligibility"`
	FraudDetection documentFraudDetection      `json:"fraud_detection"`
	LoanParameters *documentLoanParameters     `json:"loan_parameters"`
}

type documentScoring struct {
	Components map[string]documentComponent `json:"components"`
}

type documentComponent struct {
	Weight      decimal.Decimal   `json:"weight"`
	Metric      string            `json:"metric"`
	Tiers       []documentTier    `json:"tiers"`
	Calculation string            `json:"calculation"`
	Seasonal    *documentSeasonal `json:"seasonal_adjustment"`
}

type documentTier struct {
	Min   decimal.Decimal  `json:"min"`
	Max   *decimal.Decimal `json:"max"`
	Score decimal.Decimal  `json:"score"`
	Label string           `json:"label"`
}

type documentSeasonal struct {
	Enabled   bool            `json:"enabled"`
	Threshold decimal.Decimal `json:"threshold"`
	Bonus     decimal.Decimal `json:"bonus"`
}

type documentRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

type documentEligibility struct {
	Rules []documentThresholdRule `json:"rules"`
}

type documentThresholdRule struct {
	ID             string          `json:"id"`
	Metric         string          `json:"metric"`
	Operator       string          `json:"operator"`
	Value          decimal.Decimal `json:"value"`
	FailureMessage string          `json:"failure_message"`
	Recommendation string          `json:"recommendation"`
	Severity       string          `json:"severity"`
	Action         string          `json:"action"`
	Explanation    string          `json:"explanation"`
}

type documentFraudDetection struct {
	Rules []documentThresholdRule `json:"rules"`
}

type documentLoanParameters struct {
	Amount struct {
		ByRiskCategory map[string]struct {
			Multiplier decimal.Decimal `json:"multiplier"`
		} `json:"by_risk_category"`
		Limits struct {
			Min decimal.Decimal `json:"min"`
			Max decimal.Decimal `json:"max"`
		} `json:"limits"`
	} `json:"amount"`
	Tenure struct {
		ByRiskCategory map[string]struct {
			MaxDays int `json:"max_days"`
		} `json:"by_risk_category"`
		ConsistencyAdjustment struct {
			Enabled         bool            `json:"enabled"`
			Threshold       decimal.Decimal `json:"threshold"`
			ReductionFactor decimal.Decimal `json:"reduction_factor"`
		} `json:"consistency_adjustment"`
	} `json:"tenure"`
	InterestRate struct {
		ByRiskCategory map[string]struct {
			AnnualRate decimal.Decimal `json:"annual_rate"`
		} `json:"by_risk_category"`
	} `json:"interest_rate"`
}

// parseDocument unmarshals and converts a catalog document into the
// immutable in-memory model. Map-keyed sections are ordered
// deterministically so repeated loads of the same document always produce
// byte-identical evaluation output.
func parseDocument(source []byte) (*domain.Catalog, error) {
	var doc document
	if err := json.Unmarshal(source, &doc); err != nil {
		return nil, fmt.Errorf("malformed catalog document: %w", err)
	}

	if doc.Version == "" {
		return nil, fmt.Errorf("catalog document missing version")
	}
	if len(doc.Scoring.Components) == 0 {
		return nil, fmt.Errorf("catalog %s defines no scoring components", doc.Version)
	}

	cat := &domain.Catalog{Version: doc.Version}

	names := make([]string, 0, len(doc.Scoring.Components))
	for name := range doc.Scoring.Components {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		dc := doc.Scoring.Components[name]
		comp := domain.ScoringComponent{
			Name:        name,
			Weight:      dc.Weight,
			Metric:      dc.Metric,
			Calculation: dc.Calculation,
		}
		if len(dc.Tiers) == 0 && dc.Calculation == "" {
			return nil, fmt.Errorf("component %s: needs tiers or a calculation", name)
		}
		if len(dc.Tiers) > 0 && dc.Calculation != "" {
			return nil, fmt.Errorf("component %s: tiers and calculation are mutually exclusive", name)
		}
		for _, dt := range dc.Tiers {
			comp.Tiers = append(comp.Tiers, domain.Tier{
				Min:   dt.Min,
				Max:   dt.Max,
				Score: dt.Score,
				Label: dt.Label,
			})
		}
		if dc.Seasonal != nil {
			comp.Seasonal = domain.SeasonalAdjustment{
				Enabled:   dc.Seasonal.Enabled,
				Threshold: dc.Seasonal.Threshold,
				Bonus:     dc.Seasonal.Bonus,
			}
		}
		cat.Components = append(cat.Components, comp)
	}

	// Risk categories sorted by descending lower bound; ranges are
	// inclusive so ordering only matters for overlapping documents.
	labels := make([]string, 0, len(doc.RiskCategories))
	for label := range doc.RiskCategories {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		a, b := doc.RiskCategories[labels[i]], doc.RiskCategories[labels[j]]
		if a.Min != b.Min {
			return a.Min > b.Min
		}
		return labels[i] < labels[j]
	})
	for _, label := range labels {
		r := doc.RiskCategories[label]
		cat.RiskBands = append(cat.RiskBands, domain.RiskBand{Label: label, Min: r.Min, Max: r.Max})
	}

	for _, dr := range doc.Eligibility.Rules {
		op, err := domain.ParseOperator(dr.Operator)
		if err != nil {
			return nil, fmt.Errorf("eligibility rule %s: %w", dr.ID, err)
		}
		cat.Eligibility = append(cat.Eligibility, domain.EligibilityRule{
			ID:             dr.ID,
			Metric:         dr.Metric,
			Op:             op,
			Threshold:      dr.Value,
			FailureMessage: dr.FailureMessage,
			Recommendation: dr.Recommendation,
		})
	}

	for _, dr := range doc.FraudDetection.Rules {
		op, err := domain.ParseOperator(dr.Operator)
		if err != nil {
			return nil, fmt.Errorf("fraud rule %s: %w", dr.ID, err)
		}
		cat.FraudRules = append(cat.FraudRules, domain.FraudRule{
			ID:          dr.ID,
			Metric:      dr.Metric,
			Op:          op,
			Threshold:   dr.Value,
			Severity:    dr.Severity,
			Action:      dr.Action,
			Explanation: dr.Explanation,
		})
	}

	if doc.LoanParameters != nil {
		cat.Loan = convertLoanParameters(doc.LoanParameters)
	}

	return cat, nil
}

func convertLoanParameters(lp *documentLoanParameters) domain.LoanParameters {
	out := domain.LoanParameters{
		ByBand:    make(map[string]domain.LoanBandParams),
		MinAmount: lp.Amount.Limits.Min,
		MaxAmount: lp.Amount.Limits.Max,
		ConsistencyAdjustment: domain.ConsistencyAdjustment{
			Enabled:         lp.Tenure.ConsistencyAdjustment.Enabled,
			Threshold:       lp.Tenure.ConsistencyAdjustment.Threshold,
			ReductionFactor: lp.Tenure.ConsistencyAdjustment.ReductionFactor,
		},
	}

	for band, a := range lp.Amount.ByRiskCategory {
		p := out.ByBand[band]
		p.Multiplier = a.Multiplier
		out.ByBand[band] = p
	}
	for band, t := range lp.Tenure.ByRiskCategory {
		p := out.ByBand[band]
		p.MaxTenureDays = t.MaxDays
		out.ByBand[band] = p
	}
	for band, r := range lp.InterestRate.ByRiskCategory {
		p := out.ByBand[band]
		p.AnnualRate = r.AnnualRate
		out.ByBand[band] = p
	}

	return out
}
