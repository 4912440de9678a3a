package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Operator is a comparison operator parsed from a catalog rule.
// Parsing happens once at catalog load time; an invalid operator is a
// load-time error, never a silent evaluate-time default.
type Operator string

const (
	OpGTE Operator = ">="
	OpGT  Operator = ">"
	OpLTE Operator = "<="
	OpLT  Operator = "<"
	OpEQ  Operator = "=="
	OpNE  Operator = "!="
)

// ParseOperator validates and normalizes a catalog operator string.
func ParseOperator(s string) (Operator, error) {
	switch s {
	case ">=":
		return OpGTE, nil
	case ">":
		return OpGT, nil
	case "<=":
		return OpLTE, nil
	case "<":
		return OpLT, nil
	case "==", "=":
		return OpEQ, nil
	case "!=":
		return OpNE, nil
	default:
		return "", fmt.Errorf("invalid operator %q", s)
	}
}

// Compare applies the operator with actual on the left and threshold on the right.
func (op Operator) Compare(actual, threshold decimal.Decimal) bool {
	switch op {
	case OpGTE:
		return actual.GreaterThanOrEqual(threshold)
	case OpGT:
		return actual.GreaterThan(threshold)
	case OpLTE:
		return actual.LessThanOrEqual(threshold)
	case OpLT:
		return actual.LessThan(threshold)
	case OpEQ:
		return actual.Equal(threshold)
	case OpNE:
		return !actual.Equal(threshold)
	default:
		return false
	}
}

// Tier is one [Min,Max) score band within a scoring component.
// A nil Max means the band is open-ended.
type Tier struct {
	Min   decimal.Decimal  `json:"min"`
	Max   *decimal.Decimal `json:"max,omitempty"`
	Score decimal.Decimal  `json:"score"`
	Label string           `json:"label"`
}

// Contains reports whether value falls in the half-open [Min,Max) interval.
func (t *Tier) Contains(value decimal.Decimal) bool {
	if value.LessThan(t.Min) {
		return false
	}
	return t.Max == nil || value.LessThan(*t.Max)
}

// SeasonalAdjustment optionally grants a bonus to a formula component when
// the metrics snapshot shows seasonal volatility.
type SeasonalAdjustment struct {
	Enabled   bool            `json:"enabled"`
	Threshold decimal.Decimal `json:"threshold"` // coefficient-of-variation cutoff
	Bonus     decimal.Decimal `json:"bonus"`
}

// ScoringComponent is one weighted component of the composite score.
// A component is either tier-based (Tiers non-empty) or formula-based
// (Calculation holds a CEL expression over metric variables).
type ScoringComponent struct {
	Name        string             `json:"name"`
	Weight      decimal.Decimal    `json:"weight"`
	Metric      string             `json:"metric"`
	Tiers       []Tier             `json:"tiers,omitempty"`
	Calculation string             `json:"calculation,omitempty"`
	Seasonal    SeasonalAdjustment `json:"seasonalAdjustment"`
}

// RiskBand maps an inclusive composite-score range to a risk label.
type RiskBand struct {
	Label string `json:"label"`
	Min   int    `json:"min"`
	Max   int    `json:"max"`
}

// EligibilityRule is a single threshold condition in the catalog's ordered
// AND-chain. All rules must pass for an applicant to be eligible.
type EligibilityRule struct {
	ID             string          `json:"id"`
	Metric         string          `json:"metric"`
	Op             Operator        `json:"operator"`
	Threshold      decimal.Decimal `json:"value"`
	FailureMessage string          `json:"failureMessage"`
	Recommendation string          `json:"recommendation"`
}

// Fraud rule severities.
const (
	SeverityLow      = "LOW"
	SeverityMedium   = "MEDIUM"
	SeverityHigh     = "HIGH"
	SeverityCritical = "CRITICAL"
)

// FraudRule is a catalog-defined pattern rule. A triggered rule emits a
// FraudIndicator and overrides eligibility.
type FraudRule struct {
	ID          string          `json:"id"`
	Metric      string          `json:"metric"`
	Op          Operator        `json:"operator"`
	Threshold   decimal.Decimal `json:"value"`
	Severity    string          `json:"severity"`
	Action      string          `json:"action"`
	Explanation string          `json:"explanation"`
}

// LoanBandParams holds the per-risk-band loan parameters.
type LoanBandParams struct {
	Multiplier    decimal.Decimal `json:"multiplier"`
	MaxTenureDays int             `json:"maxTenureDays"`
	AnnualRate    decimal.Decimal `json:"annualRate"` // percent
}

// ConsistencyAdjustment optionally shortens tenure for low-consistency applicants.
type ConsistencyAdjustment struct {
	Enabled         bool            `json:"enabled"`
	Threshold       decimal.Decimal `json:"threshold"`
	ReductionFactor decimal.Decimal `json:"reductionFactor"`
}

// LoanParameters is the catalog's loan-terms lookup table.
type LoanParameters struct {
	ByBand                map[string]LoanBandParams `json:"byRiskBand"`
	MinAmount             decimal.Decimal           `json:"minAmount"`
	MaxAmount             decimal.Decimal           `json:"maxAmount"`
	ConsistencyAdjustment ConsistencyAdjustment     `json:"consistencyAdjustment"`
}

// Catalog is the immutable in-memory rule model parsed from a catalog
// document. It is loaded once and replaced wholesale on reload; evaluators
// only ever see a complete snapshot.
type Catalog struct {
	Version string `json:"version"`

	// Components in deterministic (name-sorted) order.
	Components []ScoringComponent `json:"components"`

	// RiskBands ordered as the document listed them; the first band whose
	// range contains the composite score wins.
	RiskBands []RiskBand `json:"riskBands"`

	Eligibility []EligibilityRule `json:"eligibility"`
	FraudRules  []FraudRule       `json:"fraudRules"`
	Loan        LoanParameters    `json:"loanParameters"`

	// Warnings collected during validation (non-fatal).
	Warnings []string `json:"warnings,omitempty"`
}

// Band returns the first risk band containing score, or the built-in
// LOW>=80 / MEDIUM>=60 / HIGH fallback when the catalog defines no bands.
func (c *Catalog) Band(score int) string {
	for _, b := range c.RiskBands {
		if score >= b.Min && score <= b.Max {
			return b.Label
		}
	}
	switch {
	case score >= 80:
		return RiskBandLow
	case score >= 60:
		return RiskBandMedium
	default:
		return RiskBandHigh
	}
}

// Built-in risk band labels used by the fallback band table and the
// default loan parameter tables.
const (
	RiskBandLow    = "LOW"
	RiskBandMedium = "MEDIUM"
	RiskBandHigh   = "HIGH"
)
