package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ComponentScore is the per-component line of a score breakdown.
type ComponentScore struct {
	Component string          `json:"component"`
	Metric    string          `json:"metric"`
	Score     decimal.Decimal `json:"score"`
	Weight    decimal.Decimal `json:"weight"`
	Weighted  decimal.Decimal `json:"weighted"`
	Label     string          `json:"label,omitempty"`
	Warning   bool            `json:"warning,omitempty"`
	Strength  bool            `json:"strength,omitempty"`
}

// ScoreResult is the outcome of composite-score evaluation.
type ScoreResult struct {
	Score          int              `json:"score"` // 0-100, clamped
	RiskBand       string           `json:"riskBand"`
	Breakdown      []ComponentScore `json:"breakdown"`
	Warnings       []string         `json:"warnings,omitempty"`
	Strengths      []string         `json:"strengths,omitempty"`
	CatalogVersion string           `json:"catalogVersion"`
}

// RuleTrace records one eligibility rule's outcome. Every rule is traced
// regardless of earlier failures.
type RuleTrace struct {
	RuleID    string          `json:"ruleId"`
	Metric    string          `json:"metric"`
	Operator  Operator        `json:"operator"`
	Threshold decimal.Decimal `json:"threshold"`
	Actual    decimal.Decimal `json:"actual"`
	Passed    bool            `json:"passed"`
}

// EligibilityResult is the verdict of the eligibility AND-chain.
type EligibilityResult struct {
	Eligible       bool        `json:"eligible"`
	FailureReason  string      `json:"failureReason,omitempty"`
	Recommendation string      `json:"recommendation,omitempty"`
	Trace          []RuleTrace `json:"trace"`
	RulesChecked   int         `json:"rulesChecked"`
	RulesPassed    int         `json:"rulesPassed"`
	CatalogVersion string      `json:"catalogVersion"`
}

// FraudIndicator is one triggered fraud rule.
type FraudIndicator struct {
	RuleID      string          `json:"ruleId"`
	Severity    string          `json:"severity"`
	Action      string          `json:"action"`
	Explanation string          `json:"explanation"`
	Actual      decimal.Decimal `json:"actual"`
	Threshold   decimal.Decimal `json:"threshold"`
}

// LoanTerms holds the derived loan offer.
type LoanTerms struct {
	EligibleAmount     decimal.Decimal `json:"eligibleAmount"`
	MaxTenureDays      int             `json:"maxTenureDays"`
	AnnualInterestRate decimal.Decimal `json:"annualInterestRate"`
	MultiplierApplied  decimal.Decimal `json:"multiplierApplied"`
	RiskBand           string          `json:"riskBand"`
	CatalogVersion     string          `json:"catalogVersion"`
}

// DecisionMetadata carries processing information for audit and tuning.
type DecisionMetadata struct {
	TraceID          string `json:"traceId"`
	TransactionCount int    `json:"transactionCount"`
	MetricsMs        int64  `json:"metricsMs"`
	EvaluateMs       int64  `json:"evaluateMs"`
	TotalMs          int64  `json:"totalMs"`
	EngineVersion    string `json:"engineVersion"`
}

// Decision is the complete creditworthiness decision for one applicant,
// assembled from the pure evaluator outputs and persisted for audit.
type Decision struct {
	ID          string    `json:"id"`
	ApplicantID string    `json:"applicantId"`
	GeneratedAt time.Time `json:"generatedAt"`

	Metrics         *DerivedMetrics    `json:"metrics"`
	Score           *ScoreResult       `json:"score"`
	Eligibility     *EligibilityResult `json:"eligibility"`
	FraudIndicators []FraudIndicator   `json:"fraudIndicators,omitempty"`
	LoanTerms       *LoanTerms         `json:"loanTerms,omitempty"`

	CatalogVersion string           `json:"catalogVersion"`
	Metadata       DecisionMetadata `json:"metadata"`
}

// HasFraudIndicators reports whether the fraud screen triggered.
func (d *Decision) HasFraudIndicators() bool {
	return len(d.FraudIndicators) > 0
}
