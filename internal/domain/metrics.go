package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MonthlyBucket aggregates successful credit activity for one calendar month.
type MonthlyBucket struct {
	// Month is the calendar month in "2006-01" form.
	Month string `json:"month"`

	Volume               decimal.Decimal `json:"volume"`
	Count                int             `json:"count"`
	UniqueCounterparties int             `json:"uniqueCounterparties"`
}

// DerivedMetrics is the statistical snapshot computed from an applicant's
// raw transactions. It is produced once per evaluation and never mutated;
// every evaluator reads from the same snapshot.
type DerivedMetrics struct {
	// Rolling volumes of successful credits, anchored at AsOf.
	Volume3M     decimal.Decimal `json:"volume3m"`
	Volume6M     decimal.Decimal `json:"volume6m"`
	Volume12M    decimal.Decimal `json:"volume12m"`
	PrevVolume3M decimal.Decimal `json:"prevVolume3m"` // the 3 months preceding the trailing 3

	AvgMonthlyVolume    decimal.Decimal `json:"avgMonthlyVolume"`
	AvgTransactionValue decimal.Decimal `json:"avgTransactionValue"`

	TotalTransactions  int `json:"totalTransactions"`
	SuccessfulCredits  int `json:"successfulCredits"`
	FailedTransactions int `json:"failedTransactions"`

	UniqueCounterparties int `json:"uniqueCounterparties"`

	// TopCounterpartyVolume is the summed 3-month volume of the 10 largest
	// counterparties; CustomerConcentration is its share of Volume3M in percent.
	TopCounterpartyVolume decimal.Decimal `json:"topCounterpartyVolume"`
	CustomerConcentration decimal.Decimal `json:"customerConcentration"`

	MonthlyBreakdown []MonthlyBucket `json:"monthlyBreakdown"`

	ConsistencyScore       decimal.Decimal `json:"consistencyScore"` // 0-100
	GrowthRate             decimal.Decimal `json:"growthRate"`       // percent, signed
	BounceRate             decimal.Decimal `json:"bounceRate"`       // percent
	CoefficientOfVariation decimal.Decimal `json:"coefficientOfVariation"`

	Seasonal    bool   `json:"seasonal"`
	PeakMonth   string `json:"peakMonth,omitempty"`
	TroughMonth string `json:"troughMonth,omitempty"`

	// Anomaly flags.
	SuddenSpike          bool `json:"suddenSpike"`
	LowCustomerDiversity bool `json:"lowCustomerDiversity"`
	SinglePayerDominance bool `json:"singlePayerDominance"`

	// AsOf is the wall-clock anchor the rolling windows were computed against.
	AsOf time.Time `json:"asOf"`
}
