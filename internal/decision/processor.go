// Package decision runs the full evaluation pipeline for one applicant:
// metrics derivation, fraud screen, composite score, eligibility chain, and
// loan terms, assembled into a single auditable Decision.
package decision

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/catalog"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/engine"
	"github.com/opensource-finance/kestrel/internal/metrics"
)

// EngineVersion is stamped into every decision's metadata.
const EngineVersion = "kestrel-1.0"

// Processor assembles decisions. It is stateless apart from the metrics
// calculator's fixed thresholds, so one instance serves all goroutines.
type Processor struct {
	calculator *metrics.Calculator
}

// NewProcessor creates a decision processor with standard metric policies.
func NewProcessor() *Processor {
	return &Processor{calculator: metrics.NewCalculator()}
}

// Input carries everything one decision needs. The catalog snapshot is
// passed explicitly so the whole pipeline sees one consistent version even
// if a reload lands mid-flight.
type Input struct {
	ApplicantID  string
	TraceID      string
	Transactions []*domain.Transaction

	// AsOf anchors the rolling metric windows; callers pass wall-clock
	// time at the evaluation boundary.
	AsOf time.Time

	StartTime time.Time
}

// Process evaluates the input against the given catalog snapshot. It is a
// total function: any input yields a complete Decision.
func (p *Processor) Process(ctx context.Context, input *Input, snap *catalog.Snapshot) *domain.Decision {
	start := time.Now()

	asOf := input.AsOf
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	m := p.calculator.Compute(input.Transactions, asOf)
	metricsMs := time.Since(start).Milliseconds()

	evalStart := time.Now()

	indicators := engine.EvaluateFraud(m, snap)
	score := engine.EvaluateScore(m, snap)
	eligibility := engine.EvaluateEligibility(m, len(indicators), snap)

	var terms *domain.LoanTerms
	if eligibility.Eligible {
		terms = engine.ComputeLoanTerms(score.RiskBand, m.AvgMonthlyVolume, m.ConsistencyScore, snap)
	}

	evaluateMs := time.Since(evalStart).Milliseconds()

	totalMs := time.Since(start).Milliseconds()
	if !input.StartTime.IsZero() {
		totalMs = time.Since(input.StartTime).Milliseconds()
	}

	return &domain.Decision{
		ID:              uuid.New().String(),
		ApplicantID:     input.ApplicantID,
		GeneratedAt:     time.Now().UTC(),
		Metrics:         m,
		Score:           score,
		Eligibility:     eligibility,
		FraudIndicators: indicators,
		LoanTerms:       terms,
		CatalogVersion:  snap.Version,
		Metadata: domain.DecisionMetadata{
			TraceID:          input.TraceID,
			TransactionCount: len(input.Transactions),
			MetricsMs:        metricsMs,
			EvaluateMs:       evaluateMs,
			TotalMs:          totalMs,
			EngineVersion:    EngineVersion,
		},
	}
}
