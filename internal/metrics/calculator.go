// Package metrics derives the statistical feature snapshot the rule engine
// evaluates against. The calculator is a total function: any transaction
// list, in any order, produces a well-defined DerivedMetrics.
package metrics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Calculator computes DerivedMetrics from raw transactions. It holds only
// fixed policy thresholds, so a single instance is safe for concurrent use.
type Calculator struct {
	// DefaultConsistency is returned when fewer than two monthly buckets
	// exist. Insufficient data is a policy outcome, not an error.
	DefaultConsistency decimal.Decimal

	// SpikeThresholdPct flags any month-over-month volume increase above
	// this percentage.
	SpikeThresholdPct decimal.Decimal

	// MinCounterparties below which the low-diversity flag is set.
	MinCounterparties int

	// DominanceThresholdPct of customer concentration above which the
	// single-payer-dominance flag is set.
	DominanceThresholdPct decimal.Decimal

	// SeasonalCV above which the snapshot is marked seasonal.
	SeasonalCV decimal.Decimal

	// TopCounterparties counted toward the concentration numerator.
	TopCounterparties int
}

// NewCalculator returns a calculator with the standard policy thresholds.
func NewCalculator() *Calculator {
	return &Calculator{
		DefaultConsistency:    decimal.NewFromInt(50),
		SpikeThresholdPct:     decimal.NewFromInt(200),
		MinCounterparties:     5,
		DominanceThresholdPct: decimal.NewFromInt(80),
		SeasonalCV:            decimal.NewFromFloat(0.50),
		TopCounterparties:     10,
	}
}

// Compute derives the full metrics snapshot. Rolling windows are anchored at
// asOf, not at the latest transaction timestamp; callers pass wall-clock time
// at the evaluation boundary so back-dated batches are visible in the anchor.
func (c *Calculator) Compute(txs []*domain.Transaction, asOf time.Time) *domain.DerivedMetrics {
	m := &domain.DerivedMetrics{
		AsOf:             asOf,
		MonthlyBreakdown: []domain.MonthlyBucket{},
	}

	if len(txs) == 0 {
		m.ConsistencyScore = c.DefaultConsistency
		m.LowCustomerDiversity = true
		return m
	}

	var (
		credits      []*domain.Transaction
		creditVolume = decimal.Zero
	)

	for _, tx := range txs {
		m.TotalTransactions++
		if tx.Status == domain.StatusFailed {
			m.FailedTransactions++
		}
		if tx.IsSuccessfulCredit() {
			credits = append(credits, tx)
			creditVolume = creditVolume.Add(tx.Amount)
		}
	}
	m.SuccessfulCredits = len(credits)

	// Bounce rate covers all transactions regardless of direction.
	m.BounceRate = decimal.NewFromInt(int64(m.FailedTransactions)).
		Mul(decHundred).
		DivRound(decimal.NewFromInt(int64(m.TotalTransactions)), percentScale)

	c.computeWindows(m, credits, asOf)
	c.computeBreakdown(m, credits)
	c.computeConsistency(m)
	c.computeGrowth(m)
	c.computeConcentration(m, credits, asOf)

	if len(credits) > 0 {
		m.AvgTransactionValue = creditVolume.DivRound(decimal.NewFromInt(int64(len(credits))), moneyScale)
	}

	seen := make(map[string]struct{})
	for _, tx := range credits {
		if tx.CounterpartyID != "" {
			seen[tx.CounterpartyID] = struct{}{}
		}
	}
	m.UniqueCounterparties = len(seen)

	c.flagAnomalies(m)

	return m
}

// computeWindows fills the rolling-window volumes from successful credits.
// The trailing window is (asOf-N months, asOf]; the preceding window is
// (asOf-6 months, asOf-3 months].
func (c *Calculator) computeWindows(m *domain.DerivedMetrics, credits []*domain.Transaction, asOf time.Time) {
	m.Volume3M = decimal.Zero
	m.Volume6M = decimal.Zero
	m.Volume12M = decimal.Zero
	m.PrevVolume3M = decimal.Zero

	cut3 := asOf.AddDate(0, -3, 0)
	cut6 := asOf.AddDate(0, -6, 0)
	cut12 := asOf.AddDate(0, -12, 0)

	for _, tx := range credits {
		ts := tx.Timestamp
		if ts.After(asOf) {
			continue
		}
		if ts.After(cut12) {
			m.Volume12M = m.Volume12M.Add(tx.Amount)
		}
		if ts.After(cut6) {
			m.Volume6M = m.Volume6M.Add(tx.Amount)
		}
		if ts.After(cut3) {
			m.Volume3M = m.Volume3M.Add(tx.Amount)
		} else if ts.After(cut6) {
			m.PrevVolume3M = m.PrevVolume3M.Add(tx.Amount)
		}
	}

	// Fixed divisor of 3, not actual elapsed months.
	m.AvgMonthlyVolume = m.Volume3M.DivRound(decThree, moneyScale)
}

// computeBreakdown groups successful credits by calendar month, sorted
// chronologically.
func (c *Calculator) computeBreakdown(m *domain.DerivedMetrics, credits []*domain.Transaction) {
	type monthAgg struct {
		volume  decimal.Decimal
		count   int
		parties map[string]struct{}
	}

	byMonth := make(map[string]*monthAgg)
	for _, tx := range credits {
		key := tx.Timestamp.Format("2006-01")
		agg, ok := byMonth[key]
		if !ok {
			agg = &monthAgg{volume: decimal.Zero, parties: make(map[string]struct{})}
			byMonth[key] = agg
		}
		agg.volume = agg.volume.Add(tx.Amount)
		agg.count++
		if tx.CounterpartyID != "" {
			agg.parties[tx.CounterpartyID] = struct{}{}
		}
	}

	months := make([]string, 0, len(byMonth))
	for k := range byMonth {
		months = append(months, k)
	}
	sort.Strings(months)

	for _, month := range months {
		agg := byMonth[month]
		m.MonthlyBreakdown = append(m.MonthlyBreakdown, domain.MonthlyBucket{
			Month:                month,
			Volume:               agg.volume,
			Count:                agg.count,
			UniqueCounterparties: len(agg.parties),
		})
	}
}

// computeConsistency derives the coefficient of variation from the monthly
// volume series and maps it to a 0-100 consistency score. Fewer than two
// buckets yields the fixed default; a zero mean is likewise treated as
// insufficient data.
func (c *Calculator) computeConsistency(m *domain.DerivedMetrics) {
	if len(m.MonthlyBreakdown) < 2 {
		m.ConsistencyScore = c.DefaultConsistency
		m.CoefficientOfVariation = decimal.Zero
		return
	}

	n := decimal.NewFromInt(int64(len(m.MonthlyBreakdown)))

	sum := decimal.Zero
	for _, b := range m.MonthlyBreakdown {
		sum = sum.Add(b.Volume)
	}
	mean := sum.DivRound(n, sqrtScale)

	if mean.IsZero() {
		m.ConsistencyScore = c.DefaultConsistency
		m.CoefficientOfVariation = decimal.Zero
		return
	}

	// Population variance.
	variance := decimal.Zero
	for _, b := range m.MonthlyBreakdown {
		d := b.Volume.Sub(mean)
		variance = variance.Add(d.Mul(d))
	}
	variance = variance.DivRound(n, sqrtScale)

	stddev := sqrt(variance)
	m.CoefficientOfVariation = stddev.DivRound(mean, ratioScale)

	score := decHundred.Sub(m.CoefficientOfVariation.Mul(decHundred))
	m.ConsistencyScore = clampScore(score).Round(percentScale)
}

// computeGrowth compares the trailing 3-month volume against the preceding
// window. A zero previous period with positive current volume is defined as
// 100% growth; both zero is 0%.
func (c *Calculator) computeGrowth(m *domain.DerivedMetrics) {
	switch {
	case m.PrevVolume3M.IsZero() && m.Volume3M.IsZero():
		m.GrowthRate = decimal.Zero
	case m.PrevVolume3M.IsZero():
		m.GrowthRate = decHundred
	default:
		m.GrowthRate = m.Volume3M.Sub(m.PrevVolume3M).
			Mul(decHundred).
			DivRound(m.PrevVolume3M, percentScale)
	}
}

// computeConcentration sums the 3-month volume of the largest counterparties
// and expresses it as a share of the trailing 3-month volume.
func (c *Calculator) computeConcentration(m *domain.DerivedMetrics, credits []*domain.Transaction, asOf time.Time) {
	m.TopCounterpartyVolume = decimal.Zero
	m.CustomerConcentration = decimal.Zero

	if m.Volume3M.IsZero() {
		return
	}

	cut3 := asOf.AddDate(0, -3, 0)
	byParty := make(map[string]decimal.Decimal)
	for _, tx := range credits {
		if tx.CounterpartyID == "" || tx.Timestamp.After(asOf) || !tx.Timestamp.After(cut3) {
			continue
		}
		byParty[tx.CounterpartyID] = byParty[tx.CounterpartyID].Add(tx.Amount)
	}

	volumes := make([]decimal.Decimal, 0, len(byParty))
	for _, v := range byParty {
		volumes = append(volumes, v)
	}
	sort.Slice(volumes, func(i, j int) bool { return volumes[i].GreaterThan(volumes[j]) })

	top := c.TopCounterparties
	if top > len(volumes) {
		top = len(volumes)
	}
	for i := 0; i < top; i++ {
		m.TopCounterpartyVolume = m.TopCounterpartyVolume.Add(volumes[i])
	}

	m.CustomerConcentration = m.TopCounterpartyVolume.
		Mul(decHundred).
		DivRound(m.Volume3M, percentScale)
}

// flagAnomalies sets the boolean anomaly flags and the seasonal markers.
func (c *Calculator) flagAnomalies(m *domain.DerivedMetrics) {
	m.LowCustomerDiversity = m.UniqueCounterparties < c.MinCounterparties
	m.SinglePayerDominance = m.CustomerConcentration.GreaterThan(c.DominanceThresholdPct)
	m.Seasonal = m.CoefficientOfVariation.GreaterThan(c.SeasonalCV)

	// Buckets exist only for months with activity, so consecutive entries
	// can straddle a quiet month. The spike comparison is strictly
	// month-over-month: it skips any pair that is not adjacent on the
	// calendar.
	for i := 1; i < len(m.MonthlyBreakdown); i++ {
		prev := m.MonthlyBreakdown[i-1]
		cur := m.MonthlyBreakdown[i]
		if cur.Month != nextMonth(prev.Month) || prev.Volume.IsZero() {
			continue
		}
		increase := cur.Volume.Sub(prev.Volume).Mul(decHundred).DivRound(prev.Volume, percentScale)
		if increase.GreaterThan(c.SpikeThresholdPct) {
			m.SuddenSpike = true
			break
		}
	}

	if len(m.MonthlyBreakdown) == 0 {
		return
	}
	peak := m.MonthlyBreakdown[0]
	trough := m.MonthlyBreakdown[0]
	for _, b := range m.MonthlyBreakdown[1:] {
		if b.Volume.GreaterThan(peak.Volume) {
			peak = b
		}
		if b.Volume.LessThan(trough.Volume) {
			trough = b
		}
	}
	m.PeakMonth = peak.Month
	m.TroughMonth = trough.Month
}

// nextMonth returns the calendar month following a "2006-01" key.
func nextMonth(month string) string {
	t, err := time.Parse("2006-01", month)
	if err != nil {
		return ""
	}
	return t.AddDate(0, 1, 0).Format("2006-01")
}
