package metrics

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var asOf = time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)

func tx(ts time.Time, amount string, party string, dir domain.Direction, status domain.TransactionStatus) *domain.Transaction {
	a, _ := decimal.NewFromString(amount)
	return &domain.Transaction{
		Timestamp:      ts,
		Amount:         a,
		CounterpartyID: party,
		Direction:      dir,
		Status:         status,
	}
}

func credit(ts time.Time, amount, party string) *domain.Transaction {
	return tx(ts, amount, party, domain.DirectionCredit, domain.StatusSuccess)
}

func TestComputeEmptyInput(t *testing.T) {
	calc := NewCalculator()
	m := calc.Compute(nil, asOf)

	if !m.ConsistencyScore.Equal(decimal.NewFromInt(50)) {
		t.Errorf("expected default consistency 50, got %s", m.ConsistencyScore)
	}
	if !m.LowCustomerDiversity {
		t.Error("expected low diversity flag on empty input")
	}
	if m.TotalTransactions != 0 {
		t.Errorf("expected 0 transactions, got %d", m.TotalTransactions)
	}
	if !m.Volume3M.IsZero() || !m.AvgMonthlyVolume.IsZero() {
		t.Errorf("expected zero volumes, got 3m=%s avg=%s", m.Volume3M, m.AvgMonthlyVolume)
	}
}

func TestComputeRollingWindows(t *testing.T) {
	calc := NewCalculator()

	txs := []*domain.Transaction{
		credit(asOf.AddDate(0, -1, 0), "1000", "cp-1"),  // 3m, 6m, 12m
		credit(asOf.AddDate(0, -4, 0), "2000", "cp-2"),  // prev-3m, 6m, 12m
		credit(asOf.AddDate(0, -8, 0), "4000", "cp-3"),  // 12m only
		credit(asOf.AddDate(0, -14, 0), "8000", "cp-4"), // outside all windows
		credit(asOf.AddDate(0, 1, 0), "500", "cp-5"),    // future, excluded
		// non-credits never count toward volume
		tx(asOf.AddDate(0, -1, 0), "9999", "cp-6", domain.DirectionDebit, domain.StatusSuccess),
		tx(asOf.AddDate(0, -1, 0), "9999", "cp-7", domain.DirectionCredit, domain.StatusFailed),
	}

	m := calc.Compute(txs, asOf)

	if want := "1000"; m.Volume3M.String() != want {
		t.Errorf("Volume3M = %s, want %s", m.Volume3M, want)
	}
	if want := "2000"; m.PrevVolume3M.String() != want {
		t.Errorf("PrevVolume3M = %s, want %s", m.PrevVolume3M, want)
	}
	if want := "3000"; m.Volume6M.String() != want {
		t.Errorf("Volume6M = %s, want %s", m.Volume6M, want)
	}
	if want := "7000"; m.Volume12M.String() != want {
		t.Errorf("Volume12M = %s, want %s", m.Volume12M, want)
	}

	// Fixed divisor of three months.
	if want := "333.33"; m.AvgMonthlyVolume.String() != want {
		t.Errorf("AvgMonthlyVolume = %s, want %s", m.AvgMonthlyVolume, want)
	}
}

func TestBounceRateCoversAllTransactions(t *testing.T) {
	calc := NewCalculator()

	txs := []*domain.Transaction{
		credit(asOf.AddDate(0, -1, 0), "1000", "cp-1"),
		tx(asOf.AddDate(0, -1, -2), "200", "cp-2", domain.DirectionDebit, domain.StatusSuccess),
		tx(asOf.AddDate(0, -1, -4), "300", "cp-3", domain.DirectionCredit, domain.StatusFailed),
		tx(asOf.AddDate(0, -1, -6), "400", "cp-4", domain.DirectionDebit, domain.StatusFailed),
	}

	m := calc.Compute(txs, asOf)

	if m.FailedTransactions != 2 {
		t.Errorf("FailedTransactions = %d, want 2", m.FailedTransactions)
	}
	if want := "50"; m.BounceRate.String() != want {
		t.Errorf("BounceRate = %s, want %s", m.BounceRate, want)
	}
}

func TestGrowthRate(t *testing.T) {
	calc := NewCalculator()

	t.Run("ZeroPreviousPositiveCurrent", func(t *testing.T) {
		txs := []*domain.Transaction{
			credit(asOf.AddDate(0, -1, 0), "1000", "cp-1"),
		}
		m := calc.Compute(txs, asOf)
		if want := "100"; m.GrowthRate.String() != want {
			t.Errorf("GrowthRate = %s, want %s", m.GrowthRate, want)
		}
	})

	t.Run("BothZero", func(t *testing.T) {
		txs := []*domain.Transaction{
			credit(asOf.AddDate(0, -8, 0), "1000", "cp-1"),
		}
		m := calc.Compute(txs, asOf)
		if !m.GrowthRate.IsZero() {
			t.Errorf("GrowthRate = %s, want 0", m.GrowthRate)
		}
	})

	t.Run("Declining", func(t *testing.T) {
		txs := []*domain.Transaction{
			credit(asOf.AddDate(0, -1, 0), "500", "cp-1"),
			credit(asOf.AddDate(0, -4, 0), "1000", "cp-2"),
		}
		m := calc.Compute(txs, asOf)
		if want := "-50"; m.GrowthRate.String() != want {
			t.Errorf("GrowthRate = %s, want %s", m.GrowthRate, want)
		}
	})
}

func TestConsistencyScore(t *testing.T) {
	calc := NewCalculator()

	t.Run("IdenticalMonths", func(t *testing.T) {
		txs := []*domain.Transaction{
			credit(time.Date(2025, 4, 15, 0, 0, 0, 0, time.UTC), "1000", "cp-1"),
			credit(time.Date(2025, 5, 15, 0, 0, 0, 0, time.UTC), "1000", "cp-1"),
			credit(time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC), "1000", "cp-1"),
		}
		m := calc.Compute(txs, asOf)
		if !m.CoefficientOfVariation.IsZero() {
			t.Errorf("CV = %s, want 0", m.CoefficientOfVariation)
		}
		if want := "100"; m.ConsistencyScore.String() != want {
			t.Errorf("ConsistencyScore = %s, want %s", m.ConsistencyScore, want)
		}
	})

	t.Run("SingleMonthUsesDefault", func(t *testing.T) {
		txs := []*domain.Transaction{
			credit(time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC), "1000", "cp-1"),
		}
		m := calc.Compute(txs, asOf)
		if want := "50"; m.ConsistencyScore.String() != want {
			t.Errorf("ConsistencyScore = %s, want %s", m.ConsistencyScore, want)
		}
	})
}

func TestConcentrationAndDominance(t *testing.T) {
	calc := NewCalculator()

	txs := []*domain.Transaction{
		credit(asOf.AddDate(0, -1, 0), "9000", "cp-big"),
		credit(asOf.AddDate(0, -1, -1), "1000", "cp-small"),
	}

	m := calc.Compute(txs, asOf)

	if want := "100"; m.CustomerConcentration.String() != want {
		t.Errorf("CustomerConcentration = %s, want %s", m.CustomerConcentration, want)
	}
	if !m.SinglePayerDominance {
		t.Error("expected single-payer dominance flag")
	}
	if !m.LowCustomerDiversity {
		t.Error("expected low diversity flag with 2 counterparties")
	}
}

func TestDiversityFlagClearsAtThreshold(t *testing.T) {
	calc := NewCalculator()

	parties := []string{"cp-1", "cp-2", "cp-3", "cp-4", "cp-5", "cp-6"}
	var txs []*domain.Transaction
	for i, p := range parties {
		txs = append(txs, credit(asOf.AddDate(0, -1, -i), "1000", p))
	}

	m := calc.Compute(txs, asOf)

	if m.UniqueCounterparties != 6 {
		t.Errorf("UniqueCounterparties = %d, want 6", m.UniqueCounterparties)
	}
	if m.LowCustomerDiversity {
		t.Error("did not expect low diversity flag with 6 counterparties")
	}
}

func TestSuddenSpikeFlag(t *testing.T) {
	calc := NewCalculator()

	txs := []*domain.Transaction{
		credit(time.Date(2025, 5, 15, 0, 0, 0, 0, time.UTC), "1000", "cp-1"),
		credit(time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC), "5000", "cp-2"),
	}

	m := calc.Compute(txs, asOf)

	if !m.SuddenSpike {
		t.Error("expected sudden spike flag for 400% month-over-month increase")
	}
	if m.PeakMonth != "2025-06" {
		t.Errorf("PeakMonth = %s, want 2025-06", m.PeakMonth)
	}
	if m.TroughMonth != "2025-05" {
		t.Errorf("TroughMonth = %s, want 2025-05", m.TroughMonth)
	}
}

func TestSpikeFlagSkipsNonAdjacentMonths(t *testing.T) {
	calc := NewCalculator()

	// April and June are separated by a quiet May, so the jump is not a
	// month-over-month spike.
	txs := []*domain.Transaction{
		credit(time.Date(2025, 4, 15, 0, 0, 0, 0, time.UTC), "1000", "cp-1"),
		credit(time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC), "5000", "cp-2"),
	}

	m := calc.Compute(txs, asOf)

	if m.SuddenSpike {
		t.Error("spike flagged across a gap month")
	}
}

func TestMonthlyBreakdownOrderAndCounts(t *testing.T) {
	calc := NewCalculator()

	txs := []*domain.Transaction{
		credit(time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC), "300", "cp-2"),
		credit(time.Date(2025, 4, 5, 0, 0, 0, 0, time.UTC), "100", "cp-1"),
		credit(time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC), "200", "cp-1"),
	}

	m := calc.Compute(txs, asOf)

	if len(m.MonthlyBreakdown) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(m.MonthlyBreakdown))
	}
	if m.MonthlyBreakdown[0].Month != "2025-04" || m.MonthlyBreakdown[1].Month != "2025-06" {
		t.Errorf("buckets out of order: %s, %s", m.MonthlyBreakdown[0].Month, m.MonthlyBreakdown[1].Month)
	}
	june := m.MonthlyBreakdown[1]
	if june.Count != 2 {
		t.Errorf("june count = %d, want 2", june.Count)
	}
	if want := "500"; june.Volume.String() != want {
		t.Errorf("june volume = %s, want %s", june.Volume, want)
	}
	if june.UniqueCounterparties != 2 {
		t.Errorf("june unique counterparties = %d, want 2", june.UniqueCounterparties)
	}
}
