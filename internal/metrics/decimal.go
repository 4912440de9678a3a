package metrics

import "github.com/shopspring/decimal"

// Scales used for explicit rounding through the pipeline.
const (
	moneyScale   = 2 // volumes, averages
	percentScale = 2 // rates, concentration
	ratioScale   = 4 // coefficient of variation
	sqrtScale    = 8 // intermediate square-root precision
)

var (
	decHundred = decimal.NewFromInt(100)
	decThree   = decimal.NewFromInt(3)
	decTwo     = decimal.NewFromInt(2)
)

// sqrt computes the square root of v by Newton iteration on decimals,
// refined to sqrtScale digits. Using the same fixed-point representation as
// the rest of the pipeline keeps rounding error bounded uniformly instead of
// round-tripping through a float64.
func sqrt(v decimal.Decimal) decimal.Decimal {
	if v.Sign() <= 0 {
		return decimal.Zero
	}

	epsilon := decimal.New(1, -sqrtScale)

	// Initial guess: v/2, floored at 1 to converge quickly for small values.
	guess := v.DivRound(decTwo, sqrtScale)
	if guess.LessThan(decimal.NewFromInt(1)) {
		guess = decimal.NewFromInt(1)
	}

	for i := 0; i < 50; i++ {
		next := guess.Add(v.DivRound(guess, sqrtScale)).DivRound(decTwo, sqrtScale)
		if next.Sub(guess).Abs().LessThan(epsilon) {
			return next
		}
		guess = next
	}
	return guess
}

// clampScore bounds a component or composite score to [0,100].
func clampScore(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	if v.GreaterThan(decHundred) {
		return decHundred
	}
	return v
}
