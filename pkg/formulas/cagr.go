package formulas

import "math"

// CalculateCAGR calculates the compound annual growth rate of daily closes.
//
// Formula: CAGR = (Ending Value / Beginning Value)^(1/years) - 1
//
// Returns nil if there are fewer than two closes or either end is not positive.
// Periods shorter than a quarter return the simple return.
func CalculateCAGR(closes []float64) *float64 {
	if len(closes) < 2 {
		return nil
	}

	startPrice := closes[0]
	endPrice := closes[len(closes)-1]
	if startPrice <= 0 || endPrice <= 0 {
		return nil
	}

	years := float64(len(closes)-1) / DaysPerYear
	if years < 0.25 {
		result := endPrice/startPrice - 1
		return &result
	}

	cagr := math.Pow(endPrice/startPrice, 1/years) - 1
	return &cagr
}
