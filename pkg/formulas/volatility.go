// Package formulas holds indicator helpers used for report columns.
package formulas

import (
	"math"

	"github.com/markcheno/go-talib"
)

// DaysPerYear is the annualisation factor for crypto markets, which trade
// every calendar day.
const DaysPerYear = 365

// TrailingVolatility returns the population standard deviation of the last
// window daily returns, annualised with DaysPerYear. returns must be ordered
// by date.
// Returns nil if there are fewer than window returns.
func TrailingVolatility(returns []float64, window int) *float64 {
	if window < 2 || len(returns) < window {
		return nil
	}

	// talib.StdDev: inReal, inTimePeriod, inNbDev
	sd := talib.StdDev(returns, window, 1)
	last := sd[len(sd)-1]
	if math.IsNaN(last) {
		return nil
	}

	annual := last * math.Sqrt(DaysPerYear)
	return &annual
}
