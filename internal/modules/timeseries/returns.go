package timeseries

import (
	"fmt"
	"math"
)

// ZeroPriceEpsilon is the magnitude under which a previous close counts as zero.
// The return for a day following such a close is defined as 0.
const ZeroPriceEpsilon = 1e-9

// PriceSeries maps a calendar day to a closing price.
type PriceSeries map[Date]float64

// ReturnSeries maps a calendar day to the simple return realised on that day.
type ReturnSeries map[Date]float64

// Dates returns the series dates in ascending order.
func (p PriceSeries) Dates() []Date {
	return sortedKeys(p)
}

// At returns the close on d, or ErrMissingData.
func (p PriceSeries) At(d Date) (float64, error) {
	v, ok := p[d]
	if !ok {
		return 0, fmt.Errorf("no price on %s: %w", d, ErrMissingData)
	}
	return v, nil
}

// Dates returns the series dates in ascending order.
func (r ReturnSeries) Dates() []Date {
	return sortedKeys(r)
}

// ComputeReturns converts closing prices into simple daily returns.
//
// Dates are sorted ascending and every consecutive pair yields
// price(day_i)/price(day_{i-1}) - 1 keyed by day_i, so the earliest date has
// no return. A previous close within ZeroPriceEpsilon of zero yields 0.
func ComputeReturns(prices PriceSeries) (ReturnSeries, error) {
	return ReturnsOver(prices, prices.Dates())
}

// ReturnsOver computes simple returns across an explicit ascending calendar.
// Every requested date must have a price; otherwise ErrMissingData is returned.
func ReturnsOver(prices PriceSeries, dates []Date) (ReturnSeries, error) {
	if len(dates) < 2 {
		return nil, fmt.Errorf("need at least 2 prices to compute returns, got %d: %w", len(dates), ErrDegenerateSeries)
	}

	ordered := make([]Date, len(dates))
	copy(ordered, dates)
	SortDates(ordered)

	returns := make(ReturnSeries, len(ordered)-1)
	prev, err := prices.At(ordered[0])
	if err != nil {
		return nil, err
	}
	for i := 1; i < len(ordered); i++ {
		if ordered[i] == ordered[i-1] {
			return nil, fmt.Errorf("%s appears twice in requested calendar: %w", ordered[i], ErrDuplicateDate)
		}
		cur, err := prices.At(ordered[i])
		if err != nil {
			return nil, err
		}
		returns[ordered[i]] = simpleReturn(prev, cur)
		prev = cur
	}

	return returns, nil
}

// simpleReturn is the single place the zero-price guard is applied.
func simpleReturn(prev, cur float64) float64 {
	if math.Abs(prev) < ZeroPriceEpsilon {
		return 0
	}
	return cur/prev - 1
}

func sortedKeys(m map[Date]float64) []Date {
	dates := make([]Date, 0, len(m))
	for d := range m {
		dates = append(dates, d)
	}
	SortDates(dates)
	return dates
}
