// Package timeseries holds the date-indexed return series and the statistics the
// optimizer is fed: mean, sample standard deviation and the correlation-normalised
// covariance between two partially overlapping series.
package timeseries

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// constantPrecision is the rounding scale at which a series counts as constant.
const constantPrecision = 1e9

// TimeSeries is an immutable, named, date-indexed series of returns.
type TimeSeries struct {
	name     string
	dates    []Date // ascending
	values   []float64
	index    map[Date]int
	average  float64
	centered []float64
	stdDev   float64
	stdErr   error
}

// NewTimeSeries copies data into a new series. data must not be empty.
func NewTimeSeries(name string, data map[Date]float64) (*TimeSeries, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("series %q has no data: %w", name, ErrDegenerateSeries)
	}

	dates := sortedKeys(data)
	values := make([]float64, len(dates))
	index := make(map[Date]int, len(dates))
	for i, d := range dates {
		values[i] = data[d]
		index[d] = i
	}

	ts := &TimeSeries{
		name:   name,
		dates:  dates,
		values: values,
		index:  index,
	}
	ts.average = stat.Mean(values, nil)

	ts.centered = make([]float64, len(values))
	for i, v := range values {
		ts.centered[i] = v - ts.average
	}
	ts.stdDev, ts.stdErr = ts.computeStdDev()

	return ts, nil
}

// FromReturns is a convenience wrapper over NewTimeSeries.
func FromReturns(name string, returns ReturnSeries) (*TimeSeries, error) {
	return NewTimeSeries(name, returns)
}

func (ts *TimeSeries) computeStdDev() (float64, error) {
	n := len(ts.values)
	if n < 2 {
		return math.NaN(), fmt.Errorf("series %q has %d observation(s), need at least 2: %w", ts.name, n, ErrDegenerateSeries)
	}
	if ts.isConstant() {
		return 0, fmt.Errorf("series %q is constant: %w", ts.name, ErrDegenerateSeries)
	}
	return math.Sqrt(floats.Dot(ts.centered, ts.centered) / float64(n-1)), nil
}

func (ts *TimeSeries) isConstant() bool {
	first := math.Round(ts.values[0] * constantPrecision)
	for _, v := range ts.values[1:] {
		if math.Round(v*constantPrecision) != first {
			return false
		}
	}
	return true
}

// Name returns the series name.
func (ts *TimeSeries) Name() string { return ts.name }

// Len returns the number of observations.
func (ts *TimeSeries) Len() int { return len(ts.values) }

// Dates returns a copy of the observation dates in ascending order.
func (ts *TimeSeries) Dates() []Date {
	out := make([]Date, len(ts.dates))
	copy(out, ts.dates)
	return out
}

// Values returns a copy of the observations ordered by date.
func (ts *TimeSeries) Values() []float64 {
	out := make([]float64, len(ts.values))
	copy(out, ts.values)
	return out
}

// Value returns the observation on d.
func (ts *TimeSeries) Value(d Date) (float64, bool) {
	i, ok := ts.index[d]
	if !ok {
		return 0, false
	}
	return ts.values[i], true
}

// Average returns the arithmetic mean of the observations.
func (ts *TimeSeries) Average() float64 { return ts.average }

// Centered returns value(d) - Average().
func (ts *TimeSeries) Centered(d Date) (float64, error) {
	i, ok := ts.index[d]
	if !ok {
		return 0, fmt.Errorf("series %q has no value on %s: %w", ts.name, d, ErrMissingData)
	}
	return ts.centered[i], nil
}

// StdDev returns the sample standard deviation (divisor n-1). It fails with
// ErrDegenerateSeries for fewer than two observations or a constant series.
func (ts *TimeSeries) StdDev() (float64, error) {
	return ts.stdDev, ts.stdErr
}

// Covariance returns the correlation-normalised covariance with other:
//
//	sum over shared dates of centered(d)*other.centered(d) / (|K|-1) / (stdDev*other.stdDev)
//
// Each side is centered on its own full-series average. Fewer than two shared
// dates fail with ErrInsufficientOverlap.
func (ts *TimeSeries) Covariance(other *TimeSeries) (float64, error) {
	var sum float64
	shared := 0
	for i, d := range ts.dates {
		j, ok := other.index[d]
		if !ok {
			continue
		}
		sum += ts.centered[i] * other.centered[j]
		shared++
	}
	if shared < 2 {
		return 0, fmt.Errorf("%q and %q share %d date(s): %w", ts.name, other.name, shared, ErrInsufficientOverlap)
	}

	sd, err := ts.StdDev()
	if err != nil {
		return 0, err
	}
	otherSD, err := other.StdDev()
	if err != nil {
		return 0, err
	}

	return sum / float64(shared-1) / (sd * otherSD), nil
}

// Correlation is an alias for Covariance; the normalisation makes the value a
// Pearson-style correlation coefficient.
func (ts *TimeSeries) Correlation(other *TimeSeries) (float64, error) {
	return ts.Covariance(other)
}

