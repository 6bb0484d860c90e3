package timeseries

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seriesFrom(t *testing.T, name, start string, values ...float64) *TimeSeries {
	t.Helper()
	d := MustParseDate(start)
	data := make(map[Date]float64, len(values))
	for i, v := range values {
		data[d.AddDays(i)] = v
	}
	ts, err := NewTimeSeries(name, data)
	require.NoError(t, err)
	return ts
}

func randomWalk(t *testing.T, name string, n int, seed int64) *TimeSeries {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	values := make([]float64, n)
	for i := range values {
		values[i] = rng.NormFloat64() * 0.02
	}
	return seriesFrom(t, name, "2024-01-01", values...)
}

func TestNewTimeSeries_Empty(t *testing.T) {
	_, err := NewTimeSeries("empty", nil)
	assert.ErrorIs(t, err, ErrDegenerateSeries)
}

func TestTimeSeries_AverageAndCentered(t *testing.T) {
	ts := seriesFrom(t, "A", "2024-01-01", 1, 2, 3, 6)

	assert.InDelta(t, 3.0, ts.Average(), 1e-12)

	c, err := ts.Centered(MustParseDate("2024-01-04"))
	require.NoError(t, err)
	assert.InDelta(t, 3.0, c, 1e-12)

	_, err = ts.Centered(MustParseDate("2025-01-01"))
	assert.ErrorIs(t, err, ErrMissingData)
}

func TestTimeSeries_StdDevIsSampleStdDev(t *testing.T) {
	ts := seriesFrom(t, "A", "2024-01-01", 2, 4, 4, 4, 5, 5, 7, 9)

	sd, err := ts.StdDev()
	require.NoError(t, err)
	// sum of squared deviations = 32, n-1 = 7
	assert.InDelta(t, math.Sqrt(32.0/7.0), sd, 1e-12)
}

func TestTimeSeries_StdDevSingleObservation(t *testing.T) {
	ts := seriesFrom(t, "single", "2024-01-01", 0.3)

	_, err := ts.StdDev()
	assert.ErrorIs(t, err, ErrDegenerateSeries)
}

func TestTimeSeries_ConstantPriceIsDegenerate(t *testing.T) {
	prices := dailyPrices("2024-01-01", 10, 10, 10, 10, 10)
	returns, err := ComputeReturns(prices)
	require.NoError(t, err)

	ts, err := FromReturns("flat", returns)
	require.NoError(t, err)

	_, err = ts.StdDev()
	assert.ErrorIs(t, err, ErrDegenerateSeries)

	other := randomWalk(t, "walk", 10, 1)
	_, err = other.Covariance(ts)
	assert.ErrorIs(t, err, ErrDegenerateSeries)
}

func TestTimeSeries_NearConstantBelowPrecisionIsDegenerate(t *testing.T) {
	ts := seriesFrom(t, "almost", "2024-01-01", 0.01, 0.01+1e-12, 0.01-1e-12)

	_, err := ts.StdDev()
	assert.ErrorIs(t, err, ErrDegenerateSeries)
}

func TestTimeSeries_SelfCovarianceIsOne(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		ts := randomWalk(t, "walk", 30, seed)

		cov, err := ts.Covariance(ts)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, cov, 1e-9)
	}
}

func TestTimeSeries_CovarianceIsSymmetric(t *testing.T) {
	a := randomWalk(t, "A", 40, 7)
	b := seriesFrom(t, "B", "2024-01-10", randomWalk(t, "tmp", 50, 8).Values()...)

	ab, err := a.Covariance(b)
	require.NoError(t, err)
	ba, err := b.Covariance(a)
	require.NoError(t, err)

	assert.InDelta(t, ab, ba, 1e-12)
}

func TestTimeSeries_CovarianceUsesIntersectionAndFullAverages(t *testing.T) {
	a := seriesFrom(t, "A", "2024-01-01", 1, 2, 3, 4)
	b := seriesFrom(t, "B", "2024-01-02", 5, 3, 1)

	// shared dates: Jan 2..4; centered on full-series averages (2.5 and 3)
	sdA, err := a.StdDev()
	require.NoError(t, err)
	sdB, err := b.StdDev()
	require.NoError(t, err)
	sum := (2-2.5)*(5-3) + (3-2.5)*(3-3) + (4-2.5)*(1-3)
	expected := sum / 2 / (sdA * sdB)

	cov, err := a.Covariance(b)
	require.NoError(t, err)
	assert.InDelta(t, expected, cov, 1e-12)
}

func TestTimeSeries_SingleOverlapIsInsufficient(t *testing.T) {
	a := seriesFrom(t, "A", "2024-01-01", 0.01, -0.02, 0.03)
	b := seriesFrom(t, "B", "2024-01-03", 0.02, 0.01, -0.01)

	_, err := a.Covariance(b)
	assert.ErrorIs(t, err, ErrInsufficientOverlap)
}

func TestTimeSeries_DisjointIsInsufficient(t *testing.T) {
	a := seriesFrom(t, "A", "2024-01-01", 0.01, -0.02)
	b := seriesFrom(t, "B", "2024-02-01", 0.02, 0.01)

	_, err := a.Correlation(b)
	assert.ErrorIs(t, err, ErrInsufficientOverlap)
}

func TestTimeSeries_IsImmutable(t *testing.T) {
	data := map[Date]float64{MustParseDate("2024-01-01"): 1, MustParseDate("2024-01-02"): 2}
	ts, err := NewTimeSeries("A", data)
	require.NoError(t, err)

	data[MustParseDate("2024-01-01")] = 100
	values := ts.Values()
	values[0] = -1

	v, ok := ts.Value(MustParseDate("2024-01-01"))
	require.True(t, ok)
	assert.Equal(t, 1.0, v)
	assert.InDelta(t, 1.5, ts.Average(), 1e-12)
}
