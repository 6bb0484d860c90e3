package optimization

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func symmetric(t *testing.T, rows ...[]float64) *mat.SymDense {
	t.Helper()
	m, err := NewSymmetricMatrix(rows)
	require.NoError(t, err)
	return m
}

func identity(n int) *mat.SymDense {
	m := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		m.SetSym(i, i, 1)
	}
	return m
}

func assertBudget(t *testing.T, weights []float64) {
	t.Helper()
	var sum float64
	for _, w := range weights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-6, "weights should sum to 1")
}

func newTestOptimizer(c Conditioning) *MVOptimizer {
	return NewMVOptimizer(c, zerolog.Nop())
}

func TestMVOptimizer_ShortingClosedForm(t *testing.T) {
	opt := newTestOptimizer(ConditioningFail)

	// 2w1 + ν = 0.1, 2w2 + ν = 0, w1 + w2 = 1
	alloc, err := opt.Optimize(Problem{Cov: identity(2), Reward: []float64{0.1, 0}, RiskAversion: 1, AllowShort: true})
	require.NoError(t, err)
	assert.InDelta(t, 0.525, alloc.Weights[0], 1e-9)
	assert.InDelta(t, 0.475, alloc.Weights[1], 1e-9)
	assertBudget(t, alloc.Weights)
	assert.InDelta(t, 0.0525-(0.525*0.525+0.475*0.475), alloc.Utility, 1e-9)
}

func TestMVOptimizer_ShortingProducesNegativeWeights(t *testing.T) {
	opt := newTestOptimizer(ConditioningFail)

	alloc, err := opt.Optimize(Problem{Cov: identity(2), Reward: []float64{1, 0}, RiskAversion: 0.1, AllowShort: true})
	require.NoError(t, err)
	assert.InDelta(t, 3.0, alloc.Weights[0], 1e-9)
	assert.InDelta(t, -2.0, alloc.Weights[1], 1e-9)
	assertBudget(t, alloc.Weights)
}

func TestMVOptimizer_NoShortClampsToSimplex(t *testing.T) {
	opt := newTestOptimizer(ConditioningFail)

	alloc, err := opt.Optimize(Problem{Cov: identity(2), Reward: []float64{1, 0}, RiskAversion: 0.1})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, alloc.Weights[0], 1e-9)
	assert.InDelta(t, 0.0, alloc.Weights[1], 1e-9)
	assert.GreaterOrEqual(t, alloc.Weights[1], 0.0)
}

func TestMVOptimizer_NoShortInteriorMatchesClosedForm(t *testing.T) {
	opt := newTestOptimizer(ConditioningFail)
	p := Problem{Cov: identity(2), Reward: []float64{0.1, 0}, RiskAversion: 1}

	longOnly, err := opt.Optimize(p)
	require.NoError(t, err)

	p.AllowShort = true
	short, err := opt.Optimize(p)
	require.NoError(t, err)

	for i := range short.Weights {
		assert.InDelta(t, short.Weights[i], longOnly.Weights[i], 1e-9)
	}
}

func TestMVOptimizer_NoShortIsOptimalOnGrid(t *testing.T) {
	opt := newTestOptimizer(ConditioningFail)
	cov := symmetric(t,
		[]float64{1, 0.3, 0.1},
		[]float64{0.3, 1, -0.2},
		[]float64{0.1, -0.2, 1},
	)
	reward := []float64{0.02, 0.05, 0.03}
	lambda := 0.02

	alloc, err := opt.Optimize(Problem{Cov: cov, Reward: reward, RiskAversion: lambda})
	require.NoError(t, err)
	assertBudget(t, alloc.Weights)

	best := math.Inf(-1)
	for i := 0; i <= 100; i++ {
		for j := 0; i+j <= 100; j++ {
			w := []float64{float64(i) / 100, float64(j) / 100, float64(100-i-j) / 100}
			u := -objective(cov, reward, lambda, w)
			best = math.Max(best, u)
		}
	}
	assert.GreaterOrEqual(t, alloc.Utility, best-1e-12)
}

func TestMVOptimizer_TinyRiskAversionGivesCorner(t *testing.T) {
	opt := newTestOptimizer(ConditioningFail)

	alloc, err := opt.Optimize(Problem{Cov: identity(3), Reward: []float64{0.1, 0.3, 0.2}, RiskAversion: 1e-6})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, alloc.Weights[0], 1e-9)
	assert.InDelta(t, 1.0, alloc.Weights[1], 1e-9)
	assert.InDelta(t, 0.0, alloc.Weights[2], 1e-9)
}

func TestMVOptimizer_SingleAsset(t *testing.T) {
	opt := newTestOptimizer(ConditioningFail)

	for _, short := range []bool{false, true} {
		alloc, err := opt.Optimize(Problem{Cov: identity(1), Reward: []float64{0.04}, RiskAversion: 2, AllowShort: short})
		require.NoError(t, err)
		assert.Equal(t, []float64{1}, alloc.Weights)
	}
}

func TestMVOptimizer_MonotoneRisk(t *testing.T) {
	stdDevs := []float64{0.02, 0.05, 0.03}
	model := &RiskModel{
		Names:   []string{"A", "B", "C"},
		Means:   []float64{0.001, 0.002, 0.0015},
		StdDevs: stdDevs,
		Matrix: symmetric(t,
			[]float64{1, 0.3, 0.1},
			[]float64{0.3, 1, -0.2},
			[]float64{0.1, -0.2, 1},
		),
	}
	opt := newTestOptimizer(ConditioningFail)

	for _, short := range []bool{false, true} {
		prev := math.Inf(1)
		for _, lambda := range []float64{0.01, 0.02, 0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10} {
			alloc, err := opt.Optimize(Problem{Cov: model.Matrix, Reward: stdDevs, RiskAversion: lambda, AllowShort: short})
			require.NoError(t, err)
			assertBudget(t, alloc.Weights)

			stats, err := PortfolioStats(alloc.Weights, model, stdDevs)
			require.NoError(t, err)
			assert.LessOrEqual(t, stats.Risk, prev+1e-9, "risk must not grow with risk aversion (λ=%g, short=%v)", lambda, short)
			prev = stats.Risk
		}
	}
}

func TestMVOptimizer_SingularKKT(t *testing.T) {
	opt := newTestOptimizer(ConditioningFail)
	ones := symmetric(t,
		[]float64{1, 1, 1},
		[]float64{1, 1, 1},
		[]float64{1, 1, 1},
	)

	_, err := opt.Optimize(Problem{Cov: ones, Reward: []float64{0.1, 0.2, 0.3}, RiskAversion: 1, AllowShort: true})
	assert.ErrorIs(t, err, ErrSingularMatrix)
}

func TestMVOptimizer_IndefiniteMatrix(t *testing.T) {
	indefinite := symmetric(t,
		[]float64{1, 0.9, -0.9},
		[]float64{0.9, 1, 0.9},
		[]float64{-0.9, 0.9, 1},
	)
	p := Problem{Cov: indefinite, Reward: []float64{0.02, 0.03, 0.04}, RiskAversion: 1}

	_, err := newTestOptimizer(ConditioningFail).Optimize(p)
	assert.ErrorIs(t, err, ErrNumericalInstability)

	alloc, err := newTestOptimizer(ConditioningShrink).Optimize(p)
	require.NoError(t, err)
	assert.True(t, alloc.Conditioned)
	assertBudget(t, alloc.Weights)
	for _, w := range alloc.Weights {
		assert.GreaterOrEqual(t, w, 0.0)
	}
	// The caller's matrix is left untouched.
	assert.Equal(t, -0.9, indefinite.At(0, 2))
}

func TestMVOptimizer_InvalidInput(t *testing.T) {
	opt := newTestOptimizer(ConditioningFail)
	cov := identity(2)

	tests := []struct {
		name string
		p    Problem
	}{
		{"nil matrix", Problem{Reward: []float64{1, 2}, RiskAversion: 1}},
		{"size mismatch", Problem{Cov: cov, Reward: []float64{1}, RiskAversion: 1}},
		{"zero risk aversion", Problem{Cov: cov, Reward: []float64{1, 2}}},
		{"negative risk aversion", Problem{Cov: cov, Reward: []float64{1, 2}, RiskAversion: -1}},
		{"NaN risk aversion", Problem{Cov: cov, Reward: []float64{1, 2}, RiskAversion: math.NaN()}},
		{"infinite risk aversion", Problem{Cov: cov, Reward: []float64{1, 2}, RiskAversion: math.Inf(1)}},
		{"NaN reward", Problem{Cov: cov, Reward: []float64{math.NaN(), 2}, RiskAversion: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := opt.Optimize(tt.p)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestProjectSimplex(t *testing.T) {
	tests := []struct {
		name string
		in   []float64
		want []float64
	}{
		{"already feasible", []float64{0.2, 0.3, 0.5}, []float64{0.2, 0.3, 0.5}},
		{"uniform shift", []float64{1, 1}, []float64{0.5, 0.5}},
		{"single dominant", []float64{5, 0, -1}, []float64{1, 0, 0}},
		{"partial support", []float64{0.8, 0.6, -0.4}, []float64{0.6, 0.4, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := append([]float64(nil), tt.in...)
			projectSimplex(v)
			for i := range tt.want {
				assert.InDelta(t, tt.want[i], v[i], 1e-12)
			}
		})
	}
}
