package optimization

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	// BudgetTolerance bounds |Σw − 1| for an accepted allocation.
	BudgetTolerance = 1e-6
	// NegativeWeightTolerance bounds how far below zero a no-short weight may fall
	// before clamping.
	NegativeWeightTolerance = 1e-9

	maxConditionNumber = 1e12
	minLipschitz       = 1e-12
	supportThreshold   = 1e-9
	dualTolerance      = 1e-9
	fistaTolerance     = 1e-13
	fistaMaxIterations = 100000
)

// Problem is one point of the sweep:
//
//	maximize   w·Reward − RiskAversion·wᵀ·Cov·w
//	subject to Σw = 1, and w ≥ 0 unless AllowShort.
type Problem struct {
	Cov          mat.Symmetric
	Reward       []float64
	RiskAversion float64
	AllowShort   bool
}

// Allocation is the solution of a Problem.
type Allocation struct {
	Weights      []float64 `json:"weights"`
	RiskAversion float64   `json:"risk_aversion"`
	Utility      float64   `json:"utility"`
	Reward       float64   `json:"reward"`
	Variance     float64   `json:"variance"`
	Conditioned  bool      `json:"conditioned"`
	Iterations   int       `json:"iterations"`
}

// MVOptimizer performs mean-variance portfolio optimization.
type MVOptimizer struct {
	conditioning Conditioning
	log          zerolog.Logger
}

// NewMVOptimizer creates a new mean-variance optimizer. An empty conditioning
// policy behaves as ConditioningFail.
func NewMVOptimizer(conditioning Conditioning, log zerolog.Logger) *MVOptimizer {
	if conditioning == "" {
		conditioning = ConditioningFail
	}
	return &MVOptimizer{
		conditioning: conditioning,
		log:          log.With().Str("component", "mv_optimizer").Logger(),
	}
}

// Optimize solves the mean-variance problem. It is safe for concurrent use.
//
// With shorting allowed the budget-constrained problem has a closed form, found
// by solving the KKT system
//
//	[2λΣ 1; 1ᵀ 0]·[w; ν] = [r; 1]
//
// Without shorting, accelerated projected gradient over the unit simplex finds
// the optimum, and the KKT system restricted to the resulting support is then
// used to polish it when the polished point is primal and dual feasible.
func (mvo *MVOptimizer) Optimize(p Problem) (*Allocation, error) {
	if err := validateProblem(p); err != nil {
		return nil, err
	}
	n := len(p.Reward)

	cov, spec, conditioned, err := condition(p.Cov, mvo.conditioning, mvo.log)
	if err != nil {
		return nil, err
	}

	var (
		weights    []float64
		iterations int
	)
	switch {
	case n == 1:
		weights = []float64{1}
	case p.AllowShort:
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		w, _, err := solveKKT(cov, p.Reward, p.RiskAversion, all)
		if err != nil {
			return nil, err
		}
		weights = w
	default:
		weights, iterations = projectedGradient(cov, p.Reward, p.RiskAversion, spec.max)
		if polished, ok := polish(cov, p.Reward, p.RiskAversion, weights); ok {
			weights = polished
		}
		clampAndNormalize(weights)
	}

	if err := checkAllocation(weights, p.AllowShort); err != nil {
		return nil, err
	}

	variance := quadForm(cov, weights)
	reward := floats.Dot(p.Reward, weights)
	alloc := &Allocation{
		Weights:      weights,
		RiskAversion: p.RiskAversion,
		Utility:      reward - p.RiskAversion*variance,
		Reward:       reward,
		Variance:     variance,
		Conditioned:  conditioned,
		Iterations:   iterations,
	}

	mvo.log.Debug().
		Float64("risk_aversion", p.RiskAversion).
		Bool("allow_short", p.AllowShort).
		Int("iterations", iterations).
		Float64("utility", alloc.Utility).
		Msg("Solved mean-variance problem")

	return alloc, nil
}

func validateProblem(p Problem) error {
	if p.Cov == nil {
		return fmt.Errorf("risk matrix is nil: %w", ErrInvalidInput)
	}
	n := p.Cov.SymmetricDim()
	if n < 1 || len(p.Reward) != n {
		return fmt.Errorf("risk matrix size %d doesn't match reward length %d: %w", n, len(p.Reward), ErrInvalidInput)
	}
	if !(p.RiskAversion > 0) || math.IsInf(p.RiskAversion, 0) {
		return fmt.Errorf("risk aversion must be positive and finite, got %g: %w", p.RiskAversion, ErrInvalidInput)
	}
	for i := 0; i < n; i++ {
		if !isFinite(p.Reward[i]) {
			return fmt.Errorf("reward[%d] is not finite: %w", i, ErrInvalidInput)
		}
		for j := i; j < n; j++ {
			if !isFinite(p.Cov.At(i, j)) {
				return fmt.Errorf("risk matrix cell (%d,%d) is not finite: %w", i, j, ErrInvalidInput)
			}
		}
	}
	return nil
}

// solveKKT solves the budget-constrained stationarity system restricted to the
// assets in idx. The returned weights have full length, zero outside idx.
func solveKKT(cov mat.Symmetric, reward []float64, lambda float64, idx []int) ([]float64, float64, error) {
	k := len(idx)
	a := mat.NewDense(k+1, k+1, nil)
	b := mat.NewVecDense(k+1, nil)
	for i, ii := range idx {
		for j, jj := range idx {
			a.Set(i, j, 2*lambda*cov.At(ii, jj))
		}
		a.Set(i, k, 1)
		a.Set(k, i, 1)
		b.SetVec(i, reward[ii])
	}
	b.SetVec(k, 1)

	var lu mat.LU
	lu.Factorize(a)
	if c := lu.Cond(); math.IsNaN(c) || c > maxConditionNumber {
		return nil, 0, fmt.Errorf("KKT system condition number %g: %w", c, ErrSingularMatrix)
	}
	x := mat.NewVecDense(k+1, nil)
	if err := lu.SolveVecTo(x, false, b); err != nil {
		var cond mat.Condition
		if errors.As(err, &cond) || errors.Is(err, mat.ErrSingular) {
			return nil, 0, fmt.Errorf("solving KKT system: %v: %w", err, ErrSingularMatrix)
		}
		return nil, 0, err
	}

	w := make([]float64, len(reward))
	for i, ii := range idx {
		w[ii] = x.AtVec(i)
	}
	return w, x.AtVec(k), nil
}

// projectedGradient minimises λ·wᵀΣw − r·w over the unit simplex with FISTA and
// gradient-based adaptive restart. maxEigen is the largest eigenvalue of cov.
func projectedGradient(cov mat.Symmetric, reward []float64, lambda, maxEigen float64) ([]float64, int) {
	n := len(reward)
	lipschitz := math.Max(2*lambda*maxEigen, minLipschitz)
	step := 1 / lipschitz

	x := make([]float64, n)
	for i := range x {
		x[i] = 1 / float64(n)
	}
	y := make([]float64, n)
	copy(y, x)
	next := make([]float64, n)
	grad := make([]float64, n)
	t := 1.0

	iter := 0
	for iter < fistaMaxIterations {
		iter++
		gradient(cov, reward, lambda, y, grad)
		for i := range next {
			next[i] = y[i] - step*grad[i]
		}
		projectSimplex(next)

		tNext := (1 + math.Sqrt(1+4*t*t)) / 2
		var restart float64
		for i := range next {
			restart += (y[i] - next[i]) * (next[i] - x[i])
		}
		if restart > 0 {
			tNext = 1
			copy(y, next)
		} else {
			momentum := (t - 1) / tNext
			for i := range y {
				y[i] = next[i] + momentum*(next[i]-x[i])
			}
		}

		delta := floats.Distance(next, x, math.Inf(1))
		copy(x, next)
		t = tNext
		if delta < fistaTolerance {
			break
		}
	}
	return x, iter
}

// gradient writes 2λΣw − r into dst.
func gradient(cov mat.Symmetric, reward []float64, lambda float64, w, dst []float64) {
	n := len(w)
	for i := 0; i < n; i++ {
		var s float64
		for j := 0; j < n; j++ {
			s += cov.At(i, j) * w[j]
		}
		dst[i] = 2*lambda*s - reward[i]
	}
}

// projectSimplex replaces v with its Euclidean projection onto
// {w : w ≥ 0, Σw = 1}.
func projectSimplex(v []float64) {
	u := make([]float64, len(v))
	copy(u, v)
	sort.Sort(sort.Reverse(sort.Float64Slice(u)))

	var cumulative, theta float64
	for j, uj := range u {
		cumulative += uj
		candidate := (cumulative - 1) / float64(j+1)
		if uj-candidate > 0 {
			theta = candidate
		}
	}
	for i := range v {
		v[i] = math.Max(v[i]-theta, 0)
	}
}

// polish re-solves the KKT system on the support of w. The result is accepted
// only if it stays non-negative, satisfies dual feasibility off the support and
// does not worsen the objective.
func polish(cov mat.Symmetric, reward []float64, lambda float64, w []float64) ([]float64, bool) {
	var support []int
	for i, wi := range w {
		if wi > supportThreshold {
			support = append(support, i)
		}
	}
	if len(support) == 0 {
		return nil, false
	}

	candidate, nu, err := solveKKT(cov, reward, lambda, support)
	if err != nil {
		return nil, false
	}
	inSupport := make([]bool, len(w))
	for _, i := range support {
		if candidate[i] < -1e-12 {
			return nil, false
		}
		inSupport[i] = true
	}

	grad := make([]float64, len(w))
	gradient(cov, reward, lambda, candidate, grad)
	for i := range grad {
		if !inSupport[i] && grad[i]+nu < -dualTolerance {
			return nil, false
		}
	}

	if objective(cov, reward, lambda, candidate) > objective(cov, reward, lambda, w)+1e-12 {
		return nil, false
	}
	return candidate, true
}

func objective(cov mat.Symmetric, reward []float64, lambda float64, w []float64) float64 {
	return lambda*quadForm(cov, w) - floats.Dot(reward, w)
}

func quadForm(cov mat.Symmetric, w []float64) float64 {
	v := mat.NewVecDense(len(w), w)
	return mat.Inner(v, cov, v)
}

func clampAndNormalize(w []float64) {
	for i := range w {
		if w[i] < 0 && w[i] >= -NegativeWeightTolerance {
			w[i] = 0
		}
	}
	if sum := floats.Sum(w); sum > 0 {
		floats.Scale(1/sum, w)
	}
}

func checkAllocation(w []float64, allowShort bool) error {
	for i, wi := range w {
		if !isFinite(wi) {
			return fmt.Errorf("weight %d is not finite: %w", i, ErrNumericalInstability)
		}
		if !allowShort && wi < -NegativeWeightTolerance {
			return fmt.Errorf("weight %d is negative (%g): %w", i, wi, ErrInfeasible)
		}
	}
	if sum := floats.Sum(w); math.Abs(sum-1) > BudgetTolerance {
		return fmt.Errorf("weights sum to %g: %w", sum, ErrInfeasible)
	}
	return nil
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
