package optimization

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
)

// Conditioning selects how a matrix that is not positive semi-definite is handled.
type Conditioning string

const (
	// ConditioningFail rejects an indefinite matrix with ErrNumericalInstability.
	ConditioningFail Conditioning = "fail"
	// ConditioningShrink shrinks toward the constant-correlation target and, if
	// that is not enough, adds a diagonal ridge.
	ConditioningShrink Conditioning = "shrink"
)

const (
	psdTolerance = 1e-10
	ridgeEpsilon = 1e-10
)

// spectrum holds the extreme eigenvalues of a symmetric matrix.
type spectrum struct {
	min, max float64
}

func (s spectrum) indefinite() bool {
	return s.min < -psdTolerance*math.Max(1, s.max)
}

func eigenRange(m mat.Symmetric) (spectrum, error) {
	var eig mat.EigenSym
	if ok := eig.Factorize(m, false); !ok {
		return spectrum{}, fmt.Errorf("eigen decomposition failed: %w", ErrNumericalInstability)
	}
	values := eig.Values(nil)
	// Values are returned in ascending order.
	return spectrum{min: values[0], max: values[len(values)-1]}, nil
}

// condition returns a positive semi-definite version of cov, together with its
// spectrum and whether it had to be modified.
func condition(cov mat.Symmetric, policy Conditioning, log zerolog.Logger) (*mat.SymDense, spectrum, bool, error) {
	n := cov.SymmetricDim()
	out := mat.NewSymDense(n, nil)
	out.CopySym(cov)

	spec, err := eigenRange(out)
	if err != nil {
		return nil, spectrum{}, false, err
	}
	if !spec.indefinite() {
		return out, spec, false, nil
	}

	if policy != ConditioningShrink {
		return nil, spec, false, fmt.Errorf("matrix is not positive semi-definite (min eigenvalue %g): %w", spec.min, ErrNumericalInstability)
	}

	intensity := shrinkTowardConstantCorrelation(out)
	spec, err = eigenRange(out)
	if err != nil {
		return nil, spectrum{}, false, err
	}

	var ridge float64
	if spec.indefinite() {
		ridge = math.Abs(spec.min) + ridgeEpsilon
		for i := 0; i < n; i++ {
			out.SetSym(i, i, out.At(i, i)+ridge)
		}
		if spec, err = eigenRange(out); err != nil {
			return nil, spectrum{}, false, err
		}
	}

	log.Warn().
		Float64("shrinkage", intensity).
		Float64("ridge", ridge).
		Float64("min_eigenvalue", spec.min).
		Msg("Conditioned indefinite risk matrix")

	return out, spec, true, nil
}

// shrinkTowardConstantCorrelation blends m in place with the constant
// correlation target (average variance on the diagonal, average covariance
// elsewhere) and returns the intensity used.
func shrinkTowardConstantCorrelation(m *mat.SymDense) float64 {
	n := m.SymmetricDim()
	if n < 2 {
		return 0
	}

	var avgVar, avgCov float64
	for i := 0; i < n; i++ {
		avgVar += m.At(i, i)
		for j := 0; j < n; j++ {
			if i != j {
				avgCov += m.At(i, j)
			}
		}
	}
	avgVar /= float64(n)
	avgCov /= float64(n * (n - 1))
	if avgVar <= 0 {
		avgCov = 0
	}

	target := func(i, j int) float64 {
		if i == j {
			return avgVar
		}
		return avgCov
	}

	intensity := 0.2
	if n > 2 && avgVar > 0 {
		var sumSqDiff, sum, sumSq float64
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				v := m.At(i, j)
				d := v - target(i, j)
				sumSqDiff += d * d
				sum += v
				sumSq += v * v
			}
		}
		count := float64(n * n)
		meanSqDiff := sumSqDiff / count
		mean := sum / count
		varSample := sumSq/count - mean*mean
		if varSample > 0 && meanSqDiff > 0 {
			intensity = math.Min(0.5, math.Max(0, varSample/(varSample+meanSqDiff)))
		}
	}

	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			m.SetSym(i, j, (1-intensity)*m.At(i, j)+intensity*target(i, j))
		}
	}
	return intensity
}
