// Package optimization builds the risk model from return series and solves the
// mean-variance allocation problem.
package optimization

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/aristath/frontier/internal/modules/timeseries"
)

// DefaultHighCorrelationThreshold flags pairs whose |correlation| is at least 0.8.
const DefaultHighCorrelationThreshold = 0.80

// CorrelationPair is an off-diagonal cell of the risk matrix.
type CorrelationPair struct {
	Asset1      string  `json:"asset1"`
	Asset2      string  `json:"asset2"`
	Correlation float64 `json:"correlation"`
}

// RiskModel is the immutable input of a sweep: per-asset statistics and the
// correlation-normalised covariance matrix, indexed by Names.
type RiskModel struct {
	Names   []string
	Means   []float64
	StdDevs []float64
	Matrix  *mat.SymDense
}

// Size returns the number of assets.
func (m *RiskModel) Size() int { return len(m.Names) }

// MatrixRows returns the matrix as row slices.
func (m *RiskModel) MatrixRows() [][]float64 {
	n := m.Size()
	rows := make([][]float64, n)
	for i := 0; i < n; i++ {
		rows[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			rows[i][j] = m.Matrix.At(i, j)
		}
	}
	return rows
}

// HighCorrelations returns the off-diagonal pairs with |correlation| >= threshold,
// strongest first.
func (m *RiskModel) HighCorrelations(threshold float64) []CorrelationPair {
	pairs := make([]CorrelationPair, 0)
	n := m.Size()
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			c := m.Matrix.At(i, j)
			if math.Abs(c) >= threshold {
				pairs = append(pairs, CorrelationPair{Asset1: m.Names[i], Asset2: m.Names[j], Correlation: c})
			}
		}
	}
	sort.SliceStable(pairs, func(a, b int) bool {
		return math.Abs(pairs[a].Correlation) > math.Abs(pairs[b].Correlation)
	})
	return pairs
}

// Rejection records why a series was left out of the risk model.
type Rejection struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// RiskModelBuilder assembles risk models from return series.
type RiskModelBuilder struct {
	log zerolog.Logger
}

// NewRiskModelBuilder creates a new risk model builder.
func NewRiskModelBuilder(log zerolog.Logger) *RiskModelBuilder {
	return &RiskModelBuilder{
		log: log.With().Str("component", "risk_model").Logger(),
	}
}

// SelectUsable drops series whose standard deviation is undefined, since every
// covariance involving them would fail. Order is preserved.
func (rb *RiskModelBuilder) SelectUsable(series []*timeseries.TimeSeries) ([]*timeseries.TimeSeries, []Rejection) {
	usable := make([]*timeseries.TimeSeries, 0, len(series))
	var rejected []Rejection
	for _, ts := range series {
		if _, err := ts.StdDev(); err != nil {
			rb.log.Warn().
				Str("asset", ts.Name()).
				Int("observations", ts.Len()).
				Err(err).
				Msg("Dropping degenerate series")
			rejected = append(rejected, Rejection{Name: ts.Name(), Reason: err.Error()})
			continue
		}
		usable = append(usable, ts)
	}
	return usable, rejected
}

// BuildRiskModel computes means, standard deviations and the pairwise
// correlation-normalised covariance of every series. series order defines the
// model's indexing. The diagonal is stored as exactly 1 once the self
// covariance has been computed without error.
func (rb *RiskModelBuilder) BuildRiskModel(series []*timeseries.TimeSeries) (*RiskModel, error) {
	n := len(series)
	if n == 0 {
		return nil, fmt.Errorf("no series provided: %w", ErrInvalidInput)
	}

	model := &RiskModel{
		Names:   make([]string, n),
		Means:   make([]float64, n),
		StdDevs: make([]float64, n),
		Matrix:  mat.NewSymDense(n, nil),
	}

	for i, ts := range series {
		sd, err := ts.StdDev()
		if err != nil {
			return nil, fmt.Errorf("asset %s: %w", ts.Name(), err)
		}
		model.Names[i] = ts.Name()
		model.Means[i] = ts.Average()
		model.StdDevs[i] = sd
	}

	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			cov, err := series[i].Covariance(series[j])
			if err != nil {
				return nil, fmt.Errorf("covariance %s/%s: %w", series[i].Name(), series[j].Name(), err)
			}
			if i == j {
				cov = 1
			}
			model.Matrix.SetSym(i, j, cov)
		}
	}

	rb.log.Debug().
		Int("num_assets", n).
		Msg("Built risk model")

	return model, nil
}

// NewSymmetricMatrix converts row slices into a symmetric matrix. Rows must be
// square and symmetric within 1e-9; the two triangles are averaged.
func NewSymmetricMatrix(rows [][]float64) (*mat.SymDense, error) {
	n := len(rows)
	if n == 0 {
		return nil, fmt.Errorf("empty matrix: %w", ErrInvalidInput)
	}
	for i, row := range rows {
		if len(row) != n {
			return nil, fmt.Errorf("matrix row %d has size %d, expected %d: %w", i, len(row), n, ErrInvalidInput)
		}
	}

	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			a, b := rows[i][j], rows[j][i]
			if math.Abs(a-b) > 1e-9 {
				return nil, fmt.Errorf("matrix is not symmetric at (%d,%d): %g vs %g: %w", i, j, a, b, ErrInvalidInput)
			}
			sym.SetSym(i, j, (a+b)/2)
		}
	}
	return sym, nil
}

