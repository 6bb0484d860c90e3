// Package sweep runs the optimizer across a range of risk aversions and keeps
// the resulting efficient frontier.
package sweep

import (
	"context"
	"time"

	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/aristath/frontier/internal/modules/universe"
)

// Options configure a sweep.
type Options struct {
	RiskAversions []float64                 `json:"risk_aversions"`
	AllowShort    bool                      `json:"allow_short"`
	RewardPolicy  optimization.RewardPolicy `json:"reward_policy"`
	Conditioning  optimization.Conditioning `json:"conditioning"`
}

// Point is the outcome of one risk aversion. Exactly one of Allocation and
// Error is set.
type Point struct {
	RiskAversion float64                  `json:"risk_aversion"`
	Allocation   *optimization.Allocation `json:"allocation,omitempty"`
	Stats        *optimization.Stats      `json:"stats,omitempty"`
	Error        string                   `json:"error,omitempty"`
}

// OK reports whether the point was solved.
func (p Point) OK() bool { return p.Allocation != nil }

// AssetStats describes one asset of the risk model.
type AssetStats struct {
	universe.Asset
	Observations int      `json:"observations"`
	Mean         float64  `json:"mean"`
	StdDev       float64  `json:"std_dev"`
	Volatility   *float64 `json:"volatility_30d,omitempty"`
	CAGR         *float64 `json:"cagr,omitempty"`
}

// Frontier is the result of a run.
type Frontier struct {
	RunID            string                         `json:"run_id"`
	CreatedAt        time.Time                      `json:"created_at"`
	Duration         time.Duration                  `json:"duration_ns"`
	Options          Options                        `json:"options"`
	Assets           []AssetStats                   `json:"assets"`
	Correlation      [][]float64                    `json:"correlation"`
	HighCorrelations []optimization.CorrelationPair `json:"high_correlations"`
	Points           []Point                        `json:"points"`
	Rejected         []optimization.Rejection       `json:"rejected,omitempty"`
	Failures         []universe.Failure             `json:"failures,omitempty"`
}

// Solved returns the points that produced an allocation.
func (f *Frontier) Solved() []Point {
	out := make([]Point, 0, len(f.Points))
	for _, p := range f.Points {
		if p.OK() {
			out = append(out, p)
		}
	}
	return out
}

// Sweep solves the problem for every risk aversion in opts. The model and
// reward are shared read-only by the workers. A failing risk aversion is
// recorded on its point and does not affect the others.
func Sweep(ctx context.Context, model *optimization.RiskModel, reward []float64, opts Options, optimizer *optimization.MVOptimizer, pool *WorkerPool) []Point {
	return pool.Run(ctx, opts.RiskAversions, func(ra float64) Point {
		alloc, err := optimizer.Optimize(optimization.Problem{
			Cov:          model.Matrix,
			Reward:       reward,
			RiskAversion: ra,
			AllowShort:   opts.AllowShort,
		})
		if err != nil {
			return Point{RiskAversion: ra, Error: err.Error()}
		}
		stats, err := optimization.PortfolioStats(alloc.Weights, model, reward)
		if err != nil {
			return Point{RiskAversion: ra, Error: err.Error()}
		}
		return Point{RiskAversion: ra, Allocation: alloc, Stats: &stats}
	})
}
