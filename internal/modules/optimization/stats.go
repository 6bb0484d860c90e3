package optimization

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Stats are the realised characteristics of a weight vector.
type Stats struct {
	// Return is the weighted mean daily return.
	Return float64 `json:"return"`
	// Risk is the weighted sum of standard deviations. It is the risk figure
	// reported per frontier point.
	Risk float64 `json:"risk"`
	// Variance is wᵀΣw over the correlation-normalised matrix.
	Variance float64 `json:"variance"`
	// Reward is the weighted reward vector.
	Reward float64 `json:"reward"`
}

// PortfolioStats computes the realised statistics of weights against model.
func PortfolioStats(weights []float64, model *RiskModel, reward []float64) (Stats, error) {
	n := model.Size()
	if len(weights) != n || len(reward) != n {
		return Stats{}, fmt.Errorf("weights (%d) and reward (%d) must match %d assets: %w", len(weights), len(reward), n, ErrInvalidInput)
	}
	return Stats{
		Return:   floats.Dot(model.Means, weights),
		Risk:     floats.Dot(model.StdDevs, weights),
		Variance: quadForm(model.Matrix, weights),
		Reward:   floats.Dot(reward, weights),
	}, nil
}
