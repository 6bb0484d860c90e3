package optimization

import "fmt"

// RewardPolicy selects the vector used as the expected-return input.
type RewardPolicy string

const (
	// RewardStdDev uses each asset's return standard deviation as its reward.
	RewardStdDev RewardPolicy = "stdev"
	// RewardMean uses each asset's mean daily return.
	RewardMean RewardPolicy = "mean"
)

// Reward returns a copy of the reward vector chosen by policy.
func (m *RiskModel) Reward(policy RewardPolicy) ([]float64, error) {
	var src []float64
	switch policy {
	case RewardStdDev, "":
		src = m.StdDevs
	case RewardMean:
		src = m.Means
	default:
		return nil, fmt.Errorf("unknown reward policy %q: %w", policy, ErrInvalidInput)
	}
	out := make([]float64, len(src))
	copy(out, src)
	return out, nil
}
