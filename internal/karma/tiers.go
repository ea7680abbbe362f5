// Package karma holds the pure valuation rules: the staking tier table,
// the activity value table and the sentiment-to-karma formula. Nothing in
// this package touches the database or the network.
package karma

// Staking tier thresholds. Boundaries belong to the higher tier.
const (
	SilverTierThreshold = 100
	GoldTierThreshold   = 500
)

// MultiplierFor maps a staked token amount to its karma multiplier.
// [0,100) -> 1.0, [100,500) -> 1.5, [500,inf) -> 2.0.
func MultiplierFor(stakedAmount float64) float64 {
	switch {
	case stakedAmount >= GoldTierThreshold:
		return 2.0
	case stakedAmount >= SilverTierThreshold:
		return 1.5
	default:
		return 1.0
	}
}
