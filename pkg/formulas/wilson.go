// Package formulas provides pure statistical functions used by the bandit engine.
package formulas

import (
	"fmt"
	"math"
)

// wilsonZ is the z-score for a 95% confidence level.
const wilsonZ = 1.96

// Interval is a Wilson score confidence interval for a binomial proportion,
// plus an exploration bonus that decays with observation count.
type Interval struct {
	LowerBound       float64 `json:"lower_bound"`
	UpperBound       float64 `json:"upper_bound"`
	ExplorationBonus float64 `json:"exploration_bonus"`
}

// WilsonInterval computes the Wilson score interval at 95% confidence for
// the given success/failure counts.
//
// With zero observations the result is maximally uncertain: [0, 1] with an
// exploration bonus of 1. Negative counts are invalid input and return an error.
func WilsonInterval(successes, failures int) (Interval, error) {
	if successes < 0 || failures < 0 {
		return Interval{}, fmt.Errorf("wilson interval: negative counts (successes=%d, failures=%d)", successes, failures)
	}

	n := float64(successes + failures)
	bonus := 1.0 / math.Sqrt(n+1)

	if n == 0 {
		return Interval{LowerBound: 0.0, UpperBound: 1.0, ExplorationBonus: 1.0}, nil
	}

	pHat := float64(successes) / n
	z2 := wilsonZ * wilsonZ

	center := pHat + z2/(2*n)
	spread := wilsonZ * math.Sqrt(pHat*(1-pHat)/n+z2/(4*n*n))
	denom := 1 + z2/n

	lower := (center - spread) / denom
	upper := (center + spread) / denom

	// Floating point can nudge the bounds just outside [0, 1]
	lower = math.Max(0.0, math.Min(1.0, lower))
	upper = math.Max(0.0, math.Min(1.0, upper))

	return Interval{
		LowerBound:       lower,
		UpperBound:       upper,
		ExplorationBonus: bonus,
	}, nil
}

// ExplorationScore returns the exploration bonus for a record with the given
// total observation count: 1/sqrt(n+1).
func ExplorationScore(successes, failures int) float64 {
	n := float64(successes + failures)
	if n < 0 {
		return 0
	}
	return 1.0 / math.Sqrt(n+1)
}
