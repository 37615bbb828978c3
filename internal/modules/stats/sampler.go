package stats

import (
	"math"
	"math/rand"
	"sync"

	"captionbandit/pkg/formulas"
)

// Sampler draws Thompson samples from Wilson confidence intervals.
// Exploration is proportional to the residual width of the interval: items
// with little evidence get wide intervals and therefore volatile samples,
// items with strong evidence converge on their observed rate.
type Sampler struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSampler creates a sampler with the given random source
func NewSampler(rng *rand.Rand) *Sampler {
	return &Sampler{rng: rng}
}

// Sample draws one value uniformly from the Wilson interval for the given
// counts, clamped to [0, 1].
func (s *Sampler) Sample(successes, failures int) (float64, error) {
	iv, err := formulas.WilsonInterval(successes, failures)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	u := s.rng.Float64()
	s.mu.Unlock()

	sample := iv.LowerBound + (iv.UpperBound-iv.LowerBound)*u
	return math.Max(0.0, math.Min(1.0, sample)), nil
}
