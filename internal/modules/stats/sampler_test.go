package stats

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"captionbandit/pkg/formulas"
)

func TestSampler_WithinBounds(t *testing.T) {
	sampler := NewSampler(rand.New(rand.NewSource(1)))

	iv, err := formulas.WilsonInterval(50, 50)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		sample, err := sampler.Sample(50, 50)
		require.NoError(t, err)

		assert.GreaterOrEqual(t, sample, iv.LowerBound)
		assert.LessOrEqual(t, sample, iv.UpperBound)
	}
}

func TestSampler_BalancedCountsAverageNearHalf(t *testing.T) {
	sampler := NewSampler(rand.New(rand.NewSource(42)))

	sum := 0.0
	const draws = 1000
	for i := 0; i < draws; i++ {
		sample, err := sampler.Sample(50, 50)
		require.NoError(t, err)
		sum += sample
	}

	assert.InDelta(t, 0.5, sum/draws, 0.05)
}

func TestSampler_ZeroObservationsSpansFullRange(t *testing.T) {
	sampler := NewSampler(rand.New(rand.NewSource(7)))

	low, high := 1.0, 0.0
	for i := 0; i < 500; i++ {
		sample, err := sampler.Sample(0, 0)
		require.NoError(t, err)

		assert.GreaterOrEqual(t, sample, 0.0)
		assert.LessOrEqual(t, sample, 1.0)
		if sample < low {
			low = sample
		}
		if sample > high {
			high = sample
		}
	}

	// With no evidence the interval is [0, 1]; draws should spread widely
	assert.Less(t, low, 0.2)
	assert.Greater(t, high, 0.8)
}

func TestSampler_NegativeCountsError(t *testing.T) {
	sampler := NewSampler(rand.New(rand.NewSource(1)))

	_, err := sampler.Sample(-1, 0)
	assert.Error(t, err)
}
