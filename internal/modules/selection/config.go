// Package selection scores and ranks eligible captions for an audience using
// Thompson sampling over Wilson confidence bounds, diversity and usage-budget
// adjustments, and per-segment multipliers.
package selection

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SelectorConfig carries every tunable constant of the candidate selector.
// It is versioned so that a selection run can always be traced back to the
// exact weights that produced it.
type SelectorConfig struct {
	Version string `yaml:"version" json:"version"`

	// Final score component weights
	ThompsonWeight   float64 `yaml:"thompson_weight" json:"thompson_weight"`
	DiversityWeight  float64 `yaml:"diversity_weight" json:"diversity_weight"`
	HistoricalWeight float64 `yaml:"historical_weight" json:"historical_weight"`
	BudgetWeight     float64 `yaml:"budget_weight" json:"budget_weight"`

	// Diversity signal shaping
	DiversityScale    float64 `yaml:"diversity_scale" json:"diversity_scale"`
	NoveltyBonus      float64 `yaml:"novelty_bonus" json:"novelty_bonus"`
	RepetitionPenalty float64 `yaml:"repetition_penalty" json:"repetition_penalty"`

	// Weekly usage caps
	UrgentWeeklyCap   int `yaml:"urgent_weekly_cap" json:"urgent_weekly_cap"`
	CategoryWeeklyCap int `yaml:"category_weekly_cap" json:"category_weekly_cap"`

	// Recency summary sizes
	RecentCategories   int `yaml:"recent_categories" json:"recent_categories"`
	RecentTiers        int `yaml:"recent_tiers" json:"recent_tiers"`
	RecentUrgencyFlags int `yaml:"recent_urgency_flags" json:"recent_urgency_flags"`

	// ExclusionWindowDays is how long a used caption stays out of the pool
	ExclusionWindowDays int `yaml:"exclusion_window_days" json:"exclusion_window_days"`

	// SegmentMultipliers maps segment label -> price tier -> multiplier.
	// Unlisted combinations default to 1.0.
	SegmentMultipliers map[string]map[string]float64 `yaml:"segment_multipliers" json:"segment_multipliers"`
}

// DefaultSelectorConfig returns the standard scoring constants
func DefaultSelectorConfig() SelectorConfig {
	return SelectorConfig{
		Version:             "v1",
		ThompsonWeight:      0.70,
		DiversityWeight:     0.15,
		HistoricalWeight:    0.15,
		BudgetWeight:        0.10,
		DiversityScale:      0.15,
		NoveltyBonus:        0.1,
		RepetitionPenalty:   -0.2,
		UrgentWeeklyCap:     5,
		CategoryWeeklyCap:   20,
		RecentCategories:    5,
		RecentTiers:         7,
		RecentUrgencyFlags:  3,
		ExclusionWindowDays: 7,
		SegmentMultipliers: map[string]map[string]float64{
			"price_insensitive": {
				"premium": 1.25,
				"bump":    1.25,
			},
		},
	}
}

// LoadSelectorConfig reads a YAML config file over the defaults.
// An empty path returns the defaults unchanged.
func LoadSelectorConfig(path string) (SelectorConfig, error) {
	cfg := DefaultSelectorConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read selector config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse selector config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid selector config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks the config for values that would corrupt scoring
func (c SelectorConfig) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("version must not be empty")
	}
	if c.ThompsonWeight < 0 || c.DiversityWeight < 0 || c.HistoricalWeight < 0 || c.BudgetWeight < 0 {
		return fmt.Errorf("score weights must be non-negative")
	}
	if c.UrgentWeeklyCap <= 0 || c.CategoryWeeklyCap <= 0 {
		return fmt.Errorf("weekly caps must be positive")
	}
	if c.ExclusionWindowDays <= 0 {
		return fmt.Errorf("exclusion window must be positive")
	}
	return nil
}

// multiplierFor returns the segment multiplier for a tier, defaulting to 1.0
func (c SelectorConfig) multiplierFor(segment, tier string) float64 {
	tiers, ok := c.SegmentMultipliers[segment]
	if !ok {
		return 1.0
	}
	if m, ok := tiers[tier]; ok {
		return m
	}
	return 1.0
}
