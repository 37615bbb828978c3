package selection

import (
	"captionbandit/internal/modules/captions"
)

// TierQuota maps price tier to the number of captions requested for it
type TierQuota map[captions.PriceTier]int

// RecencySummary captures what was recently sent to an audience, for
// diversity scoring. Empty on cold start.
type RecencySummary struct {
	Categories   []string             `json:"categories"`    // most recent distinct, newest first
	PriceTiers   []captions.PriceTier `json:"price_tiers"`   // most recent, newest first
	UrgencyFlags []bool               `json:"urgency_flags"` // most recent, newest first
}

// CandidateScore is the full scoring breakdown for one caption. Transient:
// derived per selection call, never persisted.
type CandidateScore struct {
	CaptionID         string             `json:"caption_id"`
	Text              string             `json:"text"`
	PriceTier         captions.PriceTier `json:"price_tier"`
	Category          string             `json:"category"`
	IsUrgent          bool               `json:"is_urgent"`
	Successes         int                `json:"successes"`
	Failures          int                `json:"failures"`
	ThompsonScore     float64            `json:"thompson_score"`
	DiversityBonus    float64            `json:"diversity_bonus"`
	HistoricalValue   float64            `json:"historical_value"`
	BudgetPenalty     float64            `json:"budget_penalty"`
	SegmentMultiplier float64            `json:"segment_multiplier"`
	FinalScore        float64            `json:"final_score"`
	Excluded          bool               `json:"excluded"`
	Percentile        int                `json:"percentile"`
}

// TierSelection is the ranked pick list for one price tier. Selected may hold
// fewer captions than requested when the eligible pool runs dry; that is an
// under-fulfilled result, not an error.
type TierSelection struct {
	Tier      captions.PriceTier `json:"tier"`
	Requested int                `json:"requested"`
	Selected  []CandidateScore   `json:"selected"`
}

// Result is the outcome of one selection call
type Result struct {
	AudienceID    string          `json:"audience_id"`
	Segment       string          `json:"segment"`
	ConfigVersion string          `json:"config_version"`
	Recency       RecencySummary  `json:"recency"`
	Tiers         []TierSelection `json:"tiers"`
	PoolSize      int             `json:"pool_size"`
	ExcludedCount int             `json:"excluded_count"`
}
