// Package captions manages the pool of schedulable caption items.
package captions

// PriceTier buckets captions by price point for quota-based selection
type PriceTier string

const (
	TierBudget  PriceTier = "budget"
	TierMid     PriceTier = "mid"
	TierPremium PriceTier = "premium"
	TierBump    PriceTier = "bump"
)

// Caption is a schedulable message unit
type Caption struct {
	ID              string    `json:"id"`
	Text            string    `json:"text"`
	PriceTier       PriceTier `json:"price_tier"`
	Category        string    `json:"category"`
	IsUrgent        bool      `json:"is_urgent"`
	HistoricalValue float64   `json:"historical_value"`
	IsActive        bool      `json:"is_active"`
}

// Metadata is the subset of caption fields needed at lock time
type Metadata struct {
	ID        string
	Text      string
	PriceTier PriceTier
}
