// Package stats implements the per-(caption, audience) bandit statistics engine:
// the performance store, the Thompson sampler, and the periodic feedback updater
// that reconciles delivery outcomes into success/failure counts.
package stats

import "time"

// PerformanceRecord tracks observed outcomes for one caption with one audience.
// Created on the first observed outcome with a uniform prior (1 success,
// 1 failure); mutated only by the feedback updater; never deleted.
type PerformanceRecord struct {
	CaptionID             string     `json:"caption_id"`
	AudienceID            string     `json:"audience_id"`
	Successes             int        `json:"successes"`
	Failures              int        `json:"failures"`
	TotalObservations     int        `json:"total_observations"`
	TotalRevenue          float64    `json:"total_revenue"`
	AvgConversionRate     float64    `json:"avg_conversion_rate"`
	AvgValue              float64    `json:"avg_value"`
	LastObservedValue     float64    `json:"last_observed_value"`
	ConfidenceLower       float64    `json:"confidence_lower"`
	ConfidenceUpper       float64    `json:"confidence_upper"`
	ExplorationScore      float64    `json:"exploration_score"`
	LastUsedAt            *time.Time `json:"last_used_at,omitempty"`
	LastUpdatedAt         time.Time  `json:"last_updated_at"`
	PerformancePercentile int        `json:"performance_percentile"`
}

// OutcomeRollup is one (audience, caption) group of classified outcomes from a
// feedback window, ready to be merged into the performance store.
type OutcomeRollup struct {
	AudienceID     string
	CaptionID      string
	Successes      int
	Failures       int
	Observations   int
	ConversionRate float64
	AvgValue       float64
	LastValue      float64
	TotalRevenue   float64
}

// DeliveryOutcome is one observed delivery result from the outcome source.
// Rows without a caption association or with zero impressions are ignored
// upstream and never reach the updater.
type DeliveryOutcome struct {
	AudienceID      string
	CaptionID       string
	SentCount       int
	ImpressionCount int
	PurchaseCount   int
	Revenue         float64
	OccurredAt      time.Time
}

// Value is the observed value of the outcome: purchase rate times revenue.
// This is what gets compared against the audience median to classify the
// outcome as a success or a failure.
func (o DeliveryOutcome) Value() float64 {
	if o.ImpressionCount == 0 {
		return 0
	}
	purchaseRate := float64(o.PurchaseCount) / float64(o.ImpressionCount)
	return purchaseRate * o.Revenue
}
