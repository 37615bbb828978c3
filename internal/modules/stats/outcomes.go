package stats

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// OutcomeSource provides delivery outcomes for the feedback updater.
// Implementations must already exclude rows without a caption association
// and rows with zero impressions.
type OutcomeSource interface {
	// ValuesByAudience returns, per audience, the observed values
	// (purchase rate x revenue) of all qualifying outcomes since the cutoff.
	ValuesByAudience(since time.Time) (map[string][]float64, error)
	// OutcomesSince returns all qualifying outcomes since the cutoff,
	// oldest first.
	OutcomesSince(since time.Time) ([]DeliveryOutcome, error)
}

// OutcomeRepository reads delivery outcomes from the delivery_outcomes table
type OutcomeRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewOutcomeRepository creates a new outcome repository
func NewOutcomeRepository(db *sql.DB, log zerolog.Logger) *OutcomeRepository {
	return &OutcomeRepository{
		db:  db,
		log: log.With().Str("repo", "outcomes").Logger(),
	}
}

// ValuesByAudience implements OutcomeSource
func (r *OutcomeRepository) ValuesByAudience(since time.Time) (map[string][]float64, error) {
	rows, err := r.db.Query(`SELECT audience_id, impression_count, purchase_count, revenue
		FROM delivery_outcomes
		WHERE occurred_at >= ? AND caption_id IS NOT NULL AND impression_count > 0`,
		since.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to query outcome values: %w", err)
	}
	defer rows.Close()

	values := make(map[string][]float64)
	for rows.Next() {
		var audienceID string
		var impressions, purchases int
		var revenue float64
		if err := rows.Scan(&audienceID, &impressions, &purchases, &revenue); err != nil {
			return nil, fmt.Errorf("failed to scan outcome value: %w", err)
		}
		value := float64(purchases) / float64(impressions) * revenue
		values[audienceID] = append(values[audienceID], value)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outcome values: %w", err)
	}

	return values, nil
}

// OutcomesSince implements OutcomeSource
func (r *OutcomeRepository) OutcomesSince(since time.Time) ([]DeliveryOutcome, error) {
	rows, err := r.db.Query(`SELECT audience_id, caption_id, sent_count, impression_count, purchase_count, revenue, occurred_at
		FROM delivery_outcomes
		WHERE occurred_at >= ? AND caption_id IS NOT NULL AND impression_count > 0
		ORDER BY occurred_at ASC`,
		since.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []DeliveryOutcome
	for rows.Next() {
		var o DeliveryOutcome
		var occurredAt string
		if err := rows.Scan(&o.AudienceID, &o.CaptionID, &o.SentCount, &o.ImpressionCount,
			&o.PurchaseCount, &o.Revenue, &occurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, occurredAt); err == nil {
			o.OccurredAt = t
		}
		outcomes = append(outcomes, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outcomes: %w", err)
	}

	return outcomes, nil
}

// Record appends a delivery outcome. Used by tests and by the surrounding
// ingestion system.
func (r *OutcomeRepository) Record(o DeliveryOutcome) error {
	var captionID interface{}
	if o.CaptionID != "" {
		captionID = o.CaptionID
	}

	_, err := r.db.Exec(`INSERT INTO delivery_outcomes
		(audience_id, caption_id, sent_count, impression_count, purchase_count, revenue, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		o.AudienceID, captionID, o.SentCount, o.ImpressionCount, o.PurchaseCount, o.Revenue,
		o.OccurredAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to record outcome: %w", err)
	}
	return nil
}
