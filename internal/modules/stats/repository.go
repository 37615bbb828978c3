package stats

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"captionbandit/internal/database"
	"captionbandit/pkg/formulas"
)

// Repository is the system of record for caption performance statistics
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
	now func() time.Time
}

// NewRepository creates a new performance repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "performance").Logger(),
		now: time.Now,
	}
}

// Get returns the performance record for one (caption, audience) pair,
// or nil when no outcomes have been observed yet
func (r *Repository) Get(captionID, audienceID string) (*PerformanceRecord, error) {
	row := r.db.QueryRow(selectColumns+` FROM caption_performance
		WHERE caption_id = ? AND audience_id = ?`, captionID, audienceID)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get performance record: %w", err)
	}
	return rec, nil
}

// GetForAudience returns all performance records for an audience
func (r *Repository) GetForAudience(audienceID string) ([]PerformanceRecord, error) {
	rows, err := r.db.Query(selectColumns+` FROM caption_performance
		WHERE audience_id = ? ORDER BY avg_value DESC`, audienceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query performance records: %w", err)
	}
	defer rows.Close()

	var records []PerformanceRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan performance record: %w", err)
		}
		records = append(records, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating performance records: %w", err)
	}

	return records, nil
}

// UpsertBatch atomically merges a batch of outcome rollups into the store.
// Existing records accumulate the new counts and get their confidence bounds
// recomputed from the merged totals; absent records start from the uniform
// prior (1 success, 1 failure) plus the new counts. After the merge every
// audience touched by the batch gets a full percentile re-rank by avg_value.
func (r *Repository) UpsertBatch(rollups []OutcomeRollup) error {
	if len(rollups) == 0 {
		return nil
	}

	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		audiences := make(map[string]struct{})

		for _, rollup := range rollups {
			if err := r.mergeRollup(tx, rollup); err != nil {
				return err
			}
			audiences[rollup.AudienceID] = struct{}{}
		}

		for audienceID := range audiences {
			if err := recomputePercentiles(tx, audienceID); err != nil {
				return err
			}
		}

		return nil
	})
}

// mergeRollup merges one rollup into its performance record inside a transaction
func (r *Repository) mergeRollup(tx *sql.Tx, rollup OutcomeRollup) error {
	var (
		successes, failures, observations int
		totalRevenue, avgConv, avgValue   float64
	)

	exists := true
	err := tx.QueryRow(`SELECT successes, failures, total_observations, total_revenue,
		avg_conversion_rate, avg_value
		FROM caption_performance WHERE caption_id = ? AND audience_id = ?`,
		rollup.CaptionID, rollup.AudienceID).
		Scan(&successes, &failures, &observations, &totalRevenue, &avgConv, &avgValue)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to read performance record for merge: %w", err)
	}
	if err == sql.ErrNoRows {
		exists = false
	}

	var newSuccesses, newFailures int
	if exists {
		newSuccesses = successes + rollup.Successes
		newFailures = failures + rollup.Failures
	} else {
		// New pairs start from the uniform prior: counts floored at (1, 1),
		// so a single first success lands the record at exactly 1/1
		newSuccesses = maxInt(1, rollup.Successes)
		newFailures = maxInt(1, rollup.Failures)
	}
	newObservations := observations + rollup.Observations
	newRevenue := totalRevenue + rollup.TotalRevenue

	// Observation-weighted blend of the running averages
	newAvgConv := rollup.ConversionRate
	newAvgValue := rollup.AvgValue
	if newObservations > 0 {
		newAvgConv = (avgConv*float64(observations) + rollup.ConversionRate*float64(rollup.Observations)) / float64(newObservations)
		newAvgValue = (avgValue*float64(observations) + rollup.AvgValue*float64(rollup.Observations)) / float64(newObservations)
	}

	iv, err := formulas.WilsonInterval(newSuccesses, newFailures)
	if err != nil {
		return fmt.Errorf("failed to compute bounds for %s/%s: %w", rollup.CaptionID, rollup.AudienceID, err)
	}

	updatedAt := r.now().UTC().Format(time.RFC3339)

	if exists {
		_, err = tx.Exec(`UPDATE caption_performance SET
			successes = ?, failures = ?, total_observations = ?, total_revenue = ?,
			avg_conversion_rate = ?, avg_value = ?, last_observed_value = ?,
			confidence_lower = ?, confidence_upper = ?, exploration_score = ?,
			last_updated_at = ?
			WHERE caption_id = ? AND audience_id = ?`,
			newSuccesses, newFailures, newObservations, newRevenue,
			newAvgConv, newAvgValue, rollup.LastValue,
			iv.LowerBound, iv.UpperBound, iv.ExplorationBonus,
			updatedAt, rollup.CaptionID, rollup.AudienceID)
	} else {
		_, err = tx.Exec(`INSERT INTO caption_performance
			(caption_id, audience_id, successes, failures, total_observations, total_revenue,
			 avg_conversion_rate, avg_value, last_observed_value,
			 confidence_lower, confidence_upper, exploration_score, last_updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rollup.CaptionID, rollup.AudienceID, newSuccesses, newFailures, newObservations, newRevenue,
			newAvgConv, newAvgValue, rollup.LastValue,
			iv.LowerBound, iv.UpperBound, iv.ExplorationBonus, updatedAt)
	}
	if err != nil {
		return fmt.Errorf("failed to merge performance record %s/%s: %w", rollup.CaptionID, rollup.AudienceID, err)
	}

	return nil
}

// recomputePercentiles re-ranks every record of one audience by avg_value.
// 0 = worst performer, 100 = best. A single record ranks 100.
func recomputePercentiles(tx *sql.Tx, audienceID string) error {
	rows, err := tx.Query(`SELECT caption_id FROM caption_performance
		WHERE audience_id = ? ORDER BY avg_value ASC`, audienceID)
	if err != nil {
		return fmt.Errorf("failed to query records for re-rank: %w", err)
	}

	var captionIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan caption id for re-rank: %w", err)
		}
		captionIDs = append(captionIDs, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("error iterating records for re-rank: %w", err)
	}
	rows.Close()

	n := len(captionIDs)
	for i, captionID := range captionIDs {
		percentile := 100
		if n > 1 {
			percentile = int(math.Round(float64(i) / float64(n-1) * 100))
		}
		if _, err := tx.Exec(`UPDATE caption_performance SET performance_percentile = ?
			WHERE caption_id = ? AND audience_id = ?`, percentile, captionID, audienceID); err != nil {
			return fmt.Errorf("failed to update percentile for %s: %w", captionID, err)
		}
	}

	return nil
}

// TouchLastUsed stamps last_used_at for a pair that was just scheduled
func (r *Repository) TouchLastUsed(captionID, audienceID string, usedAt time.Time) error {
	_, err := r.db.Exec(`UPDATE caption_performance SET last_used_at = ?
		WHERE caption_id = ? AND audience_id = ?`,
		usedAt.UTC().Format(time.RFC3339), captionID, audienceID)
	if err != nil {
		return fmt.Errorf("failed to touch last_used_at for %s/%s: %w", captionID, audienceID, err)
	}
	return nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

const selectColumns = `SELECT caption_id, audience_id, successes, failures,
	total_observations, total_revenue, avg_conversion_rate, avg_value,
	last_observed_value, confidence_lower, confidence_upper, exploration_score,
	last_used_at, last_updated_at, performance_percentile`

// rowScanner covers both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*PerformanceRecord, error) {
	var rec PerformanceRecord
	var lastUsed sql.NullString
	var lastUpdated string

	err := row.Scan(&rec.CaptionID, &rec.AudienceID, &rec.Successes, &rec.Failures,
		&rec.TotalObservations, &rec.TotalRevenue, &rec.AvgConversionRate, &rec.AvgValue,
		&rec.LastObservedValue, &rec.ConfidenceLower, &rec.ConfidenceUpper, &rec.ExplorationScore,
		&lastUsed, &lastUpdated, &rec.PerformancePercentile)
	if err != nil {
		return nil, err
	}

	if lastUsed.Valid {
		if t, err := time.Parse(time.RFC3339, lastUsed.String); err == nil {
			rec.LastUsedAt = &t
		}
	}
	if t, err := time.Parse(time.RFC3339, lastUpdated); err == nil {
		rec.LastUpdatedAt = t
	}

	return &rec, nil
}
