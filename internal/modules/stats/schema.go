package stats

import "database/sql"

// StatsSchema defines the performance and outcome tables in stats.db
const StatsSchema = `
CREATE TABLE IF NOT EXISTS caption_performance (
    caption_id TEXT NOT NULL,
    audience_id TEXT NOT NULL,
    successes INTEGER NOT NULL DEFAULT 1,
    failures INTEGER NOT NULL DEFAULT 1,
    total_observations INTEGER NOT NULL DEFAULT 0,
    total_revenue REAL NOT NULL DEFAULT 0,
    avg_conversion_rate REAL NOT NULL DEFAULT 0,
    avg_value REAL NOT NULL DEFAULT 0,
    last_observed_value REAL NOT NULL DEFAULT 0,
    confidence_lower REAL NOT NULL DEFAULT 0,
    confidence_upper REAL NOT NULL DEFAULT 1,
    exploration_score REAL NOT NULL DEFAULT 1,
    last_used_at TEXT,
    last_updated_at TEXT NOT NULL,
    performance_percentile INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (caption_id, audience_id)
);

CREATE INDEX IF NOT EXISTS idx_performance_audience ON caption_performance(audience_id);

CREATE TABLE IF NOT EXISTS delivery_outcomes (
    id INTEGER PRIMARY KEY,
    audience_id TEXT NOT NULL,
    caption_id TEXT,
    sent_count INTEGER NOT NULL DEFAULT 0,
    impression_count INTEGER NOT NULL DEFAULT 0,
    purchase_count INTEGER NOT NULL DEFAULT 0,
    revenue REAL NOT NULL DEFAULT 0,
    occurred_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_outcomes_occurred ON delivery_outcomes(occurred_at);
CREATE INDEX IF NOT EXISTS idx_outcomes_audience ON delivery_outcomes(audience_id);
`

// InitSchema ensures the statistics tables exist
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(StatsSchema)
	return err
}
