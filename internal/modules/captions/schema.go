package captions

import "database/sql"

// CaptionsSchema defines the caption pool table in stats.db
const CaptionsSchema = `
CREATE TABLE IF NOT EXISTS captions (
    caption_id TEXT PRIMARY KEY,
    text TEXT NOT NULL,
    price_tier TEXT NOT NULL,
    category TEXT NOT NULL DEFAULT '',
    is_urgent INTEGER NOT NULL DEFAULT 0,
    historical_value REAL NOT NULL DEFAULT 0,
    is_active INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_captions_tier ON captions(price_tier);
`

// InitSchema ensures the captions table exists
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(CaptionsSchema)
	return err
}
