package assignments

import "database/sql"

// AssignmentsSchema defines the reservation table in assignments.db
const AssignmentsSchema = `
CREATE TABLE IF NOT EXISTS caption_assignments (
    assignment_key TEXT PRIMARY KEY,
    schedule_id TEXT NOT NULL,
    audience_id TEXT NOT NULL,
    caption_id TEXT NOT NULL,
    caption_text TEXT NOT NULL DEFAULT '',
    price_tier TEXT NOT NULL DEFAULT '',
    assigned_date TEXT NOT NULL,
    scheduled_send_date TEXT NOT NULL,
    scheduled_send_hour INTEGER NOT NULL,
    is_active INTEGER NOT NULL DEFAULT 1,
    assigned_at TEXT NOT NULL,
    deactivated_at TEXT,
    deactivation_reason TEXT
);

CREATE INDEX IF NOT EXISTS idx_assignments_active
    ON caption_assignments(is_active, scheduled_send_date);
CREATE INDEX IF NOT EXISTS idx_assignments_audience
    ON caption_assignments(audience_id, is_active);
CREATE INDEX IF NOT EXISTS idx_assignments_caption
    ON caption_assignments(caption_id, audience_id, is_active);
`

// InitSchema ensures the assignments table exists
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(AssignmentsSchema)
	return err
}
