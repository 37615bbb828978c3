package assignments

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"captionbandit/internal/database"
)

// exclusionWindowDays is the span during which one caption cannot be
// reserved twice for the same audience
const exclusionWindowDays = 7

// Repository handles assignment database operations
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new assignment repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "assignments").Logger(),
	}
}

// batchOutcome is the tally of one reservation transaction. insertedRows
// holds the assignments that actually landed, for post-reserve bookkeeping.
type batchOutcome struct {
	inserted       int
	alreadyPresent int
	blocked        int
	insertedRows   []Assignment
}

// reserveBatch inserts the given assignments inside one transaction. Each row
// is inserted by a single conditional statement that checks the temporal
// exclusion window as part of the insert itself, so concurrent callers racing
// for the same caption can never both succeed.
func (r *Repository) reserveBatch(rows []Assignment) (batchOutcome, error) {
	var outcome batchOutcome

	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		for _, a := range rows {
			var exists int
			err := tx.QueryRow(`SELECT COUNT(*) FROM caption_assignments WHERE assignment_key = ?`, a.Key).
				Scan(&exists)
			if err != nil {
				return fmt.Errorf("failed to check assignment key: %w", err)
			}
			if exists > 0 {
				// Idempotent retry of an earlier request
				outcome.alreadyPresent++
				continue
			}

			res, err := tx.Exec(`INSERT OR IGNORE INTO caption_assignments
				(assignment_key, schedule_id, audience_id, caption_id, caption_text, price_tier,
				 assigned_date, scheduled_send_date, scheduled_send_hour, is_active, assigned_at)
				SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?
				WHERE NOT EXISTS (
					SELECT 1 FROM caption_assignments
					WHERE caption_id = ?
					  AND audience_id = ?
					  AND is_active = 1
					  AND ABS(julianday(scheduled_send_date) - julianday(?)) <= ?
				)`,
				a.Key, a.ScheduleID, a.AudienceID, a.CaptionID, a.CaptionText, string(a.PriceTier),
				a.AssignedDate, a.ScheduledSendDate, a.ScheduledSendHour,
				a.AssignedAt.UTC().Format(time.RFC3339),
				a.CaptionID, a.AudienceID, a.ScheduledSendDate, exclusionWindowDays)
			if err != nil {
				return fmt.Errorf("failed to insert assignment %s: %w", a.Key, err)
			}

			affected, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to read rows affected: %w", err)
			}

			if affected == 1 {
				outcome.inserted++
				outcome.insertedRows = append(outcome.insertedRows, a)
			} else {
				outcome.blocked++
			}
		}
		return nil
	})
	if err != nil {
		return batchOutcome{}, err
	}

	return outcome, nil
}

// RecentActiveSince returns active assignments for an audience with a
// scheduled send date on or after the cutoff, most recent first
func (r *Repository) RecentActiveSince(audienceID string, cutoff time.Time) ([]Assignment, error) {
	rows, err := r.db.Query(`SELECT assignment_key, schedule_id, audience_id, caption_id,
		caption_text, price_tier, assigned_date, scheduled_send_date, scheduled_send_hour,
		is_active, assigned_at, deactivated_at, deactivation_reason
		FROM caption_assignments
		WHERE audience_id = ? AND is_active = 1 AND scheduled_send_date >= ?
		ORDER BY scheduled_send_date DESC, scheduled_send_hour DESC`,
		audienceID, cutoff.UTC().Format(DateFormat))
	if err != nil {
		return nil, fmt.Errorf("failed to query recent assignments: %w", err)
	}
	defer rows.Close()

	var out []Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		out = append(out, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assignments: %w", err)
	}

	return out, nil
}

// Get returns the assignment with the given key, or nil
func (r *Repository) Get(key string) (*Assignment, error) {
	row := r.db.QueryRow(`SELECT assignment_key, schedule_id, audience_id, caption_id,
		caption_text, price_tier, assigned_date, scheduled_send_date, scheduled_send_hour,
		is_active, assigned_at, deactivated_at, deactivation_reason
		FROM caption_assignments WHERE assignment_key = ?`, key)

	a, err := scanAssignment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return a, nil
}

// ActiveCount returns the number of currently active assignments
func (r *Repository) ActiveCount() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM caption_assignments WHERE is_active = 1`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active assignments: %w", err)
	}
	return count, nil
}

// DeactivateStale retires active assignments whose send date is more than the
// exclusion window in the past. Returns the number of rows deactivated.
func (r *Repository) DeactivateStale(today time.Time) (int, error) {
	return r.deactivate(
		`is_active = 1 AND julianday(?) - julianday(scheduled_send_date) > ?`,
		ReasonStale, today,
		today.UTC().Format(DateFormat), exclusionWindowDays)
}

// DeactivatePastDue retires active assignments whose send date has already
// passed. Returns the number of rows deactivated.
func (r *Repository) DeactivatePastDue(today time.Time) (int, error) {
	return r.deactivate(
		`is_active = 1 AND scheduled_send_date < ?`,
		ReasonPastSendDate, today,
		today.UTC().Format(DateFormat))
}

func (r *Repository) deactivate(where string, reason DeactivationReason, now time.Time, args ...interface{}) (int, error) {
	query := fmt.Sprintf(`UPDATE caption_assignments
		SET is_active = 0, deactivated_at = ?, deactivation_reason = ?
		WHERE %s`, where)

	allArgs := append([]interface{}{now.UTC().Format(time.RFC3339), string(reason)}, args...)
	res, err := r.db.Exec(query, allArgs...)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate assignments (%s): %w", reason, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return int(affected), nil
}

func scanAssignment(row interface{ Scan(...interface{}) error }) (*Assignment, error) {
	var a Assignment
	var assignedAt string
	var deactivatedAt, reason sql.NullString

	err := row.Scan(&a.Key, &a.ScheduleID, &a.AudienceID, &a.CaptionID,
		&a.CaptionText, &a.PriceTier, &a.AssignedDate, &a.ScheduledSendDate, &a.ScheduledSendHour,
		&a.IsActive, &assignedAt, &deactivatedAt, &reason)
	if err != nil {
		return nil, err
	}

	if t, err := time.Parse(time.RFC3339, assignedAt); err == nil {
		a.AssignedAt = t
	}
	if deactivatedAt.Valid {
		if t, err := time.Parse(time.RFC3339, deactivatedAt.String); err == nil {
			a.DeactivatedAt = &t
		}
	}
	if reason.Valid {
		a.DeactivationReason = DeactivationReason(reason.String)
	}

	return &a, nil
}
