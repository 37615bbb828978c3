package captions

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
)

// Repository handles caption pool database operations.
// It serves as both the eligibility provider (pool queries, already filtered
// for availability) and the item metadata provider (lock-time lookups).
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new caption repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "captions").Logger(),
	}
}

// EligiblePool returns all currently-active captions.
// Policy restrictions and content availability are already reflected in the
// is_active flag, which the surrounding system maintains.
func (r *Repository) EligiblePool(audienceID string) ([]Caption, error) {
	rows, err := r.db.Query(`SELECT caption_id, text, price_tier, category, is_urgent, historical_value, is_active
		FROM captions WHERE is_active = 1`)
	if err != nil {
		return nil, fmt.Errorf("failed to query eligible captions: %w", err)
	}
	defer rows.Close()

	var pool []Caption
	for rows.Next() {
		var c Caption
		if err := rows.Scan(&c.ID, &c.Text, &c.PriceTier, &c.Category, &c.IsUrgent, &c.HistoricalValue, &c.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan caption: %w", err)
		}
		pool = append(pool, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating captions: %w", err)
	}

	return pool, nil
}

// GetMetadata returns lock-time metadata for a caption
func (r *Repository) GetMetadata(captionID string) (*Metadata, error) {
	var m Metadata
	err := r.db.QueryRow(`SELECT caption_id, text, price_tier FROM captions WHERE caption_id = ?`, captionID).
		Scan(&m.ID, &m.Text, &m.PriceTier)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query caption %s: %w", captionID, err)
	}
	return &m, nil
}

// Upsert inserts or replaces a caption in the pool
func (r *Repository) Upsert(c Caption) error {
	_, err := r.db.Exec(`INSERT INTO captions
		(caption_id, text, price_tier, category, is_urgent, historical_value, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(caption_id) DO UPDATE SET
			text = excluded.text,
			price_tier = excluded.price_tier,
			category = excluded.category,
			is_urgent = excluded.is_urgent,
			historical_value = excluded.historical_value,
			is_active = excluded.is_active`,
		c.ID, c.Text, c.PriceTier, c.Category, boolToInt(c.IsUrgent), c.HistoricalValue, boolToInt(c.IsActive))
	if err != nil {
		return fmt.Errorf("failed to upsert caption %s: %w", c.ID, err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// GetByIDs returns the captions with the given ids, keyed by id.
// Inactive captions are included; recency summaries need them too.
func (r *Repository) GetByIDs(ids []string) (map[string]Caption, error) {
	out := make(map[string]Caption, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	placeholders := make([]byte, 0, len(ids)*2)
	args := make([]interface{}, 0, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args = append(args, id)
	}

	query := fmt.Sprintf(`SELECT caption_id, text, price_tier, category, is_urgent, historical_value, is_active
		FROM captions WHERE caption_id IN (%s)`, placeholders)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query captions by id: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c Caption
		if err := rows.Scan(&c.ID, &c.Text, &c.PriceTier, &c.Category, &c.IsUrgent, &c.HistoricalValue, &c.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan caption: %w", err)
		}
		out[c.ID] = c
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating captions: %w", err)
	}

	return out, nil
}
