package assignments

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"captionbandit/internal/modules/captions"
)

// MetadataProvider looks up caption text and tier at lock time
type MetadataProvider interface {
	GetMetadata(captionID string) (*captions.Metadata, error)
}

// UsageStamper records that a (caption, audience) pair was just scheduled.
// The performance store implements this to keep last_used_at current.
type UsageStamper interface {
	TouchLastUsed(captionID, audienceID string, usedAt time.Time) error
}

// Locker atomically reserves captions against a schedule. Reservations are
// idempotent on their deterministic key, so callers may retry a whole batch
// after a timeout without double-booking anything.
type Locker struct {
	repo     *Repository
	metadata MetadataProvider
	usage    UsageStamper
	log      zerolog.Logger
	now      func() time.Time
}

// NewLocker creates a new assignment locker
func NewLocker(repo *Repository, metadata MetadataProvider, usage UsageStamper, log zerolog.Logger) *Locker {
	return &Locker{
		repo:     repo,
		metadata: metadata,
		usage:    usage,
		log:      log.With().Str("component", "locker").Logger(),
		now:      time.Now,
	}
}

// Reserve locks the requested send slots for an audience. Slots blocked by
// the temporal exclusion window are counted in the result, not raised as
// errors; slots whose caption has no metadata are skipped the same way.
func (l *Locker) Reserve(scheduleID, audienceID string, requests []SlotRequest) (ReserveResult, error) {
	result := ReserveResult{ScheduleID: scheduleID, Requested: len(requests)}
	if len(requests) == 0 {
		return result, nil
	}

	now := l.now()
	today := now.UTC().Format(DateFormat)

	rows := make([]Assignment, 0, len(requests))
	for _, req := range requests {
		if _, err := time.Parse(DateFormat, req.ScheduledSendDate); err != nil {
			return result, fmt.Errorf("invalid send date %q: %w", req.ScheduledSendDate, err)
		}
		if req.ScheduledSendHour < 0 || req.ScheduledSendHour > 23 {
			return result, fmt.Errorf("invalid send hour %d for caption %s", req.ScheduledSendHour, req.CaptionID)
		}

		meta, err := l.metadata.GetMetadata(req.CaptionID)
		if err != nil {
			return result, fmt.Errorf("failed to look up caption %s: %w", req.CaptionID, err)
		}
		if meta == nil {
			l.log.Warn().Str("caption_id", req.CaptionID).Msg("Caption has no metadata, skipping slot")
			result.MissingItems++
			continue
		}

		rows = append(rows, Assignment{
			Key:               AssignmentKey(audienceID, req.CaptionID, req.ScheduledSendDate, req.ScheduledSendHour),
			ScheduleID:        scheduleID,
			AudienceID:        audienceID,
			CaptionID:         req.CaptionID,
			CaptionText:       meta.Text,
			PriceTier:         meta.PriceTier,
			AssignedDate:      today,
			ScheduledSendDate: req.ScheduledSendDate,
			ScheduledSendHour: req.ScheduledSendHour,
			AssignedAt:        now,
		})
	}

	outcome, err := l.repo.reserveBatch(rows)
	if err != nil {
		return result, fmt.Errorf("failed to reserve assignments: %w", err)
	}

	result.Inserted = outcome.inserted
	result.AlreadyPresent = outcome.alreadyPresent
	result.Blocked = outcome.blocked

	// Stamp usage only for rows that actually landed; retries and blocked
	// slots leave last_used_at alone. A stamping failure never unwinds a
	// reservation that is already committed.
	for _, a := range outcome.insertedRows {
		if err := l.usage.TouchLastUsed(a.CaptionID, a.AudienceID, now); err != nil {
			l.log.Warn().Err(err).
				Str("caption_id", a.CaptionID).
				Str("audience_id", a.AudienceID).
				Msg("Failed to stamp caption usage")
		}
	}

	if result.Partial() {
		l.log.Info().
			Str("schedule_id", scheduleID).
			Str("audience_id", audienceID).
			Int("requested", result.Requested).
			Int("inserted", result.Inserted).
			Int("blocked", result.Blocked).
			Int("missing_items", result.MissingItems).
			Msg("Reservation partially fulfilled, conflicts prevented double-booking")
	} else {
		l.log.Info().
			Str("schedule_id", scheduleID).
			Str("audience_id", audienceID).
			Int("inserted", result.Inserted).
			Msg("Reservation completed")
	}

	return result, nil
}
