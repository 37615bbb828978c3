// Package assignments implements the reservation ledger that guarantees a
// caption is never double-booked for an audience across overlapping send
// windows. Reservations are idempotent on a deterministic key and are only
// ever deactivated, never deleted.
package assignments

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"captionbandit/internal/modules/captions"
)

// DeactivationReason explains why the sweeper retired an assignment
type DeactivationReason string

const (
	// ReasonStale - scheduled send date more than 7 days in the past
	ReasonStale DeactivationReason = "STALE_7DAY"
	// ReasonPastSendDate - scheduled send date has already passed
	ReasonPastSendDate DeactivationReason = "PAST_SEND_DATE"
)

// DateFormat is the storage format for send dates
const DateFormat = "2006-01-02"

// Assignment reserves one caption for one audience at one send slot
type Assignment struct {
	Key                string             `json:"key"`
	ScheduleID         string             `json:"schedule_id"`
	AudienceID         string             `json:"audience_id"`
	CaptionID          string             `json:"caption_id"`
	CaptionText        string             `json:"caption_text"`
	PriceTier          captions.PriceTier `json:"price_tier"`
	AssignedDate       string             `json:"assigned_date"`
	ScheduledSendDate  string             `json:"scheduled_send_date"`
	ScheduledSendHour  int                `json:"scheduled_send_hour"`
	IsActive           bool               `json:"is_active"`
	AssignedAt         time.Time          `json:"assigned_at"`
	DeactivatedAt      *time.Time         `json:"deactivated_at,omitempty"`
	DeactivationReason DeactivationReason `json:"deactivation_reason,omitempty"`
}

// AssignmentKey derives the deterministic idempotency key for a reservation.
// The key is a pure function of (audience, caption, send date, send hour);
// changing its composition is a breaking change requiring migration.
func AssignmentKey(audienceID, captionID, sendDate string, sendHour int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%d", audienceID, captionID, sendDate, sendHour)))
	return hex.EncodeToString(sum[:])
}

// SlotRequest is one requested reservation tuple
type SlotRequest struct {
	CaptionID         string `json:"caption_id"`
	ScheduledSendDate string `json:"scheduled_send_date"`
	ScheduledSendHour int    `json:"scheduled_send_hour"`
}

// ReserveResult reports the outcome of a reservation batch. Inserting fewer
// rows than requested is an expected effect of conflict prevention, not an
// error.
type ReserveResult struct {
	ScheduleID     string `json:"schedule_id"`
	Requested      int    `json:"requested"`
	Inserted       int    `json:"inserted"`
	AlreadyPresent int    `json:"already_present"`
	Blocked        int    `json:"blocked"`
	MissingItems   int    `json:"missing_items"`
}

// Partial reports whether conflict prevention blocked part of the batch
func (r ReserveResult) Partial() bool {
	return r.Blocked > 0 || r.MissingItems > 0
}
