package stats

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"captionbandit/internal/alerts"
)

// stubOutcomes lets tests control both feedback windows directly
type stubOutcomes struct {
	values   map[string][]float64
	outcomes []DeliveryOutcome
}

func (s *stubOutcomes) ValuesByAudience(since time.Time) (map[string][]float64, error) {
	return s.values, nil
}

func (s *stubOutcomes) OutcomesSince(since time.Time) ([]DeliveryOutcome, error) {
	return s.outcomes, nil
}

// recordingSink captures alerts emitted during a run
type recordingSink struct {
	mu     sync.Mutex
	alerts []alerts.Alert
}

func (s *recordingSink) Alert(level alerts.Level, source, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alerts.Alert{Level: level, Source: source, Message: message})
}

func TestFeedbackUpdateJob_ClassifiesAgainstMedian(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db.Conn(), zerolog.Nop())

	now := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	source := &stubOutcomes{
		values: map[string][]float64{"aud-1": {1, 5, 9}},
		outcomes: []DeliveryOutcome{
			{AudienceID: "aud-1", CaptionID: "cap-1", ImpressionCount: 10, PurchaseCount: 1, Revenue: 10, OccurredAt: now.Add(-time.Hour)},
			{AudienceID: "aud-1", CaptionID: "cap-1", ImpressionCount: 10, PurchaseCount: 5, Revenue: 10, OccurredAt: now.Add(-2 * time.Hour)},
			{AudienceID: "aud-1", CaptionID: "cap-1", ImpressionCount: 10, PurchaseCount: 9, Revenue: 10, OccurredAt: now.Add(-3 * time.Hour)},
		},
	}

	job := NewFeedbackUpdateJob(source, repo, &recordingSink{}, zerolog.Nop())
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run())

	rec, err := repo.Get("cap-1", "aud-1")
	require.NoError(t, err)
	require.NotNil(t, rec)

	// Median value is 5: only the 0.9x10 outcome beats it
	assert.Equal(t, 1, rec.Successes)
	assert.Equal(t, 2, rec.Failures)
	assert.Equal(t, 3, rec.TotalObservations)
	assert.InDelta(t, 30, rec.TotalRevenue, 1e-9)
	assert.InDelta(t, 0.5, rec.AvgConversionRate, 1e-9) // 15 purchases / 30 impressions
}

func TestFeedbackUpdateJob_SkipsAudienceWithoutThreshold(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db.Conn(), zerolog.Nop())
	sink := &recordingSink{}

	now := time.Now().UTC()
	source := &stubOutcomes{
		values: map[string][]float64{"known": {2, 4}},
		outcomes: []DeliveryOutcome{
			{AudienceID: "known", CaptionID: "c1", ImpressionCount: 10, PurchaseCount: 8, Revenue: 10, OccurredAt: now},
			{AudienceID: "mystery", CaptionID: "c2", ImpressionCount: 10, PurchaseCount: 8, Revenue: 10, OccurredAt: now},
		},
	}

	job := NewFeedbackUpdateJob(source, repo, sink, zerolog.Nop())
	require.NoError(t, job.Run())

	// Known audience merged, mystery audience skipped with a warning
	rec, err := repo.Get("c1", "known")
	require.NoError(t, err)
	assert.NotNil(t, rec)

	skipped, err := repo.Get("c2", "mystery")
	require.NoError(t, err)
	assert.Nil(t, skipped)

	require.Len(t, sink.alerts, 1)
	assert.Equal(t, alerts.LevelWarning, sink.alerts[0].Level)
	assert.Equal(t, "feedback_update", sink.alerts[0].Source)
}

func TestFeedbackUpdateJob_EmptyWindowIsANoOp(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db.Conn(), zerolog.Nop())

	job := NewFeedbackUpdateJob(&stubOutcomes{values: map[string][]float64{}}, repo, &recordingSink{}, zerolog.Nop())
	assert.NoError(t, job.Run())
}

func TestFeedbackUpdateJob_ReadsFromOutcomeRepository(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db.Conn(), zerolog.Nop())
	outcomeRepo := NewOutcomeRepository(db.Conn(), zerolog.Nop())

	now := time.Now().UTC()
	rows := []DeliveryOutcome{
		{AudienceID: "a", CaptionID: "c1", SentCount: 100, ImpressionCount: 50, PurchaseCount: 10, Revenue: 20, OccurredAt: now.Add(-24 * time.Hour)},
		{AudienceID: "a", CaptionID: "c1", SentCount: 100, ImpressionCount: 50, PurchaseCount: 2, Revenue: 20, OccurredAt: now.Add(-48 * time.Hour)},
		// Ignored: no caption association
		{AudienceID: "a", CaptionID: "", ImpressionCount: 50, PurchaseCount: 40, Revenue: 99, OccurredAt: now.Add(-24 * time.Hour)},
	}
	for _, o := range rows {
		require.NoError(t, outcomeRepo.Record(o))
	}

	job := NewFeedbackUpdateJob(outcomeRepo, repo, &recordingSink{}, zerolog.Nop())
	require.NoError(t, job.Run())

	rec, err := repo.Get("c1", "a")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 2, rec.TotalObservations)
}

func TestDeliveryOutcome_Value(t *testing.T) {
	o := DeliveryOutcome{ImpressionCount: 10, PurchaseCount: 2, Revenue: 50}
	assert.InDelta(t, 10.0, o.Value(), 1e-9)

	zero := DeliveryOutcome{ImpressionCount: 0, PurchaseCount: 2, Revenue: 50}
	assert.Equal(t, 0.0, zero.Value())
}
