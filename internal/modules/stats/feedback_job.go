package stats

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"captionbandit/internal/alerts"
	"captionbandit/pkg/formulas"
)

const (
	// medianWindow is the trailing window used to compute the per-audience
	// success threshold
	medianWindow = 30 * 24 * time.Hour
	// rollupWindow is the trailing window of outcomes merged per run
	rollupWindow = 7 * 24 * time.Hour
)

// FeedbackUpdateJob reconciles recent delivery outcomes into the performance
// store. Runs on a fixed cadence (default every 6 hours) and is safe to re-run
// after a timeout: merging the same window twice only shifts averages, never
// corrupts counts, and the percentile re-rank is idempotent.
type FeedbackUpdateJob struct {
	outcomes  OutcomeSource
	repo      *Repository
	alertSink alerts.Sink
	log       zerolog.Logger
	now       func() time.Time
}

// NewFeedbackUpdateJob creates a new feedback update job
func NewFeedbackUpdateJob(outcomes OutcomeSource, repo *Repository, alertSink alerts.Sink, log zerolog.Logger) *FeedbackUpdateJob {
	return &FeedbackUpdateJob{
		outcomes:  outcomes,
		repo:      repo,
		alertSink: alertSink,
		log:       log.With().Str("job", "feedback_update").Logger(),
		now:       time.Now,
	}
}

// Name returns the job name for the scheduler
func (j *FeedbackUpdateJob) Name() string {
	return "feedback_update"
}

// Run executes one feedback cycle:
//  1. per-audience median outcome value over the trailing 30 days
//  2. rollup of the trailing 7 days grouped by (audience, caption), each
//     outcome classified as success (value above the median) or failure
//  3. atomic merge into the performance store, with bounds recomputed from
//     the merged totals and a full percentile re-rank per audience
//
// Audiences without qualifying data are skipped with a warning; the run
// continues for everyone else. Store errors abort the run.
func (j *FeedbackUpdateJob) Run() error {
	start := j.now()
	j.log.Info().Msg("Starting feedback update")

	medians, err := j.audienceMedians(start.Add(-medianWindow))
	if err != nil {
		return fmt.Errorf("failed to compute audience medians: %w", err)
	}

	outcomes, err := j.outcomes.OutcomesSince(start.Add(-rollupWindow))
	if err != nil {
		return fmt.Errorf("failed to read outcome window: %w", err)
	}

	rollups, skipped := j.buildRollups(outcomes, medians)

	for _, audienceID := range skipped {
		msg := fmt.Sprintf("no qualifying outcomes for audience %s, skipping", audienceID)
		j.log.Warn().Str("audience_id", audienceID).Msg("No qualifying outcomes, skipping audience")
		j.alertSink.Alert(alerts.LevelWarning, "feedback_update", msg)
	}

	if len(rollups) == 0 {
		j.log.Info().Msg("No outcome groups to merge")
		return nil
	}

	if err := j.repo.UpsertBatch(rollups); err != nil {
		return fmt.Errorf("failed to merge outcome rollups: %w", err)
	}

	j.log.Info().
		Int("groups", len(rollups)).
		Int("outcomes", len(outcomes)).
		Int("audiences_skipped", len(skipped)).
		Dur("elapsed", j.now().Sub(start)).
		Msg("Feedback update completed")

	return nil
}

// audienceMedians computes the median outcome value per audience
func (j *FeedbackUpdateJob) audienceMedians(since time.Time) (map[string]float64, error) {
	values, err := j.outcomes.ValuesByAudience(since)
	if err != nil {
		return nil, err
	}

	medians := make(map[string]float64, len(values))
	for audienceID, vals := range values {
		if len(vals) == 0 {
			continue
		}
		medians[audienceID] = formulas.Median(vals)
	}

	return medians, nil
}

// buildRollups groups outcomes by (audience, caption) and classifies each
// against its audience median. Returns the rollups plus the audiences that
// had outcomes but no median threshold.
func (j *FeedbackUpdateJob) buildRollups(outcomes []DeliveryOutcome, medians map[string]float64) ([]OutcomeRollup, []string) {
	type groupKey struct{ audienceID, captionID string }

	type group struct {
		rollup      OutcomeRollup
		impressions int
		purchases   int
		valueSum    float64
	}

	groups := make(map[groupKey]*group)
	skippedSet := make(map[string]struct{})

	for _, o := range outcomes {
		median, ok := medians[o.AudienceID]
		if !ok {
			skippedSet[o.AudienceID] = struct{}{}
			continue
		}

		key := groupKey{o.AudienceID, o.CaptionID}
		g, ok := groups[key]
		if !ok {
			g = &group{rollup: OutcomeRollup{AudienceID: o.AudienceID, CaptionID: o.CaptionID}}
			groups[key] = g
		}

		value := o.Value()
		if value > median {
			g.rollup.Successes++
		} else {
			g.rollup.Failures++
		}

		g.rollup.Observations++
		g.rollup.TotalRevenue += o.Revenue
		g.rollup.LastValue = value
		g.impressions += o.ImpressionCount
		g.purchases += o.PurchaseCount
		g.valueSum += value
	}

	rollups := make([]OutcomeRollup, 0, len(groups))
	for _, g := range groups {
		if g.impressions > 0 {
			g.rollup.ConversionRate = float64(g.purchases) / float64(g.impressions)
		}
		if g.rollup.Observations > 0 {
			g.rollup.AvgValue = g.valueSum / float64(g.rollup.Observations)
		}
		rollups = append(rollups, g.rollup)
	}

	// Deterministic merge order for reproducible runs
	sort.Slice(rollups, func(a, b int) bool {
		if rollups[a].AudienceID != rollups[b].AudienceID {
			return rollups[a].AudienceID < rollups[b].AudienceID
		}
		return rollups[a].CaptionID < rollups[b].CaptionID
	})

	skipped := make([]string, 0, len(skippedSet))
	for audienceID := range skippedSet {
		skipped = append(skipped, audienceID)
	}
	sort.Strings(skipped)

	return rollups, skipped
}
