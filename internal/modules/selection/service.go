package selection

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"captionbandit/internal/modules/assignments"
	"captionbandit/internal/modules/captions"
	"captionbandit/internal/modules/stats"
)

// PerformanceReader provides bandit statistics for scoring
type PerformanceReader interface {
	GetForAudience(audienceID string) ([]stats.PerformanceRecord, error)
}

// ThompsonSampler draws one stochastic score from observed counts
type ThompsonSampler interface {
	Sample(successes, failures int) (float64, error)
}

// EligibilityProvider returns the caption pool for an audience, already
// filtered for restrictions and content availability
type EligibilityProvider interface {
	EligiblePool(audienceID string) ([]captions.Caption, error)
}

// CaptionInfoProvider resolves caption ids to their category/urgency metadata
type CaptionInfoProvider interface {
	GetByIDs(ids []string) (map[string]captions.Caption, error)
}

// RecentAssignmentsReader provides the audience's recent active assignments
type RecentAssignmentsReader interface {
	RecentActiveSince(audienceID string, cutoff time.Time) ([]assignments.Assignment, error)
}

// Selector scores the eligible caption pool and picks the top captions per
// price tier. Read-only: a selection call never mutates any store.
type Selector struct {
	performance PerformanceReader
	sampler     ThompsonSampler
	eligibility EligibilityProvider
	captionInfo CaptionInfoProvider
	recent      RecentAssignmentsReader
	cfg         SelectorConfig
	log         zerolog.Logger
	now         func() time.Time
}

// NewSelector creates a new candidate selector
func NewSelector(
	performance PerformanceReader,
	sampler ThompsonSampler,
	eligibility EligibilityProvider,
	captionInfo CaptionInfoProvider,
	recent RecentAssignmentsReader,
	cfg SelectorConfig,
	log zerolog.Logger,
) *Selector {
	return &Selector{
		performance: performance,
		sampler:     sampler,
		eligibility: eligibility,
		captionInfo: captionInfo,
		recent:      recent,
		cfg:         cfg,
		log:         log.With().Str("component", "selector").Logger(),
		now:         time.Now,
	}
}

// Select scores and ranks the eligible pool for one audience and returns the
// top captions per price tier according to the requested quotas
func (s *Selector) Select(audienceID, segment string, quotas TierQuota) (*Result, error) {
	cutoff := s.now().Add(-time.Duration(s.cfg.ExclusionWindowDays) * 24 * time.Hour)

	recent, err := s.recent.RecentActiveSince(audienceID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent assignments: %w", err)
	}

	recentInfo, err := s.lookupRecentInfo(recent)
	if err != nil {
		return nil, err
	}

	summary := s.buildRecencySummary(recent, recentInfo)
	usage := buildUsageCounts(recent, recentInfo)

	usedIDs := make(map[string]struct{}, len(recent))
	for _, a := range recent {
		usedIDs[a.CaptionID] = struct{}{}
	}

	pool, err := s.eligibility.EligiblePool(audienceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load eligible pool: %w", err)
	}

	records, err := s.performance.GetForAudience(audienceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load performance records: %w", err)
	}
	recordsByID := make(map[string]stats.PerformanceRecord, len(records))
	for _, rec := range records {
		recordsByID[rec.CaptionID] = rec
	}

	var scored []CandidateScore
	excluded := 0
	for _, caption := range pool {
		if _, used := usedIDs[caption.ID]; used {
			continue
		}

		score, err := s.scoreCaption(caption, segment, summary, usage, recordsByID)
		if err != nil {
			return nil, err
		}

		if score.Excluded {
			excluded++
			continue
		}
		scored = append(scored, score)
	}

	result := &Result{
		AudienceID:    audienceID,
		Segment:       segment,
		ConfigVersion: s.cfg.Version,
		Recency:       summary,
		PoolSize:      len(pool),
		ExcludedCount: excluded,
		Tiers:         rankByTier(scored, quotas),
	}

	s.log.Debug().
		Str("audience_id", audienceID).
		Str("segment", segment).
		Int("pool", len(pool)).
		Int("excluded", excluded).
		Msg("Selection completed")

	return result, nil
}

// scoreCaption computes the full scoring breakdown for one caption
func (s *Selector) scoreCaption(
	caption captions.Caption,
	segment string,
	summary RecencySummary,
	usage usageCounts,
	recordsByID map[string]stats.PerformanceRecord,
) (CandidateScore, error) {
	// Uniform prior and historical-value fallback for captions without stats
	successes, failures := 1, 1
	historical := caption.HistoricalValue
	percentile := 0
	if rec, ok := recordsByID[caption.ID]; ok {
		successes, failures = rec.Successes, rec.Failures
		historical = rec.AvgValue
		percentile = rec.PerformancePercentile
	}

	budget := s.budgetPenalty(caption, usage)
	if budget <= -1.0 {
		return CandidateScore{CaptionID: caption.ID, Excluded: true}, nil
	}

	thompson, err := s.sampler.Sample(successes, failures)
	if err != nil {
		return CandidateScore{}, fmt.Errorf("failed to sample caption %s: %w", caption.ID, err)
	}

	diversity := s.diversityBonus(caption, summary)
	multiplier := s.cfg.multiplierFor(segment, string(caption.PriceTier))

	final := (s.cfg.ThompsonWeight*thompson +
		s.cfg.DiversityWeight*diversity +
		s.cfg.HistoricalWeight*(historical/100.0) +
		s.cfg.BudgetWeight*budget) * multiplier

	return CandidateScore{
		CaptionID:         caption.ID,
		Text:              caption.Text,
		PriceTier:         caption.PriceTier,
		Category:          caption.Category,
		IsUrgent:          caption.IsUrgent,
		Successes:         successes,
		Failures:          failures,
		ThompsonScore:     thompson,
		DiversityBonus:    diversity,
		HistoricalValue:   historical,
		BudgetPenalty:     budget,
		SegmentMultiplier: multiplier,
		FinalScore:        final,
		Percentile:        percentile,
	}, nil
}

// diversityBonus rewards novelty against the recency summary and penalizes
// repetition, scaled by the configured diversity weight
func (s *Selector) diversityBonus(caption captions.Caption, summary RecencySummary) float64 {
	categorySignal := s.cfg.NoveltyBonus
	for _, c := range summary.Categories {
		if c == caption.Category {
			categorySignal = s.cfg.RepetitionPenalty
			break
		}
	}

	tierSignal := s.cfg.NoveltyBonus
	for _, t := range summary.PriceTiers {
		if t == caption.PriceTier {
			tierSignal = s.cfg.RepetitionPenalty
			break
		}
	}

	return (categorySignal + tierSignal) * s.cfg.DiversityScale
}

// budgetPenalty derives the usage-budget penalty for a caption. Once a weekly
// cap is reached the caption is excluded outright (-1.0); approaching a cap
// earns graduated penalties.
func (s *Selector) budgetPenalty(caption captions.Caption, usage usageCounts) float64 {
	penalty := gradedPenalty(usage.perCategory[caption.Category], s.cfg.CategoryWeeklyCap)

	if caption.IsUrgent {
		urgentPenalty := gradedPenalty(usage.urgent, s.cfg.UrgentWeeklyCap)
		if urgentPenalty < penalty {
			penalty = urgentPenalty
		}
	}

	return penalty
}

// gradedPenalty maps cap utilization to a penalty tier
func gradedPenalty(count, limit int) float64 {
	if limit <= 0 {
		return 0.0
	}

	ratio := float64(count) / float64(limit)
	switch {
	case ratio >= 1.0:
		return -1.0
	case ratio >= 0.8:
		return -0.5
	case ratio >= 0.6:
		return -0.3
	case ratio >= 0.4:
		return -0.15
	default:
		return 0.0
	}
}

// usageCounts tallies the last week's sends per category and urgency
type usageCounts struct {
	perCategory map[string]int
	urgent      int
}

func buildUsageCounts(recent []assignments.Assignment, info map[string]captions.Caption) usageCounts {
	usage := usageCounts{perCategory: make(map[string]int)}
	for _, a := range recent {
		caption, ok := info[a.CaptionID]
		if !ok {
			continue
		}
		usage.perCategory[caption.Category]++
		if caption.IsUrgent {
			usage.urgent++
		}
	}
	return usage
}

// buildRecencySummary condenses recent assignments (newest first) into the
// bounded recency lists used for diversity scoring
func (s *Selector) buildRecencySummary(recent []assignments.Assignment, info map[string]captions.Caption) RecencySummary {
	summary := RecencySummary{}
	seenCategories := make(map[string]struct{})

	for _, a := range recent {
		if len(summary.PriceTiers) < s.cfg.RecentTiers {
			summary.PriceTiers = append(summary.PriceTiers, a.PriceTier)
		}

		caption, ok := info[a.CaptionID]
		if !ok {
			continue
		}

		if len(summary.Categories) < s.cfg.RecentCategories && caption.Category != "" {
			if _, seen := seenCategories[caption.Category]; !seen {
				seenCategories[caption.Category] = struct{}{}
				summary.Categories = append(summary.Categories, caption.Category)
			}
		}

		if len(summary.UrgencyFlags) < s.cfg.RecentUrgencyFlags {
			summary.UrgencyFlags = append(summary.UrgencyFlags, caption.IsUrgent)
		}
	}

	return summary
}

// lookupRecentInfo resolves the captions referenced by recent assignments
func (s *Selector) lookupRecentInfo(recent []assignments.Assignment) (map[string]captions.Caption, error) {
	if len(recent) == 0 {
		return map[string]captions.Caption{}, nil
	}

	seen := make(map[string]struct{}, len(recent))
	ids := make([]string, 0, len(recent))
	for _, a := range recent {
		if _, ok := seen[a.CaptionID]; !ok {
			seen[a.CaptionID] = struct{}{}
			ids = append(ids, a.CaptionID)
		}
	}

	info, err := s.captionInfo.GetByIDs(ids)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve recent captions: %w", err)
	}
	return info, nil
}

// rankByTier ranks candidates within each requested tier by final score and
// takes the top N per quota. Tiers with a thin pool come back under-fulfilled.
func rankByTier(scored []CandidateScore, quotas TierQuota) []TierSelection {
	byTier := make(map[captions.PriceTier][]CandidateScore)
	for _, c := range scored {
		byTier[c.PriceTier] = append(byTier[c.PriceTier], c)
	}

	tiers := make([]captions.PriceTier, 0, len(quotas))
	for tier := range quotas {
		tiers = append(tiers, tier)
	}
	sort.Slice(tiers, func(a, b int) bool { return tiers[a] < tiers[b] })

	out := make([]TierSelection, 0, len(tiers))
	for _, tier := range tiers {
		quota := quotas[tier]
		candidates := byTier[tier]

		sort.SliceStable(candidates, func(a, b int) bool {
			if candidates[a].FinalScore != candidates[b].FinalScore {
				return candidates[a].FinalScore > candidates[b].FinalScore
			}
			return candidates[a].CaptionID < candidates[b].CaptionID
		})

		if len(candidates) > quota {
			candidates = candidates[:quota]
		}

		out = append(out, TierSelection{
			Tier:      tier,
			Requested: quota,
			Selected:  candidates,
		})
	}

	return out
}
