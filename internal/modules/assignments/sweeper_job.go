package assignments

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"captionbandit/internal/alerts"
)

// SweeperConfig holds the operational thresholds of the lock sweeper
type SweeperConfig struct {
	CleanupAlertThreshold int // cleanup volume per run that triggers an alert
	ActiveWarnThreshold   int // active assignment count warning level
	ActiveCritThreshold   int // active assignment count critical level
}

// DefaultSweeperConfig returns the standard sweeper thresholds
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		CleanupAlertThreshold: 1000,
		ActiveWarnThreshold:   5000,
		ActiveCritThreshold:   10000,
	}
}

// SweeperJob retires assignments whose send dates have passed. Runs hourly.
// High cleanup volume or active-count bloat signals an upstream cadence or
// capacity problem, so the job alerts on both without failing itself.
type SweeperJob struct {
	repo      *Repository
	alertSink alerts.Sink
	cfg       SweeperConfig
	log       zerolog.Logger
	now       func() time.Time
}

// NewSweeperJob creates a new lock sweeper job
func NewSweeperJob(repo *Repository, alertSink alerts.Sink, cfg SweeperConfig, log zerolog.Logger) *SweeperJob {
	return &SweeperJob{
		repo:      repo,
		alertSink: alertSink,
		cfg:       cfg,
		log:       log.With().Str("job", "lock_sweeper").Logger(),
		now:       time.Now,
	}
}

// Name returns the job name for the scheduler
func (j *SweeperJob) Name() string {
	return "lock_sweeper"
}

// Run executes one sweep: stale assignments first (send date more than 7 days
// past), then anything else already past its send date
func (j *SweeperJob) Run() error {
	today := j.now()

	stale, err := j.repo.DeactivateStale(today)
	if err != nil {
		return fmt.Errorf("failed to deactivate stale assignments: %w", err)
	}

	pastDue, err := j.repo.DeactivatePastDue(today)
	if err != nil {
		return fmt.Errorf("failed to deactivate past-due assignments: %w", err)
	}

	cleaned := stale + pastDue
	j.log.Info().
		Int("stale", stale).
		Int("past_due", pastDue).
		Msg("Lock sweep completed")

	if cleaned > j.cfg.CleanupAlertThreshold {
		j.alertSink.Alert(alerts.LevelWarning, "lock_sweeper",
			fmt.Sprintf("cleaned up %d assignments in one sweep (threshold %d)", cleaned, j.cfg.CleanupAlertThreshold))
	}

	active, err := j.repo.ActiveCount()
	if err != nil {
		return fmt.Errorf("failed to count active assignments: %w", err)
	}

	switch {
	case active > j.cfg.ActiveCritThreshold:
		j.alertSink.Alert(alerts.LevelCritical, "lock_sweeper",
			fmt.Sprintf("active assignment count %d exceeds critical threshold %d", active, j.cfg.ActiveCritThreshold))
	case active > j.cfg.ActiveWarnThreshold:
		j.alertSink.Alert(alerts.LevelWarning, "lock_sweeper",
			fmt.Sprintf("active assignment count %d exceeds warning threshold %d", active, j.cfg.ActiveWarnThreshold))
	}

	return nil
}
