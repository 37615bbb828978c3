// Package main is the entry point for the caption bandit scheduling service.
// It wires the performance store, the candidate selector, the assignment
// locker, and the periodic feedback/sweeper jobs, then serves the HTTP API.
package main

import (
	"context"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"captionbandit/internal/alerts"
	"captionbandit/internal/config"
	"captionbandit/internal/database"
	"captionbandit/internal/modules/assignments"
	"captionbandit/internal/modules/captions"
	"captionbandit/internal/modules/selection"
	"captionbandit/internal/modules/stats"
	"captionbandit/internal/scheduler"
	"captionbandit/internal/server"
	"captionbandit/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting caption bandit service")

	// Databases
	statsDB, err := database.New(database.Config{
		Path:    cfg.StatsDBPath(),
		Profile: database.ProfileStandard,
		Name:    "stats",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open stats database")
	}
	defer statsDB.Close()

	assignmentsDB, err := database.New(database.Config{
		Path:    cfg.AssignmentsDBPath(),
		Profile: database.ProfileStandard,
		Name:    "assignments",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open assignments database")
	}
	defer assignmentsDB.Close()

	if err := statsDB.Migrate(stats.StatsSchema); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate stats schema")
	}
	if err := statsDB.Migrate(captions.CaptionsSchema); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate captions schema")
	}
	if err := assignmentsDB.Migrate(assignments.AssignmentsSchema); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate assignments schema")
	}

	// Repositories and services
	alertSink := alerts.NewLogSink(log)
	captionRepo := captions.NewRepository(statsDB.Conn(), log)
	performanceRepo := stats.NewRepository(statsDB.Conn(), log)
	outcomeRepo := stats.NewOutcomeRepository(statsDB.Conn(), log)
	assignmentRepo := assignments.NewRepository(assignmentsDB.Conn(), log)

	selectorCfg, err := selection.LoadSelectorConfig(cfg.SelectorConfigPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load selector configuration")
	}
	log.Info().Str("version", selectorCfg.Version).Msg("Selector configuration loaded")

	sampler := stats.NewSampler(rand.New(rand.NewSource(time.Now().UnixNano())))
	selector := selection.NewSelector(performanceRepo, sampler, captionRepo, captionRepo, assignmentRepo, selectorCfg, log)
	locker := assignments.NewLocker(assignmentRepo, captionRepo, performanceRepo, log)

	// Background jobs
	feedbackJob := stats.NewFeedbackUpdateJob(outcomeRepo, performanceRepo, alertSink, log)
	sweeperJob := assignments.NewSweeperJob(assignmentRepo, alertSink, assignments.DefaultSweeperConfig(), log)

	sched := scheduler.New(log)
	if err := sched.AddJob(cfg.FeedbackSchedule, feedbackJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register feedback job")
	}
	if err := sched.AddJob(cfg.SweeperSchedule, sweeperJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register sweeper job")
	}
	sched.Start()
	defer sched.Stop()

	// HTTP server
	srv := server.New(server.Config{
		Log:           log,
		Port:          cfg.Port,
		StatsDB:       statsDB,
		AssignmentsDB: assignmentsDB,
		Selector:      selector,
		Locker:        locker,
		Performance:   performanceRepo,
		Scheduler:     sched,
		Jobs: map[string]scheduler.Job{
			feedbackJob.Name(): feedbackJob,
			sweeperJob.Name():  sweeperJob,
		},
		AlertSink: alertSink,
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
}
