package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/score-engine/internal/api"
	"github.com/snarg/score-engine/internal/config"
	"github.com/snarg/score-engine/internal/engine"
	"github.com/snarg/score-engine/internal/jobs"
	"github.com/snarg/score-engine/internal/metrics"
	"github.com/snarg/score-engine/internal/store"
	"github.com/snarg/score-engine/internal/watch"

	"github.com/prometheus/client_golang/prometheus"
)

var version = "dev"

func main() {
	startTime := time.Now()

	var overrides config.Overrides
	flag.StringVar(&overrides.EnvFile, "env", "", "path to .env file")
	flag.StringVar(&overrides.HTTPAddr, "addr", "", "HTTP listen address")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	flag.StringVar(&overrides.PitchURL, "pitch-url", "", "pitch-detection server URL")
	flag.StringVar(&overrides.WatchDir, "watch-dir", "", "drop directory to auto-submit audio from")
	flag.Parse()

	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Msg("score-engine starting")

	ctx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Artifact store
	artifacts, err := store.New(cfg.UploadDir, cfg.OutputDir, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init artifact store")
	}

	// Engine
	if cfg.PreprocessAudio {
		if engine.CheckSox() {
			log.Info().Msg("audio preprocessing enabled (sox found)")
		} else {
			log.Warn().Msg("PREPROCESS_AUDIO=true but sox not found in PATH; relying on the model's resampler")
		}
	}
	detector := engine.NewBasicPitchClient(cfg.PitchURL, cfg.PitchModel, cfg.PitchTimeout)
	eng := engine.New(engine.Options{
		Detector:        detector,
		Store:           artifacts,
		PreprocessAudio: cfg.PreprocessAudio,
		Log:             log,
	})

	// Orchestrator + workers
	orch := jobs.NewOrchestrator(jobs.OrchestratorOptions{
		Registry:   jobs.NewMemoryRegistry(),
		Store:      artifacts,
		Engine:     eng,
		Workers:    cfg.Workers,
		QueueSize:  cfg.QueueSize,
		RunTimeout: cfg.PitchTimeout + 30*time.Second,
		Log:        log,
	})
	orch.Start()
	prometheus.MustRegister(metrics.NewCollector(orch))

	// Retention sweeper
	sweeper := jobs.NewSweeper(orch, cfg.JobRetention, cfg.SweepInterval, log)
	sweeper.Start()

	// Optional drop-directory watcher
	var watcher *watch.Watcher
	var watcherStatus api.WatcherStatusSource
	if cfg.WatchDir != "" {
		watcher = watch.New(orch, cfg.WatchDir, log)
		if err := watcher.Start(); err != nil {
			log.Fatal().Err(err).Str("watch_dir", cfg.WatchDir).Msg("failed to start watcher")
		}
		watcherStatus = watcher
	}

	// HTTP server
	httpLog := log.With().Str("component", "http").Logger()
	srv := api.NewServer(cfg, orch, watcherStatus, version, startTime, httpLog)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	// Stop intake first, then drain: watcher, HTTP, sweeper, then workers.
	if watcher != nil {
		watcher.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	sweeper.Stop()
	orch.Stop()

	log.Info().Msg("score-engine stopped")
}
