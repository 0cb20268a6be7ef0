package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/jobs"
	"server/internal/ledger"
	"server/internal/pipeline"
	"server/internal/storage"
	"server/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("service", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := infra.Migrate(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("migrations failed")
	}

	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer dbpool.Close()
	runner := infra.NewSQLRunner(dbpool, logger)

	store, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: storage init failed")
	}

	jobStore := jobs.NewStore(runner, logger)
	creditLedger := ledger.New(runner, logger)

	orchestrator := &worker.Orchestrator{
		SQL:    runner,
		Jobs:   jobStore,
		Ledger: creditLedger,
		Logger: logger,

		Speech: &pipeline.SpeechStage{
			Client: pipeline.NewClient(pipeline.Options{BaseURL: cfg.SpeechBaseURL, Logger: &logger}),
			Store:  store,
		},
		Animate: &pipeline.AnimateStage{
			Client: pipeline.NewClient(pipeline.Options{BaseURL: cfg.AnimateBaseURL, Logger: &logger}),
			Store:  store,
		},
		LipSync: &pipeline.LipSyncStage{
			Client: pipeline.NewClient(pipeline.Options{BaseURL: cfg.LipSyncBaseURL, Logger: &logger}),
			Store:  store,
		},
		Upscale: &pipeline.UpscaleStage{
			Client: pipeline.NewClient(pipeline.Options{BaseURL: cfg.UpscaleBaseURL, Logger: &logger}),
			Store:  store,
		},
		Upload: &pipeline.UploadStage{Store: store, BaseURL: cfg.StorageBaseURL},

		AudioTimeout:  cfg.AudioStageTimeout,
		VideoTimeout:  cfg.VideoStageTimeout,
		UploadTimeout: cfg.UploadStageTimeout,
	}

	timeouts := make(map[domain.JobState]time.Duration)
	for state, timeout := range cfg.StageTimeouts() {
		timeouts[domain.JobState(state)] = timeout
	}
	reaper := &worker.Reaper{
		SQL:      runner,
		Jobs:     jobStore,
		Ledger:   creditLedger,
		Logger:   logger,
		Timeouts: timeouts,
	}
	cleaner := &worker.Cleaner{
		Jobs:          jobStore,
		Store:         store,
		Logger:        logger,
		RetentionDays: cfg.RetentionDays,
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc("@every "+cfg.ReaperInterval.String(), func() {
		if _, err := reaper.Sweep(ctx); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("reaper sweep failed")
		}
	}); err != nil {
		logger.Fatal().Err(err).Msg("schedule reaper")
	}
	if _, err := scheduler.AddFunc(cfg.RetentionSchedule, func() {
		if _, err := cleaner.Clean(ctx); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("retention clean failed")
		}
	}); err != nil {
		logger.Fatal().Err(err).Msg("schedule retention")
	}
	scheduler.Start()
	defer scheduler.Stop()

	pool := &worker.Pool{
		Orchestrator: orchestrator,
		Concurrency:  cfg.WorkerConcurrency,
		PollInterval: cfg.JobPollInterval,
		Logger:       logger,
	}
	if err := pool.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("worker pool failed")
	}
	logger.Info().Msg("worker stopped")
}
