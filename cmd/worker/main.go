package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/statement-ingest/internal/app"
	"github.com/dvloznov/statement-ingest/internal/config"
	"github.com/dvloznov/statement-ingest/internal/jobs"
	"github.com/dvloznov/statement-ingest/internal/jobs/inmemory"
	"github.com/dvloznov/statement-ingest/internal/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

func main() {
	_ = godotenv.Load()

	var configPath string
	cmd := &cobra.Command{
		Use:          "worker",
		Short:        "Process uploaded bank statements",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", os.Getenv("PFM_CONFIG"), "path to the YAML config file")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logger.Configure(cfg.Log.Level, cfg.Log.Format, os.Stdout)
	if err != nil {
		return err
	}

	// Create context that cancels on interrupt
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize worker")
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close clients")
		}
	}()

	log.Info().
		Str("storage", cfg.Storage.Backend).
		Str("database", cfg.Database.Backend).
		Strs("parsers", a.Parsers.Types()).
		Int("concurrency", cfg.Worker.Concurrency).
		Msg("Starting worker service")

	jobStore := inmemory.NewStore(inmemory.DefaultHistory)
	jobQueue := inmemory.NewQueue(cfg.Worker.QueueSize, cfg.Worker.Concurrency, jobStore)

	if err := jobQueue.Start(ctx, a.HandleJob); err != nil {
		log.Error().Err(err).Msg("Failed to start job consumer")
		return err
	}

	poller := jobs.NewPoller(a.Repo, jobQueue, cfg.Worker.PollInterval, cfg.Worker.PollBatch)
	pollerDone := make(chan struct{})
	go func() {
		defer close(pollerDone)
		poller.Run(ctx)
	}()

	log.Info().Dur("poll_interval", cfg.Worker.PollInterval).Msg("Worker service started, waiting for uploads")

	<-ctx.Done()
	log.Info().Msg("Shutting down worker service...")
	<-pollerDone

	// In-flight uploads run to completion within the shutdown timeout.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}
	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}
	jobs.LogSummary(logger.WithContext(shutdownCtx, log), jobStore)

	log.Info().Msg("Worker service exited")
	return nil
}
