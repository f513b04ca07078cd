// Package main runs the studygen worker process: the recovery sweep, a
// pool of claim loops and the embedded polling/event server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/studygen-go/internal/config"
	"github.com/raphaelgruber/studygen-go/internal/db"
	"github.com/raphaelgruber/studygen-go/internal/events"
	"github.com/raphaelgruber/studygen-go/internal/guard"
	"github.com/raphaelgruber/studygen-go/internal/llm"
	"github.com/raphaelgruber/studygen-go/internal/metrics"
	"github.com/raphaelgruber/studygen-go/internal/server"
	"github.com/raphaelgruber/studygen-go/internal/service"
	"github.com/raphaelgruber/studygen-go/internal/worker"
)

func main() {
	// Parse flags
	wipeDB := flag.Bool("wipe", false, "wipe all job data from database on startup (testing only)")
	concurrency := flag.Int("concurrency", 0, "number of worker loops (overrides env)")
	flag.Parse()

	// Load configuration
	cfg := config.Load()
	if *concurrency > 0 {
		cfg.WorkerConcurrency = *concurrency
	}

	// Initialize logging
	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer cleanup()
	slog.SetDefault(logger)

	logger.Info("starting studygen-worker",
		"concurrency", cfg.WorkerConcurrency,
		"provider", cfg.LLMProvider,
		"model", cfg.LLMModel,
		"server_addr", cfg.ServerAddr)

	// Connect to database
	connectCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	dbClient, err := db.NewClient(connectCtx, db.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}, logger)
	cancel()
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(context.Background()); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := dbClient.InitSchema(startCtx); err != nil {
		logger.Error("failed to initialize schema", "error", err)
		os.Exit(1)
	}

	if *wipeDB || os.Getenv("STUDYGEN_WIPE_DB") == "true" {
		if err := dbClient.WipeData(startCtx); err != nil {
			logger.Error("failed to wipe database", "error", err)
			os.Exit(1)
		}
		logger.Warn("wiped job data")
	}

	// Recovery sweep before claiming: jobs stranded by a previous crash of
	// this (or any) worker become terminal failures clients can act on.
	collector := metrics.NewCollector()
	sweepStart := time.Now()
	recovered, err := dbClient.RecoverStuckJobs(startCtx, cfg.RecoveryTimeout)
	collector.RecordTiming(metrics.OpRecovery, time.Since(sweepStart))
	if err != nil {
		logger.Error("recovery sweep failed", "error", err)
		os.Exit(1)
	}
	if recovered > 0 {
		logger.Warn("recovered stranded jobs", "count", recovered)
	}

	// LLM model shared by all worker loops
	model, err := llm.NewModel(cfg)
	if err != nil {
		logger.Error("failed to create llm model", "error", err)
		os.Exit(1)
	}

	bus := events.NewBus()
	g := guard.New(model, dbClient)
	timeouts := guard.TimeoutsFromConfig(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	// Embedded polling/event server
	svc := service.NewJobService(dbClient, cfg.DefaultTokenBudget, logger)
	srv := server.New(cfg.ServerAddr, svc, bus, collector, logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Run(ctx); err != nil {
			logger.Error("server stopped", "error", err)
			stop()
		}
	}()

	// Worker pool
	hostname, _ := os.Hostname()
	for i := 0; i < cfg.WorkerConcurrency; i++ {
		w := worker.New(worker.Config{
			ID:              fmt.Sprintf("%s-%s", hostname, uuid.New().String()[:8]),
			PollInterval:    cfg.PollInterval,
			Timeouts:        timeouts,
			EmbeddingModel:  cfg.EmbeddingModel,
			ChunkingVersion: cfg.ChunkingVersion,
		}, dbClient, g, bus, collector, logger)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Run(ctx); err != nil {
				logger.Error("worker loop stopped", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")
	wg.Wait()
	logger.Info("shutdown complete")
}
