package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vidcat/vidcat-server/internal/api"
	"github.com/vidcat/vidcat-server/internal/blob"
	"github.com/vidcat/vidcat-server/internal/catalog"
	"github.com/vidcat/vidcat-server/internal/config"
	"github.com/vidcat/vidcat-server/internal/db"
	"github.com/vidcat/vidcat-server/internal/indexer"
	"github.com/vidcat/vidcat-server/internal/logging"
	"github.com/vidcat/vidcat-server/internal/pipeline"
	"github.com/vidcat/vidcat-server/internal/search"
)

var Version = "0.1.0"

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	if err := os.MkdirAll(cfg.BlobDir(), 0755); err != nil {
		return fmt.Errorf("failed to create blob dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting vidcat server", "version", Version, "data_dir", cfg.DataDir())

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := catalog.NewRepository(database.Conn())

	fmt.Println()
	fmt.Printf("vidcat server v%s\n", Version)
	fmt.Printf("  api:        http://localhost:%d\n", cfg.Port())
	fmt.Printf("  data dir:   %s\n", cfg.DataDir())
	fmt.Printf("  container:  %s\n", cfg.BlobContainer())
	fmt.Println()

	blobs := blob.NewFileStore(cfg.BlobDir(), cfg.StorageBaseURI(), logging.WithComponent(logger, "blob"))

	indexerClient := indexer.NewHTTPClient(
		cfg.IndexerURL(),
		cfg.IndexerLocation(),
		cfg.IndexerSubscriptionKey(),
		cfg.IndexerAccountID(),
		logging.WithComponent(logger, "indexer"),
	)
	logger.Info("indexer configured",
		"url", cfg.IndexerURL(),
		"location", cfg.IndexerLocation(),
		"subscription_key", logging.SanitizeKey(cfg.IndexerSubscriptionKey()),
	)

	searchClient := search.NewHTTPClient(cfg.SearchURL(), cfg.SearchKey(), cfg.SearchIndex(),
		logging.WithComponent(logger, "search"))
	logger.Info("search configured",
		"url", cfg.SearchURL(),
		"index", cfg.SearchIndex(),
		"api_key", logging.SanitizeKey(cfg.SearchKey()),
	)

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	if err := blobs.EnsureContainer(startupCtx, cfg.BlobContainer()); err != nil {
		return fmt.Errorf("failed to create blob container: %w", err)
	}

	schema, err := search.IndexSchema(cfg.SearchIndex())
	if err != nil {
		return err
	}
	if err := searchClient.CreateIndex(startupCtx, schema); err != nil {
		// Searching degrades, the upload path still works.
		logger.Warn("search index creation failed", "error", err)
	}

	pipe := pipeline.New(pipeline.Config{
		Records:         repo,
		Blobs:           blobs,
		Indexer:         indexerClient,
		Search:          searchClient,
		Logger:          logger,
		Container:       cfg.BlobContainer(),
		Partition:       cfg.BlobPartition(),
		StorageBaseURI:  cfg.StorageBaseURI(),
		PollInterval:    cfg.PollInterval(),
		PollMaxAttempts: cfg.PollMaxAttempts(),
	})

	apiServer := api.NewServer(api.ServerConfig{
		Port:       cfg.Port(),
		Pipeline:   pipe,
		Repository: repo,
		Blobs:      blobs,
		Indexer:    indexerClient,
		Logger:     logger,
		StartTime:  startTime,
		Version:    Version,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}
