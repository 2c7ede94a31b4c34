// Copyright (c) 2025 trendwatch contributors
// Licensed under the MIT License

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"trendwatch/internal/analyzer"
	"trendwatch/internal/api"
	"trendwatch/internal/cache"
	"trendwatch/internal/config"
	"trendwatch/internal/fetcher"
	"trendwatch/internal/notifier"
	"trendwatch/internal/poller"
	"trendwatch/internal/pushgate"
	"trendwatch/internal/ranking"
	"trendwatch/internal/report"
	"trendwatch/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	// Initialize cache for the read path
	cacheManager := cache.NewManager(cfg.CacheTTL())

	// Initialize persistent storage
	storageManager, err := storage.NewStorage(cfg.DataDir)
	if err != nil {
		log.Fatal("Failed to initialize storage:", err)
	}
	defer storageManager.Close()

	// Clean up history past the retention policy
	if retention := cfg.Retention(); retention > 0 {
		log.Printf("Cleaning up items older than %v", retention)
		if err := storageManager.CleanupOldItems(retention); err != nil {
			log.Printf("Warning: failed to cleanup old items: %v", err)
		}
	}

	// Wire the crawl pipeline
	gate, err := pushgate.NewGate(cfg.Push, storageManager)
	if err != nil {
		log.Fatal("Failed to initialize push gate:", err)
	}

	var deliverer notifier.Deliverer
	if cfg.Push.WebhookURL != "" {
		deliverer = notifier.NewWebhook(cfg.Push.WebhookURL, cfg.Push.Timeout())
		log.Printf("Webhook delivery enabled")
	} else {
		deliverer = notifier.LogDeliverer{}
		log.Printf("No webhook configured, reports go to the process log")
	}

	trendAnalyzer := analyzer.New(
		cfg,
		storageManager,
		fetcher.New(cfg.RequestInterval()),
		ranking.NewEngine(cfg.Ranking, storageManager),
		report.NewSelector(cfg, storageManager),
		gate,
		deliverer,
		cacheManager,
	)

	// Start the background poller
	backgroundPoller := poller.New(trendAnalyzer, cfg.PollInterval())
	if err := backgroundPoller.Start(); err != nil {
		log.Fatal("Failed to start poller:", err)
	}

	// Initialize API server
	server := api.NewServer(storageManager, cacheManager, backgroundPoller, cfg)

	log.Printf("Starting trendwatch server on port %d", cfg.Port)
	log.Printf("Data directory: %s", cfg.DataDir)
	log.Printf("Report mode: %s", cfg.ReportMode)
	log.Printf("Monitoring %d platforms", len(cfg.ActivePlatforms()))
	log.Printf("Crawl interval: %v", cfg.PollInterval())

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Create a context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start signal handler in goroutine
	go func() {
		<-sigChan
		log.Println("Received shutdown signal, stopping services...")
		backgroundPoller.Stop()
		cancel()
	}()

	// Start the server with context for graceful shutdown
	if err := server.StartWithContext(ctx); err != nil && err != context.Canceled {
		log.Fatal("Failed to start server:", err)
	}
}
