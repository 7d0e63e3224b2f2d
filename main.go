package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"crispr-agent/agent"
	"crispr-agent/apiclient"
	"crispr-agent/config"
	"crispr-agent/database"
	"crispr-agent/llmclient"
	"crispr-agent/tools"
	"crispr-agent/web"
	"crispr-agent/web/services"

	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	// Initialize logger with default level to load config
	tempLogger, err := config.InitLogger("info")
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	// Load config (which includes log level setting)
	cfg := config.Load(tempLogger)

	// Re-initialize logger with configured level
	logger, err := config.InitLogger(cfg.LogLevel)
	if err != nil {
		fmt.Printf("Failed to re-initialize logger with configured level: %v\n", err)
		os.Exit(1)
	}
	defer config.Cleanup()

	// Unrecoverable configuration problems fail fast, before any session is served.
	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	store, err := database.NewPostgresStore(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := store.EnsureSchema(ctx); err != nil {
		logger.Fatal("Failed to ensure database schema", zap.Error(err))
	}

	api := apiclient.New(cfg.MaxRetries, cfg.RetryDelaySeconds, cfg.APIRequestTimeout, logger)
	registry := tools.NewDefaultRegistry(cfg, api, logger)
	oracle := llmclient.New(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, logger)

	crisprAgent := agent.NewAgent(cfg, oracle, registry, logger)

	chatService, err := services.NewChatService(cfg, store, crisprAgent, logger)
	if err != nil {
		logger.Fatal("Failed to initialize chat service", zap.Error(err))
	}

	webServer := web.NewServer(chatService, logger, cfg)

	// Create context that listens for interrupt signals
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go web.StartSessionCleanup(ctx, cfg, store, logger)

	port := fmt.Sprintf(":%d", cfg.WebPort)
	logger.Info("Starting CRISPR design assistant", zap.String("port", port))
	if err := webServer.Start(ctx, port); err != nil {
		logger.Error("Web server error", zap.Error(err))
		os.Exit(1)
	}
}
