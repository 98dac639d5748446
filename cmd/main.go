package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mailkeep/core/internal/api"
	"github.com/mailkeep/core/internal/cli"
	"github.com/mailkeep/core/internal/config"
	"github.com/mailkeep/core/internal/database"
	"github.com/mailkeep/core/internal/services"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Ensure data directories exist
	if err := ensureDataDirs(cfg); err != nil {
		log.Fatalf("Failed to create data directories: %v", err)
	}

	// Initialize database
	db, err := database.Initialize(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Check if running CLI command
	if len(os.Args) > 1 {
		cli.Execute(db, cfg)
		return
	}

	// Load account configs
	accounts, err := config.LoadAccounts(cfg.AccountsDir)
	if err != nil {
		log.Fatalf("Failed to load account configs: %v", err)
	}
	if len(accounts) == 0 {
		log.Printf("No account configs found in %s - the trigger API still starts", cfg.AccountsDir)
	}

	// Start the sync orchestrator
	runService := services.NewRunService(db)
	orchestrator := services.NewOrchestrator(accounts, cfg.GetArchiveBaseDir(), cfg.SecretsDir, runService)
	orchestrator.Start()

	// Start API server
	router, apiKeyManager, err := api.SetupRouter(cfg, orchestrator, runService)
	if err != nil {
		log.Fatalf("Failed to setup router: %v", err)
	}

	log.Printf("Starting MailKeep server on port %s", cfg.APIPort)
	log.Printf("Archive directory: %s", cfg.GetArchiveBaseDir())
	log.Printf("Accounts directory: %s", cfg.AccountsDir)
	log.Printf("Database path: %s", cfg.DatabasePath)
	log.Printf("API Key: %s", apiKeyManager.GetCurrentKey())

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Graceful shutdown: stop scheduling new syncs, then drain the server.
	// An in-flight sync keeps its partial progress via per-batch state saves.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutdown signal received, stopping...")
	orchestrator.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown: %v", err)
	}
	log.Println("Daemon stopped")
}

// ensureDataDirs creates the data, archive and secrets directories if they
// don't exist
func ensureDataDirs(cfg *config.Config) error {
	dirs := []string{
		cfg.DataDir,
		cfg.GetArchiveBaseDir(),
		cfg.SecretsDir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
