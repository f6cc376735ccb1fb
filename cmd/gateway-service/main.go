package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/comiendoalmundo/followup-service/internal/allowlist"
	"github.com/comiendoalmundo/followup-service/internal/api/handler"
	"github.com/comiendoalmundo/followup-service/internal/api/router"
	"github.com/comiendoalmundo/followup-service/internal/api/storage"
	"github.com/comiendoalmundo/followup-service/internal/async"
	"github.com/comiendoalmundo/followup-service/internal/backend"
	"github.com/comiendoalmundo/followup-service/internal/config"
	"github.com/comiendoalmundo/followup-service/internal/followup"
	"github.com/comiendoalmundo/followup-service/internal/sheets"
	"github.com/comiendoalmundo/followup-service/internal/whatsapp"
	"github.com/comiendoalmundo/followup-service/shared/logger"
	"github.com/comiendoalmundo/followup-service/shared/postgresql"
)

// asyncTaskTimeout bounds background work started by request handlers
const asyncTaskTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("GATEWAY_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/gateway-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateGatewayConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger := initLogger(&cfg.Logging)

	appLogger.Info("Starting gateway service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	// Initialize PostgreSQL client
	dbClient, err := initPostgreSQL(&cfg.Database, appLogger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	appLogger.Info("Database connection established")

	// Allow-list cache over the configured spreadsheet sources
	sheetsClient := sheets.NewClient(&sheets.Config{
		BaseURL: cfg.Sheets.BaseURL,
		APIKey:  cfg.Sheets.APIKey,
		Timeout: cfg.Sheets.Timeout,
	})
	cache := allowlist.NewCache(sheetsClient, sourceConfigs(cfg.Sheets.Sources), appLogger)

	refreshCtx, stopRefresh := context.WithCancel(context.Background())
	defer stopRefresh()
	go cache.Run(refreshCtx, cfg.Sheets.RefreshInterval)

	// Outbound clients and background-task supervisor
	waClient := whatsapp.NewClient(&whatsapp.Config{
		BaseURL:       cfg.WhatsApp.BaseURL,
		Token:         cfg.WhatsApp.Token,
		PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
		CountryPrefix: cfg.WhatsApp.CountryPrefix,
		MinDigits:     cfg.WhatsApp.MinDigits,
		Timeout:       cfg.WhatsApp.Timeout,
	}, appLogger)

	backendClient := backend.NewClient(&backend.Config{
		ForwardURL: cfg.Backend.ForwardURL,
		Timeout:    cfg.Backend.Timeout,
	}, appLogger)

	runner := async.NewRunner(appLogger, asyncTaskTimeout)

	// Follow-up scheduler over the durable job store
	jobStore := storage.NewStorage(dbClient)
	scheduler := followup.NewScheduler(jobStore, cfg.Campaign.Profile(), appLogger)

	// Initialize router
	r := initRouter(cfg, appLogger, scheduler, cache, waClient, backendClient, runner)

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed to start",
				slog.Any("error", err),
			)
			os.Exit(1)
		}
	}()

	appLogger.Info("Gateway service is running",
		slog.String("address", addr),
	)

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	stopRefresh()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
	}

	// Let in-flight background sends and cancellations finish
	if err := runner.Shutdown(ctx); err != nil {
		appLogger.Warn("Background tasks did not finish before shutdown deadline",
			slog.Any("error", err),
		)
	}

	if dbClient != nil {
		dbClient.Close()
	}

	appLogger.Info("Gateway service shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) *slog.Logger {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
	})
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// sourceConfigs maps the config file's source entries to the cache's form
func sourceConfigs(sources []config.SourceConfig) []allowlist.SourceConfig {
	configs := make([]allowlist.SourceConfig, 0, len(sources))
	for _, src := range sources {
		configs = append(configs, allowlist.SourceConfig{
			ID:            src.ID,
			Name:          src.Name,
			SpreadsheetID: src.SpreadsheetID,
			PhoneRange:    src.PhoneRange,
			ActiveRange:   src.ActiveRange,
		})
	}
	return configs
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(
	cfg *config.Config,
	logger *slog.Logger,
	scheduler *followup.Scheduler,
	cache *allowlist.Cache,
	waClient *whatsapp.Client,
	backendClient *backend.Client,
	runner *async.Runner,
) *gin.Engine {
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	handlerDeps := &handler.Dependencies{
		Logger:      logger,
		Scheduler:   scheduler,
		Profile:     cfg.Campaign.Profile(),
		Cache:       cache,
		Sender:      waClient,
		Backend:     backendClient,
		Runner:      runner,
		VerifyToken: cfg.Server.WebhookVerifyToken,
	}

	return router.SetupRouter(handlerDeps)
}
