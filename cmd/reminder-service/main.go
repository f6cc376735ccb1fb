package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/comiendoalmundo/followup-service/internal/allowlist"
	"github.com/comiendoalmundo/followup-service/internal/config"
	"github.com/comiendoalmundo/followup-service/internal/followup"
	"github.com/comiendoalmundo/followup-service/internal/sheets"
	"github.com/comiendoalmundo/followup-service/internal/whatsapp"
	"github.com/comiendoalmundo/followup-service/internal/worker"
	"github.com/comiendoalmundo/followup-service/internal/worker/storage"
	"github.com/comiendoalmundo/followup-service/shared/logger"
	"github.com/comiendoalmundo/followup-service/shared/postgresql"
	"github.com/comiendoalmundo/followup-service/shared/rabbitmq"
)

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
	defaultConfigPath := os.Getenv("REMINDER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/reminder-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger := initLogger(&cfg.Logging)

	appLogger.Info("Starting reminder service",
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

	// Initialize RabbitMQ client
	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}

	appLogger.Info("RabbitMQ connection established")

	// Reminder templates
	templates, err := followup.LoadTemplates(cfg.Campaign.TemplatesPath)
	if err != nil {
		return fmt.Errorf("failed to load templates: %w", err)
	}

	// Outbound sender
	waClient := whatsapp.NewClient(&whatsapp.Config{
		BaseURL:       cfg.WhatsApp.BaseURL,
		Token:         cfg.WhatsApp.Token,
		PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
		CountryPrefix: cfg.WhatsApp.CountryPrefix,
		MinDigits:     cfg.WhatsApp.MinDigits,
		Timeout:       cfg.WhatsApp.Timeout,
	}, appLogger)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Optional pre-send recheck against a live allow-list
	var allow worker.AllowChecker
	if cfg.Worker.RecheckAllowlist {
		sheetsClient := sheets.NewClient(&sheets.Config{
			BaseURL: cfg.Sheets.BaseURL,
			APIKey:  cfg.Sheets.APIKey,
			Timeout: cfg.Sheets.Timeout,
		})
		cache := allowlist.NewCache(sheetsClient, sourceConfigs(cfg.Sheets.Sources), appLogger)
		go cache.Run(ctx, cfg.Sheets.RefreshInterval)
		allow = cache
	}

	workerID := fmt.Sprintf("reminder-%s", uuid.NewString()[:8])

	workerInstance := worker.NewWorker(&worker.Config{
		Logger:        appLogger,
		Storage:       storage.NewStorage(dbClient, appLogger),
		RabbitClient:  rabbitClient,
		Sender:        waClient,
		Templates:     templates,
		Allow:         allow,
		WorkerID:      workerID,
		Concurrency:   cfg.Worker.Concurrency,
		PrefetchCount: cfg.Worker.PrefetchCount,
		PollInterval:  cfg.Worker.PollInterval,
		ClaimBatch:    cfg.Worker.ClaimBatch,
		RequeueAfter:  cfg.Worker.RequeueAfter,
		SendTimeout:   cfg.Worker.SendTimeout,
	})

	// Start worker in a goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := workerInstance.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	appLogger.Info("Reminder service started successfully",
		slog.String("worker_id", workerID),
	)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("Worker error",
			slog.Any("error", err),
		)
		return err
	}

	// Cancel context to stop worker
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		workerInstance.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Worker stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	if dbClient != nil {
		dbClient.Close()
	}
	if rabbitClient != nil {
		rabbitClient.Close()
	}

	appLogger.Info("Reminder service shutdown complete")
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

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
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
