package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/comiendoalmundo/followup-service/internal/followup"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Logging  LoggingConfig  `yaml:"logging"`
	App      AppConfig      `yaml:"app"`
	Sheets   SheetsConfig   `yaml:"sheets"`
	WhatsApp WhatsAppConfig `yaml:"whatsapp"`
	Backend  BackendConfig  `yaml:"backend"`
	Campaign CampaignConfig `yaml:"campaign"`
	Worker   WorkerConfig   `yaml:"worker"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// WebhookVerifyToken is echoed back during the Cloud API webhook handshake
	WebhookVerifyToken string `yaml:"webhook_verify_token"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// SheetsConfig holds the allow-list row-source configuration
type SheetsConfig struct {
	BaseURL         string         `yaml:"base_url"`
	APIKey          string         `yaml:"api_key"`
	Timeout         time.Duration  `yaml:"timeout"`
	RefreshInterval time.Duration  `yaml:"refresh_interval"`
	Sources         []SourceConfig `yaml:"sources"`
}

// SourceConfig describes one spreadsheet feeding the allow-list
type SourceConfig struct {
	ID            string `yaml:"id"`
	Name          string `yaml:"name"`
	SpreadsheetID string `yaml:"spreadsheet_id"`
	PhoneRange    string `yaml:"phone_range"`
	ActiveRange   string `yaml:"active_range"`
}

// WhatsAppConfig holds the Cloud API transport settings
type WhatsAppConfig struct {
	BaseURL       string        `yaml:"base_url"`
	Token         string        `yaml:"token"`
	PhoneNumberID string        `yaml:"phone_number_id"`
	CountryPrefix string        `yaml:"country_prefix"`
	MinDigits     int           `yaml:"min_digits"`
	Timeout       time.Duration `yaml:"timeout"`
}

// BackendConfig holds the inbound-forwarding settings
type BackendConfig struct {
	ForwardURL string        `yaml:"forward_url"`
	Timeout    time.Duration `yaml:"timeout"`
}

// CampaignConfig describes the reminder sequence for this deployment
type CampaignConfig struct {
	Steps         []StepConfig `yaml:"steps"`
	Variants      int          `yaml:"variants"`
	TemplatesPath string       `yaml:"templates_path"`
}

// StepConfig is one reminder step: a stable name and its delay
type StepConfig struct {
	Name   string        `yaml:"name"`
	Offset time.Duration `yaml:"offset"`
}

// Profile converts the campaign section into the scheduler's profile
func (c *CampaignConfig) Profile() *followup.Profile {
	steps := make([]followup.Step, 0, len(c.Steps))
	for _, s := range c.Steps {
		steps = append(steps, followup.Step{Name: s.Name, Offset: s.Offset})
	}
	return &followup.Profile{Steps: steps, Variants: c.Variants}
}

// WorkerConfig holds reminder worker configuration
type WorkerConfig struct {
	Concurrency      int           `yaml:"concurrency"`
	PrefetchCount    int           `yaml:"prefetch_count"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	ClaimBatch       int           `yaml:"claim_batch"`
	RequeueAfter     time.Duration `yaml:"requeue_after"`
	SendTimeout      time.Duration `yaml:"send_timeout"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout"`
	RecheckAllowlist bool          `yaml:"recheck_allowlist"`
}

// Load reads the configuration file and expands ${VAR} references from the
// environment so secrets stay out of the file itself.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// validateShared checks the sections both services depend on
func (c *Config) validateShared() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	if err := c.Campaign.Profile().Validate(); err != nil {
		return fmt.Errorf("invalid campaign: %w", err)
	}

	return nil
}

// ValidateGatewayConfig checks the configuration for the gateway service
func (c *Config) ValidateGatewayConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateShared(); err != nil {
		return err
	}

	if len(c.Sheets.Sources) == 0 {
		return fmt.Errorf("at least one allow-list source is required")
	}

	seen := make(map[string]struct{}, len(c.Sheets.Sources))
	for _, src := range c.Sheets.Sources {
		if src.ID == "" || src.SpreadsheetID == "" || src.PhoneRange == "" {
			return fmt.Errorf("allow-list source %q needs id, spreadsheet_id and phone_range", src.ID)
		}
		if _, dup := seen[src.ID]; dup {
			return fmt.Errorf("duplicate allow-list source id %q", src.ID)
		}
		seen[src.ID] = struct{}{}
	}

	if c.Sheets.RefreshInterval <= 0 {
		return fmt.Errorf("sheets refresh_interval must be greater than 0")
	}

	if c.WhatsApp.PhoneNumberID == "" {
		return fmt.Errorf("whatsapp phone_number_id is required")
	}

	if c.Backend.ForwardURL == "" {
		return fmt.Errorf("backend forward_url is required")
	}

	return nil
}

// ValidateWorkerConfig checks the configuration for the reminder service
func (c *Config) ValidateWorkerConfig() error {
	if err := c.validateShared(); err != nil {
		return err
	}

	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.PollInterval <= 0 {
		return fmt.Errorf("worker poll_interval must be greater than 0")
	}

	if c.Worker.ClaimBatch <= 0 {
		return fmt.Errorf("worker claim_batch must be greater than 0")
	}

	if c.Worker.RequeueAfter <= 0 {
		return fmt.Errorf("worker requeue_after must be greater than 0")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	if c.WhatsApp.PhoneNumberID == "" {
		return fmt.Errorf("whatsapp phone_number_id is required")
	}

	if c.Campaign.TemplatesPath == "" {
		return fmt.Errorf("campaign templates_path is required")
	}

	if c.Worker.RecheckAllowlist && len(c.Sheets.Sources) == 0 {
		return fmt.Errorf("recheck_allowlist requires at least one allow-list source")
	}

	return nil
}
