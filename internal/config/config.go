package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/MuhammadFazattaqwa/reaport-app-sub000/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig             `yaml:"app"`
	Backend    BackendConfig         `yaml:"backend"`
	Queue      QueueConfig           `yaml:"queue"`
	Database   DatabaseConfig        `yaml:"database"`
	Redis      RedisConfig           `yaml:"redis"`
	Sync       SyncConfig            `yaml:"sync"`
	Backup     BackupConfig          `yaml:"backup"`
	Alerts     AlertsConfig          `yaml:"alerts"`
	Monitoring MonitoringConfig      `yaml:"monitoring"`
	Logging    LoggingConfig         `yaml:"logging"`
	API        APIConfig             `yaml:"api"`
	Categories []models.SlotCategory `yaml:"categories"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
	// DeviceID identifies the field device in logs and alerts, so a
	// fleet of agents reporting to one backend can be told apart.
	DeviceID string `yaml:"device_id"`
}

// BackendConfig points at the remote reaport backend.
type BackendConfig struct {
	BaseURL string `yaml:"base_url"`
	// SubmitTimeoutMS bounds one immediate delivery attempt. Slow calls
	// are treated as failures and queued; responsiveness wins over
	// duplicate-delivery risk.
	SubmitTimeoutMS int    `yaml:"submit_timeout_ms"`
	HealthPath      string `yaml:"health_path"`
}

// SubmitTimeout returns the per-attempt delivery budget.
func (b BackendConfig) SubmitTimeout() time.Duration {
	return time.Duration(b.SubmitTimeoutMS) * time.Millisecond
}

type QueueConfig struct {
	Path       string `yaml:"path"`
	SyncWrites *bool  `yaml:"sync_writes"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type SyncConfig struct {
	// HeartbeatSec is how often the daemon checks for a non-empty queue
	// while online.
	HeartbeatSec int `yaml:"heartbeat_sec"`
	// Probe settings govern the offline connectivity prober backoff.
	ProbeInitialSec int     `yaml:"probe_initial_sec"`
	ProbeMaxSec     int     `yaml:"probe_max_sec"`
	ProbeBackoff    float64 `yaml:"probe_backoff"`
	// AlertAfterAttempts triggers an operator alert once a record has
	// failed this many deliveries. Zero disables alerting.
	AlertAfterAttempts int `yaml:"alert_after_attempts"`
}

func (s SyncConfig) HeartbeatInterval() time.Duration {
	return time.Duration(s.HeartbeatSec) * time.Second
}

func (s SyncConfig) ProbeInitialDelay() time.Duration {
	return time.Duration(s.ProbeInitialSec) * time.Second
}

func (s SyncConfig) ProbeMaxDelay() time.Duration {
	return time.Duration(s.ProbeMaxSec) * time.Second
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type AlertsConfig struct {
	TelegramToken  string `yaml:"telegram_token"`
	TelegramChatID int64  `yaml:"telegram_chat_id"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	Port      int                `yaml:"port"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key  string `yaml:"key"`
	Name string `yaml:"name"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; when present its values feed the ${VAR}
	// placeholders in the YAML.
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return errors.New("backend base_url is required")
	}
	if c.Queue.Path == "" {
		return errors.New("queue path is required")
	}
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Alerts.TelegramToken != "" && c.Alerts.TelegramChatID == 0 {
		return errors.New("alerts telegram_chat_id is required when telegram_token is set")
	}
	return ValidateCategories(c.Categories)
}

func ValidateCategories(categories []models.SlotCategory) error {
	seen := make(map[string]bool)
	for _, cat := range categories {
		if cat.ID == "" {
			return fmt.Errorf("category '%s' has an empty id", cat.Name)
		}
		if seen[cat.ID] {
			return fmt.Errorf("duplicate category id found: %s", cat.ID)
		}
		seen[cat.ID] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Backend.SubmitTimeoutMS == 0 {
		c.Backend.SubmitTimeoutMS = 2500
	}
	if c.Backend.HealthPath == "" {
		c.Backend.HealthPath = "/api/health"
	}
	if c.Queue.SyncWrites == nil {
		syncWrites := true
		c.Queue.SyncWrites = &syncWrites
	}
	if c.Sync.HeartbeatSec == 0 {
		c.Sync.HeartbeatSec = 30
	}
	if c.Sync.ProbeInitialSec == 0 {
		c.Sync.ProbeInitialSec = 2
	}
	if c.Sync.ProbeMaxSec == 0 {
		c.Sync.ProbeMaxSec = 60
	}
	if c.Sync.ProbeBackoff == 0 {
		c.Sync.ProbeBackoff = 2
	}
	if c.API.Port == 0 {
		c.API.Port = 8087
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
}
