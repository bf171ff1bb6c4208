package config

import (
	"fmt"
	"time"

	yamlenv "github.com/ifuryst/go-yaml-env"

	"github.com/ifuryst/quill/pkg/logger"
)

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Logger        logger.Config       `yaml:"logger"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
	Publication   PublicationConfig   `yaml:"publication"`
	Authorization AuthorizationConfig `yaml:"authorization"`
	Events        EventsConfig        `yaml:"events"`
	Auth          AuthConfig          `yaml:"auth"`
	Monitoring    MonitoringConfig    `yaml:"monitoring"`
}

type ServerConfig struct {
	Port     int    `yaml:"port"`
	Host     string `yaml:"host"`
	Mode     string `yaml:"mode"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

type DatabaseConfig struct {
	Type     string `yaml:"type"` // postgres, sqlite, memory
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	TimeZone string `yaml:"timezone"`
	// Path is the sqlite database file.
	Path string `yaml:"path"`
}

// SchedulerConfig drives the reconciliation tick.
type SchedulerConfig struct {
	Enabled *bool `yaml:"enabled"`
	// Cron is a six-field expression with seconds.
	Cron        string        `yaml:"cron"`
	BatchSize   int           `yaml:"batch_size"`
	MaxRecords  int           `yaml:"max_records"`
	TickTimeout time.Duration `yaml:"tick_timeout"`
}

func (c SchedulerConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// PublicationConfig builds the public URL of a published article.
type PublicationConfig struct {
	BaseURL string `yaml:"base_url"`
	Portal  string `yaml:"portal"`
}

type AuthorizationConfig struct {
	// PublisherGroups may run every publication action.
	PublisherGroups []string `yaml:"publisher_groups"`
	// ManagerGroups may manage targets.
	ManagerGroups []string `yaml:"manager_groups"`
	// SystemActorID is used when a scheduled article has no author.
	SystemActorID string `yaml:"system_actor_id"`
}

type EventsConfig struct {
	BufferSize int             `yaml:"buffer_size"`
	Workers    int             `yaml:"workers"`
	Webhooks   []WebhookConfig `yaml:"webhooks"`
}

type WebhookConfig struct {
	Name    string        `yaml:"name"`
	URL     string        `yaml:"url"`
	Secret  string        `yaml:"secret"`
	Timeout time.Duration `yaml:"timeout"`
	// Events limits delivery to these kinds; empty means all.
	Events []string `yaml:"events"`
}

type AuthConfig struct {
	TOTPSecret string        `yaml:"totp_secret"`
	Issuer     string        `yaml:"issuer"`
	SessionTTL time.Duration `yaml:"session_ttl"`
}

type MonitoringConfig struct {
	StatsInterval time.Duration `yaml:"stats_interval"`
	RetentionDays int           `yaml:"retention_days"`
}

const DefaultCron = "15 */2 * * * ?"

func LoadConfig(configPath string) (*Config, error) {
	cfg, err := yamlenv.LoadConfig[Config](configPath)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5334
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "debug"
	}
	if cfg.Database.Type == "" {
		cfg.Database.Type = "postgres"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.TimeZone == "" {
		cfg.Database.TimeZone = "UTC"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "quill.db"
	}
	if cfg.Scheduler.Cron == "" {
		cfg.Scheduler.Cron = DefaultCron
	}
	if cfg.Scheduler.BatchSize == 0 {
		cfg.Scheduler.BatchSize = 100
	}
	if cfg.Scheduler.MaxRecords == 0 {
		cfg.Scheduler.MaxRecords = 10000
	}
	if cfg.Scheduler.TickTimeout == 0 {
		cfg.Scheduler.TickTimeout = 90 * time.Second
	}
	if cfg.Publication.Portal == "" {
		cfg.Publication.Portal = "portal/intranet"
	}
	if cfg.Events.BufferSize == 0 {
		cfg.Events.BufferSize = 256
	}
	if cfg.Events.Workers == 0 {
		cfg.Events.Workers = 2
	}
	for i := range cfg.Events.Webhooks {
		if cfg.Events.Webhooks[i].Timeout == 0 {
			cfg.Events.Webhooks[i].Timeout = 10 * time.Second
		}
	}
	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = "Quill"
	}
	if cfg.Auth.SessionTTL == 0 {
		cfg.Auth.SessionTTL = 24 * time.Hour
	}
	if cfg.Monitoring.StatsInterval == 0 {
		cfg.Monitoring.StatsInterval = 5 * time.Minute
	}
	if cfg.Monitoring.RetentionDays == 0 {
		cfg.Monitoring.RetentionDays = 30
	}
}

func (cfg *Config) Validate() error {
	switch cfg.Database.Type {
	case "postgres", "sqlite", "memory":
	default:
		return fmt.Errorf("unsupported database type %q", cfg.Database.Type)
	}
	if cfg.Scheduler.BatchSize < 0 || cfg.Scheduler.MaxRecords < 0 {
		return fmt.Errorf("scheduler batch_size and max_records must be positive")
	}
	if cfg.Scheduler.MaxRecords < cfg.Scheduler.BatchSize {
		return fmt.Errorf("scheduler max_records (%d) is below batch_size (%d)", cfg.Scheduler.MaxRecords, cfg.Scheduler.BatchSize)
	}
	for _, w := range cfg.Events.Webhooks {
		if w.URL == "" {
			return fmt.Errorf("webhook %q has no url", w.Name)
		}
	}
	return nil
}
