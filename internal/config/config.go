package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server" envconfig:"SERVER"`
	Database DatabaseConfig `yaml:"database" envconfig:"DB"`
	JWT      JWTConfig      `yaml:"jwt" envconfig:"JWT"`
	Admin    AdminConfig    `yaml:"admin" envconfig:"ADMIN"`
	SMTP     SMTPConfig     `yaml:"smtp" envconfig:"SMTP"`
	Storage  StorageConfig  `yaml:"storage" envconfig:"STORAGE"`
	Redis    RedisConfig    `yaml:"redis" envconfig:"REDIS"`
	Captcha  CaptchaConfig  `yaml:"captcha" envconfig:"CAPTCHA"`
	Workflow WorkflowConfig `yaml:"workflow" envconfig:"WORKFLOW"`
	Log      LogConfig      `yaml:"log" envconfig:"LOG"`
}

type ServerConfig struct {
	Host         string `yaml:"host" split_words:"true"`
	Port         string `yaml:"port" split_words:"true"`
	Mode         string `yaml:"mode" split_words:"true"` // debug, release, test
	CookieSecure bool   `yaml:"cookie_secure" split_words:"true"`
	// Comma separated list, "*" allows every origin.
	AllowOrigins string `yaml:"allow_origins" split_words:"true"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver" split_words:"true"` // sqlite, mysql, postgres
	DSN      string `yaml:"dsn" split_words:"true"`
	LogLevel string `yaml:"log_level" split_words:"true"` // silent, error, warn, info
}

type JWTConfig struct {
	Secret     string `yaml:"secret" split_words:"true"`
	ExpireHour int    `yaml:"expire_hour" split_words:"true"`
}

// AdminConfig holds the bootstrap administrator, created once when no
// admin credential exists.
type AdminConfig struct {
	Email    string `yaml:"email" split_words:"true"`
	Password string `yaml:"password" split_words:"true"`
}

type SMTPConfig struct {
	Enabled  bool          `yaml:"enabled" split_words:"true"`
	Host     string        `yaml:"host" split_words:"true"`
	Port     int           `yaml:"port" split_words:"true"`
	Username string        `yaml:"username" split_words:"true"`
	Password string        `yaml:"password" split_words:"true"`
	From     string        `yaml:"from" split_words:"true"`
	UseTLS   bool          `yaml:"use_tls" split_words:"true"`
	Timeout  time.Duration `yaml:"timeout" split_words:"true"`
}

type StorageConfig struct {
	Driver          string `yaml:"driver" split_words:"true"` // local, s3, gcs
	Dir             string `yaml:"dir" split_words:"true"`
	Bucket          string `yaml:"bucket" split_words:"true"`
	Prefix          string `yaml:"prefix" split_words:"true"`
	Region          string `yaml:"region" split_words:"true"`
	Endpoint        string `yaml:"endpoint" split_words:"true"` // S3-compatible services such as MinIO
	CredentialsFile string `yaml:"credentials_file" split_words:"true"`
	PublicBaseURL   string `yaml:"public_base_url" split_words:"true"`
}

// RedisConfig for the optional async notification queue
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled" split_words:"true"`
	Addr     string `yaml:"addr" split_words:"true"`
	Password string `yaml:"password" split_words:"true"`
	DB       int    `yaml:"db" split_words:"true"`
}

type CaptchaConfig struct {
	Enabled   bool   `yaml:"enabled" split_words:"true"`
	Secret    string `yaml:"secret" split_words:"true"`
	VerifyURL string `yaml:"verify_url" split_words:"true"`
}

type WorkflowConfig struct {
	StepTimeout             time.Duration `yaml:"step_timeout" split_words:"true"`
	BlobRetryAttempts       int           `yaml:"blob_retry_attempts" split_words:"true"`
	BlobRetryInterval       time.Duration `yaml:"blob_retry_interval" split_words:"true"`
	NotificationMaxAttempts int           `yaml:"notification_max_attempts" split_words:"true"`
	RetrySchedule           string        `yaml:"retry_schedule" split_words:"true"`
	StalePendingAfter       time.Duration `yaml:"stale_pending_after" split_words:"true"`
	EventTimezone           string        `yaml:"event_timezone" split_words:"true"`
}

type LogConfig struct {
	Level                 string `yaml:"level" split_words:"true"`
	ActivityRetentionDays int    `yaml:"activity_retention_days" split_words:"true"`
}

var GlobalConfig *Config

func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}
		// Unmarshal over the defaults so partial files keep sane values.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", configPath, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	if err := cfg.overrideFromEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	GlobalConfig = cfg
	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         "8080",
			Mode:         "debug",
			AllowOrigins: "*",
		},
		Database: DatabaseConfig{
			Driver:   "sqlite",
			DSN:      "regdesk.db",
			LogLevel: "warn",
		},
		JWT: JWTConfig{
			Secret:     "regdesk-secret-key-change-in-production",
			ExpireHour: 12,
		},
		Admin: AdminConfig{
			Email:    "admin@regdesk.local",
			Password: "admin",
		},
		SMTP: SMTPConfig{
			Port:    587,
			UseTLS:  true,
			Timeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			Driver:        "local",
			Dir:           "uploads",
			PublicBaseURL: "http://localhost:8080/uploads",
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
		},
		Captcha: CaptchaConfig{
			VerifyURL: "https://challenges.cloudflare.com/turnstile/v0/siteverify",
		},
		Workflow: WorkflowConfig{
			StepTimeout:             10 * time.Second,
			BlobRetryAttempts:       3,
			BlobRetryInterval:       500 * time.Millisecond,
			NotificationMaxAttempts: 5,
			RetrySchedule:           "*/5 * * * *",
			StalePendingAfter:       15 * time.Minute,
			EventTimezone:           "UTC",
		},
		Log: LogConfig{
			Level:                 "info",
			ActivityRetentionDays: 90,
		},
	}
}

// overrideFromEnv overlays environment variables such as SERVER_PORT,
// DB_DSN or SMTP_HOST. Unset variables leave the current value alone.
func (c *Config) overrideFromEnv() error {
	if err := envconfig.Process("", c); err != nil {
		return fmt.Errorf("read environment: %w", err)
	}
	// Redis URL override (format: redis://:password@host:port/db)
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		c.Redis.Enabled = true
		c.parseRedisURL(redisURL)
	}
	return nil
}

// parseRedisURL parses a Redis URL and sets config values
// Format: redis://:password@host:port/db
func (c *Config) parseRedisURL(redisURL string) {
	url := strings.TrimPrefix(redisURL, "redis://")

	if atIdx := strings.Index(url, "@"); atIdx != -1 {
		authPart := url[:atIdx]
		url = url[atIdx+1:]
		if colonIdx := strings.Index(authPart, ":"); colonIdx != -1 {
			c.Redis.Password = authPart[colonIdx+1:]
		}
	}

	if slashIdx := strings.LastIndex(url, "/"); slashIdx != -1 {
		dbStr := url[slashIdx+1:]
		url = url[:slashIdx]
		if db, err := strconv.Atoi(dbStr); err == nil {
			c.Redis.DB = db
		}
	}

	c.Redis.Addr = url
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "mysql", "postgres":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	switch c.Storage.Driver {
	case "local", "s3", "gcs":
	default:
		return fmt.Errorf("unsupported storage driver: %s", c.Storage.Driver)
	}
	if c.Storage.Driver != "local" && c.Storage.Bucket == "" {
		return errors.New("storage bucket is required for remote storage drivers")
	}
	if c.Server.Mode == "release" && (c.JWT.Secret == "" || c.JWT.Secret == DefaultConfig().JWT.Secret) {
		return errors.New("jwt secret must be set in release mode")
	}
	if c.Workflow.BlobRetryAttempts < 1 {
		c.Workflow.BlobRetryAttempts = 1
	}
	return nil
}

// Origins returns the configured CORS origins.
func (s ServerConfig) Origins() []string {
	var origins []string
	for _, o := range strings.Split(s.AllowOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func (c *Config) Save(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0644)
}
