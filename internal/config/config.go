package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/saedlagr/foodio-beta-sub000/internal/media"
	"github.com/saedlagr/foodio-beta-sub000/internal/tracker"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Feed       FeedConfig       `mapstructure:"feed"`
	Workflow   WorkflowConfig   `mapstructure:"workflow"`
	Tracker    TrackerConfig    `mapstructure:"tracker"`
	Submission SubmissionConfig `mapstructure:"submission"`
	Auth       AuthConfig       `mapstructure:"auth"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN builds the connection string for the configured driver.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
	}
	return c.Path
}

// URL is the postgres connection URL used by the LISTEN feed.
func (c *DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

type StorageConfig struct {
	Type      string `mapstructure:"type"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	PublicURL string `mapstructure:"public_url"`
}

type FeedConfig struct {
	// Type is postgres, redis or none.
	Type          string `mapstructure:"type"`
	Channel       string `mapstructure:"channel"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

type WorkflowConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	Secret     string        `mapstructure:"secret"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RetryCount int           `mapstructure:"retry_count"`
}

type IntervalStepConfig struct {
	Until    time.Duration `mapstructure:"until"`
	Interval time.Duration `mapstructure:"interval"`
}

type TrackerConfig struct {
	MinInterval time.Duration        `mapstructure:"min_interval"`
	MaxInterval time.Duration        `mapstructure:"max_interval"`
	MaxDuration time.Duration        `mapstructure:"max_duration"`
	MaxErrors   int                  `mapstructure:"max_errors"`
	Steps       []IntervalStepConfig `mapstructure:"steps"`
}

// Policy converts the section into a polling policy.
func (c TrackerConfig) Policy() tracker.PollPolicy {
	steps := make([]tracker.IntervalStep, len(c.Steps))
	for i, s := range c.Steps {
		steps[i] = tracker.IntervalStep{Until: s.Until, Interval: s.Interval}
	}
	return tracker.PollPolicy{
		MinInterval: c.MinInterval,
		MaxInterval: c.MaxInterval,
		MaxDuration: c.MaxDuration,
		MaxErrors:   c.MaxErrors,
		Steps:       steps,
	}
}

type SubmissionConfig struct {
	MaxBytes     int64 `mapstructure:"max_bytes"`
	MinDimension int   `mapstructure:"min_dimension"`
}

// Limits converts the section into upload limits.
func (c SubmissionConfig) Limits() media.Limits {
	return media.Limits{MaxBytes: c.MaxBytes, MinDimension: c.MinDimension}
}

type AuthConfig struct {
	// UserHeader carries the authenticated user id, set by the fronting proxy.
	UserHeader string `mapstructure:"user_header"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Secrets come from the environment under their conventional names.
	_ = v.BindEnv("database.password", "DATABASE_PASSWORD", "PGPASSWORD")
	_ = v.BindEnv("storage.access_key", "STORAGE_ACCESS_KEY", "AWS_ACCESS_KEY_ID")
	_ = v.BindEnv("storage.secret_key", "STORAGE_SECRET_KEY", "AWS_SECRET_ACCESS_KEY")
	_ = v.BindEnv("feed.redis_password", "REDIS_PASSWORD")
	_ = v.BindEnv("workflow.webhook_url", "WORKFLOW_WEBHOOK_URL")
	_ = v.BindEnv("workflow.secret", "WORKFLOW_SECRET")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/foodio.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.dbname", "foodio")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("storage.type", "s3compatible")
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.bucket", "food-images")

	v.SetDefault("feed.type", "none")
	v.SetDefault("feed.channel", "processed_images_changes")
	v.SetDefault("feed.redis_addr", "localhost:6379")
	v.SetDefault("feed.redis_db", 0)

	v.SetDefault("workflow.timeout", "15s")
	v.SetDefault("workflow.retry_count", 2)

	v.SetDefault("tracker.min_interval", "3s")
	v.SetDefault("tracker.max_interval", "30s")
	v.SetDefault("tracker.max_duration", "8m")
	v.SetDefault("tracker.max_errors", 3)
	v.SetDefault("tracker.steps", []map[string]interface{}{
		{"until": "30s", "interval": "3s"},
		{"until": "2m", "interval": "5s"},
		{"until": "4m", "interval": "10s"},
		{"until": "6m", "interval": "20s"},
	})

	v.SetDefault("submission.max_bytes", 10<<20)
	v.SetDefault("submission.min_dimension", 256)

	v.SetDefault("auth.user_header", "X-User-ID")
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unsupported database driver %q", c.Database.Driver)
	}
	switch c.Feed.Type {
	case "none", "redis":
	case "postgres":
		if c.Database.Driver != "postgres" {
			return errors.New("config: postgres feed requires the postgres database driver")
		}
	default:
		return fmt.Errorf("config: unsupported feed type %q", c.Feed.Type)
	}
	if c.Storage.Bucket == "" {
		return errors.New("config: storage.bucket is required")
	}
	t := c.Tracker
	if t.MinInterval <= 0 || t.MaxInterval < t.MinInterval {
		return fmt.Errorf("config: invalid polling interval range %s..%s", t.MinInterval, t.MaxInterval)
	}
	if t.MaxDuration <= 0 || t.MaxErrors <= 0 {
		return errors.New("config: tracker.max_duration and tracker.max_errors must be positive")
	}
	if c.Auth.UserHeader == "" {
		return errors.New("config: auth.user_header is required")
	}
	return nil
}
