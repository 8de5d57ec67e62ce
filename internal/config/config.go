package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	"github.com/wb-go/wbf/zlog"
)

// Config holds the main configuration for the backend.
type Config struct {
	Server   Server   `mapstructure:"server"`
	Database Database `mapstructure:"database"`
	Storage  Storage  `mapstructure:"storage"`
	Kafka    Kafka    `mapstructure:"kafka"`
	Retry    Retry    `mapstructure:"retry"`
	Auth     Auth     `mapstructure:"auth"`
	Quota    Quota    `mapstructure:"quota"`
}

// Server holds HTTP server-related configuration.
type Server struct {
	HTTPPort      string `mapstructure:"http_port"`       // HTTP port to listen on
	MaxUploadSize int64  `mapstructure:"max_upload_size"` // multipart body limit in bytes
}

// Database holds database master and slave configuration.
type Database struct {
	Master DatabaseNode   `mapstructure:"master"`
	Slaves []DatabaseNode `mapstructure:"slaves"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DatabaseNode holds connection parameters for a single database node.
type DatabaseNode struct {
	Host    string `mapstructure:"host"`
	Port    string `mapstructure:"port"`
	User    string `mapstructure:"user"`
	Pass    string `mapstructure:"pass"`
	Name    string `mapstructure:"name"`
	SSLMode string `mapstructure:"ssl_mode"`
}

// Storage holds configuration for the durable object storage.
type Storage struct {
	Endpoint   string        `mapstructure:"endpoint"`
	AccessKey  string        `mapstructure:"access_key"`
	SecretKey  string        `mapstructure:"secret_key"`
	BucketName string        `mapstructure:"bucket_name"`
	UseSSL     bool          `mapstructure:"use_ssl"`
	URLExpiry  time.Duration `mapstructure:"url_expiry"` // lifetime of presigned download URLs
}

// Kafka holds configuration for the usage event topic.
type Kafka struct {
	GroupID string   `mapstructure:"group_id"` // Consumer group ID
	Topic   string   `mapstructure:"topic"`    // Kafka topic name
	Brokers []string `mapstructure:"brokers"`  // List of Kafka broker addresses
}

// Retry defines retry policy configuration.
type Retry struct {
	Attempts int           `mapstructure:"attempts"` // Number of retry attempts
	Delay    time.Duration `mapstructure:"delay"`    // Initial delay between retries
	Backoff  float64       `mapstructure:"backoff"`  // Backoff multiplier for delays
}

// Auth holds bearer token verification settings.
type Auth struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// Quota holds the plan limits applied to new registered accounts.
type Quota struct {
	RegisteredDailyLimit int    `mapstructure:"registered_daily_limit"`
	StorageQuotaBytes    int64  `mapstructure:"storage_quota_bytes"`
	Timezone             string `mapstructure:"timezone"`
}

// Location resolves the reporting timezone, falling back to UTC.
func (q Quota) Location() *time.Location {
	if q.Timezone == "" {
		return time.UTC
	}

	loc, err := time.LoadLocation(q.Timezone)
	if err != nil {
		zlog.Logger.Warn().Err(err).Str("timezone", q.Timezone).Msg("unknown timezone, using UTC")
		return time.UTC
	}

	return loc
}

// DSN returns the PostgreSQL DSN string for connecting to this database node.
func (n DatabaseNode) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		n.User, n.Pass, n.Host, n.Port, n.Name, n.SSLMode,
	)
}

// mustBindEnv binds critical environment variables to Viper keys.
//
// It panics if any environment variable cannot be bound.
func mustBindEnv(v *viper.Viper) {
	bindings := map[string]string{
		"database.master.host": "DB_HOST",
		"database.master.port": "DB_PORT",
		"database.master.user": "DB_USER",
		"database.master.pass": "DB_PASSWORD",
		"database.master.name": "DB_NAME",
		"storage.access_key":   "MINIO_ROOT_USER",
		"storage.secret_key":   "MINIO_ROOT_PASSWORD",
		"auth.jwt_secret":      "JWT_SECRET",
	}

	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			zlog.Logger.Panic().Err(err).Msgf("failed to bind env %s", env)
		}
	}
}

func setServerDefaults(v *viper.Viper) {
	v.SetDefault("server.http_port", ":8080")
	v.SetDefault("server.max_upload_size", 32<<20)
	v.SetDefault("storage.url_expiry", 24*time.Hour)
	v.SetDefault("kafka.topic", "usage-reports")
	v.SetDefault("kafka.group_id", "usage-collector")
	v.SetDefault("retry.attempts", 3)
	v.SetDefault("retry.delay", 100*time.Millisecond)
	v.SetDefault("retry.backoff", 2.0)
	v.SetDefault("quota.registered_daily_limit", 100)
	v.SetDefault("quota.storage_quota_bytes", int64(1<<30))
	v.SetDefault("quota.timezone", "UTC")
}

// MustLoad loads the backend configuration from the specified file path.
// It panics if the configuration file cannot be loaded or unmarshaled.
func MustLoad(path string) *Config {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	setServerDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		zlog.Logger.Panic().Err(err).Msg("failed to read config")
	}

	mustBindEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		zlog.Logger.Panic().Err(err).Msgf("failed to unmarshal config: %v", err)
	}

	return &cfg
}
