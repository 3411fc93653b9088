package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	Env  string
	Port int

	Database      DatabaseConfig
	Redis         RedisConfig
	Log           LogConfig
	Store         StoreConfig
	Notifications NotificationConfig
	Completion    CompletionConfig
}

type DatabaseConfig struct {
	Host          string
	Port          int
	User          string
	Password      string
	Name          string
	SSLMode       string
	MaxOpenConns  int
	MaxIdleConns  int
	RunMigrations bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type LogConfig struct {
	Level  string
	Format string
}

// StoreConfig selects the request store backend.
type StoreConfig struct {
	Driver string
}

// NotificationConfig tunes asynchronous notification delivery. ActiveAdminsOnly drops
// deactivated staff and superusers from admin broadcasts.
type NotificationConfig struct {
	Workers          int
	BufferSize       int
	MaxRetries       int
	RetryDelay       time.Duration
	RealtimeEnabled  bool
	ChannelPrefix    string
	ActiveAdminsOnly bool
}

// CompletionConfig governs how strictly the complete operation is checked.
type CompletionConfig struct {
	AllowFromAnyStatus bool
	RequireEvidence    bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")

	cfg.Database = DatabaseConfig{
		Host:          v.GetString("DB_HOST"),
		Port:          v.GetInt("DB_PORT"),
		User:          v.GetString("DB_USER"),
		Password:      v.GetString("DB_PASSWORD"),
		Name:          v.GetString("DB_NAME"),
		SSLMode:       v.GetString("DB_SSL_MODE"),
		MaxOpenConns:  v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:  v.GetInt("DB_MAX_IDLE_CONNS"),
		RunMigrations: v.GetBool("RUN_MIGRATIONS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	driver := strings.ToLower(strings.TrimSpace(v.GetString("STORE_DRIVER")))
	if driver != StoreDriverMemory {
		driver = StoreDriverPostgres
	}
	cfg.Store = StoreConfig{Driver: driver}

	cfg.Notifications = NotificationConfig{
		Workers:          v.GetInt("NOTIFY_WORKERS"),
		BufferSize:       v.GetInt("NOTIFY_BUFFER"),
		MaxRetries:       v.GetInt("NOTIFY_RETRIES"),
		RetryDelay:       parseDuration(v.GetString("NOTIFY_RETRY_DELAY"), 2*time.Second),
		RealtimeEnabled:  v.GetBool("NOTIFY_REALTIME_ENABLED"),
		ChannelPrefix:    v.GetString("NOTIFY_CHANNEL_PREFIX"),
		ActiveAdminsOnly: v.GetBool("NOTIFY_ACTIVE_ADMINS_ONLY"),
	}

	cfg.Completion = CompletionConfig{
		AllowFromAnyStatus: v.GetBool("COMPLETION_ALLOW_ANY_STATUS"),
		RequireEvidence:    v.GetBool("COMPLETION_REQUIRE_EVIDENCE"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "facility_maintenance")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("RUN_MIGRATIONS", true)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("STORE_DRIVER", StoreDriverPostgres)

	v.SetDefault("NOTIFY_WORKERS", 2)
	v.SetDefault("NOTIFY_BUFFER", 64)
	v.SetDefault("NOTIFY_RETRIES", 3)
	v.SetDefault("NOTIFY_RETRY_DELAY", "2s")
	v.SetDefault("NOTIFY_REALTIME_ENABLED", false)
	v.SetDefault("NOTIFY_CHANNEL_PREFIX", "notifications")
	v.SetDefault("NOTIFY_ACTIVE_ADMINS_ONLY", false)

	v.SetDefault("COMPLETION_ALLOW_ANY_STATUS", true)
	v.SetDefault("COMPLETION_REQUIRE_EVIDENCE", false)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}
