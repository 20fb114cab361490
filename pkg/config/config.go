package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Workflow      WorkflowConfig
	Notifications NotificationConfig
	SideEffects   SideEffectConfig
	Docs          DocsConfig
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
	MigrationsDir string

	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// WorkflowConfig holds the organisational rules used by access scoping.
type WorkflowConfig struct {
	ExecutiveDepartment string
}

// NotificationConfig tunes fan-out and recipient lookups.
type NotificationConfig struct {
	FanoutConcurrency     int
	RealtimeEnabled       bool
	DirectoryCacheEnabled bool
	DirectoryCacheTTL     time.Duration
}

// SideEffectConfig controls how audit and notification work is executed.
type SideEffectConfig struct {
	Async      bool
	Workers    int
	Retries    int
	RetryDelay time.Duration
}

// DocsConfig toggles the swagger UI.
type DocsConfig struct {
	Enabled bool
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
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:          v.GetString("DB_HOST"),
		Port:          v.GetInt("DB_PORT"),
		User:          v.GetString("DB_USER"),
		Password:      v.GetString("DB_PASSWORD"),
		Name:          v.GetString("DB_NAME"),
		SSLMode:       v.GetString("DB_SSL_MODE"),
		MaxOpenConns:  v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:  v.GetInt("DB_MAX_IDLE_CONNS"),
		MigrationsDir: v.GetString("DB_MIGRATIONS_DIR"),

		ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
		ConnMaxIdleTime: v.GetDuration("DB_CONN_MAX_IDLE_TIME"),
		ConnectTimeout:  v.GetDuration("DB_CONNECT_TIMEOUT"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Workflow = WorkflowConfig{
		ExecutiveDepartment: strings.TrimSpace(v.GetString("EXECUTIVE_DEPARTMENT")),
	}

	concurrency := v.GetInt("NOTIFY_FANOUT_CONCURRENCY")
	if concurrency <= 0 {
		concurrency = 8
	}
	cfg.Notifications = NotificationConfig{
		FanoutConcurrency:     concurrency,
		RealtimeEnabled:       v.GetBool("NOTIFY_REALTIME_ENABLED"),
		DirectoryCacheEnabled: v.GetBool("DIRECTORY_CACHE_ENABLED"),
		DirectoryCacheTTL:     parseDuration(v.GetString("DIRECTORY_CACHE_TTL"), 5*time.Minute),
	}

	cfg.SideEffects = SideEffectConfig{
		Async:      v.GetBool("SIDE_EFFECTS_ASYNC"),
		Workers:    v.GetInt("SIDE_EFFECTS_WORKERS"),
		Retries:    v.GetInt("SIDE_EFFECTS_RETRIES"),
		RetryDelay: parseDuration(v.GetString("SIDE_EFFECTS_RETRY_DELAY"), time.Second),
	}

	cfg.Docs = DocsConfig{Enabled: v.GetBool("ENABLE_DOCS")}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "civic_workflow")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_MIGRATIONS_DIR", "migrations")
	v.SetDefault("DB_CONN_MAX_LIFETIME", time.Hour)
	v.SetDefault("DB_CONN_MAX_IDLE_TIME", 30*time.Minute)
	v.SetDefault("DB_CONNECT_TIMEOUT", 5*time.Second)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("JWT_ISSUER", "civic-workflow-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("EXECUTIVE_DEPARTMENT", "Başkanlık")

	v.SetDefault("NOTIFY_FANOUT_CONCURRENCY", 8)
	v.SetDefault("NOTIFY_REALTIME_ENABLED", false)
	v.SetDefault("DIRECTORY_CACHE_ENABLED", false)
	v.SetDefault("DIRECTORY_CACHE_TTL", "5m")

	v.SetDefault("SIDE_EFFECTS_ASYNC", false)
	v.SetDefault("SIDE_EFFECTS_WORKERS", 4)
	v.SetDefault("SIDE_EFFECTS_RETRIES", 3)
	v.SetDefault("SIDE_EFFECTS_RETRY_DELAY", "1s")

	v.SetDefault("ENABLE_DOCS", true)
}

func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
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

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
