package config

import (
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	DatabaseURL string `mapstructure:"database_url"`
	RedisURL    string `mapstructure:"redis_url"`
	Port        string `mapstructure:"port"`

	// Access tokens are HS256-signed with this secret
	JWTSecret string `mapstructure:"jwt_secret"`

	Log       LogConfig       `mapstructure:"log"`
	Quota     QuotaConfig     `mapstructure:"quota"`
	Hierarchy HierarchyConfig `mapstructure:"hierarchy"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Audit     AuditConfig     `mapstructure:"audit"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json | text
}

// QuotaConfig holds the ceilings given to organizations on first use
type QuotaConfig struct {
	Defaults QuotaDefaults `mapstructure:"defaults"`
}

type QuotaDefaults struct {
	ContextItems    int `mapstructure:"context_items"`
	GlobalAccess    int `mapstructure:"global_access"`
	SharingRequests int `mapstructure:"sharing_requests"`
}

type HierarchyConfig struct {
	MaxDepth int `mapstructure:"max_depth"`
}

// CacheConfig controls the resolved-feature cache.
// Backend is "redis", "memory" or "none".
type CacheConfig struct {
	Backend string        `mapstructure:"backend"`
	TTL     time.Duration `mapstructure:"ttl"`
	Size    int           `mapstructure:"size"`
}

type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Queue   string `mapstructure:"queue"`
}

// App holds the global config instance
var App Config

// LoadConfig loads configuration from file and environment variables
func LoadConfig(path string) error {
	// Auto-load .env file if present (local development convenience)
	if err := godotenv.Load(); err == nil {
		log.Info("Loaded .env file")
	}

	v := viper.New()

	// Set default values
	v.SetDefault("port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("quota.defaults.context_items", 1000)
	v.SetDefault("quota.defaults.global_access", 10)
	v.SetDefault("quota.defaults.sharing_requests", 100)
	v.SetDefault("hierarchy.max_depth", 32)
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl", "5m")
	v.SetDefault("cache.size", 1024)
	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.queue", "audit:queue")

	// Config file settings
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		v.SetConfigName("dev.config") // Look for dev.config.yaml
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("enablement")

	// Bind standard environment variables (Docker/deploy compatibility)
	_ = v.BindEnv("database_url", "DATABASE_URL")
	_ = v.BindEnv("redis_url", "REDIS_URL")
	_ = v.BindEnv("port", "PORT")
	_ = v.BindEnv("jwt_secret", "JWT_SECRET")
	_ = v.BindEnv("log.level", "LOG_LEVEL")
	_ = v.BindEnv("log.format", "LOG_FORMAT")

	// Bind tuning env vars
	_ = v.BindEnv("quota.defaults.context_items", "QUOTA_DEFAULT_CONTEXT_ITEMS")
	_ = v.BindEnv("quota.defaults.global_access", "QUOTA_DEFAULT_GLOBAL_ACCESS")
	_ = v.BindEnv("quota.defaults.sharing_requests", "QUOTA_DEFAULT_SHARING_REQUESTS")
	_ = v.BindEnv("hierarchy.max_depth", "HIERARCHY_MAX_DEPTH")
	_ = v.BindEnv("cache.backend", "CACHE_BACKEND")
	_ = v.BindEnv("cache.ttl", "CACHE_TTL")
	_ = v.BindEnv("audit.enabled", "AUDIT_ENABLED")

	v.AutomaticEnv()

	// 1. Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Info("No config file found, using defaults and environment variables")
		} else {
			return err
		}
	} else {
		log.Infof("Loaded config from: %s", v.ConfigFileUsed())
	}

	// 2. Unmarshal into struct
	if err := v.Unmarshal(&App); err != nil {
		return err
	}

	return nil
}
