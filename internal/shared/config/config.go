package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Gemini   GeminiConfig   `mapstructure:"gemini"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// StorageConfig holds object storage (R2/S3) configuration.
type StorageConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Bucket          string `mapstructure:"bucket"`
	PublicBaseURL   string `mapstructure:"public_base_url"`
}

// GeminiConfig holds generation API configuration.
type GeminiConfig struct {
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	Model      string        `mapstructure:"model"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxImages  int           `mapstructure:"max_images"`
	MaxFetchMB int           `mapstructure:"max_fetch_mb"`
}

// PipelineConfig holds generation pipeline configuration.
type PipelineConfig struct {
	MaxConcurrentRuns int           `mapstructure:"max_concurrent_runs"`
	RunRetention      time.Duration `mapstructure:"run_retention"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
	ProgressClearWait time.Duration `mapstructure:"progress_clear_wait"`
}

// CacheConfig holds Redis cache configuration. Redis is optional; an empty
// address disables the generate-result cache.
type CacheConfig struct {
	Address  string        `mapstructure:"address"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/gemkit")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found, use defaults and env
	}

	v.SetEnvPrefix("GEMKIT")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Override with environment variables for sensitive values
	if key := os.Getenv("GEMKIT_STORAGE_ACCESS_KEY_ID"); key != "" {
		cfg.Storage.AccessKeyID = key
	}
	if key := os.Getenv("GEMKIT_STORAGE_SECRET_KEY"); key != "" {
		cfg.Storage.SecretAccessKey = key
	}
	if key := os.Getenv("GEMKIT_GEMINI_API_KEY"); key != "" {
		cfg.Gemini.APIKey = key
	}
	if password := os.Getenv("GEMKIT_REDIS_PASSWORD"); password != "" {
		cfg.Cache.Password = password
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 2*time.Minute)
	v.SetDefault("server.idle_timeout", 120*time.Second)

	// Storage defaults
	v.SetDefault("storage.region", "auto")

	// Gemini defaults
	v.SetDefault("gemini.base_url", "https://generativelanguage.googleapis.com")
	v.SetDefault("gemini.model", "gemini-2.5-flash-image")
	v.SetDefault("gemini.timeout", 120*time.Second)
	v.SetDefault("gemini.max_images", 3)
	v.SetDefault("gemini.max_fetch_mb", 7)

	// Pipeline defaults
	v.SetDefault("pipeline.max_concurrent_runs", 4)
	v.SetDefault("pipeline.run_retention", time.Hour)
	v.SetDefault("pipeline.cleanup_interval", 5*time.Minute)
	v.SetDefault("pipeline.progress_clear_wait", 3*time.Second)

	// Cache defaults
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.ttl", 24*time.Hour)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}
