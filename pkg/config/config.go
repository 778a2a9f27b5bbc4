package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Database  DatabaseConfig
	Redis     RedisConfig
	Server    ServerConfig
	Ledger    LedgerConfig
	Fraud     FraudConfig
	AI        AIConfig
	Logging   LoggingConfig
	Telemetry TelemetryConfig
}

// DatabaseConfig holds relational mirror configuration. An empty URL disables the mirror.
type DatabaseConfig struct {
	URL          string
	Enabled      bool
	SyncInterval time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	URL      string
	Enabled  bool
	CacheTTL time.Duration
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int
	Host string
}

// LedgerConfig selects where the block sequence is persisted.
type LedgerConfig struct {
	Backend    string // "file" or "redis"
	Path       string
	StorageKey string
}

// FraudConfig controls the stochastic fraud triggers.
type FraudConfig struct {
	Sampling bool
	Seed     int64
}

// AIConfig holds the condition classifier configuration
type AIConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string
	Format       string // "json" or "text"
	ScalyrFormat bool   // Enable Scalyr-compatible JSON format
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	Enabled           bool
	JaegerURL         string
	PrometheusEnabled bool
	PrometheusPort    int
	ServiceName       string
}

// Load loads configuration from environment variables and config file
func Load() (*Config, error) {
	setDefaults()

	viper.SetEnvPrefix("CHAINGUARD")
	viper.AutomaticEnv()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.chainguard")
	viper.AddConfigPath("/etc/chainguard")

	if err := viper.ReadInConfig(); err != nil {
		// Config file not found; this is OK if we have env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{
		Database: DatabaseConfig{
			URL:          getString("database_url", ""),
			Enabled:      getString("database_url", "") != "",
			SyncInterval: GetDuration("mirror_sync_interval", 3*time.Second),
		},
		Redis: RedisConfig{
			URL:      getString("redis_url", ""),
			Enabled:  getString("redis_url", "") != "",
			CacheTTL: GetDuration("cache_ttl", 30*time.Second),
		},
		Server: ServerConfig{
			Port: getInt("http_server_port", 4000),
			Host: getString("http_server_host", "0.0.0.0"),
		},
		Ledger: LedgerConfig{
			Backend:    getString("ledger_backend", "file"),
			Path:       getString("ledger_path", "./data/chain.json"),
			StorageKey: getString("ledger_storage_key", "chainguard_chain_v2"),
		},
		Fraud: FraudConfig{
			Sampling: getBool("fraud_sampling", false),
			Seed:     int64(getInt("fraud_seed", 0)),
		},
		AI: AIConfig{
			APIKey:  getString("api_key", ""),
			Model:   getString("ai_model", "gemini-2.5-flash"),
			Timeout: GetDuration("ai_timeout", 20*time.Second),
		},
		Logging: LoggingConfig{
			Level:        getString("log_level", "INFO"),
			Format:       getString("log_format", "json"),
			ScalyrFormat: getBool("log_scalyr_format", false),
		},
		Telemetry: TelemetryConfig{
			Enabled:           getBool("telemetry_enabled", false),
			JaegerURL:         getString("jaeger_url", ""),
			PrometheusEnabled: getBool("prometheus_enabled", true),
			PrometheusPort:    getInt("prometheus_port", 9090),
			ServiceName:       getString("service_name", "chainguard"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults() {
	viper.SetDefault("http_server_port", 4000)
	viper.SetDefault("http_server_host", "0.0.0.0")
	viper.SetDefault("ledger_backend", "file")
	viper.SetDefault("ledger_path", "./data/chain.json")
	viper.SetDefault("ledger_storage_key", "chainguard_chain_v2")
	viper.SetDefault("ai_model", "gemini-2.5-flash")
	viper.SetDefault("log_level", "INFO")
	viper.SetDefault("log_format", "json")
	viper.SetDefault("prometheus_enabled", true)
	viper.SetDefault("prometheus_port", 9090)
	viper.SetDefault("service_name", "chainguard")
}

func getString(key, defaultValue string) string {
	if viper.IsSet(key) {
		return viper.GetString(key)
	}
	// Also check environment variable directly
	if val := os.Getenv("CHAINGUARD_" + toEnvKey(key)); val != "" {
		return val
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if viper.IsSet(key) {
		return viper.GetInt(key)
	}
	if val := os.Getenv("CHAINGUARD_" + toEnvKey(key)); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if viper.IsSet(key) {
		return viper.GetBool(key)
	}
	if val := os.Getenv("CHAINGUARD_" + toEnvKey(key)); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultValue
}

// toEnvKey maps a snake_case key to its UPPER_SNAKE_CASE environment name.
func toEnvKey(key string) string {
	result := make([]rune, 0, len(key))
	for _, r := range key {
		switch {
		case r == '-':
			result = append(result, '_')
		case r >= 'a' && r <= 'z':
			result = append(result, r-'a'+'A')
		default:
			result = append(result, r)
		}
	}
	return string(result)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Ledger.Backend {
	case "file":
		if c.Ledger.Path == "" {
			return fmt.Errorf("ledger_path is required for the file backend")
		}
	case "redis":
		if !c.Redis.Enabled {
			return fmt.Errorf("redis_url is required for the redis ledger backend")
		}
		if c.Ledger.StorageKey == "" {
			return fmt.Errorf("ledger_storage_key is required for the redis backend")
		}
	default:
		return fmt.Errorf("ledger_backend must be one of file, redis (got %q)", c.Ledger.Backend)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("http_server_port must be between 1 and 65535")
	}
	if c.AI.Timeout < 0 {
		return fmt.Errorf("ai_timeout must not be negative")
	}
	return nil
}

// GetDuration returns a duration from config key, with default
func GetDuration(key string, defaultValue time.Duration) time.Duration {
	if viper.IsSet(key) {
		return viper.GetDuration(key)
	}
	if val := os.Getenv("CHAINGUARD_" + toEnvKey(key)); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultValue
}
