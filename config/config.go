// Package config loads service configuration from an optional JSON file
// with environment variable overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	ServerConfig   ServerConfig   `json:"server"`
	DatabaseConfig DatabaseConfig `json:"database"`
	RedisConfig    RedisConfig    `json:"redis"`
	MarketConfig   MarketConfig   `json:"market"`
	AuthConfig     AuthConfig     `json:"auth"`
	RunnerConfig   RunnerConfig   `json:"runner"`
	LoggingConfig  LoggingConfig  `json:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	ProductionMode bool     `json:"production_mode"`
	AllowedOrigins []string `json:"allowed_origins"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig holds Redis configuration for crossover state persistence
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// MarketConfig holds market data source configuration
type MarketConfig struct {
	BaseURL      string `json:"base_url"`
	CacheTTLSecs int    `json:"cache_ttl_seconds"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	Enabled       bool   `json:"enabled"`
	JWTSecret     string `json:"jwt_secret"`
	TokenHours    int    `json:"token_hours"`
	AdminUser     string `json:"admin_user"`
	AdminPassword string `json:"admin_password"`
}

// RunnerConfig holds the evaluation loop configuration
type RunnerConfig struct {
	Enabled         bool `json:"enabled"`
	IntervalSeconds int  `json:"interval_seconds"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `json:"level"`       // debug, info, warn, error
	JSONFormat bool   `json:"json_format"` // console output when false
}

// Load reads config.json when present and applies environment overrides.
func Load() (*Config, error) {
	cfg, err := loadFromFile("config.json")
	if err != nil {
		// If no config file, start with defaults
		cfg = &Config{}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	// Server config
	cfg.ServerConfig.Host = getEnvOrDefault("SERVER_HOST", defaultString(cfg.ServerConfig.Host, "0.0.0.0"))
	cfg.ServerConfig.Port = getEnvIntOrDefault("SERVER_PORT", defaultInt(cfg.ServerConfig.Port, 8090))
	cfg.ServerConfig.ProductionMode = getEnvOrDefault("PRODUCTION_MODE", boolString(cfg.ServerConfig.ProductionMode)) == "true"

	// Database config
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", defaultString(cfg.DatabaseConfig.Host, "localhost"))
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", defaultInt(cfg.DatabaseConfig.Port, 5432))
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", defaultString(cfg.DatabaseConfig.User, "postgres"))
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", defaultString(cfg.DatabaseConfig.Database, "condition_engine"))
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", defaultString(cfg.DatabaseConfig.SSLMode, "disable"))

	// Redis config
	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", boolString(cfg.RedisConfig.Enabled)) == "true"
	cfg.RedisConfig.Addr = getEnvOrDefault("REDIS_ADDR", defaultString(cfg.RedisConfig.Addr, "localhost:6379"))
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)

	// Market data config
	cfg.MarketConfig.BaseURL = getEnvOrDefault("MARKET_BASE_URL", cfg.MarketConfig.BaseURL)
	cfg.MarketConfig.CacheTTLSecs = getEnvIntOrDefault("MARKET_CACHE_TTL", defaultInt(cfg.MarketConfig.CacheTTLSecs, 15))

	// Auth config
	cfg.AuthConfig.Enabled = getEnvOrDefault("AUTH_ENABLED", boolString(cfg.AuthConfig.Enabled)) == "true"
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("JWT_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.TokenHours = getEnvIntOrDefault("JWT_TOKEN_HOURS", defaultInt(cfg.AuthConfig.TokenHours, 24))
	cfg.AuthConfig.AdminUser = getEnvOrDefault("ADMIN_USER", defaultString(cfg.AuthConfig.AdminUser, "admin"))
	cfg.AuthConfig.AdminPassword = getEnvOrDefault("ADMIN_PASSWORD", cfg.AuthConfig.AdminPassword)

	// Runner config
	cfg.RunnerConfig.Enabled = getEnvOrDefault("RUNNER_ENABLED", "true") == "true"
	cfg.RunnerConfig.IntervalSeconds = getEnvIntOrDefault("RUNNER_INTERVAL", defaultInt(cfg.RunnerConfig.IntervalSeconds, 60))

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", defaultString(cfg.LoggingConfig.Level, "info"))
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", boolString(cfg.LoggingConfig.JSONFormat)) == "true"
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func defaultString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func defaultInt(value, fallback int) int {
	if value == 0 {
		return fallback
	}
	return value
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
