package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/eugenenazirov/stamp-dispenser/internal/dispenser"
	"github.com/eugenenazirov/stamp-dispenser/internal/storage"
)

const (
	defaultPort            = "8080"
	defaultMaxRequest      = dispenser.MaxRequest
	defaultRateLimitRPS    = 25.0
	defaultRateLimitBurst  = 50
	defaultCacheTTL        = time.Hour
	defaultCacheMaxEntries = 10_000
	defaultLogLevel        = "info"
)

// Config aggregates runtime configuration resolved from multiple sources.
// Precedence: CLI flags > YAML config > Environment variables > Defaults
type Config struct {
	Port                 string
	InitialDenominations []int
	MaxRequest           int
	ShutdownGracePeriod  time.Duration
	ReadHeaderTimeout    time.Duration
	WriteTimeout         time.Duration
	IdleTimeout          time.Duration
	EnableRequestLogging bool
	RateLimitRPS         float64
	RateLimitBurst       int
	RedisAddr            string
	CacheTTL             time.Duration
	CacheMaxEntries      int
	LogLevel             string
}

// yamlConfig represents the YAML configuration file structure.
type yamlConfig struct {
	Port                 string        `yaml:"port"`
	Denominations        []int         `yaml:"denominations"`
	MaxRequest           int           `yaml:"max_request"`
	ShutdownGracePeriod  string        `yaml:"shutdown_grace_period"`
	ReadHeaderTimeout    string        `yaml:"read_header_timeout"`
	WriteTimeout         string        `yaml:"write_timeout"`
	IdleTimeout          string        `yaml:"idle_timeout"`
	EnableRequestLogging *bool         `yaml:"enable_request_logging"`
	RateLimit            yamlRateLimit `yaml:"rate_limit"`
	Cache                yamlCache     `yaml:"cache"`
	LogLevel             string        `yaml:"log_level"`
}

// yamlRateLimit represents the rate limit section in YAML.
type yamlRateLimit struct {
	RPS   *float64 `yaml:"rps"`
	Burst *int     `yaml:"burst"`
}

// yamlCache represents the cache section in YAML.
type yamlCache struct {
	RedisAddr  string `yaml:"redis_addr"`
	TTL        string `yaml:"ttl"`
	MaxEntries int    `yaml:"max_entries"`
}

// CLIOverrides holds command-line flag overrides.
type CLIOverrides struct {
	ConfigFile       string
	Port             *string
	DenominationsStr *string
	MaxRequest       *int
	RateLimitRPS     *float64
	RateLimitBurst   *int
	RedisAddr        *string
	LogLevel         *string
}

// Load extracts configuration from multiple sources with precedence:
// CLI flags > YAML config > Environment variables > Defaults
func Load(overrides *CLIOverrides) (Config, error) {
	cfg := defaultConfig()

	// Apply environment variables
	applyEnvConfig(&cfg)

	// Load from YAML file if specified (overrides environment)
	if overrides != nil && overrides.ConfigFile != "" {
		yamlCfg, err := loadFromFile(overrides.ConfigFile)
		if err != nil {
			return Config{}, fmt.Errorf("load YAML config: %w", err)
		}
		if err := applyYAMLConfig(&cfg, yamlCfg); err != nil {
			return Config{}, fmt.Errorf("apply YAML config: %w", err)
		}
	}

	// Apply CLI overrides (highest precedence)
	if overrides != nil {
		if err := applyCLIOverrides(&cfg, overrides); err != nil {
			return Config{}, err
		}
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// defaultConfig returns a Config with default values.
func defaultConfig() Config {
	return Config{
		Port:                 defaultPort,
		InitialDenominations: storage.DefaultDenominations(),
		MaxRequest:           defaultMaxRequest,
		ShutdownGracePeriod:  10 * time.Second,
		ReadHeaderTimeout:    5 * time.Second,
		WriteTimeout:         15 * time.Second,
		IdleTimeout:          60 * time.Second,
		EnableRequestLogging: true,
		RateLimitRPS:         defaultRateLimitRPS,
		RateLimitBurst:       defaultRateLimitBurst,
		CacheTTL:             defaultCacheTTL,
		CacheMaxEntries:      defaultCacheMaxEntries,
		LogLevel:             defaultLogLevel,
	}
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(path string) (*yamlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	return &yamlCfg, nil
}

// applyYAMLConfig applies YAML configuration to the Config struct.
// Only keys present in the file take effect.
func applyYAMLConfig(cfg *Config, yamlCfg *yamlConfig) error {
	if yamlCfg.Port != "" {
		cfg.Port = yamlCfg.Port
	}

	if len(yamlCfg.Denominations) > 0 {
		cfg.InitialDenominations = yamlCfg.Denominations
	}

	if yamlCfg.MaxRequest != 0 {
		cfg.MaxRequest = yamlCfg.MaxRequest
	}

	durations := []struct {
		raw    string
		target *time.Duration
		key    string
	}{
		{yamlCfg.ShutdownGracePeriod, &cfg.ShutdownGracePeriod, "shutdown_grace_period"},
		{yamlCfg.ReadHeaderTimeout, &cfg.ReadHeaderTimeout, "read_header_timeout"},
		{yamlCfg.WriteTimeout, &cfg.WriteTimeout, "write_timeout"},
		{yamlCfg.IdleTimeout, &cfg.IdleTimeout, "idle_timeout"},
		{yamlCfg.Cache.TTL, &cfg.CacheTTL, "cache.ttl"},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
		*d.target = parsed
	}

	if yamlCfg.EnableRequestLogging != nil {
		cfg.EnableRequestLogging = *yamlCfg.EnableRequestLogging
	}

	if yamlCfg.RateLimit.RPS != nil {
		cfg.RateLimitRPS = *yamlCfg.RateLimit.RPS
	}

	if yamlCfg.RateLimit.Burst != nil {
		cfg.RateLimitBurst = *yamlCfg.RateLimit.Burst
	}

	if yamlCfg.Cache.RedisAddr != "" {
		cfg.RedisAddr = yamlCfg.Cache.RedisAddr
	}

	if yamlCfg.Cache.MaxEntries != 0 {
		cfg.CacheMaxEntries = yamlCfg.Cache.MaxEntries
	}

	if yamlCfg.LogLevel != "" {
		cfg.LogLevel = yamlCfg.LogLevel
	}

	return nil
}

// applyEnvConfig applies environment variable configuration.
func applyEnvConfig(cfg *Config) {
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		cfg.Port = port
	}

	if raw := strings.TrimSpace(os.Getenv("DENOMINATIONS")); raw != "" {
		denominations, err := ParseDenominations(raw)
		if err == nil {
			cfg.InitialDenominations = denominations
		}
	}

	if raw := strings.TrimSpace(os.Getenv("MAX_REQUEST")); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil {
			cfg.MaxRequest = value
		}
	}

	if rps := strings.TrimSpace(os.Getenv("RATE_LIMIT_RPS")); rps != "" {
		if value, err := strconv.ParseFloat(rps, 64); err == nil && value >= 0 {
			cfg.RateLimitRPS = value
		}
	}

	if burst := strings.TrimSpace(os.Getenv("RATE_LIMIT_BURST")); burst != "" {
		if value, err := strconv.Atoi(burst); err == nil && value >= 0 {
			cfg.RateLimitBurst = value
		}
	}

	if addr := strings.TrimSpace(os.Getenv("REDIS_ADDR")); addr != "" {
		cfg.RedisAddr = addr
	}

	if ttl := strings.TrimSpace(os.Getenv("CACHE_TTL")); ttl != "" {
		if d, err := time.ParseDuration(ttl); err == nil {
			cfg.CacheTTL = d
		}
	}

	if raw := strings.TrimSpace(os.Getenv("CACHE_MAX_ENTRIES")); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil {
			cfg.CacheMaxEntries = value
		}
	}

	if level := strings.TrimSpace(os.Getenv("LOG_LEVEL")); level != "" {
		cfg.LogLevel = level
	}
}

// applyCLIOverrides applies command-line flag overrides.
func applyCLIOverrides(cfg *Config, overrides *CLIOverrides) error {
	if overrides.Port != nil && *overrides.Port != "" {
		cfg.Port = *overrides.Port
	}

	if overrides.DenominationsStr != nil && *overrides.DenominationsStr != "" {
		denominations, err := ParseDenominations(*overrides.DenominationsStr)
		if err != nil {
			return fmt.Errorf("parse denominations: %w", err)
		}
		cfg.InitialDenominations = denominations
	}

	if overrides.MaxRequest != nil && *overrides.MaxRequest > 0 {
		cfg.MaxRequest = *overrides.MaxRequest
	}

	if overrides.RateLimitRPS != nil && *overrides.RateLimitRPS >= 0 {
		cfg.RateLimitRPS = *overrides.RateLimitRPS
	}

	if overrides.RateLimitBurst != nil && *overrides.RateLimitBurst >= 0 {
		cfg.RateLimitBurst = *overrides.RateLimitBurst
	}

	if overrides.RedisAddr != nil && *overrides.RedisAddr != "" {
		cfg.RedisAddr = *overrides.RedisAddr
	}

	if overrides.LogLevel != nil && *overrides.LogLevel != "" {
		cfg.LogLevel = *overrides.LogLevel
	}

	return nil
}

// validateConfig validates the final configuration.
func validateConfig(cfg Config) error {
	if cfg.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_BURST must be >= 0")
	}
	if len(cfg.InitialDenominations) == 0 {
		return fmt.Errorf("denominations cannot be empty")
	}
	if cfg.MaxRequest < 1 || cfg.MaxRequest > dispenser.MaxRequest {
		return fmt.Errorf("MAX_REQUEST must be between 1 and %d, got %d", dispenser.MaxRequest, cfg.MaxRequest)
	}
	if cfg.CacheTTL < 0 {
		return fmt.Errorf("CACHE_TTL must be >= 0")
	}
	if cfg.CacheMaxEntries < 0 {
		return fmt.Errorf("CACHE_MAX_ENTRIES must be >= 0")
	}
	return nil
}

// ParseDenominations parses a comma-separated string of denominations into a slice of integers.
// It validates that all values are positive integers.
func ParseDenominations(raw string) ([]int, error) {
	parts := strings.Split(raw, ",")
	denominations := make([]int, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		value, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", part)
		}
		if value <= 0 {
			return nil, fmt.Errorf("denomination must be positive, got %d", value)
		}
		denominations = append(denominations, value)
	}
	if len(denominations) == 0 {
		return nil, fmt.Errorf("no denominations provided")
	}
	return denominations, nil
}

