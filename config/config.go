package config

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	DatabaseURL string

	// Payment processor configuration
	ProcessorBaseURL string
	ProcessorAPIKey  string
	ProcessorTimeout time.Duration // bound on every outbound processor call

	// Collection behaviour
	DefaultCurrency        string
	DefaultMaxAttempts     int           // push attempts per contribution request
	SettlementGracePeriod  time.Duration // unsettled requests expire after this
	SettlementLookback     time.Duration // how far back the sweep reads the feed
	PhoneSuffixMatchLength int           // digits compared in fallback matching

	// Scheduler configuration
	SweepInterval time.Duration

	// Logging
	LogLevel string

	// Environment
	Environment string // "development", "production" or "test"
}

var (
	instance *Config
	once     sync.Once
)

// Get returns the global configuration instance
func Get() *Config {
	once.Do(func() {
		var err error
		instance, err = load()
		if err != nil {
			panic(fmt.Sprintf("failed to load config: %v", err))
		}
	})
	return instance
}

// load loads configuration from environment variables
func load() (*Config, error) {
	config := &Config{
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		ProcessorBaseURL: os.Getenv("PROCESSOR_BASE_URL"),
		ProcessorAPIKey:  os.Getenv("PROCESSOR_API_KEY"),

		// Defaults
		ProcessorTimeout:       15 * time.Second,
		DefaultCurrency:        "KES",
		DefaultMaxAttempts:     3,
		SettlementGracePeriod:  72 * time.Hour,
		SettlementLookback:     24 * time.Hour,
		PhoneSuffixMatchLength: 6,
		SweepInterval:          5 * time.Minute,
		LogLevel:               "info",
		Environment:            os.Getenv("ENVIRONMENT"),
	}

	if v := os.Getenv("PROCESSOR_TIMEOUT_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			config.ProcessorTimeout = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("DEFAULT_MAX_ATTEMPTS"); v != "" {
		if attempts, err := strconv.Atoi(v); err == nil && attempts > 0 {
			config.DefaultMaxAttempts = attempts
		}
	}
	if v := os.Getenv("SETTLEMENT_GRACE_HOURS"); v != "" {
		if hours, err := strconv.Atoi(v); err == nil && hours > 0 {
			config.SettlementGracePeriod = time.Duration(hours) * time.Hour
		}
	}
	if v := os.Getenv("SETTLEMENT_LOOKBACK_HOURS"); v != "" {
		if hours, err := strconv.Atoi(v); err == nil && hours > 0 {
			config.SettlementLookback = time.Duration(hours) * time.Hour
		}
	}
	if v := os.Getenv("SWEEP_INTERVAL_MINUTES"); v != "" {
		if mins, err := strconv.Atoi(v); err == nil && mins > 0 {
			config.SweepInterval = time.Duration(mins) * time.Minute
		}
	}
	if v := os.Getenv("DEFAULT_CURRENCY"); v != "" {
		config.DefaultCurrency = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		config.LogLevel = v
	}

	if config.Environment == "" {
		config.Environment = "development"
	}

	if config.Environment != "test" {
		if config.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
		if config.ProcessorBaseURL == "" {
			return nil, fmt.Errorf("PROCESSOR_BASE_URL is required")
		}
	}

	return config, nil
}
