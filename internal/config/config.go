// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/aristath/frontier/internal/utils"
)

// Reward vector policies understood by the optimizer service.
const (
	RewardPolicyStdDev = "stdev"
	RewardPolicyMean   = "mean"
)

// Conditioning policies for correlation matrices that are not positive semi-definite.
const (
	ConditioningFail   = "fail"
	ConditioningShrink = "shrink"
)

// DefaultRiskAversions is the sweep used when RISK_AVERSIONS is not set.
var DefaultRiskAversions = []float64{0.01, 0.02, 0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10}

// Config holds application configuration
type Config struct {
	DataDir   string // Directory holding the response cache database (always absolute)
	LogLevel  string
	LogPretty bool
	Serve     bool // Run the HTTP API and scheduler instead of a one-shot sweep
	Port      int
	DevMode   bool // Disables response compression

	CryptoCompare CryptoCompareConfig
	Fetch         FetchConfig
	Sweep         SweepConfig

	ChartPath            string // Write a PNG of the frontier here after a CLI run (empty = disabled)
	CorrelationThreshold float64
	SweepSchedule        string
	CleanupSchedule      string
}

// CryptoCompareConfig configures the price data source.
type CryptoCompareConfig struct {
	BaseURL       string
	APIKey        string
	QuoteCurrency string
	LookbackDays  int
	ExtraCoinIDs  []string // Coin ids appended to the default watchlist
	MaxAssets     int      // 0 = no limit
}

// FetchConfig configures the price fetch fan-out.
type FetchConfig struct {
	Concurrency int
	HTTPTimeout time.Duration
	RunTimeout  time.Duration
}

// SweepConfig configures the risk-aversion sweep.
type SweepConfig struct {
	RiskAversions []float64
	AllowShort    bool
	RewardPolicy  string
	Conditioning  string
	Workers       int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	absDataDir, err := filepath.Abs(getEnv("FRONTIER_DATA_DIR", "data"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	riskAversions, err := getEnvAsFloatList("RISK_AVERSIONS", DefaultRiskAversions)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:   absDataDir,
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getEnvAsBool("LOG_PRETTY", true),
		Serve:     getEnvAsBool("SERVE", false),
		Port:      getEnvAsInt("PORT", 8001),
		DevMode:   getEnvAsBool("DEV_MODE", false),
		CryptoCompare: CryptoCompareConfig{
			BaseURL:       strings.TrimRight(getEnv("CRYPTOCOMPARE_BASE_URL", "https://min-api.cryptocompare.com"), "/"),
			APIKey:        getEnv("CRYPTOCOMPARE_API_KEY", ""),
			QuoteCurrency: strings.ToUpper(getEnv("QUOTE_CURRENCY", "USD")),
			LookbackDays:  getEnvAsInt("LOOKBACK_DAYS", 365),
			ExtraCoinIDs:  getEnvAsList("EXTRA_COIN_IDS", []string{"4432"}),
			MaxAssets:     getEnvAsInt("MAX_ASSETS", 0),
		},
		Fetch: FetchConfig{
			Concurrency: getEnvAsInt("FETCH_CONCURRENCY", 4),
			HTTPTimeout: getEnvAsDuration("HTTP_TIMEOUT", 10*time.Second),
			RunTimeout:  getEnvAsDuration("RUN_TIMEOUT", 5*time.Minute),
		},
		Sweep: SweepConfig{
			RiskAversions: riskAversions,
			AllowShort:    getEnvAsBool("ALLOW_SHORT", false),
			RewardPolicy:  strings.ToLower(getEnv("REWARD_POLICY", RewardPolicyStdDev)),
			Conditioning:  strings.ToLower(getEnv("CONDITIONING", ConditioningFail)),
			Workers:       getEnvAsInt("SWEEP_WORKERS", 4),
		},
		ChartPath:            getEnv("CHART_PATH", ""),
		CorrelationThreshold: getEnvAsFloat("CORRELATION_THRESHOLD", 0.8),
		SweepSchedule:        getEnv("SWEEP_SCHEDULE", "@daily"),
		CleanupSchedule:      getEnv("CACHE_CLEANUP_SCHEDULE", "@hourly"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// CachePath returns the location of the response cache database.
func (c *Config) CachePath() string {
	return filepath.Join(c.DataDir, "client_data.db")
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.CryptoCompare.LookbackDays < 2 {
		return fmt.Errorf("LOOKBACK_DAYS must be at least 2, got %d", c.CryptoCompare.LookbackDays)
	}
	if c.CryptoCompare.QuoteCurrency == "" {
		return fmt.Errorf("QUOTE_CURRENCY must not be empty")
	}
	if c.Fetch.Concurrency < 1 {
		return fmt.Errorf("FETCH_CONCURRENCY must be positive, got %d", c.Fetch.Concurrency)
	}
	if c.Sweep.Workers < 1 {
		return fmt.Errorf("SWEEP_WORKERS must be positive, got %d", c.Sweep.Workers)
	}
	if len(c.Sweep.RiskAversions) == 0 {
		return fmt.Errorf("RISK_AVERSIONS must contain at least one value")
	}
	for _, ra := range c.Sweep.RiskAversions {
		if ra <= 0 {
			return fmt.Errorf("risk aversion values must be strictly positive, got %g", ra)
		}
	}
	switch c.Sweep.RewardPolicy {
	case RewardPolicyStdDev, RewardPolicyMean:
	default:
		return fmt.Errorf("unknown REWARD_POLICY %q (want %s or %s)", c.Sweep.RewardPolicy, RewardPolicyStdDev, RewardPolicyMean)
	}
	switch c.Sweep.Conditioning {
	case ConditioningFail, ConditioningShrink:
	default:
		return fmt.Errorf("unknown CONDITIONING %q (want %s or %s)", c.Sweep.Conditioning, ConditioningFail, ConditioningShrink)
	}
	if c.CorrelationThreshold < 0 || c.CorrelationThreshold > 1 {
		return fmt.Errorf("CORRELATION_THRESHOLD must be within [0, 1], got %g", c.CorrelationThreshold)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	if values := utils.ParseCSV(os.Getenv(key)); values != nil {
		return values
	}
	return defaultValue
}

// getEnvAsFloatList parses a comma separated list; a malformed entry is an error.
func getEnvAsFloatList(key string, defaultValue []float64) ([]float64, error) {
	parts := getEnvAsList(key, nil)
	if parts == nil {
		return defaultValue, nil
	}
	out := make([]float64, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s entry %q: %w", key, part, err)
		}
		out = append(out, v)
	}
	return out, nil
}
