package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the memory service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	DatabaseURL string

	MaxShortTermItems      int
	RetentionWindow        time.Duration
	CompressionTokenBudget int
	MaxCompressionPasses   int
	GroupSimilarity        float64

	MinEvidenceForPreference  int
	PreferenceRetentionWindow time.Duration
	ExposureConfidence        float64

	SummarizerTimeout   time.Duration
	MaintenanceInterval time.Duration

	AnthropicAPIKey  string
	AnthropicModel   string
	AnthropicBaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "mnemo"),
		DatabaseURL:      envTrimmed("DATABASE_URL"),

		MaxShortTermItems:      50,
		RetentionWindow:        24 * time.Hour,
		CompressionTokenBudget: 4000,
		MaxCompressionPasses:   3,
		GroupSimilarity:        0.25,

		MinEvidenceForPreference:  3,
		PreferenceRetentionWindow: 30 * 24 * time.Hour,
		ExposureConfidence:        0.5,

		SummarizerTimeout:   10 * time.Second,
		MaintenanceInterval: time.Minute,
		ShutdownTimeout:     15 * time.Second,

		AnthropicAPIKey:  envTrimmed("ANTHROPIC_API_KEY"),
		AnthropicModel:   envOrDefault("ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),
		AnthropicBaseURL: envTrimmed("ANTHROPIC_BASE_URL"),
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxShortTermItems, err = intFromEnv("MEMORY_MAX_SHORT_TERM_ITEMS", cfg.MaxShortTermItems)
	if err != nil {
		return Config{}, err
	}
	cfg.RetentionWindow, err = durationFromEnv("MEMORY_RETENTION_WINDOW", cfg.RetentionWindow)
	if err != nil {
		return Config{}, err
	}
	cfg.CompressionTokenBudget, err = intFromEnv("MEMORY_COMPRESSION_TOKEN_BUDGET", cfg.CompressionTokenBudget)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxCompressionPasses, err = intFromEnv("MEMORY_MAX_COMPRESSION_PASSES", cfg.MaxCompressionPasses)
	if err != nil {
		return Config{}, err
	}
	cfg.GroupSimilarity, err = floatFromEnv("MEMORY_GROUP_SIMILARITY", cfg.GroupSimilarity)
	if err != nil {
		return Config{}, err
	}
	cfg.MinEvidenceForPreference, err = intFromEnv("MEMORY_MIN_EVIDENCE_FOR_PREFERENCE", cfg.MinEvidenceForPreference)
	if err != nil {
		return Config{}, err
	}
	cfg.PreferenceRetentionWindow, err = durationFromEnv("MEMORY_PREFERENCE_RETENTION_WINDOW", cfg.PreferenceRetentionWindow)
	if err != nil {
		return Config{}, err
	}
	cfg.ExposureConfidence, err = floatFromEnv("MEMORY_EXPOSURE_CONFIDENCE", cfg.ExposureConfidence)
	if err != nil {
		return Config{}, err
	}
	cfg.SummarizerTimeout, err = durationFromEnv("MEMORY_SUMMARIZER_TIMEOUT", cfg.SummarizerTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.MaintenanceInterval, err = durationFromEnv("MEMORY_MAINTENANCE_INTERVAL", cfg.MaintenanceInterval)
	if err != nil {
		return Config{}, err
	}

	if cfg.MaxShortTermItems <= 0 {
		return Config{}, fmt.Errorf("MEMORY_MAX_SHORT_TERM_ITEMS must be positive")
	}
	if cfg.RetentionWindow <= 0 {
		return Config{}, fmt.Errorf("MEMORY_RETENTION_WINDOW must be positive")
	}
	if cfg.CompressionTokenBudget <= 0 {
		return Config{}, fmt.Errorf("MEMORY_COMPRESSION_TOKEN_BUDGET must be positive")
	}
	if cfg.MaxCompressionPasses <= 0 {
		return Config{}, fmt.Errorf("MEMORY_MAX_COMPRESSION_PASSES must be positive")
	}
	if cfg.GroupSimilarity <= 0 || cfg.GroupSimilarity >= 1 {
		return Config{}, fmt.Errorf("MEMORY_GROUP_SIMILARITY must be in (0, 1)")
	}
	if cfg.MinEvidenceForPreference <= 0 {
		return Config{}, fmt.Errorf("MEMORY_MIN_EVIDENCE_FOR_PREFERENCE must be positive")
	}
	if cfg.ExposureConfidence < 0 || cfg.ExposureConfidence > 1 {
		return Config{}, fmt.Errorf("MEMORY_EXPOSURE_CONFIDENCE must be in [0, 1]")
	}
	if cfg.MaintenanceInterval < time.Second {
		return Config{}, fmt.Errorf("MEMORY_MAINTENANCE_INTERVAL must be at least 1s")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func envTrimmed(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}
