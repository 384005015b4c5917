package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MaxShortTermItems != 50 {
		t.Fatalf("MaxShortTermItems = %d, want 50", cfg.MaxShortTermItems)
	}
	if cfg.RetentionWindow != 24*time.Hour {
		t.Fatalf("RetentionWindow = %v, want 24h", cfg.RetentionWindow)
	}
	if cfg.CompressionTokenBudget != 4000 {
		t.Fatalf("CompressionTokenBudget = %d, want 4000", cfg.CompressionTokenBudget)
	}
	if cfg.MinEvidenceForPreference != 3 {
		t.Fatalf("MinEvidenceForPreference = %d, want 3", cfg.MinEvidenceForPreference)
	}
	if cfg.PreferenceRetentionWindow != 30*24*time.Hour {
		t.Fatalf("PreferenceRetentionWindow = %v, want 720h", cfg.PreferenceRetentionWindow)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MEMORY_MAX_SHORT_TERM_ITEMS", "10")
	t.Setenv("MEMORY_RETENTION_WINDOW", "2h")
	t.Setenv("MEMORY_SUMMARIZER_TIMEOUT", "500ms")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MaxShortTermItems != 10 {
		t.Fatalf("MaxShortTermItems = %d, want 10", cfg.MaxShortTermItems)
	}
	if cfg.RetentionWindow != 2*time.Hour {
		t.Fatalf("RetentionWindow = %v, want 2h", cfg.RetentionWindow)
	}
	if cfg.SummarizerTimeout != 500*time.Millisecond {
		t.Fatalf("SummarizerTimeout = %v, want 500ms", cfg.SummarizerTimeout)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := []struct {
		key   string
		value string
	}{
		{"MEMORY_MAX_SHORT_TERM_ITEMS", "0"},
		{"MEMORY_MAX_SHORT_TERM_ITEMS", "abc"},
		{"MEMORY_RETENTION_WINDOW", "-1h"},
		{"MEMORY_GROUP_SIMILARITY", "1.5"},
		{"MEMORY_EXPOSURE_CONFIDENCE", "2"},
		{"MEMORY_MAINTENANCE_INTERVAL", "10ms"},
	}
	for _, tc := range cases {
		t.Run(tc.key+"="+tc.value, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() with %s=%s should fail", tc.key, tc.value)
			}
		})
	}
}
