package app

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/antoniostano/mnemo/internal/compress"
	"github.com/antoniostano/mnemo/internal/config"
	"github.com/antoniostano/mnemo/internal/facade"
	"github.com/antoniostano/mnemo/internal/httpapi"
	"github.com/antoniostano/mnemo/internal/memory"
	"github.com/antoniostano/mnemo/internal/observability"
	"github.com/antoniostano/mnemo/internal/prefs"
	"github.com/antoniostano/mnemo/internal/scheduler"
	"github.com/antoniostano/mnemo/internal/summarizer"
)

type BuildResult struct {
	Config    config.Config
	API       *httpapi.Server
	Facade    *facade.Facade
	Scheduler *scheduler.Scheduler
	Metrics   *observability.Metrics

	// Cleanup should be called on shutdown to release external resources.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	sink := observability.MetricsSink{Metrics: metrics, Next: observability.LogSink{}}

	store, err := memory.NewStore(ctx, cfg.DatabaseURL, sink, metrics)
	if err != nil {
		return nil, fmt.Errorf("memory store init failed: %w", err)
	}

	var durablePrefs prefs.Durable
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		durablePrefs, err = prefs.NewPostgresPrefs(ctx, cfg.DatabaseURL)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("preference store init failed: %w", err)
		}
	}

	learner, err := prefs.NewLearner(cfg.MinEvidenceForPreference, cfg.PreferenceRetentionWindow, durablePrefs, sink, metrics)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("preference learner init failed: %w", err)
	}

	var summ summarizer.Summarizer
	if cfg.AnthropicAPIKey != "" {
		summ, err = summarizer.NewAnthropic(summarizer.AnthropicConfig{
			APIKey:  cfg.AnthropicAPIKey,
			Model:   cfg.AnthropicModel,
			BaseURL: cfg.AnthropicBaseURL,
		})
		if err != nil {
			_ = learner.Close()
			_ = store.Close()
			return nil, fmt.Errorf("summarizer init failed: %w", err)
		}
		log.Printf("summarizer: anthropic (%s)", cfg.AnthropicModel)
	} else {
		summ = summarizer.Heuristic{}
		log.Printf("summarizer: heuristic (no anthropic key)")
	}

	compressor := compress.New(
		compress.NewTermOverlapGrouper(cfg.GroupSimilarity),
		summarizer.Timed{Inner: summ, Observe: metrics.ObserveSummarizerLatency},
		cfg.SummarizerTimeout,
		cfg.MaxCompressionPasses,
	)

	policy := memory.PrunePolicy{
		MaxShortTermItems: cfg.MaxShortTermItems,
		RetentionWindow:   cfg.RetentionWindow,
	}
	f := facade.New(store, memory.NewScorer(), compressor, learner, policy, sink, metrics)

	sched := scheduler.New(f, cfg.MaintenanceInterval)
	api := httpapi.New(cfg, f)

	cleanup := func() error {
		var errs []string
		if err := learner.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if err := store.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:    cfg,
		API:       api,
		Facade:    f,
		Scheduler: sched,
		Metrics:   metrics,
		Cleanup:   cleanup,
	}, nil
}
