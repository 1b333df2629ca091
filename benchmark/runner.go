package benchmark

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"
)

const telemetryShutdownTimeout = 5 * time.Second

// RunBenchmark orchestrates the full benchmark lifecycle
func RunBenchmark(ctx context.Context, cfg Config) error {
	initialLog(cfg)

	payloads, err := LoadPayloads(cfg.PayloadDir)
	if err != nil {
		return errors.Wrap(err, "failed to load payloads")
	}
	log.Info().Int("payloads", len(payloads)).Msg("Loaded document payloads")

	store, err := NewStore(ctx, cfg.Store)
	if err != nil {
		return errors.Wrap(err, "failed to create store")
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close store")
		}
	}()

	metrics, err := metricsSources(cfg, store)
	if err != nil {
		return err
	}

	executor := &Executor{
		Store:            store,
		Payloads:         payloads,
		KeyScheme:        cfg.KeyScheme,
		GracePeriod:      cfg.GracePeriod(),
		ProgressInterval: cfg.ProgressInterval(),
	}

	if cfg.TelemetryAddr != "" {
		telemetry := NewTelemetry()
		if err := telemetry.Start(cfg.TelemetryAddr); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), telemetryShutdownTimeout)
			defer cancel()
			if err := telemetry.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("Telemetry server shutdown failed")
			}
		}()
		executor.Observer = telemetry
	}

	reporters := []Reporter{LogReporter{}}
	if cfg.ReportFile != "" {
		reporters = append(reporters, &FileReporter{Path: cfg.ReportFile, Format: cfg.ReportFormat})
	}

	orchestrator := &Orchestrator{
		Plan:      cfg.Plan(),
		Executor:  executor,
		Metrics:   metrics,
		Reporters: reporters,
	}

	reports, err := orchestrator.RunAll(ctx)
	if err != nil {
		log.Warn().Err(err).Int("completed_pool_sizes", len(reports)).Msg("Benchmark stopped early")
		return err
	}

	log.Info().Int("pool_sizes", len(reports)).Msg("Benchmark complete")
	return nil
}

// metricsSources collects the server-side metric sources that apply to cfg
func metricsSources(cfg Config, store Store) (MultiSource, error) {
	var sources MultiSource
	if src, ok := store.(MetricsSource); ok {
		sources = append(sources, src)
	}
	if cfg.Store.Type == StoreTypeCouchbase {
		src, err := NewCouchbaseMetricsSource(cfg.Store)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create couchbase metrics source")
		}
		sources = append(sources, src)
	}
	if cfg.SystemMetrics {
		sources = append(sources, SystemMetricsSource{})
	}
	return sources, nil
}
