package benchmark

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"
)

// Plan is the sequence of runs a benchmark performs
type Plan struct {
	PoolSizes []int
	Runs      int
	Duration  time.Duration
	Cooldown  time.Duration
}

// Orchestrator executes a Plan: every pool size in order, Runs times each,
// sequentially
type Orchestrator struct {
	Plan      Plan
	Executor  *Executor
	Metrics   MetricsSource
	Reporters []Reporter
}

// RunAll executes the plan and returns one report per configured pool size,
// in configuration order. A failing run is logged and left out of its
// aggregate; the remaining runs and pool sizes still execute. RunAll only
// returns an error when ctx is cancelled, together with the reports that
// were completed before that.
func (o *Orchestrator) RunAll(ctx context.Context) ([]Report, error) {
	if o.Executor == nil {
		return nil, errors.New("orchestrator has no executor")
	}

	reports := make([]Report, 0, len(o.Plan.PoolSizes))
	for _, poolSize := range o.Plan.PoolSizes {
		if err := ctx.Err(); err != nil {
			return reports, errors.Wrap(err, "benchmark interrupted")
		}

		log.Info().Int("pool_size", poolSize).Msg("Starting benchmark")

		runs := make([]RunResult, 0, o.Plan.Runs)
		for run := 1; run <= o.Plan.Runs; run++ {
			log.Info().
				Int("pool_size", poolSize).
				Int("run", run).
				Int("runs", o.Plan.Runs).
				Msg("Starting run")

			result, err := o.runOnce(ctx, poolSize)
			if ctx.Err() != nil {
				return reports, errors.Wrap(ctx.Err(), "benchmark interrupted")
			}
			if err != nil {
				log.Error().
					Err(err).
					Int("pool_size", poolSize).
					Int("run", run).
					Int("runs", o.Plan.Runs).
					Msg("Error during benchmark run")
			} else {
				runs = append(runs, result)
			}

			if run < o.Plan.Runs {
				if err := o.cooldown(ctx); err != nil {
					return reports, errors.Wrap(err, "benchmark interrupted")
				}
			}
		}

		report := Assemble(poolSize, runs, Aggregate(runs), o.fetchMetrics(ctx))
		reports = append(reports, report)

		for _, r := range o.Reporters {
			if err := r.Report(report); err != nil {
				log.Error().Err(err).Int("pool_size", poolSize).Msg("Failed to write report")
			}
		}
	}

	return reports, nil
}

// runOnce executes a single run. A panic in the run's control logic is a
// run-level error like any other.
func (o *Orchestrator) runOnce(ctx context.Context, poolSize int) (result RunResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("run panicked: %v", r)
		}
	}()
	return o.Executor.Run(ctx, poolSize, o.Plan.Duration)
}

// cooldown lets server-side load settle between runs
func (o *Orchestrator) cooldown(ctx context.Context) error {
	if o.Plan.Cooldown <= 0 {
		return nil
	}
	log.Info().Dur("cooldown", o.Plan.Cooldown).Msg("Sleeping before the next run")

	timer := time.NewTimer(o.Plan.Cooldown)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) fetchMetrics(ctx context.Context) ExternalMetrics {
	if o.Metrics == nil {
		return ExternalMetrics{}
	}
	return o.Metrics.FetchSnapshot(ctx)
}
