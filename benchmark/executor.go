package benchmark

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/codahale/hdrhistogram"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// DefaultGracePeriod bounds how long a run waits for workers to notice the
// stop signal before it is forced down
const DefaultGracePeriod = 10 * time.Second

// RunObserver is notified when runs start and finish. The accumulator passed
// to RunStarted is live and may be read concurrently via Snapshot.
type RunObserver interface {
	RunStarted(poolSize int, acc *MetricsAccumulator)
	RunFinished(result RunResult)
}

// RunResult is the outcome of one completed run
type RunResult struct {
	PoolSize        int           `json:"pool_size" yaml:"pool_size"`
	Elapsed         time.Duration `json:"elapsed" yaml:"elapsed"`
	MetricsSnapshot `yaml:",inline"`
	WriteLatency    LatencyPercentiles `json:"write_latency" yaml:"write_latency"`
	ReadLatency     LatencyPercentiles `json:"read_latency" yaml:"read_latency"`

	// AbandonedWorkers counts workers still blocked in the store when the
	// run was forced down. Their in-flight operations are not counted.
	AbandonedWorkers int `json:"abandoned_workers" yaml:"abandoned_workers"`

	writeHist *hdrhistogram.Histogram
	readHist  *hdrhistogram.Histogram
}

// Throughput returns successful operations per second of wall time
func (r RunResult) Throughput() float64 {
	secs := r.Elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(r.Writes+r.Reads) / secs
}

// Executor runs one fixed-size worker pool against a Store for a bounded
// duration. An Executor may be reused; each Run gets fresh state.
type Executor struct {
	Store     Store
	Payloads  [][]byte
	KeyScheme KeyScheme

	// GracePeriod bounds the wait for workers after the stop signal.
	// Zero means DefaultGracePeriod.
	GracePeriod time.Duration

	// ProgressInterval, when positive, logs the live counters periodically
	ProgressInterval time.Duration

	Observer RunObserver

	// ids is never reset, so a worker abandoned in an earlier run cannot
	// hold a key that a later run hands out again
	ids atomic.Int64
}

// Run clears the store, drives poolSize workers for duration and returns the
// final counters. The duration is wall-clock from pool start; counts are a
// lower bound of what was attempted since workers may be mid-operation when
// the stop signal fires. Run returns within duration plus the grace period
// even if workers block forever in the store.
func (e *Executor) Run(ctx context.Context, poolSize int, duration time.Duration) (RunResult, error) {
	if poolSize <= 0 {
		return RunResult{}, errors.Newf("pool size must be positive, got %d", poolSize)
	}
	if duration <= 0 {
		return RunResult{}, errors.Newf("run duration must be positive, got %s", duration)
	}
	if e.Store == nil {
		return RunResult{}, errors.New("executor has no store")
	}

	payloads := e.Payloads
	if len(payloads) == 0 {
		payloads = [][]byte{defaultPayload}
	}
	keys := e.KeyScheme
	if keys == "" {
		keys = KeySchemeSequential
	}

	if err := e.Store.ClearAll(ctx); err != nil {
		return RunResult{}, errors.Wrap(err, "failed to clear store before run")
	}

	acc := NewMetricsAccumulator()
	var active atomic.Int32

	// stopCtx is the "keep running" flag; opCtx outlives it so in-flight
	// operations can finish, and is cancelled only by a forced stop.
	stopCtx, stop := context.WithCancel(ctx)
	defer stop()
	opCtx, forceStop := context.WithCancel(context.WithoutCancel(ctx))
	defer forceStop()

	hists := make([]*workerHistograms, poolSize)
	g := new(errgroup.Group)
	g.SetLimit(poolSize)

	start := time.Now()
	for i := 0; i < poolSize; i++ {
		w := &loadWorker{
			store:   e.Store,
			ids:     &e.ids,
			keys:    keys,
			payload: payloadForWorker(payloads, i),
			acc:     acc,
			hists:   newWorkerHistograms(),
		}
		hists[i] = w.hists

		active.Add(1)
		g.Go(func() error {
			defer active.Add(-1)
			w.run(stopCtx, opCtx)
			return nil
		})
	}

	if e.Observer != nil {
		e.Observer.RunStarted(poolSize, acc)
	}

	done := make(chan struct{})
	go func() {
		g.Wait()
		close(done)
	}()

	e.waitForDuration(ctx, poolSize, duration, start, acc)
	stop()
	elapsed := time.Since(start)
	abandoned := e.awaitWorkers(done, &active)

	snapshot := acc.Snapshot()
	writeHist, readHist := mergeWorkerHistograms(hists)

	// release stuck store calls only after the snapshot, so failures caused
	// by the forced stop are not counted against the store
	forceStop()

	result := RunResult{
		PoolSize:         poolSize,
		Elapsed:          elapsed,
		MetricsSnapshot:  snapshot,
		WriteLatency:     percentilesOf(writeHist),
		ReadLatency:      percentilesOf(readHist),
		AbandonedWorkers: abandoned,
		writeHist:        writeHist,
		readHist:         readHist,
	}

	if e.Observer != nil {
		e.Observer.RunFinished(result)
	}

	if err := ctx.Err(); err != nil {
		return result, errors.Wrap(err, "run interrupted")
	}
	return result, nil
}

// waitForDuration blocks until duration has elapsed since start or ctx is
// done, logging progress on the way
func (e *Executor) waitForDuration(ctx context.Context, poolSize int, duration time.Duration, start time.Time, acc *MetricsAccumulator) {
	timer := time.NewTimer(duration - time.Since(start))
	defer timer.Stop()

	var tick <-chan time.Time
	if e.ProgressInterval > 0 {
		ticker := time.NewTicker(e.ProgressInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-timer.C:
			return
		case <-ctx.Done():
			return
		case <-tick:
			s := acc.Snapshot()
			log.Info().
				Int("pool_size", poolSize).
				Dur("elapsed", time.Since(start)).
				Int64("writes", s.Writes).
				Int64("reads", s.Reads).
				Int64("write_errors", s.WriteErrors).
				Int64("read_errors", s.ReadErrors).
				Msg("Run in progress")
		}
	}
}

// awaitWorkers waits up to the grace period for every worker to exit and
// returns how many did not
func (e *Executor) awaitWorkers(done <-chan struct{}, active *atomic.Int32) int {
	grace := e.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-done:
		return 0
	case <-timer.C:
		stuck := int(active.Load())
		log.Warn().
			Int("stuck_workers", stuck).
			Dur("grace_period", grace).
			Msg("Workers did not stop within grace period, forcing stop")
		return stuck
	}
}
