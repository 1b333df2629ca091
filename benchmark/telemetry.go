package benchmark

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const metricsNamespace = "docbench"

// liveRun is the run currently executing
type liveRun struct {
	poolSize int
	started  time.Time
	acc      *MetricsAccumulator
}

// Telemetry exposes live run counters over HTTP while a benchmark executes.
// It implements RunObserver and prometheus.Collector.
type Telemetry struct {
	live atomic.Pointer[liveRun]

	registry      *prometheus.Registry
	completedRuns *prometheus.CounterVec
	lastRunOps    *prometheus.GaugeVec

	opsDesc     *prometheus.Desc
	latencyDesc *prometheus.Desc

	server   *http.Server
	listener net.Listener
}

// NewTelemetry creates a Telemetry with its own prometheus registry
func NewTelemetry() *Telemetry {
	t := &Telemetry{
		registry: prometheus.NewRegistry(),
		completedRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "runs_completed_total",
			Help:      "Number of completed benchmark runs.",
		}, []string{"pool_size"}),
		lastRunOps: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_run_ops_per_second",
			Help:      "Successful operations per second of the last completed run.",
		}, []string{"pool_size"}),
		opsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "run", "operations_total"),
			"Operations issued by the current run.",
			[]string{"pool_size", "op", "outcome"}, nil,
		),
		latencyDesc: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "run", "latency_seconds_total"),
			"Sum of successful operation latencies of the current run.",
			[]string{"pool_size", "op"}, nil,
		),
	}
	t.registry.MustRegister(t, t.completedRuns, t.lastRunOps)
	return t
}

// RunStarted implements RunObserver
func (t *Telemetry) RunStarted(poolSize int, acc *MetricsAccumulator) {
	t.live.Store(&liveRun{poolSize: poolSize, started: time.Now(), acc: acc})
}

// RunFinished implements RunObserver
func (t *Telemetry) RunFinished(result RunResult) {
	t.live.Store(nil)
	label := strconv.Itoa(result.PoolSize)
	t.completedRuns.WithLabelValues(label).Inc()
	t.lastRunOps.WithLabelValues(label).Set(result.Throughput())
}

// Describe implements prometheus.Collector
func (t *Telemetry) Describe(ch chan<- *prometheus.Desc) {
	ch <- t.opsDesc
	ch <- t.latencyDesc
}

// Collect implements prometheus.Collector
func (t *Telemetry) Collect(ch chan<- prometheus.Metric) {
	run := t.live.Load()
	if run == nil {
		return
	}
	s := run.acc.Snapshot()
	pool := strconv.Itoa(run.poolSize)

	ch <- prometheus.MustNewConstMetric(t.opsDesc, prometheus.CounterValue, float64(s.Writes), pool, "write", "success")
	ch <- prometheus.MustNewConstMetric(t.opsDesc, prometheus.CounterValue, float64(s.WriteErrors), pool, "write", "error")
	ch <- prometheus.MustNewConstMetric(t.opsDesc, prometheus.CounterValue, float64(s.Reads), pool, "read", "success")
	ch <- prometheus.MustNewConstMetric(t.opsDesc, prometheus.CounterValue, float64(s.ReadErrors), pool, "read", "error")
	ch <- prometheus.MustNewConstMetric(t.latencyDesc, prometheus.CounterValue, time.Duration(s.WriteLatencyNanos).Seconds(), pool, "write")
	ch <- prometheus.MustNewConstMetric(t.latencyDesc, prometheus.CounterValue, time.Duration(s.ReadLatencyNanos).Seconds(), pool, "read")
}

// progressResponse is served on /progress
type progressResponse struct {
	Running  bool             `json:"running"`
	PoolSize int              `json:"pool_size,omitempty"`
	Elapsed  string           `json:"elapsed,omitempty"`
	Metrics  *MetricsSnapshot `json:"metrics,omitempty"`
}

// Router returns the HTTP routes served by Start
func (t *Telemetry) Router() http.Handler {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/progress", t.handleProgress).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	return r
}

func (t *Telemetry) handleProgress(w http.ResponseWriter, _ *http.Request) {
	resp := progressResponse{}
	if run := t.live.Load(); run != nil {
		s := run.acc.Snapshot()
		resp = progressResponse{
			Running:  true,
			PoolSize: run.poolSize,
			Elapsed:  time.Since(run.started).Round(time.Millisecond).String(),
			Metrics:  &s,
		}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Debug().Err(err).Msg("Failed to write progress response")
	}
}

// Start listens on addr and serves the telemetry routes in the background
func (t *Telemetry) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "telemetry listen on %s", addr)
	}
	t.listener = ln
	t.server = &http.Server{
		Handler:           t.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := t.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Telemetry server failed")
		}
	}()
	log.Info().Str("addr", ln.Addr().String()).Msg("Telemetry server listening")
	return nil
}

// Addr returns the listening address, or "" before Start
func (t *Telemetry) Addr() string {
	if t.listener == nil {
		return ""
	}
	return t.listener.Addr().String()
}

// Shutdown stops the HTTP server
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t.server == nil {
		return nil
	}
	return t.server.Shutdown(ctx)
}
