package benchmark

import (
	"sync"
	"time"

	"github.com/codahale/hdrhistogram"
)

const (
	histogramSigFigs    = 2
	histogramMinLatency = time.Microsecond
	histogramMaxLatency = time.Minute
)

func newLatencyHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(histogramMinLatency.Nanoseconds(), histogramMaxLatency.Nanoseconds(), histogramSigFigs)
}

// workerHistograms holds one worker's write and read latency distributions.
// Only its owning worker records into it, so the mutex is uncontended; it
// exists so a histogram can be merged while an abandoned worker still runs.
type workerHistograms struct {
	mu    sync.Mutex
	write *hdrhistogram.Histogram
	read  *hdrhistogram.Histogram
}

func newWorkerHistograms() *workerHistograms {
	return &workerHistograms{
		write: newLatencyHistogram(),
		read:  newLatencyHistogram(),
	}
}

func (w *workerHistograms) recordWrite(d time.Duration) {
	w.mu.Lock()
	w.write.RecordValue(clampLatency(d))
	w.mu.Unlock()
}

func (w *workerHistograms) recordRead(d time.Duration) {
	w.mu.Lock()
	w.read.RecordValue(clampLatency(d))
	w.mu.Unlock()
}

// clampLatency keeps values inside the trackable range; RecordValue drops
// anything outside it.
func clampLatency(d time.Duration) int64 {
	if d < histogramMinLatency {
		return histogramMinLatency.Nanoseconds()
	}
	if d > histogramMaxLatency {
		return histogramMaxLatency.Nanoseconds()
	}
	return d.Nanoseconds()
}

// mergeWorkerHistograms folds every worker's distributions into a fresh pair
func mergeWorkerHistograms(workers []*workerHistograms) (write, read *hdrhistogram.Histogram) {
	write, read = newLatencyHistogram(), newLatencyHistogram()
	for _, w := range workers {
		w.mu.Lock()
		write.Merge(w.write)
		read.Merge(w.read)
		w.mu.Unlock()
	}
	return write, read
}

// LatencyPercentiles summarizes one latency distribution
type LatencyPercentiles struct {
	P50 time.Duration `json:"p50" yaml:"p50"`
	P95 time.Duration `json:"p95" yaml:"p95"`
	P99 time.Duration `json:"p99" yaml:"p99"`
	Max time.Duration `json:"max" yaml:"max"`
}

func percentilesOf(h *hdrhistogram.Histogram) LatencyPercentiles {
	if h == nil || h.TotalCount() == 0 {
		return LatencyPercentiles{}
	}
	return LatencyPercentiles{
		P50: time.Duration(h.ValueAtQuantile(50)),
		P95: time.Duration(h.ValueAtQuantile(95)),
		P99: time.Duration(h.ValueAtQuantile(99)),
		Max: time.Duration(h.Max()),
	}
}
