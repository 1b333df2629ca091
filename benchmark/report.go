package benchmark

import (
	"github.com/codahale/hdrhistogram"
)

// AggregateResult averages the runs of one pool size. Counts are per-run
// means. Latencies are total latency over total operations across all runs,
// which weights every operation equally when runs differ in size.
type AggregateResult struct {
	Runs int `json:"runs" yaml:"runs"`

	Writes      float64 `json:"writes" yaml:"writes"`
	Reads       float64 `json:"reads" yaml:"reads"`
	WriteErrors float64 `json:"write_errors" yaml:"write_errors"`
	ReadErrors  float64 `json:"read_errors" yaml:"read_errors"`

	AvgWriteLatencyNanos float64 `json:"avg_write_latency_ns" yaml:"avg_write_latency_ns"`
	AvgReadLatencyNanos  float64 `json:"avg_read_latency_ns" yaml:"avg_read_latency_ns"`

	// Throughput is the mean of per-run successful operations per second
	Throughput float64 `json:"throughput" yaml:"throughput"`

	WriteLatency LatencyPercentiles `json:"write_latency" yaml:"write_latency"`
	ReadLatency  LatencyPercentiles `json:"read_latency" yaml:"read_latency"`
}

// Aggregate combines runs of the same pool size. No runs yields zeros.
func Aggregate(runs []RunResult) AggregateResult {
	if len(runs) == 0 {
		return AggregateResult{}
	}

	var writes, reads, writeErrors, readErrors, writeNanos, readNanos int64
	var throughput float64
	writeHist, readHist := newLatencyHistogram(), newLatencyHistogram()
	for _, r := range runs {
		writes += r.Writes
		reads += r.Reads
		writeErrors += r.WriteErrors
		readErrors += r.ReadErrors
		writeNanos += r.WriteLatencyNanos
		readNanos += r.ReadLatencyNanos
		throughput += r.Throughput()
		mergeInto(writeHist, r.writeHist)
		mergeInto(readHist, r.readHist)
	}

	n := float64(len(runs))
	return AggregateResult{
		Runs:                 len(runs),
		Writes:               float64(writes) / n,
		Reads:                float64(reads) / n,
		WriteErrors:          float64(writeErrors) / n,
		ReadErrors:           float64(readErrors) / n,
		AvgWriteLatencyNanos: ratio(writeNanos, writes),
		AvgReadLatencyNanos:  ratio(readNanos, reads),
		Throughput:           throughput / n,
		WriteLatency:         percentilesOf(writeHist),
		ReadLatency:          percentilesOf(readHist),
	}
}

func mergeInto(dst, src *hdrhistogram.Histogram) {
	if src != nil {
		dst.Merge(src)
	}
}

func ratio(sum, count int64) float64 {
	if count <= 0 {
		return 0
	}
	return float64(sum) / float64(count)
}

// Report is everything known about one pool size
type Report struct {
	PoolSize  int             `json:"pool_size" yaml:"pool_size"`
	Runs      []RunResult     `json:"runs" yaml:"runs"`
	Aggregate AggregateResult `json:"aggregate" yaml:"aggregate"`
	External  ExternalMetrics `json:"external_metrics" yaml:"external_metrics"`
}

// Assemble builds the report for one pool size. It has no side effects.
func Assemble(poolSize int, runs []RunResult, aggregate AggregateResult, external ExternalMetrics) Report {
	if runs == nil {
		runs = []RunResult{}
	}
	if external == nil {
		external = ExternalMetrics{}
	}
	return Report{
		PoolSize:  poolSize,
		Runs:      runs,
		Aggregate: aggregate,
		External:  external,
	}
}

// ByPoolSize indexes reports by pool size. If a size was benchmarked more
// than once the last report wins.
func ByPoolSize(reports []Report) map[int]Report {
	m := make(map[int]Report, len(reports))
	for _, r := range reports {
		m[r.PoolSize] = r
	}
	return m
}
