package benchmark

import (
	"sync/atomic"
	"time"
)

// MetricsAccumulator collects operation counts and latency sums for one run.
// Every field is an independent atomic counter so workers never serialize on
// a shared lock. Fields only grow for the lifetime of a run.
type MetricsAccumulator struct {
	writes            atomic.Int64
	reads             atomic.Int64
	writeErrors       atomic.Int64
	readErrors        atomic.Int64
	writeLatencyNanos atomic.Int64
	readLatencyNanos  atomic.Int64
}

// NewMetricsAccumulator returns an empty accumulator
func NewMetricsAccumulator() *MetricsAccumulator {
	return &MetricsAccumulator{}
}

// RecordWrite counts one successful write and adds its latency
func (m *MetricsAccumulator) RecordWrite(latency time.Duration) {
	m.writeLatencyNanos.Add(latency.Nanoseconds())
	m.writes.Add(1)
}

// RecordRead counts one successful read and adds its latency
func (m *MetricsAccumulator) RecordRead(latency time.Duration) {
	m.readLatencyNanos.Add(latency.Nanoseconds())
	m.reads.Add(1)
}

// IncrementWriteErrors counts one failed write
func (m *MetricsAccumulator) IncrementWriteErrors() {
	m.writeErrors.Add(1)
}

// IncrementReadErrors counts one failed read
func (m *MetricsAccumulator) IncrementReadErrors() {
	m.readErrors.Add(1)
}

// Snapshot loads every counter. Fields are read one at a time, so a snapshot
// taken while workers are running may be slightly skewed between fields; once
// all workers have stopped it is exact.
func (m *MetricsAccumulator) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Writes:            m.writes.Load(),
		Reads:             m.reads.Load(),
		WriteErrors:       m.writeErrors.Load(),
		ReadErrors:        m.readErrors.Load(),
		WriteLatencyNanos: m.writeLatencyNanos.Load(),
		ReadLatencyNanos:  m.readLatencyNanos.Load(),
	}
}

// MetricsSnapshot is a point-in-time copy of a MetricsAccumulator
type MetricsSnapshot struct {
	Writes            int64 `json:"writes" yaml:"writes"`
	Reads             int64 `json:"reads" yaml:"reads"`
	WriteErrors       int64 `json:"write_errors" yaml:"write_errors"`
	ReadErrors        int64 `json:"read_errors" yaml:"read_errors"`
	WriteLatencyNanos int64 `json:"write_latency_ns" yaml:"write_latency_ns"`
	ReadLatencyNanos  int64 `json:"read_latency_ns" yaml:"read_latency_ns"`
}

// WriteAttempts is the number of writes issued, successful or not
func (s MetricsSnapshot) WriteAttempts() int64 {
	return s.Writes + s.WriteErrors
}

// ReadAttempts is the number of reads issued, successful or not
func (s MetricsSnapshot) ReadAttempts() int64 {
	return s.Reads + s.ReadErrors
}

// AverageWriteLatency returns the mean successful write latency, 0 without writes
func (s MetricsSnapshot) AverageWriteLatency() time.Duration {
	return averageLatency(s.WriteLatencyNanos, s.Writes)
}

// AverageReadLatency returns the mean successful read latency, 0 without reads
func (s MetricsSnapshot) AverageReadLatency() time.Duration {
	return averageLatency(s.ReadLatencyNanos, s.Reads)
}

func averageLatency(sumNanos, count int64) time.Duration {
	if count <= 0 {
		return 0
	}
	return time.Duration(sumNanos / count)
}
