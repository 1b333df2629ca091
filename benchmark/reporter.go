package benchmark

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Reporter receives the report of each pool size as soon as it completes
type Reporter interface {
	Report(r Report) error
}

// LogReporter writes reports to the log
type LogReporter struct {
	// Logger defaults to the global logger when nil
	Logger *zerolog.Logger
}

func (l LogReporter) logger() *zerolog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return &log.Logger
}

// Report implements Reporter
func (l LogReporter) Report(r Report) error {
	logger := l.logger()

	for i, run := range r.Runs {
		logger.Info().
			Int("pool_size", r.PoolSize).
			Int("run", i+1).
			Int("runs", len(r.Runs)).
			Dur("elapsed", run.Elapsed).
			Int64("writes", run.Writes).
			Int64("write_errors", run.WriteErrors).
			Int64("reads", run.Reads).
			Int64("read_errors", run.ReadErrors).
			Int64("avg_write_latency_ns", run.AverageWriteLatency().Nanoseconds()).
			Int64("avg_read_latency_ns", run.AverageReadLatency().Nanoseconds()).
			Dur("write_p99", run.WriteLatency.P99).
			Dur("read_p99", run.ReadLatency.P99).
			Float64("ops_per_sec", run.Throughput()).
			Int("abandoned_workers", run.AbandonedWorkers).
			Msg("Run results")
	}

	agg := r.Aggregate
	logger.Info().
		Int("pool_size", r.PoolSize).
		Int("runs", agg.Runs).
		Float64("avg_writes", agg.Writes).
		Float64("avg_write_errors", agg.WriteErrors).
		Float64("avg_reads", agg.Reads).
		Float64("avg_read_errors", agg.ReadErrors).
		Float64("avg_write_latency_ns", agg.AvgWriteLatencyNanos).
		Float64("avg_read_latency_ns", agg.AvgReadLatencyNanos).
		Dur("write_p50", agg.WriteLatency.P50).
		Dur("write_p99", agg.WriteLatency.P99).
		Dur("read_p50", agg.ReadLatency.P50).
		Dur("read_p99", agg.ReadLatency.P99).
		Float64("avg_ops_per_sec", agg.Throughput).
		Msg("Average results over all runs")

	if len(r.External) == 0 {
		logger.Warn().Int("pool_size", r.PoolSize).Msg("No server metrics available")
		return nil
	}
	names := make([]string, 0, len(r.External))
	for name := range r.External {
		names = append(names, name)
	}
	sort.Strings(names)
	ev := logger.Info().Int("pool_size", r.PoolSize)
	for _, name := range names {
		ev = ev.Float64(name, r.External[name])
	}
	ev.Msg("Server metrics")
	return nil
}

// ReportFormat selects the encoding of a report file
type ReportFormat string

const (
	ReportFormatJSON ReportFormat = "json"
	ReportFormatYAML ReportFormat = "yaml"
)

// Valid reports whether f names a known format
func (f ReportFormat) Valid() bool {
	return f == ReportFormatJSON || f == ReportFormatYAML
}

// FileReporter keeps every report received so far in a single file. The
// file is rewritten after each pool size so an interrupted benchmark still
// leaves the completed sizes behind.
type FileReporter struct {
	Path   string
	Format ReportFormat

	mu      sync.Mutex
	reports []Report
}

// Report implements Reporter
func (f *FileReporter) Report(r Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.reports = append(f.reports, r)
	data, err := EncodeReports(f.reports, f.Format)
	if err != nil {
		return err
	}
	return writeFileAtomic(f.Path, data)
}

// EncodeReports serializes reports in the given format
func EncodeReports(reports []Report, format ReportFormat) ([]byte, error) {
	doc := struct {
		Reports []Report `json:"reports" yaml:"reports"`
	}{Reports: reports}

	switch format {
	case ReportFormatJSON, "":
		return json.MarshalIndent(doc, "", "  ")
	case ReportFormatYAML:
		return yaml.Marshal(doc)
	default:
		return nil, errors.Newf("unknown report format %q", format)
	}
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.Wrap(err, "create report file")
	}
	defer os.Remove(tmp.Name())

	// CreateTemp makes the file 0600; reports are meant to be shared
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return errors.Wrap(err, "chmod report file")
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write report file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close report file")
	}
	return os.Rename(tmp.Name(), path)
}
