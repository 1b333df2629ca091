package benchmark

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemMetricsSource reports resource usage of the host running the
// benchmark, next to the server's own view
type SystemMetricsSource struct{}

// FetchSnapshot implements MetricsSource
func (SystemMetricsSource) FetchSnapshot(ctx context.Context) ExternalMetrics {
	metrics := ExternalMetrics{}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to read host memory usage")
	} else {
		metrics["Host Available Memory (MB)"] = bytesToMB(float64(vm.Available))
		metrics["Host Memory Used (%)"] = vm.UsedPercent
	}

	// interval 0 compares against the previous call, i.e. usage since the last snapshot
	if pct, err := cpu.PercentWithContext(ctx, 0, false); err != nil {
		log.Warn().Err(err).Msg("Failed to read host CPU usage")
	} else if len(pct) > 0 {
		metrics["Host CPU Usage (%)"] = pct[0]
	}

	return metrics
}
