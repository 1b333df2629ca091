package benchmark

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"
)

// ExternalMetrics maps a server-side metric name to its value
type ExternalMetrics map[string]float64

// MetricsSource retrieves server-side metrics. Retrieval is best-effort:
// failures are logged and produce an empty or partial snapshot.
type MetricsSource interface {
	FetchSnapshot(ctx context.Context) ExternalMetrics
}

// MultiSource merges the snapshots of several sources, later sources
// overwriting earlier ones on name clashes
type MultiSource []MetricsSource

// FetchSnapshot implements MetricsSource
func (m MultiSource) FetchSnapshot(ctx context.Context) ExternalMetrics {
	merged := ExternalMetrics{}
	for _, src := range m {
		if src == nil {
			continue
		}
		for k, v := range src.FetchSnapshot(ctx) {
			merged[k] = v
		}
	}
	return merged
}

const (
	couchbaseManagementPort = "8091"
	clusterMetricsPath      = "/pools/default"
	bucketStatsPathTemplate = "/pools/default/buckets/%s/stats"

	metricsFetchAttempts = 3
	metricsFetchDelay    = 500 * time.Millisecond
	metricsFetchTimeout  = 10 * time.Second
)

// CouchbaseMetricsSource reads cluster and bucket statistics from the
// Couchbase management REST API
type CouchbaseMetricsSource struct {
	baseURL  string
	bucket   string
	username string
	password string
	client   *http.Client
}

// NewCouchbaseMetricsSource builds a source for cfg. The management URL
// defaults to port 8091 on the host of cfg.Address.
func NewCouchbaseMetricsSource(cfg StoreConfig) (*CouchbaseMetricsSource, error) {
	base, err := couchbaseManagementURL(cfg)
	if err != nil {
		return nil, err
	}
	return &CouchbaseMetricsSource{
		baseURL:  base,
		bucket:   cfg.Bucket,
		username: cfg.Username,
		password: cfg.Password,
		client:   &http.Client{Timeout: metricsFetchTimeout},
	}, nil
}

// FetchSnapshot implements MetricsSource
func (c *CouchbaseMetricsSource) FetchSnapshot(ctx context.Context) ExternalMetrics {
	metrics := ExternalMetrics{}

	var cluster clusterMetricsResponse
	if err := c.getJSON(ctx, clusterMetricsPath, &cluster); err != nil {
		log.Error().Err(err).Msg("Failed to retrieve Couchbase cluster metrics")
	} else {
		cluster.addTo(metrics)
	}

	var bucket bucketStatsResponse
	if err := c.getJSON(ctx, fmt.Sprintf(bucketStatsPathTemplate, url.PathEscape(c.bucket)), &bucket); err != nil {
		log.Error().Err(err).Msg("Failed to retrieve Couchbase bucket metrics")
	} else {
		bucket.addTo(metrics)
	}

	return metrics
}

func (c *CouchbaseMetricsSource) getJSON(ctx context.Context, path string, out interface{}) error {
	return retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			if c.username != "" {
				req.SetBasicAuth(c.username, c.password)
			}

			resp, err := c.client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
				return errors.Newf("GET %s: %s: %s", path, resp.Status, strings.TrimSpace(string(body)))
			}
			return json.NewDecoder(resp.Body).Decode(out)
		},
		retry.Context(ctx),
		retry.Attempts(metricsFetchAttempts),
		retry.Delay(metricsFetchDelay),
		retry.LastErrorOnly(true),
	)
}

// clusterMetricsResponse is the subset of /pools/default we report.
// Pointers distinguish missing values from zeros.
type clusterMetricsResponse struct {
	Nodes []struct {
		SystemStats struct {
			CPUUtilizationRate *float64 `json:"cpu_utilization_rate"`
			MemTotal           *float64 `json:"mem_total"`
			MemFree            *float64 `json:"mem_free"`
		} `json:"systemStats"`
	} `json:"nodes"`
}

func (r clusterMetricsResponse) addTo(metrics ExternalMetrics) {
	if len(r.Nodes) == 0 {
		log.Warn().Msg("No nodes found in cluster metrics")
		return
	}
	stats := r.Nodes[0].SystemStats

	if stats.CPUUtilizationRate != nil && *stats.CPUUtilizationRate >= 0 {
		metrics["Cluster CPU Usage (%)"] = *stats.CPUUtilizationRate
	} else {
		log.Warn().Msg("CPU usage data is missing or invalid")
	}

	if stats.MemTotal != nil && stats.MemFree != nil && *stats.MemTotal >= 0 && *stats.MemFree >= 0 {
		metrics["Cluster Memory Used (MB)"] = bytesToMB(*stats.MemTotal - *stats.MemFree)
	} else {
		log.Warn().Msg("Memory usage data is missing or invalid")
	}
}

// bucketStatsResponse is the subset of the bucket stats we report
type bucketStatsResponse struct {
	Op struct {
		Samples struct {
			Ops []float64 `json:"ops"`
		} `json:"samples"`
	} `json:"op"`
}

func (r bucketStatsResponse) addTo(metrics ExternalMetrics) {
	ops := r.Op.Samples.Ops
	if len(ops) == 0 || ops[len(ops)-1] < 0 {
		log.Warn().Msg("Operations per second data is missing or invalid")
		return
	}
	metrics["Bucket Operations per Second"] = ops[len(ops)-1]
}

func couchbaseManagementURL(cfg StoreConfig) (string, error) {
	if cfg.ManagementURL != "" {
		return strings.TrimSuffix(cfg.ManagementURL, "/"), nil
	}
	if cfg.Address == "" {
		return "", errors.New("couchbase metrics require an address or a management url")
	}

	// couchbase://host1,host2 -> host1
	host := cfg.Address
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	host, _, _ = strings.Cut(host, ",")
	host, _, _ = strings.Cut(host, "/")
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return "http://" + net.JoinHostPort(host, couchbaseManagementPort), nil
}

func hasScheme(address string) bool {
	return strings.Contains(address, "://")
}

func bytesToMB(b float64) float64 {
	return b / (1024 * 1024)
}
