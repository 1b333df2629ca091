package benchmark

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestTelemetryTracksLiveRun(t *testing.T) {
	tel := NewTelemetry()
	srv := httptest.NewServer(tel.Router())
	defer srv.Close()

	_, body := get(t, srv.URL+"/progress")
	assert.JSONEq(t, `{"running":false}`, body)

	acc := NewMetricsAccumulator()
	acc.RecordWrite(time.Millisecond)
	acc.RecordRead(time.Millisecond)
	acc.IncrementReadErrors()
	tel.RunStarted(4, acc)

	status, body := get(t, srv.URL+"/progress")
	require.Equal(t, http.StatusOK, status)
	var progress progressResponse
	require.NoError(t, json.Unmarshal([]byte(body), &progress))
	assert.True(t, progress.Running)
	assert.Equal(t, 4, progress.PoolSize)
	require.NotNil(t, progress.Metrics)
	assert.Equal(t, int64(1), progress.Metrics.Writes)
	assert.Equal(t, int64(1), progress.Metrics.ReadErrors)

	_, metrics := get(t, srv.URL+"/metrics")
	assert.Contains(t, metrics, `docbench_run_operations_total{op="write",outcome="success",pool_size="4"} 1`)
	assert.Contains(t, metrics, `docbench_run_operations_total{op="read",outcome="error",pool_size="4"} 1`)
	assert.Contains(t, metrics, `docbench_run_latency_seconds_total{op="write",pool_size="4"} 0.001`)

	tel.RunFinished(RunResult{PoolSize: 4, Elapsed: time.Second, MetricsSnapshot: acc.Snapshot()})

	_, body = get(t, srv.URL+"/progress")
	assert.JSONEq(t, `{"running":false}`, body)

	_, metrics = get(t, srv.URL+"/metrics")
	assert.NotContains(t, metrics, "docbench_run_operations_total{")
	assert.Contains(t, metrics, `docbench_runs_completed_total{pool_size="4"} 1`)
	assert.Contains(t, metrics, `docbench_last_run_ops_per_second{pool_size="4"} 2`)
}

func TestTelemetryServer(t *testing.T) {
	tel := NewTelemetry()
	assert.Empty(t, tel.Addr())
	require.NoError(t, tel.Start("127.0.0.1:0"))

	status, _ := get(t, "http://"+tel.Addr()+"/healthz")
	assert.Equal(t, http.StatusOK, status)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, tel.Shutdown(ctx))

	_, err := http.Get("http://" + tel.Addr() + "/healthz")
	assert.Error(t, err)
}

func TestTelemetryObservesExecutor(t *testing.T) {
	tel := NewTelemetry()
	e := &Executor{Store: &noopStore{}, Observer: tel}

	_, err := e.Run(context.Background(), 2, 10*time.Millisecond)
	require.NoError(t, err)

	assert.Nil(t, tel.live.Load())
}
