package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tclemos/docstore-bench/benchmark"
	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestSettingPrecedence(t *testing.T) {
	path := writeConfig(t, "bench.yaml", `
pool_sizes: "2,4"
runs: 2
duration_seconds: 3
cooldown_seconds: 4
`)
	t.Setenv("DOCBENCH_RUNS", "7")
	t.Setenv("DOCBENCH_DURATION_SECONDS", "9")
	t.Setenv("DOCBENCH_STORE_TYPE", "badger")
	t.Setenv("DOCBENCH_STORE_IN_MEMORY", "true")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	keys := addSettingFlags(fs)
	require.NoError(t, fs.Parse([]string{"--runs=5"}))

	v, err := newViper(path, fs, keys)
	require.NoError(t, err)
	cfg, err := benchmark.LoadConfig(v)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Runs, "flag beats environment")
	assert.Equal(t, 9, cfg.DurationSeconds, "environment beats file")
	assert.Equal(t, 4, cfg.CooldownSeconds, "file beats default")
	assert.Equal(t, []int{2, 4}, cfg.PoolSizes, "unset flag does not override file")
	assert.Equal(t, 10, cfg.GracePeriodSeconds)
	assert.Equal(t, benchmark.StoreTypeBadger, cfg.Store.Type)
	assert.True(t, cfg.Store.InMemory)
}

func TestLegacyPropertiesFile(t *testing.T) {
	path := writeConfig(t, "bench.properties", `
threadCount=1,2
processSeconds=20
threadPoolRuns=2
sleepBetweenRunsSeconds=1
`)
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	keys := addSettingFlags(fs)
	require.NoError(t, fs.Parse(nil))

	v, err := newViper(path, fs, keys)
	require.NoError(t, err)
	cfg, err := benchmark.LoadConfig(v)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2}, cfg.PoolSizes)
	assert.Equal(t, 20, cfg.DurationSeconds)
	assert.Equal(t, 2, cfg.Runs)
	assert.Equal(t, 1, cfg.CooldownSeconds)
}

func TestMissingConfigFile(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	keys := addSettingFlags(fs)

	_, err := newViper(filepath.Join(t.TempDir(), "missing.yaml"), fs, keys)
	require.Error(t, err)
	assert.True(t, errors.Is(err, benchmark.ErrInvalidConfig))
}

func TestMalformedFlagIsInvalidConfig(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	keys := addSettingFlags(fs)
	require.NoError(t, fs.Parse([]string{"--pool-sizes=1,two", "--runs=1", "--duration=1", "--cooldown=0"}))

	v, err := newViper("", fs, keys)
	require.NoError(t, err)
	_, err = benchmark.LoadConfig(v)
	assert.True(t, errors.Is(err, benchmark.ErrInvalidConfig))
}

func TestRunPlanIsRequired(t *testing.T) {
	path := writeConfig(t, "empty.yaml", "")
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	keys := addSettingFlags(fs)
	require.NoError(t, fs.Parse(nil))

	v, err := newViper(path, fs, keys)
	require.NoError(t, err)
	_, err = benchmark.LoadConfig(v)
	require.Error(t, err)
	assert.True(t, errors.Is(err, benchmark.ErrInvalidConfig))
}

func TestIntegerFlagsAreDecimal(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	keys := addSettingFlags(fs)
	require.NoError(t, fs.Parse([]string{"--pool-sizes=010", "--runs=010", "--duration=1", "--cooldown=0"}))

	v, err := newViper("", fs, keys)
	require.NoError(t, err)
	cfg, err := benchmark.LoadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, []int{10}, cfg.PoolSizes)
	assert.Equal(t, 10, cfg.Runs)

	fs = pflag.NewFlagSet("test", pflag.ContinueOnError)
	keys = addSettingFlags(fs)
	require.NoError(t, fs.Parse([]string{"--pool-sizes=1", "--runs=0x10", "--duration=1", "--cooldown=0"}))
	v, err = newViper("", fs, keys)
	require.NoError(t, err)
	_, err = benchmark.LoadConfig(v)
	assert.True(t, errors.Is(err, benchmark.ErrInvalidConfig))
}

func TestValidateCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"validate", "--pool-sizes=1,8", "--runs=3", "--duration=30", "--cooldown=0", "--store-password=hunter2"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	require.NoError(t, rootCmd.Execute())

	var printed map[string]interface{}
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &printed))
	assert.Equal(t, []interface{}{1, 8}, printed["pool_sizes"])
	assert.Equal(t, 3, printed["runs"])
	assert.NotContains(t, out.String(), "hunter2")
	assert.Contains(t, out.String(), "# 1 payload document(s)")
}
