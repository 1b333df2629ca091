package cmd

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/tclemos/docstore-bench/benchmark"
)

const envPrefix = "DOCBENCH"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "docstore-bench",
	Short: "Concurrent load generator for document stores",
	Long: `
Drives a document store with fixed-size pools of workers, each repeatedly
writing one document and reading it back three times, and reports throughput,
latency and error counts per pool size.

Settings come from flags, DOCBENCH_* environment variables (store.type is
DOCBENCH_STORE_TYPE) and an optional config file passed with --config.
Properties, yaml, json and toml files are accepted.
`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to a config file (properties, yaml, json or toml)")
}

// flagKeys binds a command flag name to its setting key
type flagKeys map[string]string

// newViper layers defaults, the config file, the environment and the flags
// of fs into a fresh viper instance
func newViper(configFile string, fs *pflag.FlagSet, keys flagKeys) (*viper.Viper, error) {
	v := viper.New()
	benchmark.SetDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "read config file %s", configFile), benchmark.ErrInvalidConfig)
		}
		if err := benchmark.ApplyLegacyKeys(v); err != nil {
			return nil, errors.Mark(err, benchmark.ErrInvalidConfig)
		}
	}

	for name, key := range keys {
		flag := fs.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, errors.Wrapf(err, "bind flag %s", name)
		}
	}
	return v, nil
}

// loadConfig builds the configuration seen by a command
func loadConfig(cmd *cobra.Command, keys flagKeys) (benchmark.Config, error) {
	v, err := newViper(cfgFile, cmd.Flags(), keys)
	if err != nil {
		return benchmark.Config{}, err
	}
	return benchmark.LoadConfig(v)
}

// addSettingFlags registers the flags shared by every command that loads a
// configuration and returns their bindings
func addSettingFlags(fs *pflag.FlagSet) flagKeys {
	// integer settings are taken as strings so the loader parses them in
	// base 10; pflag would read "010" as octal
	fs.String("pool-sizes", "", "Comma separated worker pool sizes, run in order (required)")
	fs.String("runs", "", "Runs per pool size (required)")
	fs.String("duration", "", "Duration of each run in seconds (required)")
	fs.String("cooldown", "", "Pause between runs of the same pool size in seconds (required)")
	fs.String("grace-period", "10", "Seconds to wait for workers after a run ends before forcing them down")
	fs.String("progress-interval", "5", "Seconds between progress logs during a run, 0 disables")
	fs.String("payload-dir", "", "Directory of *.json documents to write (default: built-in document)")
	fs.String("key-scheme", "sequential", "Document id rendering: 'sequential' or 'hashed'")
	fs.Bool("system-metrics", true, "Include host CPU and memory usage in reports")
	fs.String("telemetry-addr", "", "Serve /metrics and /progress on this address while running")
	fs.String("report-file", "", "Write all reports to this file")
	fs.String("report-format", "json", "Report file format: 'json' or 'yaml'")
	fs.String("log-format", "console", "Log format: 'json' or 'console'")
	fs.String("log-level", "info", "Log level: debug, info, warn or error")

	fs.String("store", "memory", "Store backend: memory, pebble, badger, redis or couchbase")
	fs.String("store-path", "", "Data directory for pebble and badger")
	fs.Bool("store-in-memory", false, "Run badger without a data directory")
	fs.String("block-cache-size", "8388608", "Block cache size in bytes, negative disables")
	fs.String("store-address", "", "Address of the redis or couchbase server")
	fs.String("store-username", "", "Username for remote stores")
	fs.String("store-password", "", "Password for remote stores")
	fs.String("store-bucket", "", "Couchbase bucket")
	fs.String("store-database", "0", "Redis database number")
	fs.String("store-management-url", "", "Couchbase management API URL (default: http://<address>:8091)")

	return flagKeys{
		"pool-sizes":           benchmark.KeyPoolSizes,
		"runs":                 benchmark.KeyRuns,
		"duration":             benchmark.KeyDuration,
		"cooldown":             benchmark.KeyCooldown,
		"grace-period":         benchmark.KeyGracePeriod,
		"progress-interval":    benchmark.KeyProgressInterval,
		"payload-dir":          benchmark.KeyPayloadDir,
		"key-scheme":           benchmark.KeyKeyScheme,
		"system-metrics":       benchmark.KeySystemMetrics,
		"telemetry-addr":       benchmark.KeyTelemetryAddr,
		"report-file":          benchmark.KeyReportFile,
		"report-format":        benchmark.KeyReportFormat,
		"log-format":           benchmark.KeyLogFormat,
		"log-level":            benchmark.KeyLogLevel,
		"store":                benchmark.KeyStoreType,
		"store-path":           benchmark.KeyStorePath,
		"store-in-memory":      benchmark.KeyStoreInMemory,
		"block-cache-size":     benchmark.KeyStoreBlockCacheSize,
		"store-address":        benchmark.KeyStoreAddress,
		"store-username":       benchmark.KeyStoreUsername,
		"store-password":       benchmark.KeyStorePassword,
		"store-bucket":         benchmark.KeyStoreBucket,
		"store-database":       benchmark.KeyStoreDatabase,
		"store-management-url": benchmark.KeyStoreManagementURL,
	}
}
