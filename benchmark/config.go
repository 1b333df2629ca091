package benchmark

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// ErrInvalidConfig marks every configuration error. Configuration errors
// are fatal at startup.
var ErrInvalidConfig = errors.New("invalid configuration")

// Setting keys
const (
	KeyPoolSizes        = "pool_sizes"
	KeyRuns             = "runs"
	KeyDuration         = "duration_seconds"
	KeyCooldown         = "cooldown_seconds"
	KeyGracePeriod      = "grace_period_seconds"
	KeyProgressInterval = "progress_interval_seconds"
	KeyPayloadDir       = "payload_dir"
	KeyKeyScheme        = "key_scheme"
	KeySystemMetrics    = "system_metrics"
	KeyTelemetryAddr    = "telemetry_addr"
	KeyReportFile       = "report_file"
	KeyReportFormat     = "report_format"
	KeyLogFormat        = "log_format"
	KeyLogLevel         = "log_level"

	KeyStoreType           = "store.type"
	KeyStorePath           = "store.path"
	KeyStoreInMemory       = "store.in_memory"
	KeyStoreBlockCacheSize = "store.block_cache_size"
	KeyStoreAddress        = "store.address"
	KeyStoreUsername       = "store.username"
	KeyStorePassword       = "store.password"
	KeyStoreBucket         = "store.bucket"
	KeyStoreDatabase       = "store.database"
	KeyStoreManagementURL  = "store.management_url"
)

// legacyKeys maps property names of older benchmark property files to
// current keys
var legacyKeys = map[string]string{
	"threadcount":             KeyPoolSizes,
	"processseconds":          KeyDuration,
	"threadpoolruns":          KeyRuns,
	"sleepbetweenrunsseconds": KeyCooldown,
	"couchbase.host":          KeyStoreAddress,
	"couchbase.username":      KeyStoreUsername,
	"couchbase.password":      KeyStorePassword,
	"couchbase.bucket":        KeyStoreBucket,
}

// Config holds the complete benchmark configuration. It is immutable once
// loaded.
type Config struct {
	PoolSizes               []int        `json:"pool_sizes" yaml:"pool_sizes"`
	Runs                    int          `json:"runs" yaml:"runs"`
	DurationSeconds         int          `json:"duration_seconds" yaml:"duration_seconds"`
	CooldownSeconds         int          `json:"cooldown_seconds" yaml:"cooldown_seconds"`
	GracePeriodSeconds      int          `json:"grace_period_seconds" yaml:"grace_period_seconds"`
	ProgressIntervalSeconds int          `json:"progress_interval_seconds" yaml:"progress_interval_seconds"`
	PayloadDir              string       `json:"payload_dir" yaml:"payload_dir"`
	KeyScheme               KeyScheme    `json:"key_scheme" yaml:"key_scheme"`
	Store                   StoreConfig  `json:"store" yaml:"store"`
	SystemMetrics           bool         `json:"system_metrics" yaml:"system_metrics"`
	TelemetryAddr           string       `json:"telemetry_addr" yaml:"telemetry_addr"`
	ReportFile              string       `json:"report_file" yaml:"report_file"`
	ReportFormat            ReportFormat `json:"report_format" yaml:"report_format"`
	LogFormat               string       `json:"log_format" yaml:"log_format"` // "json" or "console"
	LogLevel                string       `json:"log_level" yaml:"log_level"`
}

// requiredKeys describe the run plan and have no defaults
var requiredKeys = []string{KeyPoolSizes, KeyRuns, KeyDuration, KeyCooldown}

// SetDefaults registers default values for every optional setting on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyGracePeriod, int(DefaultGracePeriod/time.Second))
	v.SetDefault(KeyProgressInterval, 5)
	v.SetDefault(KeyKeyScheme, string(KeySchemeSequential))
	v.SetDefault(KeySystemMetrics, true)
	v.SetDefault(KeyReportFormat, string(ReportFormatJSON))
	v.SetDefault(KeyLogFormat, "console")
	v.SetDefault(KeyLogLevel, "info")

	v.SetDefault(KeyStoreType, string(StoreTypeMemory))
	v.SetDefault(KeyStoreBlockCacheSize, int64(8<<20))
	v.SetDefault(KeyStoreDatabase, 0)
}

// ApplyLegacyKeys copies values found under legacy property names in the
// config file to their current keys, unless the file also sets the current
// key. Call it after the config file has been read.
func ApplyLegacyKeys(v *viper.Viper) error {
	for legacy, key := range legacyKeys {
		if !v.InConfig(legacy) || v.InConfig(key) {
			continue
		}
		if err := v.MergeConfigMap(nestedSetting(key, v.Get(legacy))); err != nil {
			return errors.Wrapf(err, "apply legacy setting %s", legacy)
		}
	}
	return nil
}

// nestedSetting expands "a.b" = val into {"a": {"b": val}}
func nestedSetting(key string, val interface{}) map[string]interface{} {
	parts := strings.Split(key, ".")
	m := map[string]interface{}{parts[len(parts)-1]: val}
	for i := len(parts) - 2; i >= 0; i-- {
		m = map[string]interface{}{parts[i]: m}
	}
	return m
}

// LoadConfig reads and validates every setting from v
func LoadConfig(v *viper.Viper) (Config, error) {
	for _, key := range requiredKeys {
		if !v.IsSet(key) {
			return Config{}, invalidConfig(key, "required")
		}
	}

	l := &settingLoader{v: v}

	cfg := Config{
		PoolSizes:               l.poolSizes(KeyPoolSizes),
		Runs:                    l.int(KeyRuns),
		DurationSeconds:         l.int(KeyDuration),
		CooldownSeconds:         l.int(KeyCooldown),
		GracePeriodSeconds:      l.int(KeyGracePeriod),
		ProgressIntervalSeconds: l.int(KeyProgressInterval),
		PayloadDir:              v.GetString(KeyPayloadDir),
		KeyScheme:               KeyScheme(strings.ToLower(v.GetString(KeyKeyScheme))),
		SystemMetrics:           l.bool(KeySystemMetrics),
		TelemetryAddr:           v.GetString(KeyTelemetryAddr),
		ReportFile:              v.GetString(KeyReportFile),
		ReportFormat:            ReportFormat(strings.ToLower(v.GetString(KeyReportFormat))),
		LogFormat:               strings.ToLower(v.GetString(KeyLogFormat)),
		LogLevel:                strings.ToLower(v.GetString(KeyLogLevel)),
		Store: StoreConfig{
			Type:           StoreType(strings.ToLower(v.GetString(KeyStoreType))),
			Path:           v.GetString(KeyStorePath),
			InMemory:       l.bool(KeyStoreInMemory),
			BlockCacheSize: l.int64(KeyStoreBlockCacheSize),
			Address:        v.GetString(KeyStoreAddress),
			Username:       v.GetString(KeyStoreUsername),
			Password:       v.GetString(KeyStorePassword),
			Bucket:         v.GetString(KeyStoreBucket),
			Database:       l.int(KeyStoreDatabase),
			ManagementURL:  v.GetString(KeyStoreManagementURL),
		},
	}
	if l.err != nil {
		return Config{}, l.err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges and enumerations
func (c Config) Validate() error {
	if len(c.PoolSizes) == 0 {
		return invalidConfig(KeyPoolSizes, "at least one pool size is required")
	}
	for _, size := range c.PoolSizes {
		if size <= 0 {
			return invalidConfig(KeyPoolSizes, fmt.Sprintf("pool sizes must be positive, got %d", size))
		}
	}
	if c.Runs <= 0 {
		return invalidConfig(KeyRuns, fmt.Sprintf("must be positive, got %d", c.Runs))
	}
	if c.DurationSeconds <= 0 {
		return invalidConfig(KeyDuration, fmt.Sprintf("must be positive, got %d", c.DurationSeconds))
	}
	if c.CooldownSeconds < 0 {
		return invalidConfig(KeyCooldown, fmt.Sprintf("cannot be negative, got %d", c.CooldownSeconds))
	}
	if c.GracePeriodSeconds < 0 {
		return invalidConfig(KeyGracePeriod, fmt.Sprintf("cannot be negative, got %d", c.GracePeriodSeconds))
	}
	if c.ProgressIntervalSeconds < 0 {
		return invalidConfig(KeyProgressInterval, fmt.Sprintf("cannot be negative, got %d", c.ProgressIntervalSeconds))
	}
	if !c.KeyScheme.Valid() {
		return invalidConfig(KeyKeyScheme, fmt.Sprintf("unknown key scheme %q", c.KeyScheme))
	}
	if c.ReportFile != "" && !c.ReportFormat.Valid() {
		return invalidConfig(KeyReportFormat, fmt.Sprintf("unknown report format %q", c.ReportFormat))
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		return invalidConfig(KeyLogFormat, fmt.Sprintf("must be json or console, got %q", c.LogFormat))
	}
	if c.LogLevel != "" {
		if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
			return invalidConfig(KeyLogLevel, fmt.Sprintf("unknown level %q", c.LogLevel))
		}
	}
	return c.validateStore()
}

func (c Config) validateStore() error {
	s := c.Store
	switch s.Type {
	case StoreTypeMemory:
	case StoreTypePebble:
		if s.Path == "" {
			return invalidConfig(KeyStorePath, "required for the pebble store")
		}
	case StoreTypeBadger:
		if s.Path == "" && !s.InMemory {
			return invalidConfig(KeyStorePath, "required for the badger store unless store.in_memory is set")
		}
	case StoreTypeRedis:
		if s.Address == "" {
			return invalidConfig(KeyStoreAddress, "required for the redis store")
		}
	case StoreTypeCouchbase:
		if s.Address == "" {
			return invalidConfig(KeyStoreAddress, "required for the couchbase store")
		}
		if s.Bucket == "" {
			return invalidConfig(KeyStoreBucket, "required for the couchbase store")
		}
	default:
		return invalidConfig(KeyStoreType, fmt.Sprintf("unknown store %q", s.Type))
	}
	return nil
}

// Plan returns the run schedule described by the configuration
func (c Config) Plan() Plan {
	return Plan{
		PoolSizes: append([]int(nil), c.PoolSizes...),
		Runs:      c.Runs,
		Duration:  time.Duration(c.DurationSeconds) * time.Second,
		Cooldown:  time.Duration(c.CooldownSeconds) * time.Second,
	}
}

// GracePeriod returns the worker shutdown bound
func (c Config) GracePeriod() time.Duration {
	return time.Duration(c.GracePeriodSeconds) * time.Second
}

// ProgressInterval returns the progress logging period, 0 when disabled
func (c Config) ProgressInterval() time.Duration {
	return time.Duration(c.ProgressIntervalSeconds) * time.Second
}

func invalidConfig(key, msg string) error {
	return errors.Mark(errors.Newf("%s: %s", key, msg), ErrInvalidConfig)
}

// settingLoader converts raw settings strictly, keeping the first error.
// viper's Get* helpers silently turn malformed values into zeros.
type settingLoader struct {
	v   *viper.Viper
	err error
}

func (l *settingLoader) fail(key string, err error) {
	if l.err == nil {
		l.err = errors.Mark(errors.Wrapf(err, "%s", key), ErrInvalidConfig)
	}
}

func (l *settingLoader) int(key string) int {
	n, err := strictInt(l.v.Get(key))
	if err != nil {
		l.fail(key, err)
	}
	return n
}

func (l *settingLoader) int64(key string) int64 {
	n, err := strictInt64(l.v.Get(key))
	if err != nil {
		l.fail(key, err)
	}
	return n
}

func (l *settingLoader) bool(key string) bool {
	b, err := cast.ToBoolE(trimString(l.v.Get(key)))
	if err != nil {
		l.fail(key, err)
	}
	return b
}

// poolSizes accepts a comma separated string ("1, 2, 4") or a list
func (l *settingLoader) poolSizes(key string) []int {
	var items []interface{}
	switch raw := l.v.Get(key).(type) {
	case nil:
	case string:
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				items = append(items, s)
			}
		}
	case []int:
		for _, n := range raw {
			items = append(items, n)
		}
	case []string:
		for _, s := range raw {
			items = append(items, s)
		}
	case []interface{}:
		items = raw
	default:
		items = []interface{}{raw}
	}

	sizes := make([]int, 0, len(items))
	for _, item := range items {
		n, err := strictInt(item)
		if err != nil {
			l.fail(key, err)
			return nil
		}
		sizes = append(sizes, n)
	}
	return sizes
}

func strictInt(item interface{}) (int, error) {
	n, err := strictInt64(item)
	if err != nil {
		return 0, err
	}
	if int64(int(n)) != n {
		return 0, errors.Newf("integer %d out of range", n)
	}
	return int(n), nil
}

// strictInt64 parses strings as plain base 10, so "010" is 10 and "0x10" or
// "2x" are errors, and rejects floats with a fractional part. cast would
// read "010" as octal and truncate 2.5 to 2.
func strictInt64(item interface{}) (int64, error) {
	switch v := item.(type) {
	case nil:
		return 0, nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, errors.Newf("invalid integer %q", v)
		}
		return n, nil
	case float64:
		return integralFloat(v)
	case float32:
		return integralFloat(float64(v))
	case bool:
		return 0, errors.Newf("invalid integer %v", v)
	default:
		return cast.ToInt64E(item)
	}
}

func integralFloat(f float64) (int64, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt64 {
		return 0, errors.Newf("invalid integer %v", f)
	}
	return int64(f), nil
}

func trimString(v interface{}) interface{} {
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return v
}
