package benchmark

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SetupLog configures the global logger. format is "json" or "console".
func SetupLog(format, level string) error {
	return setupLogTo(os.Stdout, format, level)
}

func setupLogTo(out io.Writer, format, level string) error {
	lvl := zerolog.InfoLevel
	if level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(level))
		if err != nil {
			return errors.Mark(errors.Wrapf(err, "%s", KeyLogLevel), ErrInvalidConfig)
		}
		lvl = parsed
	}
	zerolog.SetGlobalLevel(lvl)

	if strings.ToLower(format) == "json" {
		zerolog.TimeFieldFormat = time.RFC3339Nano
		log.Logger = zerolog.New(out).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"})
	}
	return nil
}

func initialLog(cfg Config) {
	blockCacheInfo := "disabled"
	if cfg.Store.BlockCacheSize >= 0 {
		blockCacheInfo = fmt.Sprintf("enabled, size: %d bytes", cfg.Store.BlockCacheSize)
	}

	log.Info().
		Ints("pool_sizes", cfg.PoolSizes).
		Int("runs", cfg.Runs).
		Int("duration_seconds", cfg.DurationSeconds).
		Int("cooldown_seconds", cfg.CooldownSeconds).
		Int("grace_period_seconds", cfg.GracePeriodSeconds).
		Str("store", string(cfg.Store.Type)).
		Str("key_scheme", string(cfg.KeyScheme)).
		Str("payload_dir", cfg.PayloadDir).
		Str("block_cache", blockCacheInfo).
		Msg("Starting benchmark")
}
