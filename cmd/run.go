package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tclemos/docstore-bench/benchmark"
)

var runFlags flagKeys

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the document store benchmark",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(cmd, runFlags)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid configuration")
		}
		if err := benchmark.SetupLog(cfg.LogFormat, cfg.LogLevel); err != nil {
			log.Fatal().Err(err).Msg("Invalid configuration")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := benchmark.RunBenchmark(ctx, cfg); err != nil {
			stop()
			log.Fatal().Err(err).Msg("Benchmark failed")
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runFlags = addSettingFlags(runCmd.Flags())
}
