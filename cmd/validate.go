package cmd

import (
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/tclemos/docstore-bench/benchmark"
	"gopkg.in/yaml.v3"
)

var validateFlags flagKeys

// validateCmd checks the configuration and payloads without touching the store
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and print the effective settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, validateFlags)
		if err != nil {
			return err
		}
		payloads, err := benchmark.LoadPayloads(cfg.PayloadDir)
		if err != nil {
			return errors.Mark(err, benchmark.ErrInvalidConfig)
		}

		out, err := yaml.Marshal(cfg)
		if err != nil {
			return errors.Wrap(err, "encode configuration")
		}
		cmd.Printf("%s", out)
		cmd.Printf("# %d payload document(s)\n", len(payloads))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateFlags = addSettingFlags(validateCmd.Flags())
}
