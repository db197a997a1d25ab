package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"community-orchestrator/config"
	"community-orchestrator/core/logging"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "orchestrator",
	Short: "Community energy archetype orchestrator",
	Long: `Selects representative housing archetypes for a community, retargets
them to the community's weather, converts and simulates them in parallel
and aggregates the hourly results into a community energy profile.`,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logger.Close()
		}
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file (default is ./orchestrator.yaml)")
	flags.Int("workers", 0, "parallel conversion workers (default derived from CPU count)")
	flags.String("seed", "", "archetype selection seed")
	flags.String("log-level", "", "log level: DEBUG, INFO, WARN or ERROR")
	flags.String("log-file", "", "write logs to this file instead of stderr")
}

// bindings maps persistent flags onto configuration keys.
var bindings = map[string]string{
	"workers":   "workers",
	"seed":      "selection.seed",
	"log-level": "logging.level",
	"log-file":  "logging.file",
}

func initConfig(cmd *cobra.Command, args []string) error {
	v, err := config.NewViper(cfgFile)
	if err != nil {
		return err
	}
	if err := bindFlags(cmd, v); err != nil {
		return err
	}
	cfg, err = config.FromViper(v)
	if err != nil {
		return err
	}
	logger, err = logging.NewLogger(cfg.Logging.File, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("failed to open log: %w", err)
	}
	return nil
}

// bindFlags overrides configuration only with flags set on the command line.
func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	for flag, key := range bindings {
		f := cmd.Flags().Lookup(flag)
		if f == nil || !f.Changed {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}
	return nil
}
