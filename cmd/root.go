package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/deedharvest/internal/config"
	"github.com/xkilldash9x/deedharvest/internal/observability"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:           "deedharvest",
	Short:         "Operator-assisted harvester for property registry records.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI. The context from main.go carries shutdown signals
// down into every subcommand.
func Execute(ctx context.Context) error {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if logger := observability.GetLogger(); logger != nil && ctx.Err() == nil {
			logger.Error("Command execution failed", zap.Error(err))
		}
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(harvestCmd)
	rootCmd.AddCommand(exportCmd)
}

// loadConfig reads file and environment configuration and brings the logger
// up. Every subcommand starts here.
func loadConfig() (*config.Config, error) {
	v := viper.GetViper()
	config.SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("HARVEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("postgres.url", "HARVEST_POSTGRES_URL")
	_ = v.BindEnv("redis.addr", "HARVEST_REDIS_ADDR")
	_ = v.BindEnv("browser.exec_path", "HARVEST_BROWSER_EXEC_PATH")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file is fine; defaults and environment carry it.
	}

	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}

	observability.InitializeLogger(cfg.Logger)
	return cfg, nil
}
