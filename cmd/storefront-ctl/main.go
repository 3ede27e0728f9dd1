package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jcmexdev/storefront-sagas/internal/bootstrap"
	"github.com/jcmexdev/storefront-sagas/internal/config"
	"github.com/jcmexdev/storefront-sagas/internal/pkg/telemetry"
)

var Version = "dev"

var (
	configPath string
	logLevel   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "storefront-ctl",
		Short:         "Operator tooling for the storefront order and refund services",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file (default $STOREFRONT_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level for diagnostics written to stderr")

	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(linksCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(sagaLogCmd)
	rootCmd.AddCommand(healthCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	cfg.ServiceName = "storefront-ctl"
	return cfg, nil
}

// openApp wires the same components the API runs with. Callers must Close it.
func openApp(ctx context.Context) (*bootstrap.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := telemetry.NewLogger(os.Stderr, logLevel, false)
	return bootstrap.New(ctx, cfg, logger)
}
