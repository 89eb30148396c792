package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/common/logger"
	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/config"
)

const serviceName = "falld"

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "falld",
		Short: "Fall detection event review service",
		Long: `falld stores fall events reported by wearable devices and lets
caregivers review them:
- serve: HTTP API and optional MQTT ingest
- migrate: apply the embedded database schema
- token: mint a bearer token for local testing
- hash-key: hash a device key for provisioning`,
		SilenceUsage: true,
	}
)

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "optional YAML config file; environment variables take precedence")
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	l, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, serviceName)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return l, nil
}
